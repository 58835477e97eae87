package mocks

import (
	"context"

	"exitscan/internal/model"
	"github.com/stretchr/testify/mock"
)

type MockVerifier struct {
	mock.Mock
}

func (m *MockVerifier) Verify(ctx context.Context, req model.ScanRequest) model.Result {
	args := m.Called(ctx, req)
	return args.Get(0).(model.Result)
}
