package scan

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"exitscan/internal/camera"
	"exitscan/internal/clock"
	"exitscan/internal/metrics"
	"exitscan/internal/model"
	"exitscan/internal/present"
	"exitscan/internal/verify"
	"exitscan/internal/verify/mocks"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// fakeCamera delivers synthetic decodes. deliver ignores the paused flag so
// tests can check that the workflow itself drops decodes while paused.
type fakeCamera struct {
	mu         sync.Mutex
	devices    []camera.Device
	devicesErr error
	startErr   error
	started    string
	capture    camera.Capture
	onDecode   camera.DecodeFunc
	paused     bool
	pauses     int
	resumes    int
	stops      int
}

func (c *fakeCamera) Devices(context.Context) ([]camera.Device, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.devices, c.devicesErr
}

func (c *fakeCamera) Start(_ context.Context, id string, capture camera.Capture, onDecode camera.DecodeFunc, _ camera.FailureFunc) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.startErr != nil {
		return c.startErr
	}
	c.started, c.capture, c.onDecode = id, capture, onDecode
	return nil
}

func (c *fakeCamera) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paused = true
	c.pauses++
}

func (c *fakeCamera) Resume() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paused = false
	c.resumes++
}

func (c *fakeCamera) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stops++
	c.onDecode = nil
	return nil
}

func (c *fakeCamera) deliver(text string) {
	c.mu.Lock()
	fn := c.onDecode
	c.mu.Unlock()
	if fn != nil {
		fn(text)
	}
}

func (c *fakeCamera) isPaused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paused
}

func (c *fakeCamera) counts() (pauses, resumes int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pauses, c.resumes
}

type harness struct {
	w     *Workflow
	cam   *fakeCamera
	ver   *mocks.MockVerifier
	board *present.Board
	clk   *clock.FakeClock
	reg   *prometheus.Registry
}

func newHarness(t *testing.T, devices ...camera.Device) *harness {
	t.Helper()
	if devices == nil {
		devices = []camera.Device{{ID: "front"}, {ID: "rear"}}
	}
	h := &harness{
		cam:   &fakeCamera{devices: devices},
		ver:   new(mocks.MockVerifier),
		board: present.NewBoard(),
		clk:   clock.NewFake(time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)),
		reg:   prometheus.NewRegistry(),
	}
	col, err := metrics.NewCollector(h.reg)
	require.NoError(t, err)

	h.w = New(h.cam, h.ver, present.NewPresenter(h.board, nil, h.clk), NewDoorSelector("main"), Options{
		Capture: camera.Capture{FPS: 10, BoxWidth: 250, BoxHeight: 250},
		Clock:   h.clk,
		Metrics: col,
	})
	t.Cleanup(func() { _ = h.w.Stop() })
	return h
}

func startedHarness(t *testing.T) *harness {
	t.Helper()
	h := newHarness(t)
	require.NoError(t, h.w.Start(context.Background()))
	return h
}

func (h *harness) waitState(t *testing.T, s State) {
	t.Helper()
	require.Eventually(t, func() bool { return h.w.State().State == s }, 2*time.Second, time.Millisecond)
}

func TestWorkflow_StartPicksLastCamera(t *testing.T) {
	h := startedHarness(t)

	snap := h.w.State()
	assert.Equal(t, StateIdle, snap.State)
	assert.True(t, snap.CameraActive)
	assert.Equal(t, "rear", snap.Device)
	assert.Equal(t, "rear", h.cam.started)
	assert.Equal(t, camera.Capture{FPS: 10, BoxWidth: 250, BoxHeight: 250}, h.cam.capture)
	assert.False(t, h.board.Current().Visible, "status hidden once scanning")

	assert.ErrorIs(t, h.w.Start(context.Background()), ErrNotInitializing)
}

func TestWorkflow_StartFaults(t *testing.T) {
	tests := []struct {
		name        string
		setup       func(c *fakeCamera)
		wantMessage string
		wantErr     error
	}{
		{
			name:        "enumeration error",
			setup:       func(c *fakeCamera) { c.devicesErr = errors.New("permission denied") },
			wantMessage: "No se pudo obtener la lista de cámaras: permission denied",
		},
		{
			name:        "no cameras",
			setup:       func(c *fakeCamera) { c.devices = []camera.Device{} },
			wantMessage: "No se encontró ninguna cámara en este dispositivo.",
			wantErr:     ErrCameraUnavailable,
		},
		{
			name:        "start error",
			setup:       func(c *fakeCamera) { c.startErr = errors.New("device busy") },
			wantMessage: "Error al iniciar la cámara: device busy",
			wantErr:     ErrCameraUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			tt.setup(h.cam)

			err := h.w.Start(context.Background())
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}

			snap := h.w.State()
			assert.Equal(t, StateFaulted, snap.State)
			assert.False(t, snap.CameraActive)
			assert.Equal(t, tt.wantMessage, snap.Fault)

			v := h.board.Current()
			assert.True(t, v.Visible)
			assert.Equal(t, present.ToneFailure, v.Tone)
			assert.Equal(t, tt.wantMessage, v.Message)

			// Faulted never scans.
			h.w.HandleDecode(`{"id":"S1"}`)
			h.ver.AssertNotCalled(t, "Verify", mock.Anything, mock.Anything)
		})
	}
}

func TestWorkflow_ReloadRecoversFromFault(t *testing.T) {
	h := newHarness(t)
	h.cam.devices = nil
	require.ErrorIs(t, h.w.Start(context.Background()), ErrCameraUnavailable)
	assert.Equal(t, StateFaulted, h.w.State().State)

	h.cam.mu.Lock()
	h.cam.devices = []camera.Device{{ID: "usb-reader"}}
	h.cam.mu.Unlock()

	require.NoError(t, h.w.Reload(context.Background()))
	snap := h.w.State()
	assert.Equal(t, StateIdle, snap.State)
	assert.Empty(t, snap.Fault)
	assert.Equal(t, "usb-reader", snap.Device)
}

func TestWorkflow_AcceptedScanShowsPhoto(t *testing.T) {
	h := startedHarness(t)
	want := model.ScanRequest{StudentID: model.StringID("S123"), Door: "main"}
	h.ver.On("Verify", mock.Anything, want).Return(model.Success("Welcome", model.Student{
		Name: "Ana", Course: "5B", PhotoURL: "/p.jpg",
	})).Once()

	h.cam.deliver(`{"id":"S123"}`)
	h.waitState(t, StatePresentingResult)

	v := h.board.Current()
	assert.Equal(t, present.ToneSuccess, v.Tone)
	assert.Equal(t, "Welcome", v.Message)
	assert.Equal(t, "Nombre: Ana | Curso: 5B", v.Details)
	assert.Equal(t, "/p.jpg", v.PhotoURL)
	assert.True(t, v.PhotoVisible)
	assert.False(t, v.PlaceholderVisible)
	assert.NotEmpty(t, h.w.State().LastScanID)
	h.ver.AssertExpectations(t)
}

func TestWorkflow_MalformedPayloadSkipsVerification(t *testing.T) {
	h := startedHarness(t)

	h.cam.deliver(`{}`)

	// Presented synchronously, without a verification call.
	assert.Equal(t, StatePresentingResult, h.w.State().State)
	v := h.board.Current()
	assert.Equal(t, present.ToneFailure, v.Tone)
	assert.Equal(t, verify.MsgInvalidPayload, v.Message)
	assert.True(t, h.cam.isPaused())
	h.ver.AssertNotCalled(t, "Verify", mock.Anything, mock.Anything)

	h.clk.Advance(2 * time.Second)
	assert.False(t, h.cam.isPaused(), "resumes after the normal delay")

	n, err := testutil.GatherAndCount(h.reg, "exitscan_scans_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestWorkflow_PausesBeforeVerifying(t *testing.T) {
	h := startedHarness(t)
	h.ver.On("Verify", mock.Anything, mock.Anything).Run(func(mock.Arguments) {
		assert.True(t, h.cam.isPaused(), "camera paused before the request")
		assert.Equal(t, StateAwaitingVerification, h.w.State().State)
	}).Return(model.Failure("no")).Once()

	h.cam.deliver(`{"id":7}`)
	h.waitState(t, StatePresentingResult)
	h.ver.AssertExpectations(t)
}

func TestWorkflow_OneScanInPlayUntilResume(t *testing.T) {
	h := startedHarness(t)

	release := make(chan struct{})
	var calls, inFlight, maxInFlight atomic.Int32
	track := func(mock.Arguments) {
		calls.Add(1)
		n := inFlight.Add(1)
		if n > maxInFlight.Load() {
			maxInFlight.Store(n)
		}
	}
	h.ver.On("Verify", mock.Anything, mock.MatchedBy(func(r model.ScanRequest) bool {
		return r.StudentID.String() == "S1"
	})).Run(func(args mock.Arguments) {
		track(args)
		<-release
		inFlight.Add(-1)
	}).Return(model.Failure("Fuera de horario")).Once()
	h.ver.On("Verify", mock.Anything, mock.MatchedBy(func(r model.ScanRequest) bool {
		return r.StudentID.String() == "S3"
	})).Run(func(args mock.Arguments) {
		track(args)
		inFlight.Add(-1)
	}).Return(model.Failure("no")).Once()

	h.cam.deliver(`{"id":"S1"}`)
	require.Equal(t, StateAwaitingVerification, h.w.State().State)

	// Decodes while the request is outstanding are dropped.
	h.cam.deliver(`{"id":"S2"}`)
	h.cam.deliver(`{}`)
	assert.Equal(t, StateAwaitingVerification, h.w.State().State)

	close(release)
	h.waitState(t, StatePresentingResult)

	// Still paused until the resume task fires.
	h.clk.Advance(2*time.Second - time.Millisecond)
	h.cam.deliver(`{"id":"S2"}`)
	assert.True(t, h.cam.isPaused())
	pauses, resumes := h.cam.counts()
	assert.Equal(t, 1, pauses)
	assert.Equal(t, 0, resumes)

	h.clk.Advance(time.Millisecond)
	assert.False(t, h.cam.isPaused())
	_, resumes = h.cam.counts()
	assert.Equal(t, 1, resumes)

	h.cam.deliver(`{"id":"S3"}`)
	require.Eventually(t, func() bool {
		return calls.Load() == 2 && h.w.State().State == StatePresentingResult
	}, 2*time.Second, time.Millisecond)

	assert.Equal(t, int32(1), maxInFlight.Load())
	h.ver.AssertExpectations(t)
}

func TestWorkflow_AutoClearAfterDisplayDuration(t *testing.T) {
	for _, res := range []model.Result{
		model.Success("ok", model.Student{Name: "Ana", Course: "5B"}),
		model.Failure("Estudiante no encontrado"),
	} {
		t.Run(string(res.Outcome), func(t *testing.T) {
			h := startedHarness(t)
			h.ver.On("Verify", mock.Anything, mock.Anything).Return(res).Once()

			h.cam.deliver(`{"id":"S1"}`)
			h.waitState(t, StatePresentingResult)

			h.clk.Advance(5*time.Second - time.Millisecond)
			assert.True(t, h.board.Current().Visible)
			assert.Equal(t, StatePresentingResult, h.w.State().State)

			h.clk.Advance(time.Millisecond)
			v := h.board.Current()
			assert.False(t, v.Visible)
			assert.False(t, v.PhotoVisible)
			assert.True(t, v.PlaceholderVisible)
			assert.Equal(t, StateIdle, h.w.State().State)
		})
	}
}

func TestWorkflow_StaleHideIgnoredAfterNewScan(t *testing.T) {
	h := startedHarness(t)
	h.ver.On("Verify", mock.Anything, mock.MatchedBy(func(r model.ScanRequest) bool {
		return r.StudentID.String() == "S1"
	})).Return(model.Failure("primero")).Once()
	h.ver.On("Verify", mock.Anything, mock.MatchedBy(func(r model.ScanRequest) bool {
		return r.StudentID.String() == "S2"
	})).Return(model.Failure("segundo")).Once()

	h.cam.deliver(`{"id":"S1"}`)
	h.waitState(t, StatePresentingResult)
	first := h.w.State().LastScanID

	h.clk.Advance(2 * time.Second)
	h.cam.deliver(`{"id":"S2"}`)
	require.Eventually(t, func() bool {
		s := h.w.State()
		return s.State == StatePresentingResult && s.LastScanID != first
	}, 2*time.Second, time.Millisecond)

	// The first scan's hide is due now and must not clear the second result.
	h.clk.Advance(3 * time.Second)
	assert.Equal(t, StatePresentingResult, h.w.State().State)
	assert.Equal(t, "segundo", h.board.Current().Message)
	assert.True(t, h.board.Current().Visible)

	h.clk.Advance(2 * time.Second)
	assert.Equal(t, StateIdle, h.w.State().State)
	assert.False(t, h.board.Current().Visible)
}

func TestWorkflow_DoorReadAtScanTime(t *testing.T) {
	h := startedHarness(t)
	h.w.Doors().Set("north")
	h.ver.On("Verify", mock.Anything, model.ScanRequest{StudentID: model.StringID("S1"), Door: "north"}).
		Return(model.Failure("no")).Once()

	h.cam.deliver(`{"id":"S1"}`)
	h.waitState(t, StatePresentingResult)
	h.ver.AssertExpectations(t)
	assert.Equal(t, "north", h.w.State().Door)
}

func TestWorkflow_DecodeBeforeStartDropped(t *testing.T) {
	h := newHarness(t)
	h.w.HandleDecode(`{"id":"S1"}`)

	assert.Equal(t, StateInitializing, h.w.State().State)
	pauses, _ := h.cam.counts()
	assert.Zero(t, pauses)
}

func TestWorkflow_StopDiscardsInFlight(t *testing.T) {
	h := startedHarness(t)
	called := make(chan struct{})
	h.ver.On("Verify", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		close(called)
		<-args.Get(0).(context.Context).Done()
	}).Return(model.Failure(verify.MsgConnectionError)).Once()

	h.cam.deliver(`{"id":"S1"}`)
	select {
	case <-called:
	case <-time.After(2 * time.Second):
		t.Fatal("verification never started")
	}

	require.NoError(t, h.w.Stop())
	assert.False(t, h.w.State().CameraActive)
	assert.NotEqual(t, StatePresentingResult, h.w.State().State)
	assert.False(t, h.board.Current().Visible, "abandoned result never presented")
}

func TestDoorSelector(t *testing.T) {
	d := NewDoorSelector("")
	assert.Empty(t, d.Current())
	d.Set("gym")
	assert.Equal(t, "gym", d.Current())
}
