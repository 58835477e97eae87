// Package verify submits scanned identifiers to the backend and turns every
// possible response, including transport failures, into a model.Result.
package verify

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"exitscan/internal/metrics"
	"exitscan/internal/model"
)

// Messages shown to the operator when the backend gave no usable message.
const (
	MsgConnectionError = "Error de conexión con el servidor."
	MsgInvalidPayload  = "Error: El formato del QR es inválido."
)

// maxBodyBytes caps how much of a response is read.
const maxBodyBytes = 1 << 20

// Verifier decides whether a scanned student may exit.
type Verifier interface {
	Verify(ctx context.Context, req model.ScanRequest) model.Result
}

// Options configures a Client.
type Options struct {
	// Origin and Path form the endpoint URL.
	Origin    string
	Path      string
	CSRFToken string
	// Timeout bounds one call. Zero means no bound.
	Timeout   time.Duration
	Transport http.RoundTripper
	Metrics   *metrics.Collector
}

// Client is the HTTP Verifier. It never retries.
type Client struct {
	endpoint string
	token    string
	timeout  time.Duration
	http     *http.Client
	metrics  *metrics.Collector
}

// NewClient builds a Client. The transport is wrapped with otelhttp.
func NewClient(opts Options) *Client {
	base := opts.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	return &Client{
		endpoint: opts.Origin + opts.Path,
		token:    opts.CSRFToken,
		timeout:  opts.Timeout,
		http:     &http.Client{Transport: otelhttp.NewTransport(base)},
		metrics:  opts.Metrics,
	}
}

// Endpoint returns the URL requests are posted to.
func (c *Client) Endpoint() string { return c.endpoint }

type responseBody struct {
	Success *bool          `json:"success"`
	Message string         `json:"message"`
	Student *model.Student `json:"student"`
}

// Verify posts req and maps the response. It never returns an error: every
// failure becomes a failed result carrying an operator-facing message.
func (c *Client) Verify(ctx context.Context, req model.ScanRequest) model.Result {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	start := time.Now()
	res := c.do(ctx, req)
	c.metrics.ObserveVerification(time.Since(start))
	return res
}

func (c *Client) do(ctx context.Context, req model.ScanRequest) model.Result {
	body, err := json.Marshal(req)
	if err != nil {
		log.Error().Err(err).Msg("Encode scan request")
		return model.Failure(MsgConnectionError)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		log.Error().Err(err).Str("endpoint", c.endpoint).Msg("Build scan request")
		return model.Failure(MsgConnectionError)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("X-CSRFToken", c.token)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		log.Warn().Err(err).Str("endpoint", c.endpoint).Msg("Verification request failed")
		return model.Failure(MsgConnectionError)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		log.Warn().Err(err).Int("status", resp.StatusCode).Msg("Read verification response")
		return model.Failure(MsgConnectionError)
	}

	var rb responseBody
	parseErr := json.Unmarshal(raw, &rb)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		log.Warn().Int("status", resp.StatusCode).Msg("Verification rejected by server")
		if parseErr == nil && rb.Message != "" {
			return model.Failure(rb.Message)
		}
		return model.Failure(MsgConnectionError)
	}

	if parseErr != nil || rb.Success == nil {
		log.Warn().Int("status", resp.StatusCode).Msg("Unreadable verification response")
		return model.Failure(MsgConnectionError)
	}
	if !*rb.Success {
		if rb.Message == "" {
			return model.Failure(MsgConnectionError)
		}
		return model.Failure(rb.Message)
	}
	if rb.Student == nil {
		log.Warn().Msg("Verification succeeded without a student")
		return model.Failure(MsgConnectionError)
	}
	return model.Success(rb.Message, *rb.Student)
}
