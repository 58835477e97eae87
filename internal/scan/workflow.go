// Package scan implements the kiosk's scan workflow: it owns the camera
// between decode and resume, keeps at most one verification in flight, and
// schedules the resume and auto-hide tasks for every presented result.
package scan

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"exitscan/internal/camera"
	"exitscan/internal/clock"
	"exitscan/internal/metrics"
	"exitscan/internal/model"
	"exitscan/internal/verify"
)

// State is the workflow's position in its state machine.
type State string

const (
	StateInitializing         State = "initializing"
	StateIdle                 State = "idle"
	StateAwaitingVerification State = "awaiting_verification"
	StatePresentingResult     State = "presenting_result"
	StateFaulted              State = "faulted"
)

var allStates = []string{
	string(StateInitializing),
	string(StateIdle),
	string(StateAwaitingVerification),
	string(StatePresentingResult),
	string(StateFaulted),
}

// Status messages shown while the camera starts or after it failed.
const (
	MsgStarting        = "Iniciando cámara..."
	MsgNoCamera        = "No se encontró ninguna cámara en este dispositivo."
	msgStartFailed     = "Error al iniciar la cámara: %v"
	msgEnumerateFailed = "No se pudo obtener la lista de cámaras: %v"
)

var (
	// ErrCameraUnavailable is returned by Start when no camera could be used.
	ErrCameraUnavailable = errors.New("camera unavailable")
	// ErrNotInitializing is returned by Start when the workflow already ran it.
	ErrNotInitializing = errors.New("workflow already started")
)

// Renderer is the presentation side the workflow drives.
type Renderer interface {
	ShowStatus(message string, isError bool)
	Present(r model.Result)
	Hide()
}

// Options tunes a Workflow. Zero durations select the defaults.
type Options struct {
	Capture         camera.Capture
	ResumeDelay     time.Duration
	DisplayDuration time.Duration
	Clock           clock.Clock
	Metrics         *metrics.Collector
}

// Snapshot is a point-in-time view of the workflow for the HTTP surface.
type Snapshot struct {
	State        State  `json:"state"`
	CameraActive bool   `json:"camera_active"`
	Paused       bool   `json:"paused"`
	Device       string `json:"device,omitempty"`
	Door         string `json:"door"`
	LastScanID   string `json:"last_scan_id,omitempty"`
	Fault        string `json:"fault,omitempty"`
}

// Workflow is the scan state machine. Camera callbacks, verification results
// and timer tasks all serialise on mu, so transitions never interleave.
type Workflow struct {
	cam       camera.Capability
	verifier  verify.Verifier
	presenter Renderer
	doors     *DoorSelector
	opts      Options

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// initMu serialises Start, Reload and Stop.
	initMu sync.Mutex

	mu           sync.Mutex
	state        State
	cameraActive bool
	paused       bool
	device       string
	seq          uint64
	lastScanID   string
	fault        string
}

// New builds a Workflow in the Initializing state. Call Start to bring up the
// camera.
func New(cam camera.Capability, verifier verify.Verifier, presenter Renderer, doors *DoorSelector, opts Options) *Workflow {
	if opts.ResumeDelay <= 0 {
		opts.ResumeDelay = 2 * time.Second
	}
	if opts.DisplayDuration <= 0 {
		opts.DisplayDuration = 5 * time.Second
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if doors == nil {
		doors = NewDoorSelector("")
	}
	ctx, cancel := context.WithCancel(context.Background())
	w := &Workflow{
		cam:       cam,
		verifier:  verifier,
		presenter: presenter,
		doors:     doors,
		opts:      opts,
		ctx:       ctx,
		cancel:    cancel,
		state:     StateInitializing,
	}
	opts.Metrics.SetState(string(StateInitializing), allStates)
	return w
}

// Doors returns the door selector read at scan time.
func (w *Workflow) Doors() *DoorSelector { return w.doors }

// Start enumerates cameras, picks the last one and starts capture. Any
// failure leaves the workflow Faulted with the reason on screen.
func (w *Workflow) Start(ctx context.Context) error {
	w.initMu.Lock()
	defer w.initMu.Unlock()

	w.mu.Lock()
	if w.state != StateInitializing {
		w.mu.Unlock()
		return ErrNotInitializing
	}
	w.mu.Unlock()

	return w.initialize(ctx)
}

func (w *Workflow) initialize(ctx context.Context) error {
	w.presenter.ShowStatus(MsgStarting, false)

	devices, err := w.cam.Devices(ctx)
	if err != nil {
		w.faultWith(fmt.Sprintf(msgEnumerateFailed, err))
		return fmt.Errorf("enumerate cameras: %w", err)
	}
	dev, ok := camera.PickDevice(devices)
	if !ok {
		w.faultWith(MsgNoCamera)
		return ErrCameraUnavailable
	}

	if err := w.cam.Start(ctx, dev.ID, w.opts.Capture, w.HandleDecode, w.handleDecodeFailure); err != nil {
		w.faultWith(fmt.Sprintf(msgStartFailed, err))
		return fmt.Errorf("%w: start %s: %v", ErrCameraUnavailable, dev.ID, err)
	}

	w.mu.Lock()
	w.cameraActive = true
	w.paused = false
	w.device = dev.ID
	w.fault = ""
	w.setState(StateIdle)
	w.presenter.Hide()
	w.mu.Unlock()

	log.Info().Str("device", dev.ID).Int("devices", len(devices)).Msg("Camera ready, scanning")
	return nil
}

func (w *Workflow) faultWith(message string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.fault = message
	w.setState(StateFaulted)
	w.presenter.ShowStatus(message, true)
	log.Error().Str("fault", message).Msg("Camera initialisation failed")
}

// Reload discards the current session and initialises again, as an operator
// reloading the kiosk page would. Results of scans still in flight are
// discarded.
func (w *Workflow) Reload(ctx context.Context) error {
	w.initMu.Lock()
	defer w.initMu.Unlock()

	w.stopCamera()
	w.mu.Lock()
	w.setState(StateInitializing)
	w.mu.Unlock()

	log.Info().Msg("Reloading scan workflow")
	return w.initialize(ctx)
}

// Stop releases the camera, abandons in-flight verifications and waits for
// them to return.
func (w *Workflow) Stop() error {
	w.initMu.Lock()
	defer w.initMu.Unlock()

	err := w.stopCamera()
	w.cancel()
	w.wg.Wait()
	return err
}

func (w *Workflow) stopCamera() error {
	w.mu.Lock()
	// Outstanding results and timers belong to the old session.
	w.seq++
	active := w.cameraActive
	w.cameraActive = false
	w.paused = false
	w.device = ""
	w.mu.Unlock()

	if !active {
		return nil
	}
	// Called without mu: the capture goroutine may be blocked in HandleDecode.
	if err := w.cam.Stop(); err != nil && !errors.Is(err, camera.ErrNotStarted) {
		log.Warn().Err(err).Msg("Camera stop failed")
		return err
	}
	return nil
}

// State returns a snapshot of the workflow.
func (w *Workflow) State() Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	return Snapshot{
		State:        w.state,
		CameraActive: w.cameraActive,
		Paused:       w.paused,
		Device:       w.device,
		Door:         w.doors.Current(),
		LastScanID:   w.lastScanID,
		Fault:        w.fault,
	}
}

// HandleDecode is the camera's decode callback. A decode is accepted only
// while capture is running and not paused, in Idle or after the previous
// result's resume; everything else is dropped. Accepting a decode pauses the
// camera before the payload is even parsed.
func (w *Workflow) HandleDecode(text string) {
	w.mu.Lock()
	if !w.cameraActive || w.paused || (w.state != StateIdle && w.state != StatePresentingResult) {
		state := w.state
		w.mu.Unlock()
		log.Debug().Str("state", string(state)).Msg("Decode dropped")
		return
	}

	w.cam.Pause()
	w.paused = true
	w.seq++
	seq := w.seq
	scanID := uuid.NewString()
	w.lastScanID = scanID
	w.setState(StateAwaitingVerification)
	door := w.doors.Current()
	w.mu.Unlock()

	logger := log.With().Str("scan_id", scanID).Logger()

	id, err := model.ParsePayload(text)
	if err != nil {
		logger.Warn().Err(err).Msg("Rejected malformed payload")
		w.finish(seq, scanID, model.Failure(verify.MsgInvalidPayload), "invalid")
		return
	}

	logger.Info().Str("student_id", id.String()).Str("door", door).Msg("Verifying scan")
	req := model.ScanRequest{StudentID: id, Door: door}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		res := w.verifier.Verify(w.ctx, req)
		w.finish(seq, scanID, res, string(res.Outcome))
	}()
}

// handleDecodeFailure ignores frames without a code.
func (w *Workflow) handleDecodeFailure(error) {}

// finish presents the result of scan seq and schedules its resume and hide
// tasks. Results of superseded scans are discarded.
func (w *Workflow) finish(seq uint64, scanID string, res model.Result, outcome string) {
	w.mu.Lock()
	if seq != w.seq || w.state != StateAwaitingVerification {
		w.mu.Unlock()
		log.Debug().Str("scan_id", scanID).Msg("Discarded result of a superseded scan")
		return
	}
	w.setState(StatePresentingResult)
	w.presenter.Present(res)
	// Both delays are positive, so neither task runs before mu is released.
	w.opts.Clock.AfterFunc(w.opts.ResumeDelay, func() { w.resume(seq) })
	w.opts.Clock.AfterFunc(w.opts.DisplayDuration, func() { w.hide(seq) })
	w.opts.Metrics.RecordScan(outcome)
	w.mu.Unlock()

	log.Info().
		Str("scan_id", scanID).
		Str("outcome", outcome).
		Str("message", res.Message).
		Msg("Scan result presented")
}

func (w *Workflow) resume(seq uint64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if seq != w.seq || !w.cameraActive || !w.paused {
		return
	}
	w.paused = false
	w.cam.Resume()
}

func (w *Workflow) hide(seq uint64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if seq != w.seq || w.state != StatePresentingResult {
		return
	}
	w.presenter.Hide()
	w.setState(StateIdle)
}

// setState must be called with mu held.
func (w *Workflow) setState(s State) {
	w.state = s
	w.opts.Metrics.SetState(string(s), allStates)
}
