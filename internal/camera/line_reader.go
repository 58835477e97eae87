package camera

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"
)

// errEmptyLine is reported to the failure callback for blank reads.
var errEmptyLine = errors.New("no code in frame")

// OpenFunc opens a device for reading.
type OpenFunc func(id string) (io.ReadCloser, error)

// LineReader adapts serial and HID QR readers, which decode on the device and
// write each payload as a line, to the Capability interface. Every path
// matching Glob is a device.
type LineReader struct {
	Glob string
	Open OpenFunc

	paused atomic.Bool

	mu     sync.Mutex
	dev    io.ReadCloser
	done   chan struct{}
	active string
}

// NewLineReader returns a LineReader over the devices matching glob.
func NewLineReader(glob string) *LineReader {
	return &LineReader{
		Glob: glob,
		Open: func(id string) (io.ReadCloser, error) { return os.Open(id) },
	}
}

// Devices lists the matching device paths in lexical order.
func (r *LineReader) Devices(ctx context.Context) ([]Device, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	paths, err := filepath.Glob(r.Glob)
	if err != nil {
		return nil, fmt.Errorf("enumerate %s: %w", r.Glob, err)
	}
	sort.Strings(paths)
	devices := make([]Device, 0, len(paths))
	for _, p := range paths {
		devices = append(devices, Device{ID: p, Label: filepath.Base(p)})
	}
	return devices, nil
}

// Start opens the device and delivers lines until Stop or end of input.
// Capture parameters are logged only; the reader decodes on its own.
func (r *LineReader) Start(ctx context.Context, deviceID string, capture Capture, onDecode DecodeFunc, onFailure FailureFunc) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.dev != nil {
		return fmt.Errorf("camera already started on %s", r.active)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	dev, err := r.Open(deviceID)
	if err != nil {
		return fmt.Errorf("open %s: %w", deviceID, err)
	}
	r.dev = dev
	r.active = deviceID
	r.done = make(chan struct{})
	r.paused.Store(false)

	log.Info().
		Str("device", deviceID).
		Int("fps", capture.FPS).
		Int("boxWidth", capture.BoxWidth).
		Int("boxHeight", capture.BoxHeight).
		Msg("Capture started")

	go r.readLoop(dev, r.done, onDecode, onFailure)
	return nil
}

func (r *LineReader) readLoop(dev io.Reader, done chan struct{}, onDecode DecodeFunc, onFailure FailureFunc) {
	defer close(done)
	sc := bufio.NewScanner(dev)
	for sc.Scan() {
		text := strings.TrimSpace(sc.Text())
		if r.paused.Load() {
			continue
		}
		if text == "" {
			if onFailure != nil {
				onFailure(errEmptyLine)
			}
			continue
		}
		onDecode(text)
	}
	if err := sc.Err(); err != nil && !errors.Is(err, os.ErrClosed) {
		log.Warn().Err(err).Msg("Capture stopped")
	}
}

// Pause suppresses delivery until Resume. Lines read meanwhile are dropped.
func (r *LineReader) Pause() { r.paused.Store(true) }

// Resume re-enables delivery.
func (r *LineReader) Resume() { r.paused.Store(false) }

// Paused reports whether delivery is suppressed.
func (r *LineReader) Paused() bool { return r.paused.Load() }

// Stop closes the device and waits for the read loop to exit.
func (r *LineReader) Stop() error {
	r.mu.Lock()
	dev, done := r.dev, r.done
	r.dev, r.done, r.active = nil, nil, ""
	r.mu.Unlock()

	if dev == nil {
		return ErrNotStarted
	}
	err := dev.Close()
	<-done
	return err
}
