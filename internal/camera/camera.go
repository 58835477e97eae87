// Package camera defines the capture capability the scan workflow drives and
// an adapter for QR readers that emit one decoded payload per line.
package camera

import (
	"context"
	"errors"
)

// ErrNotStarted is returned by Stop when no capture is running.
var ErrNotStarted = errors.New("camera not started")

// Device identifies one capture device as reported by the platform.
type Device struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// Capture carries the capture parameters passed to Start.
type Capture struct {
	FPS int
	// BoxWidth and BoxHeight size the detection region in pixels.
	BoxWidth  int
	BoxHeight int
}

// DecodeFunc receives the text of every frame that yielded a code.
type DecodeFunc func(text string)

// FailureFunc receives per-frame decode failures. These are ordinary frames
// without a code, not errors.
type FailureFunc func(err error)

// Capability is the external camera/decoder. Only the scan workflow may call
// Pause and Resume; while paused the capability must not deliver decodes.
type Capability interface {
	// Devices enumerates capture devices in platform order.
	Devices(ctx context.Context) ([]Device, error)
	// Start begins capture on the device and returns once frames flow.
	Start(ctx context.Context, deviceID string, capture Capture, onDecode DecodeFunc, onFailure FailureFunc) error
	Pause()
	Resume()
	Stop() error
}

// PickDevice applies the selection policy: the last enumerated device, which
// on typical orderings is the rear-facing camera. It reports false when the
// list is empty.
func PickDevice(devices []Device) (Device, bool) {
	if len(devices) == 0 {
		return Device{}, false
	}
	return devices[len(devices)-1], true
}
