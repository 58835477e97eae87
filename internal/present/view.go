// Package present renders scan results for the kiosk page and plays the
// matching audio cue.
package present

import (
	"sync"
	"time"
)

// Tone is the visual style of the status region.
type Tone string

const (
	ToneInitializing Tone = "initializing"
	ToneSuccess      Tone = "success"
	ToneFailure      Tone = "failure"
)

// View is everything the kiosk page needs to draw the status region and the
// photo slot.
type View struct {
	Visible            bool      `json:"visible"`
	Tone               Tone      `json:"tone,omitempty"`
	Message            string    `json:"message"`
	Details            string    `json:"details"`
	PhotoURL           string    `json:"photo_url,omitempty"`
	PhotoVisible       bool      `json:"photo_visible"`
	PlaceholderVisible bool      `json:"placeholder_visible"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// Display receives rendered views.
type Display interface {
	Render(v View)
}

// Board is the production Display. It keeps the latest View for the page to
// poll.
type Board struct {
	mu   sync.RWMutex
	view View
}

// NewBoard returns a Board showing only the photo placeholder.
func NewBoard() *Board {
	return &Board{view: View{PlaceholderVisible: true}}
}

func (b *Board) Render(v View) {
	b.mu.Lock()
	b.view = v
	b.mu.Unlock()
}

// Current returns the last rendered view.
func (b *Board) Current() View {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.view
}
