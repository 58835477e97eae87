package present

import (
	"github.com/rs/zerolog/log"

	"exitscan/internal/clock"
	"exitscan/internal/model"
)

// Presenter turns statuses and results into views on a Display and plays the
// cue for each result.
type Presenter struct {
	display Display
	audio   Player
	clock   clock.Clock
}

// NewPresenter wires a Presenter. A nil audio player disables sound and a nil
// clock uses wall time.
func NewPresenter(display Display, audio Player, clk clock.Clock) *Presenter {
	if clk == nil {
		clk = clock.Real()
	}
	return &Presenter{display: display, audio: audio, clock: clk}
}

// ShowStatus shows an initialisation or fault message without sound.
func (p *Presenter) ShowStatus(message string, isError bool) {
	tone := ToneInitializing
	if isError {
		tone = ToneFailure
	}
	p.display.Render(View{
		Visible:            true,
		Tone:               tone,
		Message:            message,
		PlaceholderVisible: true,
		UpdatedAt:          p.clock.Now(),
	})
}

// Present shows a verification result and plays its cue. The photo is shown
// only for a success that carries a photo URL.
func (p *Presenter) Present(r model.Result) {
	v := View{
		Visible:   true,
		Tone:      ToneFailure,
		Message:   r.Message,
		UpdatedAt: p.clock.Now(),
	}
	cue := CueError
	if r.OK() {
		v.Tone = ToneSuccess
		v.Details = r.Details()
		cue = CueSuccess
		if r.Student.PhotoURL != "" {
			v.PhotoURL = r.Student.PhotoURL
			v.PhotoVisible = true
		}
	}
	v.PlaceholderVisible = !v.PhotoVisible

	p.display.Render(v)
	p.play(cue)
}

// Hide hides the status region and the photo and shows the placeholder.
func (p *Presenter) Hide() {
	p.display.Render(View{PlaceholderVisible: true, UpdatedAt: p.clock.Now()})
}

func (p *Presenter) play(cue Cue) {
	if p.audio == nil {
		return
	}
	if err := p.audio.Play(cue); err != nil {
		log.Warn().Err(err).Str("cue", string(cue)).Msg("Audio cue failed")
	}
}
