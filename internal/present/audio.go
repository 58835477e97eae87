package present

import (
	"context"
	"os/exec"
	"strings"

	"github.com/rs/zerolog/log"
)

// Cue names one of the result sounds.
type Cue string

const (
	CueSuccess Cue = "success"
	CueError   Cue = "error"
)

// Player starts playback of a cue. Play must not wait for playback to end.
type Player interface {
	Play(cue Cue) error
}

// CommandPlayer plays cue files by starting an external command such as
// "aplay -q" with the file appended as the last argument.
type CommandPlayer struct {
	argv  []string
	files map[Cue]string
}

// NewCommandPlayer parses command on whitespace. An empty command yields a
// player that does nothing.
func NewCommandPlayer(command, successFile, errorFile string) *CommandPlayer {
	return &CommandPlayer{
		argv: strings.Fields(command),
		files: map[Cue]string{
			CueSuccess: successFile,
			CueError:   errorFile,
		},
	}
}

// Play starts the command and returns once it is running. The process is
// reaped in the background.
func (p *CommandPlayer) Play(cue Cue) error {
	if len(p.argv) == 0 {
		return nil
	}
	file := p.files[cue]
	if file == "" {
		return nil
	}

	args := append(append([]string(nil), p.argv[1:]...), file)
	cmd := exec.CommandContext(context.Background(), p.argv[0], args...)
	if err := cmd.Start(); err != nil {
		return err
	}
	go func() {
		if err := cmd.Wait(); err != nil {
			log.Debug().Err(err).Str("cue", string(cue)).Msg("Audio cue exited with error")
		}
	}()
	return nil
}
