// Package anim renders timed light shows into streaming frames.
package anim

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/pkg/errors"

	"github.com/itsdarik/resonate/huestream"
)

// ErrClock is returned when the elapsed show time cannot be read.
var ErrClock = errors.New("monotonic clock unavailable")

// Status is the state of a show after rendering a frame.
type Status int8

const (
	StatusError   Status = -1
	StatusEnded   Status = 0
	StatusRunning Status = 1
)

// String returns a string representation of the status.
func (s Status) String() string {
	switch s {
	case StatusError:
		return "error"
	case StatusEnded:
		return "ended"
	case StatusRunning:
		return "running"
	default:
		return fmt.Sprintf("Status(%d)", s)
	}
}

// Phase is a time-bounded segment of a show. A phase lasts from its Start
// until the Start of the next phase.
type Phase struct {
	// Start is the offset in seconds from the beginning of the show.
	Start float64
	Transition
}

// Show is a named sequence of phases in strictly ascending start order. The
// last phase only marks the end of the show and is never rendered.
type Show struct {
	Name   string
	Space  huestream.ColorSpace
	Phases []Phase
}

// Validate checks that the show has at least one phase and that phase start
// offsets strictly increase.
func (s *Show) Validate() error {
	if s.Name == "" {
		return errors.New("show has no name")
	}
	if len(s.Phases) == 0 {
		return fmt.Errorf("show %q has no phases", s.Name)
	}

	for i, p := range s.Phases {
		if i > 0 && p.Start <= s.Phases[i-1].Start {
			return fmt.Errorf(
				"show %q: phase %d starts at %gs, not after phase %d at %gs",
				s.Name, i, p.Start, i-1, s.Phases[i-1].Start)
		}
		if p.Kind == FadeBrightness && s.Space != huestream.XYBrightness {
			return fmt.Errorf("show %q: phase %d fades brightness in %s color space", s.Name, i, s.Space)
		}
	}

	return nil
}

// Duration returns the time at which the show ends.
func (s *Show) Duration() time.Duration {
	if len(s.Phases) == 0 {
		return 0
	}
	return time.Duration(s.Phases[len(s.Phases)-1].Start * float64(time.Second))
}

// Clock reports how much time passed since a show started.
type Clock interface {
	Elapsed() (time.Duration, error)
}

// Stopwatch is a Clock backed by the runtime's monotonic clock.
type Stopwatch struct {
	start time.Time
}

var _ Clock = (*Stopwatch)(nil)

// StartStopwatch starts a new stopwatch.
func StartStopwatch() *Stopwatch {
	return &Stopwatch{start: time.Now()}
}

// Elapsed implements Clock. It never fails.
func (s *Stopwatch) Elapsed() (time.Duration, error) {
	return time.Since(s.start), nil
}

// Renderer renders shows into frames. It owns the pseudo-random source used by
// random flicker transitions and is not safe for concurrent use.
type Renderer struct {
	rng       *rand.Rand
	frameRate float64
}

// NewRenderer creates a renderer whose random transitions are driven by the
// given seed and tuned for the given frame rate.
func NewRenderer(seed int64, frameRate float64) *Renderer {
	return &Renderer{
		rng:       newRand(seed),
		frameRate: frameRate,
	}
}

// Render renders the phase of the show active at elapsed seconds into frame.
// It returns StatusEnded, leaving the frame untouched, once elapsed reaches the
// start of the last phase or falls outside every phase.
func (r *Renderer) Render(show *Show, elapsed float64, frame *huestream.Frame) Status {
	for i := 0; i < len(show.Phases)-1; i++ {
		start := show.Phases[i].Start
		end := show.Phases[i+1].Start
		if elapsed >= start && elapsed < end {
			progress := (elapsed - start) / (end - start)
			r.apply(&show.Phases[i].Transition, frame, progress)
			return StatusRunning
		}
	}
	return StatusEnded
}

// RenderClock renders the show at the time reported by clock. It returns
// StatusError if the clock cannot be read.
func (r *Renderer) RenderClock(show *Show, clock Clock, frame *huestream.Frame) Status {
	elapsed, err := clock.Elapsed()
	if err != nil {
		return StatusError
	}
	return r.Render(show, elapsed.Seconds(), frame)
}
