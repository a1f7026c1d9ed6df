package anim

import (
	"fmt"
	"math/rand"

	"github.com/itsdarik/resonate/huestream"
)

// TransitionKind names the rule a phase uses to change channel colors.
type TransitionKind uint8

const (
	// Hold leaves the frame unchanged.
	Hold TransitionKind = iota
	// FadeColor eases every channel from one color to another.
	FadeColor
	// FadeBrightness eases the brightness of every channel, keeping
	// chromaticity.
	FadeBrightness
	// RandomFlicker turns each channel on and off independently at random.
	RandomFlicker
	// RandomFlickerAcrossChannels flickers all channels together with one
	// shared random color.
	RandomFlickerAcrossChannels
	// Blackout turns every channel off.
	Blackout
)

var transitionNames = [...]string{
	Hold:                        "hold",
	FadeColor:                   "fade-color",
	FadeBrightness:              "fade-brightness",
	RandomFlicker:               "random-flicker",
	RandomFlickerAcrossChannels: "random-flicker-across",
	Blackout:                    "blackout",
}

// String returns a string representation of the transition kind.
func (k TransitionKind) String() string {
	if int(k) < len(transitionNames) {
		return transitionNames[k]
	}
	return fmt.Sprintf("TransitionKind(%d)", k)
}

// ParseTransitionKind parses the string form of a transition kind.
func ParseTransitionKind(s string) (TransitionKind, error) {
	for k, name := range transitionNames {
		if name == s {
			return TransitionKind(k), nil
		}
	}
	return 0, fmt.Errorf("unknown transition %q", s)
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *TransitionKind) UnmarshalText(text []byte) error {
	v, err := ParseTransitionKind(string(text))
	if err != nil {
		return err
	}
	*k = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (k TransitionKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Random flicker defaults.
const (
	DefaultOnInterval  = 4.0
	DefaultOffInterval = 0.5
)

// Transition describes how a phase renders. Only the fields relevant to Kind
// are used.
type Transition struct {
	Kind TransitionKind
	// From and To are the endpoints of FadeColor. FadeBrightness uses only
	// their brightness components.
	From, To huestream.Color
	// OnInterval is the mean time in seconds an off channel waits before
	// turning on during a random flicker.
	OnInterval float64
	// OffInterval is the mean time in seconds a lit channel waits before
	// turning off or changing color during a random flicker.
	OffInterval float64
}

// HoldTransition returns a transition that keeps the frame as is.
func HoldTransition() Transition { return Transition{Kind: Hold} }

// FadeTo returns a FadeColor transition.
func FadeTo(from, to huestream.Color) Transition {
	return Transition{Kind: FadeColor, From: from, To: to}
}

// FadeBrightnessTo returns a FadeBrightness transition.
func FadeBrightnessTo(from, to uint16) Transition {
	return Transition{
		Kind: FadeBrightness,
		From: huestream.Color{2: from},
		To:   huestream.Color{2: to},
	}
}

// Flicker returns a random flicker transition with the default intervals.
func Flicker(kind TransitionKind) Transition {
	return Transition{
		Kind:        kind,
		OnInterval:  DefaultOnInterval,
		OffInterval: DefaultOffInterval,
	}
}

// apply renders one tick of the transition into frame.
func (r *Renderer) apply(t *Transition, frame *huestream.Frame, progress float64) {
	switch t.Kind {
	case Hold:
	case FadeColor:
		frame.SetAll(InterpolateColor(t.From, t.To, progress))
	case FadeBrightness:
		frame.SetAllBrightness(Interpolate(t.From[2], t.To[2], progress))
	case RandomFlicker:
		for i := 0; i < frame.Count; i++ {
			frame.Set(i, r.flicker(t, frame.Channels[i].Color, frame.Space))
		}
	case RandomFlickerAcrossChannels:
		if frame.Count > 0 {
			frame.SetAll(r.flicker(t, frame.Channels[0].Color, frame.Space))
		}
	case Blackout:
		frame.SetAll(huestream.Color{})
	}
}

// flicker decides the next color of a single light.
func (r *Renderer) flicker(t *Transition, c huestream.Color, space huestream.ColorSpace) huestream.Color {
	if !c.IsOff(space) {
		if !r.chance(t.OffInterval) {
			return c
		}
		if r.rng.Intn(2) == 0 {
			return c.Off(space)
		}
		return r.randomColor()
	}

	if r.chance(t.OnInterval) {
		return r.randomColor()
	}
	return c
}

// chance returns true with a probability of one in interval*frameRate.
func (r *Renderer) chance(interval float64) bool {
	n := int(interval * r.frameRate)
	if n <= 1 {
		return true
	}
	return r.rng.Intn(n) == 0
}

func (r *Renderer) randomColor() huestream.Color {
	return huestream.Color{
		uint16(r.rng.Intn(huestream.MaxColorValue)),
		uint16(r.rng.Intn(huestream.MaxColorValue)),
		uint16(r.rng.Intn(huestream.MaxColorValue)),
	}
}

// newRand returns a seeded pseudo-random source.
func newRand(seed int64) *rand.Rand {
	return rand.New(rand.NewSource(seed))
}
