package anim

import (
	"sort"

	"github.com/pkg/errors"

	"github.com/itsdarik/resonate/huestream"
)

// Brightness levels.
const (
	BrightnessZero = 0x0000
	BrightnessLow  = 0x00f0
	BrightnessHalf = 0x7fff
	BrightnessMax  = 0xffff
)

// Chromaticity constants in the xy+brightness color space.
const (
	BlueX  = 0x38af
	BlueY  = 0x3134
	WhiteX = 0x50b0
	WhiteY = 0x55b6
)

// Names of the built-in shows.
const (
	DeepNote             = "deep-note"
	IntoTheSpiderVerse   = "into-the-spider-verse"
	AcrossTheSpiderVerse = "across-the-spider-verse"
)

// DeepNoteShow follows the THX Deep Note: black, a slow swell into blue, a
// crossfade to full white and a fade to black.
func DeepNoteShow() *Show {
	return &Show{
		Name:  DeepNote,
		Space: huestream.XYBrightness,
		Phases: []Phase{
			{0.0, HoldTransition()},
			{3.3, FadeTo(
				huestream.Color{BlueX, BlueY, BrightnessZero},
				huestream.Color{BlueX, BlueY, BrightnessHalf})},
			{6.3, HoldTransition()},
			{17.0, FadeTo(
				huestream.Color{BlueX, BlueY, BrightnessHalf},
				huestream.Color{WhiteX, WhiteY, BrightnessLow})},
			{19.0, FadeBrightnessTo(BrightnessLow, BrightnessMax)},
			{22.5, HoldTransition()},
			{28.0, FadeBrightnessTo(BrightnessMax, BrightnessZero)},
			{30.5, HoldTransition()},
		},
	}
}

// IntoTheSpiderVerseShow flickers every light independently in random colors.
func IntoTheSpiderVerseShow() *Show {
	return &Show{
		Name:  IntoTheSpiderVerse,
		Space: huestream.XYBrightness,
		Phases: []Phase{
			{0.0, HoldTransition()},
			{1.0, Flicker(RandomFlicker)},
			{30.0, HoldTransition()},
		},
	}
}

// AcrossTheSpiderVerseShow flickers all lights together in one random color
// before cutting to black.
func AcrossTheSpiderVerseShow() *Show {
	return &Show{
		Name:  AcrossTheSpiderVerse,
		Space: huestream.XYBrightness,
		Phases: []Phase{
			{0.0, HoldTransition()},
			{1.0, Flicker(RandomFlickerAcrossChannels)},
			{25.0, Transition{Kind: Blackout}},
			{26.0, HoldTransition()},
		},
	}
}

// Catalog is a set of shows addressable by name.
type Catalog struct {
	shows map[string]*Show
}

// NewCatalog creates a catalog holding the built-in shows.
func NewCatalog() *Catalog {
	c := &Catalog{shows: make(map[string]*Show)}
	for _, show := range []*Show{
		DeepNoteShow(),
		IntoTheSpiderVerseShow(),
		AcrossTheSpiderVerseShow(),
	} {
		c.shows[show.Name] = show
	}
	return c
}

// Add validates the show and adds it to the catalog, replacing any show with
// the same name.
func (c *Catalog) Add(show *Show) error {
	if err := show.Validate(); err != nil {
		return errors.Wrap(err, "invalid show")
	}
	c.shows[show.Name] = show
	return nil
}

// Get returns the show with the given name.
func (c *Catalog) Get(name string) (*Show, bool) {
	show, ok := c.shows[name]
	return show, ok
}

// Names returns the names of all shows in sorted order.
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.shows))
	for name := range c.shows {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
