package anim

import (
	"math"

	"github.com/lucasb-eyer/go-colorful"

	"github.com/itsdarik/resonate/huestream"
)

// ParseHexColor parses a "#rrggbb" color into a triple in the given color
// space.
func ParseHexColor(hex string, space huestream.ColorSpace) (huestream.Color, error) {
	c, err := colorful.Hex(hex)
	if err != nil {
		return huestream.Color{}, err
	}
	return FromColorful(c, space), nil
}

// FromColorful converts a color into a triple in the given color space. In the
// xy+brightness space, brightness is the HSV value of the color.
func FromColorful(c colorful.Color, space huestream.ColorSpace) huestream.Color {
	c = c.Clamped()

	if space == huestream.RGB {
		return huestream.Color{scale(c.R), scale(c.G), scale(c.B)}
	}

	x, y, _ := c.Xyy()
	_, _, v := c.Hsv()
	return huestream.Color{scale(x), scale(y), scale(v)}
}

// ScaleUnit maps a value in [0, 1] onto the full component range.
func ScaleUnit(v float64) uint16 {
	return scale(v)
}

func scale(v float64) uint16 {
	v = math.Max(0, math.Min(1, v))
	return uint16(math.Round(v * huestream.MaxColorValue))
}
