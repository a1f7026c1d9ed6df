package huestream

// MaxChannels is the maximum number of channels in a frame.
const MaxChannels = 20

// MaxColorValue is the largest value of a color component.
const MaxColorValue = 0xffff

// Color is a color triple. Its meaning depends on the color space: either
// red, green and blue, or x, y and brightness.
type Color [3]uint16

// Brightness returns the brightness component of an xy+brightness color.
func (c Color) Brightness() uint16 { return c[2] }

// IsOff reports whether the color is dark in the given color space. In the
// xy+brightness space only brightness counts.
func (c Color) IsOff(space ColorSpace) bool {
	if space == XYBrightness {
		return c.Brightness() == 0
	}
	return c == Color{}
}

// Off returns the color turned off. Chromaticity is kept in the
// xy+brightness space.
func (c Color) Off(space ColorSpace) Color {
	if space == XYBrightness {
		return Color{c[0], c[1], 0}
	}
	return Color{}
}

// Channel is a single addressable light in an entertainment configuration.
type Channel struct {
	ID    uint8
	Color Color
}

// Frame describes one instant of channel colors. It is a fixed-capacity array
// so that copying a Frame copies all of its channels.
type Frame struct {
	Channels [MaxChannels]Channel
	// Count is the number of active channels.
	Count int
	// Space is the color space the channel colors are expressed in.
	Space ColorSpace
}

// NewFrame creates a frame with n active channels. Channel IDs match their
// index and colors are initialized to black (off). n is clamped to
// [0, MaxChannels].
func NewFrame(n int) Frame {
	var f Frame
	f.Reset(n)
	return f
}

// Reset turns all channels off and sets the active channel count to n. The
// color space is kept.
func (f *Frame) Reset(n int) {
	if n < 0 {
		n = 0
	}
	if n > MaxChannels {
		n = MaxChannels
	}
	*f = Frame{Count: n, Space: f.Space}
	for i := range f.Channels {
		f.Channels[i].ID = uint8(i)
	}
}

// Active returns the active channels. Modifying the returned slice modifies
// the frame.
func (f *Frame) Active() []Channel {
	return f.Channels[:f.Count]
}

// Set sets the color of the channel at the given index.
func (f *Frame) Set(i int, c Color) {
	f.Channels[i].Color = c
}

// SetAll sets every active channel to the same color.
func (f *Frame) SetAll(c Color) {
	for i := 0; i < f.Count; i++ {
		f.Channels[i].Color = c
	}
}

// SetAllBrightness sets the brightness component of every active channel,
// leaving chromaticity unchanged.
func (f *Frame) SetAllBrightness(b uint16) {
	for i := 0; i < f.Count; i++ {
		f.Channels[i].Color[2] = b
	}
}

// IsOff reports whether every active channel is dark: zero brightness in the
// xy+brightness space, or all-zero components in RGB.
func (f *Frame) IsOff() bool {
	for _, ch := range f.Active() {
		if !ch.Color.IsOff(f.Space) {
			return false
		}
	}
	return true
}
