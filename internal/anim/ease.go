package anim

import "github.com/itsdarik/resonate/huestream"

// Ease maps linear progress in [0, 1] to quadratic ease-in-out progress.
func Ease(progress float64) float64 {
	if progress < 0.5 {
		return 2 * progress * progress
	}
	return -1 + 2*progress*(2-progress)
}

// Interpolate eases from start to end. The result is truncated toward zero.
func Interpolate(start, end uint16, progress float64) uint16 {
	v := float64(start) + (float64(end)-float64(start))*Ease(progress)
	return uint16(int(v))
}

// InterpolateColor eases each component of a color independently.
func InterpolateColor(start, end huestream.Color, progress float64) huestream.Color {
	return huestream.Color{
		Interpolate(start[0], end[0], progress),
		Interpolate(start[1], end[1], progress),
		Interpolate(start[2], end[2], progress),
	}
}
