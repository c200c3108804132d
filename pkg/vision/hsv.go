package vision

import (
	"math"

	"github.com/chromatrack/chromatrack/pkg/config"
)

// RGBToHSV converts one pixel to 8-bit HSV with hue on the half-degree
// scale (0..180), matching the convention the threshold band is written
// in.
func RGBToHSV(r, g, b uint8) (h, s, v uint8) {
	rf, gf, bf := float64(r), float64(g), float64(b)
	max := math.Max(rf, math.Max(gf, bf))
	min := math.Min(rf, math.Min(gf, bf))

	v = uint8(max)
	if max == 0 {
		return 0, 0, v
	}
	delta := max - min
	s = uint8(math.Round(255 * delta / max))
	if delta == 0 {
		return 0, s, v
	}

	var deg float64
	switch max {
	case rf:
		deg = 60 * (gf - bf) / delta
	case gf:
		deg = 120 + 60*(bf-rf)/delta
	default:
		deg = 240 + 60*(rf-gf)/delta
	}
	if deg < 0 {
		deg += 360
	}
	h = uint8(math.Round(deg / 2))
	return h, s, v
}

// InBand reports whether the HSV triple lies inside the inclusive band
func InBand(h, s, v uint8, band config.HSVBand) bool {
	return h >= band.Lower[0] && h <= band.Upper[0] &&
		s >= band.Lower[1] && s <= band.Upper[1] &&
		v >= band.Lower[2] && v <= band.Upper[2]
}
