package raster

import (
	"image"
	"image/color"
	"image/draw"

	"golang.org/x/image/vector"
)

// bezierCircleK is the control-point offset that makes four cubic Béziers
// trace a circle.
const bezierCircleK = 0.5522847498

// Fill paints the whole image with one solid color
func Fill(dst *image.RGBA, c color.RGBA) {
	draw.Draw(dst, dst.Bounds(), image.NewUniform(c), image.Point{}, draw.Src)
}

// FillCircle rasterizes an antialiased solid disc centered at (cx, cy).
// Geometry reaching past the image edge is clipped.
func FillCircle(dst *image.RGBA, cx, cy, r float64, c color.RGBA) {
	if r <= 0 {
		return
	}
	b := dst.Bounds()
	z := vector.NewRasterizer(b.Dx(), b.Dy())

	x, y := float32(cx), float32(cy)
	rf := float32(r)
	kf := float32(bezierCircleK * r)
	z.MoveTo(x+rf, y)
	z.CubeTo(x+rf, y+kf, x+kf, y+rf, x, y+rf)
	z.CubeTo(x-kf, y+rf, x-rf, y+kf, x-rf, y)
	z.CubeTo(x-rf, y-kf, x-kf, y-rf, x, y-rf)
	z.CubeTo(x+kf, y-rf, x+rf, y-kf, x+rf, y)
	z.ClosePath()
	z.Draw(dst, b, image.NewUniform(c), image.Point{})
}

// Cross draws a pixel-aligned crosshair marker with the given arm length
func Cross(dst *image.RGBA, x, y, arm int, c color.RGBA) {
	b := dst.Bounds()
	for dx := -arm; dx <= arm; dx++ {
		px := x + dx
		if px >= b.Min.X && px < b.Max.X && y >= b.Min.Y && y < b.Max.Y {
			dst.SetRGBA(px, y, c)
		}
	}
	for dy := -arm; dy <= arm; dy++ {
		py := y + dy
		if x >= b.Min.X && x < b.Max.X && py >= b.Min.Y && py < b.Max.Y {
			dst.SetRGBA(x, py, c)
		}
	}
}
