package vision

import (
	"math"
	"math/rand"

	"github.com/chromatrack/chromatrack/pkg/config"
	"github.com/chromatrack/chromatrack/pkg/media"
)

// Detection is one located target in frame coordinates. X and Y are the
// minimal enclosing circle center truncated to integers.
type Detection struct {
	X      int
	Y      int
	Radius float64
	Area   int
}

// Locate thresholds the frame against the color band, picks the largest
// 8-connected matching region, and centers a minimal enclosing circle on
// its boundary. ok is false when no pixel matches; partial occlusion or a
// small region still yields the best available center.
func Locate(f *media.Frame, band config.HSVBand) (Detection, bool) {
	w, h := f.Width, f.Height
	if w <= 0 || h <= 0 {
		return Detection{}, false
	}

	mask := make([]bool, w*h)
	any := false
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, b := f.PixelAt(x, y)
			hh, ss, vv := RGBToHSV(r, g, b)
			if InBand(hh, ss, vv, band) {
				mask[y*w+x] = true
				any = true
			}
		}
	}
	if !any {
		return Detection{}, false
	}

	best := largestComponent(mask, w, h)
	boundary := boundaryPoints(best, mask, w, h)
	c := minEnclosingCircle(boundary)

	return Detection{
		X:      int(c.x),
		Y:      int(c.y),
		Radius: c.r,
		Area:   len(best),
	}, true
}

// largestComponent returns the pixel indices of the biggest 8-connected
// region in the mask.
func largestComponent(mask []bool, w, h int) []int {
	visited := make([]bool, len(mask))
	var best []int

	var queue []int
	for start := range mask {
		if !mask[start] || visited[start] {
			continue
		}
		queue = queue[:0]
		queue = append(queue, start)
		visited[start] = true
		component := []int{start}

		for len(queue) > 0 {
			idx := queue[len(queue)-1]
			queue = queue[:len(queue)-1]
			x, y := idx%w, idx/w
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					if dx == 0 && dy == 0 {
						continue
					}
					nx, ny := x+dx, y+dy
					if nx < 0 || ny < 0 || nx >= w || ny >= h {
						continue
					}
					n := ny*w + nx
					if mask[n] && !visited[n] {
						visited[n] = true
						queue = append(queue, n)
						component = append(component, n)
					}
				}
			}
		}

		if len(component) > len(best) {
			best = component
		}
	}
	return best
}

// boundaryPoints keeps the component pixels with at least one exposed
// 4-neighbor; the minimal enclosing circle only depends on those.
func boundaryPoints(component []int, mask []bool, w, h int) []point {
	pts := make([]point, 0, len(component))
	for _, idx := range component {
		x, y := idx%w, idx/w
		if x == 0 || y == 0 || x == w-1 || y == h-1 ||
			!mask[idx-1] || !mask[idx+1] || !mask[idx-w] || !mask[idx+w] {
			pts = append(pts, point{float64(x), float64(y)})
		}
	}
	return pts
}

type point struct {
	x, y float64
}

type circle struct {
	x, y float64
	r    float64
}

func (c circle) contains(p point) bool {
	dx, dy := p.x-c.x, p.y-c.y
	return dx*dx+dy*dy <= c.r*c.r+1e-9
}

// minEnclosingCircle is Welzl's incremental construction. The result is
// unique, so the shuffle only affects the running time.
func minEnclosingCircle(pts []point) circle {
	if len(pts) == 0 {
		return circle{}
	}
	shuffled := make([]point, len(pts))
	copy(shuffled, pts)
	rand.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	c := circle{x: shuffled[0].x, y: shuffled[0].y}
	for i := 1; i < len(shuffled); i++ {
		if !c.contains(shuffled[i]) {
			c = circleWithPoint(shuffled[:i], shuffled[i])
		}
	}
	return c
}

func circleWithPoint(pts []point, q point) circle {
	c := circle{x: q.x, y: q.y}
	for i := range pts {
		if !c.contains(pts[i]) {
			c = circleWithTwoPoints(pts[:i], pts[i], q)
		}
	}
	return c
}

func circleWithTwoPoints(pts []point, p, q point) circle {
	c := circleFromTwo(p, q)
	for i := range pts {
		if !c.contains(pts[i]) {
			c = circleFromThree(pts[i], p, q)
		}
	}
	return c
}

func circleFromTwo(a, b point) circle {
	cx, cy := (a.x+b.x)/2, (a.y+b.y)/2
	return circle{x: cx, y: cy, r: math.Hypot(a.x-b.x, a.y-b.y) / 2}
}

func circleFromThree(a, b, c point) circle {
	bx, by := b.x-a.x, b.y-a.y
	cx, cy := c.x-a.x, c.y-a.y
	d := 2 * (bx*cy - by*cx)
	if math.Abs(d) < 1e-12 {
		// collinear: widest pair wins
		ab, ac, bc := circleFromTwo(a, b), circleFromTwo(a, c), circleFromTwo(b, c)
		widest := ab
		if ac.r > widest.r {
			widest = ac
		}
		if bc.r > widest.r {
			widest = bc
		}
		return widest
	}
	ux := (cy*(bx*bx+by*by) - by*(cx*cx+cy*cy)) / d
	uy := (bx*(cx*cx+cy*cy) - cx*(bx*bx+by*by)) / d
	return circle{x: a.x + ux, y: a.y + uy, r: math.Hypot(ux, uy)}
}
