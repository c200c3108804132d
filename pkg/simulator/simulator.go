package simulator

import (
	"image"
	"image/color"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/chromatrack/chromatrack/pkg/config"
	"github.com/chromatrack/chromatrack/pkg/constants"
	"github.com/chromatrack/chromatrack/pkg/media"
	"github.com/chromatrack/chromatrack/pkg/raster"
)

// TargetState is one ground-truth sample of the simulated disc
type TargetState struct {
	Tick   int64
	X      float64
	Y      float64
	VelX   float64
	VelY   float64
	Radius float64
}

// MotionSimulator advances a disc across a fixed screen, reflecting off
// the walls. Motion is deterministic: the same scenario always produces
// the same trajectory. One goroutine drives Advance; State and Frame may
// be read concurrently.
type MotionSimulator struct {
	mu   sync.Mutex
	scn  config.Scenario
	x    float64
	y    float64
	vx   float64
	vy   float64
	tick int64

	frameDuration time.Duration
	fill          color.RGBA
	log           *zap.Logger
}

// New positions the disc at the scenario start state
func New(scn *config.Scenario, frameRate int, log *zap.Logger) *MotionSimulator {
	if frameRate <= 0 {
		frameRate = constants.DefaultFrameRate
	}
	return &MotionSimulator{
		scn:           *scn,
		x:             scn.StartX,
		y:             scn.StartY,
		vx:            scn.VelocityX,
		vy:            scn.VelocityY,
		frameDuration: time.Second / time.Duration(frameRate),
		fill:          color.RGBA{R: scn.TargetColor[0], G: scn.TargetColor[1], B: scn.TargetColor[2], A: 0xff},
		log:           log,
	}
}

// State returns the current ground truth without advancing
func (s *MotionSimulator) State() TargetState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot()
}

// Advance moves the disc one tick: the position shifts by the velocity,
// then each axis independently reflects and clamps against the walls so
// the disc always ends fully on screen.
func (s *MotionSimulator) Advance() TargetState {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.x += s.vx
	s.y += s.vy
	s.x, s.vx = bounce(s.x, s.vx, s.scn.Radius, float64(s.scn.ScreenWidth))
	s.y, s.vy = bounce(s.y, s.vy, s.scn.Radius, float64(s.scn.ScreenHeight))
	s.tick++
	return s.snapshot()
}

// Frame renders the current state as an RGB24 frame stamped with the tick
func (s *MotionSimulator) Frame() *media.Frame {
	s.mu.Lock()
	st := s.snapshot()
	s.mu.Unlock()

	img := image.NewRGBA(image.Rect(0, 0, s.scn.ScreenWidth, s.scn.ScreenHeight))
	raster.Fill(img, color.RGBA{A: 0xff})
	// drawn at the whole-pixel position even when a scenario uses
	// fractional velocities
	raster.FillCircle(img, math.Trunc(st.X), math.Trunc(st.Y), st.Radius, s.fill)

	f := media.FromRGBA(img).Convert(media.FormatRGB24)
	f.Timestamp = st.Tick
	f.Duration = s.frameDuration
	return f
}

// FrameDuration is the tick length at the configured frame rate
func (s *MotionSimulator) FrameDuration() time.Duration {
	return s.frameDuration
}

func (s *MotionSimulator) snapshot() TargetState {
	return TargetState{Tick: s.tick, X: s.x, Y: s.y, VelX: s.vx, VelY: s.vy, Radius: s.scn.Radius}
}

// bounce reflects one axis when the disc reaches a wall, clamping back
// into the [radius, limit-radius] band. Reaching the band edge exactly
// still flips the velocity.
func bounce(pos, vel, radius, limit float64) (float64, float64) {
	if pos <= radius {
		return radius, -vel
	}
	if pos >= limit-radius {
		return limit - radius, -vel
	}
	return pos, vel
}
