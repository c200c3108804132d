package render

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/golang/freetype"
	"github.com/golang/freetype/truetype"
	"go.uber.org/zap"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"

	apperrors "github.com/chromatrack/chromatrack/pkg/errors"
	"github.com/chromatrack/chromatrack/pkg/media"
	"github.com/chromatrack/chromatrack/pkg/metrics"
	"github.com/chromatrack/chromatrack/pkg/raster"
)

// HUD is the overlay state drawn onto a rendered frame
type HUD struct {
	Tick        int64
	EstimateX   int
	EstimateY   int
	HasEstimate bool
}

// Renderer consumes received frames for operator display. Rendering is
// best effort: a failed render never stops the pipeline.
type Renderer interface {
	Render(f *media.Frame, hud HUD) error
	Close() error
}

// NopRenderer discards frames; the headless default
type NopRenderer struct{}

func (NopRenderer) Render(*media.Frame, HUD) error { return nil }

func (NopRenderer) Close() error { return nil }

// SnapshotRenderer writes numbered PNG snapshots with a crosshair at the
// current estimate and a text HUD. Called from one pipeline goroutine.
type SnapshotRenderer struct {
	dir   string
	ctx   *freetype.Context
	mtr   *metrics.Metrics
	log   *zap.Logger
	count atomic.Int64
}

// NewSnapshotRenderer prepares the output directory and the HUD font
func NewSnapshotRenderer(dir string, mtr *metrics.Metrics, log *zap.Logger) (*SnapshotRenderer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, apperrors.WrapError(apperrors.ErrCodeRenderFailed, err)
	}
	fnt, err := truetype.Parse(goregular.TTF)
	if err != nil {
		return nil, apperrors.WrapError(apperrors.ErrCodeRenderFailed, err)
	}

	ctx := freetype.NewContext()
	ctx.SetDPI(72)
	ctx.SetFont(fnt)
	ctx.SetFontSize(14)
	ctx.SetHinting(font.HintingNone)

	return &SnapshotRenderer{dir: dir, ctx: ctx, mtr: mtr, log: log}, nil
}

// Render overlays the HUD and writes one snapshot file
func (r *SnapshotRenderer) Render(f *media.Frame, hud HUD) error {
	img := f.ToRGBA()
	if hud.HasEstimate {
		raster.Cross(img, hud.EstimateX, hud.EstimateY, 12, color.RGBA{R: 0xff, A: 0xff})
	}
	r.drawLabel(img, hudLabel(hud))

	n := r.count.Add(1) - 1
	path := filepath.Join(r.dir, fmt.Sprintf("frame_%06d.png", n))
	out, err := os.Create(path)
	if err != nil {
		if r.mtr != nil {
			r.mtr.RecordRenderFailure()
		}
		return apperrors.WrapError(apperrors.ErrCodeRenderFailed, err)
	}
	if err := png.Encode(out, img); err != nil {
		out.Close()
		if r.mtr != nil {
			r.mtr.RecordRenderFailure()
		}
		return apperrors.WrapError(apperrors.ErrCodeRenderFailed, err)
	}
	if err := out.Close(); err != nil {
		return apperrors.WrapError(apperrors.ErrCodeRenderFailed, err)
	}
	if r.mtr != nil {
		r.mtr.RecordSnapshot()
	}
	r.log.Debug("snapshot written", zap.String("path", path), zap.Int64("tick", hud.Tick))
	return nil
}

// Count reports how many snapshots were attempted
func (r *SnapshotRenderer) Count() int64 {
	return r.count.Load()
}

func (r *SnapshotRenderer) Close() error { return nil }

func (r *SnapshotRenderer) drawLabel(img *image.RGBA, text string) {
	r.ctx.SetClip(img.Bounds())
	r.ctx.SetDst(img)
	r.ctx.SetSrc(image.NewUniform(color.White))
	if _, err := r.ctx.DrawString(text, freetype.Pt(8, 20)); err != nil {
		r.log.Debug("hud label draw failed", zap.Error(err))
	}
}

func hudLabel(hud HUD) string {
	if !hud.HasEstimate {
		return fmt.Sprintf("tick %d  estimate pending", hud.Tick)
	}
	return fmt.Sprintf("tick %d  estimate (%d, %d)", hud.Tick, hud.EstimateX, hud.EstimateY)
}
