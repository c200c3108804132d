package render

import (
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	apperrors "github.com/chromatrack/chromatrack/pkg/errors"
	"github.com/chromatrack/chromatrack/pkg/media"
)

func TestNopRenderer(t *testing.T) {
	var r Renderer = NopRenderer{}
	if err := r.Render(media.NewFrame(4, 4, media.FormatRGB24), HUD{}); err != nil {
		t.Fatal(err)
	}
	if err := r.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestSnapshotRenderer(t *testing.T) {
	dir := t.TempDir()
	r, err := NewSnapshotRenderer(dir, nil, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	frame := media.NewFrame(120, 90, media.FormatRGB24)
	hud := HUD{Tick: 3, EstimateX: 60, EstimateY: 45, HasEstimate: true}
	if err := r.Render(frame, hud); err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(dir, "frame_000000.png")
	file, err := os.Open(path)
	if err != nil {
		t.Fatalf("snapshot missing: %v", err)
	}
	defer file.Close()

	img, err := png.Decode(file)
	if err != nil {
		t.Fatalf("snapshot not decodable: %v", err)
	}
	bounds := img.Bounds()
	if bounds.Dx() != 120 || bounds.Dy() != 90 {
		t.Fatalf("snapshot geometry %dx%d", bounds.Dx(), bounds.Dy())
	}

	t.Run("crosshair at estimate", func(t *testing.T) {
		c := color.RGBAModel.Convert(img.At(60, 45)).(color.RGBA)
		if c.R != 0xff || c.G != 0 {
			t.Errorf("pixel at estimate = %v, want red crosshair", c)
		}
	})

	t.Run("numbered sequence", func(t *testing.T) {
		if err := r.Render(frame, HUD{Tick: 4}); err != nil {
			t.Fatal(err)
		}
		if _, err := os.Stat(filepath.Join(dir, "frame_000001.png")); err != nil {
			t.Errorf("second snapshot missing: %v", err)
		}
		if r.Count() != 2 {
			t.Errorf("count = %d", r.Count())
		}
	})
}

func TestSnapshotRenderer_FailureReported(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "snaps")
	r, err := NewSnapshotRenderer(dir, nil, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	if err := os.RemoveAll(dir); err != nil {
		t.Fatal(err)
	}

	err = r.Render(media.NewFrame(8, 8, media.FormatRGB24), HUD{})
	if err == nil {
		t.Fatal("render into a removed directory succeeded")
	}
	appErr, ok := apperrors.AsAppError(err)
	if !ok || appErr.Code != apperrors.ErrCodeRenderFailed {
		t.Fatalf("unexpected error: %v", err)
	}
}
