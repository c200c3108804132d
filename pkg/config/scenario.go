package config

import (
	"os"

	"github.com/chromatrack/chromatrack/pkg/constants"
	apperrors "github.com/chromatrack/chromatrack/pkg/errors"
	"gopkg.in/yaml.v3"
)

// HSVBand is an inclusive detection band in OpenCV HSV ranges,
// each bound ordered [hue, saturation, value].
type HSVBand struct {
	Lower [3]uint8 `yaml:"lower"`
	Upper [3]uint8 `yaml:"upper"`
}

// Scenario describes the initial simulation state and the detection band.
// Loaded from YAML when SCENARIO_FILE is set, otherwise DefaultScenario.
type Scenario struct {
	ScreenWidth  int      `yaml:"screen_width"`
	ScreenHeight int      `yaml:"screen_height"`
	Radius       float64  `yaml:"radius"`
	StartX       float64  `yaml:"start_x"`
	StartY       float64  `yaml:"start_y"`
	VelocityX    float64  `yaml:"velocity_x"`
	VelocityY    float64  `yaml:"velocity_y"`
	TargetColor  [3]uint8 `yaml:"target_color"`
	Band         HSVBand  `yaml:"hsv_band"`
}

// DefaultScenario returns the stock bouncing green disc
func DefaultScenario() *Scenario {
	return &Scenario{
		ScreenWidth:  constants.DefaultScreenWidth,
		ScreenHeight: constants.DefaultScreenHeight,
		Radius:       constants.DefaultTargetRadius,
		StartX:       constants.DefaultStartX,
		StartY:       constants.DefaultStartY,
		VelocityX:    constants.DefaultVelocityX,
		VelocityY:    constants.DefaultVelocityY,
		TargetColor:  [3]uint8{0, 255, 0},
		Band: HSVBand{
			Lower: [3]uint8{constants.DefaultHueLower, constants.DefaultSatLower, constants.DefaultValLower},
			Upper: [3]uint8{constants.DefaultHueUpper, constants.DefaultSatUpper, constants.DefaultValUpper},
		},
	}
}

// LoadScenario reads a scenario file, filling unset fields from the default.
// An empty path returns the default scenario.
func LoadScenario(path string) (*Scenario, error) {
	sc := DefaultScenario()
	if path == "" {
		return sc, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.WrapError(apperrors.ErrCodeConfigNotFound, err)
	}
	if err := yaml.Unmarshal(data, sc); err != nil {
		return nil, apperrors.WrapError(apperrors.ErrCodeInvalidConfig, err)
	}
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	return sc, nil
}

// Validate rejects geometries the simulator cannot bounce inside
func (s *Scenario) Validate() error {
	if s.ScreenWidth <= 0 || s.ScreenHeight <= 0 {
		return apperrors.NewAppErrorf(apperrors.ErrCodeInvalidConfig, "screen %dx%d is not a canvas", s.ScreenWidth, s.ScreenHeight)
	}
	if s.Radius <= 0 {
		return apperrors.NewAppErrorf(apperrors.ErrCodeInvalidConfig, "radius %.1f must be positive", s.Radius)
	}
	if 2*s.Radius >= float64(s.ScreenWidth) || 2*s.Radius >= float64(s.ScreenHeight) {
		return apperrors.NewAppErrorf(apperrors.ErrCodeInvalidConfig, "radius %.1f does not fit a %dx%d screen", s.Radius, s.ScreenWidth, s.ScreenHeight)
	}
	return nil
}
