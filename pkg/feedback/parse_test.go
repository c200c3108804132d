package feedback

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/chromatrack/chromatrack/pkg/errors"
)

func TestFormatEstimate(t *testing.T) {
	assert.Equal(t, "(12, 18)", FormatEstimate(12, 18))
	assert.Equal(t, "(0, 0)", FormatEstimate(0, 0))
	assert.Equal(t, "(-5, 600)", FormatEstimate(-5, 600))
}

func TestParseEstimate(t *testing.T) {
	tests := []struct {
		name  string
		input string
		x, y  float64
	}{
		{"integers", "(12, 18)", 12, 18},
		{"decimals", "(12.5, 18.25)", 12.5, 18.25},
		{"padded", "  ( 10 ,  20 )  ", 10, 20},
		{"no inner spaces", "(7,9)", 7, 9},
		{"signed", "(-3, +4)", -3, 4},
		{"scientific", "(1e2, 2E1)", 100, 20},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			x, y, err := ParseEstimate(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.x, x)
			assert.Equal(t, tt.y, y)
		})
	}
}

func TestParseEstimate_RoundTrip(t *testing.T) {
	x, y, err := ParseEstimate(FormatEstimate(123, 456))
	require.NoError(t, err)
	assert.Equal(t, 123.0, x)
	assert.Equal(t, 456.0, y)
}

func TestParseEstimate_Rejects(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"bare pair", "12, 18"},
		{"unclosed", "(12, 18"},
		{"unopened", "12, 18)"},
		{"empty", ""},
		{"empty pair", "()"},
		{"one field", "(12)"},
		{"three fields", "(1, 2, 3)"},
		{"missing field", "(, 5)"},
		{"letters", "(a, b)"},
		{"hex", "(0x10, 2)"},
		{"infinity", "(Inf, 0)"},
		{"nan", "(NaN, 0)"},
		{"overflow", "(1e999, 0)"},
		{"semicolon", "(1; 2)"},
		{"code injection", "(__import__('os').system('id'), 0)"},
		{"nested parens", "((1), 2)"},
		{"interpolation", "(${x}, 2)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := ParseEstimate(tt.input)
			require.Error(t, err)

			appErr, ok := apperrors.AsAppError(err)
			require.True(t, ok)
			assert.Equal(t, apperrors.ErrCodeFeedbackParse, appErr.Code)
		})
	}
}

func TestTrackingError(t *testing.T) {
	assert.InDelta(t, math.Sqrt(8), TrackingError(12, 18, 10, 20), 1e-9)
	assert.Zero(t, TrackingError(42, 17, 42, 17))
	assert.InDelta(t, 5, TrackingError(3, 4, 0, 0), 1e-9)
}

func BenchmarkParseEstimate(b *testing.B) {
	for i := 0; i < b.N; i++ {
		if _, _, err := ParseEstimate("(123, 456)"); err != nil {
			b.Fatal(err)
		}
	}
}
