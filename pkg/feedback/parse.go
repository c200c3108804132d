package feedback

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	apperrors "github.com/chromatrack/chromatrack/pkg/errors"
)

// FormatEstimate renders a coordinate estimate in the "(x, y)" wire shape
func FormatEstimate(x, y int) string {
	return fmt.Sprintf("(%d, %d)", x, y)
}

// ParseEstimate parses a "(x, y)" pair into floats. The grammar is strict:
// exactly one parenthesized pair of finite decimal numbers. Peer payloads
// are data, never code; anything outside the grammar is rejected.
func ParseEstimate(s string) (x, y float64, err error) {
	raw := strings.TrimSpace(s)
	if len(raw) < 2 || raw[0] != '(' || raw[len(raw)-1] != ')' {
		return 0, 0, apperrors.NewAppErrorf(apperrors.ErrCodeFeedbackParse, "estimate %q is not a parenthesized pair", clip(s))
	}
	body := raw[1 : len(raw)-1]
	for _, r := range body {
		if !isEstimateRune(r) {
			return 0, 0, apperrors.NewAppErrorf(apperrors.ErrCodeFeedbackParse, "estimate contains illegal character %q", r)
		}
	}
	fields := strings.Split(body, ",")
	if len(fields) != 2 {
		return 0, 0, apperrors.NewAppErrorf(apperrors.ErrCodeFeedbackParse, "estimate has %d fields, want 2", len(fields))
	}
	if x, err = parseCoordinate(fields[0]); err != nil {
		return 0, 0, err
	}
	if y, err = parseCoordinate(fields[1]); err != nil {
		return 0, 0, err
	}
	return x, y, nil
}

// TrackingError is the Euclidean distance in pixels between an estimate
// and the ground truth.
func TrackingError(estX, estY, truthX, truthY float64) float64 {
	return math.Hypot(estX-truthX, estY-truthY)
}

func parseCoordinate(field string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
	if err != nil {
		return 0, apperrors.WrapError(apperrors.ErrCodeFeedbackParse, err)
	}
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return 0, apperrors.NewAppErrorf(apperrors.ErrCodeFeedbackParse, "coordinate %v is not finite", v)
	}
	return v, nil
}

func isEstimateRune(r rune) bool {
	switch {
	case r >= '0' && r <= '9':
		return true
	case r == '.' || r == '-' || r == '+' || r == ',' || r == ' ' || r == 'e' || r == 'E':
		return true
	}
	return false
}

func clip(s string) string {
	if len(s) <= 64 {
		return s
	}
	return s[:64] + "..."
}
