// Package coords maps pointer positions on a scaled preview back to the
// pixel space of the original image.
package coords

import (
	"fmt"
	"math"

	"github.com/menta2k/ocr-overlay/pkg/types"
)

// ErrInvalidDimensions is returned when a displayed or natural size is not positive
var ErrInvalidDimensions = fmt.Errorf("%w: dimensions must be positive", types.ErrValidation)

// ErrInvalidPoint is returned for a click that is NaN or infinite
var ErrInvalidPoint = fmt.Errorf("%w: click position must be finite", types.ErrValidation)

// Point is a position in either preview-local or original pixel space
type Point struct {
	X float64
	Y float64
}

// Size is a width/height pair
type Size struct {
	Width  float64
	Height float64
}

// Finite reports whether both coordinates are real numbers
func (p Point) Finite() bool {
	return !math.IsNaN(p.X) && !math.IsInf(p.X, 0) && !math.IsNaN(p.Y) && !math.IsInf(p.Y, 0)
}

// Valid reports whether both dimensions are positive
func (s Size) Valid() bool {
	return s.Width > 0 && s.Height > 0
}

// Scale returns the factors that convert displayed units to natural pixels
func Scale(displayed, natural Size) (float64, float64, error) {
	if !displayed.Valid() || !natural.Valid() {
		return 0, 0, ErrInvalidDimensions
	}
	return natural.Width / displayed.Width, natural.Height / displayed.Height, nil
}

// MapClickToOriginal converts a click relative to the preview's top-left
// corner into original-image pixel coordinates.
//
// Coordinates are rounded with math.Round (nearest, halves away from zero)
// and clamped to [0,natural.Width]x[0,natural.Height], since rounding at the
// far edge may overshoot by one pixel.
func MapClickToOriginal(click Point, displayed, natural Size) (int, int, error) {
	scaleX, scaleY, err := Scale(displayed, natural)
	if err != nil {
		return 0, 0, err
	}
	if !click.Finite() {
		return 0, 0, ErrInvalidPoint
	}

	x := clamp(math.Round(click.X*scaleX), 0, math.Round(natural.Width))
	y := clamp(math.Round(click.Y*scaleY), 0, math.Round(natural.Height))
	return int(x), int(y), nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
