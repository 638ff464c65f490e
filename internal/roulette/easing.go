package roulette

import (
	"fmt"
	"math"
)

// CubicBezier is a CSS timing function with fixed endpoints (0,0) and (1,1).
type CubicBezier struct {
	X1, Y1, X2, Y2 float64
}

var (
	// EaseIOS matches the deceleration of native iOS scroll views.
	EaseIOS = CubicBezier{0.25, 0.1, 0.25, 1}
	// EaseDefault front-loads the motion for Android and desktop clients.
	EaseDefault = CubicBezier{0.15, 0.7, 0.4, 1}
)

// EasingFor picks the curve for a platform flag.
func EasingFor(ios bool) CubicBezier {
	if ios {
		return EaseIOS
	}
	return EaseDefault
}

// CSS renders the curve as a transition-timing-function value.
func (c CubicBezier) CSS() string {
	return fmt.Sprintf("cubic-bezier(%g, %g, %g, %g)", c.X1, c.Y1, c.X2, c.Y2)
}

// MarshalText encodes the curve as its CSS value.
func (c CubicBezier) MarshalText() ([]byte, error) {
	return []byte(c.CSS()), nil
}

func bezier(p1, p2, s float64) float64 {
	inv := 1 - s
	return 3*inv*inv*s*p1 + 3*inv*s*s*p2 + s*s*s
}

func bezierSlope(p1, p2, s float64) float64 {
	inv := 1 - s
	return 3*inv*inv*p1 + 6*inv*s*(p2-p1) + 3*s*s*(1-p2)
}

// At returns animation progress for elapsed fraction t. t is clamped to
// [0, 1]; At(1) is exactly 1 so the strip reaches the planned offset.
func (c CubicBezier) At(t float64) float64 {
	if t <= 0 {
		return 0
	}
	if t >= 1 {
		return 1
	}

	s := t
	for i := 0; i < 8; i++ {
		dx := bezier(c.X1, c.X2, s) - t
		if math.Abs(dx) < 1e-7 {
			return bezier(c.Y1, c.Y2, s)
		}
		d := bezierSlope(c.X1, c.X2, s)
		if math.Abs(d) < 1e-6 {
			break
		}
		s -= dx / d
		if s < 0 || s > 1 {
			break
		}
	}

	lo, hi := 0.0, 1.0
	s = t
	for i := 0; i < 64; i++ {
		x := bezier(c.X1, c.X2, s)
		if math.Abs(x-t) < 1e-7 {
			break
		}
		if x < t {
			lo = s
		} else {
			hi = s
		}
		s = (lo + hi) / 2
	}
	return bezier(c.Y1, c.Y2, s)
}

// OffsetAt interpolates the strip offset between from and to.
func (c CubicBezier) OffsetAt(from, to, t float64) float64 {
	if t >= 1 {
		return to
	}
	return from + (to-from)*c.At(t)
}
