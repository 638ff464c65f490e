package lottie

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Color is a Lottie color: channels in [0, 1].
type Color struct {
	R, G, B, A float64
}

// ParseHex reads #rgb, #rrggbb or #rrggbbaa. Alpha defaults to 1.
func ParseHex(s string) (Color, error) {
	h := strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(h) == 3 {
		h = string([]byte{h[0], h[0], h[1], h[1], h[2], h[2]})
	}
	if len(h) != 6 && len(h) != 8 {
		return Color{}, fmt.Errorf("lottie: invalid hex color %q", s)
	}
	v, err := strconv.ParseUint(h, 16, 32)
	if err != nil {
		return Color{}, fmt.Errorf("lottie: invalid hex color %q: %w", s, err)
	}
	c := Color{A: 1}
	if len(h) == 8 {
		c.A = float64(v&0xff) / 255
		v >>= 8
	}
	c.R = float64(v>>16&0xff) / 255
	c.G = float64(v>>8&0xff) / 255
	c.B = float64(v&0xff) / 255
	return c, nil
}

// Hex renders the color as #rrggbb.
func (c Color) Hex() string {
	to := func(f float64) uint8 { return uint8(math.Round(clamp01(f) * 255)) }
	return fmt.Sprintf("#%02x%02x%02x", to(c.R), to(c.G), to(c.B))
}

// distance is the euclidean RGB distance, alpha ignored.
func (c Color) distance(o Color) float64 {
	dr, dg, db := c.R-o.R, c.G-o.G, c.B-o.B
	return math.Sqrt(dr*dr + dg*dg + db*db)
}

func clamp01(f float64) float64 {
	return math.Max(0, math.Min(1, f))
}

// colorFrom reads 3 or 4 channels.
func colorFrom(v []float64) (Color, bool) {
	if len(v) < 3 {
		return Color{}, false
	}
	c := Color{R: v[0], G: v[1], B: v[2], A: 1}
	if len(v) > 3 {
		c.A = v[3]
	}
	return c, true
}

// store writes c back keeping the original channel count.
func (c Color) store(v []float64) {
	v[0], v[1], v[2] = c.R, c.G, c.B
	if len(v) > 3 {
		v[3] = c.A
	}
}

// Swap replaces colors near From with To.
type Swap struct {
	From Color
	To   Color
}

// Palette maps source colors to replacements. A color is replaced by the
// To of the nearest Swap whose From lies within Tolerance; colors no swap
// matches get Fallback when it is set. Replacements keep the source alpha.
type Palette struct {
	Swaps     []Swap
	Tolerance float64
	Fallback  *Color
}

// Tint is the palette that paints every color c.
func Tint(c Color) Palette {
	return Palette{Fallback: &c}
}

// Map returns the replacement for c and whether c changes.
func (p Palette) Map(c Color) (Color, bool) {
	best, bestDist := -1, math.Inf(1)
	for i, s := range p.Swaps {
		if d := c.distance(s.From); d <= p.Tolerance && d < bestDist {
			best, bestDist = i, d
		}
	}
	var to Color
	switch {
	case best >= 0:
		to = p.Swaps[best].To
	case p.Fallback != nil:
		to = *p.Fallback
	default:
		return c, false
	}
	to.A = c.A
	return to, to != c
}
