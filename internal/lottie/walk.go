package lottie

import (
	"encoding/json"
	"fmt"
)

// SiteKind tells which shape property a color belongs to.
type SiteKind string

const (
	SiteFill     SiteKind = "fill"
	SiteStroke   SiteKind = "stroke"
	SiteGradient SiteKind = "gradient"
)

// Site locates one color in the document.
type Site struct {
	Kind  SiteKind
	Layer string
	Shape string
	// Keyframe is the keyframe index, -1 for a static value.
	Keyframe int
	// Stop is the gradient stop index, -1 outside gradients.
	Stop int
}

// Visitor may modify the color in place; changes are written back.
type Visitor func(site Site, c *Color)

// Walk visits every fill, stroke and gradient-stop color in layers and
// precomposition assets, recursing into groups.
func Walk(d *Document, v Visitor) error {
	w := walker{visit: v}
	for _, l := range d.Layers {
		if err := w.layer(l); err != nil {
			return err
		}
	}
	for _, a := range d.Assets {
		if a == nil {
			continue
		}
		for _, l := range a.Layers {
			if err := w.layer(l); err != nil {
				return err
			}
		}
	}
	return nil
}

// Recolor applies p to every color and reports how many changed.
func Recolor(d *Document, p Palette) (int, error) {
	changed := 0
	err := Walk(d, func(_ Site, c *Color) {
		if to, ok := p.Map(*c); ok {
			*c = to
			changed++
		}
	})
	return changed, err
}

type walker struct {
	visit Visitor
}

func (w walker) layer(l *Layer) error {
	if l == nil {
		return nil
	}
	return w.shapes(l.Name, l.Shapes)
}

func (w walker) shapes(layer string, shapes []*Shape) error {
	for _, s := range shapes {
		if s == nil {
			continue
		}
		site := Site{Layer: layer, Shape: s.Name, Keyframe: -1, Stop: -1}
		var err error
		switch s.Type {
		case ShapeGroup:
			err = w.shapes(layer, s.Items)
		case ShapeFill, ShapeStroke:
			site.Kind = SiteFill
			if s.Type == ShapeStroke {
				site.Kind = SiteStroke
			}
			if s.Color != nil {
				err = w.property(s.Color, site, 0)
			}
		case ShapeGradientFill, ShapeGradientStroke:
			site.Kind = SiteGradient
			if s.Gradient != nil && s.Gradient.Colors != nil && s.Gradient.Points != nil {
				err = w.property(s.Gradient.Colors, site, *s.Gradient.Points)
			}
		}
		if err != nil {
			return fmt.Errorf("lottie: layer %q shape %q: %w", layer, s.Name, err)
		}
	}
	return nil
}

// property visits a static or keyframed color value. stops > 0 marks a
// packed gradient.
func (w walker) property(p *Property, site Site, stops int) error {
	if len(p.Value) == 0 {
		return nil
	}
	if !p.IsAnimated() {
		var v []float64
		if err := json.Unmarshal(p.Value, &v); err != nil {
			return fmt.Errorf("static color: %w", err)
		}
		if w.values(v, site, stops) {
			return encodeInto(&p.Value, v)
		}
		return nil
	}

	var frames []map[string]json.RawMessage
	if err := json.Unmarshal(p.Value, &frames); err != nil {
		return fmt.Errorf("keyframes: %w", err)
	}
	dirty := false
	for i, f := range frames {
		site.Keyframe = i
		for _, key := range []string{"s", "e"} {
			raw, ok := f[key]
			if !ok {
				continue
			}
			var v []float64
			if err := json.Unmarshal(raw, &v); err != nil {
				return fmt.Errorf("keyframe %d %s: %w", i, key, err)
			}
			if !w.values(v, site, stops) {
				continue
			}
			enc, err := json.Marshal(v)
			if err != nil {
				return err
			}
			f[key] = enc
			dirty = true
		}
	}
	if dirty {
		return encodeInto(&p.Value, frames)
	}
	return nil
}

// values visits the colors packed in v and reports whether any changed.
func (w walker) values(v []float64, site Site, stops int) bool {
	if stops <= 0 {
		c, ok := colorFrom(v)
		if !ok {
			return false
		}
		before := c
		w.visit(site, &c)
		if c == before {
			return false
		}
		c.store(v)
		return true
	}

	changed := false
	for i := 0; i < stops && 4*i+3 < len(v); i++ {
		site.Stop = i
		rgb := v[4*i+1 : 4*i+4]
		c := Color{R: rgb[0], G: rgb[1], B: rgb[2], A: 1}
		before := c
		w.visit(site, &c)
		if c != before {
			rgb[0], rgb[1], rgb[2] = c.R, c.G, c.B
			changed = true
		}
	}
	return changed
}

func encodeInto(dst *json.RawMessage, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	*dst = b
	return nil
}
