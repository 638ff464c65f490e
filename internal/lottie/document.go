// Package lottie models the parts of a Lottie animation document that carry
// color, so tab icons and stickers can be tinted to the host theme. Fields
// the package does not model survive a decode/encode round trip untouched.
package lottie

import (
	"encoding/json"
	"fmt"
)

// Document is a Lottie animation.
type Document struct {
	Version   string   `json:"v,omitempty"`
	Name      string   `json:"nm,omitempty"`
	FrameRate *float64 `json:"fr,omitempty"`
	InPoint   *float64 `json:"ip,omitempty"`
	OutPoint  *float64 `json:"op,omitempty"`
	Width     *float64 `json:"w,omitempty"`
	Height    *float64 `json:"h,omitempty"`
	Layers    []*Layer `json:"layers,omitempty"`
	Assets    []*Asset `json:"assets,omitempty"`

	raw map[string]json.RawMessage
}

// Asset is a precomposition; only its layers are modeled.
type Asset struct {
	ID     string   `json:"id,omitempty"`
	Layers []*Layer `json:"layers,omitempty"`

	raw map[string]json.RawMessage
}

// LayerShape is the layer type holding vector shapes.
const LayerShape = 4

type Layer struct {
	Type   *int     `json:"ty,omitempty"`
	Name   string   `json:"nm,omitempty"`
	Shapes []*Shape `json:"shapes,omitempty"`

	raw map[string]json.RawMessage
}

// Shape types with color.
const (
	ShapeGroup          = "gr"
	ShapeFill           = "fl"
	ShapeStroke         = "st"
	ShapeGradientFill   = "gf"
	ShapeGradientStroke = "gs"
)

type Shape struct {
	Type     string    `json:"ty,omitempty"`
	Name     string    `json:"nm,omitempty"`
	Items    []*Shape  `json:"it,omitempty"`
	Color    *Property `json:"c,omitempty"`
	Gradient *Gradient `json:"g,omitempty"`

	raw map[string]json.RawMessage
}

// Gradient holds Points color stops packed as offset,r,g,b quadruples at
// the start of Colors, optionally followed by opacity stops.
type Gradient struct {
	Points *int      `json:"p,omitempty"`
	Colors *Property `json:"k,omitempty"`

	raw map[string]json.RawMessage
}

// Property is an animatable value: a plain number array when Animated is
// 0 or absent, a keyframe list when it is 1.
type Property struct {
	Animated *int            `json:"a,omitempty"`
	Value    json.RawMessage `json:"k,omitempty"`

	raw map[string]json.RawMessage
}

func (p *Property) IsAnimated() bool {
	return p.Animated != nil && *p.Animated == 1
}

// Parse decodes a document.
func Parse(data []byte) (*Document, error) {
	var d Document
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("lottie: decode: %w", err)
	}
	return &d, nil
}

// Encode re-encodes d with unmodeled fields restored.
func Encode(d *Document) ([]byte, error) {
	b, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("lottie: encode: %w", err)
	}
	return b, nil
}

func rawFields(b []byte) (map[string]json.RawMessage, error) {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// withRaw overlays the modeled fields of known on the decoded original.
// Modeled fields that encode empty fall back to the original value.
func withRaw(raw map[string]json.RawMessage, known any) ([]byte, error) {
	b, err := json.Marshal(known)
	if err != nil || len(raw) == 0 {
		return b, err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(b, &fields); err != nil {
		return nil, err
	}
	out := make(map[string]json.RawMessage, len(raw)+len(fields))
	for k, v := range raw {
		out[k] = v
	}
	for k, v := range fields {
		out[k] = v
	}
	return json.Marshal(out)
}

func (d *Document) UnmarshalJSON(b []byte) error {
	type plain Document
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	raw, err := rawFields(b)
	if err != nil {
		return err
	}
	*d = Document(p)
	d.raw = raw
	return nil
}

func (d Document) MarshalJSON() ([]byte, error) {
	type plain Document
	return withRaw(d.raw, plain(d))
}

func (a *Asset) UnmarshalJSON(b []byte) error {
	type plain Asset
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	raw, err := rawFields(b)
	if err != nil {
		return err
	}
	*a = Asset(p)
	a.raw = raw
	return nil
}

func (a Asset) MarshalJSON() ([]byte, error) {
	type plain Asset
	return withRaw(a.raw, plain(a))
}

func (l *Layer) UnmarshalJSON(b []byte) error {
	type plain Layer
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	raw, err := rawFields(b)
	if err != nil {
		return err
	}
	*l = Layer(p)
	l.raw = raw
	return nil
}

func (l Layer) MarshalJSON() ([]byte, error) {
	type plain Layer
	return withRaw(l.raw, plain(l))
}

func (s *Shape) UnmarshalJSON(b []byte) error {
	type plain Shape
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	raw, err := rawFields(b)
	if err != nil {
		return err
	}
	*s = Shape(p)
	s.raw = raw
	return nil
}

func (s Shape) MarshalJSON() ([]byte, error) {
	type plain Shape
	return withRaw(s.raw, plain(s))
}

func (g *Gradient) UnmarshalJSON(b []byte) error {
	type plain Gradient
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	raw, err := rawFields(b)
	if err != nil {
		return err
	}
	*g = Gradient(p)
	g.raw = raw
	return nil
}

func (g Gradient) MarshalJSON() ([]byte, error) {
	type plain Gradient
	return withRaw(g.raw, plain(g))
}

func (p *Property) UnmarshalJSON(b []byte) error {
	type plain Property
	var v plain
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	raw, err := rawFields(b)
	if err != nil {
		return err
	}
	*p = Property(v)
	p.raw = raw
	return nil
}

func (p Property) MarshalJSON() ([]byte, error) {
	type plain Property
	return withRaw(p.raw, plain(p))
}
