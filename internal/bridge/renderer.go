package bridge

import (
	"errors"
	"sync"
	"time"

	"github.com/MJE43/stargift-miniapp/internal/roulette"
)

// StripMove is the payload of a strip event.
type StripMove struct {
	Offset     float64 `json:"offset"`
	Animate    bool    `json:"animate"`
	DurationMS int64   `json:"duration_ms,omitempty"`
	Easing     string  `json:"easing,omitempty"`
}

// Renderer forwards strip motion and haptics to the web renderer. It knows
// the container width the renderer last reported.
type Renderer struct {
	hub *Hub

	mu    sync.RWMutex
	width float64
}

func NewRenderer(hub *Hub) *Renderer {
	return &Renderer{hub: hub}
}

func (r *Renderer) Jump(offset float64) {
	r.hub.Broadcast(Event{Type: EventStrip, Data: StripMove{Offset: offset}})
}

func (r *Renderer) Animate(offset float64, d time.Duration, curve roulette.CubicBezier) {
	r.hub.Broadcast(Event{Type: EventStrip, Data: StripMove{
		Offset:     offset,
		Animate:    true,
		DurationMS: d.Milliseconds(),
		Easing:     curve.CSS(),
	}})
}

func (r *Renderer) ContainerWidth() float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.width
}

// SetContainerWidth records the measured viewport width.
func (r *Renderer) SetContainerWidth(w float64) {
	if w < 0 {
		w = 0
	}
	r.mu.Lock()
	r.width = w
	r.mu.Unlock()
}

// ErrNoRenderer is returned by Vibrate when no renderer is connected.
var ErrNoRenderer = errors.New("bridge: no renderer connected")

// Vibrate asks the renderer to play pattern.
func (r *Renderer) Vibrate(pattern []time.Duration) error {
	if r.hub.Clients() == 0 {
		return ErrNoRenderer
	}
	ms := make([]int64, len(pattern))
	for i, d := range pattern {
		ms[i] = d.Milliseconds()
	}
	r.hub.Broadcast(Event{Type: EventHaptic, Data: map[string][]int64{"pattern": ms}})
	return nil
}
