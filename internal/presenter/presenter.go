// Package presenter holds the reveal overlay state. It does not own any
// timers; the spin controller drives every transition.
package presenter

import "github.com/MJE43/stargift-miniapp/internal/roulette"

// Stage is the overlay lifecycle: hidden → visible → closing → hidden.
type Stage string

const (
	StageHidden  Stage = "hidden"
	StageVisible Stage = "visible"
	StageClosing Stage = "closing"
)

// Mode tells a paid draw from a demo draw.
type Mode string

const (
	ModePaid Mode = "paid"
	ModeDemo Mode = "demo"
)

const (
	Title       = "Вы выиграли подарок!"
	MessagePaid = "Подарок уже отправлен на ваш аккаунт."
	MessageDemo = "Демо-режим нужен для тестирования шансов выпадения подарков."
)

// View is what the renderer needs to draw the overlay.
type View struct {
	Stage       Stage          `json:"stage"`
	Mounted     bool           `json:"mounted"`
	Visible     bool           `json:"visible"`
	JustEntered bool           `json:"just_entered"`
	Prize       *roulette.Item `json:"prize,omitempty"`
	Mode        Mode           `json:"mode,omitempty"`
	Title       string         `json:"title,omitempty"`
	Message     string         `json:"message,omitempty"`
	// ShowDisableDemo offers the "turn demo off" action next to close.
	ShowDisableDemo bool `json:"show_disable_demo"`
}

// Presenter is the overlay state machine. It is not safe for concurrent
// use; callers serialize access.
type Presenter struct {
	stage       Stage
	justEntered bool
	prize       *roulette.Item
	mode        Mode
}

// New returns a hidden presenter.
func New() *Presenter {
	return &Presenter{stage: StageHidden}
}

// Reveal shows prize. It is valid from every stage; a closing overlay is
// replaced by the new prize.
func (p *Presenter) Reveal(prize *roulette.Item, mode Mode) {
	p.stage = StageVisible
	p.justEntered = true
	p.prize = prize
	p.mode = mode
}

// Settle clears the enter-transition flag once the first frame is drawn.
func (p *Presenter) Settle() {
	if p.stage == StageVisible {
		p.justEntered = false
	}
}

// Close starts the exit transition. The prize stays mounted until Clear.
func (p *Presenter) Close() bool {
	if p.stage != StageVisible {
		return false
	}
	p.stage = StageClosing
	p.justEntered = false
	return true
}

// Clear unmounts the overlay and drops the prize.
func (p *Presenter) Clear() {
	p.stage = StageHidden
	p.justEntered = false
	p.prize = nil
	p.mode = ""
}

// Stage reports the current stage.
func (p *Presenter) Stage() Stage { return p.stage }

// Prize is the mounted prize, nil when hidden.
func (p *Presenter) Prize() *roulette.Item { return p.prize }

// View snapshots the overlay.
func (p *Presenter) View() View {
	v := View{
		Stage:       p.stage,
		Mounted:     p.prize != nil,
		Visible:     p.stage == StageVisible,
		JustEntered: p.justEntered,
		Prize:       p.prize,
		Mode:        p.mode,
	}
	if p.prize == nil {
		return v
	}
	v.Title = Title
	if p.mode == ModeDemo {
		v.Message = MessageDemo
		v.ShowDisableDemo = true
	} else {
		v.Message = MessagePaid
	}
	return v
}
