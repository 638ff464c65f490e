package roulette

import (
	"errors"
	"fmt"
)

// Errors returned by Plan.
var (
	ErrEmptyStrip       = errors.New("roulette: empty item list")
	ErrWinnerOutOfRange = errors.New("roulette: winner index out of range")
)

// Strip geometry defaults, in CSS pixels.
const (
	DefaultRepeats        = 10
	DefaultGap            = 12
	DefaultPointerBias    = 6
	DefaultContainerWidth = 360
)

// CardSize is the rendered card footprint for a layout density.
type CardSize struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

var (
	CompactCard = CardSize{Width: 140, Height: 162}
	RegularCard = CardSize{Width: 160, Height: 184}
)

// CompactBreakpoint is the viewport width below which cards are compact.
const CompactBreakpoint = 600

// CardFor picks the card size for a viewport width.
func CardFor(viewportWidth float64) CardSize {
	if viewportWidth > 0 && viewportWidth < CompactBreakpoint {
		return CompactCard
	}
	return RegularCard
}

// Sequencer builds the repeated strip and computes where it must stop so
// the winner sits under the pointer.
type Sequencer struct {
	ItemWidth   float64
	Gap         float64
	PointerBias float64
	Repeats     int
	// FallbackContainerWidth is used while the container is not laid out.
	FallbackContainerWidth float64
}

// NewSequencer returns a sequencer for the given card size with the
// default gap, bias and repeat count.
func NewSequencer(card CardSize) Sequencer {
	return Sequencer{
		ItemWidth:              card.Width,
		Gap:                    DefaultGap,
		PointerBias:            DefaultPointerBias,
		Repeats:                DefaultRepeats,
		FallbackContainerWidth: DefaultContainerWidth,
	}
}

// Card is the card footprint the sequencer plans for.
func (s Sequencer) Card() CardSize {
	for _, c := range []CardSize{CompactCard, RegularCard} {
		if c.Width == s.ItemWidth {
			return c
		}
	}
	return CardSize{Width: s.ItemWidth}
}

// WithCard returns a copy of s planning for card.
func (s Sequencer) WithCard(card CardSize) Sequencer {
	s.ItemWidth = card.Width
	return s
}

func (s Sequencer) repeats() int {
	if s.Repeats < 1 {
		return DefaultRepeats
	}
	return s.Repeats
}

// Plan is the animation endpoint for one spin.
type Plan struct {
	LandingIndex   int     `json:"landing_index"`
	Offset         float64 `json:"offset"`
	StripLength    int     `json:"strip_length"`
	ContainerWidth float64 `json:"container_width"`
}

// Strip repeats items Repeats times. The same pointers appear in every
// repetition.
func (s Sequencer) Strip(items []*Item) []*Item {
	r := s.repeats()
	out := make([]*Item, 0, len(items)*r)
	for i := 0; i < r; i++ {
		out = append(out, items...)
	}
	return out
}

// Plan lands on the copy of winnerIndex in the middle repetition and returns
// the leftward translation that centers it under the pointer.
func (s Sequencer) Plan(baseLen, winnerIndex int, containerWidth float64) (Plan, error) {
	if baseLen <= 0 {
		return Plan{}, ErrEmptyStrip
	}
	if winnerIndex < 0 || winnerIndex >= baseLen {
		return Plan{}, fmt.Errorf("%w: %d not in [0, %d)", ErrWinnerOutOfRange, winnerIndex, baseLen)
	}
	if containerWidth <= 0 {
		containerWidth = s.FallbackContainerWidth
		if containerWidth <= 0 {
			containerWidth = DefaultContainerWidth
		}
	}

	r := s.repeats()
	landing := baseLen*(r/2) + winnerIndex
	centerOffset := containerWidth/2 - s.ItemWidth/2 + s.PointerBias
	return Plan{
		LandingIndex:   landing,
		Offset:         float64(landing)*(s.ItemWidth+s.Gap) - centerOffset,
		StripLength:    baseLen * r,
		ContainerWidth: containerWidth,
	}, nil
}
