// Package catalog holds the static gift catalog and the per-tier chance
// tables that weight the roulette.
package catalog

import "fmt"

// GiftID identifies a gift in the catalog.
type GiftID string

// GiftDefinition is an immutable catalog entry.
type GiftDefinition struct {
	ID        GiftID `json:"id" yaml:"id"`
	Label     string `json:"label" yaml:"label"`
	BasePrice int    `json:"price" yaml:"price"`
	IconRef   string `json:"icon" yaml:"icon"`
}

// Catalog is the ordered gift list. Order is the display order of the
// "you can win" panel; the roulette shuffles its own copy.
type Catalog struct {
	gifts []*GiftDefinition
	byID  map[GiftID]*GiftDefinition
}

// NewCatalog indexes gifts and rejects duplicate or empty IDs.
func NewCatalog(gifts []GiftDefinition) (*Catalog, error) {
	c := &Catalog{byID: make(map[GiftID]*GiftDefinition, len(gifts))}
	for i := range gifts {
		g := gifts[i]
		if g.ID == "" {
			return nil, fmt.Errorf("catalog: gift %d has empty id", i)
		}
		if _, dup := c.byID[g.ID]; dup {
			return nil, fmt.Errorf("catalog: duplicate gift id %q", g.ID)
		}
		c.gifts = append(c.gifts, &g)
		c.byID[g.ID] = &g
	}
	return c, nil
}

// Gifts returns the catalog in display order. The slice is a copy; the
// definitions are shared and must not be mutated.
func (c *Catalog) Gifts() []*GiftDefinition {
	out := make([]*GiftDefinition, len(c.gifts))
	copy(out, c.gifts)
	return out
}

// Get looks a gift up by id.
func (c *Catalog) Get(id GiftID) (*GiftDefinition, bool) {
	g, ok := c.byID[id]
	return g, ok
}

// Len is the number of gifts.
func (c *Catalog) Len() int { return len(c.gifts) }

var defaultGifts = []GiftDefinition{
	{ID: "heart-box", Label: "Heart Box", BasePrice: 15, IconRef: "gifts/heart-box.webp"},
	{ID: "teddy-bear", Label: "Teddy Bear", BasePrice: 15, IconRef: "gifts/teddy-bear.webp"},
	{ID: "gift-box", Label: "Gift Box", BasePrice: 25, IconRef: "gifts/gift-box.webp"},
	{ID: "rose", Label: "Rose", BasePrice: 25, IconRef: "gifts/rose.webp"},
	{ID: "elka", Label: "Christmas Tree", BasePrice: 50, IconRef: "gifts/elka.webp"},
	{ID: "newteddy", Label: "New Year Teddy", BasePrice: 50, IconRef: "gifts/newteddy.webp"},
	{ID: "cake", Label: "Cake", BasePrice: 50, IconRef: "gifts/cake.webp"},
	{ID: "bouquet", Label: "Bouquet", BasePrice: 50, IconRef: "gifts/bouquet.webp"},
	{ID: "rocket", Label: "Rocket", BasePrice: 50, IconRef: "gifts/rocket.webp"},
	{ID: "champagne", Label: "Champagne", BasePrice: 50, IconRef: "gifts/champagne.webp"},
	{ID: "trophy", Label: "Trophy", BasePrice: 100, IconRef: "gifts/trophy.webp"},
	{ID: "ring", Label: "Ring", BasePrice: 100, IconRef: "gifts/ring.webp"},
	{ID: "diamond", Label: "Diamond", BasePrice: 100, IconRef: "gifts/diamond.webp"},
}

// Default returns the built-in 13-gift catalog.
func Default() *Catalog {
	c, err := NewCatalog(defaultGifts)
	if err != nil {
		panic(err)
	}
	return c
}
