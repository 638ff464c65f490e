// Package roulette implements the weighted draw and the strip geometry that
// makes the scrolling animation land on the drawn gift.
package roulette

import (
	"math"

	"github.com/MJE43/stargift-miniapp/internal/catalog"
	"github.com/MJE43/stargift-miniapp/internal/engine"
)

// Item is one pocket of the roulette: a gift and its weight in the active
// tier. Items are shared by pointer between the base list, the strip and
// the revealed result.
type Item struct {
	Gift   *catalog.GiftDefinition `json:"gift"`
	Weight float64                 `json:"weight"`
}

// Items resolves the catalog against one tier of the chance table, in
// catalog order.
func Items(cat *catalog.Catalog, table *catalog.ChanceTable, tier catalog.Tier) []*Item {
	gifts := cat.Gifts()
	out := make([]*Item, len(gifts))
	for i, g := range gifts {
		out[i] = &Item{Gift: g, Weight: table.Weight(tier, g.ID)}
	}
	return out
}

func usable(w float64) bool {
	return w > 0 && !math.IsInf(w, 0) && !math.IsNaN(w)
}

// SelectIndex draws one index with probability proportional to its weight.
// Non-positive or non-finite weights are never drawn; if no weight is
// usable (or weights is empty) the result is 0.
func SelectIndex(weights []float64, src engine.Source) int {
	var total float64
	last := -1
	for i, w := range weights {
		if usable(w) {
			total += w
			last = i
		}
	}
	if last < 0 || total <= 0 {
		return 0
	}

	r := src.Float64() * total
	var cumulative float64
	for i, w := range weights {
		if !usable(w) {
			continue
		}
		cumulative += w
		if cumulative >= r {
			return i
		}
	}
	// Rounding left r above the final running sum.
	return last
}

// Pick is SelectIndex over item weights.
func Pick(items []*Item, src engine.Source) int {
	weights := make([]float64, len(items))
	for i, it := range items {
		if it != nil {
			weights[i] = it.Weight
		}
	}
	return SelectIndex(weights, src)
}

// Shuffle returns a Fisher-Yates permutation of items. The input is not
// modified.
func Shuffle(items []*Item, src engine.Source) []*Item {
	out := make([]*Item, len(items))
	copy(out, items)
	for i := len(out) - 1; i > 0; i-- {
		j := int(math.Floor(src.Float64() * float64(i+1)))
		if j > i {
			j = i
		}
		out[i], out[j] = out[j], out[i]
	}
	return out
}
