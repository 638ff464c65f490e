package catalog

import (
	_ "embed"
	"fmt"
	"math"
	"os"
	"sort"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Tier is a selectable price level in stars.
type Tier int

// DefaultTier is the tier selected when the page opens.
const DefaultTier Tier = 25

// MissingLabel is shown for gifts a tier does not configure.
const MissingLabel = "—"

// Chance is the relative weight of a gift within one tier.
type Chance struct {
	Weight float64 `yaml:"weight" json:"weight" validate:"gte=0"`
	Label  string  `yaml:"label,omitempty" json:"label"`
}

// Odds is one row of the "you can win" panel.
type Odds struct {
	Gift   *GiftDefinition `json:"gift"`
	Weight float64         `json:"weight"`
	Label  string          `json:"chance"`
}

type chanceFile struct {
	Tiers []tierSpec `yaml:"tiers" validate:"required,min=1,dive"`
}

type tierSpec struct {
	Price   int               `yaml:"price" validate:"gt=0"`
	Chances map[GiftID]Chance `yaml:"chances" validate:"required,min=1,dive"`
}

// ChanceTable maps each tier to its gift weights.
type ChanceTable struct {
	tiers  map[Tier]map[GiftID]Chance
	totals map[Tier]float64
}

//go:embed chances.yaml
var defaultChances []byte

var validate = validator.New(validator.WithRequiredStructEnabled())

// ParseChanceTable decodes a YAML chance table and checks it against cat.
// Empty labels are derived from the weight share of the tier.
func ParseChanceTable(data []byte, cat *Catalog) (*ChanceTable, error) {
	var f chanceFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("catalog: decode chance table: %w", err)
	}
	if err := validate.Struct(f); err != nil {
		return nil, fmt.Errorf("catalog: invalid chance table: %w", err)
	}

	t := &ChanceTable{
		tiers:  make(map[Tier]map[GiftID]Chance, len(f.Tiers)),
		totals: make(map[Tier]float64, len(f.Tiers)),
	}
	for _, spec := range f.Tiers {
		tier := Tier(spec.Price)
		if _, dup := t.tiers[tier]; dup {
			return nil, fmt.Errorf("catalog: tier %d defined twice", tier)
		}
		var total float64
		for id, ch := range spec.Chances {
			if _, ok := cat.Get(id); !ok {
				return nil, fmt.Errorf("catalog: tier %d references unknown gift %q", tier, id)
			}
			if math.IsNaN(ch.Weight) || math.IsInf(ch.Weight, 0) {
				return nil, fmt.Errorf("catalog: tier %d gift %q has non-finite weight", tier, id)
			}
			total += ch.Weight
		}
		entries := make(map[GiftID]Chance, len(spec.Chances))
		for id, ch := range spec.Chances {
			if ch.Label == "" {
				ch.Label = FormatShare(ch.Weight, total)
			}
			entries[id] = ch
		}
		t.tiers[tier] = entries
		t.totals[tier] = total
	}
	return t, nil
}

// LoadChanceTable reads a chance table from disk.
func LoadChanceTable(path string, cat *Catalog) (*ChanceTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: read chance table: %w", err)
	}
	return ParseChanceTable(data, cat)
}

// DefaultChanceTable returns the embedded 25/50/100 tables.
func DefaultChanceTable(cat *Catalog) *ChanceTable {
	t, err := ParseChanceTable(defaultChances, cat)
	if err != nil {
		panic(err)
	}
	return t
}

// Tiers lists configured tiers in ascending price order.
func (t *ChanceTable) Tiers() []Tier {
	out := make([]Tier, 0, len(t.tiers))
	for tier := range t.tiers {
		out = append(out, tier)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Has reports whether tier is configured.
func (t *ChanceTable) Has(tier Tier) bool {
	_, ok := t.tiers[tier]
	return ok
}

// Weight is the configured weight, 0 when the gift or tier is missing.
func (t *ChanceTable) Weight(tier Tier, id GiftID) float64 {
	return t.tiers[tier][id].Weight
}

// Label is the configured percentage label, MissingLabel when absent.
func (t *ChanceTable) Label(tier Tier, id GiftID) string {
	ch, ok := t.tiers[tier][id]
	if !ok {
		return MissingLabel
	}
	return ch.Label
}

// Total is the weight sum of a tier.
func (t *ChanceTable) Total(tier Tier) float64 { return t.totals[tier] }

// Odds lists every catalog gift with its chance in tier, in catalog order.
func (t *ChanceTable) Odds(tier Tier, cat *Catalog) []Odds {
	gifts := cat.Gifts()
	out := make([]Odds, 0, len(gifts))
	for _, g := range gifts {
		out = append(out, Odds{
			Gift:   g,
			Weight: t.Weight(tier, g.ID),
			Label:  t.Label(tier, g.ID),
		})
	}
	return out
}

// FormatShare renders weight/total as a percentage with at most two
// decimals and no trailing zeros ("18%", "0.33%").
func FormatShare(weight, total float64) string {
	if total <= 0 || weight <= 0 {
		return "0%"
	}
	pct := decimal.NewFromFloat(weight).
		Div(decimal.NewFromFloat(total)).
		Mul(decimal.NewFromInt(100)).
		Round(2)
	return pct.String() + "%"
}
