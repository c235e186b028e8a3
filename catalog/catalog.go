// Package catalog holds the versioned level → reward table.
package catalog

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"matrix/models"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

//go:embed default_catalog.yaml
var defaultCatalog []byte

type Entry struct {
	Level     int
	Reward    models.Reward
	CostValue decimal.Decimal
	Condition string
	Active    bool
}

// Catalog is an immutable snapshot. Edits produce a new snapshot with a higher Version.
type Catalog struct {
	Version int
	entries map[int]Entry
}

func New(version int, entries []Entry) (*Catalog, error) {
	if version <= 0 {
		return nil, fmt.Errorf("catalog version must be positive, got %d", version)
	}
	c := &Catalog{Version: version, entries: make(map[int]Entry, len(entries))}
	for _, e := range entries {
		if err := e.Validate(); err != nil {
			return nil, err
		}
		if _, dup := c.entries[e.Level]; dup {
			return nil, fmt.Errorf("duplicate catalog entry for level %d", e.Level)
		}
		c.entries[e.Level] = e
	}
	return c, nil
}

func (e Entry) Validate() error {
	if e.Level < 1 || e.Level > models.MaxLevel {
		return fmt.Errorf("level %d out of range 1..%d", e.Level, models.MaxLevel)
	}
	if !e.Reward.Kind.Valid() {
		return fmt.Errorf("level %d: unknown reward kind %q", e.Level, e.Reward.Kind)
	}
	if e.CostValue.IsNegative() {
		return fmt.Errorf("level %d: negative cost value", e.Level)
	}
	switch e.Reward.Kind {
	case models.RewardCash:
		if !e.Reward.Cash.IsPositive() {
			return fmt.Errorf("level %d: cash reward needs a positive amount", e.Level)
		}
		if !e.Reward.Cash.Equal(e.Reward.Cash.Truncate(2)) {
			return fmt.Errorf("level %d: cash reward %s has more than 2 decimal places", e.Level, e.Reward.Cash)
		}
	case models.RewardProduct, models.RewardMobileRecharge:
		if strings.TrimSpace(e.Reward.Item) == "" {
			return fmt.Errorf("level %d: %s reward needs an item", e.Level, e.Reward.Kind)
		}
	}
	return nil
}

// Lookup returns the active entry for level. Inactive and none-kind entries
// are reported as absent.
func (c *Catalog) Lookup(level int) (Entry, bool) {
	e, ok := c.entries[level]
	if !ok || !e.Active || e.Reward.Kind == models.RewardNone {
		return Entry{}, false
	}
	return e, true
}

// Entries lists every entry, active or not, ordered by level.
func (c *Catalog) Entries() []Entry {
	out := make([]Entry, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Level < out[j].Level })
	return out
}

// With returns a copy of c with e replaced and the version bumped.
func (c *Catalog) With(e Entry) (*Catalog, error) {
	if err := e.Validate(); err != nil {
		return nil, err
	}
	next := &Catalog{Version: c.Version + 1, entries: make(map[int]Entry, len(c.entries)+1)}
	for lvl, existing := range c.entries {
		next.entries[lvl] = existing
	}
	next.entries[e.Level] = e
	return next, nil
}

type fileEntry struct {
	Level     int    `yaml:"level"`
	Kind      string `yaml:"kind"`
	Amount    string `yaml:"amount"`
	Item      string `yaml:"item"`
	CostValue string `yaml:"cost_value"`
	Condition string `yaml:"condition"`
	Active    *bool  `yaml:"active"`
}

type file struct {
	Version int         `yaml:"version"`
	Levels  []fileEntry `yaml:"levels"`
}

func Parse(data []byte) (*Catalog, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}

	entries := make([]Entry, 0, len(f.Levels))
	for _, fe := range f.Levels {
		e, err := fe.entry()
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return New(f.Version, entries)
}

func (fe fileEntry) entry() (Entry, error) {
	e := Entry{Level: fe.Level, Condition: fe.Condition, Active: true}
	if fe.Active != nil {
		e.Active = *fe.Active
	}

	cost, err := parseAmount(fe.CostValue)
	if err != nil {
		return Entry{}, fmt.Errorf("level %d cost_value: %w", fe.Level, err)
	}
	e.CostValue = cost

	switch kind := models.RewardKind(strings.ToLower(strings.TrimSpace(fe.Kind))); kind {
	case models.RewardCash:
		amount, err := parseAmount(fe.Amount)
		if err != nil {
			return Entry{}, fmt.Errorf("level %d amount: %w", fe.Level, err)
		}
		e.Reward = models.CashReward(amount)
	case models.RewardProduct, models.RewardMobileRecharge:
		e.Reward = models.ItemReward(kind, strings.TrimSpace(fe.Item))
	case models.RewardNone, "":
		e.Reward = models.NoReward()
	default:
		return Entry{}, fmt.Errorf("level %d: unknown reward kind %q", fe.Level, fe.Kind)
	}
	return e, nil
}

func parseAmount(s string) (decimal.Decimal, error) {
	if strings.TrimSpace(s) == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(strings.TrimSpace(s))
}

// Default returns the catalog shipped with the binary.
func Default() (*Catalog, error) {
	return Parse(defaultCatalog)
}

// Load reads the catalog at path, or the embedded default when path is empty.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}
	return Parse(data)
}
