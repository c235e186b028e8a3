package catalog

import (
	"context"
	"testing"

	"matrix/apperr"
	"matrix/database/dbtest"
	"matrix/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestDefaultCatalogCoversEveryLevel(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)

	assert.Equal(t, 1, c.Version)
	require.Len(t, c.Entries(), models.MaxLevel)

	first, ok := c.Lookup(1)
	require.True(t, ok)
	assert.Equal(t, models.RewardCash, first.Reward.Kind)
	assert.True(t, first.Reward.Cash.Equal(decimal.NewFromInt(100)))

	phone, ok := c.Lookup(6)
	require.True(t, ok)
	assert.Equal(t, models.RewardProduct, phone.Reward.Kind)
	assert.Equal(t, "Android smartphone", phone.Reward.Item)
}

func TestParseRejectsBadEntries(t *testing.T) {
	cases := map[string]string{
		"cash without amount":  "version: 1\nlevels:\n  - level: 1\n    kind: cash\n",
		"product without item": "version: 1\nlevels:\n  - level: 2\n    kind: product\n",
		"level out of range":   "version: 1\nlevels:\n  - level: 18\n    kind: cash\n    amount: \"5\"\n",
		"duplicate level":      "version: 1\nlevels:\n  - level: 1\n    kind: none\n  - level: 1\n    kind: none\n",
		"unknown kind":         "version: 1\nlevels:\n  - level: 1\n    kind: voucher\n",
		"missing version":      "levels:\n  - level: 1\n    kind: none\n",
		"sub-cent cash":        "version: 1\nlevels:\n  - level: 1\n    kind: cash\n    amount: \"1.005\"\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestLookupSkipsNoneAndInactive(t *testing.T) {
	doc := `version: 3
levels:
  - level: 1
    kind: none
  - level: 2
    kind: cash
    amount: "50"
    active: false
  - level: 3
    kind: mobile_recharge
    item: "Recharge 50"
`
	c, err := Parse([]byte(doc))
	require.NoError(t, err)

	_, ok := c.Lookup(1)
	assert.False(t, ok)
	_, ok = c.Lookup(2)
	assert.False(t, ok)
	_, ok = c.Lookup(9)
	assert.False(t, ok)

	e, ok := c.Lookup(3)
	require.True(t, ok)
	assert.Equal(t, "Recharge 50", e.Reward.String())
}

func TestRegistrySyncAndUpsert(t *testing.T) {
	db := dbtest.New(t)
	seed, err := Default()
	require.NoError(t, err)

	reg := NewRegistry(db, zaptest.NewLogger(t), seed)
	require.NoError(t, reg.Sync(context.Background()))

	var count int64
	require.NoError(t, db.Model(&models.RewardPlan{}).Count(&count).Error)
	assert.EqualValues(t, models.MaxLevel, count)

	next, err := reg.Upsert(context.Background(), Entry{
		Level:  3,
		Reward: models.ItemReward(models.RewardProduct, "Smart watch"),
		Active: true,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, next.Version)
	assert.Same(t, next, reg.Current())

	// A fresh registry seeded with the default rebuilds the edited table.
	reloaded := NewRegistry(db, zaptest.NewLogger(t), seed)
	require.NoError(t, reloaded.Sync(context.Background()))
	e, ok := reloaded.Current().Lookup(3)
	require.True(t, ok)
	assert.Equal(t, models.RewardProduct, e.Reward.Kind)
	assert.Equal(t, 2, reloaded.Current().Version)
}

func TestRegistryUpsertValidates(t *testing.T) {
	db := dbtest.New(t)
	seed, err := Default()
	require.NoError(t, err)
	reg := NewRegistry(db, zaptest.NewLogger(t), seed)

	_, err = reg.Upsert(context.Background(), Entry{Level: 4, Reward: models.CashReward(decimal.Zero), Active: true})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	assert.Equal(t, 1, reg.Current().Version)
}
