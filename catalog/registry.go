package catalog

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"matrix/apperr"
	"matrix/database"
	"matrix/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Registry owns the live catalog snapshot and its reward_plans rows.
type Registry struct {
	db  *gorm.DB
	log *zap.Logger

	mu      sync.Mutex
	current atomic.Pointer[Catalog]
}

func NewRegistry(db *gorm.DB, log *zap.Logger, seed *Catalog) *Registry {
	r := &Registry{db: db, log: log}
	r.current.Store(seed)
	return r
}

func (r *Registry) Current() *Catalog {
	return r.current.Load()
}

// Sync inserts rows for levels the table does not know yet, then rebuilds the
// snapshot from the table so admin edits survive restarts.
func (r *Registry) Sync(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	seed := r.Current()
	return database.Atomic(ctx, r.db, func(u *database.Unit) error {
		var plans []models.RewardPlan
		if err := u.Tx.Order("level").Find(&plans).Error; err != nil {
			return err
		}

		known := make(map[int]bool, len(plans))
		for _, p := range plans {
			known[p.Level] = true
		}
		for _, e := range seed.Entries() {
			if known[e.Level] {
				continue
			}
			plan := planFromEntry(e, seed.Version)
			if err := u.Tx.Create(&plan).Error; err != nil {
				return err
			}
			plans = append(plans, plan)
		}

		snap, err := fromPlans(plans)
		if err != nil {
			return err
		}
		u.AfterCommit(func() {
			r.current.Store(snap)
			r.log.Info("reward catalog synced", zap.Int("version", snap.Version), zap.Int("levels", len(snap.entries)))
		})
		return nil
	})
}

// Upsert replaces the entry for e.Level and publishes a new catalog version.
func (r *Registry) Upsert(ctx context.Context, e Entry) (*Catalog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	next, err := r.Current().With(e)
	if err != nil {
		return nil, apperr.Validation("%v", err)
	}

	err = database.Atomic(ctx, r.db, func(u *database.Unit) error {
		var plan models.RewardPlan
		err := u.Tx.Where("level = ?", e.Level).First(&plan).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		updated := planFromEntry(e, next.Version)
		updated.ID = plan.ID
		updated.CreatedAt = plan.CreatedAt
		if err := u.Tx.Save(&updated).Error; err != nil {
			return err
		}

		u.AfterCommit(func() {
			r.current.Store(next)
			r.log.Info("reward catalog entry updated",
				zap.Int("level", e.Level),
				zap.String("kind", string(e.Reward.Kind)),
				zap.Int("version", next.Version))
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return next, nil
}

func planFromEntry(e Entry, version int) models.RewardPlan {
	return models.RewardPlan{
		Level:     e.Level,
		Kind:      e.Reward.Kind,
		Amount:    e.Reward.Cash,
		Item:      e.Reward.Item,
		CostValue: e.CostValue,
		Condition: e.Condition,
		Active:    e.Active,
		Version:   version,
	}
}

func entryFromPlan(p models.RewardPlan) Entry {
	e := Entry{Level: p.Level, CostValue: p.CostValue, Condition: p.Condition, Active: p.Active}
	switch p.Kind {
	case models.RewardCash:
		e.Reward = models.CashReward(p.Amount)
	case models.RewardProduct, models.RewardMobileRecharge:
		e.Reward = models.ItemReward(p.Kind, p.Item)
	default:
		e.Reward = models.NoReward()
	}
	return e
}

func fromPlans(plans []models.RewardPlan) (*Catalog, error) {
	version := 1
	entries := make([]Entry, 0, len(plans))
	for _, p := range plans {
		if p.Version > version {
			version = p.Version
		}
		entries = append(entries, entryFromPlan(p))
	}
	return New(version, entries)
}
