// Package rewards turns level crossings into bonuses and drives the bonus and
// reward-claim state machines.
package rewards

import (
	"context"
	"errors"
	"fmt"
	"time"

	"matrix/apperr"
	"matrix/catalog"
	"matrix/database"
	"matrix/ledger"
	"matrix/levels"
	"matrix/models"
	"matrix/monitoring"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CatalogSource hands out the catalog snapshot in force.
type CatalogSource interface {
	Current() *catalog.Catalog
}

type Engine struct {
	db      *gorm.DB
	log     *zap.Logger
	catalog CatalogSource
	ledger  *ledger.Ledger
	now     func() time.Time
}

func NewEngine(db *gorm.DB, log *zap.Logger, cat CatalogSource, l *ledger.Ledger) *Engine {
	return &Engine{db: db, log: log, catalog: cat, ledger: l, now: time.Now}
}

var _ levels.CrossingHandler = (*Engine)(nil)

// LevelCrossed issues the bonus for c.Level unless the catalog has nothing for
// it or the member already holds one for that level.
func (e *Engine) LevelCrossed(u *database.Unit, c levels.Crossing) error {
	snap := e.catalog.Current()
	entry, ok := snap.Lookup(c.Level)
	if !ok {
		return nil
	}

	amount := decimal.Zero
	if entry.Reward.IsCash() {
		amount = entry.Reward.Cash
	}
	b := models.Bonus{
		MemberID:       c.MemberID,
		Level:          c.Level,
		Kind:           entry.Reward.Kind,
		Amount:         amount,
		Item:           entry.Reward.Item,
		CostValue:      entry.CostValue,
		CatalogVersion: snap.Version,
		Status:         models.BonusPending,
		IssuedBy:       string(models.ActorSystem),
	}
	res := u.Tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "member_id"}, {Name: "level"}},
		DoNothing: true,
	}).Create(&b)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return nil
	}

	u.AfterCommit(func() {
		monitoring.Bonuses.WithLabelValues(string(b.Kind), string(b.Status)).Inc()
		e.log.Info("bonus issued",
			zap.Uint("bonus_id", b.ID),
			zap.Uint("member_id", b.MemberID),
			zap.Int("level", b.Level),
			zap.String("reward", b.Reward().String()))
	})
	return nil
}

// transitionError reports why a guarded transition did not apply.
func transitionError(entity string, id uint, current, target string) error {
	if current == target {
		return apperr.AlreadyProcessed(entity, id)
	}
	return apperr.InvalidState(entity, id, current, target)
}

func (e *Engine) swapBonus(u *database.Unit, b *models.Bonus, to models.BonusStatus, updates map[string]any) error {
	from := b.Status
	updates["status"] = to
	won, err := database.SwapStatus(u.Tx, &models.Bonus{}, b.ID, from, updates)
	if err != nil {
		return err
	}
	if !won {
		return apperr.AlreadyProcessed("bonus", b.ID)
	}
	if err := u.Tx.First(b, b.ID).Error; err != nil {
		return err
	}

	kind := b.Kind
	u.AfterCommit(func() {
		monitoring.Bonuses.WithLabelValues(string(kind), string(to)).Inc()
	})
	return nil
}

// Approve moves a pending bonus to approved.
func (e *Engine) Approve(ctx context.Context, id uint, admin string) (*models.Bonus, error) {
	var b models.Bonus
	err := database.Atomic(ctx, e.db, func(u *database.Unit) error {
		if err := database.LockByID(u.Tx, &b, "bonus", id); err != nil {
			return err
		}
		if b.Status != models.BonusPending {
			return transitionError("bonus", id, string(b.Status), string(models.BonusApproved))
		}
		return e.swapBonus(u, &b, models.BonusApproved, map[string]any{
			"approved_at": e.now(),
			"issued_by":   admin,
		})
	})
	if err != nil {
		return nil, err
	}
	e.log.Info("bonus approved", zap.Uint("bonus_id", id), zap.String("admin", admin))
	return &b, nil
}

func (e *Engine) Reject(ctx context.Context, id uint, admin, note string) (*models.Bonus, error) {
	var b models.Bonus
	err := database.Atomic(ctx, e.db, func(u *database.Unit) error {
		if err := database.LockByID(u.Tx, &b, "bonus", id); err != nil {
			return err
		}
		if b.Status != models.BonusPending {
			return transitionError("bonus", id, string(b.Status), string(models.BonusRejected))
		}
		return e.swapBonus(u, &b, models.BonusRejected, map[string]any{
			"issued_by": admin,
			"note":      note,
		})
	})
	if err != nil {
		return nil, err
	}
	e.log.Info("bonus rejected", zap.Uint("bonus_id", id), zap.String("admin", admin))
	return &b, nil
}

// paidStatus is where MarkPaid leaves a bonus of the given kind.
func paidStatus(kind models.RewardKind) models.BonusStatus {
	switch kind {
	case models.RewardCash:
		return models.BonusPaid
	case models.RewardProduct:
		return models.BonusCompleted
	default:
		return models.BonusNotApplicable
	}
}

// MarkPaid settles an approved bonus. Cash is credited to the wallet in the
// same unit as the status change; products are marked completed; recharges
// are handed over for manual processing.
func (e *Engine) MarkPaid(ctx context.Context, id uint, admin string) (*models.Bonus, error) {
	var b models.Bonus
	err := database.Atomic(ctx, e.db, func(u *database.Unit) error {
		if err := database.LockByID(u.Tx, &b, "bonus", id); err != nil {
			return err
		}
		target := paidStatus(b.Kind)
		if b.Status != models.BonusApproved {
			return transitionError("bonus", id, string(b.Status), string(target))
		}

		switch b.Kind {
		case models.RewardCash:
			_, err := e.ledger.ApplyIn(u, ledger.Entry{
				MemberID:       b.MemberID,
				Direction:      models.Credit,
				Amount:         b.Amount,
				Category:       models.CategoryBonus,
				RelatedType:    models.RelatedBonus,
				RelatedID:      b.ID,
				Actor:          models.ActorAdmin,
				Description:    fmt.Sprintf("Level %d cash bonus", b.Level),
				IdempotencyKey: b.IdempotencyKey(),
				Meta: map[string]any{
					"level":           b.Level,
					"catalog_version": b.CatalogVersion,
					"paid_by":         admin,
				},
			})
			if err != nil {
				return err
			}
			if err := e.ledger.GrantItemIn(u, b.MemberID, b.ID, b.Reward().String()); err != nil {
				return err
			}
		case models.RewardProduct:
			if err := e.ledger.GrantItemIn(u, b.MemberID, b.ID, b.Item); err != nil {
				return err
			}
		}

		return e.swapBonus(u, &b, target, map[string]any{
			"paid_at":   e.now(),
			"issued_by": admin,
		})
	})
	if err != nil {
		return nil, err
	}
	e.log.Info("bonus settled",
		zap.Uint("bonus_id", id),
		zap.String("kind", string(b.Kind)),
		zap.String("status", string(b.Status)),
		zap.String("admin", admin))
	return &b, nil
}

// ConfirmRecharge records that an operator completed a mobile recharge.
func (e *Engine) ConfirmRecharge(ctx context.Context, id uint, admin, reference, note string) (*models.Bonus, error) {
	var b models.Bonus
	err := database.Atomic(ctx, e.db, func(u *database.Unit) error {
		if err := database.LockByID(u.Tx, &b, "bonus", id); err != nil {
			return err
		}
		if b.Kind != models.RewardMobileRecharge {
			return apperr.Validation("bonus %d is a %s reward, not a mobile recharge", id, b.Kind)
		}
		if b.Status != models.BonusApproved && b.Status != models.BonusNotApplicable {
			return transitionError("bonus", id, string(b.Status), string(models.BonusPaid))
		}

		now := e.now()
		updates := map[string]any{
			"recharge_reference": reference,
			"recharged_at":       now,
			"paid_at":            now,
			"issued_by":          admin,
		}
		if note != "" {
			updates["note"] = note
		}
		return e.swapBonus(u, &b, models.BonusPaid, updates)
	})
	if err != nil {
		return nil, err
	}
	e.log.Info("mobile recharge confirmed", zap.Uint("bonus_id", id), zap.String("reference", reference))
	return &b, nil
}

func (e *Engine) Get(ctx context.Context, id uint) (*models.Bonus, error) {
	var b models.Bonus
	if err := e.db.WithContext(ctx).First(&b, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("bonus", id)
		}
		return nil, apperr.Internal(err, "load bonus")
	}
	return &b, nil
}

// BonusFilter narrows List; zero fields match everything.
type BonusFilter struct {
	MemberID uint
	Status   models.BonusStatus
	Kind     models.RewardKind
}

func (e *Engine) List(ctx context.Context, f BonusFilter, page, limit int) ([]models.Bonus, int64, error) {
	q := e.db.WithContext(ctx).Model(&models.Bonus{})
	if f.MemberID != 0 {
		q = q.Where("member_id = ?", f.MemberID)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.Kind != "" {
		q = q.Where("kind = ?", f.Kind)
	}
	q = q.Session(&gorm.Session{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, apperr.Internal(err, "count bonuses")
	}
	var out []models.Bonus
	if err := q.Scopes(database.Paginate(page, limit)).Order("id DESC").Find(&out).Error; err != nil {
		return nil, 0, apperr.Internal(err, "list bonuses")
	}
	return out, total, nil
}
