package rewards

import (
	"context"
	"sync"
	"testing"

	"matrix/apperr"
	"matrix/catalog"
	"matrix/database"
	"matrix/database/dbtest"
	"matrix/ledger"
	"matrix/levels"
	"matrix/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

type fixedCatalog struct{ c *catalog.Catalog }

func (f fixedCatalog) Current() *catalog.Catalog { return f.c }

type fixture struct {
	db     *gorm.DB
	ledger *ledger.Ledger
	engine *Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cat, err := catalog.Default()
	require.NoError(t, err)

	db := dbtest.New(t)
	log := zaptest.NewLogger(t)
	l := ledger.New(db, log)
	return &fixture{db: db, ledger: l, engine: NewEngine(db, log, fixedCatalog{cat}, l)}
}

func (f *fixture) cross(t *testing.T, memberID uint, level int) {
	t.Helper()
	err := database.Atomic(context.Background(), f.db, func(u *database.Unit) error {
		return f.engine.LevelCrossed(u, levels.Crossing{MemberID: memberID, Level: level})
	})
	require.NoError(t, err)
}

func (f *fixture) bonus(t *testing.T, memberID uint, level int) *models.Bonus {
	t.Helper()
	var b models.Bonus
	require.NoError(t, f.db.Where("member_id = ? AND level = ?", memberID, level).First(&b).Error)
	return &b
}

func TestLevelCrossedIssuesOneBonusPerLevel(t *testing.T) {
	f := newFixture(t)

	f.cross(t, 1, 3)
	f.cross(t, 1, 3)

	var count int64
	require.NoError(t, f.db.Model(&models.Bonus{}).Where("member_id = ?", 1).Count(&count).Error)
	assert.EqualValues(t, 1, count)

	b := f.bonus(t, 1, 3)
	assert.Equal(t, models.RewardCash, b.Kind)
	assert.True(t, b.Amount.Equal(decimal.NewFromInt(400)))
	assert.Equal(t, models.BonusPending, b.Status)
	assert.Equal(t, 1, b.CatalogVersion)
}

func TestLevelCrossedSkipsLevelsWithoutReward(t *testing.T) {
	f := newFixture(t)
	cat, err := catalog.Parse([]byte("version: 2\nlevels:\n  - level: 1\n    kind: none\n"))
	require.NoError(t, err)
	f.engine.catalog = fixedCatalog{cat}

	f.cross(t, 5, 1)
	f.cross(t, 5, 2)

	var count int64
	require.NoError(t, f.db.Model(&models.Bonus{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestConcurrentApproveSucceedsOnce(t *testing.T) {
	f := newFixture(t)
	f.cross(t, 2, 1)
	b := f.bonus(t, 2, 1)

	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.engine.Approve(context.Background(), b.ID, "admin")
		}(i)
	}
	wg.Wait()

	var ok, conflicts int
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
		assert.Equal(t, apperr.CodeAlreadyProcessed, apperr.CodeOf(err))
		conflicts++
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, conflicts)
	assert.Equal(t, models.BonusApproved, f.bonus(t, 2, 1).Status)
}

func TestBonusGuards(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.cross(t, 3, 1)
	b := f.bonus(t, 3, 1)

	_, err := f.engine.MarkPaid(ctx, b.ID, "admin")
	assert.Equal(t, apperr.KindInvalidState, apperr.KindOf(err))

	rejected, err := f.engine.Reject(ctx, b.ID, "admin", "duplicate account")
	require.NoError(t, err)
	assert.Equal(t, models.BonusRejected, rejected.Status)
	assert.Equal(t, "duplicate account", rejected.Note)

	_, err = f.engine.Approve(ctx, b.ID, "admin")
	assert.Equal(t, apperr.KindInvalidState, apperr.KindOf(err))

	_, err = f.engine.Reject(ctx, b.ID, "admin", "again")
	assert.Equal(t, apperr.CodeAlreadyProcessed, apperr.CodeOf(err))

	_, err = f.engine.Approve(ctx, 999, "admin")
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestMarkPaidCreditsCashOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.cross(t, 4, 2)
	b := f.bonus(t, 4, 2)

	_, err := f.engine.Approve(ctx, b.ID, "admin")
	require.NoError(t, err)

	paid, err := f.engine.MarkPaid(ctx, b.ID, "admin")
	require.NoError(t, err)
	assert.Equal(t, models.BonusPaid, paid.Status)
	assert.NotNil(t, paid.PaidAt)

	_, err = f.engine.MarkPaid(ctx, b.ID, "admin")
	assert.Equal(t, apperr.CodeAlreadyProcessed, apperr.CodeOf(err))

	w, err := f.ledger.Wallet(ctx, 4)
	require.NoError(t, err)
	assert.True(t, w.CashBalance.Equal(decimal.NewFromInt(200)))
	require.Len(t, w.Rewards, 1)

	txns, total, err := f.ledger.History(ctx, 4, 1, 10)
	require.NoError(t, err)
	require.EqualValues(t, 1, total)
	assert.Equal(t, b.IdempotencyKey(), txns[0].IdempotencyKey)
	assert.Equal(t, models.CategoryBonus, txns[0].Category)
	assert.Equal(t, b.ID, txns[0].RelatedID)

	r, err := f.ledger.Reconcile(ctx, 4)
	require.NoError(t, err)
	assert.True(t, r.Balanced())
}

func TestMarkPaidNonCashKinds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.cross(t, 6, 4)
	recharge := f.bonus(t, 6, 4)
	require.Equal(t, models.RewardMobileRecharge, recharge.Kind)
	_, err := f.engine.Approve(ctx, recharge.ID, "admin")
	require.NoError(t, err)

	handed, err := f.engine.MarkPaid(ctx, recharge.ID, "admin")
	require.NoError(t, err)
	assert.Equal(t, models.BonusNotApplicable, handed.Status)

	confirmed, err := f.engine.ConfirmRecharge(ctx, recharge.ID, "admin", "RC-2291", "sent to 017")
	require.NoError(t, err)
	assert.Equal(t, models.BonusPaid, confirmed.Status)
	assert.Equal(t, "RC-2291", confirmed.RechargeReference)
	assert.NotNil(t, confirmed.RechargedAt)

	_, err = f.engine.ConfirmRecharge(ctx, recharge.ID, "admin", "RC-2291", "")
	assert.Equal(t, apperr.CodeAlreadyProcessed, apperr.CodeOf(err))

	f.cross(t, 6, 6)
	product := f.bonus(t, 6, 6)
	_, err = f.engine.Approve(ctx, product.ID, "admin")
	require.NoError(t, err)
	done, err := f.engine.MarkPaid(ctx, product.ID, "admin")
	require.NoError(t, err)
	assert.Equal(t, models.BonusCompleted, done.Status)

	_, err = f.engine.ConfirmRecharge(ctx, product.ID, "admin", "x", "")
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	bal, err := f.ledger.Balance(ctx, 6)
	require.NoError(t, err)
	assert.True(t, bal.IsZero())
}

func TestListBonusesFilters(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.cross(t, 7, 1)
	f.cross(t, 7, 4)
	f.cross(t, 8, 1)

	all, total, err := f.engine.List(ctx, BonusFilter{}, 1, 10)
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	assert.Len(t, all, 3)

	mine, total, err := f.engine.List(ctx, BonusFilter{MemberID: 7, Kind: models.RewardCash}, 1, 10)
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	assert.Equal(t, 1, mine[0].Level)
}
