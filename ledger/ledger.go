// Package ledger owns member wallets and the append-only transaction log.
//
// Every balance change goes through ApplyIn, which locks the wallet row,
// checks funds for debits, writes the new balance and appends a Transaction
// carrying the post-mutation balance, all inside the caller's unit of work.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"matrix/apperr"
	"matrix/database"
	"matrix/models"
	"matrix/monitoring"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Ledger struct {
	db  *gorm.DB
	log *zap.Logger
	now func() time.Time
}

func New(db *gorm.DB, log *zap.Logger) *Ledger {
	return &Ledger{db: db, log: log, now: time.Now}
}

// Entry describes one balance-affecting operation.
type Entry struct {
	MemberID       uint
	Direction      models.Direction
	Amount         decimal.Decimal
	Category       models.TxCategory
	RelatedType    string
	RelatedID      uint
	Actor          models.Actor
	Description    string
	IdempotencyKey string
	Meta           map[string]any
}

func (e Entry) validate() error {
	if e.MemberID == 0 {
		return apperr.Validation("member id is required")
	}
	if e.Direction != models.Credit && e.Direction != models.Debit {
		return apperr.Validation("unknown direction %q", e.Direction)
	}
	if err := checkAmount(e.Amount); err != nil {
		return err
	}
	if e.Category == "" {
		return apperr.Validation("category is required")
	}
	return nil
}

// MoneyPlaces is the scale of every money column.
const MoneyPlaces = 2

// checkAmount rejects amounts the numeric(14,2) columns would round away.
func checkAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return apperr.Validation("amount must be positive")
	}
	if !amount.Equal(amount.Truncate(MoneyPlaces)) {
		return apperr.Validation("amount %s has more than %d decimal places", amount.String(), MoneyPlaces)
	}
	return nil
}

// Apply runs e as its own unit of work.
func (l *Ledger) Apply(ctx context.Context, e Entry) (*models.Transaction, error) {
	var out *models.Transaction
	err := database.Atomic(ctx, l.db, func(u *database.Unit) error {
		txn, err := l.ApplyIn(u, e)
		out = txn
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ApplyIn composes e into an enclosing unit. A repeated idempotency key
// returns the transaction already written without touching the wallet.
func (l *Ledger) ApplyIn(u *database.Unit, e Entry) (*models.Transaction, error) {
	if err := e.validate(); err != nil {
		return nil, err
	}

	if e.IdempotencyKey != "" {
		var existing models.Transaction
		err := u.Tx.Where("idempotency_key = ?", e.IdempotencyKey).First(&existing).Error
		if err == nil {
			return &existing, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}

	wallet, err := lockWallet(u.Tx, e.MemberID)
	if err != nil {
		return nil, err
	}

	before := wallet.CashBalance
	after := before.Add(e.Amount)
	if e.Direction == models.Debit {
		if before.LessThan(e.Amount) {
			monitoring.LedgerOperations.WithLabelValues(string(e.Direction), string(e.Category), "insufficient_funds").Inc()
			return nil, apperr.InsufficientFunds("balance %s is below %s", before.StringFixed(2), e.Amount.StringFixed(2))
		}
		after = before.Sub(e.Amount)
	}

	if err := u.Tx.Model(&models.Wallet{}).Where("id = ?", wallet.ID).Update("cash_balance", after).Error; err != nil {
		return nil, err
	}

	now := l.now()
	txn := models.Transaction{
		MemberID:       e.MemberID,
		WalletID:       wallet.ID,
		Direction:      e.Direction,
		Amount:         e.Amount,
		Category:       e.Category,
		RelatedType:    e.RelatedType,
		RelatedID:      e.RelatedID,
		BalanceBefore:  before,
		RunningBalance: after,
		Status:         models.TxCompleted,
		Actor:          actorOrSystem(e.Actor),
		Description:    e.Description,
		IdempotencyKey: keyOrRandom(e.IdempotencyKey),
		ProcessedAt:    &now,
		Meta:           encodeMeta(e.Meta),
	}
	if err := u.Tx.Create(&txn).Error; err != nil {
		return nil, err
	}

	u.AfterCommit(func() {
		monitoring.LedgerOperations.WithLabelValues(string(e.Direction), string(e.Category), "completed").Inc()
		l.log.Info("ledger operation applied",
			zap.Uint("member_id", e.MemberID),
			zap.String("direction", string(e.Direction)),
			zap.String("category", string(e.Category)),
			zap.String("amount", e.Amount.StringFixed(2)),
			zap.String("balance", after.StringFixed(2)),
			zap.Uint("transaction_id", txn.ID))
	})
	return &txn, nil
}

// RecordFailedIn writes a failed audit transaction. The wallet is not created
// or changed.
func (l *Ledger) RecordFailedIn(u *database.Unit, e Entry) (*models.Transaction, error) {
	if err := e.validate(); err != nil {
		return nil, err
	}

	var wallet models.Wallet
	err := u.Tx.Where("member_id = ?", e.MemberID).First(&wallet).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	now := l.now()
	txn := models.Transaction{
		MemberID:       e.MemberID,
		WalletID:       wallet.ID,
		Direction:      e.Direction,
		Amount:         e.Amount,
		Category:       e.Category,
		RelatedType:    e.RelatedType,
		RelatedID:      e.RelatedID,
		BalanceBefore:  wallet.CashBalance,
		RunningBalance: wallet.CashBalance,
		Status:         models.TxFailed,
		Actor:          actorOrSystem(e.Actor),
		Description:    e.Description,
		IdempotencyKey: keyOrRandom(e.IdempotencyKey),
		ProcessedAt:    &now,
		Meta:           encodeMeta(e.Meta),
	}
	if err := u.Tx.Create(&txn).Error; err != nil {
		return nil, err
	}
	u.AfterCommit(func() {
		monitoring.LedgerOperations.WithLabelValues(string(e.Direction), string(e.Category), "failed").Inc()
	})
	return &txn, nil
}

// GrantItemIn appends a reward item to the member's wallet history. A bonus
// produces at most one item.
func (l *Ledger) GrantItemIn(u *database.Unit, memberID, bonusID uint, item string) error {
	wallet, err := lockWallet(u.Tx, memberID)
	if err != nil {
		return err
	}
	reward := models.WalletReward{
		WalletID:  wallet.ID,
		MemberID:  memberID,
		BonusID:   bonusID,
		Item:      item,
		GrantedAt: l.now(),
	}
	return u.Tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "bonus_id"}},
		DoNothing: true,
	}).Create(&reward).Error
}

// lockWallet returns the member's wallet under a row lock, creating it on first use.
func lockWallet(tx *gorm.DB, memberID uint) (*models.Wallet, error) {
	var wallet models.Wallet
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("member_id = ?", memberID).First(&wallet).Error
	if err == nil {
		return &wallet, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	fresh := models.Wallet{MemberID: memberID, CashBalance: decimal.Zero}
	if err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "member_id"}},
		DoNothing: true,
	}).Create(&fresh).Error; err != nil {
		return nil, err
	}

	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("member_id = ?", memberID).First(&wallet).Error; err != nil {
		return nil, err
	}
	return &wallet, nil
}

// keyOrRandom fills in a one-off key so the unique index only ever binds
// caller-supplied keys.
func keyOrRandom(key string) string {
	if key == "" {
		return "auto:" + uuid.NewString()
	}
	return key
}

func actorOrSystem(a models.Actor) models.Actor {
	if a == "" {
		return models.ActorSystem
	}
	return a
}

func encodeMeta(meta map[string]any) datatypes.JSON {
	if len(meta) == 0 {
		return nil
	}
	raw, err := json.Marshal(meta)
	if err != nil {
		return nil
	}
	return datatypes.JSON(raw)
}

// Wallet returns the member's wallet with its reward history. Members without
// a wallet get an empty one; nothing is persisted.
func (l *Ledger) Wallet(ctx context.Context, memberID uint) (*models.Wallet, error) {
	var wallet models.Wallet
	err := l.db.WithContext(ctx).
		Preload("Rewards", func(db *gorm.DB) *gorm.DB { return db.Order("granted_at DESC") }).
		Where("member_id = ?", memberID).
		First(&wallet).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &models.Wallet{MemberID: memberID, CashBalance: decimal.Zero}, nil
	}
	if err != nil {
		return nil, apperr.Internal(err, "load wallet")
	}
	return &wallet, nil
}

func (l *Ledger) Balance(ctx context.Context, memberID uint) (decimal.Decimal, error) {
	w, err := l.Wallet(ctx, memberID)
	if err != nil {
		return decimal.Zero, err
	}
	return w.CashBalance, nil
}

// History pages through a member's transactions, newest first.
func (l *Ledger) History(ctx context.Context, memberID uint, page, limit int) ([]models.Transaction, int64, error) {
	q := l.db.WithContext(ctx).Model(&models.Transaction{}).Where("member_id = ?", memberID).Session(&gorm.Session{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, apperr.Internal(err, "count transactions")
	}

	var txns []models.Transaction
	if err := q.Scopes(database.Paginate(page, limit)).Order("id DESC").Find(&txns).Error; err != nil {
		return nil, 0, apperr.Internal(err, "list transactions")
	}
	return txns, total, nil
}
