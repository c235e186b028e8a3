package ledger

import (
	"context"

	"matrix/apperr"
	"matrix/models"
	"matrix/monitoring"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Reconciliation compares a wallet balance with its completed transactions.
type Reconciliation struct {
	MemberID uint            `json:"member_id"`
	Balance  decimal.Decimal `json:"balance"`
	Credits  decimal.Decimal `json:"credits"`
	Debits   decimal.Decimal `json:"debits"`
	Drift    decimal.Decimal `json:"drift"`
}

func (r Reconciliation) Balanced() bool {
	return r.Drift.IsZero()
}

func (l *Ledger) Reconcile(ctx context.Context, memberID uint) (*Reconciliation, error) {
	var wallet models.Wallet
	res := l.db.WithContext(ctx).Where("member_id = ?", memberID).Limit(1).Find(&wallet)
	if res.Error != nil {
		return nil, apperr.Internal(res.Error, "load wallet")
	}
	return l.reconcileWallet(ctx, memberID, wallet.CashBalance)
}

func (l *Ledger) reconcileWallet(ctx context.Context, memberID uint, balance decimal.Decimal) (*Reconciliation, error) {
	var rows []models.Transaction
	err := l.db.WithContext(ctx).
		Select("direction", "amount").
		Where("member_id = ? AND status = ?", memberID, models.TxCompleted).
		Find(&rows).Error
	if err != nil {
		return nil, apperr.Internal(err, "load transactions")
	}

	r := &Reconciliation{MemberID: memberID, Balance: balance, Credits: decimal.Zero, Debits: decimal.Zero}
	for _, t := range rows {
		if t.Direction == models.Credit {
			r.Credits = r.Credits.Add(t.Amount)
		} else {
			r.Debits = r.Debits.Add(t.Amount)
		}
	}
	r.Drift = balance.Sub(r.Credits.Sub(r.Debits))
	return r, nil
}

// ReconcileAll checks every wallet and returns the ones that drifted.
func (l *Ledger) ReconcileAll(ctx context.Context) ([]Reconciliation, error) {
	var (
		drifted []Reconciliation
		total   = decimal.Zero
		inner   error
	)
	var batch []models.Wallet
	err := l.db.WithContext(ctx).Model(&models.Wallet{}).FindInBatches(&batch, 200, func(_ *gorm.DB, _ int) error {
		for _, w := range batch {
			r, err := l.reconcileWallet(ctx, w.MemberID, w.CashBalance)
			if err != nil {
				inner = err
				return err
			}
			if !r.Balanced() {
				drifted = append(drifted, *r)
				total = total.Add(r.Drift.Abs())
			}
		}
		return nil
	}).Error
	if inner != nil {
		return nil, inner
	}
	if err != nil {
		return nil, apperr.Internal(err, "scan wallets")
	}

	f, _ := total.Float64()
	monitoring.LedgerDrift.Set(f)
	for _, r := range drifted {
		l.log.Warn("wallet balance drifted from ledger",
			zap.Uint("member_id", r.MemberID),
			zap.String("balance", r.Balance.StringFixed(2)),
			zap.String("drift", r.Drift.StringFixed(2)))
	}
	return drifted, nil
}
