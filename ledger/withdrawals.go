package ledger

import (
	"context"
	"fmt"
	"strings"

	"matrix/apperr"
	"matrix/database"
	"matrix/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type WithdrawalRequest struct {
	MemberID      uint
	Amount        decimal.Decimal
	Method        models.WithdrawalMethod
	AccountNumber string
}

// RequestWithdrawal files a pending withdrawal. Funds are checked here and
// again when the request is approved; nothing is reserved in between.
func (l *Ledger) RequestWithdrawal(ctx context.Context, req WithdrawalRequest) (*models.Withdrawal, error) {
	req.AccountNumber = strings.TrimSpace(req.AccountNumber)
	switch {
	case req.MemberID == 0:
		return nil, apperr.Validation("member id is required")
	case !req.Method.Valid():
		return nil, apperr.Validation("unsupported withdrawal method %q", req.Method)
	case req.AccountNumber == "":
		return nil, apperr.Validation("account number is required")
	}
	if err := checkAmount(req.Amount); err != nil {
		return nil, err
	}

	var w models.Withdrawal
	err := database.Atomic(ctx, l.db, func(u *database.Unit) error {
		var wallet models.Wallet
		res := u.Tx.Where("member_id = ?", req.MemberID).Limit(1).Find(&wallet)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 || wallet.CashBalance.LessThan(req.Amount) {
			return apperr.InsufficientFunds("balance %s is below %s", wallet.CashBalance.StringFixed(2), req.Amount.StringFixed(2))
		}

		w = models.Withdrawal{
			MemberID:      req.MemberID,
			Amount:        req.Amount,
			Method:        req.Method,
			AccountNumber: req.AccountNumber,
			Status:        models.WithdrawalPending,
		}
		return u.Tx.Create(&w).Error
	})
	if err != nil {
		return nil, err
	}

	l.log.Info("withdrawal requested",
		zap.Uint("withdrawal_id", w.ID),
		zap.Uint("member_id", w.MemberID),
		zap.String("amount", w.Amount.StringFixed(2)),
		zap.String("method", string(w.Method)))
	return &w, nil
}

// ApproveWithdrawal debits the wallet and marks the request approved in one
// unit. Insufficient funds leave the request pending.
func (l *Ledger) ApproveWithdrawal(ctx context.Context, id uint, admin string) (*models.Withdrawal, *models.Transaction, error) {
	var (
		w   models.Withdrawal
		txn *models.Transaction
	)
	err := database.Atomic(ctx, l.db, func(u *database.Unit) error {
		if err := database.LockByID(u.Tx, &w, "withdrawal", id); err != nil {
			return err
		}
		if w.Status != models.WithdrawalPending {
			return apperr.AlreadyProcessed("withdrawal", id)
		}

		var err error
		txn, err = l.ApplyIn(u, Entry{
			MemberID:       w.MemberID,
			Direction:      models.Debit,
			Amount:         w.Amount,
			Category:       models.CategoryWithdraw,
			RelatedType:    models.RelatedWithdrawal,
			RelatedID:      w.ID,
			Actor:          models.ActorAdmin,
			Description:    fmt.Sprintf("Withdrawal via %s to %s", w.Method, w.AccountNumber),
			IdempotencyKey: fmt.Sprintf("withdrawal:%d", w.ID),
			Meta:           map[string]any{"approved_by": admin, "method": string(w.Method)},
		})
		if err != nil {
			return err
		}

		now := l.now()
		won, err := database.SwapStatus(u.Tx, &models.Withdrawal{}, w.ID, models.WithdrawalPending, map[string]any{
			"status":         models.WithdrawalApproved,
			"processed_by":   admin,
			"approved_at":    now,
			"transaction_id": txn.ID,
		})
		if err != nil {
			return err
		}
		if !won {
			return apperr.AlreadyProcessed("withdrawal", id)
		}
		w.Status = models.WithdrawalApproved
		w.ProcessedBy = admin
		w.ApprovedAt = &now
		w.TransactionID = &txn.ID
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	l.log.Info("withdrawal approved", zap.Uint("withdrawal_id", w.ID), zap.String("admin", admin))
	return &w, txn, nil
}

// RejectWithdrawal closes a pending request and records a failed transaction
// for the audit trail. The balance is untouched.
func (l *Ledger) RejectWithdrawal(ctx context.Context, id uint, admin, note string) (*models.Withdrawal, *models.Transaction, error) {
	var (
		w   models.Withdrawal
		txn *models.Transaction
	)
	err := database.Atomic(ctx, l.db, func(u *database.Unit) error {
		if err := database.LockByID(u.Tx, &w, "withdrawal", id); err != nil {
			return err
		}
		if w.Status != models.WithdrawalPending {
			return apperr.AlreadyProcessed("withdrawal", id)
		}

		now := l.now()
		won, err := database.SwapStatus(u.Tx, &models.Withdrawal{}, w.ID, models.WithdrawalPending, map[string]any{
			"status":       models.WithdrawalRejected,
			"processed_by": admin,
			"rejected_at":  now,
			"note":         note,
		})
		if err != nil {
			return err
		}
		if !won {
			return apperr.AlreadyProcessed("withdrawal", id)
		}

		txn, err = l.RecordFailedIn(u, Entry{
			MemberID:       w.MemberID,
			Direction:      models.Debit,
			Amount:         w.Amount,
			Category:       models.CategoryWithdraw,
			RelatedType:    models.RelatedWithdrawal,
			RelatedID:      w.ID,
			Actor:          models.ActorAdmin,
			Description:    "Withdrawal rejected: " + note,
			IdempotencyKey: fmt.Sprintf("withdrawal:%d:rejected", w.ID),
		})
		if err != nil {
			return err
		}
		w.Status = models.WithdrawalRejected
		w.ProcessedBy = admin
		w.RejectedAt = &now
		w.Note = note
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	l.log.Info("withdrawal rejected", zap.Uint("withdrawal_id", w.ID), zap.String("admin", admin))
	return &w, txn, nil
}

// ListWithdrawals filters by member and status when they are set.
func (l *Ledger) ListWithdrawals(ctx context.Context, memberID uint, status models.WithdrawalStatus, page, limit int) ([]models.Withdrawal, int64, error) {
	q := l.db.WithContext(ctx).Model(&models.Withdrawal{})
	if memberID != 0 {
		q = q.Where("member_id = ?", memberID)
	}
	if status != "" {
		q = q.Where("status = ?", status)
	}

	q = q.Session(&gorm.Session{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, apperr.Internal(err, "count withdrawals")
	}
	var out []models.Withdrawal
	if err := q.Scopes(database.Paginate(page, limit)).Order("id DESC").Find(&out).Error; err != nil {
		return nil, 0, apperr.Internal(err, "list withdrawals")
	}
	return out, total, nil
}
