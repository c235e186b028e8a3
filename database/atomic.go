package database

import (
	"context"
	"errors"

	"matrix/apperr"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Unit is one all-or-nothing business operation. Every read and write of the
// operation goes through Tx.
type Unit struct {
	Tx *gorm.DB

	afterCommit []func()
}

// AfterCommit registers fn to run once the unit has committed. Hooks never run
// for a rolled back unit.
func (u *Unit) AfterCommit(fn func()) {
	u.afterCommit = append(u.afterCommit, fn)
}

// Atomic runs fn inside a single database transaction. Errors from the
// apperr taxonomy pass through unchanged; anything else (driver, commit,
// serialization failures) is reported as a retryable Internal error.
func Atomic(ctx context.Context, db *gorm.DB, fn func(u *Unit) error) error {
	u := &Unit{}
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		u.Tx = tx
		return fn(u)
	})
	if err != nil {
		var appErr *apperr.Error
		if errors.As(err, &appErr) {
			return err
		}
		return apperr.Internal(err, "atomic operation aborted")
	}

	for _, hook := range u.afterCommit {
		hook()
	}
	return nil
}

// LockByID loads dest by primary key holding a row lock until the unit ends.
func LockByID(tx *gorm.DB, dest any, entity string, id uint) error {
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(dest, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.NotFound(entity, id)
	}
	return err
}

// SwapStatus applies updates only if the row with id still has status from.
// It reports whether the swap won.
func SwapStatus(tx *gorm.DB, model any, id uint, from any, updates map[string]any) (bool, error) {
	res := tx.Model(model).Where("id = ? AND status = ?", id, from).Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Paginate is a gorm scope for 1-based page numbers.
func Paginate(page, limit int) func(*gorm.DB) *gorm.DB {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	return func(db *gorm.DB) *gorm.DB {
		return db.Offset((page - 1) * limit).Limit(limit)
	}
}
