package rewards

import (
	"context"
	"errors"
	"strings"

	"matrix/apperr"
	"matrix/database"
	"matrix/models"
	"matrix/monitoring"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ShippingInfo struct {
	Name    string `json:"shipping_name"`
	Phone   string `json:"shipping_phone"`
	Address string `json:"shipping_address"`
}

func (s *ShippingInfo) normalize() error {
	s.Name = strings.TrimSpace(s.Name)
	s.Phone = strings.TrimSpace(s.Phone)
	s.Address = strings.TrimSpace(s.Address)
	switch {
	case s.Name == "":
		return apperr.Validation("shipping name is required")
	case s.Phone == "":
		return apperr.Validation("shipping phone is required")
	case len(s.Address) < 10:
		return apperr.Validation("shipping address is too short")
	case len(s.Address) > 300:
		return apperr.Validation("shipping address is too long")
	}
	return nil
}

// claimMoves lists the admin transitions allowed out of each claim status.
var claimMoves = map[models.ClaimStatus][]models.ClaimStatus{
	models.ClaimPending:    {models.ClaimProcessing, models.ClaimRejected, models.ClaimCancelled},
	models.ClaimProcessing: {models.ClaimProcessing, models.ClaimShipped, models.ClaimRejected, models.ClaimCancelled},
	models.ClaimShipped:    {models.ClaimDelivered, models.ClaimRejected, models.ClaimCancelled},
}

func canMove(from, to models.ClaimStatus) bool {
	for _, s := range claimMoves[from] {
		if s == to {
			return true
		}
	}
	return false
}

// SubmitClaim opens a claim on an approved product bonus owned by memberID.
// The bonus moves to processing with it.
func (e *Engine) SubmitClaim(ctx context.Context, memberID, bonusID uint, ship ShippingInfo) (*models.RewardClaim, error) {
	if err := ship.normalize(); err != nil {
		return nil, err
	}

	var claim models.RewardClaim
	err := database.Atomic(ctx, e.db, func(u *database.Unit) error {
		var b models.Bonus
		if err := database.LockByID(u.Tx, &b, "bonus", bonusID); err != nil {
			return err
		}
		if b.MemberID != memberID {
			return apperr.NotFound("bonus", bonusID)
		}
		if b.Kind != models.RewardProduct {
			return apperr.Validation("only product rewards can be claimed")
		}

		var active int64
		err := u.Tx.Model(&models.RewardClaim{}).
			Where("bonus_id = ? AND status IN ?", b.ID, []models.ClaimStatus{models.ClaimPending, models.ClaimProcessing, models.ClaimShipped}).
			Count(&active).Error
		if err != nil {
			return err
		}
		if active > 0 {
			return apperr.Conflict(apperr.CodeDuplicateClaim, "bonus %d already has an active claim", b.ID)
		}
		if b.Status != models.BonusApproved {
			return apperr.InvalidState("bonus", b.ID, string(b.Status), string(models.BonusProcessing))
		}

		claim = models.RewardClaim{
			BonusID:         b.ID,
			MemberID:        memberID,
			Status:          models.ClaimPending,
			ShippingName:    ship.Name,
			ShippingPhone:   ship.Phone,
			ShippingAddress: ship.Address,
			ClaimedAt:       e.now(),
		}
		if err := u.Tx.Create(&claim).Error; err != nil {
			return err
		}
		if err := e.swapBonus(u, &b, models.BonusProcessing, map[string]any{}); err != nil {
			return err
		}
		u.AfterCommit(func() {
			monitoring.Claims.WithLabelValues(string(models.ClaimPending)).Inc()
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.log.Info("reward claim submitted",
		zap.Uint("claim_id", claim.ID),
		zap.Uint("bonus_id", bonusID),
		zap.Uint("member_id", memberID))
	return &claim, nil
}

// ClaimUpdate carries the optional details of an admin transition.
type ClaimUpdate struct {
	Admin          string
	Courier        string
	TrackingNumber string
	Note           string
}

// TransitionClaim applies an admin transition and keeps the bonus in step.
func (e *Engine) TransitionClaim(ctx context.Context, claimID uint, to models.ClaimStatus, in ClaimUpdate) (*models.RewardClaim, error) {
	if to == models.ClaimShipped && strings.TrimSpace(in.TrackingNumber) == "" {
		return nil, apperr.Validation("tracking number is required to ship")
	}

	var claim models.RewardClaim
	err := database.Atomic(ctx, e.db, func(u *database.Unit) error {
		return e.moveClaim(u, claimID, to, in, &claim, nil)
	})
	if err != nil {
		return nil, err
	}

	e.log.Info("reward claim updated",
		zap.Uint("claim_id", claimID),
		zap.String("status", string(to)),
		zap.String("admin", in.Admin))
	return &claim, nil
}

// CancelClaim lets the owner withdraw a claim that nobody has started on.
func (e *Engine) CancelClaim(ctx context.Context, memberID, claimID uint) (*models.RewardClaim, error) {
	var claim models.RewardClaim
	err := database.Atomic(ctx, e.db, func(u *database.Unit) error {
		return e.moveClaim(u, claimID, models.ClaimCancelled, ClaimUpdate{Note: "cancelled by member"}, &claim, func(c *models.RewardClaim) error {
			if c.MemberID != memberID {
				return apperr.NotFound("claim", claimID)
			}
			if c.Status != models.ClaimPending {
				return transitionError("claim", claimID, string(c.Status), string(models.ClaimCancelled))
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	e.log.Info("reward claim cancelled by member", zap.Uint("claim_id", claimID), zap.Uint("member_id", memberID))
	return &claim, nil
}

// moveClaim locks the bonus and then the claim, applies the claim transition
// and mirrors it onto the bonus.
func (e *Engine) moveClaim(u *database.Unit, claimID uint, to models.ClaimStatus, in ClaimUpdate, out *models.RewardClaim, check func(*models.RewardClaim) error) error {
	var peek models.RewardClaim
	if err := u.Tx.Select("id", "bonus_id").First(&peek, claimID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.NotFound("claim", claimID)
		}
		return err
	}

	var b models.Bonus
	if err := database.LockByID(u.Tx, &b, "bonus", peek.BonusID); err != nil {
		return err
	}
	var c models.RewardClaim
	if err := database.LockByID(u.Tx, &c, "claim", claimID); err != nil {
		return err
	}
	if check != nil {
		if err := check(&c); err != nil {
			return err
		}
	}
	if !canMove(c.Status, to) {
		return transitionError("claim", claimID, string(c.Status), string(to))
	}

	now := e.now()
	updates := map[string]any{"status": to}
	if in.Note != "" {
		updates["admin_note"] = in.Note
	}
	switch to {
	case models.ClaimProcessing:
		updates["processed_at"] = now
	case models.ClaimShipped:
		updates["shipped_at"] = now
		updates["tracking_number"] = strings.TrimSpace(in.TrackingNumber)
		if in.Courier != "" {
			updates["courier"] = strings.TrimSpace(in.Courier)
		}
	case models.ClaimDelivered:
		updates["delivered_at"] = now
		updates["closed_at"] = now
	case models.ClaimRejected, models.ClaimCancelled:
		updates["closed_at"] = now
	}

	won, err := database.SwapStatus(u.Tx, &models.RewardClaim{}, c.ID, c.Status, updates)
	if err != nil {
		return err
	}
	if !won {
		return apperr.AlreadyProcessed("claim", claimID)
	}

	if err := e.mirrorOnBonus(u, &b, to); err != nil {
		return err
	}

	if err := u.Tx.First(out, claimID).Error; err != nil {
		return err
	}
	u.AfterCommit(func() {
		monitoring.Claims.WithLabelValues(string(to)).Inc()
	})
	return nil
}

func (e *Engine) mirrorOnBonus(u *database.Unit, b *models.Bonus, to models.ClaimStatus) error {
	switch to {
	case models.ClaimProcessing:
		if b.Status == models.BonusProcessing {
			return nil
		}
		return e.swapBonus(u, b, models.BonusProcessing, map[string]any{})
	case models.ClaimDelivered:
		if err := e.ledger.GrantItemIn(u, b.MemberID, b.ID, b.Item); err != nil {
			return err
		}
		return e.swapBonus(u, b, models.BonusCompleted, map[string]any{"paid_at": e.now()})
	case models.ClaimRejected, models.ClaimCancelled:
		if b.Status == models.BonusApproved {
			return nil
		}
		return e.swapBonus(u, b, models.BonusApproved, map[string]any{})
	}
	return nil
}

func (e *Engine) GetClaim(ctx context.Context, id uint) (*models.RewardClaim, error) {
	var c models.RewardClaim
	if err := e.db.WithContext(ctx).First(&c, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("claim", id)
		}
		return nil, apperr.Internal(err, "load claim")
	}
	return &c, nil
}

type ClaimFilter struct {
	MemberID uint
	Status   models.ClaimStatus
}

func (e *Engine) ListClaims(ctx context.Context, f ClaimFilter, page, limit int) ([]models.RewardClaim, int64, error) {
	q := e.db.WithContext(ctx).Model(&models.RewardClaim{})
	if f.MemberID != 0 {
		q = q.Where("member_id = ?", f.MemberID)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	q = q.Session(&gorm.Session{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, apperr.Internal(err, "count claims")
	}
	var out []models.RewardClaim
	if err := q.Scopes(database.Paginate(page, limit)).Order("id DESC").Find(&out).Error; err != nil {
		return nil, 0, apperr.Internal(err, "list claims")
	}
	return out, total, nil
}
