// Package placement assigns new members to sponsor slots.
//
// A reservation is a pending member row that names its sponsor and slot. It
// holds the slot until ReservedUntil; finalize re-checks occupancy under the
// sponsor's row lock because the reservation may have gone stale since.
package placement

import (
	"context"
	"errors"
	"strings"
	"time"

	"matrix/apperr"
	"matrix/database"
	"matrix/helpers"
	"matrix/levels"
	"matrix/models"
	"matrix/monitoring"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Manager struct {
	db     *gorm.DB
	log    *zap.Logger
	levels *levels.Engine
	ttl    time.Duration
	now    func() time.Time

	treeChunk    int
	treeMaxNodes int
}

func NewManager(db *gorm.DB, log *zap.Logger, eng *levels.Engine, ttl time.Duration) *Manager {
	return &Manager{
		db:           db,
		log:          log,
		levels:       eng,
		ttl:          ttl,
		now:          time.Now,
		treeChunk:    DefaultTreeChunk,
		treeMaxNodes: DefaultTreeMaxNodes,
	}
}

type Applicant struct {
	FullName string `json:"full_name"`
	Phone    string `json:"phone"`
}

func observe(op string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = strings.ToLower(apperr.CodeOf(err))
	}
	monitoring.Placements.WithLabelValues(op, outcome).Inc()
}

// Reserve creates a pending member under sponsorID in slot. A nil sponsor
// creates a root member, which takes no slot.
func (m *Manager) Reserve(ctx context.Context, sponsorID *uint, slot models.Slot, a Applicant) (member *models.Member, err error) {
	defer func() { observe("reserve", err) }()

	a.FullName = strings.TrimSpace(a.FullName)
	a.Phone = strings.TrimSpace(a.Phone)
	if a.FullName == "" {
		return nil, apperr.Validation("full name is required")
	}
	if sponsorID == nil && slot != "" {
		return nil, apperr.Validation("a root member has no slot")
	}
	if sponsorID != nil {
		parsed, ok := models.ParseSlot(string(slot))
		if !ok {
			return nil, apperr.Validation("unknown slot %q", slot)
		}
		slot = parsed
	}

	var created models.Member
	err = database.Atomic(ctx, m.db, func(u *database.Unit) error {
		now := m.now()
		if sponsorID != nil {
			var sponsor models.Member
			if err := database.LockByID(u.Tx, &sponsor, "sponsor", *sponsorID); err != nil {
				return err
			}
			if err := m.checkSlot(u.Tx, &sponsor, slot, now, true); err != nil {
				return err
			}
		}

		until := now.Add(m.ttl)
		created = models.Member{
			ReferralCode:  helpers.NewReferralCode(a.FullName, now),
			FullName:      a.FullName,
			Phone:         a.Phone,
			SponsorID:     sponsorID,
			Slot:          slot,
			Status:        models.MemberPending,
			ReservedUntil: &until,
		}
		return u.Tx.Create(&created).Error
	})
	if err != nil {
		return nil, err
	}

	m.log.Info("placement reserved",
		zap.Uint("member_id", created.ID),
		zap.Uintp("sponsor_id", sponsorID),
		zap.String("slot", string(slot)))
	return &created, nil
}

// ReserveByCode is Reserve addressed by the sponsor's referral code.
func (m *Manager) ReserveByCode(ctx context.Context, sponsorCode string, slot models.Slot, a Applicant) (*models.Member, error) {
	sponsor, err := m.GetByCode(ctx, sponsorCode)
	if err != nil {
		return nil, err
	}
	return m.Reserve(ctx, &sponsor.ID, slot, a)
}

// checkSlot reports why slot under sponsor cannot take a new member. At
// reserve time live pending reservations block the slot too; at finalize only
// approved children do.
func (m *Manager) checkSlot(tx *gorm.DB, sponsor *models.Member, slot models.Slot, now time.Time, countReservations bool) error {
	if sponsor.Status != models.MemberApproved {
		return apperr.Conflict(apperr.CodeSponsorNotApproved, "sponsor %d is not approved", sponsor.ID)
	}
	if sponsor.ChildCount >= models.MaxChildren {
		return apperr.Conflict(apperr.CodeSponsorFull, "sponsor %d already has %d children", sponsor.ID, models.MaxChildren)
	}

	var occupants []models.Member
	err := tx.Where("sponsor_id = ? AND slot = ? AND status IN ?", sponsor.ID, slot,
		[]models.MemberStatus{models.MemberPending, models.MemberApproved}).
		Find(&occupants).Error
	if err != nil {
		return err
	}
	for i := range occupants {
		o := &occupants[i]
		if o.Status == models.MemberApproved || (countReservations && o.HoldsSlot(now)) {
			return apperr.Conflict(apperr.CodeSlotTaken, "slot %s under sponsor %d is taken", slot, sponsor.ID)
		}
	}
	return nil
}

// Finalize approves a reservation, commits it under its sponsor and raises
// levels up the sponsor chain.
func (m *Manager) Finalize(ctx context.Context, memberID uint, admin string) (member *models.Member, err error) {
	defer func() { observe("finalize", err) }()

	secret := helpers.NewMemberSecret()
	hash, err := helpers.HashSecret(secret)
	if err != nil {
		return nil, apperr.Internal(err, "hash member secret")
	}

	var (
		approved   models.Member
		changed    bool
		continueAt *uint
	)
	err = database.Atomic(ctx, m.db, func(u *database.Unit) error {
		if err := database.LockByID(u.Tx, &approved, "member", memberID); err != nil {
			return err
		}
		switch approved.Status {
		case models.MemberApproved:
			return apperr.AlreadyProcessed("member", memberID)
		case models.MemberRejected:
			return apperr.InvalidState("member", memberID, string(approved.Status), string(models.MemberApproved))
		}

		now := m.now()
		updates := map[string]any{
			"status":         models.MemberApproved,
			"approved_at":    now,
			"approved_by":    admin,
			"reserved_until": nil,
			"secret_hash":    hash,
		}

		if approved.IsRoot() {
			return m.swapMember(u, &approved, updates)
		}

		var sponsor models.Member
		if err := database.LockByID(u.Tx, &sponsor, "sponsor", *approved.SponsorID); err != nil {
			return err
		}
		if err := m.checkSlot(u.Tx, &sponsor, approved.Slot, now, false); err != nil {
			return err
		}

		updates["position"] = sponsor.ChildCount + 1
		if err := m.swapMember(u, &approved, updates); err != nil {
			return err
		}
		if err := u.Tx.Model(&models.Member{}).Where("id = ?", sponsor.ID).
			Update("child_count", gorm.Expr("child_count + 1")).Error; err != nil {
			return err
		}

		var err error
		changed, continueAt, err = m.levels.Step(u, sponsor.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	approved.Secret = secret
	m.log.Info("placement finalized",
		zap.Uint("member_id", approved.ID),
		zap.Uintp("sponsor_id", approved.SponsorID),
		zap.String("slot", string(approved.Slot)),
		zap.String("admin", admin))

	if changed && continueAt != nil {
		if _, perr := m.levels.Propagate(ctx, continueAt); perr != nil {
			m.log.Error("level propagation stopped early",
				zap.Uint("member_id", approved.ID),
				zap.Uint("resume_at", *continueAt),
				zap.Error(perr))
		}
	}
	return &approved, nil
}

func (m *Manager) swapMember(u *database.Unit, member *models.Member, updates map[string]any) error {
	won, err := database.SwapStatus(u.Tx, &models.Member{}, member.ID, member.Status, updates)
	if err != nil {
		return err
	}
	if !won {
		return apperr.AlreadyProcessed("member", member.ID)
	}
	return u.Tx.First(member, member.ID).Error
}

// ResetSecret issues a new sign-in secret to an approved member. The old one
// stops working at once.
func (m *Manager) ResetSecret(ctx context.Context, memberID uint, admin string) (*models.Member, error) {
	secret := helpers.NewMemberSecret()
	hash, err := helpers.HashSecret(secret)
	if err != nil {
		return nil, apperr.Internal(err, "hash member secret")
	}

	var member models.Member
	err = database.Atomic(ctx, m.db, func(u *database.Unit) error {
		if err := database.LockByID(u.Tx, &member, "member", memberID); err != nil {
			return err
		}
		if member.Status != models.MemberApproved {
			return apperr.InvalidState("member", member.ID, string(member.Status), "secret reset")
		}
		member.SecretHash = hash
		return u.Tx.Model(&models.Member{}).Where("id = ?", member.ID).Update("secret_hash", hash).Error
	})
	if err != nil {
		return nil, err
	}

	member.Secret = secret
	m.log.Info("member secret reset", zap.Uint("member_id", member.ID), zap.String("admin", admin))
	return &member, nil
}

// Release rejects a reservation and frees its slot.
func (m *Manager) Release(ctx context.Context, memberID uint, admin, note string) (member *models.Member, err error) {
	defer func() { observe("release", err) }()

	var released models.Member
	err = database.Atomic(ctx, m.db, func(u *database.Unit) error {
		if err := database.LockByID(u.Tx, &released, "member", memberID); err != nil {
			return err
		}
		if released.Status != models.MemberPending {
			return rejectionError(&released)
		}
		return m.swapMember(u, &released, map[string]any{
			"status":         models.MemberRejected,
			"rejected_at":    m.now(),
			"approved_by":    admin,
			"note":           note,
			"reserved_until": nil,
		})
	})
	if err != nil {
		return nil, err
	}

	m.log.Info("placement released", zap.Uint("member_id", memberID), zap.String("admin", admin))
	return &released, nil
}

func rejectionError(member *models.Member) error {
	if member.Status == models.MemberRejected {
		return apperr.AlreadyProcessed("member", member.ID)
	}
	return apperr.InvalidState("member", member.ID, string(member.Status), string(models.MemberRejected))
}

// ExpireReservations rejects every pending reservation whose hold has run out.
func (m *Manager) ExpireReservations(ctx context.Context) (int64, error) {
	now := m.now()
	res := m.db.WithContext(ctx).Model(&models.Member{}).
		Where("status = ? AND reserved_until IS NOT NULL AND reserved_until < ?", models.MemberPending, now).
		Updates(map[string]any{
			"status":         models.MemberRejected,
			"rejected_at":    now,
			"note":           "expired",
			"reserved_until": nil,
		})
	if res.Error != nil {
		return 0, apperr.Internal(res.Error, "expire reservations")
	}
	if res.RowsAffected > 0 {
		monitoring.Placements.WithLabelValues("expire", "ok").Add(float64(res.RowsAffected))
		m.log.Info("expired stale reservations", zap.Int64("count", res.RowsAffected))
	}
	return res.RowsAffected, nil
}

func (m *Manager) Get(ctx context.Context, id uint) (*models.Member, error) {
	var member models.Member
	if err := m.db.WithContext(ctx).First(&member, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("member", id)
		}
		return nil, apperr.Internal(err, "load member")
	}
	return &member, nil
}

func (m *Manager) GetByCode(ctx context.Context, code string) (*models.Member, error) {
	code = helpers.NormalizeReferralCode(code)
	if code == "" {
		return nil, apperr.Validation("referral code is required")
	}
	var member models.Member
	if err := m.db.WithContext(ctx).Where("referral_code = ?", code).First(&member).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("member", code)
		}
		return nil, apperr.Internal(err, "load member")
	}
	return &member, nil
}

// ListByStatus pages through members in status, oldest first.
func (m *Manager) ListByStatus(ctx context.Context, status models.MemberStatus, page, limit int) ([]models.Member, int64, error) {
	q := m.db.WithContext(ctx).Model(&models.Member{}).Where("status = ?", status).Session(&gorm.Session{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, apperr.Internal(err, "count members")
	}
	var out []models.Member
	if err := q.Scopes(database.Paginate(page, limit)).Order("id").Find(&out).Error; err != nil {
		return nil, 0, apperr.Internal(err, "list members")
	}
	return out, total, nil
}
