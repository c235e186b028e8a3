package models

import (
	"strings"
	"time"

	"gorm.io/gorm"
)

const (
	MaxChildren = 3
	MaxLevel    = 17
)

type MemberStatus string

const (
	MemberPending  MemberStatus = "pending"
	MemberApproved MemberStatus = "approved"
	MemberRejected MemberStatus = "rejected"
)

// Slot is one of the three fixed positions under a sponsor.
type Slot string

const (
	SlotLineOne   Slot = "line_one"
	SlotLineTwo   Slot = "line_two"
	SlotLineThree Slot = "line_three"
)

var Slots = []Slot{SlotLineOne, SlotLineTwo, SlotLineThree}

// ParseSlot accepts "line_one", "line one", "Line-One" and friends.
func ParseSlot(s string) (Slot, bool) {
	norm := strings.ToLower(strings.TrimSpace(s))
	norm = strings.NewReplacer(" ", "_", "-", "_").Replace(norm)
	for _, slot := range Slots {
		if string(slot) == norm {
			return slot, true
		}
	}
	return "", false
}

type Member struct {
	gorm.Model

	ReferralCode string `gorm:"uniqueIndex;size:32" json:"referral_code"`
	FullName     string `gorm:"size:64" json:"full_name"`
	Phone        string `gorm:"size:20" json:"phone"`

	// SponsorID and Slot are written once at reservation.
	SponsorID *uint        `gorm:"index;index:idx_sponsor_slot_approved,unique,where:status = 'approved'" json:"sponsor_id"`
	Slot      Slot         `gorm:"size:16;index:idx_sponsor_slot_approved,unique,where:status = 'approved'" json:"slot"`
	Status    MemberStatus `gorm:"size:16;index;default:pending" json:"status"`

	Level      int `gorm:"not null;default:0" json:"level"`
	ChildCount int `gorm:"not null;default:0" json:"child_count"`
	Position   int `gorm:"not null;default:0" json:"position"`

	ReservedUntil *time.Time `gorm:"index" json:"reserved_until"`
	ApprovedAt    *time.Time `json:"approved_at"`
	ApprovedBy    string     `gorm:"size:64" json:"approved_by"`
	RejectedAt    *time.Time `json:"rejected_at"`
	Note          string     `gorm:"size:255" json:"note"`

	// SecretHash is the bcrypt hash of the sign-in secret issued at approval.
	SecretHash string `gorm:"size:72" json:"-"`
	// Secret carries the plain secret back to the caller that issued it. It is
	// never stored.
	Secret string `gorm:"-" json:"secret,omitempty"`

	Children []Member `gorm:"foreignKey:SponsorID" json:"-"`
}

func (m *Member) IsRoot() bool { return m.SponsorID == nil }

// HoldsSlot reports whether a pending reservation still blocks its slot at now.
func (m *Member) HoldsSlot(now time.Time) bool {
	if m.Status == MemberApproved {
		return true
	}
	return m.Status == MemberPending && m.ReservedUntil != nil && now.Before(*m.ReservedUntil)
}
