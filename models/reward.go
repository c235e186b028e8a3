package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type RewardKind string

const (
	RewardCash           RewardKind = "cash"
	RewardProduct        RewardKind = "product"
	RewardMobileRecharge RewardKind = "mobile_recharge"
	RewardNone           RewardKind = "none"
)

func (k RewardKind) Valid() bool {
	switch k {
	case RewardCash, RewardProduct, RewardMobileRecharge, RewardNone:
		return true
	}
	return false
}

// Reward is the payout of a catalog level: either a cash amount or an item.
type Reward struct {
	Kind RewardKind
	Cash decimal.Decimal
	Item string
}

func CashReward(amount decimal.Decimal) Reward {
	return Reward{Kind: RewardCash, Cash: amount}
}

func ItemReward(kind RewardKind, descriptor string) Reward {
	return Reward{Kind: kind, Item: descriptor}
}

func NoReward() Reward { return Reward{Kind: RewardNone} }

func (r Reward) IsCash() bool { return r.Kind == RewardCash }

func (r Reward) String() string {
	switch r.Kind {
	case RewardCash:
		return "Cash bonus " + r.Cash.StringFixed(2)
	case RewardNone:
		return "No reward"
	default:
		return r.Item
	}
}

// RewardPlan is the persisted row of a reward catalog entry.
type RewardPlan struct {
	gorm.Model

	Level     int             `gorm:"uniqueIndex;not null" json:"level"`
	Kind      RewardKind      `gorm:"size:16;not null" json:"kind"`
	Amount    decimal.Decimal `gorm:"type:numeric(14,2);default:0" json:"amount"`
	Item      string          `gorm:"size:128" json:"item"`
	CostValue decimal.Decimal `gorm:"type:numeric(14,2);default:0" json:"cost_value"`
	Condition string          `gorm:"size:255" json:"condition"`
	Active    bool            `gorm:"default:true" json:"active"`
	Version   int             `gorm:"not null;default:1" json:"version"`
}

type BonusStatus string

const (
	BonusPending       BonusStatus = "pending"
	BonusApproved      BonusStatus = "approved"
	BonusRejected      BonusStatus = "rejected"
	BonusProcessing    BonusStatus = "processing"
	BonusPaid          BonusStatus = "paid"
	BonusCompleted     BonusStatus = "completed"
	BonusNotApplicable BonusStatus = "not_applicable"
)

type Bonus struct {
	gorm.Model

	// (MemberID, Level) is the idempotency key of bonus issuance.
	MemberID uint `gorm:"not null;uniqueIndex:idx_bonus_member_level" json:"member_id"`
	Level    int  `gorm:"not null;uniqueIndex:idx_bonus_member_level" json:"level"`

	Kind           RewardKind      `gorm:"size:16;index" json:"kind"`
	Amount         decimal.Decimal `gorm:"type:numeric(14,2);default:0" json:"amount"`
	Item           string          `gorm:"size:128" json:"item"`
	CostValue      decimal.Decimal `gorm:"type:numeric(14,2);default:0" json:"cost_value"`
	CatalogVersion int             `json:"catalog_version"`

	Status   BonusStatus `gorm:"size:16;index;default:pending" json:"status"`
	IssuedBy string      `gorm:"size:64" json:"issued_by"`
	Note     string      `gorm:"size:255" json:"note"`

	RechargeReference string     `gorm:"size:64" json:"recharge_reference"`
	ApprovedAt        *time.Time `json:"approved_at"`
	PaidAt            *time.Time `json:"paid_at"`
	RechargedAt       *time.Time `json:"recharged_at"`
}

func (b *Bonus) Reward() Reward {
	switch b.Kind {
	case RewardCash:
		return CashReward(b.Amount)
	case RewardProduct, RewardMobileRecharge:
		return ItemReward(b.Kind, b.Item)
	default:
		return NoReward()
	}
}

func (b *Bonus) IdempotencyKey() string {
	return fmt.Sprintf("bonus:%d", b.ID)
}

type ClaimStatus string

const (
	ClaimPending    ClaimStatus = "pending"
	ClaimProcessing ClaimStatus = "processing"
	ClaimShipped    ClaimStatus = "shipped"
	ClaimDelivered  ClaimStatus = "delivered"
	ClaimRejected   ClaimStatus = "rejected"
	ClaimCancelled  ClaimStatus = "cancelled"
)

func (s ClaimStatus) Active() bool {
	return s == ClaimPending || s == ClaimProcessing || s == ClaimShipped
}

type RewardClaim struct {
	gorm.Model

	BonusID  uint        `gorm:"not null;index" json:"bonus_id"`
	MemberID uint        `gorm:"not null;index" json:"member_id"`
	Status   ClaimStatus `gorm:"size:16;index;default:pending" json:"status"`

	ShippingName    string `gorm:"size:100" json:"shipping_name"`
	ShippingPhone   string `gorm:"size:20" json:"shipping_phone"`
	ShippingAddress string `gorm:"size:300" json:"shipping_address"`

	Courier        string `gorm:"size:100" json:"courier"`
	TrackingNumber string `gorm:"size:100" json:"tracking_number"`
	AdminNote      string `gorm:"size:500" json:"admin_note"`

	ClaimedAt   time.Time  `json:"claimed_at"`
	ProcessedAt *time.Time `json:"processed_at"`
	ShippedAt   *time.Time `json:"shipped_at"`
	DeliveredAt *time.Time `json:"delivered_at"`
	ClosedAt    *time.Time `json:"closed_at"`
}
