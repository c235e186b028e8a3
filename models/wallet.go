package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Wallet struct {
	gorm.Model

	MemberID    uint            `gorm:"uniqueIndex;not null" json:"member_id"`
	CashBalance decimal.Decimal `gorm:"type:numeric(14,2);not null;default:0" json:"cash_balance"`

	Rewards []WalletReward `gorm:"foreignKey:WalletID" json:"rewards,omitempty"`
}

// WalletReward is one append-only entry of a wallet's reward-item history.
type WalletReward struct {
	gorm.Model

	WalletID  uint      `gorm:"index;not null" json:"wallet_id"`
	MemberID  uint      `gorm:"index;not null" json:"member_id"`
	BonusID   uint      `gorm:"uniqueIndex;not null" json:"bonus_id"`
	Item      string    `gorm:"size:128" json:"item"`
	GrantedAt time.Time `json:"granted_at"`
}

type Direction string

const (
	Credit Direction = "credit"
	Debit  Direction = "debit"
)

type TxCategory string

const (
	CategoryWithdraw TxCategory = "withdraw"
	CategoryDeposit  TxCategory = "deposit"
	CategoryBonus    TxCategory = "bonus"
	CategoryTransfer TxCategory = "transfer"
	CategoryRefund   TxCategory = "refund"
)

type TxStatus string

const (
	TxPending   TxStatus = "pending"
	TxCompleted TxStatus = "completed"
	TxFailed    TxStatus = "failed"
)

type Actor string

const (
	ActorSystem Actor = "system"
	ActorAdmin  Actor = "admin"
	ActorMember Actor = "member"
)

const (
	RelatedBonus      = "bonus"
	RelatedWithdrawal = "withdrawal"
)

// Transaction rows are never updated after insert.
type Transaction struct {
	gorm.Model

	MemberID  uint            `gorm:"index;not null" json:"member_id"`
	WalletID  uint            `gorm:"index" json:"wallet_id"`
	Direction Direction       `gorm:"size:8;not null" json:"direction"`
	Amount    decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"amount"`
	Category  TxCategory      `gorm:"size:16;index;not null" json:"category"`

	RelatedType string `gorm:"size:16" json:"related_type"`
	RelatedID   uint   `gorm:"index" json:"related_id"`

	BalanceBefore  decimal.Decimal `gorm:"type:numeric(14,2)" json:"balance_before"`
	RunningBalance decimal.Decimal `gorm:"type:numeric(14,2)" json:"running_balance"`

	Status         TxStatus       `gorm:"size:16;index;not null" json:"status"`
	Actor          Actor          `gorm:"size:8;default:system" json:"actor"`
	Description    string         `gorm:"size:255" json:"description"`
	IdempotencyKey string         `gorm:"size:96;uniqueIndex" json:"idempotency_key"`
	ProcessedAt    *time.Time     `json:"processed_at"`
	Meta           datatypes.JSON `json:"meta,omitempty"`
}

type WithdrawalMethod string

const (
	MethodBkash WithdrawalMethod = "bkash"
	MethodNagad WithdrawalMethod = "nagad"
	MethodBank  WithdrawalMethod = "bank"
)

func (m WithdrawalMethod) Valid() bool {
	return m == MethodBkash || m == MethodNagad || m == MethodBank
}

type WithdrawalStatus string

const (
	WithdrawalPending  WithdrawalStatus = "pending"
	WithdrawalApproved WithdrawalStatus = "approved"
	WithdrawalRejected WithdrawalStatus = "rejected"
)

type Withdrawal struct {
	gorm.Model

	MemberID      uint             `gorm:"index;not null" json:"member_id"`
	Amount        decimal.Decimal  `gorm:"type:numeric(14,2);not null" json:"amount"`
	Method        WithdrawalMethod `gorm:"size:16;not null" json:"method"`
	AccountNumber string           `gorm:"size:32;not null" json:"account_number"`
	Status        WithdrawalStatus `gorm:"size:16;index;default:pending" json:"status"`
	Note          string           `gorm:"size:255" json:"note"`
	ProcessedBy   string           `gorm:"size:64" json:"processed_by"`
	TransactionID *uint            `json:"transaction_id"`
	ApprovedAt    *time.Time       `json:"approved_at"`
	RejectedAt    *time.Time       `json:"rejected_at"`
}
