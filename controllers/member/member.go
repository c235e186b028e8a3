// Package member serves the member-facing routes.
package member

import (
	"matrix/helpers"
	"matrix/ledger"
	"matrix/middlewares"
	"matrix/models"
	"matrix/placement"
	"matrix/rewards"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
)

type Handler struct {
	Placement *placement.Manager
	Rewards   *rewards.Engine
	Ledger    *ledger.Ledger
}

type RegisterRequest struct {
	SponsorCode string `json:"sponsor_code"`
	Slot        string `json:"slot"`
	FullName    string `json:"full_name"`
	Phone       string `json:"phone"`
}

// Register reserves a slot under the sponsor named by referral code.
func (h *Handler) Register(c *fiber.Ctx) error {
	var req RegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return helpers.JSONError(c, "INVALID_JSON")
	}
	if req.SponsorCode == "" {
		return helpers.JSONError(c, "SPONSOR_CODE_REQUIRED")
	}
	slot, ok := models.ParseSlot(req.Slot)
	if !ok {
		return helpers.JSONError(c, "INVALID_SLOT")
	}

	m, err := h.Placement.ReserveByCode(c.UserContext(), req.SponsorCode, slot, placement.Applicant{
		FullName: req.FullName,
		Phone:    req.Phone,
	})
	if err != nil {
		return helpers.JSONFromError(c, err)
	}
	return helpers.JSONCreated(c, "Registration received, awaiting approval", m)
}

func (h *Handler) Me(c *fiber.Ctx) error {
	return helpers.JSONSuccess(c, "Member profile", middlewares.MemberFrom(c))
}

func (h *Handler) Tree(c *fiber.Ctx) error {
	me := middlewares.MemberFrom(c)
	tree, err := h.Placement.Tree(c.UserContext(), me.ID, c.QueryInt("depth", 3))
	if err != nil {
		return helpers.JSONFromError(c, err)
	}
	return helpers.JSONSuccess(c, "Member tree", tree)
}

func (h *Handler) MyRewards(c *fiber.Ctx) error {
	me := middlewares.MemberFrom(c)
	page, limit := helpers.PageParams(c)
	bonuses, total, err := h.Rewards.List(c.UserContext(), rewards.BonusFilter{
		MemberID: me.ID,
		Status:   models.BonusStatus(c.Query("status")),
	}, page, limit)
	if err != nil {
		return helpers.JSONFromError(c, err)
	}
	return helpers.JSONSuccess(c, "Member rewards", helpers.Paged(bonuses, total, page, limit))
}

type ClaimRequest struct {
	BonusID uint `json:"bonus_id"`
	rewards.ShippingInfo
}

func (h *Handler) SubmitClaim(c *fiber.Ctx) error {
	var req ClaimRequest
	if err := c.BodyParser(&req); err != nil {
		return helpers.JSONError(c, "INVALID_JSON")
	}
	if req.BonusID == 0 {
		return helpers.JSONError(c, "BONUS_ID_REQUIRED")
	}

	me := middlewares.MemberFrom(c)
	claim, err := h.Rewards.SubmitClaim(c.UserContext(), me.ID, req.BonusID, req.ShippingInfo)
	if err != nil {
		return helpers.JSONFromError(c, err)
	}
	return helpers.JSONCreated(c, "Claim submitted", claim)
}

func (h *Handler) CancelClaim(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return helpers.JSONError(c, "INVALID_CLAIM_ID")
	}
	me := middlewares.MemberFrom(c)
	claim, err := h.Rewards.CancelClaim(c.UserContext(), me.ID, uint(id))
	if err != nil {
		return helpers.JSONFromError(c, err)
	}
	return helpers.JSONSuccess(c, "Claim cancelled", claim)
}

func (h *Handler) Claims(c *fiber.Ctx) error {
	me := middlewares.MemberFrom(c)
	page, limit := helpers.PageParams(c)
	claims, total, err := h.Rewards.ListClaims(c.UserContext(), rewards.ClaimFilter{
		MemberID: me.ID,
		Status:   models.ClaimStatus(c.Query("status")),
	}, page, limit)
	if err != nil {
		return helpers.JSONFromError(c, err)
	}
	return helpers.JSONSuccess(c, "Member claims", helpers.Paged(claims, total, page, limit))
}

func (h *Handler) Wallet(c *fiber.Ctx) error {
	me := middlewares.MemberFrom(c)
	w, err := h.Ledger.Wallet(c.UserContext(), me.ID)
	if err != nil {
		return helpers.JSONFromError(c, err)
	}
	return helpers.JSONSuccess(c, "Wallet", w)
}

func (h *Handler) Transactions(c *fiber.Ctx) error {
	me := middlewares.MemberFrom(c)
	page, limit := helpers.PageParams(c)
	txns, total, err := h.Ledger.History(c.UserContext(), me.ID, page, limit)
	if err != nil {
		return helpers.JSONFromError(c, err)
	}
	return helpers.JSONSuccess(c, "Transactions", helpers.Paged(txns, total, page, limit))
}

type WithdrawRequest struct {
	Amount        decimal.Decimal `json:"amount"`
	Method        string          `json:"method"`
	AccountNumber string          `json:"account_number"`
}

func (h *Handler) RequestWithdrawal(c *fiber.Ctx) error {
	var req WithdrawRequest
	if err := c.BodyParser(&req); err != nil {
		return helpers.JSONError(c, "INVALID_JSON")
	}

	me := middlewares.MemberFrom(c)

	w, err := h.Ledger.RequestWithdrawal(c.UserContext(), ledger.WithdrawalRequest{
		MemberID:      me.ID,
		Amount:        req.Amount,
		Method:        models.WithdrawalMethod(req.Method),
		AccountNumber: req.AccountNumber,
	})
	if err != nil {
		return helpers.JSONFromError(c, err)
	}
	return helpers.JSONCreated(c, "Withdrawal requested", w)
}

func (h *Handler) Withdrawals(c *fiber.Ctx) error {
	me := middlewares.MemberFrom(c)
	page, limit := helpers.PageParams(c)
	list, total, err := h.Ledger.ListWithdrawals(c.UserContext(), me.ID, models.WithdrawalStatus(c.Query("status")), page, limit)
	if err != nil {
		return helpers.JSONFromError(c, err)
	}
	return helpers.JSONSuccess(c, "Withdrawals", helpers.Paged(list, total, page, limit))
}
