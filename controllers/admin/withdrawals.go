package admin

import (
	"matrix/helpers"
	"matrix/middlewares"
	"matrix/models"

	"github.com/gofiber/fiber/v2"
)

func (h *Handler) Withdrawals(c *fiber.Ctx) error {
	page, limit := helpers.PageParams(c)
	list, total, err := h.Ledger.ListWithdrawals(c.UserContext(),
		uint(c.QueryInt("member_id", 0)),
		models.WithdrawalStatus(c.Query("status")),
		page, limit)
	if err != nil {
		return helpers.JSONFromError(c, err)
	}
	return helpers.JSONSuccess(c, "Withdrawals", helpers.Paged(list, total, page, limit))
}

func (h *Handler) ApproveWithdrawal(c *fiber.Ctx) error {
	id, ok := idParam(c, "id")
	if !ok {
		return badID(c)
	}
	w, txn, err := h.Ledger.ApproveWithdrawal(c.UserContext(), id, middlewares.AdminFrom(c))
	if err != nil {
		return helpers.JSONFromError(c, err)
	}
	return helpers.JSONSuccess(c, "Withdrawal approved", fiber.Map{"withdrawal": w, "transaction": txn})
}

func (h *Handler) RejectWithdrawal(c *fiber.Ctx) error {
	id, ok := idParam(c, "id")
	if !ok {
		return badID(c)
	}
	note, err := parseNote(c)
	if err != nil {
		return helpers.JSONError(c, "INVALID_JSON")
	}
	w, txn, err := h.Ledger.RejectWithdrawal(c.UserContext(), id, middlewares.AdminFrom(c), note)
	if err != nil {
		return helpers.JSONFromError(c, err)
	}
	return helpers.JSONSuccess(c, "Withdrawal rejected", fiber.Map{"withdrawal": w, "transaction": txn})
}

func (h *Handler) Reconcile(c *fiber.Ctx) error {
	id, ok := idParam(c, "memberId")
	if !ok {
		return badID(c)
	}
	r, err := h.Ledger.Reconcile(c.UserContext(), id)
	if err != nil {
		return helpers.JSONFromError(c, err)
	}
	return helpers.JSONSuccess(c, "Reconciliation", fiber.Map{"result": r, "balanced": r.Balanced()})
}
