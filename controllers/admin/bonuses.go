package admin

import (
	"matrix/helpers"
	"matrix/middlewares"
	"matrix/models"
	"matrix/rewards"

	"github.com/gofiber/fiber/v2"
)

func (h *Handler) Bonuses(c *fiber.Ctx) error {
	page, limit := helpers.PageParams(c)
	list, total, err := h.Rewards.List(c.UserContext(), rewards.BonusFilter{
		MemberID: uint(c.QueryInt("member_id", 0)),
		Status:   models.BonusStatus(c.Query("status")),
		Kind:     models.RewardKind(c.Query("kind")),
	}, page, limit)
	if err != nil {
		return helpers.JSONFromError(c, err)
	}
	return helpers.JSONSuccess(c, "Bonuses", helpers.Paged(list, total, page, limit))
}

func (h *Handler) ApproveBonus(c *fiber.Ctx) error {
	id, ok := idParam(c, "id")
	if !ok {
		return badID(c)
	}
	b, err := h.Rewards.Approve(c.UserContext(), id, middlewares.AdminFrom(c))
	if err != nil {
		return helpers.JSONFromError(c, err)
	}
	return helpers.JSONSuccess(c, "Bonus approved", b)
}

func (h *Handler) RejectBonus(c *fiber.Ctx) error {
	id, ok := idParam(c, "id")
	if !ok {
		return badID(c)
	}
	note, err := parseNote(c)
	if err != nil {
		return helpers.JSONError(c, "INVALID_JSON")
	}
	b, err := h.Rewards.Reject(c.UserContext(), id, middlewares.AdminFrom(c), note)
	if err != nil {
		return helpers.JSONFromError(c, err)
	}
	return helpers.JSONSuccess(c, "Bonus rejected", b)
}

func (h *Handler) MarkBonusPaid(c *fiber.Ctx) error {
	id, ok := idParam(c, "id")
	if !ok {
		return badID(c)
	}
	b, err := h.Rewards.MarkPaid(c.UserContext(), id, middlewares.AdminFrom(c))
	if err != nil {
		return helpers.JSONFromError(c, err)
	}
	return helpers.JSONSuccess(c, "Bonus settled", b)
}

type rechargeRequest struct {
	Reference string `json:"reference"`
	Note      string `json:"note"`
}

func (h *Handler) ConfirmRecharge(c *fiber.Ctx) error {
	id, ok := idParam(c, "id")
	if !ok {
		return badID(c)
	}
	var req rechargeRequest
	if err := c.BodyParser(&req); err != nil {
		return helpers.JSONError(c, "INVALID_JSON")
	}
	b, err := h.Rewards.ConfirmRecharge(c.UserContext(), id, middlewares.AdminFrom(c), req.Reference, req.Note)
	if err != nil {
		return helpers.JSONFromError(c, err)
	}
	return helpers.JSONSuccess(c, "Recharge confirmed", b)
}
