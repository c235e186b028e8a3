package admin

import (
	"matrix/helpers"
	"matrix/middlewares"
	"matrix/models"
	"matrix/rewards"

	"github.com/gofiber/fiber/v2"
)

func (h *Handler) Claims(c *fiber.Ctx) error {
	page, limit := helpers.PageParams(c)
	list, total, err := h.Rewards.ListClaims(c.UserContext(), rewards.ClaimFilter{
		MemberID: uint(c.QueryInt("member_id", 0)),
		Status:   models.ClaimStatus(c.Query("status")),
	}, page, limit)
	if err != nil {
		return helpers.JSONFromError(c, err)
	}
	return helpers.JSONSuccess(c, "Claims", helpers.Paged(list, total, page, limit))
}

func (h *Handler) Claim(c *fiber.Ctx) error {
	id, ok := idParam(c, "id")
	if !ok {
		return badID(c)
	}
	claim, err := h.Rewards.GetClaim(c.UserContext(), id)
	if err != nil {
		return helpers.JSONFromError(c, err)
	}
	return helpers.JSONSuccess(c, "Claim", claim)
}

type transitionRequest struct {
	Status         string `json:"status"`
	Courier        string `json:"courier"`
	TrackingNumber string `json:"tracking_number"`
	Note           string `json:"note"`
}

func (h *Handler) TransitionClaim(c *fiber.Ctx) error {
	id, ok := idParam(c, "id")
	if !ok {
		return badID(c)
	}
	var req transitionRequest
	if err := c.BodyParser(&req); err != nil {
		return helpers.JSONError(c, "INVALID_JSON")
	}
	to := models.ClaimStatus(req.Status)
	switch to {
	case models.ClaimProcessing, models.ClaimShipped, models.ClaimDelivered, models.ClaimRejected, models.ClaimCancelled:
	default:
		return helpers.JSONError(c, "INVALID_STATUS")
	}

	claim, err := h.Rewards.TransitionClaim(c.UserContext(), id, to, rewards.ClaimUpdate{
		Admin:          middlewares.AdminFrom(c),
		Courier:        req.Courier,
		TrackingNumber: req.TrackingNumber,
		Note:           req.Note,
	})
	if err != nil {
		return helpers.JSONFromError(c, err)
	}
	return helpers.JSONSuccess(c, "Claim updated", claim)
}
