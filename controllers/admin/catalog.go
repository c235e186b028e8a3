package admin

import (
	"strings"

	"matrix/catalog"
	"matrix/helpers"
	"matrix/models"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
)

type catalogEntry struct {
	Level     int             `json:"level"`
	Kind      string          `json:"kind"`
	Amount    decimal.Decimal `json:"amount"`
	Item      string          `json:"item"`
	CostValue decimal.Decimal `json:"cost_value"`
	Condition string          `json:"condition"`
	Active    bool            `json:"active"`
}

func viewOf(e catalog.Entry) catalogEntry {
	return catalogEntry{
		Level:     e.Level,
		Kind:      string(e.Reward.Kind),
		Amount:    e.Reward.Cash,
		Item:      e.Reward.Item,
		CostValue: e.CostValue,
		Condition: e.Condition,
		Active:    e.Active,
	}
}

func (h *Handler) ListCatalog(c *fiber.Ctx) error {
	snap := h.Catalog.Current()
	entries := snap.Entries()
	out := make([]catalogEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, viewOf(e))
	}
	return helpers.JSONSuccess(c, "Reward catalog", fiber.Map{"version": snap.Version, "levels": out})
}

type upsertRequest struct {
	Kind      string          `json:"kind"`
	Amount    decimal.Decimal `json:"amount"`
	Item      string          `json:"item"`
	CostValue decimal.Decimal `json:"cost_value"`
	Condition string          `json:"condition"`
	Active    *bool           `json:"active"`
}

func (h *Handler) UpsertCatalog(c *fiber.Ctx) error {
	level, err := c.ParamsInt("level")
	if err != nil {
		return helpers.JSONError(c, "INVALID_LEVEL")
	}
	var req upsertRequest
	if err := c.BodyParser(&req); err != nil {
		return helpers.JSONError(c, "INVALID_JSON")
	}

	entry := catalog.Entry{
		Level:     level,
		CostValue: req.CostValue,
		Condition: strings.TrimSpace(req.Condition),
		Active:    req.Active == nil || *req.Active,
	}
	switch kind := models.RewardKind(strings.ToLower(req.Kind)); kind {
	case models.RewardCash:
		entry.Reward = models.CashReward(req.Amount)
	case models.RewardProduct, models.RewardMobileRecharge:
		entry.Reward = models.ItemReward(kind, strings.TrimSpace(req.Item))
	case models.RewardNone:
		entry.Reward = models.NoReward()
	default:
		return helpers.JSONError(c, "INVALID_KIND")
	}

	next, err := h.Catalog.Upsert(c.UserContext(), entry)
	if err != nil {
		return helpers.JSONFromError(c, err)
	}
	e, _ := next.Lookup(level)
	if e.Level == 0 {
		e = entry
	}
	return helpers.JSONSuccess(c, "Catalog updated", fiber.Map{"version": next.Version, "entry": viewOf(e)})
}
