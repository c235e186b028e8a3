// Package admin serves the operator routes.
package admin

import (
	"matrix/catalog"
	"matrix/helpers"
	"matrix/ledger"
	"matrix/levels"
	"matrix/placement"
	"matrix/rewards"

	"github.com/gofiber/fiber/v2"
)

type Handler struct {
	Placement *placement.Manager
	Levels    *levels.Engine
	Rewards   *rewards.Engine
	Ledger    *ledger.Ledger
	Catalog   *catalog.Registry
}

type noteRequest struct {
	Note string `json:"note"`
}

func idParam(c *fiber.Ctx, name string) (uint, bool) {
	id, err := c.ParamsInt(name)
	if err != nil || id <= 0 {
		return 0, false
	}
	return uint(id), true
}

func badID(c *fiber.Ctx) error {
	return helpers.JSONError(c, "INVALID_ID")
}

// parseNote accepts an empty body.
func parseNote(c *fiber.Ctx) (string, error) {
	var req noteRequest
	if len(c.Body()) == 0 {
		return "", nil
	}
	if err := c.BodyParser(&req); err != nil {
		return "", err
	}
	return req.Note, nil
}
