package admin

import (
	"matrix/helpers"
	"matrix/middlewares"
	"matrix/models"
	"matrix/placement"

	"github.com/gofiber/fiber/v2"
)

func (h *Handler) PendingMembers(c *fiber.Ctx) error {
	page, limit := helpers.PageParams(c)
	list, total, err := h.Placement.ListByStatus(c.UserContext(), models.MemberPending, page, limit)
	if err != nil {
		return helpers.JSONFromError(c, err)
	}
	return helpers.JSONSuccess(c, "Pending members", helpers.Paged(list, total, page, limit))
}

// CreateRoot opens a new top-level member, approved immediately.
func (h *Handler) CreateRoot(c *fiber.Ctx) error {
	var req placement.Applicant
	if err := c.BodyParser(&req); err != nil {
		return helpers.JSONError(c, "INVALID_JSON")
	}
	m, err := h.Placement.Reserve(c.UserContext(), nil, "", req)
	if err != nil {
		return helpers.JSONFromError(c, err)
	}
	m, err = h.Placement.Finalize(c.UserContext(), m.ID, middlewares.AdminFrom(c))
	if err != nil {
		return helpers.JSONFromError(c, err)
	}
	return helpers.JSONCreated(c, "Root member created", m)
}

func (h *Handler) ApproveMember(c *fiber.Ctx) error {
	id, ok := idParam(c, "id")
	if !ok {
		return badID(c)
	}
	m, err := h.Placement.Finalize(c.UserContext(), id, middlewares.AdminFrom(c))
	if err != nil {
		return helpers.JSONFromError(c, err)
	}
	return helpers.JSONSuccess(c, "Member approved", m)
}

func (h *Handler) RejectMember(c *fiber.Ctx) error {
	id, ok := idParam(c, "id")
	if !ok {
		return badID(c)
	}
	note, err := parseNote(c)
	if err != nil {
		return helpers.JSONError(c, "INVALID_JSON")
	}
	m, err := h.Placement.Release(c.UserContext(), id, middlewares.AdminFrom(c), note)
	if err != nil {
		return helpers.JSONFromError(c, err)
	}
	return helpers.JSONSuccess(c, "Member rejected", m)
}

// ResetSecret issues a new sign-in secret. The response carries it once.
func (h *Handler) ResetSecret(c *fiber.Ctx) error {
	id, ok := idParam(c, "id")
	if !ok {
		return badID(c)
	}
	m, err := h.Placement.ResetSecret(c.UserContext(), id, middlewares.AdminFrom(c))
	if err != nil {
		return helpers.JSONFromError(c, err)
	}
	return helpers.JSONSuccess(c, "Member secret reset", m)
}

func (h *Handler) RecomputeLevel(c *fiber.Ctx) error {
	id, ok := idParam(c, "id")
	if !ok {
		return badID(c)
	}
	if _, err := h.Placement.Get(c.UserContext(), id); err != nil {
		return helpers.JSONFromError(c, err)
	}
	raised, err := h.Levels.Recompute(c.UserContext(), id)
	if err != nil {
		return helpers.JSONFromError(c, err)
	}
	m, err := h.Placement.Get(c.UserContext(), id)
	if err != nil {
		return helpers.JSONFromError(c, err)
	}
	return helpers.JSONSuccess(c, "Level recomputed", fiber.Map{"member": m, "raised": raised})
}

func (h *Handler) MemberTree(c *fiber.Ctx) error {
	id, ok := idParam(c, "id")
	if !ok {
		return badID(c)
	}
	tree, err := h.Placement.Tree(c.UserContext(), id, c.QueryInt("depth", 3))
	if err != nil {
		return helpers.JSONFromError(c, err)
	}
	return helpers.JSONSuccess(c, "Member tree", tree)
}
