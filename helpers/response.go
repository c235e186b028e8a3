package helpers

import (
	"errors"

	"matrix/apperr"

	"github.com/gofiber/fiber/v2"
)

func JSONSuccess(c *fiber.Ctx, message string, data any) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"success": true,
		"message": message,
		"data":    data,
	})
}

func JSONCreated(c *fiber.Ctx, message string, data any) error {
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"message": message,
		"data":    data,
	})
}

func JSONError(c *fiber.Ctx, message string) error {
	return JSONErrorStatus(c, fiber.StatusBadRequest, message, "")
}

func JSONErrorStatus(c *fiber.Ctx, status int, message, detail string) error {
	body := fiber.Map{
		"success": false,
		"message": message,
		"data":    nil,
	}
	if detail != "" {
		body["error"] = detail
	}
	return c.Status(status).JSON(body)
}

// StatusOf maps an error kind to its HTTP status.
func StatusOf(kind apperr.Kind) int {
	switch kind {
	case apperr.KindValidation:
		return fiber.StatusBadRequest
	case apperr.KindNotFound:
		return fiber.StatusNotFound
	case apperr.KindConflict, apperr.KindInvalidState:
		return fiber.StatusConflict
	case apperr.KindInsufficientFunds:
		return fiber.StatusUnprocessableEntity
	default:
		return fiber.StatusInternalServerError
	}
}

// JSONFromError renders err with its code as the message. Internal errors
// hide their cause.
func JSONFromError(c *fiber.Ctx, err error) error {
	var appErr *apperr.Error
	if !errors.As(err, &appErr) {
		return JSONErrorStatus(c, fiber.StatusInternalServerError, apperr.CodeInternal, "")
	}
	detail := appErr.Message
	if appErr.Kind == apperr.KindInternal {
		detail = ""
	}
	return JSONErrorStatus(c, StatusOf(appErr.Kind), appErr.Code, detail)
}

// PageParams reads ?page= and ?limit=.
func PageParams(c *fiber.Ctx) (int, int) {
	return c.QueryInt("page", 1), c.QueryInt("limit", 20)
}

// Paged wraps a listing with its paging metadata.
func Paged(items any, total int64, page, limit int) fiber.Map {
	return fiber.Map{
		"items": items,
		"total": total,
		"page":  page,
		"limit": limit,
	}
}
