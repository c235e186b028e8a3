package middlewares

import (
	"context"

	"matrix/apperr"
	"matrix/helpers"
	"matrix/models"

	"github.com/gofiber/fiber/v2"
)

const (
	HeaderReferralCode = "X-Referral-Code"
	HeaderMemberSecret = "X-Member-Secret"
)

// MemberLookup resolves a referral code to its member.
type MemberLookup interface {
	GetByCode(ctx context.Context, code string) (*models.Member, error)
}

// MemberAuth identifies the caller by referral code plus the secret issued at
// approval, and stores the member in Locals("member").
func MemberAuth(members MemberLookup) fiber.Handler {
	return func(c *fiber.Ctx) error {
		code := c.Get(HeaderReferralCode)
		secret := c.Get(HeaderMemberSecret)
		if code == "" || secret == "" {
			return helpers.JSONErrorStatus(c, fiber.StatusUnauthorized, "MEMBER_CREDENTIALS_REQUIRED", "")
		}

		member, err := members.GetByCode(c.UserContext(), code)
		if err != nil {
			if apperr.Is(err, apperr.KindNotFound) {
				return helpers.JSONErrorStatus(c, fiber.StatusUnauthorized, "INVALID_MEMBER_CREDENTIALS", "")
			}
			return helpers.JSONFromError(c, err)
		}
		if !helpers.CheckSecret(member.SecretHash, secret) {
			return helpers.JSONErrorStatus(c, fiber.StatusUnauthorized, "INVALID_MEMBER_CREDENTIALS", "")
		}
		if member.Status != models.MemberApproved {
			return helpers.JSONErrorStatus(c, fiber.StatusForbidden, "MEMBER_NOT_APPROVED", "")
		}

		c.Locals("member", member)
		return c.Next()
	}
}

// MemberFrom returns the member set by MemberAuth.
func MemberFrom(c *fiber.Ctx) *models.Member {
	m, _ := c.Locals("member").(*models.Member)
	return m
}
