package middlewares

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"

	"matrix/helpers"

	"github.com/gofiber/fiber/v2"
)

const (
	HeaderAdminCode      = "X-Admin-Code"
	HeaderAdminSignature = "X-Admin-Signature"
	HeaderAdminTimestamp = "X-Admin-Timestamp"

	// AdminSignatureWindow is how far a signed timestamp may be from server time.
	AdminSignatureWindow = 5 * time.Minute
)

// SignAdminRequest returns the hex HMAC-SHA256 over code, unix timestamp,
// method, path and body keyed by the admin secret.
func SignAdminRequest(code, secret string, timestamp int64, method, path string, body []byte) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(code + "\n" + strconv.FormatInt(timestamp, 10) + "\n" + method + "\n" + path + "\n"))
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

// AdminAuth checks the request signature and its timestamp, and stores the
// admin code in Locals("admin").
func AdminAuth(code, secret string) fiber.Handler {
	return adminAuth(code, secret, AdminSignatureWindow, time.Now)
}

func adminAuth(code, secret string, window time.Duration, now func() time.Time) fiber.Handler {
	return func(c *fiber.Ctx) error {
		given := c.Get(HeaderAdminCode)
		signature := c.Get(HeaderAdminSignature)
		stamp := c.Get(HeaderAdminTimestamp)
		if given == "" || signature == "" || stamp == "" {
			return helpers.JSONErrorStatus(c, fiber.StatusUnauthorized, "ADMIN_CREDENTIALS_REQUIRED", "")
		}

		ts, err := strconv.ParseInt(stamp, 10, 64)
		if err != nil {
			return helpers.JSONErrorStatus(c, fiber.StatusUnauthorized, "INVALID_TIMESTAMP", "")
		}
		skew := now().Sub(time.Unix(ts, 0))
		if skew > window || skew < -window {
			return helpers.JSONErrorStatus(c, fiber.StatusUnauthorized, "SIGNATURE_EXPIRED", "")
		}

		expected := SignAdminRequest(code, secret, ts, c.Method(), c.Path(), c.Body())
		if given != code || !hmac.Equal([]byte(signature), []byte(expected)) {
			return helpers.JSONErrorStatus(c, fiber.StatusUnauthorized, "INVALID_SIGNATURE", "")
		}

		c.Locals("admin", given)
		return c.Next()
	}
}

// AdminFrom returns the admin code set by AdminAuth.
func AdminFrom(c *fiber.Ctx) string {
	admin, _ := c.Locals("admin").(string)
	return admin
}
