package middleware

import (
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/example/shramik/internal/services"
	"github.com/example/shramik/internal/utils"
)

const paymeLogin = "Paycom"

type paymeRequestID struct {
	ID any `json:"id"`
}

// PaymeAuthMiddleware checks the Basic credentials Payme sends with every
// merchant API call. Failures are answered in Payme's JSON-RPC error shape
// with HTTP 200, as the gateway expects.
func PaymeAuthMiddleware(merchantKey string) fiber.Handler {
	expected := []byte(paymeLogin + ":" + merchantKey)

	return func(c *fiber.Ctx) error {
		var reqID paymeRequestID
		_ = json.Unmarshal(c.Body(), &reqID)

		if merchantKey == "" {
			utils.Logger.Warn("payme request rejected: merchant key not configured")
			return writePaymeAuthError(c, reqID.ID)
		}

		parts := strings.SplitN(c.Get("Authorization"), " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Basic") {
			return writePaymeAuthError(c, reqID.ID)
		}

		decoded, err := base64.StdEncoding.DecodeString(parts[1])
		if err != nil || subtle.ConstantTimeCompare(decoded, expected) != 1 {
			return writePaymeAuthError(c, reqID.ID)
		}

		return c.Next()
	}
}

func writePaymeAuthError(c *fiber.Ctx, id any) error {
	info := services.PaymeErrorInvalidAuthorization
	return c.JSON(fiber.Map{
		"error": fiber.Map{
			"code":    info.Code,
			"message": info.Message,
			"data":    nil,
		},
		"id": id,
	})
}
