package middleware

import (
	"github.com/gofiber/fiber/v2"

	"github.com/example/pesabridge/internal/utils"
)

type stkInitBody struct {
	PhoneNumber string  `json:"phoneNumber"`
	Amount      float64 `json:"amount"`
}

// ValidateStkInit rejects malformed initiation requests before the
// handler issues any gateway call.
func ValidateStkInit() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body stkInitBody
		if err := c.BodyParser(&body); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"status":  "error",
				"message": "Invalid request body",
				"data":    nil,
			})
		}

		if !utils.ValidAmount(body.Amount) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"status":  "error",
				"message": "Invalid amount provided",
				"data":    nil,
			})
		}

		if !utils.ValidatePhoneNumber(body.PhoneNumber) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"status":  "error",
				"message": "Invalid phone number format. Use +2547XXXXXXXX or 2547XXXXXXXX",
				"data":    nil,
			})
		}

		return c.Next()
	}
}
