package api

import (
	"strings"

	"github.com/busspass/busspass/pkg/adminauth"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

// EnsureValidToken is a middleware that will check the validity of the admin JWT.
func EnsureValidToken(authenticator *adminauth.Authenticator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get(fiber.HeaderAuthorization)

		if authHeader == "" {
			c.SendStatus(fiber.StatusUnauthorized)
			return c.JSON(fiber.Map{
				"error": "Authorization header is required",
			})
		}

		jwtToken, found := strings.CutPrefix(authHeader, "Bearer ")
		if !found {
			c.SendStatus(fiber.StatusUnauthorized)
			return c.JSON(fiber.Map{
				"error": "Authorization header must be a bearer token",
			})
		}

		email, err := authenticator.Validate(c.Context(), jwtToken)
		if err != nil {
			log.Debug().Err(err).Str("path", c.Path()).Msg("Rejected admin token")

			c.SendStatus(fiber.StatusUnauthorized)
			return c.JSON(fiber.Map{
				"error": "Invalid auth token",
			})
		}

		c.Locals("admin_email", email)

		return c.Next()
	}
}
