package routes

import (
	"errors"

	"github.com/busspass/busspass/pkg/adminauth"
	"github.com/gofiber/fiber/v2"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func AuthRouter(router fiber.Router, authenticator *adminauth.Authenticator) {
	router.Post("/login", func(c *fiber.Ctx) error {
		var request loginRequest
		if err := c.BodyParser(&request); err != nil {
			return sendError(c, fiber.StatusBadRequest, "Invalid login body")
		}

		session, err := authenticator.Login(c.Context(), request.Email, request.Password)
		switch {
		case err == nil:
			return c.JSON(session)
		case errors.Is(err, adminauth.ErrUnauthorizedUser),
			errors.Is(err, adminauth.ErrInvalidCredentials),
			errors.Is(err, adminauth.ErrNoAdminData):
			return sendError(c, fiber.StatusUnauthorized, err.Error())
		default:
			return sendError(c, fiber.StatusBadGateway, err.Error())
		}
	})
}
