package routes

import (
	"errors"

	"github.com/busspass/busspass/pkg/nfctags"
	"github.com/gofiber/fiber/v2"
)

type tagAssignment struct {
	Phone string `json:"phone"`
	UID   string `json:"uid"`
}

func NFCTagsRouter(router fiber.Router, manager *nfctags.Manager) {
	router.Get("/", func(c *fiber.Ctx) error {
		tags, err := manager.Recent(c.Context())
		if err != nil {
			return sendTagError(c, err)
		}

		return c.JSON(tags)
	})

	router.Post("/", func(c *fiber.Ctx) error {
		var request tagAssignment
		if err := c.BodyParser(&request); err != nil {
			return sendError(c, fiber.StatusBadRequest, "Invalid assignment body")
		}

		tag, err := manager.Assign(c.Context(), request.Phone, request.UID)
		if err != nil {
			return sendTagError(c, err)
		}

		c.Status(fiber.StatusCreated)
		return c.JSON(tag)
	})

	router.Get("/:uid", func(c *fiber.Ctx) error {
		tag, err := manager.Check(c.Context(), param(c, "uid"))
		if err != nil {
			return sendTagError(c, err)
		}

		return c.JSON(tag)
	})
}

func sendTagError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, nfctags.ErrInvalidPhone), errors.Is(err, nfctags.ErrInvalidUID):
		return sendError(c, fiber.StatusBadRequest, err.Error())
	case errors.Is(err, nfctags.ErrTravelerNotFound), errors.Is(err, nfctags.ErrNotAssigned):
		return sendError(c, fiber.StatusNotFound, err.Error())
	default:
		return sendError(c, fiber.StatusBadGateway, err.Error())
	}
}
