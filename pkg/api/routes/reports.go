package routes

import (
	"bytes"
	"errors"

	"github.com/busspass/busspass/pkg/reports"
	"github.com/gofiber/fiber/v2"
)

type statusUpdate struct {
	Status string `json:"status"`
}

func ReportsRouter(router fiber.Router, manager *reports.Manager) {
	router.Get("/pending", func(c *fiber.Ctx) error {
		pending, err := manager.Pending(c.Context())
		if err != nil {
			return sendReportError(c, err)
		}

		return c.JSON(pending)
	})

	router.Get("/history", func(c *fiber.Ctx) error {
		history, err := manager.History(c.Context())
		if err != nil {
			return sendReportError(c, err)
		}

		return c.JSON(history)
	})

	router.Get("/history.csv", func(c *fiber.Ctx) error {
		history, err := manager.History(c.Context())
		if err != nil {
			return sendReportError(c, err)
		}

		var buffer bytes.Buffer
		if err := reports.WriteCSV(&buffer, history); err != nil {
			return sendError(c, fiber.StatusInternalServerError, err.Error())
		}

		c.Set(fiber.HeaderContentType, "text/csv")
		c.Set(fiber.HeaderContentDisposition, `attachment; filename="report-history.csv"`)
		return c.Send(buffer.Bytes())
	})

	router.Post("/messages", func(c *fiber.Ctx) error {
		var message reports.Message
		if err := c.BodyParser(&message); err != nil {
			return sendError(c, fiber.StatusBadRequest, "Invalid message body")
		}

		report, err := manager.SendMessage(c.Context(), message)
		if err != nil {
			return sendReportError(c, err)
		}

		c.Status(fiber.StatusCreated)
		return c.JSON(report)
	})

	router.Get("/:id", func(c *fiber.Ctx) error {
		report, err := manager.Get(c.Context(), param(c, "id"))
		if err != nil {
			return sendReportError(c, err)
		}

		return c.JSON(report)
	})

	router.Patch("/:id", func(c *fiber.Ctx) error {
		var update statusUpdate
		if err := c.BodyParser(&update); err != nil {
			return sendError(c, fiber.StatusBadRequest, "Invalid status body")
		}

		id := param(c, "id")
		if err := manager.UpdateStatus(c.Context(), id, update.Status); err != nil {
			return sendReportError(c, err)
		}

		report, err := manager.Get(c.Context(), id)
		if err != nil {
			return sendReportError(c, err)
		}

		return c.JSON(report)
	})

	router.Delete("/:id", func(c *fiber.Ctx) error {
		if err := manager.Delete(c.Context(), param(c, "id")); err != nil {
			return sendReportError(c, err)
		}

		return c.SendStatus(fiber.StatusNoContent)
	})
}

func sendReportError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, reports.ErrNotFound):
		return sendError(c, fiber.StatusNotFound, err.Error())
	case errors.Is(err, reports.ErrInvalidStatus), errors.Is(err, reports.ErrMissingFields):
		return sendError(c, fiber.StatusBadRequest, err.Error())
	default:
		return sendError(c, fiber.StatusBadGateway, err.Error())
	}
}
