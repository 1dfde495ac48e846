package routes

import (
	"errors"

	"github.com/busspass/busspass/pkg/busroutes"
	"github.com/busspass/busspass/pkg/stats"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

func DashboardRouter(router fiber.Router, dashboard *stats.Dashboard, routes *busroutes.Manager) {
	router.Get("/stats", func(c *fiber.Ctx) error {
		current, err := dashboard.Stats(c.Context())
		if err != nil {
			log.Error().Err(err).Msg("Failed to compute dashboard stats")
			return sendError(c, fiber.StatusBadGateway, "Could not load dashboard stats")
		}

		return c.JSON(current)
	})

	router.Get("/routes", func(c *fiber.Ctx) error {
		list, err := routes.List(c.Context())
		if err != nil {
			return sendError(c, fiber.StatusBadGateway, err.Error())
		}

		rows := []fiber.Map{}
		for _, route := range list {
			rows = append(rows, fiber.Map{
				"bus_no": route.BusNo,
				"stops":  route.StopNames,
			})
		}

		return c.JSON(rows)
	})

	router.Get("/:listing", func(c *fiber.Ctx) error {
		records, err := dashboard.List(c.Context(), stats.Listing(c.Params("listing")))
		if errors.Is(err, stats.ErrUnknownListing) {
			return sendError(c, fiber.StatusNotFound, err.Error())
		} else if err != nil {
			return sendError(c, fiber.StatusBadGateway, err.Error())
		}

		return c.JSON(records)
	})
}
