package routes

import (
	"errors"
	"strconv"

	"github.com/busspass/busspass/pkg/busroutes"
	"github.com/gofiber/fiber/v2"
)

type newRoute struct {
	BusNo string           `json:"bus_no"`
	Stops []busroutes.Stop `json:"stops"`
}

func BusRoutesRouter(router fiber.Router, routes *busroutes.Manager) {
	router.Get("/", func(c *fiber.Ctx) error {
		list, err := routes.List(c.Context())
		if err != nil {
			return sendRouteError(c, err)
		}

		return c.JSON(list)
	})

	router.Post("/", func(c *fiber.Ctx) error {
		var body newRoute
		if err := c.BodyParser(&body); err != nil {
			return sendError(c, fiber.StatusBadRequest, "Invalid route body")
		}

		if err := routes.AddRoute(c.Context(), body.BusNo, body.Stops); err != nil {
			return sendRouteError(c, err)
		}

		route, err := routes.Get(c.Context(), body.BusNo)
		if err != nil {
			return sendRouteError(c, err)
		}

		c.Status(fiber.StatusCreated)
		return c.JSON(route)
	})

	router.Get("/:busNo", func(c *fiber.Ctx) error {
		route, err := routes.Get(c.Context(), param(c, "busNo"))
		if err != nil {
			return sendRouteError(c, err)
		}

		return c.JSON(route)
	})

	router.Delete("/:busNo", func(c *fiber.Ctx) error {
		if err := routes.DeleteRoute(c.Context(), param(c, "busNo")); err != nil {
			return sendRouteError(c, err)
		}

		return c.SendStatus(fiber.StatusNoContent)
	})

	router.Post("/:busNo/stops", func(c *fiber.Ctx) error {
		var stop busroutes.Stop
		if err := c.BodyParser(&stop); err != nil {
			return sendError(c, fiber.StatusBadRequest, "Invalid stop body")
		}

		busNo := param(c, "busNo")
		if err := routes.AddStop(c.Context(), busNo, stop); err != nil {
			return sendRouteError(c, err)
		}

		return sendRoute(c, routes, busNo)
	})

	router.Patch("/:busNo/stops/:index", func(c *fiber.Ctx) error {
		index, err := strconv.Atoi(c.Params("index"))
		if err != nil {
			return sendError(c, fiber.StatusBadRequest, "Stop index must be a number")
		}

		var patch busroutes.Stop
		if err := c.BodyParser(&patch); err != nil {
			return sendError(c, fiber.StatusBadRequest, "Invalid stop body")
		}

		busNo := param(c, "busNo")
		if err := routes.PatchStop(c.Context(), busNo, index, patch); err != nil {
			return sendRouteError(c, err)
		}

		return sendRoute(c, routes, busNo)
	})

	router.Delete("/:busNo/stops/:index", func(c *fiber.Ctx) error {
		index, err := strconv.Atoi(c.Params("index"))
		if err != nil {
			return sendError(c, fiber.StatusBadRequest, "Stop index must be a number")
		}

		if err := routes.DeleteStop(c.Context(), param(c, "busNo"), index); err != nil {
			return sendRouteError(c, err)
		}

		return c.SendStatus(fiber.StatusNoContent)
	})
}

// sendRoute replies with the route as stored, or 204 once its last stop is gone.
func sendRoute(c *fiber.Ctx, routes *busroutes.Manager, busNo string) error {
	route, err := routes.Get(c.Context(), busNo)
	if errors.Is(err, busroutes.ErrRouteNotFound) {
		return c.SendStatus(fiber.StatusNoContent)
	} else if err != nil {
		return sendRouteError(c, err)
	}

	return c.JSON(route)
}

func sendRouteError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, busroutes.ErrRouteExists):
		return sendError(c, fiber.StatusConflict, err.Error())
	case errors.Is(err, busroutes.ErrRouteNotFound), errors.Is(err, busroutes.ErrStopNotFound):
		return sendError(c, fiber.StatusNotFound, err.Error())
	case errors.Is(err, busroutes.ErrInvalidStop), errors.Is(err, busroutes.ErrMissingBusNo):
		return sendError(c, fiber.StatusBadRequest, err.Error())
	default:
		return sendError(c, fiber.StatusBadGateway, err.Error())
	}
}
