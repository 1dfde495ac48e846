package routes

import (
	"context"
	"errors"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/busspass/busspass/pkg/livemap"
	"github.com/busspass/busspass/pkg/markerboard"
	"github.com/gofiber/fiber/v2"
	"github.com/liip/sheriff"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
)

// Board is the browser facing marker state kept by the map provider.
type Board interface {
	Markers(ctx context.Context) ([]markerboard.MarkerState, error)
	Viewport(ctx context.Context) (markerboard.Viewport, error)
	Click(id string) error
}

func LiveRouter(router fiber.Router, session *livemap.Session, board Board) {
	router.Get("/status", func(c *fiber.Ctx) error {
		return c.JSON(session.Status())
	})

	router.Get("/markers", func(c *fiber.Ctx) error {
		groups := []string{"basic"}
		if c.QueryBool("detailed") {
			groups = []string{"basic", "detailed"}
		}

		markersReduced, err := sheriff.Marshal(&sheriff.Options{
			Groups: groups,
		}, session.Markers())
		if err != nil {
			return sendError(c, fiber.StatusInternalServerError, "Sherrif could not reduce markers")
		}

		return c.JSON(markersReduced)
	})

	router.Get("/markers/:key", func(c *fiber.Ctx) error {
		marker, ok := session.Marker(param(c, "key"))
		if !ok {
			return sendError(c, fiber.StatusNotFound, "Could not find bus matching the key")
		}

		markerReduced, err := sheriff.Marshal(&sheriff.Options{
			Groups: []string{"basic", "detailed"},
		}, marker)
		if err != nil {
			return sendError(c, fiber.StatusInternalServerError, "Sherrif could not reduce marker")
		}

		return c.JSON(markerReduced)
	})

	router.Post("/markers/:key/click", func(c *fiber.Ctx) error {
		if err := session.Click(param(c, "key")); err != nil {
			return sendLiveError(c, err)
		}

		selected, _ := session.Selected()
		return c.JSON(selected)
	})

	router.Get("/selected", func(c *fiber.Ctx) error {
		selected, ok := session.Selected()
		if !ok {
			return sendError(c, fiber.StatusNotFound, "No bus selected")
		}

		return c.JSON(selected)
	})

	router.Delete("/selected", func(c *fiber.Ctx) error {
		session.ClearSelection()
		return c.SendStatus(fiber.StatusNoContent)
	})

	router.Post("/pause", func(c *fiber.Ctx) error {
		session.Pause()
		return c.JSON(session.Status())
	})

	router.Post("/resume", func(c *fiber.Ctx) error {
		if err := session.Resume(); err != nil {
			return sendError(c, fiber.StatusInternalServerError, err.Error())
		}

		return c.JSON(session.Status())
	})

	router.Post("/fit", func(c *fiber.Ctx) error {
		if err := session.ShowAll(); err != nil {
			return sendLiveError(c, err)
		}

		return c.SendStatus(fiber.StatusNoContent)
	})

	router.Get("/vehicle_positions", func(c *fiber.Ctx) error {
		feed := livemap.VehiclePositions(session.Snapshot(), time.Now())

		if c.Query("format") == "json" {
			encoded, err := protojson.Marshal(feed)
			if err != nil {
				return sendError(c, fiber.StatusInternalServerError, err.Error())
			}

			c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
			return c.Send(encoded)
		}

		encoded, err := proto.Marshal(feed)
		if err != nil {
			return sendError(c, fiber.StatusInternalServerError, err.Error())
		}

		c.Set(fiber.HeaderContentType, "application/x-protobuf")
		return c.Send(encoded)
	})

	if board != nil {
		BoardRouter(router.Group("/board"), board)
	}
}

func BoardRouter(router fiber.Router, board Board) {
	router.Get("/markers", func(c *fiber.Ctx) error {
		markers, err := board.Markers(c.Context())
		if err != nil {
			return sendError(c, fiber.StatusServiceUnavailable, err.Error())
		}

		slices.SortFunc(markers, func(a markerboard.MarkerState, b markerboard.MarkerState) int {
			return strings.Compare(a.ID, b.ID)
		})

		return c.JSON(markers)
	})

	router.Get("/viewport", func(c *fiber.Ctx) error {
		viewport, err := board.Viewport(c.Context())
		if err != nil {
			return sendError(c, fiber.StatusServiceUnavailable, err.Error())
		}

		return c.JSON(viewport)
	})

	router.Post("/markers/:id/click", func(c *fiber.Ctx) error {
		if err := board.Click(c.Params("id")); err != nil {
			if errors.Is(err, markerboard.ErrUnknownMarker) {
				return sendError(c, fiber.StatusNotFound, err.Error())
			}
			return sendError(c, fiber.StatusInternalServerError, err.Error())
		}

		return c.SendStatus(fiber.StatusAccepted)
	})
}

func sendLiveError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, livemap.ErrUnknownMarker):
		return sendError(c, fiber.StatusNotFound, err.Error())
	case errors.Is(err, livemap.ErrFallbackMode), errors.Is(err, livemap.ErrNotReady):
		return sendError(c, fiber.StatusConflict, err.Error())
	default:
		return sendError(c, fiber.StatusBadGateway, err.Error())
	}
}

func param(c *fiber.Ctx, name string) string {
	value, err := url.PathUnescape(c.Params(name))
	if err != nil {
		return c.Params(name)
	}

	return value
}

func sendError(c *fiber.Ctx, status int, message string) error {
	c.Status(status)
	return c.JSON(fiber.Map{
		"error": message,
	})
}
