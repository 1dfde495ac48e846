package consumer

import (
	"context"

	"github.com/adjust/rmq/v5"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

// StatsRouter serves the rmq queue overview and a health check.
func StatsRouter(router fiber.Router, connection rmq.Connection, client *redis.Client) {
	router.Get("/stats", func(c *fiber.Ctx) error {
		queues, err := connection.GetOpenQueues()
		if err != nil {
			c.SendStatus(fiber.StatusInternalServerError)
			return c.JSON(fiber.Map{
				"error": err.Error(),
			})
		}

		stats, err := connection.CollectStats(queues)
		if err != nil {
			c.SendStatus(fiber.StatusInternalServerError)
			return c.JSON(fiber.Map{
				"error": err.Error(),
			})
		}

		c.Set(fiber.HeaderContentType, fiber.MIMETextHTMLCharsetUTF8)
		return c.SendString(stats.GetHtml(c.Query("layout"), c.Query("refresh")))
	})

	router.Get("/health", func(c *fiber.Ctx) error {
		if err := client.Ping(context.Background()).Err(); err != nil {
			c.SendStatus(fiber.StatusInternalServerError)
			return c.SendString(err.Error())
		}

		return c.SendString("OK")
	})
}
