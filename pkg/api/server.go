package api

import (
	"github.com/busspass/busspass/pkg/adminauth"
	"github.com/busspass/busspass/pkg/api/routes"
	"github.com/busspass/busspass/pkg/busroutes"
	"github.com/busspass/busspass/pkg/livemap"
	"github.com/busspass/busspass/pkg/nfctags"
	"github.com/busspass/busspass/pkg/reports"
	"github.com/busspass/busspass/pkg/stats"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Services are the components served by the web API. Nil members leave
// their routes out. With Auth set every route after the login needs an
// admin token.
type Services struct {
	Auth      *adminauth.Authenticator
	Session   *livemap.Session
	Board     routes.Board
	Routes    *busroutes.Manager
	Dashboard *stats.Dashboard
	Reports   *reports.Manager
	Tags      *nfctags.Manager
}

func NewApp(services Services) *fiber.App {
	webApp := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})
	webApp.Use(NewLogger())

	webApp.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	group := webApp.Group("/core")

	group.Get("version", routes.APIVersion)

	if services.Auth != nil {
		routes.AuthRouter(group.Group("/auth"), services.Auth)
		group.Use(EnsureValidToken(services.Auth))
	}

	if services.Session != nil {
		routes.LiveRouter(group.Group("/live"), services.Session, services.Board)
	}

	if services.Routes != nil {
		routes.BusRoutesRouter(group.Group("/routes"), services.Routes)
	}

	if services.Dashboard != nil && services.Routes != nil {
		routes.DashboardRouter(group.Group("/dashboard"), services.Dashboard, services.Routes)
	}

	if services.Reports != nil {
		routes.ReportsRouter(group.Group("/reports"), services.Reports)
	}

	if services.Tags != nil {
		routes.NFCTagsRouter(group.Group("/nfc"), services.Tags)
	}

	return webApp
}
