package api

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/busspass/busspass/pkg/adminauth"
	"github.com/busspass/busspass/pkg/busroutes"
	"github.com/busspass/busspass/pkg/config"
	livecli "github.com/busspass/busspass/pkg/livemap/cli"
	"github.com/busspass/busspass/pkg/nfctags"
	"github.com/busspass/busspass/pkg/notify"
	"github.com/busspass/busspass/pkg/redis_client"
	"github.com/busspass/busspass/pkg/reports"
	"github.com/busspass/busspass/pkg/stats"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
)

func RegisterCLI() *cli.Command {
	return &cli.Command{
		Name:  "web-api",
		Usage: "Provides the admin web API",
		Subcommands: []*cli.Command{
			{
				Name:  "run",
				Usage: "run web api server",
				Flags: append([]cli.Flag{
					&cli.StringFlag{
						Name:  "listen",
						Usage: "listen target for the web server, defaults to api.listen from the config",
					},
					&cli.BoolFlag{
						Name:  "archive",
						Usage: "archive bus positions into MongoDB",
					},
				}, livecli.TreeFlags...),
				Action: func(c *cli.Context) error {
					appConfig, err := config.Load(c.String("config"))
					if err != nil {
						return err
					}

					if err := redis_client.Connect(appConfig.Redis, time.Minute); err != nil {
						return err
					}

					ctx, cancel := context.WithCancel(context.Background())
					defer cancel()

					tree, err := livecli.OpenTree(ctx, appConfig, livecli.TreeOptionsFromContext(c))
					if err != nil {
						return err
					}
					defer tree.Close()

					runtime, err := livecli.Start(ctx, appConfig, tree, redis_client.Client, c.Bool("archive"))
					if err != nil {
						return err
					}
					defer runtime.Stop()

					routeManager, err := busroutes.NewManager(tree, appConfig.Routes.HelperFilter)
					if err != nil {
						return err
					}

					publisher, err := notify.NewQueuePublisher(redis_client.QueueConnection, appConfig.Notify.Queue, appConfig.Notify.Topic)
					if err != nil {
						return err
					}

					dashboard := stats.NewDashboard(tree)
					if appConfig.Stats.CacheTTL > 0 {
						dashboard.WithCache(redis_client.Client, appConfig.Redis.KeyPrefix, appConfig.Stats.CacheTTL)
					}

					authenticator, err := adminauth.New(tree, appConfig.Auth)
					if err != nil {
						return err
					}

					webApp := NewApp(Services{
						Auth:      authenticator,
						Session:   runtime.Session,
						Board:     runtime.Board,
						Routes:    routeManager,
						Dashboard: dashboard,
						Reports:   reports.NewManager(tree, publisher),
						Tags:      nfctags.NewManager(tree),
					})

					listen := c.String("listen")
					if listen == "" {
						listen = appConfig.API.Listen
					}

					go func() {
						signals := make(chan os.Signal, 1)
						signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

						<-signals // wait for signal
						go func() {
							<-signals // hard exit on second signal (in case shutdown gets stuck)
							os.Exit(1)
						}()

						if err := webApp.Shutdown(); err != nil {
							log.Error().Err(err).Msg("Failed to shut down web server")
						}
					}()

					log.Info().Str("listen", listen).Msg("Starting web API")

					return webApp.Listen(listen)
				},
			},
		},
	}
}
