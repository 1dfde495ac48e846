package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/busspass/busspass/pkg/config"
	"github.com/busspass/busspass/pkg/livemap"
	"github.com/busspass/busspass/pkg/redis_client"
	"github.com/busspass/busspass/pkg/rtdb"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/kr/pretty"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
)

// TreeFlags select the realtime tree, shared by every command that reads it.
var TreeFlags = []cli.Flag{
	&cli.BoolFlag{
		Name:  "memory",
		Usage: "use an in-memory realtime tree instead of Firebase",
	},
	&cli.StringFlag{
		Name:  "seed",
		Usage: "JSON document to load into the in-memory tree",
	},
}

func TreeOptionsFromContext(c *cli.Context) TreeOptions {
	return TreeOptions{
		Memory: c.Bool("memory") || c.String("seed") != "",
		Seed:   c.String("seed"),
	}
}

func RegisterCLI() *cli.Command {
	return &cli.Command{
		Name:  "live",
		Usage: "Live bus positions map",
		Subcommands: []*cli.Command{
			{
				Name:  "run",
				Usage: "run the live map against the marker board",
				Flags: append([]cli.Flag{
					&cli.StringFlag{
						Name:  "listen",
						Value: ":3334",
						Usage: "listen target for the status and metrics server",
					},
					&cli.BoolFlag{
						Name:  "archive",
						Usage: "archive bus positions into MongoDB",
					},
				}, TreeFlags...),
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

					tree, err := OpenTree(ctx, appConfig, TreeOptionsFromContext(c))
					if err != nil {
						return err
					}
					defer tree.Close()

					runtime, err := Start(ctx, appConfig, tree, redis_client.Client, c.Bool("archive"))
					if err != nil {
						return err
					}

					statusApp := fiber.New(fiber.Config{DisableStartupMessage: true})
					statusApp.Get("/status", func(c *fiber.Ctx) error {
						return c.JSON(runtime.Session.Status())
					})
					statusApp.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

					go func() {
						if err := statusApp.Listen(c.String("listen")); err != nil {
							log.Error().Err(err).Msg("Status server stopped")
						}
					}()

					signals := make(chan os.Signal, 1)
					signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
					defer signal.Stop(signals)

					<-signals // wait for signal
					go func() {
						<-signals // hard exit on second signal (in case shutdown gets stuck)
						os.Exit(1)
					}()

					statusApp.Shutdown()
					runtime.Stop()

					return nil
				},
			},
			{
				Name:  "dump",
				Usage: "print the current bus locations snapshot",
				Flags: TreeFlags,
				Action: func(c *cli.Context) error {
					appConfig, err := config.Load(c.String("config"))
					if err != nil {
						return err
					}

					ctx := context.Background()

					tree, err := OpenTree(ctx, appConfig, TreeOptionsFromContext(c))
					if err != nil {
						return err
					}
					defer tree.Close()

					var raw rtdb.Value
					if err := tree.Get(ctx, appConfig.Live.Path, &raw); err != nil {
						return err
					}

					snapshot, err := livemap.DecodeSnapshot(raw)
					if err != nil {
						return err
					}

					pretty.Println(snapshot)
					fmt.Println(livemap.FallbackText(snapshot))

					return nil
				},
			},
		},
	}
}
