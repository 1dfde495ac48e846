package notify

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/busspass/busspass/pkg/config"
	"github.com/busspass/busspass/pkg/consumer"
	"github.com/busspass/busspass/pkg/redis_client"
	"github.com/busspass/busspass/pkg/rtdb"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
)

func RegisterCLI() *cli.Command {
	return &cli.Command{
		Name:  "notify",
		Usage: "Provides the notification system",
		Subcommands: []*cli.Command{
			{
				Name:  "run",
				Usage: "run notify server",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "listen",
						Value: ":3333",
						Usage: "listen target for the queue stats server",
					},
				},
				Action: func(c *cli.Context) error {
					appConfig, err := config.Load(c.String("config"))
					if err != nil {
						return err
					}

					if err := redis_client.Connect(appConfig.Redis, appConfig.Notify.Timeout*10); err != nil {
						return err
					}

					firebaseApp, err := rtdb.NewFirebaseApp(context.Background(), rtdb.FirebaseConfig{
						DatabaseURL:    appConfig.Firebase.DatabaseURL,
						ServiceAccount: appConfig.Firebase.ServiceAccount,
					})
					if err != nil {
						return err
					}

					fcmClient, err := firebaseApp.Messaging(context.Background())
					if err != nil {
						return err
					}

					redisConsumer := consumer.RedisConsumer{
						Connection:      redis_client.QueueConnection,
						QueueName:       appConfig.Notify.Queue,
						NumberConsumers: appConfig.Notify.Consumers,
						BatchSize:       appConfig.Notify.BatchSize,
						Timeout:         appConfig.Notify.Timeout,
						Consumer:        NewNotifyBatchConsumer(&PushManager{Messaging: fcmClient}),
					}
					if err := redisConsumer.Setup(); err != nil {
						return err
					}

					statsApp := fiber.New(fiber.Config{DisableStartupMessage: true})
					consumer.StatsRouter(statsApp.Group("/"+appConfig.Notify.Queue), redis_client.QueueConnection, redis_client.Client)
					statsApp.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

					go func() {
						if err := statsApp.Listen(c.String("listen")); err != nil {
							log.Error().Err(err).Msg("Stats server stopped")
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

					statsApp.Shutdown()
					<-redis_client.QueueConnection.StopAllConsuming() // wait for all Consume() calls to finish

					return nil
				},
			},
		},
	}
}
