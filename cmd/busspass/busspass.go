package main

import (
	"os"
	"time"

	"github.com/busspass/busspass/pkg/api"
	livecli "github.com/busspass/busspass/pkg/livemap/cli"
	"github.com/busspass/busspass/pkg/notify"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	_ "time/tzdata"
)

func main() {
	if os.Getenv("BUSSPASS_LOG_FORMAT") != "JSON" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	}

	if os.Getenv("BUSSPASS_DEBUG") == "YES" {
		log.Logger = log.Logger.Level(zerolog.DebugLevel)
	} else {
		log.Logger = log.Logger.Level(zerolog.InfoLevel)
	}

	app := &cli.App{
		Name:        "busspass",
		Description: "Bus pass admin backend - live bus map, routes, reports and notifications",

		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Usage:   "YAML configuration file",
				EnvVars: []string{"BUSSPASS_CONFIG"},
			},
		},

		Commands: []*cli.Command{
			api.RegisterCLI(),
			livecli.RegisterCLI(),
			notify.RegisterCLI(),
		},
	}

	err := app.Run(os.Args)
	if err != nil {
		log.Fatal().Err(err).Send()
	}
}
