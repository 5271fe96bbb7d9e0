package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"support-chat-backend/internal/env"
	internaljwt "support-chat-backend/internal/jwt"
	"support-chat-backend/internal/logging"

	"github.com/urfave/cli/v2"
)

const (
	version   = "0.3.0"
	apiPrefix = "/api"
)

func main() {
	app := &cli.App{
		Name:    "chat-server",
		Usage:   "Anonymous support chat: HTTP API, realtime relay and admin tooling",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Load configuration from `FILE`",
				Value:   "chat-server.toml",
			},
		},
		Before: func(c *cli.Context) error {
			if err := env.Load(c.String("config")); err != nil {
				return err
			}
			logging.Setup(env.Get(env.LogLevel), env.GetBool(env.LogPretty))
			internaljwt.SetSecret(internaljwt.RoleAdmin, env.Get(env.AdminSecretKey))
			return nil
		},
		Commands: []*cli.Command{
			serveCommand(modeAll, "Serve the HTTP API and the relay in one process"),
			serveCommand(modeAPI, "Serve the HTTP API and publish relay events to Redis"),
			serveCommand(modeRelay, "Serve the websocket relay and presence, fed from Redis"),
			setupAdminCommand(),
			setupTablesCommand(),
			watchCommand(),
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.RunContext(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
