package main

import (
	"context"
	"errors"
	"time"

	"support-chat-backend/internal/client"
	"support-chat-backend/internal/logging"
	"support-chat-backend/internal/relay/event"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"
)

func watchCommand() *cli.Command {
	return &cli.Command{
		Name:  "watch",
		Usage: "Follow an organization's conversation list like an admin dashboard",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "server", Usage: "Server base `URL`", Value: "http://localhost:8080"},
			&cli.StringFlag{Name: "email", Usage: "Admin `EMAIL`", Required: true},
			&cli.StringFlag{Name: "password", Usage: "Admin `PASSWORD`", Required: true},
			&cli.DurationFlag{Name: "interval", Usage: "Refetch interval", Value: client.DefaultRefreshInterval},
			&cli.BoolFlag{Name: "no-push", Usage: "Rely on refetching only"},
		},
		Action: func(c *cli.Context) error {
			err := watch(c.Context, c.String("server"), c.String("email"), c.String("password"), c.Duration("interval"), !c.Bool("no-push"))
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
}

func watch(ctx context.Context, server, email, password string, interval time.Duration, push bool) error {
	base := client.NewAPI(server)
	login, err := base.Login(ctx, email, password)
	if err != nil {
		return err
	}
	admin := base.AsAdmin(login.Token)
	organizationID := login.Admin.OrganizationID

	reconciler := client.NewReconciler(admin, client.ReconcilerConfig{
		Interval: interval,
		OnChange: func(list []client.ConversationView) {
			unread := 0
			for _, c := range list {
				unread += c.UnreadCount
			}
			ev := log.Info().Int("conversations", len(list)).Int("unread", unread)
			if len(list) > 0 {
				ev = ev.Str("latest", list[0].ConversationID).
					Str("token", logging.ShortToken(list[0].AnonymousToken)).
					Str("last_message", list[0].LastMessage).
					Bool("online", list[0].Online)
			}
			ev.Msg("conversation list changed")
		},
	})

	g, ctx := errgroup.WithContext(ctx)

	var events <-chan event.Event
	if push {
		stream := client.NewStream(client.StreamConfig{URL: admin.StreamURL()})
		if err := stream.JoinAdminRoom(organizationID); err != nil {
			return err
		}
		events = stream.Events()
		g.Go(func() error {
			return stream.Run(ctx)
		})
	}
	g.Go(func() error {
		return reconciler.Run(ctx, events)
	})

	log.Info().Str("server", server).Str("organization", organizationID).Bool("push", push).Msg("watching conversations")
	return g.Wait()
}
