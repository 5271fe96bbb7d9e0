package main

import (
	"context"
	"errors"

	"support-chat-backend/internal/api"
	"support-chat-backend/internal/api/router"
	"support-chat-backend/internal/env"
	"support-chat-backend/internal/presence"
	"support-chat-backend/internal/queue"
	"support-chat-backend/internal/relay"
	authsvc "support-chat-backend/internal/service/auth"
	"support-chat-backend/internal/storage"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

type mode string

const (
	modeAll   mode = "all"
	modeAPI   mode = "api"
	modeRelay mode = "relay"
)

func (m mode) servesAPI() bool   { return m != modeRelay }
func (m mode) servesRelay() bool { return m != modeAPI }

func serveCommand(m mode, usage string) *cli.Command {
	return &cli.Command{
		Name:  string(m),
		Usage: usage,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "addr",
				Usage: "Listen on `ADDRESS` instead of HTTP_ADDR",
			},
			&cli.StringFlag{
				Name:  "seed-admin-email",
				Usage: "Create this admin on startup if it does not exist",
			},
			&cli.StringFlag{
				Name:  "seed-admin-password",
				Usage: "Password for --seed-admin-email",
			},
		},
		Action: func(c *cli.Context) error {
			if addr := c.String("addr"); addr != "" {
				env.Set(env.HTTPAddr, addr)
			}
			err := serve(c.Context, m, c.String("seed-admin-email"), c.String("seed-admin-password"))
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
}

func serve(ctx context.Context, m mode, seedEmail, seedPassword string) error {
	if err := env.Require(env.AdminSecretKey); err != nil {
		return err
	}

	st, err := openStores(ctx)
	if err != nil {
		return err
	}
	if seedEmail != "" {
		seedAdmin(ctx, st.auth, seedEmail, seedPassword)
	}

	queueManager := queue.NewRequestQueueManager(env.GetInt(env.QueueSize), env.GetInt(env.QueueWorkers))
	defer queueManager.Shutdown()

	g, ctx := errgroup.WithContext(ctx)

	services := api.Services{Conversations: st.conversations, Auth: st.auth}
	registrars := []api.RouteRegistrar{router.UtilsRoutes(apiPrefix)}

	var (
		hub   *relay.Hub
		local *relay.LocalBroker
	)
	if m.servesRelay() {
		hub = relay.NewHub()
		local = relay.NewLocalBroker(hub, nil)
		g.Go(func() error {
			hub.Run(ctx)
			return nil
		})
	}

	var (
		broker     relay.Broker = local
		subscriber *relay.RedisBroker
	)
	if m != modeAll || env.Get(env.BrokerDriver) == "redis" {
		redisBroker := relay.NewRedisBroker(relay.NewRedisClient(), "")
		if err := redisBroker.Ping(ctx); err != nil {
			return err
		}
		broker = redisBroker
		subscriber = redisBroker
	}
	emitter := relay.NewEmitter(broker)
	services.Emitter = emitter

	if m.servesRelay() {
		tracker := presence.NewTracker(st.conversations, emitter, presence.Config{
			IdleTimeout: env.GetDuration(env.PresenceIdleTimeout),
			EvictAfter:  env.GetDuration(env.PresenceEvictAfter),
			SweepSpec:   env.Get(env.PresenceSweepSpec),
		})
		local.SetActivitySink(tracker)
		if err := tracker.Start(); err != nil {
			return err
		}
		g.Go(func() error {
			<-ctx.Done()
			tracker.Stop()
			return nil
		})

		services.Relay = relay.NewHandler(hub, st.conversations, tracker, relay.HandlerConfig{
			FrameRate:  rate.Limit(env.GetInt(env.RelayFrameRate)),
			FrameBurst: env.GetInt(env.RelayFrameBurst),
		})
		registrars = append(registrars, router.RelayRoutes(apiPrefix))

		// Subscribe only once presence is wired so remote activity is not lost.
		if subscriber != nil {
			g.Go(func() error {
				return subscriber.Subscribe(ctx, local.Deliver)
			})
		}
	}

	if m.servesAPI() {
		files, err := storage.New(ctx)
		if err != nil {
			return err
		}
		services.Files = files
		registrars = append(registrars,
			router.ConversationRoutes(apiPrefix),
			router.AuthRoutes(apiPrefix),
			router.UploadRoutes(apiPrefix, env.GetInt64(env.UploadMaxBytes)),
		)
	}

	server := api.NewAPIServer(env.Get(env.HTTPAddr), queueManager, services, registrars...)
	g.Go(func() error {
		return server.Run(ctx)
	})

	log.Info().Str("mode", string(m)).Str("store", env.Get(env.StoreDriver)).Msg("chat server started")
	return g.Wait()
}

func seedAdmin(ctx context.Context, auth *authsvc.Service, email, password string) {
	admin, err := auth.CreateAdmin(ctx, authsvc.CreateAdminParams{Email: email, Password: password})
	var svcErr *authsvc.Error
	switch {
	case err == nil:
		log.Info().Str("admin", admin.AdminID).Str("organization", admin.OrganizationID).Msg("seeded admin")
	case errors.As(err, &svcErr) && svcErr.Code == authsvc.ErrorCodeConflict:
		log.Debug().Str("email", email).Msg("seed admin already exists")
	default:
		log.Warn().Err(err).Str("email", email).Msg("failed to seed admin")
	}
}
