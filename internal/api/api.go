package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"support-chat-backend/internal/queue"
	"support-chat-backend/internal/relay"
	"support-chat-backend/internal/service/auth"
	"support-chat-backend/internal/service/conversation"
	"support-chat-backend/internal/storage"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

const shutdownTimeout = 10 * time.Second

type RouteRegistrar func(mux *http.ServeMux, s *APIServer)

// Services are the dependencies route registrars draw from. Any of them may
// be nil when the process does not serve the matching routes.
type Services struct {
	Conversations *conversation.Service
	Auth          *auth.Service
	Relay         *relay.Handler
	Emitter       *relay.Emitter
	Files         storage.FileStore
}

type APIServer struct {
	listenAddr          string
	requestQueueManager *queue.RequestQueueManager
	services            Services
	routeRegistrars     []RouteRegistrar
	metrics             *metrics
}

func NewAPIServer(listenAddr string, rqm *queue.RequestQueueManager, services Services, registrars ...RouteRegistrar) *APIServer {
	return &APIServer{
		listenAddr:          listenAddr,
		requestQueueManager: rqm,
		services:            services,
		routeRegistrars:     registrars,
		metrics:             newMetrics(prometheus.DefaultRegisterer, rqm),
	}
}

// Handler builds the instrumented mux with every registered route.
func (s *APIServer) Handler() http.Handler {
	mux := http.NewServeMux()

	for _, reg := range s.routeRegistrars {
		reg(mux, s)
	}

	mux.Handle("/metrics", s.metrics.metricsHandler())

	return s.metrics.instrument(mux)
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *APIServer) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.listenAddr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.Info().Str("addr", s.listenAddr).Msg("server listening")
		errc <- server.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	log.Info().Str("addr", s.listenAddr).Msg("server shutting down")
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

func (s *APIServer) Conversations() *conversation.Service {
	return s.services.Conversations
}

func (s *APIServer) Auth() *auth.Service {
	return s.services.Auth
}

func (s *APIServer) Relay() *relay.Handler {
	return s.services.Relay
}

func (s *APIServer) Emitter() *relay.Emitter {
	return s.services.Emitter
}

func (s *APIServer) Files() storage.FileStore {
	return s.services.Files
}
