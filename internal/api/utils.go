package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"support-chat-backend/internal/api/middleware"
	"support-chat-backend/internal/queue"

	"github.com/rs/zerolog/log"
)

type apiFunc func(http.ResponseWriter, *http.Request) error

func WriteJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Add("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}

func (s *APIServer) MakeHTTPHandleFunc(f apiFunc, authMiddleware ...middleware.Middleware) http.HandlerFunc {
	corsConfig := middleware.DefaultCORSConfig()

	baseHandler := func(w http.ResponseWriter, r *http.Request) {
		errc := make(chan error, 1)

		job := queue.Job{
			Fn: func() error {
				return f(w, r)
			},
			Errc: errc,
		}

		s.requestQueueManager.EnqueueJob(job)

		err := <-errc
		if err != nil {
			writeError(w, r, err)
		}
	}

	middlewares := []middleware.Middleware{
		middleware.CORS(corsConfig),
		middleware.Logging(),
	}

	finalHandler := func(w http.ResponseWriter, r *http.Request) {
		if len(authMiddleware) > 0 {
			middleware.Chain(baseHandler, authMiddleware...)(w, r)
			return
		}
		baseHandler(w, r)
	}

	return middleware.Chain(finalHandler, middlewares...)
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		log.Error().Err(err).Str("path", r.URL.Path).Msg("unhandled handler error")
		WriteJSON(w, http.StatusInternalServerError, ApiError{Error: "Internal server error"})
		return
	}

	ev := log.Debug()
	if httpErr.StatusCode >= http.StatusInternalServerError {
		ev = log.Error()
	}
	ev.Err(httpErr.ErrorLog).Int("status", httpErr.StatusCode).Str("path", r.URL.Path).Msg(httpErr.Message)

	WriteJSON(w, httpErr.StatusCode, ApiError{Error: httpErr.Message})
}
