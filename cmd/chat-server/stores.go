package main

import (
	"context"
	"fmt"
	"time"

	"support-chat-backend/internal/database"
	"support-chat-backend/internal/env"
	authsvc "support-chat-backend/internal/service/auth"
	conversationservice "support-chat-backend/internal/service/conversation"

	"github.com/rs/zerolog/log"
)

type stores struct {
	db            *database.Database
	conversations *conversationservice.Service
	auth          *authsvc.Service
}

// openStores builds the services over the record store picked by
// STORE_DRIVER. The memory driver keeps everything in the process.
func openStores(ctx context.Context) (stores, error) {
	switch driver := env.Get(env.StoreDriver); driver {
	case "memory":
		log.Warn().Msg("using in-memory store, data is lost on restart")
		return stores{
			conversations: conversationservice.NewWithRepository(conversationservice.NewMemoryRepository(), time.Now),
			auth:          authsvc.NewWithRepository(authsvc.NewMemoryRepository(), time.Now),
		}, nil
	case "", "dynamodb":
		db, err := database.NewDatabase(ctx)
		if err != nil {
			return stores{}, err
		}
		return stores{
			db:            db,
			conversations: conversationservice.New(db),
			auth:          authsvc.New(db),
		}, nil
	default:
		return stores{}, fmt.Errorf("unknown store driver %q", driver)
	}
}
