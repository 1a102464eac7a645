// Package app provides application initialization and dependency wiring.
//
// App is the container that assembles the assistant service: Genkit, the
// database pool, the catalog and conversation stores, the tool registry,
// and the orchestration loop.
package app

import (
	"github.com/firebase/genkit/go/genkit"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/garyalexisjeremiahchan/smartshop-sub001/internal/assistant"
	"github.com/garyalexisjeremiahchan/smartshop-sub001/internal/catalog"
	"github.com/garyalexisjeremiahchan/smartshop-sub001/internal/config"
	"github.com/garyalexisjeremiahchan/smartshop-sub001/internal/conversation"
	"github.com/garyalexisjeremiahchan/smartshop-sub001/internal/log"
	"github.com/garyalexisjeremiahchan/smartshop-sub001/internal/tools"
)

// App is the core application container.
type App struct {
	Config *config.Config

	Genkit        *genkit.Genkit
	DBPool        *pgxpool.Pool
	Catalog       *catalog.Store
	Conversations *conversation.Store
	Registry      *tools.Registry
	Loop          *assistant.Loop

	logger      log.Logger
	otelCleanup func()
}

// Close gracefully shuts down all resources.
func (a *App) Close() error {
	a.logger.Info("shutting down application")

	if a.DBPool != nil {
		a.DBPool.Close()
		a.logger.Info("database pool closed")
	}
	if a.otelCleanup != nil {
		a.otelCleanup()
	}
	return nil
}
