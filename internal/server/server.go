package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/berfenger/virtualdevices/internal/config"
	"github.com/berfenger/virtualdevices/internal/core/domain"
	"github.com/berfenger/virtualdevices/internal/core/flow"
	"github.com/berfenger/virtualdevices/internal/core/port"

	_ "github.com/joho/godotenv/autoload"
	"go.uber.org/zap"
)

// HostAPI is the part of the entity host reachable over HTTP.
type HostAPI interface {
	Health(ctx context.Context) (bool, error)
	Entities(ctx context.Context) ([]domain.EntityStatus, error)
	Command(ctx context.Context, uniqueId, command string) (*domain.EntityCommandResponse, error)
	UnloadEntry(ctx context.Context, entryId string) error
}

type FlowAPI interface {
	StartConfigFlow(ctx context.Context) (*flow.Result, error)
	StartOptionsFlow(ctx context.Context, entryId string) (*flow.Result, error)
	Configure(ctx context.Context, flowId string, input map[string]any) (*flow.Result, error)
	Abort(flowId string) error
}

type Deps struct {
	Host    HostAPI
	Flows   FlowAPI
	Catalog port.PluginCatalog
	Store   port.EntryStore
	Logger  *zap.Logger
}

type Server struct {
	port    uint
	httpLog bool
	deps    Deps
	logger  *zap.Logger
}

func NewServer(cfg config.Config, deps Deps) *http.Server {
	NewServer := &Server{
		port:    cfg.Port,
		httpLog: cfg.HttpLog,
		deps:    deps,
		logger:  deps.Logger.With(zap.String("component", "http")),
	}

	// Declare Server config
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", NewServer.port),
		Handler:      NewServer.RegisterRoutes(),
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 40 * time.Second,
	}

	return server
}
