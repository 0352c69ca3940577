package mcp

import (
	"context"

	"stockcast/internal/batch"
	"stockcast/internal/config"
	"stockcast/internal/demandlog"
	"stockcast/internal/forecast"
	"stockcast/internal/optimizer"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog/log"
)

// ServerName identifies the server during the MCP handshake.
const ServerName = "stockcast"

// Server exposes forecasting and replenishment operations as MCP tools.
type Server struct {
	cfg       *config.AppConfig
	provider  *demandlog.Provider
	engine    *forecast.Engine
	optimizer *optimizer.Optimizer
	batch     *batch.Aggregator
}

// NewServer creates a new MCP server over the given components.
func NewServer(cfg *config.AppConfig, provider *demandlog.Provider, engine *forecast.Engine, opt *optimizer.Optimizer, agg *batch.Aggregator) *Server {
	return &Server{
		cfg:       cfg,
		provider:  provider,
		engine:    engine,
		optimizer: opt,
		batch:     agg,
	}
}

// Build returns an SDK server with every tool registered.
func (s *Server) Build(version string) *sdk.Server {
	server := sdk.NewServer(&sdk.Implementation{Name: ServerName, Version: version}, nil)
	s.registerTools(server)
	return server
}

// Start serves MCP over stdin/stdout until the client disconnects or ctx is done.
func (s *Server) Start(ctx context.Context, version string) error {
	log.Info().Str("version", version).Msg("MCP Server starting Stdio loop")
	if err := s.Build(version).Run(ctx, &sdk.StdioTransport{}); err != nil {
		log.Error().Err(err).Msg("MCP server stopped")
		return err
	}
	log.Info().Msg("MCP client disconnected")
	return nil
}
