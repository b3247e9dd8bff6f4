// Package server wires the host registry, the MCP endpoint and the metrics
// endpoint into one HTTP handler.
package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mcpui/uibridge/internal/config"
	"github.com/mcpui/uibridge/internal/host"
)

// New constructs the HTTP handler for the host server.
func New(reg *host.Registry, mcp *mcpserver.MCPServer, cfg config.ServerConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "Mcp-Session-Id"},
	}))

	r.HandleFunc("/ui/surfaces/{surface_id}/ws", reg.WSHandler())
	r.Mount("/mcp", mcpserver.NewStreamableHTTPServer(mcp))
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte("ok")) })
	if cfg.MetricsPort == cfg.Port || cfg.MetricsPort == 0 {
		r.Handle("/metrics", promhttp.Handler())
	}
	return r
}

// NewMetricsHandler serves only /metrics, for a separate listener.
func NewMetricsHandler() http.Handler {
	r := chi.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	return r
}
