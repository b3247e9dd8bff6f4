package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/mcpui/uibridge/internal/config"
	"github.com/mcpui/uibridge/internal/host"
	"github.com/mcpui/uibridge/internal/logx"
	"github.com/mcpui/uibridge/internal/metrics"
	"github.com/mcpui/uibridge/internal/renderstore"
	"github.com/mcpui/uibridge/internal/server"
	"github.com/mcpui/uibridge/sdk/wire"
)

var (
	version   = "dev"
	buildSHA  = "unknown"
	buildDate = "unknown"
)

func main() {
	var cfg config.ServerConfig
	cfg.BindFlags()
	flag.String("config", "", "optional YAML config file")
	// The file is overlaid before flag.Parse, so flags given on the command
	// line win over file values and file values win over env defaults.
	if path := configArg(os.Args[1:]); path != "" {
		if err := cfg.LoadFile(path); err != nil {
			logx.Log.Fatal().Err(err).Msg("load config")
		}
	}
	flag.Parse()
	logx.SetLevel(cfg.LogLevel)

	resize, err := host.ParseResizePolicy(cfg.ResizePolicy)
	if err != nil {
		logx.Log.Fatal().Err(err).Msg("invalid resize policy")
	}

	var store renderstore.Store = renderstore.NewMemory()
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		store = renderstore.NewRedis(client, 24*time.Hour)
		logx.Log.Info().Str("addr", cfg.RedisAddr).Msg("render data store on redis")
	}

	metrics.Register(prometheus.DefaultRegisterer)
	metrics.SetServerBuildInfo(version, buildSHA, buildDate)

	reg := host.NewRegistry(host.Options{
		Actions:        logActions,
		RenderData:     store,
		Resize:         resize,
		HandlerTimeout: cfg.RequestTimeout,
	})
	mcpSrv := server.NewMCPServer(reg, store, version)
	handler := server.New(reg, mcpSrv, cfg)
	srv := &http.Server{Addr: fmt.Sprintf(":%d", cfg.Port), Handler: handler}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		reg.CloseAll()
		_ = srv.Shutdown(context.Background())
	}()

	if cfg.MetricsPort != 0 && cfg.MetricsPort != cfg.Port {
		go func() {
			addr := fmt.Sprintf(":%d", cfg.MetricsPort)
			logx.Log.Info().Str("addr", addr).Msg("metrics listener starting")
			if err := http.ListenAndServe(addr, server.NewMetricsHandler()); err != nil && err != http.ErrServerClosed {
				logx.Log.Error().Err(err).Msg("metrics listener error")
			}
		}()
	}

	logx.Log.Info().Int("port", cfg.Port).Msg("server starting")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logx.Log.Fatal().Err(err).Msg("server error")
	}
}

// configArg extracts the -config value ahead of flag.Parse; the file must
// be applied before parsing for the precedence above to hold.
func configArg(args []string) string {
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--" {
			return ""
		}
		if !strings.HasPrefix(arg, "-") {
			continue
		}
		name, value, hasValue := strings.Cut(strings.TrimLeft(arg, "-"), "=")
		if name != "config" {
			continue
		}
		if hasValue {
			return value
		}
		if i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

// logActions is the default action handler: it records the action and
// resolves it, so correlated surfaces see the full ack/response flow even
// before an embedder plugs in real behavior.
func logActions(ctx context.Context, s *host.Surface, action wire.Action) (any, error) {
	logx.Log.Info().Str("surface_id", s.ID).Type("action", action).Msg("surface action")
	return map[string]any{"status": "accepted"}, nil
}
