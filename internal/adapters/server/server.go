// Package server composes the board REST API, MCP, and metrics transports into one process handler.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/hylla/kanri/internal/adapters/server/common"
	"github.com/hylla/kanri/internal/adapters/server/httpapi"
	"github.com/hylla/kanri/internal/adapters/server/mcpapi"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// defaultBindAddress defines the localhost-first serve default.
const defaultBindAddress = "127.0.0.1:8080"

// defaultShutdownTimeout bounds graceful shutdown time once context cancellation starts.
const defaultShutdownTimeout = 5 * time.Second

// Config defines serve-mode endpoint configuration.
type Config struct {
	HTTPBind        string
	V1Prefix        string
	APIPrefix       string
	MCPEndpoint     string
	MetricsEndpoint string
	ServerName      string
	ServerVersion   string
}

// Dependencies defines the services mounted by the composed handler.
// At least one of Backend or Board is required.
type Dependencies struct {
	Backend httpapi.Backend
	Board   common.BoardService
	Logger  httpapi.Logger
	// Registry collects request metrics. Nil builds a private registry.
	Registry *prometheus.Registry
}

// NewHandler composes one root HTTP mux containing health, metrics, REST API, and MCP endpoints.
func NewHandler(cfg Config, deps Dependencies) (http.Handler, Config, error) {
	normalizedCfg, err := normalizeConfig(cfg)
	if err != nil {
		return nil, Config{}, err
	}
	if deps.Backend == nil && deps.Board == nil {
		return nil, Config{}, fmt.Errorf("backend or board dependency is required")
	}
	registry := deps.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
		registry.MustRegister(collectors.NewGoCollector())
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", writeHealthStatus)
	mux.HandleFunc("/readyz", writeHealthStatus)
	mux.Handle(normalizedCfg.MetricsEndpoint, promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	if deps.Board != nil {
		mcpHandler, err := mcpapi.NewHandler(
			mcpapi.Config{
				ServerName:    normalizedCfg.ServerName,
				ServerVersion: normalizedCfg.ServerVersion,
				EndpointPath:  normalizedCfg.MCPEndpoint,
			},
			deps.Board,
		)
		if err != nil {
			return nil, Config{}, fmt.Errorf("configure mcp handler: %w", err)
		}
		mux.Handle(normalizedCfg.MCPEndpoint, mcpHandler)
	}
	if deps.Backend != nil {
		apiHandler, err := httpapi.NewHandler(deps.Backend, httpapi.Config{
			V1Prefix:   normalizedCfg.V1Prefix,
			APIPrefix:  normalizedCfg.APIPrefix,
			Logger:     deps.Logger,
			Registerer: registry,
		})
		if err != nil {
			return nil, Config{}, fmt.Errorf("configure api handler: %w", err)
		}
		mux.Handle(normalizedCfg.V1Prefix+"/", apiHandler)
		mux.Handle(normalizedCfg.APIPrefix+"/", apiHandler)
	}
	return mux, normalizedCfg, nil
}

// Run starts the composed HTTP server and blocks until shutdown or startup failure.
func Run(ctx context.Context, cfg Config, deps Dependencies) error {
	if ctx == nil {
		ctx = context.Background()
	}

	handler, normalizedCfg, err := NewHandler(cfg, deps)
	if err != nil {
		return fmt.Errorf("build server handler: %w", err)
	}
	httpServer := &http.Server{
		Addr:              normalizedCfg.HTTPBind,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErrCh := make(chan error, 1)
	go func() {
		serveErrCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serveErrCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listen and serve: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
		defer cancel()

		shutdownErr := httpServer.Shutdown(shutdownCtx)
		serveErr := <-serveErrCh
		if shutdownErr != nil && !errors.Is(shutdownErr, context.Canceled) {
			return fmt.Errorf("shutdown server: %w", shutdownErr)
		}
		if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			return fmt.Errorf("serve after shutdown: %w", serveErr)
		}
		return nil
	}
}

// normalizeConfig applies defaults and validates endpoint collisions.
func normalizeConfig(cfg Config) (Config, error) {
	cfg.HTTPBind = strings.TrimSpace(cfg.HTTPBind)
	if cfg.HTTPBind == "" {
		cfg.HTTPBind = defaultBindAddress
	}

	cfg.V1Prefix = normalizeEndpoint(cfg.V1Prefix, "/v1")
	cfg.APIPrefix = normalizeEndpoint(cfg.APIPrefix, "/api")
	cfg.MCPEndpoint = normalizeEndpoint(cfg.MCPEndpoint, "/mcp")
	cfg.MetricsEndpoint = normalizeEndpoint(cfg.MetricsEndpoint, "/metrics")
	seen := map[string]bool{"/healthz": true, "/readyz": true}
	for _, path := range []string{cfg.V1Prefix, cfg.APIPrefix, cfg.MCPEndpoint, cfg.MetricsEndpoint} {
		if seen[path] {
			return Config{}, fmt.Errorf("endpoint %q is configured more than once", path)
		}
		seen[path] = true
	}

	cfg.ServerName = strings.TrimSpace(cfg.ServerName)
	if cfg.ServerName == "" {
		cfg.ServerName = "kanri"
	}
	cfg.ServerVersion = strings.TrimSpace(cfg.ServerVersion)
	if cfg.ServerVersion == "" {
		cfg.ServerVersion = "dev"
	}
	return cfg, nil
}

// normalizeEndpoint normalizes one endpoint path and applies fallback defaults.
func normalizeEndpoint(path string, fallback string) string {
	path = strings.TrimSpace(path)
	if path == "" {
		path = fallback
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	path = "/" + strings.Trim(path, "/")
	if path == "/" {
		return fallback
	}
	return path
}

// writeHealthStatus responds with a fixed readiness payload.
func writeHealthStatus(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}` + "\n"))
}
