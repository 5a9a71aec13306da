// Copyright 2025 The deepr Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// The deepr-mcp command serves the deepr research toolset over MCP,
// either on stdio for a locally spawned client or over HTTP for
// remote ones.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/google/jsonschema-go/jsonschema"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/blisspixel/deepr/auth"
	"github.com/blisspixel/deepr/gateway"
	"github.com/blisspixel/deepr/mcp"
	"github.com/blisspixel/deepr/metrics"
	"github.com/blisspixel/deepr/ssrf"
	"github.com/blisspixel/deepr/toolindex"

	internaljson "github.com/blisspixel/deepr/internal/json"
)

// Flags.
var (
	mode          = flag.String("mode", "stdio", `serve mode: "stdio" or "http"`)
	addr          = flag.String("addr", "localhost:8080", "HTTP listen address (http mode)")
	toolsPath     = flag.String("tools", "", "path to a JSON file of tool schemas to register")
	enableMetrics = flag.Bool("metrics", false, "expose Prometheus metrics at /metrics (http mode)")
	keepAlive     = flag.Duration("keepalive", mcp.DefaultKeepAliveInterval, "SSE keepalive interval")
)

// config is the environment-supplied half of the configuration:
// values that are secrets or deployment-specific.
type config struct {
	AuthSecret     string   `env:"DEEPR_AUTH_SECRET"`
	AuthIssuer     string   `env:"DEEPR_AUTH_ISSUER" envDefault:"deepr"`
	AllowedDomains []string `env:"DEEPR_ALLOWED_DOMAINS" envSeparator:","`
	SSRFAudit      bool     `env:"DEEPR_SSRF_AUDIT" envDefault:"true"`
	PostRPS        float64  `env:"DEEPR_POST_RPS"`
	MaxBodyBytes   int64    `env:"DEEPR_MAX_BODY_BYTES"`
}

func main() {
	flag.Parse()

	// stdout carries the protocol in stdio mode; logs go to stderr.
	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("deepr-mcp exited", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	var cfg config
	if err := env.Parse(&cfg); err != nil {
		return fmt.Errorf("parsing environment: %w", err)
	}

	registry := toolindex.NewRegistry()
	if *toolsPath != "" {
		n, err := loadTools(registry, *toolsPath)
		if err != nil {
			return fmt.Errorf("loading tools from %s: %w", *toolsPath, err)
		}
		logger.Info("registered tools", "count", n, "path", *toolsPath)
	}

	searchTool := gateway.New(registry)
	guard := ssrf.New(cfg.AllowedDomains, cfg.SSRFAudit)
	guard.Logger = logger

	server := mcp.NewServer()
	registerMethods(server, searchTool, guard, registry)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch *mode {
	case "stdio":
		return serveStdio(ctx, server, logger)
	case "http":
		return serveHTTP(ctx, cfg, server, registry, logger)
	default:
		return fmt.Errorf("unknown mode %q", *mode)
	}
}

// registerMethods binds the service's JSON-RPC surface.
func registerMethods(server *mcp.Server, searchTool *gateway.Tool, guard *ssrf.Protector, registry *toolindex.Registry) {
	server.RegisterMethod("ping", func(ctx context.Context, params json.RawMessage) (any, error) {
		return map[string]bool{"pong": true}, nil
	})

	server.RegisterMethod(gateway.ToolName, func(ctx context.Context, params json.RawMessage) (any, error) {
		var args struct {
			Query string `json:"query"`
			Limit int    `json:"limit"`
		}
		if len(params) > 0 {
			if err := internaljson.Unmarshal(params, &args); err != nil {
				return nil, fmt.Errorf("invalid search params: %w", err)
			}
		}
		return searchTool.Search(args.Query, args.Limit), nil
	})

	server.RegisterMethod("tools/list", func(ctx context.Context, params json.RawMessage) (any, error) {
		return map[string]any{"tools": registry.All()}, nil
	})

	server.RegisterMethod("outbound/check", func(ctx context.Context, params json.RawMessage) (any, error) {
		var args struct {
			URL string `json:"url"`
		}
		if err := internaljson.Unmarshal(params, &args); err != nil {
			return nil, fmt.Errorf("invalid check params: %w", err)
		}
		err := guard.ValidateURL(ctx, args.URL)
		var verr *ssrf.ValidationError
		if errors.As(err, &verr) {
			return map[string]any{"allowed": false, "reason": string(verr.Reason)}, nil
		}
		if err != nil {
			return nil, err
		}
		return map[string]any{"allowed": true}, nil
	})
}

func serveStdio(ctx context.Context, server *mcp.Server, logger *slog.Logger) error {
	transport := mcp.NewStdioTransport(server.Handle)
	if err := transport.Start(ctx); err != nil {
		return err
	}
	logger.Info("serving on stdio")

	select {
	case <-ctx.Done():
		transport.Stop()
	case <-transport.Done():
	}
	stats := transport.Stats()
	logger.Info("stdio transport stopped",
		"messagesReceived", stats.MessagesReceived,
		"messagesSent", stats.MessagesSent,
		"errors", stats.Errors)
	return nil
}

func serveHTTP(ctx context.Context, cfg config, server *mcp.Server, registry *toolindex.Registry, logger *slog.Logger) error {
	opts := &mcp.StreamableHTTPOptions{
		KeepAliveInterval: *keepAlive,
		MaxBodyBytes:      cfg.MaxBodyBytes,
	}
	if cfg.PostRPS > 0 {
		opts.PostLimit = rate.NewLimiter(rate.Limit(cfg.PostRPS), int(cfg.PostRPS)+1)
	}
	handler := mcp.NewStreamableHTTPHandler(server.Handle, opts)
	defer handler.Close()

	var protected http.Handler = handler
	if cfg.AuthSecret != "" {
		verifier := auth.HS256Verifier([]byte(cfg.AuthSecret), cfg.AuthIssuer)
		protected = auth.RequireBearerToken(verifier, nil)(handler)
	} else {
		logger.Warn("DEEPR_AUTH_SECRET not set; serving without authentication")
	}

	mux := http.NewServeMux()
	// Probes hit /mcp/health without credentials.
	mux.Handle("/mcp/health", handler)
	mux.Handle("/mcp/stream", protected)
	mux.Handle("/mcp", protected)

	if *enableMetrics {
		registerer := prometheus.NewRegistry()
		registerer.MustRegister(
			metrics.NewTransportCollector("http", handler.Stats),
			metrics.NewRegistryCollector(registry),
		)
		mux.Handle("/metrics", promhttp.HandlerFor(registerer, promhttp.HandlerOpts{}))
	}

	httpServer := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("serving HTTP", "addr", *addr, "metrics", *enableMetrics)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	handler.Close()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}
	logger.Info("HTTP transport stopped")
	return nil
}

// toolFile is the on-disk shape of -tools: a list of tool schemas.
type toolFile []struct {
	Name        string             `json:"name"`
	Description string             `json:"description"`
	InputSchema *jsonschema.Schema `json:"inputSchema"`
	Category    string             `json:"category"`
	CostTier    string             `json:"costTier"`
}

// loadTools registers every schema in the file, returning how many.
func loadTools(registry *toolindex.Registry, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	var file toolFile
	if err := internaljson.Unmarshal(data, &file); err != nil {
		return 0, fmt.Errorf("parsing tool file: %w", err)
	}

	schemas := make([]*toolindex.Schema, 0, len(file))
	for _, entry := range file {
		if entry.Name == "" {
			return 0, fmt.Errorf("tool entry without a name")
		}
		schemas = append(schemas, toolindex.NewSchema(
			entry.Name, entry.Description, entry.InputSchema,
			entry.Category, toolindex.CostTier(entry.CostTier)))
	}
	registry.RegisterMany(schemas)
	return len(schemas), nil
}
