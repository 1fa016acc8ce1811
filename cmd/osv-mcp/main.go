package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	mcpGoServer "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/i2y/osv-mcp/configs"
	"github.com/i2y/osv-mcp/internal/adapter/inbound/mcphttp"
	"github.com/i2y/osv-mcp/internal/adapter/inbound/mcptools"
	"github.com/i2y/osv-mcp/internal/adapter/outbound/osvapi"
	"github.com/i2y/osv-mcp/internal/usecase"
)

const (
	transportHTTP  = "http"
	transportStdio = "stdio"

	stdioLogPath = "/tmp/osv-mcp.log"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "osv-mcp",
		Short:        "MCP server exposing the OSV vulnerability database",
		Long:         `Serves the osv_query and osv_query_batch tools over MCP, forwarding validated queries to the OSV API.`,
		Version:      mcptools.ServerVersion,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, transportHTTP)
		},
	}
	configs.RegisterFlags(rootCmd.PersistentFlags())

	rootCmd.AddCommand(newServeCmd(), newQueryCmd(), newQueryBatchCmd(), newToolsCmd())
	return rootCmd
}

func newServeCmd() *cobra.Command {
	var transport string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, transport)
		},
	}
	cmd.Flags().StringVar(&transport, "transport", transportHTTP, "Transport mode: http or stdio")
	return cmd
}

// loadConfig merges defaults, file, environment and flags, in that order.
func loadConfig(cmd *cobra.Command) (*configs.Config, error) {
	cfg, err := configs.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.ApplyFlags(cmd.Flags()); err != nil {
		return nil, fmt.Errorf("failed to apply flags: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// newLogger writes to stderr, or to a file in stdio mode so stdout stays a
// clean protocol stream.
func newLogger(cfg *configs.Config, transport string) (*slog.Logger, func()) {
	opts := &slog.HandlerOptions{Level: cfg.ParsedLogLevel()}
	if transport != transportStdio {
		return slog.New(slog.NewTextHandler(os.Stderr, opts)), func() {}
	}

	logFile, err := os.OpenFile(stdioLogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return slog.New(slog.NewTextHandler(io.Discard, opts)), func() {}
	}
	return slog.New(slog.NewTextHandler(logFile, opts)), func() { _ = logFile.Close() }
}

// newQueryUseCase wires the OSV client and the query pipeline.
func newQueryUseCase(ctx context.Context, cfg *configs.Config, logger *slog.Logger) (*usecase.QueryOSVUseCase, *osvapi.Client, error) {
	contract, err := osvapi.LoadContract(ctx)
	if err != nil {
		return nil, nil, err
	}
	httpClient := &http.Client{Timeout: cfg.HTTPClientTimeout}
	client := osvapi.NewClient(httpClient, cfg.OSVAPIURL, contract, logger)
	logger.Debug("OSV client configured.",
		slog.String("base_url", client.BaseURL()),
		slog.Duration("timeout", cfg.HTTPClientTimeout))
	return usecase.NewQueryOSVUseCase(client, logger), client, nil
}

func runServe(cmd *cobra.Command, transport string) error {
	if transport != transportHTTP && transport != transportStdio {
		return fmt.Errorf("invalid transport %q: expected %s or %s", transport, transportHTTP, transportStdio)
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	logger, closeLog := newLogger(cfg, transport)
	defer closeLog()
	slog.SetDefault(logger)
	logger.Info("Logger initialized.", slog.String("level", cfg.ParsedLogLevel().String()), slog.String("transport", transport))

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// === OpenTelemetry Initialization ===
	shutdownOtel, err := initOtelProvider(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}
	defer func() {
		if err := shutdownOtel(context.Background()); err != nil {
			logger.Error("Failed to shutdown OpenTelemetry TracerProvider.", slog.Any("error", err))
		}
	}()

	// === Dependency Injection ===
	queryUC, client, err := newQueryUseCase(ctx, cfg, logger)
	if err != nil {
		return err
	}
	mcpSrv, err := mcptools.NewServer(mcptools.NewRegistry(queryUC, logger), logger)
	if err != nil {
		return err
	}
	logger.Info("MCP server (mark3labs/mcp-go) initialized.",
		slog.String("name", mcptools.ServerName),
		slog.String("version", mcptools.ServerVersion))

	// === Transport Mode Selection ===
	switch transport {
	case transportStdio:
		logger.Info("Starting in STDIO mode", slog.String("osv_api", client.BaseURL()))
		if err := mcpGoServer.NewStdioServer(mcpSrv).Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("stdio server: %w", err)
		}
		return nil
	default:
		return serveHTTP(ctx, cfg, mcpSrv, client.BaseURL(), logger)
	}
}

func serveHTTP(ctx context.Context, cfg *configs.Config, mcpSrv *mcpGoServer.MCPServer, baseURL string, logger *slog.Logger) error {
	bridge := mcphttp.NewBridge(mcpSrv, logger)
	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           mcphttp.NewRouter(bridge, cfg.Endpoint, logger),
		ReadHeaderTimeout: cfg.ServerReadHeaderTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info(fmt.Sprintf("OSV MCP server listening on http://%s%s (base API %s)", cfg.Addr(), cfg.Endpoint, baseURL))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("HTTP server graceful shutdown failed: %w", err)
		}
		logger.Info("HTTP server shut down gracefully.")
		return nil
	})
	return g.Wait()
}
