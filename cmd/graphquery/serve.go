package graphquery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/soundprediction/graphquery/pkg/config"
	"github.com/soundprediction/graphquery/pkg/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the graphquery HTTP server",
	Long: `Start an HTTP server answering questions against the loaded index.

Endpoints:
- GET  /health         liveness
- GET  /ready          index loaded
- POST /query          run a question through one or more search modes`,
	RunE: runServe,
}

var (
	serverHost string
	serverPort int
	serverMode string
)

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serverHost, "host", "localhost", "Server host")
	serveCmd.Flags().IntVar(&serverPort, "port", 8080, "Server port")
	serveCmd.Flags().StringVar(&serverMode, "mode", "debug", "Server mode (debug, release, test)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	overrideServerFlags(cmd, cfg)
	if err := validateServerConfig(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	a := newApp(cfg, cmd.ErrOrStderr())
	defer a.close()

	tables, err := a.loadIndex(cmd.Context())
	if err != nil {
		return err
	}
	engine, err := a.engine()
	if err != nil {
		return err
	}
	saver, err := a.persister(cmd.OutOrStdout())
	if err != nil {
		return err
	}

	srv := server.New(cfg, engine, saver, tables, a.logger)
	srv.Setup()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverErrChan := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrChan <- err
		}
	}()

	select {
	case err := <-serverErrChan:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		a.logger.Info("Received signal", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := srv.Stop(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		a.logger.Info("Server stopped gracefully")
		return nil
	}
}

func overrideServerFlags(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("host") {
		cfg.Server.Host = serverHost
	}
	if cmd.Flags().Changed("port") {
		cfg.Server.Port = serverPort
	}
	if cmd.Flags().Changed("mode") {
		cfg.Server.Mode = serverMode
	}
}

func validateServerConfig(cfg *config.Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", cfg.Server.Port)
	}
	return nil
}
