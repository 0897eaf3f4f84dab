package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"buildsnap/internal/app"
	"buildsnap/internal/browser"
	"buildsnap/internal/capture"
	"buildsnap/internal/config"
	"buildsnap/internal/logging"
	"buildsnap/internal/server"
	"buildsnap/internal/store"
)

var serveListen string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the buildsnap HTTP API",
	Long: `Serves the index and health endpoints and exposes capture runs and
jobs over REST plus a websocket event stream.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveListen, "listen", "", "listen address (default: BUILDSNAP_LISTEN env)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	logging.Configure(logging.Config{})
	logger := logging.WithComponent("serve")

	cfg := config.FromEnv()
	if serveListen != "" {
		cfg.ListenAddr = serveListen
	}

	st, err := store.Open(cfg.DataDir, logging.WithComponent("store"))
	if err != nil {
		return err
	}
	defer st.Close()

	engine := capture.NewEngine(capture.DefaultConfig(), st, logging.WithComponent("capture"))
	newSession := func(ctx context.Context) (browser.Session, error) {
		return browser.NewChromeSession(ctx, browser.DefaultConfig(), logging.WithComponent("browser"))
	}
	orch := app.NewOrchestrator(engine, st, newSession, logging.WithComponent("orchestrator"))

	srv := server.NewServer(server.Config{ListenAddr: cfg.ListenAddr, Runtime: cfg}, orch, logging.WithComponent("server"))
	defer srv.Close()

	httpSrv := srv.HTTPServer()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- httpSrv.ListenAndServe() }()
	logger.Info().Str("addr", cfg.ListenAddr).Msg("listening")

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
