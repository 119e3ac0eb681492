package cli

import (
	"context"
	"errors"
	"flag"
	"net"
	"net/http"
	"time"

	"github.com/google/subcommands"

	"github.com/nmathey/finahack/internal/platform/session"
	"github.com/nmathey/finahack/internal/transport/httpapi"
	"github.com/nmathey/finahack/internal/transport/httpapi/handler"
)

type serveCmd struct {
	app  *App
	host string
}

func (*serveCmd) Name() string     { return "serve" }
func (*serveCmd) Synopsis() string { return "run the local companion API for the browser extension" }
func (*serveCmd) Usage() string {
	return `finahack serve [-host <host>]

  Serves the local API on PORT. The browser extension pushes the Finary
  session token to it and triggers syncs. When SYNC_POLL_INTERVAL is set,
  holdings are also refreshed in the background.
`
}

func (c *serveCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.host, "host", "127.0.0.1", "interface to listen on")
}

func (c *serveCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	cfg, log := c.app.Config, c.app.Logger
	defer c.app.Close()

	broker := session.NewBroker(log)
	defer broker.Close()

	client := c.app.client(broker)
	svc, checks, err := c.app.syncService(ctx, client)
	if err != nil {
		return failf("%v", err)
	}

	r := httpapi.NewRouter(httpapi.Config{
		Logger:          log,
		AllowedOrigins:  cfg.AllowedOrigins,
		SessionHandler:  handler.NewSessionHandler(broker),
		HoldingsHandler: handler.NewHoldingsHandler(svc, log),
		ManualHandler:   handler.NewManualHandler(client),
		HealthHandler:   handler.NewHealthHandler(checks),
	})

	srv := &http.Server{
		Addr:              net.JoinHostPort(c.host, cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// a sync may wait for the extension to push a renewed token
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	go svc.Run(ctx)

	errCh := make(chan error, 1)
	go func() {
		log.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("Shutdown signal received")
	case err := <-errCh:
		return failf("server failed: %v", err)
	}

	svc.Stop()
	// wake syncs waiting for a token
	broker.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return failf("server shutdown failed: %v", err)
	}

	log.Info("Server stopped gracefully")
	return subcommands.ExitSuccess
}
