package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fleetops/hardpoint/internal/api"
	"github.com/fleetops/hardpoint/internal/config"
	"github.com/fleetops/hardpoint/internal/dispatcher"
	"github.com/fleetops/hardpoint/internal/monitor"
)

// cmdServe runs the HTTP API and the fleet monitor until ctx is cancelled.
// SIGHUP queues a fatigue refresh.
func cmdServe(ctx context.Context, a *app, args []string) (any, error) {
	if err := usageError("serve", args, 0, 0); err != nil {
		return nil, err
	}
	l, err := a.requireLocal(ctx, "serve")
	if err != nil {
		return nil, err
	}

	httpCfg := config.GetHTTPConfig()
	srv := &http.Server{
		Addr:              httpCfg.Addr,
		Handler:           api.New(l.engine, Logger.With("component", "api")),
		ReadTimeout:       httpCfg.ReadTimeout,
		ReadHeaderTimeout: httpCfg.ReadTimeout,
	}

	var mon *monitor.Service
	if monCfg := config.GetMonitorConfig(); monCfg.Enabled {
		mon = monitor.NewService(monitor.Dependencies{
			Fleet:      l.engine,
			Logger:     Logger.With("component", "monitor"),
			StatusFile: monCfg.StatusFile,
			Interval:   monCfg.Interval,
		})
		if err := mon.Start(); err != nil {
			return nil, fmt.Errorf("failed to start fleet monitor: %w", err)
		}
		defer mon.Stop()
	}

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-hup:
				if _, err := a.dispatcher.Dispatch(ctx, dispatcher.NewEvent("fatigue:refresh")); err != nil {
					Logger.Warn("Fatigue refresh not queued", "error", err)
				}
			}
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		Logger.Info("API listening", "addr", httpCfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return nil, fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
	}

	Logger.Info("Shutting down API")
	timeout := httpCfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return nil, fmt.Errorf("http shutdown: %w", err)
	}
	return nil, nil
}
