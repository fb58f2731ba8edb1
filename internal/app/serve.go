package app

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"xirr-benchmark/internal/scheduler"
	"xirr-benchmark/internal/server"
	"xirr-benchmark/internal/version"
)

// Serve runs the HTTP API and the cache sweeper until interrupted.
func (a *App) Serve(ctx context.Context, opts ServeOptions) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	svc, err := a.newService()
	if err != nil {
		return err
	}

	cfg := a.Config.Server
	addr := cfg.Addr
	if opts.Addr != "" {
		addr = opts.Addr
	}

	router := server.NewRouter(server.RouterOptions{
		CORSOrigins:    cfg.CORSOrigins,
		RequestTimeout: cfg.RequestTimeout,
		Version:        version.Version,
	}, svc, a.history, a.Logger)

	srv := server.New(server.Options{
		Addr:            addr,
		ReadTimeout:     cfg.ReadTimeout,
		WriteTimeout:    cfg.WriteTimeout,
		ShutdownTimeout: cfg.ShutdownTimeout,
	}, router, a.Logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(gctx)
	})

	if interval := a.Config.Cache.SweepInterval; interval > 0 {
		sched, err := scheduler.New(scheduler.Options{
			Name:         "cache_sweep",
			Interval:     interval,
			AlignToStart: true,
		}, a.Logger)
		if err != nil {
			return err
		}
		sweeper := scheduler.NewSweeper(a.history, a.Logger)
		g.Go(func() error {
			return sched.Run(gctx, sweeper.Tick)
		})
	} else {
		a.Logger.Warn().Msg("cache.sweep_interval is zero; expired entries are only replaced on access")
	}

	a.Logger.Info().
		Str("addr", addr).
		Dur("cache_ttl", a.history.TTL()).
		Str("failure_policy", a.Config.Benchmark.FailurePolicy).
		Str("version", version.String()).
		Msg("starting analysis service")

	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("analysis service stopped")
	return nil
}
