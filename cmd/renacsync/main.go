package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/levenlabs/go-lflag"
	"github.com/levenlabs/go-llog"
	"golang.org/x/sync/errgroup"

	"github.com/raterudder/renacsync/pkg/log"
	"github.com/raterudder/renacsync/pkg/poller"
	"github.com/raterudder/renacsync/pkg/renac"
	"github.com/raterudder/renacsync/pkg/server"
	"github.com/raterudder/renacsync/pkg/storage"
)

func main() {
	// init packages
	c := renac.Configured()
	s := storage.Configured()
	p := poller.Configured(c, s)

	// init server
	srv := server.Configured(p, s)

	// parse flags
	lflag.Configure()

	// lflag automatically sets llog's level, but we need to set the slog level
	level, err := log.LevelFromLLog(llog.GetLevel())
	if err != nil {
		panic(err)
	}
	log.SetDefaultLogLevel(level)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	log.Ctx(ctx).DebugContext(ctx, "logger configured", slog.String("level", level.String()))

	// If initialization inside lflag.Do failed, we wouldn't be here (panic).
	defer func() {
		if err := s.Close(); err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "failed to close storage", slog.Any("error", err))
		}
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return p.Run(gctx)
	})
	if srv.Enabled() {
		g.Go(func() error {
			return srv.Run(gctx)
		})
	}

	// Wait blocks until the context is canceled or the server fails
	if err := g.Wait(); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "renacsync failed", slog.Any("error", err))
		os.Exit(1)
	}
	log.Ctx(ctx).InfoContext(ctx, "renacsync exited cleanly")
}
