package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/levenlabs/go-lflag"
	"github.com/raterudder/renacsync/pkg/log"
	"github.com/raterudder/renacsync/pkg/poller"
	"github.com/raterudder/renacsync/pkg/renac"
	"github.com/raterudder/renacsync/pkg/storage"
	"github.com/raterudder/renacsync/pkg/types"
)

// seed fills a local store with points from the mock cloud so the status API
// has something to show during development.
func main() {
	if os.Getenv("FIRESTORE_EMULATOR_HOST") == "" {
		os.Setenv("FIRESTORE_EMULATOR_HOST", "127.0.0.1:8087")
	}
	s := storage.Configured()
	exclusionList := lflag.String("seed-exclusion-list", "inverter.work_mode", "Comma-separated keys to exclude while seeding")
	lflag.Configure()

	ctx := context.Background()
	defer s.Close()

	log.Ctx(ctx).InfoContext(ctx, "seeding mock data")

	config := storage.NewConfigStore(s, types.ParseExclusionList(*exclusionList))
	p, err := poller.New(renac.NewMock(time.Local), s, config, poller.Options{
		Username: "seed",
		Password: "seed",
		Interval: poller.DefaultInterval,
	})
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to create poller", slog.Any("error", err))
		os.Exit(1)
	}

	// the second cycle runs with auto-blacklisting enabled
	for i := 0; i < 2; i++ {
		if err := p.RunCycle(ctx); err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "seed cycle failed", slog.Any("error", err))
			os.Exit(1)
		}
	}

	if err := config.PersistExclusionList(ctx, p.Status().ExclusionList); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to persist exclusion list", slog.Any("error", err))
		os.Exit(1)
	}

	points, err := s.ListPoints(ctx, "")
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to list points", slog.Any("error", err))
		os.Exit(1)
	}
	log.Ctx(ctx).InfoContext(ctx, "seeding complete", slog.Int("points", len(points)))
}
