package reminder

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

type BatchRunner interface {
	RunDue(ctx context.Context) (*BatchResult, error)
}

// Worker triggers a dispatch run on a fixed interval until its context ends.
type Worker struct {
	runner   BatchRunner
	interval time.Duration
	log      zerolog.Logger
}

func NewWorker(runner BatchRunner, interval time.Duration, log zerolog.Logger) *Worker {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Worker{runner: runner, interval: interval, log: log}
}

// Run blocks until ctx is cancelled. A failed run is logged and the next tick
// tries again.
func (w *Worker) Run(ctx context.Context) {
	w.log.Info().Dur("interval", w.interval).Msg("reminder worker started")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("reminder worker stopped")
			return
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

func (w *Worker) tick(ctx context.Context) {
	res, err := w.runner.RunDue(ctx)
	if err != nil {
		if ctx.Err() == nil {
			w.log.Error().Err(err).Msg("reminder dispatch run failed")
		}
		return
	}
	if res.Processed > 0 {
		w.log.Debug().Str("run_id", res.RunID.String()).Str("summary", res.Message).Msg("reminder worker tick")
	}
}
