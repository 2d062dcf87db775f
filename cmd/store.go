package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/labormarket/internal/store"
)

func initStore(ctx context.Context) (store.Store, error) {
	st, err := store.Open(ctx, cfg.Store.Driver, cfg.Store.DatabaseURL)
	if err != nil {
		return nil, eris.Wrap(err, "init store")
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "init store")
	}
	return st, nil
}

// jobFunc does the work of one run and returns stats to record with it.
type jobFunc func(ctx context.Context, st store.Store, run *store.Run) (map[string]float64, error)

// track records a run of job around fn. Bookkeeping failures are logged,
// never returned, so a broken store cannot fail a job that succeeded.
func track(ctx context.Context, job string, params map[string]string, fn jobFunc) error {
	log := zap.L().With(zap.String("command", job))

	st, err := initStore(ctx)
	if err != nil {
		log.Warn("run bookkeeping disabled", zap.Error(err))
		st = store.Noop{}
	}
	defer st.Close() //nolint:errcheck

	run, err := st.CreateRun(ctx, job, params)
	if err != nil {
		log.Warn("create run failed", zap.Error(err))
		st = store.Noop{}
		run = &store.Run{Job: job}
	}

	stats, jobErr := fn(ctx, st, run)
	if jobErr != nil {
		if err := st.FailRun(ctx, run.ID, jobErr); err != nil {
			log.Warn("record failed run", zap.Error(err))
		}
		return jobErr
	}
	if err := st.CompleteRun(ctx, run.ID, stats); err != nil {
		log.Warn("record completed run", zap.Error(err))
	}
	return nil
}
