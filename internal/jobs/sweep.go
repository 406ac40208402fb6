package jobs

import (
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Sweeper periodically re-checks every Running job the Store knows
// about for lack of progress, the same condition Scheduler.isStuck
// applies inline after each turn. It exists for jobs that are between
// turns for longer than one scheduler iteration would otherwise notice
// — a provider call in flight, or a worker container the orchestrator
// is waiting on.
type Sweeper struct {
	store *Store
	sched *Scheduler
	cron  *cron.Cron
	log   *slog.Logger
}

// NewSweeper builds a Sweeper that runs on interval using a standard
// cron schedule expression (e.g. "@every 30s").
func NewSweeper(store *Store, sched *Scheduler, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{store: store, sched: sched, cron: cron.New(), log: logger}
}

// Start schedules the sweep at the given interval and begins running it
// in the background. Stop cancels it.
func (sw *Sweeper) Start(interval time.Duration) error {
	spec := "@every " + interval.String()
	_, err := sw.cron.AddFunc(spec, sw.sweepOnce)
	if err != nil {
		return err
	}
	sw.cron.Start()
	return nil
}

// Stop halts the sweep and waits for any in-flight run to finish.
func (sw *Sweeper) Stop() {
	<-sw.cron.Stop().Done()
}

func (sw *Sweeper) sweepOnce() {
	for _, jobCtx := range sw.store.StuckCandidates() {
		if jobCtx.Cancelled() {
			continue
		}
		if sw.sched.isStuck(jobCtx.Job.ID.String(), jobCtx) {
			sw.log.Warn("job stuck, no action progress since last sweep", "job_id", jobCtx.Job.ID.String())
		}
	}
}
