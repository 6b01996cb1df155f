// Package scheduler runs the backup garbage collector (PurgeOrphanedBackups)
// on a cron-style cadence using hardloop; it runs no backup pass itself,
// with leader election across hub replicas via the cluster package so
// only one instance purges stale backups at a time.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/rakunlabs/logi"
	"github.com/worldline-go/hardloop"

	"github.com/rakunlabs/datahub/internal/cluster"
	"github.com/rakunlabs/datahub/internal/hub"
)

// cronRunner is satisfied by hardloop's unexported *cronJob type
// (returned by hardloop.NewCron), allowing us to store it without
// referencing the unexported struct name directly.
type cronRunner interface {
	Start(ctx context.Context) error
	Stop()
}

// Scheduler drives the hub's backup GC on a fixed interval.
type Scheduler struct {
	hub        *hub.Hub
	cluster    *cluster.Cluster
	gcInterval time.Duration

	cron   cronRunner
	cancel context.CancelFunc
}

func New(h *hub.Hub, cl *cluster.Cluster, gcInterval time.Duration) *Scheduler {
	if gcInterval <= 0 {
		gcInterval = 30 * time.Minute
	}
	return &Scheduler{hub: h, cluster: cl, gcInterval: gcInterval}
}

// Start registers the GC cron job and, if clustering is configured, begins
// the leader-election loop. It should be called once during startup.
func (s *Scheduler) Start(ctx context.Context) error {
	cronSpec := fmt.Sprintf("@every %s", s.gcInterval)

	cronJob, err := hardloop.NewCron(hardloop.Cron{
		Name:  "buffer-backup-gc",
		Specs: []string{cronSpec},
		Func:  s.makeGCFunc(),
	})
	if err != nil {
		return fmt.Errorf("scheduler: create cron runner: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.cron = cronJob

	if err := cronJob.Start(runCtx); err != nil {
		cancel()
		return fmt.Errorf("scheduler: start cron runner: %w", err)
	}

	if s.cluster != nil {
		go func() {
			if err := s.cluster.Start(runCtx); err != nil && runCtx.Err() == nil {
				logi.Ctx(runCtx).Error("scheduler: cluster start failed", "error", err)
			}
		}()
	}

	logi.Ctx(ctx).Info("scheduler: started buffer backup gc", "interval", s.gcInterval)
	return nil
}

// Stop halts the cron runner. Safe to call multiple times.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	if s.cron != nil {
		s.cron.Stop()
		s.cron = nil
	}
	if s.cluster != nil {
		s.cluster.Stop() //nolint:errcheck
	}
}

// makeGCFunc returns the cron-tick function. Under clustering it only
// performs work while holding the GC lock; standalone it always runs.
func (s *Scheduler) makeGCFunc() func(ctx context.Context) error {
	return func(ctx context.Context) error {
		run := func(ctx context.Context) error {
			purged := s.hub.PurgeOrphanedBackups(ctx)
			logi.Ctx(ctx).Info("scheduler: buffer backup gc complete", "purged", purged)
			return nil
		}

		if s.cluster == nil {
			return run(ctx)
		}

		return s.cluster.WithGCLock(ctx, 30*time.Second, run)
	}
}
