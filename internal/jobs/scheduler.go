// Package jobs runs the three background sweeps spec §4.K describes
// (expireLicenses, expireGracePeriods, cleanStale), each on its own timer
// goroutine, grounded on the teacher's license.Checker.loop ticker pattern
// in internal/license/license.go.
package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/dmriding/talos/internal/config"
	"github.com/dmriding/talos/internal/engine"
)

// Scheduler owns the three job goroutines. It is started once at process
// startup and stopped on shutdown via context cancellation.
type Scheduler struct {
	engine *engine.Engine
	cfg    config.JobsConfig
	log    *slog.Logger
}

// New builds a Scheduler over eng using cfg's configured cadences.
func New(eng *engine.Engine, cfg config.JobsConfig, log *slog.Logger) *Scheduler {
	if log == nil {
		log = slog.Default()
	}
	return &Scheduler{engine: eng, cfg: cfg, log: log}
}

// Start launches every configured job as a goroutine. It returns
// immediately; jobs run until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	s.runJob(ctx, "expire_licenses", s.cfg.LicenseExpirationCron, func(ctx context.Context) {
		n, err := s.engine.ExpireLicenses(ctx, time.Now().UTC())
		if err != nil {
			s.log.Error("expire_licenses job failed", "err", err)
			return
		}
		if n > 0 {
			s.log.Info("expire_licenses job completed", "expired", n)
		}
	})

	s.runJob(ctx, "expire_grace_periods", s.cfg.GracePeriodCron, func(ctx context.Context) {
		n, err := s.engine.ExpireGracePeriods(ctx, time.Now().UTC())
		if err != nil {
			s.log.Error("expire_grace_periods job failed", "err", err)
			return
		}
		if n > 0 {
			s.log.Info("expire_grace_periods job completed", "revoked", n)
		}
	})

	if s.cfg.StaleDeviceCleanupEnabled {
		s.runJob(ctx, "clean_stale_devices", s.cfg.StaleDeviceCron, func(ctx context.Context) {
			threshold := time.Now().UTC().AddDate(0, 0, -s.cfg.StaleDeviceDays)
			n, err := s.engine.CleanStale(ctx, threshold)
			if err != nil {
				s.log.Error("clean_stale_devices job failed", "err", err)
				return
			}
			if n > 0 {
				s.log.Info("clean_stale_devices job completed", "released", n)
			}
		})
	}
}

// runJob parses cadence, and if it parses, runs fn once at every firing
// until ctx is done. A job's own failure — logged by fn — never aborts
// the scheduler or any other job (spec §4.K).
func (s *Scheduler) runJob(ctx context.Context, name, cadenceSpec string, fn func(context.Context)) {
	cadence, err := ParseCadence(cadenceSpec)
	if err != nil {
		s.log.Error("invalid job cadence, job disabled", "job", name, "cadence", cadenceSpec, "err", err)
		return
	}

	go func() {
		for {
			now := time.Now().UTC()
			next := cadence.Next(now)
			timer := time.NewTimer(next.Sub(now))
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
				fn(ctx)
			}
		}
	}()
}
