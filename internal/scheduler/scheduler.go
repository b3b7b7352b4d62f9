package scheduler

import (
	"context"
	"log/slog"
	"time"

	"wagerledger/internal/config"
	"wagerledger/internal/mirror"
	"wagerledger/internal/performance"
)

// Scheduler runs the periodic mirror and report loops.
type Scheduler struct {
	mirror  *mirror.Mirror
	markets []string
	tracker *performance.Tracker
	cfg     config.ScheduleConfig
}

// New creates a Scheduler. A nil mirror disables mirroring.
func New(m *mirror.Mirror, markets []string, tracker *performance.Tracker, cfg config.ScheduleConfig) *Scheduler {
	return &Scheduler{
		mirror:  m,
		markets: markets,
		tracker: tracker,
		cfg:     cfg,
	}
}

// Run starts all periodic loops and blocks until context is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	slog.Info("scheduler starting",
		"mirror", s.mirror != nil,
		"mirror_interval", s.cfg.MirrorInterval.Duration,
		"report_interval", s.cfg.ReportInterval.Duration,
	)

	// Run first cycle immediately.
	s.runMirrorCycle(ctx)
	s.runReport(ctx)

	// A nil channel never fires, which parks the mirror case when disabled.
	var mirrorC <-chan time.Time
	if s.mirror != nil {
		mirrorTicker := time.NewTicker(s.cfg.MirrorInterval.Duration)
		defer mirrorTicker.Stop()
		mirrorC = mirrorTicker.C
	}
	reportTicker := time.NewTicker(s.cfg.ReportInterval.Duration)
	defer reportTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("scheduler shutting down")
			return ctx.Err()
		case <-mirrorC:
			s.runMirrorCycle(ctx)
		case <-reportTicker.C:
			s.runReport(ctx)
		}
	}
}

func (s *Scheduler) runMirrorCycle(ctx context.Context) {
	if s.mirror == nil {
		return
	}

	links, err := s.mirror.Sync(ctx, s.markets)
	if err != nil {
		slog.Error("mirror sync failed", "error", err)
	}
	resolved, err := s.mirror.ResolveDue(ctx)
	if err != nil {
		slog.Error("mirror resolution failed", "error", err)
	}
	slog.Info("mirror cycle complete", "created", len(links), "resolved", resolved)
}

func (s *Scheduler) runReport(ctx context.Context) {
	report, err := s.tracker.Generate(ctx)
	if err != nil {
		slog.Error("ledger report failed", "error", err)
		return
	}
	performance.LogReport(report)
}
