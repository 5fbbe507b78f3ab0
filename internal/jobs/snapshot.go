// Package jobs runs periodic background work for the license server.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/keymint/keymint/internal/revocation"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// SnapshotScheduler periodically exports the revocation registry snapshot
// file for clients that sync it out of band.
type SnapshotScheduler struct {
	registry *revocation.Registry
	path     string
	interval time.Duration
	cron     *cron.Cron
	logger   zerolog.Logger
	mu       sync.Mutex
	running  bool
}

// NewSnapshotScheduler creates a new snapshot export scheduler.
func NewSnapshotScheduler(registry *revocation.Registry, path string, interval time.Duration, logger zerolog.Logger) *SnapshotScheduler {
	return &SnapshotScheduler{
		registry: registry,
		path:     path,
		interval: interval,
		cron:     cron.New(),
		logger:   logger.With().Str("component", "snapshot_scheduler").Logger(),
	}
}

// Start begins the periodic export and writes one snapshot immediately so
// the file exists from startup.
func (s *SnapshotScheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return errors.New("snapshot scheduler already running")
	}

	s.runExport()

	spec := fmt.Sprintf("@every %s", s.interval)
	if _, err := s.cron.AddFunc(spec, s.runExport); err != nil {
		return err
	}

	s.cron.Start()
	s.running = true

	s.logger.Info().
		Str("path", s.path).
		Dur("interval", s.interval).
		Msg("snapshot scheduler started")
	return nil
}

// Stop stops the scheduler gracefully.
func (s *SnapshotScheduler) Stop() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		return ctx
	}

	s.running = false
	s.logger.Info().Msg("stopping snapshot scheduler")
	return s.cron.Stop()
}

func (s *SnapshotScheduler) runExport() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.registry.ExportSnapshot(ctx, s.path); err != nil {
		s.logger.Error().Err(err).Msg("snapshot export failed")
	}
}
