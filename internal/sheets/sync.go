// Package sheets merges locally computed attendance grids into an external
// spreadsheet mirror and republishes them.
package sheets

import (
	"context"
	"fmt"
	"time"

	"classattend/internal/apperr"
	"classattend/internal/logger"
	"classattend/internal/metrics"
)

// Snapshot is a freshly computed table and where it is published.
type Snapshot struct {
	Key   string
	Table Table
}

// Synchronizer runs merge-and-publish against a Mirror.
type Synchronizer struct {
	mirror  Mirror
	log     logger.Logger
	timeout time.Duration
}

// NewSynchronizer creates a synchronizer; timeout bounds each publication.
func NewSynchronizer(mirror Mirror, log logger.Logger, timeout time.Duration) *Synchronizer {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Synchronizer{mirror: mirror, log: log, timeout: timeout}
}

// MergeAndPublish merges fresh into the table currently published at key and
// overwrites the destination with the result. Failures are returned as
// KindExternal errors and never touch local state.
func (s *Synchronizer) MergeAndPublish(ctx context.Context, fresh Table, key string) (Table, error) {
	const op = "sheets.MergeAndPublish"
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	existing, err := s.mirror.Fetch(ctx, key)
	if err != nil {
		return Table{}, s.fail(op, key, fmt.Errorf("fetch: %w", err))
	}
	merged := Merge(Parse(existing), fresh)
	if err := s.mirror.Publish(ctx, merged.Encode(), key); err != nil {
		return Table{}, s.fail(op, key, fmt.Errorf("publish: %w", err))
	}
	metrics.Publishes.WithLabelValues(metrics.ResultOK).Inc()
	s.log.Info("published %d rows, %d date columns to %s", len(merged.Rows), len(merged.Dates), key)
	return merged, nil
}

// SyncAll publishes every snapshot and returns the failures as warnings.
func (s *Synchronizer) SyncAll(ctx context.Context, snaps []Snapshot) []error {
	var warnings []error
	for _, snap := range snaps {
		if ctx.Err() != nil {
			warnings = append(warnings, apperr.External("sheets.SyncAll", ctx.Err()))
			break
		}
		if _, err := s.MergeAndPublish(ctx, snap.Table, snap.Key); err != nil {
			warnings = append(warnings, err)
		}
	}
	return warnings
}

func (s *Synchronizer) fail(op, key string, err error) error {
	metrics.Publishes.WithLabelValues(metrics.ResultFailed).Inc()
	s.log.Warn("mirror %s: %v", key, err)
	return apperr.External(op, fmt.Errorf("%s: %w", key, err))
}
