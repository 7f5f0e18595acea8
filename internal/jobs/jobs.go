// Package jobs executes queued background work: notification delivery and
// sheet mirror publication.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"classattend/internal/apperr"
	"classattend/internal/attendance"
	"classattend/internal/config"
	"classattend/internal/logger"
	"classattend/internal/notify"
	"classattend/internal/queue"
	"classattend/internal/report"
	"classattend/internal/sheets"
)

// Processor handles one job at a time. Jobs are at-most-once: a failed job
// is logged and dropped.
type Processor struct {
	notifier      notify.Sender
	reports       *report.Service
	sync          *sheets.Synchronizer
	key           func(code string) string
	log           logger.Logger
	notifyTimeout time.Duration
	now           func() time.Time
}

// NewProcessor wires a processor. key names the mirror destination of a
// subject code.
func NewProcessor(notifier notify.Sender, reports *report.Service, sync *sheets.Synchronizer, key func(code string) string, log logger.Logger, notifyTimeout time.Duration) *Processor {
	if notifyTimeout <= 0 {
		notifyTimeout = 10 * time.Second
	}
	return &Processor{
		notifier:      notifier,
		reports:       reports,
		sync:          sync,
		key:           key,
		log:           log,
		notifyTimeout: notifyTimeout,
		now:           time.Now,
	}
}

// NewMirror returns the Google Sheets mirror when enabled, else an in-memory
// one that only the running process can see.
func NewMirror(ctx context.Context, cfg config.Sheets, log logger.Logger) (sheets.Mirror, error) {
	if !cfg.Enabled {
		log.Info("google sheets disabled, publishing to memory")
		return sheets.NewMemory(), nil
	}
	return sheets.NewGoogleMirror(ctx, cfg.CredentialsFile, cfg.SpreadsheetID)
}

// Handle executes msg.
func (p *Processor) Handle(ctx context.Context, msg queue.Message) error {
	switch msg.Type {
	case queue.TypeNotify:
		n, err := notify.Decode(msg)
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(ctx, p.notifyTimeout)
		defer cancel()
		if err := p.notifier.Send(ctx, n); err != nil {
			return apperr.External("jobs.notify", fmt.Errorf("%s %s %s: %w", n.RollNo, n.Date, n.Period, err))
		}
		return nil
	case queue.TypePublish:
		var job queue.PublishJob
		if err := msg.Decode(&job); err != nil {
			return err
		}
		return p.Publish(ctx, job)
	default:
		return fmt.Errorf("unknown job type %q", msg.Type)
	}
}

// Publish recomputes and publishes the mirror tables job names. Per-table
// failures are joined; the remaining tables are still published.
func (p *Processor) Publish(ctx context.Context, job queue.PublishJob) error {
	const op = "jobs.Publish"
	from, err := optionalDate(op, job.From)
	if err != nil {
		return err
	}
	to, err := optionalDate(op, job.To)
	if err != nil {
		return err
	}

	var snaps []sheets.Snapshot
	if job.SubjectID != "" {
		snap, err := p.reports.Snapshot(ctx, job.SubjectID, from, to, p.key)
		if err != nil {
			return err
		}
		snaps = []sheets.Snapshot{snap}
	} else {
		snaps, err = p.reports.Snapshots(ctx, from, to, p.key)
		if err != nil {
			return err
		}
	}
	warnings := p.sync.SyncAll(ctx, snaps)
	p.log.Info("publish job: %d of %d tables published", len(snaps)-len(warnings), len(snaps))
	return errors.Join(warnings...)
}

// SyncWindow publishes every subject over the trailing days, today included.
func (p *Processor) SyncWindow(ctx context.Context, days int) error {
	if days <= 0 {
		days = 30
	}
	to := p.now()
	from := to.AddDate(0, 0, -(days - 1))
	return p.Publish(ctx, queue.PublishJob{From: attendance.FormatDate(from), To: attendance.FormatDate(to)})
}

// Run consumes q until ctx is done.
func (p *Processor) Run(ctx context.Context, q queue.Queue) error {
	messages, err := q.Consume(ctx)
	if err != nil {
		return fmt.Errorf("queue consume init failed: %w", err)
	}
	for msg := range messages {
		if err := p.Handle(ctx, msg); err != nil {
			p.log.Warn("%s job failed: %v", msg.Type, err)
		}
	}
	return nil
}

func optionalDate(op, v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	t, err := attendance.ParseDate(v)
	if err != nil {
		return time.Time{}, apperr.E(apperr.KindValidation, op, err)
	}
	return t, nil
}
