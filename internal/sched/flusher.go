// Package sched runs the periodic store flush on a cron schedule.
package sched

import (
	"context"
	"log/slog"
	"time"

	"github.com/adhocore/gronx"
)

// Flusher evaluates a cron expression once a minute and calls flush when
// it is due. Stops on context cancel.
type Flusher struct {
	Schedule string
	Flush    func() error

	gron *gronx.Gronx
}

// NewFlusher validates the expression up front.
func NewFlusher(schedule string, flush func() error) (*Flusher, error) {
	g := gronx.New()
	if !g.IsValid(schedule) {
		return nil, &InvalidScheduleError{Expr: schedule}
	}
	return &Flusher{Schedule: schedule, Flush: flush, gron: g}, nil
}

// InvalidScheduleError reports a malformed cron expression.
type InvalidScheduleError struct{ Expr string }

func (e *InvalidScheduleError) Error() string {
	return "invalid flush schedule " + e.Expr
}

// Run blocks until ctx is done, flushing whenever the schedule fires.
func (f *Flusher) Run(ctx context.Context) error {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			due, err := f.gron.IsDue(f.Schedule, now)
			if err != nil {
				slog.Warn("sched: schedule evaluation failed", "expr", f.Schedule, "error", err)
				continue
			}
			if !due {
				continue
			}
			if err := f.Flush(); err != nil {
				slog.Error("sched: flush failed", "error", err)
			} else {
				slog.Debug("sched: store flushed")
			}
		}
	}
}
