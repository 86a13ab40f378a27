package worker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/wb-go/wbf/retry"
	"github.com/wb-go/wbf/zlog"

	"snacklock/internal/model"
	"snacklock/internal/schedule"
)

// FallbackBody is delivered when enrichment is skipped or fails.
const FallbackBody = "Hallo!"

// Enricher produces a description and an email body from a selfie.
type Enricher interface {
	Describe(ctx context.Context, imagePath string) (description, body string, err error)
}

// Deliverer performs the transport send for one channel.
type Deliverer interface {
	Send(to, body, attachment, description string) error
}

type queueRepository interface {
	Load() ([]model.Notification, error)
	MarkSent(id, body, description string) error
	MarkFailed(id, reason string) error
}

// Dispatcher drains due records from the queue: enrich, deliver, record
// the terminal outcome. One record's failure never aborts the batch.
type Dispatcher struct {
	repo       queueRepository
	enricher   Enricher
	deliverers map[string]Deliverer
	strategy   retry.Strategy
}

func NewDispatcher(
	repo queueRepository,
	enricher Enricher,
	deliverers map[string]Deliverer,
	strategy retry.Strategy,
) *Dispatcher {
	return &Dispatcher{
		repo:       repo,
		enricher:   enricher,
		deliverers: deliverers,
		strategy:   strategy,
	}
}

// ProcessDue dispatches every record due at the given time. Per-record
// failures are recorded on the record and logged; the pass itself never
// fails.
func (d *Dispatcher) ProcessDue(ctx context.Context, now time.Time) {
	records, err := d.repo.Load()
	if err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to load queue")
		return
	}

	due := schedule.Due(records, now)
	if len(due) == 0 {
		return
	}

	zlog.Logger.Info().Int("count", len(due)).Msg("dispatching due notifications")

	for _, rec := range due {
		if ctx.Err() != nil {
			return
		}
		if err := d.DispatchRecord(ctx, rec); err != nil {
			zlog.Logger.Error().Err(err).Str("id", rec.ID).Str("to", rec.Recipient).Msg("dispatch failed")
		}
	}
}

// DispatchRecord attempts delivery of a single record and records the
// terminal outcome. It returns the delivery error, if any, so the intake
// path can surface an immediate failure distinctly from "queued".
func (d *Dispatcher) DispatchRecord(ctx context.Context, rec model.Notification) error {
	body := FallbackBody
	description := ""

	if rec.SelfiePath != "" {
		if _, err := os.Stat(rec.SelfiePath); err == nil {
			desc, b, err := d.enricher.Describe(ctx, rec.SelfiePath)
			if err != nil {
				// Enrichment is best-effort: deliver the fallback body
				// instead of failing the record.
				zlog.Logger.Warn().Err(err).Str("id", rec.ID).Msg("enrichment failed, using fallback body")
			} else {
				description, body = desc, b
			}
		} else {
			zlog.Logger.Warn().Str("id", rec.ID).Str("selfie", rec.SelfiePath).Msg("selfie missing, using fallback body")
		}
	}

	deliverer, ok := d.deliverers[rec.Channel]
	if !ok {
		err := fmt.Errorf("unknown channel %q", rec.Channel)
		return d.fail(rec.ID, err)
	}

	err := retry.Do(func() error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return deliverer.Send(rec.Recipient, body, rec.SelfiePath, description)
	}, d.strategy)

	if err != nil {
		return d.fail(rec.ID, err)
	}

	if err := d.repo.MarkSent(rec.ID, body, description); err != nil {
		return fmt.Errorf("mark sent: %w", err)
	}

	zlog.Logger.Info().Str("id", rec.ID).Str("to", rec.Recipient).Str("channel", rec.Channel).Msg("notification sent")
	return nil
}

func (d *Dispatcher) fail(id string, cause error) error {
	if markErr := d.repo.MarkFailed(id, cause.Error()); markErr != nil {
		return errors.Join(cause, fmt.Errorf("mark failed: %w", markErr))
	}
	return cause
}

// Run dispatches due records on a fixed interval until the context is
// cancelled.
func (d *Dispatcher) Run(ctx context.Context, interval time.Duration) {
	c := cron.New()

	_, err := c.AddFunc("@every "+interval.String(), func() {
		d.ProcessDue(ctx, time.Now().UTC())
	})
	if err != nil {
		zlog.Logger.Fatal().Err(err).Msg("failed to schedule dispatch tick")
	}

	c.Start()
	zlog.Logger.Info().Dur("interval", interval).Msg("dispatcher started")

	<-ctx.Done()
	<-c.Stop().Done()
	zlog.Logger.Info().Msg("dispatcher stopped")
}
