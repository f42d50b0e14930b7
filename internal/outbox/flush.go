package outbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"xapikit/internal/store"
	"xapikit/xapi"
)

// Sender submits a batch and pairs each statement with its assigned id.
// *xapisdk.Client satisfies it.
type Sender interface {
	SendStatements(ctx context.Context, statements []xapi.Statement) ([]xapi.StoredStatement, error)
}

// Flusher drains pending outbox entries into a remote LRS.
type Flusher struct {
	Store     store.Store
	Sender    Sender
	BatchSize int
	Logger    zerolog.Logger
}

// Report summarizes one Flush call.
type Report struct {
	Sent    []store.OutboxEntry `json:"sent"`
	Failed  int                 `json:"failed"`
	Skipped int                 `json:"skipped"`
	// Degraded is set when the LRS accepted the batch but its ids could not
	// be correlated.
	Degraded string `json:"degraded,omitempty"`
}

// Flush submits pending entries as one batch. A transport failure leaves
// every entry pending and is returned. A response whose ids cannot be
// correlated still marks the batch sent.
func (f Flusher) Flush(ctx context.Context) (Report, error) {
	var rep Report
	pending, err := f.Store.Pending(ctx, f.BatchSize)
	if err != nil {
		return rep, err
	}
	var entries []store.OutboxEntry
	var statements []xapi.Statement
	for _, e := range pending {
		st, err := e.Statement()
		if err != nil {
			rep.Skipped++
			if mErr := f.Store.MarkFailed(ctx, e.Seq, err); mErr != nil {
				return rep, mErr
			}
			continue
		}
		entries = append(entries, e)
		statements = append(statements, st)
	}
	if len(statements) == 0 {
		return rep, nil
	}

	stored, sendErr := f.Sender.SendStatements(ctx, statements)
	if sendErr != nil && !degraded(sendErr) {
		for _, e := range entries {
			if err := f.Store.MarkFailed(ctx, e.Seq, sendErr); err != nil {
				return rep, err
			}
			rep.Failed++
		}
		f.Logger.Warn().Err(sendErr).Int("count", len(entries)).Msg("outbox flush failed")
		return rep, fmt.Errorf("flush outbox: %w", sendErr)
	}
	if sendErr != nil {
		rep.Degraded = sendErr.Error()
	}
	for i, e := range entries {
		id := statements[i].ID
		if i < len(stored) && stored[i].ID != "" {
			id = stored[i].ID
		}
		if err := f.Store.MarkSent(ctx, e.Seq, id); err != nil {
			return rep, err
		}
		e.Status = store.OutboxSent
		e.StatementID = id
		rep.Sent = append(rep.Sent, e)
	}
	f.Logger.Debug().Int("sent", len(rep.Sent)).Msg("outbox flushed")
	return rep, nil
}

// DefaultInterval is the Run polling interval when none is given.
const DefaultInterval = 5 * time.Second

// Run flushes on every tick until ctx is done. Flush errors are logged and
// retried on the next tick.
func (f Flusher) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		rep, err := f.Flush(ctx)
		if err != nil && ctx.Err() == nil {
			f.Logger.Error().Err(err).Msg("outbox flush")
		} else if len(rep.Sent) > 0 {
			f.Logger.Info().Int("sent", len(rep.Sent)).Msg("outbox flushed")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func degraded(err error) bool {
	var malformed *xapi.MalformedResponseError
	var cardinality *xapi.BatchCardinalityError
	return errors.As(err, &malformed) || errors.As(err, &cardinality)
}
