// Package monitor runs checks against stored endpoints and exposes the
// operations the HTTP layer and the scheduler build on.
package monitor

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/hamed0406/endpointmonitor/internal/domain"
	"github.com/hamed0406/endpointmonitor/internal/probe"
	"github.com/hamed0406/endpointmonitor/internal/repo"
)

// Outcome is what one RunCheck call did.
type Outcome struct {
	Result domain.CheckResult
	// Skipped: another check for the id was already running; no probe was made
	// and Result is zero.
	Skipped bool
	// Abandoned: the endpoint was deleted while the probe ran. Result holds the
	// probe outcome but nothing was persisted.
	Abandoned bool
}

// Coordinator runs at most one check per endpoint id at a time.
type Coordinator struct {
	store  repo.RecordStore
	prober probe.Prober
	log    *zap.Logger
	guard  *inFlight
}

func NewCoordinator(store repo.RecordStore, prober probe.Prober, log *zap.Logger) *Coordinator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Coordinator{
		store:  store,
		prober: prober,
		log:    log,
		guard:  newInFlight(),
	}
}

// RunCheck probes the endpoint once and prepends the result to its history.
//
// A call that finds a check already running returns immediately with
// Outcome.Skipped set. A missing id yields domain.ErrNotFound. Store failures
// come back as *domain.PersistenceError with nothing written.
func (c *Coordinator) RunCheck(ctx context.Context, id string) (Outcome, error) {
	release, ok := c.guard.tryAcquire(id)
	if !ok {
		c.log.Debug("check_skipped_in_flight", zap.String("endpoint_id", id))
		return Outcome{Skipped: true}, nil
	}
	defer release()

	// Once started a check runs to completion even if the caller goes away.
	ctx = context.WithoutCancel(ctx)

	rec, err := c.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return Outcome{}, domain.ErrNotFound
		}
		c.log.Warn("check_load_error", zap.String("endpoint_id", id), zap.Error(err))
		return Outcome{}, &domain.PersistenceError{Op: "load", Err: err}
	}

	res := c.prober.Probe(ctx, rec.EndpointConfig)

	err = c.store.Mutate(ctx, id, func(r *domain.EndpointRecord) error {
		r.Prepend(res)
		return nil
	})
	switch {
	case errors.Is(err, domain.ErrNotFound):
		c.log.Info("check_abandoned_deleted", zap.String("endpoint_id", id))
		return Outcome{Result: res, Abandoned: true}, nil
	case err != nil:
		c.log.Warn("check_persist_error", zap.String("endpoint_id", id), zap.Error(err))
		return Outcome{Result: res}, &domain.PersistenceError{Op: "persist", Err: err}
	}

	c.log.Debug("check_completed",
		zap.String("endpoint_id", id),
		zap.String("url", rec.URL),
		zap.String("status", string(res.Status)),
		zap.Int("status_code", res.Code()),
		zap.Int64("latency_ms", res.LatencyMS),
	)
	return Outcome{Result: res}, nil
}

// InFlight reports whether a check for id is currently running.
func (c *Coordinator) InFlight(id string) bool { return c.guard.busy(id) }
