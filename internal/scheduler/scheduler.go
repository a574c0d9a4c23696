package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/hamed0406/endpointmonitor/internal/domain"
	"github.com/hamed0406/endpointmonitor/internal/monitor"
)

// Checker runs a single guarded check. *monitor.Coordinator implements it.
type Checker interface {
	RunCheck(ctx context.Context, id string) (monitor.Outcome, error)
}

// Lister enumerates stored endpoints.
type Lister interface {
	List(ctx context.Context) ([]domain.EndpointRecord, error)
}

type Scheduler struct {
	Logger      *zap.Logger
	Endpoints   Lister
	Checker     Checker
	Interval    time.Duration
	Concurrency int

	sem chan struct{}
	wg  sync.WaitGroup

	mu      sync.Mutex
	pending map[string]struct{} // ids with a tick goroutine queued or running
}

func NewScheduler(
	logger *zap.Logger,
	endpoints Lister,
	checker Checker,
	interval time.Duration,
	concurrency int,
) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if concurrency < 1 {
		concurrency = 1
	}
	if interval < 0 {
		interval = 0
	}
	return &Scheduler{
		Logger:      logger,
		Endpoints:   endpoints,
		Checker:     checker,
		Interval:    interval,
		Concurrency: concurrency,
		sem:         make(chan struct{}, concurrency),
		pending:     make(map[string]struct{}),
	}
}

// Run starts the loop. It does an immediate pass, then runs each tick.
// Checks started by a tick are not awaited by the next tick, and a tick skips
// ids whose previous check is still queued or running. On ctx cancellation
// Run waits for the ones already running and returns.
func (s *Scheduler) Run(ctx context.Context) {
	if s.Interval == 0 {
		// disabled
		s.Logger.Info("scheduler_disabled")
		return
	}
	t := time.NewTicker(s.Interval)
	defer t.Stop()

	s.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			s.wg.Wait()
			s.Logger.Info("scheduler_stopped")
			return
		case <-t.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	recs, err := s.Endpoints.List(ctx)
	if err != nil {
		s.Logger.Warn("scheduler_list_error", zap.Error(err))
		return
	}
	s.Logger.Debug("scheduler_tick", zap.Int("endpoints", len(recs)))

	for _, rec := range recs {
		id := rec.ID
		if !s.markPending(id) {
			// the previous tick's check for id has not finished; drop this one
			s.Logger.Debug("scheduler_tick_dropped", zap.String("endpoint_id", id))
			continue
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.clearPending(id)
			select {
			case s.sem <- struct{}{}:
			case <-ctx.Done():
				return
			}
			defer func() { <-s.sem }()

			out, err := s.Checker.RunCheck(ctx, id)
			switch {
			case errors.Is(err, domain.ErrNotFound):
				// deleted after the list
				s.Logger.Debug("scheduler_endpoint_gone", zap.String("endpoint_id", id))
			case err != nil:
				s.Logger.Warn("scheduler_check_error", zap.String("endpoint_id", id), zap.Error(err))
			case out.Skipped:
				s.Logger.Debug("scheduler_check_skipped", zap.String("endpoint_id", id))
			}
		}()
	}
}

// markPending reserves id for one tick goroutine. It reports false when one
// is already queued or running.
func (s *Scheduler) markPending(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pending[id]; ok {
		return false
	}
	s.pending[id] = struct{}{}
	return true
}

func (s *Scheduler) clearPending(id string) {
	s.mu.Lock()
	delete(s.pending, id)
	s.mu.Unlock()
}

func (s *Scheduler) pendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// RefreshItem is the settled state of one endpoint in a refresh-all.
type RefreshItem struct {
	ID        string              `json:"id"`
	Result    *domain.CheckResult `json:"result,omitempty"`
	Skipped   bool                `json:"skipped,omitempty"`
	Abandoned bool                `json:"abandoned,omitempty"`
	Error     string              `json:"error,omitempty"`
}

type RefreshReport struct {
	Total   int           `json:"total"`
	Checked int           `json:"checked"`
	Failed  int           `json:"failed"`
	Items   []RefreshItem `json:"items"`
	// Err aggregates the per-endpoint failures; nil when all settled cleanly.
	Err error `json:"-"`
}

// RefreshAll checks every endpoint concurrently and waits for all of them.
// Per-endpoint failures are collected into the report; the returned error is
// only set when the endpoints could not be listed.
func (s *Scheduler) RefreshAll(ctx context.Context) (RefreshReport, error) {
	recs, err := s.Endpoints.List(ctx)
	if err != nil {
		return RefreshReport{}, fmt.Errorf("list endpoints: %w", err)
	}

	items := make([]RefreshItem, len(recs))
	errs := make([]error, len(recs))
	sem := make(chan struct{}, s.Concurrency)
	var wg sync.WaitGroup

	for i, rec := range recs {
		i, id := i, rec.ID
		wg.Add(1)
		go func() {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			item := RefreshItem{ID: id}
			out, err := s.Checker.RunCheck(ctx, id)
			switch {
			case err != nil:
				item.Error = err.Error()
				errs[i] = fmt.Errorf("endpoint %s: %w", id, err)
			case out.Skipped:
				item.Skipped = true
			default:
				res := out.Result
				item.Result = &res
				item.Abandoned = out.Abandoned
			}
			items[i] = item
		}()
	}
	wg.Wait()

	rep := RefreshReport{Total: len(recs), Items: items, Err: multierr.Combine(errs...)}
	for _, it := range items {
		if it.Error != "" {
			rep.Failed++
		} else if it.Result != nil {
			rep.Checked++
		}
	}
	if rep.Err != nil {
		s.Logger.Warn("refresh_all_partial_failure",
			zap.Int("failed", rep.Failed),
			zap.Int("total", rep.Total),
			zap.Error(rep.Err),
		)
	} else {
		s.Logger.Info("refresh_all_completed", zap.Int("total", rep.Total), zap.Int("checked", rep.Checked))
	}
	return rep, nil
}
