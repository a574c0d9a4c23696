// Package storetest holds behaviour checks shared by every RecordStore adapter.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/hamed0406/endpointmonitor/internal/domain"
	"github.com/hamed0406/endpointmonitor/internal/repo"
)

// Run exercises s. ids are prefixed with prefix so runs against a shared
// database do not collide.
func Run(t *testing.T, s repo.RecordStore, prefix string) {
	t.Helper()
	ctx := context.Background()
	id := func(s string) string { return prefix + s }

	base := time.Date(2025, 8, 18, 12, 0, 0, 0, time.UTC)
	a := domain.NewRecord(id("a"), domain.EndpointInput{
		Name: "A", URL: "https://a.example.com", Method: "POST",
		Headers: `{"X-Token":"t"}`, Body: `{"ping":true}`,
	}, base)
	b := domain.NewRecord(id("b"), domain.EndpointInput{Name: "B", URL: "https://b.example.com", Method: "GET"}, base.Add(time.Second))

	t.Run("insert and get", func(t *testing.T) {
		if err := s.Insert(ctx, b); err != nil {
			t.Fatalf("Insert b: %v", err)
		}
		if err := s.Insert(ctx, a); err != nil {
			t.Fatalf("Insert a: %v", err)
		}
		if err := s.Insert(ctx, a); !errors.Is(err, repo.ErrConflict) {
			t.Fatalf("duplicate insert: want ErrConflict, got %v", err)
		}
		got, err := s.Get(ctx, a.ID)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if got.Name != "A" || got.Method != "POST" || got.Headers != a.Headers || got.Body != a.Body || got.CreatedAt != a.CreatedAt {
			t.Fatalf("round trip mismatch: %+v", got)
		}
		if len(got.History) != 0 {
			t.Fatalf("expected empty history, got %d", len(got.History))
		}
		if _, err := s.Get(ctx, id("missing")); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("Get missing: want ErrNotFound, got %v", err)
		}
	})

	t.Run("list ordered by creation", func(t *testing.T) {
		all, err := s.List(ctx)
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		var mine []string
		for _, r := range all {
			if r.ID == a.ID || r.ID == b.ID {
				mine = append(mine, r.ID)
			}
		}
		if len(mine) != 2 || mine[0] != a.ID || mine[1] != b.ID {
			t.Fatalf("unexpected order: %v", mine)
		}
	})

	t.Run("mutate appends history", func(t *testing.T) {
		res := domain.CheckResult{Timestamp: base.UnixMilli(), Status: domain.StatusUp, LatencyMS: 12, StatusCode: domain.IntPtr(200), StatusText: "OK"}
		if err := s.Mutate(ctx, a.ID, func(r *domain.EndpointRecord) error {
			r.Prepend(res)
			return nil
		}); err != nil {
			t.Fatalf("Mutate: %v", err)
		}
		got, err := s.Get(ctx, a.ID)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if len(got.History) != 1 || got.History[0].Code() != 200 || got.History[0].Status != domain.StatusUp {
			t.Fatalf("history not persisted: %+v", got.History)
		}
		if got.Name != "A" {
			t.Fatalf("config changed by history append: %+v", got.EndpointConfig)
		}
	})

	t.Run("mutate error writes nothing", func(t *testing.T) {
		boom := errors.New("boom")
		err := s.Mutate(ctx, a.ID, func(r *domain.EndpointRecord) error {
			r.Name = "changed"
			return boom
		})
		if !errors.Is(err, boom) {
			t.Fatalf("want boom, got %v", err)
		}
		got, _ := s.Get(ctx, a.ID)
		if got.Name != "A" {
			t.Fatalf("failed mutate leaked a write: %q", got.Name)
		}
	})

	t.Run("returned records are copies", func(t *testing.T) {
		got, _ := s.Get(ctx, a.ID)
		got.Name = "local"
		if len(got.History) > 0 {
			got.History[0].Status = domain.StatusDown
		}
		again, _ := s.Get(ctx, a.ID)
		if again.Name != "A" || again.History[0].Status != domain.StatusUp {
			t.Fatalf("store shares memory with callers: %+v", again)
		}
	})

	t.Run("concurrent mutates do not lose writes", func(t *testing.T) {
		const n = 10
		var wg sync.WaitGroup
		errs := make(chan error, n)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				errs <- s.Mutate(ctx, b.ID, func(r *domain.EndpointRecord) error {
					r.Prepend(domain.CheckResult{Timestamp: int64(i), Status: domain.StatusUp})
					return nil
				})
			}(i)
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			if err != nil {
				t.Fatalf("Mutate: %v", err)
			}
		}
		got, _ := s.Get(ctx, b.ID)
		if len(got.History) != n {
			t.Fatalf("want %d results, got %d", n, len(got.History))
		}
	})

	t.Run("delete", func(t *testing.T) {
		ok, err := s.Delete(ctx, a.ID)
		if err != nil || !ok {
			t.Fatalf("Delete: ok=%v err=%v", ok, err)
		}
		ok, err = s.Delete(ctx, a.ID)
		if err != nil || ok {
			t.Fatalf("second Delete: ok=%v err=%v", ok, err)
		}
		err = s.Mutate(ctx, a.ID, func(r *domain.EndpointRecord) error {
			return fmt.Errorf("fn must not run for a deleted id")
		})
		if !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("Mutate after delete: want ErrNotFound, got %v", err)
		}
		if _, err := s.Get(ctx, a.ID); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("deleted record re-appeared: %v", err)
		}
		_, _ = s.Delete(ctx, b.ID)
	})
}
