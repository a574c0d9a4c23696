package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/hamed0406/endpointmonitor/internal/domain"
	"github.com/hamed0406/endpointmonitor/internal/repo/storetest"
)

func openTemp(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "endpoints.db")
	s, err := Open(path, zap.NewNop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return s, path
}

func TestSQLiteStore_Conformance(t *testing.T) {
	s, _ := openTemp(t)
	defer s.Close()
	storetest.Run(t, s, "lite-")
}

func TestSQLiteStore_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	s, path := openTemp(t)

	rec := domain.NewRecord("E1", domain.EndpointInput{Name: "svc", URL: "https://example.com", Method: "GET"}, time.UnixMilli(1_700_000_000_000))
	if err := s.Insert(ctx, rec); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := s.Mutate(ctx, "E1", func(r *domain.EndpointRecord) error {
		r.Prepend(domain.CheckResult{Timestamp: 1, Status: domain.StatusDown, StatusCode: domain.IntPtr(503), StatusText: "Service Unavailable"})
		return nil
	}); err != nil {
		t.Fatalf("Mutate: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s2, err := Open(path, zap.NewNop())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()
	got, err := s2.Get(ctx, "E1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.CreatedAt != 1_700_000_000_000 {
		t.Fatalf("createdAt lost: %d", got.CreatedAt)
	}
	if len(got.History) != 1 || got.History[0].Code() != 503 {
		t.Fatalf("history lost: %+v", got.History)
	}
}

func TestOpen_LogsStoreOpened(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	path := filepath.Join(t.TempDir(), "endpoints.db")
	s, err := Open(path, zap.New(core))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	entries := logs.FilterMessage("sqlite_store_opened").All()
	if len(entries) != 1 {
		t.Fatalf("want 1 sqlite_store_opened entry, got %d", len(entries))
	}
	if got := entries[0].ContextMap()["path"]; got != path {
		t.Fatalf("unexpected path field %v", got)
	}
}

func TestSQLiteStore_RejectsCorruptHistory(t *testing.T) {
	ctx := context.Background()
	s, _ := openTemp(t)
	defer s.Close()

	rec := domain.NewRecord("E1", domain.EndpointInput{Name: "svc", URL: "https://example.com", Method: "GET"}, time.Now())
	if err := s.Insert(ctx, rec); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	bad := `[{"timestamp":1,"status":"SIDEWAYS","latency":3}]`
	if err := s.db.Model(&endpointRow{}).Where("id = ?", "E1").Update("history", bad).Error; err != nil {
		t.Fatalf("corrupt row: %v", err)
	}
	if _, err := s.Get(ctx, "E1"); err == nil {
		t.Fatalf("expected decode error for unknown status")
	}
}
