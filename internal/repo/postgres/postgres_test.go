package postgres

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/hamed0406/endpointmonitor/internal/repo/storetest"
)

func TestPostgresStore_Conformance(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set; skipping Postgres integration test")
	}

	ctx := context.Background()
	core, logs := observer.New(zapcore.InfoLevel)
	store, err := New(ctx, dsn, zap.New(core))
	if err != nil {
		t.Fatalf("New store: %v", err)
	}
	defer store.Close()

	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	if logs.FilterMessage("postgres_schema_applied").Len() != 1 {
		t.Fatalf("expected postgres_schema_applied log entry")
	}
	// Unique prefix per run so rows from earlier runs never collide.
	storetest.Run(t, store, fmt.Sprintf("pg-%d-", time.Now().UTC().UnixNano()))
}
