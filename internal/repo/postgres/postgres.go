package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/hamed0406/endpointmonitor/internal/domain"
	"github.com/hamed0406/endpointmonitor/internal/repo"
)

var _ repo.RecordStore = (*Store)(nil)

// Schema creates the endpoints table. History is kept inline as a JSONB array,
// newest first, so a record is always read and written as one row.
const Schema = `
CREATE TABLE IF NOT EXISTS endpoints (
  id         TEXT PRIMARY KEY,
  name       TEXT NOT NULL,
  url        TEXT NOT NULL,
  method     TEXT NOT NULL,
  headers    TEXT NOT NULL DEFAULT '',
  body       TEXT NOT NULL DEFAULT '',
  created_at BIGINT NOT NULL,
  history    JSONB NOT NULL DEFAULT '[]'::jsonb
);

CREATE INDEX IF NOT EXISTS idx_endpoints_created ON endpoints (created_at, id);
`

const selectCols = `id, name, url, method, headers, body, created_at, history`

type Store struct {
	pool *pgxpool.Pool
	log  *zap.Logger
}

func New(ctx context.Context, dsn string, log *zap.Logger) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}
	ctxPing, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(ctxPing); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{pool: pool, log: log}, nil
}

// Migrate applies Schema. It is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	start := time.Now()
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		s.log.Error("postgres_schema_failed", zap.Error(err))
		return fmt.Errorf("apply schema: %w", err)
	}
	s.log.Info("postgres_schema_applied", zap.Duration("took", time.Since(start)))
	return nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func (s *Store) Get(ctx context.Context, id string) (domain.EndpointRecord, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+selectCols+` FROM endpoints WHERE id = $1`, id)
	rec, err := scanRecord(row)
	if err != nil {
		return domain.EndpointRecord{}, err
	}
	return rec, nil
}

func (s *Store) Insert(ctx context.Context, rec domain.EndpointRecord) error {
	hist, err := encodeHistory(rec.History)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO endpoints (id, name, url, method, headers, body, created_at, history)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8::jsonb)
		 ON CONFLICT (id) DO NOTHING`,
		rec.ID, rec.Name, rec.URL, rec.Method, rec.Headers, rec.Body, rec.CreatedAt, hist,
	)
	if err != nil {
		return fmt.Errorf("insert endpoint: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repo.ErrConflict
	}
	return nil
}

// Mutate locks the row for the duration of fn.
func (s *Store) Mutate(ctx context.Context, id string, fn func(*domain.EndpointRecord) error) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `SELECT `+selectCols+` FROM endpoints WHERE id = $1 FOR UPDATE`, id)
		rec, err := scanRecord(row)
		if err != nil {
			return err
		}
		if err := fn(&rec); err != nil {
			return err
		}
		hist, err := encodeHistory(rec.History)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx,
			`UPDATE endpoints
			    SET name = $2, url = $3, method = $4, headers = $5, body = $6, history = $7::jsonb
			  WHERE id = $1`,
			id, rec.Name, rec.URL, rec.Method, rec.Headers, rec.Body, hist,
		)
		if err != nil {
			return fmt.Errorf("update endpoint: %w", err)
		}
		return nil
	})
}

func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM endpoints WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("delete endpoint: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *Store) List(ctx context.Context) ([]domain.EndpointRecord, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+selectCols+` FROM endpoints ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list endpoints: %w", err)
	}
	defer rows.Close()

	var out []domain.EndpointRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func scanRecord(row pgx.Row) (domain.EndpointRecord, error) {
	var (
		rec  domain.EndpointRecord
		hist []byte
	)
	err := row.Scan(&rec.ID, &rec.Name, &rec.URL, &rec.Method, &rec.Headers, &rec.Body, &rec.CreatedAt, &hist)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.EndpointRecord{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.EndpointRecord{}, fmt.Errorf("scan endpoint: %w", err)
	}
	rec.History = []domain.CheckResult{}
	if len(hist) > 0 {
		if err := json.Unmarshal(hist, &rec.History); err != nil {
			return domain.EndpointRecord{}, fmt.Errorf("decode history: %w", err)
		}
	}
	return rec, nil
}

func encodeHistory(h []domain.CheckResult) (string, error) {
	if h == nil {
		h = []domain.CheckResult{}
	}
	raw, err := json.Marshal(h)
	if err != nil {
		return "", fmt.Errorf("encode history: %w", err)
	}
	return string(raw), nil
}
