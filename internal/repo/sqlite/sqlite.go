// Package sqlite is a single-file RecordStore built on gorm.
package sqlite

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/hamed0406/endpointmonitor/internal/domain"
	"github.com/hamed0406/endpointmonitor/internal/repo"
)

var _ repo.RecordStore = (*Store)(nil)

type endpointRow struct {
	ID        string `gorm:"primaryKey"`
	Name      string `gorm:"not null"`
	URL       string `gorm:"not null"`
	Method    string `gorm:"not null"`
	Headers   string
	Body      string
	CreatedMS int64  `gorm:"column:created_at;index"`
	History   string `gorm:"not null;default:'[]'"`
}

func (endpointRow) TableName() string { return "endpoints" }

type Store struct {
	db  *gorm.DB
	log *zap.Logger
}

// Open opens (or creates) the database at path and migrates the schema.
func Open(path string, log *zap.Logger) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("sqlite handle: %w", err)
	}
	// one writer at a time; sqlite reports SQLITE_BUSY otherwise
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&endpointRow{}); err != nil {
		_ = sqlDB.Close()
		log.Error("sqlite_migrate_failed", zap.String("path", path), zap.Error(err))
		return nil, fmt.Errorf("migrate: %w", err)
	}
	log.Info("sqlite_store_opened", zap.String("path", path))
	return &Store{db: db, log: log}, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) Get(ctx context.Context, id string) (domain.EndpointRecord, error) {
	return get(s.db.WithContext(ctx), id)
}

func (s *Store) Insert(ctx context.Context, rec domain.EndpointRecord) error {
	row, err := toRow(rec)
	if err != nil {
		return err
	}
	err = s.db.WithContext(ctx).Create(&row).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return repo.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("insert endpoint: %w", err)
	}
	return nil
}

func (s *Store) Mutate(ctx context.Context, id string, fn func(*domain.EndpointRecord) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rec, err := get(tx, id)
		if err != nil {
			return err
		}
		if err := fn(&rec); err != nil {
			return err
		}
		rec.ID = id
		row, err := toRow(rec)
		if err != nil {
			return err
		}
		err = tx.Model(&endpointRow{}).Where("id = ?", id).Updates(map[string]any{
			"name":    row.Name,
			"url":     row.URL,
			"method":  row.Method,
			"headers": row.Headers,
			"body":    row.Body,
			"history": row.History,
		}).Error
		if err != nil {
			return fmt.Errorf("update endpoint: %w", err)
		}
		return nil
	})
}

func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	res := s.db.WithContext(ctx).Delete(&endpointRow{}, "id = ?", id)
	if res.Error != nil {
		return false, fmt.Errorf("delete endpoint: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (s *Store) List(ctx context.Context) ([]domain.EndpointRecord, error) {
	var rows []endpointRow
	if err := s.db.WithContext(ctx).Order("created_at asc, id asc").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list endpoints: %w", err)
	}
	out := make([]domain.EndpointRecord, 0, len(rows))
	for _, r := range rows {
		rec, err := fromRow(r)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func get(db *gorm.DB, id string) (domain.EndpointRecord, error) {
	var row endpointRow
	err := db.Where("id = ?", id).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.EndpointRecord{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.EndpointRecord{}, fmt.Errorf("get endpoint: %w", err)
	}
	return fromRow(row)
}

func toRow(rec domain.EndpointRecord) (endpointRow, error) {
	h := rec.History
	if h == nil {
		h = []domain.CheckResult{}
	}
	raw, err := json.Marshal(h)
	if err != nil {
		return endpointRow{}, fmt.Errorf("encode history: %w", err)
	}
	return endpointRow{
		ID:        rec.ID,
		Name:      rec.Name,
		URL:       rec.URL,
		Method:    rec.Method,
		Headers:   rec.Headers,
		Body:      rec.Body,
		CreatedMS: rec.CreatedAt,
		History:   string(raw),
	}, nil
}

func fromRow(r endpointRow) (domain.EndpointRecord, error) {
	rec := domain.EndpointRecord{
		EndpointConfig: domain.EndpointConfig{
			ID:        r.ID,
			Name:      r.Name,
			URL:       r.URL,
			Method:    r.Method,
			Headers:   r.Headers,
			Body:      r.Body,
			CreatedAt: r.CreatedMS,
		},
		History: []domain.CheckResult{},
	}
	if r.History != "" {
		if err := json.Unmarshal([]byte(r.History), &rec.History); err != nil {
			return domain.EndpointRecord{}, fmt.Errorf("decode history: %w", err)
		}
	}
	return rec, nil
}
