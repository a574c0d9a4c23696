package repo

import (
	"context"
	"errors"
	"sort"

	"github.com/hamed0406/endpointmonitor/internal/domain"
)

// ErrConflict is returned by Insert when the id is already taken.
var ErrConflict = errors.New("endpoint id already exists")

// RecordStore is the persistence port. Adapters return deep copies; callers
// never share slices with the store.
type RecordStore interface {
	Get(ctx context.Context, id string) (domain.EndpointRecord, error)
	Insert(ctx context.Context, rec domain.EndpointRecord) error
	// Mutate runs fn on the current record and persists the result atomically
	// with respect to other writers of the same id. A missing id yields
	// domain.ErrNotFound and is never re-created. If fn fails nothing is written.
	Mutate(ctx context.Context, id string, fn func(*domain.EndpointRecord) error) error
	// Delete reports whether a record was removed.
	Delete(ctx context.Context, id string) (bool, error)
	// List returns all records ordered by creation time, then id.
	List(ctx context.Context) ([]domain.EndpointRecord, error)
}

// SortRecords orders records the way List must return them.
func SortRecords(recs []domain.EndpointRecord) {
	sort.SliceStable(recs, func(i, j int) bool {
		if recs[i].CreatedAt != recs[j].CreatedAt {
			return recs[i].CreatedAt < recs[j].CreatedAt
		}
		return recs[i].ID < recs[j].ID
	})
}
