// Package redis stores endpoint records as JSON strings in Redis.
//
// Layout: <ns>:endpoint:<id> holds the record, <ns>:endpoints is the id set.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/hamed0406/endpointmonitor/internal/domain"
	"github.com/hamed0406/endpointmonitor/internal/repo"
)

var _ repo.RecordStore = (*Store)(nil)

// DefaultNamespace prefixes every key written by the store.
const DefaultNamespace = "endpointmonitor"

// maxTxRetries bounds optimistic-lock retries when concurrent writers touch the same key.
const maxTxRetries = 50

// Connect initializes a Redis client from URL or host:port input.
func Connect(ctx context.Context, redisURL string) (*redis.Client, error) {
	var c *redis.Client
	if strings.HasPrefix(redisURL, "redis://") || strings.HasPrefix(redisURL, "rediss://") {
		opt, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		c = redis.NewClient(opt)
	} else {
		c = redis.NewClient(&redis.Options{Addr: redisURL})
	}
	if err := c.Ping(ctx).Err(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return c, nil
}

type Store struct {
	client *redis.Client
	ns     string
}

func New(client *redis.Client, namespace string) *Store {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	return &Store{client: client, ns: namespace}
}

func (s *Store) Close() error { return s.client.Close() }

func (s *Store) key(id string) string { return s.ns + ":endpoint:" + id }
func (s *Store) setKey() string       { return s.ns + ":endpoints" }

func (s *Store) Get(ctx context.Context, id string) (domain.EndpointRecord, error) {
	return s.read(ctx, s.client, id)
}

// Insert writes the record and its index entry in one MULTI block, guarded by
// WATCH on the record key so a racing insert of the same id loses cleanly.
func (s *Store) Insert(ctx context.Context, rec domain.EndpointRecord) error {
	raw, err := encode(rec)
	if err != nil {
		return err
	}
	key := s.key(rec.ID)
	txf := func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return fmt.Errorf("insert endpoint: %w", err)
		}
		if n > 0 {
			return repo.ErrConflict
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, key, raw, 0)
			p.SAdd(ctx, s.setKey(), rec.ID)
			return nil
		})
		return err
	}
	return s.watch(ctx, txf, key, "insert endpoint "+rec.ID)
}

// Mutate uses WATCH on the record key; a concurrent write aborts the
// transaction and fn runs again on the fresh value.
func (s *Store) Mutate(ctx context.Context, id string, fn func(*domain.EndpointRecord) error) error {
	key := s.key(id)
	txf := func(tx *redis.Tx) error {
		rec, err := s.read(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := fn(&rec); err != nil {
			return err
		}
		rec.ID = id
		raw, err := encode(rec)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, key, raw, 0)
			return nil
		})
		return err
	}
	return s.watch(ctx, txf, key, "mutate endpoint "+id)
}

// watch runs txf under WATCH, retrying while another client touches key.
func (s *Store) watch(ctx context.Context, txf func(*redis.Tx) error, key, op string) error {
	for i := 0; i < maxTxRetries; i++ {
		err := s.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("%s: too many concurrent writers", op)
}

func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	var del *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		del = p.Del(ctx, s.key(id))
		p.SRem(ctx, s.setKey(), id)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("delete endpoint: %w", err)
	}
	return del.Val() > 0, nil
}

func (s *Store) List(ctx context.Context) ([]domain.EndpointRecord, error) {
	ids, err := s.client.SMembers(ctx, s.setKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("list endpoints: %w", err)
	}
	if len(ids) == 0 {
		return []domain.EndpointRecord{}, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.key(id)
	}
	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("load endpoints: %w", err)
	}
	out := make([]domain.EndpointRecord, 0, len(vals))
	for _, v := range vals {
		str, ok := v.(string)
		if !ok {
			// deleted between SMEMBERS and MGET
			continue
		}
		rec, err := decode([]byte(str))
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	repo.SortRecords(out)
	return out, nil
}

// getter is satisfied by both *redis.Client and *redis.Tx.
type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (s *Store) read(ctx context.Context, c getter, id string) (domain.EndpointRecord, error) {
	raw, err := c.Get(ctx, s.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.EndpointRecord{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.EndpointRecord{}, fmt.Errorf("get endpoint: %w", err)
	}
	return decode(raw)
}

func encode(rec domain.EndpointRecord) ([]byte, error) {
	if rec.History == nil {
		rec.History = []domain.CheckResult{}
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("encode endpoint: %w", err)
	}
	return raw, nil
}

func decode(raw []byte) (domain.EndpointRecord, error) {
	var rec domain.EndpointRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return domain.EndpointRecord{}, fmt.Errorf("decode endpoint: %w", err)
	}
	if rec.History == nil {
		rec.History = []domain.CheckResult{}
	}
	return rec, nil
}
