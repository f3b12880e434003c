package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"linknote-server/internal/domain"
	"linknote-server/internal/logging"
)

const DefaultPageSize = 100

type RecordRepository interface {
	Get(ctx context.Context, key string) (*domain.Record, error)
	Save(ctx context.Context, key string, record *domain.Record) error
	Delete(ctx context.Context, key string) error
	ListAll(ctx context.Context) (map[string]*domain.Record, error)
}

type recordRepository struct {
	kv       KV
	pageSize int
	now      func() time.Time
	logger   logging.Logger
}

type RecordOption func(*recordRepository)

func WithPageSize(n int) RecordOption {
	return func(r *recordRepository) {
		if n > 0 {
			r.pageSize = n
		}
	}
}

func WithClock(now func() time.Time) RecordOption {
	return func(r *recordRepository) { r.now = now }
}

func WithLogger(logger logging.Logger) RecordOption {
	return func(r *recordRepository) { r.logger = logger }
}

func NewRecordRepository(kv KV, opts ...RecordOption) RecordRepository {
	r := &recordRepository{
		kv:       kv,
		pageSize: DefaultPageSize,
		now:      time.Now,
		logger:   logging.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *recordRepository) Get(ctx context.Context, key string) (*domain.Record, error) {
	raw, err := r.kv.Get(ctx, key)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get record: %w", err)
	}

	var record domain.Record
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		return nil, fmt.Errorf("failed to decode record %q: %w", key, err)
	}

	return &record, nil
}

// Save stamps UpdatedAt and, on first save, CreatedAt before writing.
func (r *recordRepository) Save(ctx context.Context, key string, record *domain.Record) error {
	now := r.now().UTC()
	record.UpdatedAt = now
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}

	if err := r.kv.Put(ctx, key, string(data)); err != nil {
		return fmt.Errorf("failed to save record: %w", err)
	}

	return nil
}

func (r *recordRepository) Delete(ctx context.Context, key string) error {
	if err := r.kv.Delete(ctx, key); err != nil {
		return fmt.Errorf("failed to delete record: %w", err)
	}
	return nil
}

// ListAll pages through the collaborator and returns every non-system record.
// A key listed but gone by the time it is read is skipped.
func (r *recordRepository) ListAll(ctx context.Context) (map[string]*domain.Record, error) {
	records := make(map[string]*domain.Record)

	cursor := ""
	for {
		page, err := r.kv.List(ctx, cursor, r.pageSize)
		if err != nil {
			return nil, fmt.Errorf("failed to list records: %w", err)
		}

		for _, key := range page.Keys {
			if domain.IsSystemKey(key) {
				continue
			}

			record, err := r.Get(ctx, key)
			if err != nil {
				if errors.Is(err, ErrNotFound) {
					continue
				}
				var syntaxErr *json.SyntaxError
				var typeErr *json.UnmarshalTypeError
				if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
					r.logger.Warn("skipping undecodable record", "key", key, "error", err)
					continue
				}
				return nil, err
			}
			records[key] = record
		}

		if page.Complete || page.Cursor == "" {
			break
		}
		cursor = page.Cursor
	}

	return records, nil
}
