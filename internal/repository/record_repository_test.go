package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"linknote-server/internal/domain"
)

func TestRecordRepository_SaveStampsTimes(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)
	repo := NewRecordRepository(NewMemoryKV(), WithClock(func() time.Time { return now }))

	r := &domain.Record{Type: domain.RecordTypeURI, Content: "https://a.example"}
	require.NoError(t, repo.Save(ctx, "a", r))

	got, err := repo.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, now, got.CreatedAt)
	assert.Equal(t, now, got.UpdatedAt)

	later := now.Add(time.Hour)
	repo = NewRecordRepository(repo.(*recordRepository).kv, WithClock(func() time.Time { return later }))

	got.Content = "https://b.example"
	require.NoError(t, repo.Save(ctx, "a", got))

	again, err := repo.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, now, again.CreatedAt, "created_at must survive edits")
	assert.Equal(t, later, again.UpdatedAt)
	assert.Equal(t, "https://b.example", again.Content)
}

func TestRecordRepository_GetMissing(t *testing.T) {
	repo := NewRecordRepository(NewMemoryKV())
	_, err := repo.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRecordRepository_ListAllSkipsSystemKeysAndPaginates(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV()
	repo := NewRecordRepository(kv, WithPageSize(2))

	for _, key := range []string{"a", "b", "c", "d", "e"} {
		require.NoError(t, repo.Save(ctx, key, &domain.Record{Type: domain.RecordTypeNote, Content: key}))
	}
	require.NoError(t, kv.Put(ctx, "__settings", `{"type":"note","content":"x"}`))
	require.NoError(t, kv.Put(ctx, "admin", `{"type":"note","content":"x"}`))
	require.NoError(t, kv.Put(ctx, "broken", `not json`))

	all, err := repo.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 5)
	for _, key := range []string{"a", "b", "c", "d", "e"} {
		require.Contains(t, all, key)
		assert.Equal(t, key, all[key].Content)
	}
	assert.NotContains(t, all, "__settings")
	assert.NotContains(t, all, "admin")
	assert.NotContains(t, all, "broken")
}

type laggingKV struct {
	KV
	listed []string
}

func (l *laggingKV) List(ctx context.Context, cursor string, limit int) (*ListPage, error) {
	return &ListPage{Keys: l.listed, Complete: true}, nil
}

func TestRecordRepository_ListAllToleratesStaleListing(t *testing.T) {
	ctx := context.Background()
	inner := NewMemoryKV()
	require.NoError(t, inner.Put(ctx, "kept", `{"type":"uri","content":"https://x.example"}`))

	repo := NewRecordRepository(&laggingKV{KV: inner, listed: []string{"kept", "deleted-already"}})

	all, err := repo.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
	assert.Contains(t, all, "kept")
}

type failingKV struct {
	KV
}

func (failingKV) Put(context.Context, string, string) error {
	return errors.New("store unavailable")
}

func TestRecordRepository_SaveWrapsStorageErrors(t *testing.T) {
	repo := NewRecordRepository(failingKV{KV: NewMemoryKV()})
	err := repo.Save(context.Background(), "a", &domain.Record{Type: domain.RecordTypeURI, Content: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to save record")
}
