package repository

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func kvDrivers(t *testing.T) map[string]KV {
	t.Helper()

	bolt, err := OpenBoltKV(filepath.Join(t.TempDir(), "records.db"))
	require.NoError(t, err)
	t.Cleanup(func() { bolt.Close() })

	return map[string]KV{
		"memory": NewMemoryKV(),
		"bolt":   bolt,
	}
}

func TestKV_GetPutDelete(t *testing.T) {
	ctx := context.Background()

	for name, kv := range kvDrivers(t) {
		t.Run(name, func(t *testing.T) {
			_, err := kv.Get(ctx, "missing")
			assert.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, kv.Put(ctx, "k", "v1"))
			got, err := kv.Get(ctx, "k")
			require.NoError(t, err)
			assert.Equal(t, "v1", got)

			require.NoError(t, kv.Put(ctx, "k", "v2"))
			got, err = kv.Get(ctx, "k")
			require.NoError(t, err)
			assert.Equal(t, "v2", got)

			require.NoError(t, kv.Delete(ctx, "k"))
			_, err = kv.Get(ctx, "k")
			assert.ErrorIs(t, err, ErrNotFound)

			assert.NoError(t, kv.Delete(ctx, "k"), "deleting an absent key is not an error")
		})
	}
}

func TestKV_ListPaginates(t *testing.T) {
	ctx := context.Background()

	for name, kv := range kvDrivers(t) {
		t.Run(name, func(t *testing.T) {
			for i := 0; i < 7; i++ {
				require.NoError(t, kv.Put(ctx, fmt.Sprintf("key%02d", i), "v"))
			}

			var (
				all    []string
				cursor string
				pages  int
			)
			for {
				page, err := kv.List(ctx, cursor, 3)
				require.NoError(t, err)
				pages++
				all = append(all, page.Keys...)
				if page.Complete {
					break
				}
				require.NotEmpty(t, page.Cursor)
				cursor = page.Cursor
				require.Less(t, pages, 10, "pagination does not terminate")
			}

			assert.Equal(t, []string{"key00", "key01", "key02", "key03", "key04", "key05", "key06"}, all)
		})
	}
}

func TestKV_ListEmpty(t *testing.T) {
	for name, kv := range kvDrivers(t) {
		t.Run(name, func(t *testing.T) {
			page, err := kv.List(context.Background(), "", 10)
			require.NoError(t, err)
			assert.Empty(t, page.Keys)
			assert.True(t, page.Complete)
		})
	}
}
