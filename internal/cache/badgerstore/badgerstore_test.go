package badgerstore

import (
	"context"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/specialistvlad/datagridgo/internal/cache"
	"github.com/specialistvlad/datagridgo/internal/record"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testKey = cache.Key{Data: "d", Code: "c", Env: "e"}

func testEntry() *cache.Entry {
	return &cache.Entry{
		Records: record.Batch{
			{ID: "r1", Payload: map[string]any{"text": "hello", "score": 0.5}, Metadata: map[string]any{"lang": "en"}},
		},
		Failures:  []cache.StoredFailure{{Index: 1, ID: "r2", Message: "boom"}},
		Cost:      15 * time.Millisecond,
		CreatedAt: time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

// TestInMemory_RoundTrip verifies entries survive encoding.
func TestInMemory_RoundTrip(t *testing.T) {
	s, err := Open(InMemoryConfig())
	require.NoError(t, err)
	defer s.Close()
	ctx := context.Background()

	_, ok, err := s.Get(ctx, testKey)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Put(ctx, testKey, testEntry()))

	got, ok, err := s.Get(ctx, testKey)
	require.NoError(t, err)
	require.True(t, ok)

	want := testEntry()
	assert.True(t, record.Equal(want.Records, got.Records))
	assert.Equal(t, want.Failures, got.Failures)
	assert.Equal(t, want.Cost, got.Cost)
	assert.True(t, want.CreatedAt.Equal(got.CreatedAt))

	require.NoError(t, s.Invalidate(ctx, testKey))
	_, ok, err = s.Get(ctx, testKey)
	require.NoError(t, err)
	assert.False(t, ok)
}

// TestPersistent_Reopen verifies entries persist across Close and Open.
func TestPersistent_Reopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s, err := Open(DefaultConfig(dir))
	require.NoError(t, err)
	require.NoError(t, s.Put(ctx, testKey, testEntry()))
	require.NoError(t, s.Close())

	s2, err := Open(DefaultConfig(dir))
	require.NoError(t, err)
	defer s2.Close()

	got, ok, err := s2.Get(ctx, testKey)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "r1", got.Records[0].ID)
}

// TestCorruptEntry verifies undecodable values surface as errors.
func TestCorruptEntry(t *testing.T) {
	s, err := Open(InMemoryConfig())
	require.NoError(t, err)
	defer s.Close()

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(storageKey(testKey), []byte{0xc1})
	})
	require.NoError(t, err)

	_, ok, err := s.Get(context.Background(), testKey)
	assert.False(t, ok)
	assert.ErrorContains(t, err, "decode entry")
}

func TestOpen_RequiresPath(t *testing.T) {
	_, err := Open(Config{})
	assert.ErrorContains(t, err, "path is required")
}
