package artifact

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/quarry/internal/rulekey"
)

func testKey(seed string) rulekey.Key {
	return rulekey.HashBytes([]byte(seed))
}

func TestFileStore_PutGetContains(t *testing.T) {
	clock := clockwork.NewFakeClock()
	store := NewFileStore(t.TempDir(), clock)
	key := testKey("k1")

	assert.False(t, store.Contains(key))
	got, err := store.Get(key)
	require.NoError(t, err)
	assert.Nil(t, got, "a miss is (nil, nil)")

	record := NewRecord(key, "build-1", []Output{
		{Path: "out/a.txt", Content: []byte("alpha")},
		{Path: "out/b.txt", Content: []byte("beta")},
	}, clock.Now())
	require.NoError(t, store.Put(record))

	assert.True(t, store.Contains(key))
	got, err = store.Get(key)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, key.String(), got.Key)
	assert.Equal(t, "build-1", got.BuildID)
	require.Len(t, got.Outputs, 2)
	assert.Equal(t, []byte("alpha"), got.Outputs[0].Content)
	assert.Equal(t, rulekey.HashBytes([]byte("alpha")).String(), got.Outputs[0].ContentHash)
	assert.True(t, clock.Now().Equal(got.CreatedAt))
}

func TestFileStore_RecordsAreImmutable(t *testing.T) {
	store := NewFileStore(t.TempDir(), clockwork.NewFakeClock())
	key := testKey("k2")

	first := NewRecord(key, "build-1", []Output{{Path: "o", Content: []byte("v1")}}, time.Time{})
	require.NoError(t, store.Put(first))

	second := NewRecord(key, "build-2", []Output{{Path: "o", Content: []byte("v2")}}, time.Time{})
	require.NoError(t, store.Put(second))

	got, err := store.Get(key)
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), got.Outputs[0].Content, "the first committed record wins")
}

func TestFileStore_CorruptRecordIsAnError(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore(dir, clockwork.NewFakeClock())
	key := testKey("k3")

	hex := key.String()
	recordDir := filepath.Join(dir, hex[:2], hex)
	require.NoError(t, os.MkdirAll(recordDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(recordDir, "record.json"), []byte("{not json"), 0o644))

	_, err := store.Get(key)
	assert.Error(t, err)
}

func TestNewRecord_OutputHashTracksContent(t *testing.T) {
	key := testKey("k4")
	a := NewRecord(key, "b", []Output{{Path: "o", Content: []byte("same")}}, time.Time{})
	b := NewRecord(key, "b", []Output{{Path: "o", Content: []byte("same")}}, time.Time{})
	c := NewRecord(key, "b", []Output{{Path: "o", Content: []byte("diff")}}, time.Time{})

	assert.Equal(t, a.OutputHash, b.OutputHash)
	assert.NotEqual(t, a.OutputHash, c.OutputHash)
}
