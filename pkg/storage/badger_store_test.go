package storage

import (
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ksmeta/pkg/models"
)

func testStore(t *testing.T, fresh bool, dir string) *BadgerStore {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	store, err := NewBadgerStore(dir, fresh, logrus.NewEntry(logger))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func sampleResult(url string) *models.ProcessingResult {
	return &models.ProcessingResult{
		Row:       3,
		SourceURL: url,
		VideoID:   "521854625001176962",
		Status:    models.StatusSuccess,
		Record: &models.MetadataRecord{
			PhotoID:    "521854625001176962",
			AuthorName: "tester",
			LikeCount:  42,
		},
	}
}

func TestStoreRoundTrip(t *testing.T) {
	store := testStore(t, false, t.TempDir())

	url := "https://v.kuaishou.com/KJkZcGNA"
	require.NoError(t, store.Put(sampleResult(url)))

	got, found, err := store.Get(url)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, url, got.SourceURL)
	assert.Equal(t, models.StatusSuccess, got.Status)
	require.NotNil(t, got.Record)
	assert.Equal(t, int64(42), got.Record.LikeCount)
}

func TestStoreMissingKey(t *testing.T) {
	store := testStore(t, false, t.TempDir())

	got, found, err := store.Get("https://v.kuaishou.com/unknown")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, got)
}

func TestStoreOverwrite(t *testing.T) {
	store := testStore(t, false, t.TempDir())
	url := "https://v.kuaishou.com/KJkZcGNA"

	first := sampleResult(url)
	first.Status = models.StatusFailed
	first.Reason = models.ReasonContentGone
	first.Record = nil
	require.NoError(t, store.Put(first))

	require.NoError(t, store.Put(sampleResult(url)))

	got, found, err := store.Get(url)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, models.StatusSuccess, got.Status)
	assert.Empty(t, got.Reason)
}

func TestStoreFreshDropsPrevious(t *testing.T) {
	dir := t.TempDir()
	url := "https://v.kuaishou.com/KJkZcGNA"

	store := testStore(t, false, dir)
	require.NoError(t, store.Put(sampleResult(url)))
	require.NoError(t, store.Close())

	store = testStore(t, true, dir)
	_, found, err := store.Get(url)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestStorePersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	url := "https://v.kuaishou.com/KJkZcGNA"

	store := testStore(t, false, dir)
	require.NoError(t, store.Put(sampleResult(url)))
	require.NoError(t, store.Close())

	store = testStore(t, false, dir)
	_, found, err := store.Get(url)
	require.NoError(t, err)
	assert.True(t, found)
}
