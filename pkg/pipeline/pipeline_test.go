package pipeline

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ksmeta/pkg/config"
	"ksmeta/pkg/models"
	"ksmeta/pkg/utils"
)

func testPipeline(cfg *config.AppConfig, opts *Options) *Pipeline {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return New(cfg, logger, opts)
}

func testCfg(concurrency int) *config.AppConfig {
	cfg := &config.AppConfig{Concurrency: concurrency}
	cfg.Validate()
	return cfg
}

// fakeResolver derives an identifier from the URL tail, optionally failing
// for URLs marked bad.
type fakeResolver struct {
	calls atomic.Int64
}

func (f *fakeResolver) Resolve(_ context.Context, rawURL string) (string, error) {
	f.calls.Add(1)
	if rawURL == "bad" {
		return "", fmt.Errorf("%w: no identifier", utils.ErrResolveFailed)
	}
	return "slug-" + rawURL, nil
}

// fakeFetcher returns a well-formed state document per identifier after an
// optional delay, tracking the number of concurrently in-flight calls.
type fakeFetcher struct {
	delay       func(id string) time.Duration
	calls       atomic.Int64
	inflight    atomic.Int64
	maxInflight atomic.Int64
	fail        bool
}

func (f *fakeFetcher) FetchPhoto(ctx context.Context, videoID string) (string, error) {
	f.calls.Add(1)
	cur := f.inflight.Add(1)
	defer f.inflight.Add(-1)
	for {
		max := f.maxInflight.Load()
		if cur <= max || f.maxInflight.CompareAndSwap(max, cur) {
			break
		}
	}

	if f.delay != nil {
		select {
		case <-time.After(f.delay(videoID)):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if f.fail {
		return "", fmt.Errorf("%w: status 404", utils.ErrRetryFailed)
	}
	return stateBody(videoID), nil
}

// stateBody builds an HTML body whose numeric identifier is derived from the
// seeding slug, mimicking the sibling-structure layout of real responses.
func stateBody(videoID string) string {
	numeric := fmt.Sprintf("%015d", hashID(videoID))
	return fmt.Sprintf(`<script>window.INIT_STATE = {
		"fw/photo":{"photo":{"photoId":"%s","userName":"author-%s","likeCount":5},"counts":{"fanCount":10}},
		"share":{"photoId":"%s"}}</script>`, videoID, videoID, numeric)
}

func hashID(s string) uint64 {
	var h uint64 = 1469598103934665603
	for i := 0; i < len(s); i++ {
		h ^= uint64(s[i])
		h *= 1099511628211
	}
	return h % 1e15
}

func rowsN(n int) []models.InputRow {
	rows := make([]models.InputRow, n)
	for i := range rows {
		rows[i] = models.InputRow{Index: i, URLs: []string{fmt.Sprintf("u%03d", i)}}
	}
	return rows
}

func TestProcessBatchOrderPreserved(t *testing.T) {
	// Later rows finish first; results must still line up with input order.
	fetcher := &fakeFetcher{delay: func(id string) time.Duration {
		var n int
		fmt.Sscanf(id, "slug-u%d", &n)
		return time.Duration(100-n) * time.Millisecond
	}}
	p := testPipeline(testCfg(50), &Options{Resolver: &fakeResolver{}, Fetcher: fetcher})

	rows := rowsN(100)
	results, summary := p.ProcessBatch(context.Background(), rows)

	require.Len(t, results, 100)
	assert.Equal(t, 100, summary.Succeeded)
	for i, res := range results {
		assert.Equal(t, i, res.Row)
		assert.Equal(t, fmt.Sprintf("u%03d", i), res.SourceURL)
		require.NotNil(t, res.Record, "row %d", i)
		assert.Equal(t, "author-slug-u"+fmt.Sprintf("%03d", i), res.Record.AuthorName)
	}
}

func TestProcessBatchConcurrencyBound(t *testing.T) {
	fetcher := &fakeFetcher{delay: func(string) time.Duration { return 20 * time.Millisecond }}
	p := testPipeline(testCfg(5), &Options{Resolver: &fakeResolver{}, Fetcher: fetcher})

	results, _ := p.ProcessBatch(context.Background(), rowsN(100))

	require.Len(t, results, 100)
	assert.LessOrEqual(t, fetcher.maxInflight.Load(), int64(5))
	assert.Equal(t, int64(100), fetcher.calls.Load())
}

func TestProcessBatchNumericIDOverridesSlug(t *testing.T) {
	p := testPipeline(testCfg(5), &Options{Resolver: &fakeResolver{}, Fetcher: &fakeFetcher{}})

	results, _ := p.ProcessBatch(context.Background(), rowsN(1))
	require.Len(t, results, 1)

	res := results[0]
	require.Equal(t, models.StatusSuccess, res.Status)
	assert.NotEqual(t, "slug-u000", res.VideoID)
	assert.Len(t, res.VideoID, 15)
	assert.Equal(t, res.Record.PhotoID, res.VideoID)
}

func TestProcessBatchFailureIsolation(t *testing.T) {
	p := testPipeline(testCfg(5), &Options{Resolver: &fakeResolver{}, Fetcher: &fakeFetcher{}})

	rows := []models.InputRow{
		{Index: 0, URLs: []string{"u0"}},
		{Index: 1, URLs: []string{"bad"}},
		{Index: 2, URLs: []string{""}},
		{Index: 3, URLs: []string{"u3"}},
	}
	results, summary := p.ProcessBatch(context.Background(), rows)

	require.Len(t, results, 4)
	assert.Equal(t, 2, summary.Succeeded)
	assert.Equal(t, 2, summary.Failed)

	assert.Equal(t, models.StatusSuccess, results[0].Status)
	assert.Equal(t, models.StatusFailed, results[1].Status)
	assert.Equal(t, models.ReasonResolveFailed, results[1].Reason)
	assert.Nil(t, results[1].Record)
	assert.Equal(t, models.StatusFailed, results[2].Status)
	assert.Equal(t, models.ReasonNoURL, results[2].Reason)
	assert.Equal(t, models.StatusSuccess, results[3].Status)
}

func TestProcessBatchFetchFailureUniformReason(t *testing.T) {
	p := testPipeline(testCfg(5), &Options{Resolver: &fakeResolver{}, Fetcher: &fakeFetcher{fail: true}})

	results, _ := p.ProcessBatch(context.Background(), rowsN(3))
	for _, res := range results {
		assert.Equal(t, models.StatusFailed, res.Status)
		assert.Equal(t, models.ReasonContentGone, res.Reason)
		assert.Nil(t, res.Record)
	}
}

func TestProcessBatchCancellation(t *testing.T) {
	fetcher := &fakeFetcher{delay: func(string) time.Duration { return 100 * time.Millisecond }}
	p := testPipeline(testCfg(5), &Options{Resolver: &fakeResolver{}, Fetcher: fetcher})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()

	results, summary := p.ProcessBatch(ctx, rowsN(50))

	require.Len(t, results, 50)
	// No row is left pending; every result is terminal
	for i, res := range results {
		assert.True(t, res.Status.IsTerminal(), "row %d status %q", i, res.Status)
	}
	// New dispatch stopped well before the full batch
	assert.Less(t, fetcher.calls.Load(), int64(50))
	assert.Equal(t, 50, summary.Succeeded+summary.Failed)
}

func TestProcessBatchProgressMonotonic(t *testing.T) {
	var mu sync.Mutex
	var events []models.Progress
	opts := &Options{
		Resolver: &fakeResolver{},
		Fetcher:  &fakeFetcher{},
		OnProgress: func(pr models.Progress) {
			mu.Lock()
			events = append(events, pr)
			mu.Unlock()
		},
	}
	p := testPipeline(testCfg(10), opts)

	results, _ := p.ProcessBatch(context.Background(), rowsN(30))
	require.Len(t, results, 30)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, events, 30)
	// Completed counts are assigned atomically; collected as a set they
	// must cover 1..30 with no gaps or repeats
	seen := make(map[int]bool, len(events))
	for _, e := range events {
		assert.Equal(t, 30, e.Total)
		assert.False(t, seen[e.Completed], "duplicate progress count %d", e.Completed)
		seen[e.Completed] = true
	}
	for n := 1; n <= 30; n++ {
		assert.True(t, seen[n], "missing progress count %d", n)
	}
}

// memStore is an in-memory ResultStore for resume tests
type memStore struct {
	mu   sync.Mutex
	m    map[string]models.ProcessingResult
	puts int
}

func newMemStore() *memStore {
	return &memStore{m: make(map[string]models.ProcessingResult)}
}

func (s *memStore) Get(url string) (*models.ProcessingResult, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, ok := s.m[url]
	if !ok {
		return nil, false, nil
	}
	copied := res
	return &copied, true, nil
}

func (s *memStore) Put(res *models.ProcessingResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[res.SourceURL] = *res
	s.puts++
	return nil
}

func (s *memStore) Close() error { return nil }

func TestProcessBatchResume(t *testing.T) {
	store := newMemStore()
	store.m["u000"] = models.ProcessingResult{
		Row:       99, // stale row index from a previous run
		SourceURL: "u000",
		VideoID:   "111111111111111",
		Status:    models.StatusSuccess,
		Record:    &models.MetadataRecord{PhotoID: "111111111111111", AuthorName: "cached"},
	}

	fetcher := &fakeFetcher{}
	p := testPipeline(testCfg(5), &Options{Resolver: &fakeResolver{}, Fetcher: fetcher, Store: store})

	results, summary := p.ProcessBatch(context.Background(), rowsN(2))
	require.Len(t, results, 2)

	assert.Equal(t, 1, summary.Resumed)
	assert.Equal(t, 2, summary.Succeeded)

	// Cached row served without fetching, with its row index rewritten
	assert.Equal(t, 0, results[0].Row)
	assert.Equal(t, "cached", results[0].Record.AuthorName)
	assert.Equal(t, int64(1), fetcher.calls.Load())

	// Fresh success written back
	assert.Equal(t, 1, store.puts)
}

func TestLongFormURL(t *testing.T) {
	p := testPipeline(testCfg(5), &Options{Resolver: &fakeResolver{}, Fetcher: &fakeFetcher{}})
	assert.Equal(t, "https://m.gifshow.com/fw/photo/521854625001176962", p.LongFormURL("521854625001176962"))
	assert.Empty(t, p.LongFormURL(""))
}
