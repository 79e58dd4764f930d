package crawl

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeFetcher struct {
	mu       sync.Mutex
	pages    map[string]FetchResult
	errs     map[string]error
	fetched  map[string]int
	blocking map[string]chan struct{}
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		pages:    make(map[string]FetchResult),
		errs:     make(map[string]error),
		fetched:  make(map[string]int),
		blocking: make(map[string]chan struct{}),
	}
}

func (f *fakeFetcher) Fetch(ctx context.Context, rawURL string) (FetchResult, error) {
	id := productIDFromURL(rawURL)
	f.mu.Lock()
	f.fetched[id]++
	block := f.blocking[id]
	f.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return FetchResult{}, ctx.Err()
		}
	}
	if err, ok := f.errs[id]; ok {
		return FetchResult{}, err
	}
	if page, ok := f.pages[id]; ok {
		return page, nil
	}
	return FetchResult{StatusCode: 200, Body: []byte(bareLandingPage)}, nil
}

func (f *fakeFetcher) count(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetched[id]
}

func productIDFromURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	return u.Query().Get("goodsNo")
}

type memoryStore struct {
	mu    sync.Mutex
	state State
	saves int
}

func (m *memoryStore) Load(context.Context) (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state, nil
}

func (m *memoryStore) Save(_ context.Context, state State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = state
	m.saves++
	return nil
}

func (m *memoryStore) snapshot() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

type memorySink struct {
	mu   sync.Mutex
	docs []Document
}

func (m *memorySink) Write(_ context.Context, doc Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs = append(m.docs, doc)
	return nil
}

func (m *memorySink) last() (Document, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.docs) == 0 {
		return Document{}, false
	}
	return m.docs[len(m.docs)-1], true
}

// TestOrchestratorClassifiesAndRecords runs a small batch end to end and
// checks records, counters, and the result document.
func TestOrchestratorClassifiesAndRecords(t *testing.T) {
	t.Parallel()

	fetcher := newFakeFetcher()
	fetcher.pages["A001"] = FetchResult{StatusCode: 200, Body: []byte(onSalePage), Elapsed: time.Second}
	fetcher.pages["A002"] = FetchResult{StatusCode: 200, Body: []byte(markerPage), Elapsed: time.Second}
	store := &memoryStore{}
	sink := &memorySink{}

	orch := NewOrchestrator(fetcher, nil, store, sink, nil, nil, nil, Options{MaxConcurrent: 2})
	stats, err := orch.Run(context.Background(), []string{"A001", "A002"})
	require.NoError(t, err)

	require.Equal(t, 2, stats.Total)
	require.Equal(t, 2, stats.Success)
	require.Zero(t, stats.Failed)

	state := store.snapshot()
	require.Len(t, state.Records, 2)
	require.Equal(t, StatusOnSale, state.Processed["A001"])
	require.Equal(t, StatusSoldOut, state.Processed["A002"])

	byID := make(map[string]ProductRecord)
	for _, rec := range state.Records {
		byID[rec.ProductID] = rec
	}
	require.Equal(t, "Vitamin Serum", byID["A001"].Title)
	require.Equal(t, ReasonMarkerPresent, byID["A002"].SoldOutReason)
	require.Contains(t, byID["A001"].URL, "goodsNo=A001")

	doc, ok := sink.last()
	require.True(t, ok)
	require.Equal(t, 2, doc.Metadata.TotalCrawled)
	require.Len(t, doc.Products, 2)
}

// TestOrchestratorTransportErrorDoesNotAbort verifies a failing fetch
// produces an error record and the remaining identifiers still process.
func TestOrchestratorTransportErrorDoesNotAbort(t *testing.T) {
	t.Parallel()

	fetcher := newFakeFetcher()
	fetcher.pages["A001"] = FetchResult{StatusCode: 200, Body: []byte(onSalePage)}
	fetcher.errs["A002"] = errors.New("connection reset")
	fetcher.pages["A003"] = FetchResult{StatusCode: 200, Body: []byte(markerPage)}
	store := &memoryStore{}

	orch := NewOrchestrator(fetcher, nil, store, nil, nil, nil, nil, Options{MaxConcurrent: 1})
	stats, err := orch.Run(context.Background(), []string{"A001", "A002", "A003"})
	require.NoError(t, err)

	require.Equal(t, 3, stats.Total)
	require.Equal(t, 2, stats.Success)
	require.Equal(t, 1, stats.Failed)
	require.Equal(t, StatusError, store.snapshot().Processed["A002"])
}

// TestOrchestratorSkipsInvalidAndDuplicateIDs checks identifier hygiene:
// malformed entries are skipped, duplicates dispatch once.
func TestOrchestratorSkipsInvalidAndDuplicateIDs(t *testing.T) {
	t.Parallel()

	fetcher := newFakeFetcher()
	store := &memoryStore{}
	orch := NewOrchestrator(fetcher, nil, store, nil, nil, nil, nil, Options{})

	stats, err := orch.Run(context.Background(), []string{
		" A001 ", "A001", "", "B002", "A",
	})
	require.NoError(t, err)
	require.Equal(t, 1, stats.Total)
	require.Equal(t, 1, fetcher.count("A001"))
	require.Zero(t, fetcher.count("B002"))
}

// TestOrchestratorResumeSkipsProcessed runs twice against the same store and
// asserts the second run re-fetches nothing.
func TestOrchestratorResumeSkipsProcessed(t *testing.T) {
	t.Parallel()

	fetcher := newFakeFetcher()
	fetcher.pages["A001"] = FetchResult{StatusCode: 200, Body: []byte(onSalePage)}
	fetcher.pages["A002"] = FetchResult{StatusCode: 200, Body: []byte(markerPage)}
	store := &memoryStore{}
	ids := []string{"A001", "A002"}

	orch := NewOrchestrator(fetcher, nil, store, nil, nil, nil, nil, Options{Resume: true})
	_, err := orch.Run(context.Background(), ids)
	require.NoError(t, err)
	require.Equal(t, 1, fetcher.count("A001"))

	resumed := NewOrchestrator(fetcher, nil, store, nil, nil, nil, nil, Options{Resume: true})
	stats, err := resumed.Run(context.Background(), ids)
	require.NoError(t, err)
	require.Equal(t, 1, fetcher.count("A001"))
	require.Equal(t, 1, fetcher.count("A002"))
	require.Equal(t, 2, stats.Total)
	require.Equal(t, 2, stats.Success)
}

// TestOrchestratorRetryFailedOnResume confirms error-status entries are
// re-armed when the option is set, and only then.
func TestOrchestratorRetryFailedOnResume(t *testing.T) {
	t.Parallel()

	fetcher := newFakeFetcher()
	fetcher.errs["A001"] = errors.New("connection reset")
	store := &memoryStore{}
	ids := []string{"A001"}

	orch := NewOrchestrator(fetcher, nil, store, nil, nil, nil, nil, Options{Resume: true})
	stats, err := orch.Run(context.Background(), ids)
	require.NoError(t, err)
	require.Equal(t, 1, stats.Failed)

	// Without the option the failure is final.
	again := NewOrchestrator(fetcher, nil, store, nil, nil, nil, nil, Options{Resume: true})
	_, err = again.Run(context.Background(), ids)
	require.NoError(t, err)
	require.Equal(t, 1, fetcher.count("A001"))

	// With the option the identifier is re-fetched and the failure counter
	// does not double-count.
	delete(fetcher.errs, "A001")
	fetcher.pages["A001"] = FetchResult{StatusCode: 200, Body: []byte(onSalePage)}
	retry := NewOrchestrator(fetcher, nil, store, nil, nil, nil, nil, Options{
		Resume:              true,
		RetryFailedOnResume: true,
	})
	stats, err = retry.Run(context.Background(), ids)
	require.NoError(t, err)
	require.Equal(t, 2, fetcher.count("A001"))
	require.Equal(t, 1, stats.Success)
	require.Zero(t, stats.Failed)
	require.Equal(t, stats.Success+stats.Failed, len(store.snapshot().Processed))
}

// TestOrchestratorCancellationFlushesCheckpoint interrupts a run mid-flight
// and verifies completed work is checkpointed while the in-flight identifier
// stays unrecorded for a later retry.
func TestOrchestratorCancellationFlushesCheckpoint(t *testing.T) {
	t.Parallel()

	fetcher := newFakeFetcher()
	fetcher.pages["A001"] = FetchResult{StatusCode: 200, Body: []byte(onSalePage)}
	fetcher.blocking["A002"] = make(chan struct{})
	store := &memoryStore{}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan RunStats, 1)
	orch := NewOrchestrator(fetcher, nil, store, nil, nil, nil, nil, Options{MaxConcurrent: 1})
	go func() {
		stats, _ := orch.Run(ctx, []string{"A001", "A002"})
		done <- stats
	}()

	// A001 completes normally; cancel while A002 is blocked mid-fetch.
	require.Eventually(t, func() bool { return fetcher.count("A002") == 1 }, time.Second, 5*time.Millisecond)
	cancel()

	var stats RunStats
	select {
	case stats = <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("run did not stop after cancellation")
	}

	state := store.snapshot()
	require.Contains(t, state.Processed, "A001")
	require.NotContains(t, state.Processed, "A002")
	require.Equal(t, stats.Success+stats.Failed, len(state.Processed))
}

// TestOrchestratorCheckpointCadence sets checkpoint_every above one and
// counts intermediate saves.
func TestOrchestratorCheckpointCadence(t *testing.T) {
	t.Parallel()

	fetcher := newFakeFetcher()
	store := &memoryStore{}
	orch := NewOrchestrator(fetcher, nil, store, nil, nil, nil, nil, Options{
		MaxConcurrent:   1,
		CheckpointEvery: 2,
	})
	_, err := orch.Run(context.Background(), []string{"A001", "A002", "A003", "A004"})
	require.NoError(t, err)

	store.mu.Lock()
	saves := store.saves
	store.mu.Unlock()
	// Two cadence flushes plus the final flush.
	require.Equal(t, 3, saves)
}

// TestOrchestratorConcurrencyCeiling drives the pool through a throttle and
// asserts the worker count never exceeds the configured bound.
func TestOrchestratorConcurrencyCeiling(t *testing.T) {
	t.Parallel()

	const ceiling = 2
	var peak, current atomic.Int64
	fetcher := &gaugeFetcher{peak: &peak, current: &current}
	throttle, err := NewThrottle(ThrottleConfig{MaxConcurrent: ceiling})
	require.NoError(t, err)

	orch := NewOrchestrator(fetcher, throttle, &memoryStore{}, nil, nil, nil, nil, Options{
		MaxConcurrent: 8,
	})
	ids := make([]string, 0, 16)
	for _, suffix := range strings.Split("01 02 03 04 05 06 07 08 09 10 11 12 13 14 15 16", " ") {
		ids = append(ids, "A0"+suffix)
	}
	_, err = orch.Run(context.Background(), ids)
	require.NoError(t, err)
	require.LessOrEqual(t, peak.Load(), int64(ceiling))
}

type gaugeFetcher struct {
	peak    *atomic.Int64
	current *atomic.Int64
}

func (g *gaugeFetcher) Fetch(context.Context, string) (FetchResult, error) {
	n := g.current.Add(1)
	defer g.current.Add(-1)
	for {
		old := g.peak.Load()
		if n <= old || g.peak.CompareAndSwap(old, n) {
			break
		}
	}
	time.Sleep(2 * time.Millisecond)
	return FetchResult{StatusCode: 200, Body: []byte(onSalePage)}, nil
}
