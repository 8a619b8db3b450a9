package extractor

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alvarorichard/gocatalog/internal/models"
	"github.com/alvarorichard/gocatalog/internal/resilience"
)

// MockExtractor implements Extractor for testing
type MockExtractor struct {
	name         string
	priority     int
	needsBrowser bool
	delay        time.Duration
	panicMsg     string
	extractFunc  func(ctx context.Context, browser BrowserSession, req Request) models.ExtractionResult
	calls        atomic.Int32
	onCall       func(name string)
}

func (m *MockExtractor) Name() string       { return m.name }
func (m *MockExtractor) NeedsBrowser() bool { return m.needsBrowser }
func (m *MockExtractor) Priority() int      { return m.priority }

func (m *MockExtractor) Extract(ctx context.Context, _ *http.Client, browser BrowserSession, req Request) models.ExtractionResult {
	m.calls.Add(1)
	if m.onCall != nil {
		m.onCall(m.name)
	}
	if m.delay > 0 {
		time.Sleep(m.delay)
	}
	if m.panicMsg != "" {
		panic(m.panicMsg)
	}
	if m.extractFunc != nil {
		return m.extractFunc(ctx, browser, req)
	}
	return success(m.name, []models.ExtractedStream{{Provider: m.name, URL: "https://cdn.example/" + m.name + ".m3u8", Quality: "1080p"}}, nil)
}

type fakeSession struct {
	urls []string
	err  error
}

func (f *fakeSession) CaptureStreams(_ context.Context, _ string, _ map[string]string) ([]string, error) {
	return f.urls, f.err
}

func providers(results []models.ExtractionResult) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.Provider
	}
	return out
}

func TestRegistry_PriorityOrder(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var order []string
	record := func(name string) {
		mu.Lock()
		order = append(order, name)
		mu.Unlock()
	}

	reg := NewRegistry()
	reg.Register(
		&MockExtractor{name: "low", priority: 1, onCall: record},
		&MockExtractor{name: "first-high", priority: 5, onCall: record},
		&MockExtractor{name: "second-high", priority: 5, onCall: record},
		&MockExtractor{name: "zero", priority: 0, onCall: record},
	)

	results := reg.ExtractAll(context.Background(), http.DefaultClient, nil, Request{TMDBID: 27205, Kind: models.MediaKindMovie})

	want := []string{"first-high", "second-high", "low", "zero"}
	assert.Equal(t, want, providers(results))
	assert.Equal(t, want, order)
	for _, r := range results {
		assert.True(t, r.OK(), r.Provider)
	}
}

func TestRegistry_SkipsBrowserProvidersWithoutSession(t *testing.T) {
	t.Parallel()

	needs := &MockExtractor{name: "sniffer", priority: 3, needsBrowser: true}
	plain := &MockExtractor{name: "plain", priority: 1}

	reg := NewRegistry()
	reg.Register(needs, plain)

	results := reg.ExtractAll(context.Background(), http.DefaultClient, nil, Request{TMDBID: 1})
	require.Len(t, results, 2)

	assert.Equal(t, "sniffer", results[0].Provider)
	assert.True(t, results[0].Skipped)
	assert.Empty(t, results[0].Error)
	assert.Empty(t, results[0].Streams)
	assert.Equal(t, int32(0), needs.calls.Load())

	assert.True(t, results[1].OK())
}

func TestRegistry_RunsBrowserProvidersWithSession(t *testing.T) {
	t.Parallel()

	needs := &MockExtractor{name: "sniffer", needsBrowser: true}
	reg := NewRegistry()
	reg.Register(needs)

	results := reg.ExtractAll(context.Background(), http.DefaultClient, &fakeSession{}, Request{TMDBID: 1})
	require.Len(t, results, 1)
	assert.False(t, results[0].Skipped)
	assert.Equal(t, int32(1), needs.calls.Load())
}

func TestRegistry_Timeout(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(WithTimeouts(20*time.Millisecond, 40*time.Millisecond))
	reg.Register(
		&MockExtractor{name: "slow", priority: 2, delay: 300 * time.Millisecond},
		&MockExtractor{name: "fast", priority: 1},
	)

	start := time.Now()
	results := reg.ExtractAll(context.Background(), http.DefaultClient, nil, Request{TMDBID: 1})
	assert.Less(t, time.Since(start), 250*time.Millisecond)

	require.Len(t, results, 2)
	assert.Equal(t, "slow", results[0].Provider)
	assert.Equal(t, "Timeout", results[0].Error)
	assert.Empty(t, results[0].Streams)
	assert.True(t, results[1].OK())
}

func TestRegistry_BrowserProvidersGetLongerTimeout(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(WithTimeouts(20*time.Millisecond, 200*time.Millisecond))
	reg.Register(
		&MockExtractor{name: "headless", priority: 2, needsBrowser: true, delay: 60 * time.Millisecond},
		&MockExtractor{name: "plain", priority: 1, delay: 60 * time.Millisecond},
	)

	results := reg.ExtractAll(context.Background(), http.DefaultClient, &fakeSession{}, Request{TMDBID: 1})
	require.Len(t, results, 2)

	assert.Equal(t, "headless", results[0].Provider)
	assert.True(t, results[0].OK(), "browser provider error: %q", results[0].Error)
	assert.NotEmpty(t, results[0].Streams)

	assert.Equal(t, "plain", results[1].Provider)
	assert.Equal(t, "Timeout", results[1].Error)
	assert.Empty(t, results[1].Streams)
}

func TestRegistry_ProviderErrorIsContained(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	reg.Register(
		&MockExtractor{name: "broken", priority: 2, extractFunc: func(context.Context, BrowserSession, Request) models.ExtractionResult {
			return failure("broken", errors.New("server returned: 503"))
		}},
		&MockExtractor{name: "panicky", priority: 1, panicMsg: "nil map"},
		&MockExtractor{name: "fine"},
	)

	results := reg.ExtractAll(context.Background(), http.DefaultClient, nil, Request{TMDBID: 1})
	require.Len(t, results, 3)
	assert.Equal(t, "server returned: 503", results[0].Error)
	assert.Contains(t, results[1].Error, "panic: nil map")
	assert.NotNil(t, results[1].Streams)
	assert.True(t, results[2].OK())
}

func TestRegistry_BreakerStopsCallingFailingProvider(t *testing.T) {
	t.Parallel()

	breakers := resilience.NewBreakers(resilience.BreakerConfig{FailureThreshold: 2, SuccessThreshold: 1, Timeout: time.Hour})
	failing := &MockExtractor{name: "flaky", extractFunc: func(context.Context, BrowserSession, Request) models.ExtractionResult {
		return failure("flaky", errors.New("boom"))
	}}

	reg := NewRegistry(WithBreakers(breakers))
	reg.Register(failing)

	for i := 0; i < 2; i++ {
		reg.ExtractAll(context.Background(), http.DefaultClient, nil, Request{TMDBID: 1})
	}
	results := reg.ExtractAll(context.Background(), http.DefaultClient, nil, Request{TMDBID: 1})

	assert.Equal(t, int32(2), failing.calls.Load())
	assert.Equal(t, "circuit open", results[0].Error)
	assert.Equal(t, resilience.StateOpen, breakers.Get("flaky").State())
}

func TestRegistry_ParallelMatchesSequential(t *testing.T) {
	t.Parallel()

	build := func(opts ...Option) *Registry {
		reg := NewRegistry(append(opts, WithTimeouts(50*time.Millisecond, 0))...)
		reg.Register(
			&MockExtractor{name: "a", priority: 1, delay: 15 * time.Millisecond},
			&MockExtractor{name: "b", priority: 9, delay: 5 * time.Millisecond},
			&MockExtractor{name: "c", priority: 4, delay: 200 * time.Millisecond},
			&MockExtractor{name: "d", priority: 4, needsBrowser: true},
		)
		return reg
	}

	req := Request{TMDBID: 603, Kind: models.MediaKindMovie}
	seq := build().ExtractAll(context.Background(), http.DefaultClient, nil, req)
	par := build(WithParallel(3)).ExtractAll(context.Background(), http.DefaultClient, nil, req)

	assert.Equal(t, seq, par)
	assert.Equal(t, []string{"b", "c", "d", "a"}, providers(par))
	assert.Equal(t, "Timeout", par[1].Error)
	assert.True(t, par[2].Skipped)
}

func TestRegistry_CancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	reg := NewRegistry()
	reg.Register(&MockExtractor{name: "slow", delay: 100 * time.Millisecond})

	results := reg.ExtractAll(ctx, http.DefaultClient, nil, Request{TMDBID: 1})
	require.Len(t, results, 1)
	assert.Contains(t, results[0].Error, "cancelled")
}

func TestRegistry_PriorityTable(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	reg.Register(&MockExtractor{name: "a", priority: 3}, &MockExtractor{name: "b", priority: -1})

	assert.Equal(t, map[string]int{"a": 3, "b": -1}, reg.PriorityTable())
}
