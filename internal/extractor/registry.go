package extractor

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sourcegraph/conc/pool"

	"github.com/alvarorichard/gocatalog/internal/models"
	"github.com/alvarorichard/gocatalog/internal/resilience"
	"github.com/alvarorichard/gocatalog/internal/util"
)

// ErrTimeout is reported for a provider that did not answer within its timeout
var ErrTimeout = errors.New("Timeout")

// Registry runs every registered extractor for a request in priority order
type Registry struct {
	mu             sync.RWMutex
	extractors     []Extractor
	breakers       *resilience.Breakers
	timeout        time.Duration
	browserTimeout time.Duration
	parallel       bool
	maxWorkers     int
}

// Option configures a Registry
type Option func(*Registry)

// WithBreakers guards every provider with its own breaker from set
func WithBreakers(set *resilience.Breakers) Option {
	return func(r *Registry) {
		r.breakers = set
	}
}

// WithTimeouts overrides the per-provider timeouts. Zero keeps the default.
func WithTimeouts(plain, browser time.Duration) Option {
	return func(r *Registry) {
		if plain > 0 {
			r.timeout = plain
		}
		if browser > 0 {
			r.browserTimeout = browser
		}
	}
}

// WithParallel runs providers concurrently on at most maxWorkers goroutines.
// Results are still returned in priority order.
func WithParallel(maxWorkers int) Option {
	return func(r *Registry) {
		r.parallel = true
		r.maxWorkers = maxWorkers
	}
}

// NewRegistry creates an empty sequential registry
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		timeout:        DefaultTimeout,
		browserTimeout: DefaultBrowserTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.maxWorkers <= 0 {
		r.maxWorkers = 4
	}
	return r
}

// Register adds extractors. Later registrations lose priority ties.
func (r *Registry) Register(extractors ...Extractor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.extractors = append(r.extractors, extractors...)
}

// Extractors returns the registered extractors in execution order
func (r *Registry) Extractors() []Extractor {
	r.mu.RLock()
	ordered := make([]Extractor, len(r.extractors))
	copy(ordered, r.extractors)
	r.mu.RUnlock()

	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Priority() > ordered[j].Priority()
	})
	return ordered
}

// PriorityTable maps provider names to their priority
func (r *Registry) PriorityTable() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	table := make(map[string]int, len(r.extractors))
	for _, e := range r.extractors {
		table[e.Name()] = e.Priority()
	}
	return table
}

// SortStreams ranks streams using this registry's priority table
func (r *Registry) SortStreams(streams []models.ExtractedStream, targetLang string) []models.ExtractedStream {
	return SortStreams(streams, targetLang, r.PriorityTable())
}

// ExtractAll invokes every extractor and returns one result per provider, in
// priority order. Providers that need a browser are skipped when browser is nil.
// Failures and timeouts are contained in the provider's result.
func (r *Registry) ExtractAll(ctx context.Context, client *http.Client, browser BrowserSession, req Request) []models.ExtractionResult {
	ordered := r.Extractors()
	results := make([]models.ExtractionResult, len(ordered))

	util.Debug("Extracting streams", "request", req.String(), "providers", len(ordered), "parallel", r.parallel)

	if !r.parallel {
		for i, e := range ordered {
			results[i] = r.run(ctx, e, client, browser, req)
		}
		return results
	}

	p := pool.New().WithMaxGoroutines(r.maxWorkers)
	for i, e := range ordered {
		p.Go(func() {
			results[i] = r.run(ctx, e, client, browser, req)
		})
	}
	p.Wait()
	return results
}

func (r *Registry) run(ctx context.Context, e Extractor, client *http.Client, browser BrowserSession, req Request) models.ExtractionResult {
	name := e.Name()

	if e.NeedsBrowser() && browser == nil {
		util.Debug("Skipping provider without browser session", "provider", name)
		return models.ExtractionResult{Provider: name, Streams: []models.ExtractedStream{}, Skipped: true}
	}

	cb := r.breakers.Get(name)
	if cb != nil && cb.IsOpen() {
		util.Debug("Provider circuit open", "provider", name)
		return failure(name, resilience.ErrCircuitOpen)
	}

	timeout := r.timeout
	if e.NeedsBrowser() {
		timeout = r.browserTimeout
	}

	start := time.Now()
	res := invoke(ctx, timeout, e, client, browser, req)
	res.Provider = name
	if res.Streams == nil {
		res.Streams = []models.ExtractedStream{}
	}

	if cb != nil {
		if res.Error != "" {
			cb.RecordFailure()
		} else {
			cb.RecordSuccess()
		}
	}

	if res.Error != "" {
		util.Debug("Provider failed", "provider", name, "error", res.Error, "elapsed", time.Since(start))
	} else {
		util.Debug("Provider finished", "provider", name, "streams", len(res.Streams), "elapsed", time.Since(start))
	}
	return res
}

// invoke runs one extraction under timeout. The extractor sees a context that
// is cancelled at the deadline; if it ignores it, its late result is dropped.
func invoke(ctx context.Context, timeout time.Duration, e Extractor, client *http.Client, browser BrowserSession, req Request) models.ExtractionResult {
	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan models.ExtractionResult, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- failure(e.Name(), fmt.Errorf("panic: %v", rec))
			}
		}()
		done <- e.Extract(tctx, client, browser, req)
	}()

	select {
	case res := <-done:
		return res
	case <-tctx.Done():
		if ctx.Err() != nil {
			return failure(e.Name(), errors.Wrap(ctx.Err(), "cancelled"))
		}
		return failure(e.Name(), ErrTimeout)
	}
}
