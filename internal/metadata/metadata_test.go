package metadata

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alvarorichard/gocatalog/internal/extractor"
	"github.com/alvarorichard/gocatalog/internal/models"
	"github.com/alvarorichard/gocatalog/internal/resilience"
)

func onePass() resilience.RetryPolicy {
	return resilience.RetryPolicy{MaxAttempts: 1, InitialDelay: time.Millisecond, Multiplier: 1, MaxDelay: time.Millisecond}
}

func tmdbServer(t *testing.T) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/find/tt1375666", func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "imdb_id", r.URL.Query().Get("external_source"))
		assert.Equal(t, "tmdb-key", r.URL.Query().Get("api_key"))
		_, _ = w.Write([]byte(`{"movie_results":[{"id":27205,"title":"Inception","release_date":"2010-07-15"}],"tv_results":[]}`))
	})
	mux.HandleFunc("/find/tt0000000", func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{"movie_results":[],"tv_results":[]}`))
	})
	mux.HandleFunc("/movie/27205", func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{"id":27205,"imdb_id":"tt1375666","title":"Inception","release_date":"2010-07-15"}`))
	})
	mux.HandleFunc("/tv/1396", func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "external_ids", r.URL.Query().Get("append_to_response"))
		_, _ = w.Write([]byte(`{"id":1396,"name":"Breaking Bad","first_air_date":"2008-01-20","external_ids":{"imdb_id":"tt0903747"}}`))
	})
	mux.HandleFunc("/movie/500", func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &calls
}

func omdbServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "omdb-key", q.Get("apikey"))
		switch {
		case q.Get("i") == "tt0903747":
			_, _ = w.Write([]byte(`{"Title":"Breaking Bad","Year":"2008–2013","imdbID":"tt0903747","Type":"series","Response":"True"}`))
		case q.Get("t") == "Inception":
			assert.Equal(t, "movie", q.Get("type"))
			_, _ = w.Write([]byte(`{"Title":"Inception","Year":"2010","imdbID":"tt1375666","Type":"movie","Response":"True"}`))
		default:
			_, _ = w.Write([]byte(`{"Response":"False","Error":"Movie not found!"}`))
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestResolve_FromIMDBIDViaTMDB(t *testing.T) {
	t.Parallel()
	srv, _ := tmdbServer(t)
	r := NewResolver(NewTMDBClient("tmdb-key", srv.Client()).WithBaseURL(srv.URL), nil, WithResolverRetry(onePass()))

	got, err := r.Resolve(context.Background(), extractor.Request{IMDBID: "tt1375666"})
	require.NoError(t, err)
	assert.Equal(t, 27205, got.TMDBID)
	assert.Equal(t, models.MediaKindMovie, got.Kind)
	assert.Equal(t, "Inception", got.Title)
	assert.Equal(t, 2010, got.Year)
	assert.Equal(t, "tt1375666", got.IMDBID)
}

func TestResolve_TVDetailsUseExternalIDs(t *testing.T) {
	t.Parallel()
	srv, _ := tmdbServer(t)
	r := NewResolver(NewTMDBClient("tmdb-key", srv.Client()).WithBaseURL(srv.URL), nil, WithResolverRetry(onePass()))

	got, err := r.Resolve(context.Background(), extractor.Request{TMDBID: 1396, Kind: models.MediaKindTV, Season: 1, Episode: 2})
	require.NoError(t, err)
	assert.Equal(t, "Breaking Bad", got.Title)
	assert.Equal(t, 2008, got.Year)
	assert.Equal(t, "tt0903747", got.IMDBID)
	assert.Equal(t, 2, got.Episode)
}

func TestResolve_KeepsCallerFields(t *testing.T) {
	t.Parallel()
	srv, _ := tmdbServer(t)
	r := NewResolver(NewTMDBClient("tmdb-key", srv.Client()).WithBaseURL(srv.URL), nil, WithResolverRetry(onePass()))

	got, err := r.Resolve(context.Background(), extractor.Request{TMDBID: 27205, Kind: models.MediaKindMovie, Title: "Origen"})
	require.NoError(t, err)
	assert.Equal(t, "Origen", got.Title)
	assert.Equal(t, 2010, got.Year)
}

func TestResolve_CompleteRequestSkipsNetwork(t *testing.T) {
	t.Parallel()
	srv, calls := tmdbServer(t)
	r := NewResolver(NewTMDBClient("tmdb-key", srv.Client()).WithBaseURL(srv.URL), nil)

	req := extractor.Request{IMDBID: "tt1375666", Title: "Inception", Year: 2010}
	got, err := r.Resolve(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, req, got)
	assert.Zero(t, calls.Load())
}

func TestResolve_FallsBackToOMDb(t *testing.T) {
	t.Parallel()
	tmdb, _ := tmdbServer(t)
	omdb := omdbServer(t)
	r := NewResolver(
		NewTMDBClient("tmdb-key", tmdb.Client()).WithBaseURL(tmdb.URL),
		NewOMDbClient("omdb-key", omdb.Client()).WithBaseURL(omdb.URL),
		WithResolverRetry(onePass()),
	)

	// TMDB fails for this id, OMDb answers by title
	got, err := r.Resolve(context.Background(), extractor.Request{TMDBID: 500, Kind: models.MediaKindMovie, Title: "Inception"})
	require.NoError(t, err)
	assert.Equal(t, 2010, got.Year)
	assert.Equal(t, "tt1375666", got.IMDBID)
}

func TestResolve_OMDbOnly(t *testing.T) {
	t.Parallel()
	omdb := omdbServer(t)
	r := NewResolver(nil, NewOMDbClient("omdb-key", omdb.Client()).WithBaseURL(omdb.URL), WithResolverRetry(onePass()))

	got, err := r.Resolve(context.Background(), extractor.Request{IMDBID: "tt0903747"})
	require.NoError(t, err)
	assert.Equal(t, "Breaking Bad", got.Title)
	assert.Equal(t, 2008, got.Year)
	assert.Equal(t, models.MediaKindTV, got.Kind)
}

func TestResolve_NotConfigured(t *testing.T) {
	t.Parallel()
	r := NewResolver(NewTMDBClient("", nil), NewOMDbClient("", nil))
	assert.False(t, r.Configured())

	req := extractor.Request{TMDBID: 1}
	got, err := r.Resolve(context.Background(), req)
	assert.ErrorIs(t, err, ErrNotConfigured)
	assert.Equal(t, req, got)
}

func TestResolve_NotFoundDoesNotTripBreaker(t *testing.T) {
	t.Parallel()
	srv, calls := tmdbServer(t)
	breakers := resilience.NewBreakers(resilience.BreakerConfig{FailureThreshold: 1, SuccessThreshold: 1, Timeout: time.Minute})
	r := NewResolver(NewTMDBClient("tmdb-key", srv.Client()).WithBaseURL(srv.URL), nil,
		WithResolverBreakers(breakers),
		WithResolverRetry(resilience.RetryPolicy{MaxAttempts: 3, InitialDelay: time.Millisecond, Multiplier: 1, MaxDelay: time.Millisecond}),
	)

	_, err := r.Resolve(context.Background(), extractor.Request{IMDBID: "tt0000000"})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, int32(1), calls.Load(), "not found is not retried")
	assert.Equal(t, resilience.StateClosed, breakers.Get("tmdb").State())
}

func TestResolve_ServerErrorsOpenBreaker(t *testing.T) {
	t.Parallel()
	srv, calls := tmdbServer(t)
	breakers := resilience.NewBreakers(resilience.BreakerConfig{FailureThreshold: 2, SuccessThreshold: 1, Timeout: time.Minute})
	r := NewResolver(NewTMDBClient("tmdb-key", srv.Client()).WithBaseURL(srv.URL), nil,
		WithResolverBreakers(breakers),
		WithResolverRetry(resilience.RetryPolicy{MaxAttempts: 5, InitialDelay: time.Millisecond, Multiplier: 1, MaxDelay: time.Millisecond}),
	)

	_, err := r.Resolve(context.Background(), extractor.Request{TMDBID: 500, Kind: models.MediaKindMovie})
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
	assert.Equal(t, int32(2), calls.Load())
}

func TestOMDbMedia_ReleaseYear(t *testing.T) {
	t.Parallel()
	assert.Equal(t, 2008, (&OMDbMedia{Year: "2008–2013"}).ReleaseYear())
	assert.Equal(t, 1999, (&OMDbMedia{Year: "1999"}).ReleaseYear())
	assert.Zero(t, (&OMDbMedia{Year: "N/A"}).ReleaseYear())
}
