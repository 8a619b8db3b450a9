package metadata

import (
	"context"

	"github.com/pkg/errors"

	"github.com/alvarorichard/gocatalog/internal/extractor"
	"github.com/alvarorichard/gocatalog/internal/models"
	"github.com/alvarorichard/gocatalog/internal/resilience"
	"github.com/alvarorichard/gocatalog/internal/util"
)

// Resolver fills in the parts of an extraction request the caller left out
type Resolver struct {
	tmdb     *TMDBClient
	omdb     *OMDbClient
	breakers *resilience.Breakers
	retry    resilience.RetryPolicy
}

// ResolverOption configures a Resolver
type ResolverOption func(*Resolver)

// WithResolverBreakers guards the TMDB and OMDb calls with named breakers
func WithResolverBreakers(b *resilience.Breakers) ResolverOption {
	return func(r *Resolver) { r.breakers = b }
}

// WithResolverRetry overrides the retry policy for metadata calls
func WithResolverRetry(p resilience.RetryPolicy) ResolverOption {
	return func(r *Resolver) { r.retry = p }
}

// NewResolver builds a resolver. Either client may be nil or unconfigured.
func NewResolver(tmdb *TMDBClient, omdb *OMDbClient, opts ...ResolverOption) *Resolver {
	r := &Resolver{tmdb: tmdb, omdb: omdb, retry: resilience.DefaultExponential()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Configured reports whether at least one metadata source can be queried
func (r *Resolver) Configured() bool {
	return r != nil && (r.tmdb.IsConfigured() || r.omdb.IsConfigured())
}

func complete(req extractor.Request) bool {
	return req.Title != "" && req.Year > 0 && req.IMDBID != ""
}

// Resolve returns req with Title, Year, IMDBID, TMDBID and Kind filled where
// they were empty. Fields the caller set are never overwritten. The returned
// request is usable even when err is non-nil.
func (r *Resolver) Resolve(ctx context.Context, req extractor.Request) (extractor.Request, error) {
	if complete(req) {
		return req, nil
	}
	if !r.Configured() {
		return req, ErrNotConfigured
	}

	var lastErr error

	if r.tmdb.IsConfigured() {
		if err := r.fromTMDB(ctx, &req); err != nil {
			util.Debug("TMDB resolution failed", "request", req.String(), "error", err)
			lastErr = err
		}
	}

	if !complete(req) && r.omdb.IsConfigured() {
		if err := r.fromOMDb(ctx, &req); err != nil {
			util.Debug("OMDb resolution failed", "request", req.String(), "error", err)
			lastErr = err
		}
	}

	if req.Title == "" {
		if lastErr == nil {
			lastErr = ErrNotFound
		}
		return req, lastErr
	}
	return req, nil
}

func (r *Resolver) fromTMDB(ctx context.Context, req *extractor.Request) error {
	if req.TMDBID == 0 && req.IMDBID != "" {
		found, err := guard(ctx, r, "tmdb", func() (*models.TMDBMedia, error) {
			return r.tmdb.FindByIMDBID(ctx, req.IMDBID)
		})
		if err != nil {
			return err
		}
		req.TMDBID = found.ID
		if req.Kind == "" {
			req.Kind = models.ParseMediaKind(found.MediaType)
		}
		fill(req, found.GetDisplayTitle(), found.GetReleaseYear(), "")
	}
	if req.TMDBID == 0 || complete(*req) {
		return nil
	}

	details, err := guard(ctx, r, "tmdb", func() (*models.TMDBDetails, error) {
		if req.Kind == models.MediaKindTV {
			return r.tmdb.TVDetails(ctx, req.TMDBID)
		}
		return r.tmdb.MovieDetails(ctx, req.TMDBID)
	})
	if err != nil {
		return err
	}
	imdb := details.IMDBID
	if imdb == "" {
		imdb = details.ExternalIDs.IMDBID
	}
	fill(req, details.DisplayTitle(), details.ReleaseYear(), imdb)
	return nil
}

func (r *Resolver) fromOMDb(ctx context.Context, req *extractor.Request) error {
	var media *OMDbMedia
	var err error
	switch {
	case req.IMDBID != "":
		media, err = guard(ctx, r, "omdb", func() (*OMDbMedia, error) {
			return r.omdb.ByIMDBID(ctx, req.IMDBID)
		})
	case req.Title != "":
		media, err = guard(ctx, r, "omdb", func() (*OMDbMedia, error) {
			return r.omdb.ByTitle(ctx, req.Title, req.Kind, req.Year)
		})
	default:
		return errors.New("OMDb needs an IMDb id or a title")
	}
	if err != nil {
		return err
	}
	if req.Kind == "" {
		req.Kind = media.Kind()
	}
	fill(req, media.Title, media.ReleaseYear(), media.IMDBID)
	return nil
}

func fill(req *extractor.Request, title string, year int, imdb string) {
	if req.Title == "" {
		req.Title = title
	}
	if req.Year == 0 {
		req.Year = year
	}
	if req.IMDBID == "" {
		req.IMDBID = imdb
	}
}

// guard runs op with retries behind the named breaker. Not-found answers are
// returned without retrying and do not count against the breaker.
func guard[T any](ctx context.Context, r *Resolver, name string, op func() (T, error)) (T, error) {
	var answered error
	v, err := resilience.Guarded(ctx, r.breakers.Get(name), r.retry, name, func() (T, error) {
		v, err := op()
		if errors.Is(err, ErrNotFound) {
			answered = err
			return v, nil
		}
		if errors.Is(err, ErrNotConfigured) {
			return v, resilience.Permanent(err)
		}
		return v, err
	})
	if err == nil && answered != nil {
		var zero T
		return zero, answered
	}
	return v, err
}
