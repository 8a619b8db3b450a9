// Package metadata resolves catalog identities (title, year, ids) from TMDB and OMDb
package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/pkg/errors"

	"github.com/alvarorichard/gocatalog/internal/models"
	"github.com/alvarorichard/gocatalog/internal/resilience"
	"github.com/alvarorichard/gocatalog/internal/util"
)

const (
	// TMDB API base URL
	TMDBBaseURL = "https://api.themoviedb.org/3"
)

// ErrNotConfigured is returned when no metadata source has an API key
var ErrNotConfigured = errors.New("metadata source not configured")

// ErrNotFound is returned when a lookup matched nothing
var ErrNotFound = errors.New("title not found")

// TMDBClient handles interactions with TMDB API
type TMDBClient struct {
	client  *http.Client
	apiKey  string
	baseURL string
}

// NewTMDBClient creates a TMDB client. A nil client uses the shared HTTP client.
// Get a free API key at https://www.themoviedb.org/settings/api
func NewTMDBClient(apiKey string, client *http.Client) *TMDBClient {
	if apiKey == "" {
		util.Debug("TMDB API key not set, TMDB lookups disabled")
	}
	if client == nil {
		client = util.GetSharedClient()
	}
	return &TMDBClient{client: client, apiKey: apiKey, baseURL: TMDBBaseURL}
}

// WithBaseURL points the client at another endpoint
func (c *TMDBClient) WithBaseURL(base string) *TMDBClient {
	c.baseURL = strings.TrimRight(base, "/")
	return c
}

// IsConfigured returns true if the TMDB API key is configured
func (c *TMDBClient) IsConfigured() bool {
	return c != nil && c.apiKey != ""
}

// MovieDetails gets detailed information about a movie
func (c *TMDBClient) MovieDetails(ctx context.Context, movieID int) (*models.TMDBDetails, error) {
	return c.details(ctx, fmt.Sprintf("%s/movie/%d?language=en-US", c.baseURL, movieID))
}

// TVDetails gets detailed information about a TV show, external ids included
func (c *TMDBClient) TVDetails(ctx context.Context, tvID int) (*models.TMDBDetails, error) {
	return c.details(ctx, fmt.Sprintf("%s/tv/%d?language=en-US&append_to_response=external_ids", c.baseURL, tvID))
}

func (c *TMDBClient) details(ctx context.Context, endpoint string) (*models.TMDBDetails, error) {
	body, err := c.makeRequest(ctx, endpoint)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get TMDB details")
	}

	var details models.TMDBDetails
	if err := json.Unmarshal(body, &details); err != nil {
		return nil, errors.Wrap(err, "failed to parse TMDB details")
	}
	return &details, nil
}

// FindByIMDBID finds a movie or TV show by IMDb ID. Movies win when both match.
func (c *TMDBClient) FindByIMDBID(ctx context.Context, imdbID string) (*models.TMDBMedia, error) {
	endpoint := fmt.Sprintf("%s/find/%s?external_source=imdb_id", c.baseURL, url.PathEscape(imdbID))

	body, err := c.makeRequest(ctx, endpoint)
	if err != nil {
		return nil, errors.Wrap(err, "failed to find by IMDb ID")
	}

	var result struct {
		MovieResults []models.TMDBMedia `json:"movie_results"`
		TVResults    []models.TMDBMedia `json:"tv_results"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, errors.Wrap(err, "failed to parse find response")
	}

	if len(result.MovieResults) > 0 {
		result.MovieResults[0].MediaType = string(models.MediaKindMovie)
		return &result.MovieResults[0], nil
	}
	if len(result.TVResults) > 0 {
		result.TVResults[0].MediaType = string(models.MediaKindTV)
		return &result.TVResults[0], nil
	}
	return nil, errors.Wrapf(ErrNotFound, "imdb id %s", imdbID)
}

// makeRequest performs an authenticated request to TMDB API
func (c *TMDBClient) makeRequest(ctx context.Context, endpoint string) ([]byte, error) {
	if !c.IsConfigured() {
		return nil, ErrNotConfigured
	}
	separator := "?"
	if strings.Contains(endpoint, "?") {
		separator = "&"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+separator+"api_key="+url.QueryEscape(c.apiKey), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req) // #nosec G107
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, resilience.ClassifyStatus(resp.StatusCode, errors.Errorf("TMDB API returned status: %s", resp.Status))
	}
	return io.ReadAll(io.LimitReader(resp.Body, 2<<20))
}
