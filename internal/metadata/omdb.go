package metadata

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/alvarorichard/gocatalog/internal/models"
	"github.com/alvarorichard/gocatalog/internal/resilience"
	"github.com/alvarorichard/gocatalog/internal/util"
)

const (
	// OMDb API base URL
	OMDbBaseURL = "https://www.omdbapi.com"
)

// OMDbMedia represents a movie or series from OMDb
type OMDbMedia struct {
	Title    string `json:"Title"`
	Year     string `json:"Year"` // "2010" or "2008–2013" for series
	IMDBID   string `json:"imdbID"`
	Type     string `json:"Type"` // "movie", "series", "episode"
	Response string `json:"Response"`
	Error    string `json:"Error"`
}

// ReleaseYear returns the first year in the Year field, or 0
func (m *OMDbMedia) ReleaseYear() int {
	if len(m.Year) < 4 {
		return 0
	}
	y, err := strconv.Atoi(m.Year[:4])
	if err != nil {
		return 0
	}
	return y
}

// Kind maps the OMDb type onto a MediaKind
func (m *OMDbMedia) Kind() models.MediaKind {
	return models.ParseMediaKind(m.Type)
}

// OMDbClient handles interactions with OMDb API
type OMDbClient struct {
	client  *http.Client
	apiKey  string
	baseURL string
}

// NewOMDbClient creates an OMDb client. A nil client uses the shared HTTP client.
// Keys are issued at https://www.omdbapi.com/apikey.aspx
func NewOMDbClient(apiKey string, client *http.Client) *OMDbClient {
	if client == nil {
		client = util.GetSharedClient()
	}
	return &OMDbClient{client: client, apiKey: apiKey, baseURL: OMDbBaseURL}
}

// WithBaseURL points the client at another endpoint
func (c *OMDbClient) WithBaseURL(base string) *OMDbClient {
	c.baseURL = strings.TrimRight(base, "/")
	return c
}

// IsConfigured returns true if OMDb client is ready
func (c *OMDbClient) IsConfigured() bool {
	return c != nil && c.apiKey != ""
}

// ByIMDBID gets a title by its IMDb ID
func (c *OMDbClient) ByIMDBID(ctx context.Context, imdbID string) (*OMDbMedia, error) {
	params := url.Values{}
	params.Set("i", imdbID)
	return c.lookup(ctx, params)
}

// ByTitle gets the best OMDb match for a title, optionally narrowed by kind and year
func (c *OMDbClient) ByTitle(ctx context.Context, title string, kind models.MediaKind, year int) (*OMDbMedia, error) {
	params := url.Values{}
	params.Set("t", title)
	switch kind {
	case models.MediaKindTV:
		params.Set("type", "series")
	case models.MediaKindMovie:
		params.Set("type", "movie")
	}
	if year > 0 {
		params.Set("y", strconv.Itoa(year))
	}
	return c.lookup(ctx, params)
}

func (c *OMDbClient) lookup(ctx context.Context, params url.Values) (*OMDbMedia, error) {
	if !c.IsConfigured() {
		return nil, ErrNotConfigured
	}
	params.Set("apikey", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req) // #nosec G107
	if err != nil {
		return nil, errors.Wrap(err, "OMDb request failed")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, resilience.ClassifyStatus(resp.StatusCode, errors.Errorf("OMDb API returned status: %s", resp.Status))
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, errors.Wrap(err, "failed to read OMDb response")
	}

	var media OMDbMedia
	if err := json.Unmarshal(body, &media); err != nil {
		return nil, errors.Wrap(err, "failed to parse OMDb response")
	}
	if media.Response == "False" {
		if strings.Contains(strings.ToLower(media.Error), "not found") {
			return nil, errors.Wrap(ErrNotFound, media.Error)
		}
		return nil, errors.Errorf("OMDb error: %s", media.Error)
	}
	return &media, nil
}
