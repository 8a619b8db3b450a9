package security

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/pkg/errors"

	"github.com/alvarorichard/gocatalog/internal/resilience"
	"github.com/alvarorichard/gocatalog/internal/util"
)

// URLhausAPI is the public abuse.ch URL lookup endpoint
const URLhausAPI = "https://urlhaus-api.abuse.ch/v1/url/"

// URLhausClient checks URLs against the URLhaus malware URL feed
type URLhausClient struct {
	client   *http.Client
	endpoint string
	authKey  string
}

// NewURLhausClient creates a URLhaus feed. authKey may be empty for anonymous lookups.
func NewURLhausClient(authKey string) *URLhausClient {
	return &URLhausClient{
		client:   util.GetFastClient(),
		endpoint: URLhausAPI,
		authKey:  authKey,
	}
}

// WithEndpoint points the client at another server
func (c *URLhausClient) WithEndpoint(endpoint string, client *http.Client) *URLhausClient {
	c.endpoint = endpoint
	if client != nil {
		c.client = client
	}
	return c
}

func (c *URLhausClient) Name() string { return "urlhaus" }

type urlhausResponse struct {
	QueryStatus string   `json:"query_status"`
	URLStatus   string   `json:"url_status"`
	Threat      string   `json:"threat"`
	Tags        []string `json:"tags"`
}

// Check reports a URL as blacklisted when URLhaus knows it
func (c *URLhausClient) Check(ctx context.Context, rawURL string) (FeedVerdict, error) {
	form := url.Values{"url": {rawURL}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return FeedVerdict{}, errors.Wrap(err, "failed to create request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if c.authKey != "" {
		req.Header.Set("Auth-Key", c.authKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return FeedVerdict{}, errors.Wrap(err, "urlhaus request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return FeedVerdict{}, resilience.ClassifyStatus(resp.StatusCode, fmt.Errorf("urlhaus returned: %s", resp.Status))
	}

	var body urlhausResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return FeedVerdict{}, errors.Wrap(err, "failed to decode urlhaus response")
	}

	switch body.QueryStatus {
	case "ok":
		label := body.Threat
		if label == "" && len(body.Tags) > 0 {
			label = strings.Join(body.Tags, ",")
		}
		if label == "" {
			label = "malware_url"
		}
		return FeedVerdict{Blacklisted: true, ThreatLabel: label}, nil
	case "no_results":
		return FeedVerdict{}, nil
	default:
		return FeedVerdict{}, fmt.Errorf("urlhaus query status %q", body.QueryStatus)
	}
}
