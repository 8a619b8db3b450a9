package security

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/time/rate"

	"github.com/alvarorichard/gocatalog/internal/resilience"
	"github.com/alvarorichard/gocatalog/internal/util"
)

// VirusTotalAPI is the v3 API root
const VirusTotalAPI = "https://www.virustotal.com/api/v3"

// ErrNotAnalyzed means the scanner holds no report for the URL
var ErrNotAnalyzed = errors.New("url not analyzed")

// VirusTotalClient reads existing URL reports. The public API allows 4
// requests per minute, so calls wait on a limiter.
type VirusTotalClient struct {
	client  *http.Client
	baseURL string
	apiKey  string
	limiter *rate.Limiter
}

// NewVirusTotalClient creates a scanner allowing perMinute lookups (default 4)
func NewVirusTotalClient(apiKey string, perMinute int) *VirusTotalClient {
	if perMinute <= 0 {
		perMinute = 4
	}
	return &VirusTotalClient{
		client:  util.GetFastClient(),
		baseURL: VirusTotalAPI,
		apiKey:  apiKey,
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1),
	}
}

// WithBaseURL points the client at another server
func (c *VirusTotalClient) WithBaseURL(baseURL string, client *http.Client) *VirusTotalClient {
	c.baseURL = strings.TrimRight(baseURL, "/")
	if client != nil {
		c.client = client
	}
	return c
}

func (c *VirusTotalClient) Name() string { return "virustotal" }

type vtURLReport struct {
	Data struct {
		Attributes struct {
			LastAnalysisStats struct {
				Malicious  int `json:"malicious"`
				Suspicious int `json:"suspicious"`
				Harmless   int `json:"harmless"`
				Undetected int `json:"undetected"`
			} `json:"last_analysis_stats"`
		} `json:"attributes"`
	} `json:"data"`
}

// URLID is the identifier VirusTotal uses for a URL
func URLID(rawURL string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(rawURL))
}

// Scan fetches the last analysis of rawURL
func (c *VirusTotalClient) Scan(ctx context.Context, rawURL string) (ScanResult, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return ScanResult{}, errors.Wrap(err, "virustotal rate limit")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/urls/"+URLID(rawURL), nil)
	if err != nil {
		return ScanResult{}, errors.Wrap(err, "failed to create request")
	}
	req.Header.Set("x-apikey", c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return ScanResult{}, errors.Wrap(err, "virustotal request")
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return ScanResult{}, ErrNotAnalyzed
	default:
		return ScanResult{}, resilience.ClassifyStatus(resp.StatusCode, fmt.Errorf("virustotal returned: %s", resp.Status))
	}

	var report vtURLReport
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		return ScanResult{}, errors.Wrap(err, "failed to decode virustotal response")
	}

	stats := report.Data.Attributes.LastAnalysisStats
	return ScanResult{Malicious: stats.Malicious, Suspicious: stats.Suspicious}, nil
}
