package extractor

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/pkg/errors"

	"github.com/alvarorichard/gocatalog/internal/models"
)

const (
	defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:109.0) Gecko/20100101 Firefox/121.0"
	maxBodySize      = 4 << 20
)

func decorateRequest(req *http.Request, referer string) {
	req.Header.Set("User-Agent", defaultUserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/json;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	if referer != "" {
		req.Header.Set("Referer", referer)
	}
}

// get fetches rawURL and returns the body. Non-2xx responses are errors.
func get(ctx context.Context, client *http.Client, rawURL, referer string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}
	decorateRequest(req, referer)

	resp, err := client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "failed to make request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("server returned: %s", resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, errors.Wrap(err, "failed to read response")
	}
	return body, nil
}

func refererHeaders(referer string) map[string]string {
	if referer == "" {
		return nil
	}
	return map[string]string{"Referer": referer}
}

func resolveURL(base *url.URL, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	if base != nil {
		u = base.ResolveReference(u)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	return u.String()
}

var urlResolution = regexp.MustCompile(`(?i)[^0-9](2160|1440|1080|720|480|360|240)p`)

// guessQuality reads a resolution from the URL; playlists without one are "auto"
func guessQuality(rawURL string) string {
	if m := urlResolution.FindStringSubmatch(rawURL); m != nil {
		return m[1] + "p"
	}
	if models.DetectStreamKind(rawURL) == models.StreamKindHLS {
		return "auto"
	}
	return "unknown"
}

func newStream(provider, rawURL, quality, audioLang, referer string) models.ExtractedStream {
	if quality == "" {
		quality = guessQuality(rawURL)
	}
	return models.ExtractedStream{
		Provider:  provider,
		URL:       rawURL,
		Quality:   quality,
		AudioLang: audioLang,
		Headers:   refererHeaders(referer),
		Kind:      models.DetectStreamKind(rawURL),
	}
}

var subtitleLanguages = map[string]string{
	"english":    "en",
	"spanish":    "es",
	"portuguese": "pt",
	"french":     "fr",
	"german":     "de",
	"italian":    "it",
	"japanese":   "ja",
	"korean":     "ko",
	"chinese":    "zh",
	"arabic":     "ar",
	"russian":    "ru",
	"turkish":    "tr",
	"dutch":      "nl",
	"polish":     "pl",
}

// languageFromLabel maps "English [CC]" style labels to a code
func languageFromLabel(label string) string {
	lower := strings.ToLower(label)
	for name, code := range subtitleLanguages {
		if strings.Contains(lower, name) {
			return code
		}
	}
	return strings.TrimSpace(lower)
}
