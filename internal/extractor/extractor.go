// Package extractor runs provider-specific stream extractors for a title and
// ranks the streams they produce.
package extractor

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/alvarorichard/gocatalog/internal/models"
)

const (
	// DefaultTimeout bounds one plain HTTP extractor invocation
	DefaultTimeout = 8 * time.Second
	// DefaultBrowserTimeout bounds one extractor that drives a browser session
	DefaultBrowserTimeout = 20 * time.Second
)

// Request identifies what to extract streams for
type Request struct {
	TMDBID  int
	IMDBID  string
	Kind    models.MediaKind
	Season  int
	Episode int
	// Title and Year are filled by metadata resolution; search based providers need them
	Title string
	Year  int
}

// IsEpisode reports whether the request targets a single episode of a series
func (r Request) IsEpisode() bool {
	return r.Kind == models.MediaKindTV && r.Season > 0 && r.Episode > 0
}

func (r Request) String() string {
	id := r.IMDBID
	if r.TMDBID > 0 {
		id = "tmdb:" + strconv.Itoa(r.TMDBID)
	}
	if r.IsEpisode() {
		return fmt.Sprintf("%s %s S%02dE%02d", r.Kind, id, r.Season, r.Episode)
	}
	return fmt.Sprintf("%s %s", r.Kind, id)
}

// BrowserSession is a shared headless browser that can load a page and report
// the media URLs it requested.
type BrowserSession interface {
	CaptureStreams(ctx context.Context, pageURL string, headers map[string]string) ([]string, error)
}

// Extractor is one stream provider. Extract never fails: errors are reported
// in the returned result with an empty stream list.
type Extractor interface {
	Name() string
	NeedsBrowser() bool
	// Priority orders execution and breaks ranking ties; higher runs first
	Priority() int
	Extract(ctx context.Context, client *http.Client, browser BrowserSession, req Request) models.ExtractionResult
}

// Spec describes one configured provider
type Spec struct {
	Name      string `mapstructure:"name"`
	Type      string `mapstructure:"type"`
	Priority  int    `mapstructure:"priority"`
	MovieURL  string `mapstructure:"movie_url"`
	TVURL     string `mapstructure:"tv_url"`
	Referer   string `mapstructure:"referer"`
	AudioLang string `mapstructure:"audio_lang"`
	Enabled   *bool  `mapstructure:"enabled"`

	// Search based providers (flixhq) use a site root, a resolver and a server name
	BaseURL     string `mapstructure:"base_url"`
	ResolverURL string `mapstructure:"resolver_url"`
	Server      string `mapstructure:"server"`
}

// IsEnabled treats a missing flag as enabled
func (s Spec) IsEnabled() bool {
	return s.Enabled == nil || *s.Enabled
}

// Expand fills {tmdb}, {imdb}, {season} and {episode} in the URL template that
// matches the request kind. It returns "" when the provider has no template
// for that kind or the template needs an id the request lacks.
func (s Spec) Expand(req Request) string {
	tmpl := s.MovieURL
	if req.Kind == models.MediaKindTV {
		tmpl = s.TVURL
	}
	if tmpl == "" {
		return ""
	}
	if strings.Contains(tmpl, "{tmdb}") && req.TMDBID <= 0 {
		return ""
	}
	if strings.Contains(tmpl, "{imdb}") && req.IMDBID == "" {
		return ""
	}
	return strings.NewReplacer(
		"{tmdb}", strconv.Itoa(req.TMDBID),
		"{imdb}", req.IMDBID,
		"{season}", strconv.Itoa(req.Season),
		"{episode}", strconv.Itoa(req.Episode),
	).Replace(tmpl)
}

func failure(provider string, err error) models.ExtractionResult {
	return models.ExtractionResult{
		Provider: provider,
		Streams:  []models.ExtractedStream{},
		Error:    err.Error(),
	}
}

func success(provider string, streams []models.ExtractedStream, subs []models.SubtitleTrack) models.ExtractionResult {
	if streams == nil {
		streams = []models.ExtractedStream{}
	}
	return models.ExtractionResult{
		Provider:  provider,
		Streams:   streams,
		Subtitles: subs,
	}
}
