// Package playback composes the final sources payload for a title: metadata
// resolution, provider fan-out, ranking and subtitle selection.
package playback

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/samber/lo"

	"github.com/alvarorichard/gocatalog/internal/extractor"
	"github.com/alvarorichard/gocatalog/internal/models"
	"github.com/alvarorichard/gocatalog/internal/util"
)

// EventSourcesResolved is published after every Sources call
const EventSourcesResolved = "sources.resolved"

// ErrInvalidRequest is returned when a request cannot identify a title
var ErrInvalidRequest = errors.New("invalid request")

// Resolver fills missing title metadata
type Resolver interface {
	Resolve(ctx context.Context, req extractor.Request) (extractor.Request, error)
}

// SubtitleSearcher finds subtitle tracks outside the stream providers
type SubtitleSearcher interface {
	SearchSubtitles(ctx context.Context, req extractor.Request, lang string) ([]models.SubtitleTrack, error)
}

// Publisher receives service events
type Publisher interface {
	Publish(eventType string, data any)
}

// ProviderStatus summarises one provider's outcome
type ProviderStatus struct {
	Name    string `json:"name"`
	OK      bool   `json:"ok"`
	Streams int    `json:"streams"`
	Skipped bool   `json:"skipped,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Sources is the playback payload for one request
type Sources struct {
	Title     models.Title             `json:"title"`
	Season    int                      `json:"season,omitempty"`
	Episode   int                      `json:"episode,omitempty"`
	Language  string                   `json:"language"`
	Streams   []models.ExtractedStream `json:"streams"`
	Subtitles []models.SubtitleTrack   `json:"subtitles"`
	Providers []ProviderStatus         `json:"providers"`
	Elapsed   time.Duration            `json:"elapsed"`
}

// Best returns the top ranked stream
func (s *Sources) Best() (models.ExtractedStream, bool) {
	if s == nil || len(s.Streams) == 0 {
		return models.ExtractedStream{}, false
	}
	return s.Streams[0], true
}

// Service wires the registry to its collaborators
type Service struct {
	registry  *extractor.Registry
	client    *http.Client
	browser   extractor.BrowserSession
	resolver  Resolver
	subtitles SubtitleSearcher
	publisher Publisher
}

// Option configures a Service
type Option func(*Service)

// WithBrowser hands browser-driven providers a session. A nil session leaves them skipped.
func WithBrowser(b extractor.BrowserSession) Option {
	return func(s *Service) { s.browser = b }
}

// WithResolver enables metadata resolution before extraction
func WithResolver(r Resolver) Option {
	return func(s *Service) { s.resolver = r }
}

// WithSubtitleSearcher adds an external subtitle source
func WithSubtitleSearcher(ss SubtitleSearcher) Option {
	return func(s *Service) { s.subtitles = ss }
}

// WithPublisher sends a sources.resolved event for every call
func WithPublisher(p Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

// WithHTTPClient overrides the shared transport handed to providers
func WithHTTPClient(c *http.Client) Option {
	return func(s *Service) { s.client = c }
}

// NewService creates a playback service over registry
func NewService(registry *extractor.Registry, opts ...Option) *Service {
	s := &Service{registry: registry, client: util.GetSharedClient()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Validate checks that req identifies a title and, for series, an episode
func Validate(req extractor.Request) error {
	if req.TMDBID <= 0 && strings.TrimSpace(req.IMDBID) == "" {
		return errors.Wrap(ErrInvalidRequest, "tmdb or imdb id required")
	}
	if req.Kind == models.MediaKindTV && (req.Season <= 0 || req.Episode <= 0) {
		return errors.Wrap(ErrInvalidRequest, "season and episode required for tv")
	}
	return nil
}

// Sources resolves, extracts and ranks streams for req. Provider failures are
// reported per provider and never fail the call.
func (s *Service) Sources(ctx context.Context, req extractor.Request, lang string) (*Sources, error) {
	if req.Kind == "" {
		req.Kind = models.MediaKindMovie
	}
	if err := Validate(req); err != nil {
		return nil, err
	}
	start := time.Now()

	if s.resolver != nil {
		resolved, err := s.resolver.Resolve(ctx, req)
		if err != nil {
			util.Debug("Metadata resolution incomplete", "request", req.String(), "error", err)
		}
		req = resolved
	}

	results := s.registry.ExtractAll(ctx, s.client, s.browser, req)
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, "extraction aborted")
	}

	streams := s.registry.SortStreams(extractor.Flatten(results), lang)
	subs := extractor.Subtitles(results)
	if s.subtitles != nil {
		extra, err := s.subtitles.SearchSubtitles(ctx, req, lang)
		if err != nil {
			util.Warn("Subtitle search failed", "request", req.String(), "error", err)
		}
		subs = MergeSubtitles(subs, extra)
	}

	out := &Sources{
		Title: models.Title{
			TMDBID: req.TMDBID,
			IMDBID: req.IMDBID,
			Kind:   req.Kind,
			Name:   req.Title,
			Year:   req.Year,
		},
		Language:  lang,
		Streams:   streams,
		Subtitles: SelectDefaultSubtitle(subs, lang),
		Providers: lo.Map(results, func(r models.ExtractionResult, _ int) ProviderStatus {
			return ProviderStatus{Name: r.Provider, OK: r.OK(), Streams: len(r.Streams), Skipped: r.Skipped, Error: r.Error}
		}),
		Elapsed: time.Since(start),
	}
	if req.IsEpisode() {
		out.Season, out.Episode = req.Season, req.Episode
	}

	util.Info("Sources resolved",
		"request", req.String(),
		"streams", len(out.Streams),
		"subtitles", len(out.Subtitles),
		"providers_ok", lo.CountBy(out.Providers, func(p ProviderStatus) bool { return p.OK }),
		"elapsed", out.Elapsed.Round(time.Millisecond),
	)

	if s.publisher != nil {
		s.publisher.Publish(EventSourcesResolved, map[string]any{
			"title":     out.Title,
			"season":    out.Season,
			"episode":   out.Episode,
			"streams":   len(out.Streams),
			"providers": out.Providers,
		})
	}
	return out, nil
}

// MergeSubtitles appends extra tracks whose URL is not already present
func MergeSubtitles(base, extra []models.SubtitleTrack) []models.SubtitleTrack {
	merged := append(append([]models.SubtitleTrack{}, base...), extra...)
	return lo.UniqBy(lo.Filter(merged, func(t models.SubtitleTrack, _ int) bool {
		return t.URL != ""
	}), func(t models.SubtitleTrack) string { return t.URL })
}

// SelectDefaultSubtitle returns a copy of tracks with exactly one default set
// when tracks is non-empty: the first track in lang, else the first track
// that was already flagged, else the first track.
func SelectDefaultSubtitle(tracks []models.SubtitleTrack, lang string) []models.SubtitleTrack {
	out := make([]models.SubtitleTrack, len(tracks))
	copy(out, tracks)
	if len(out) == 0 {
		return out
	}

	pick := -1
	if lang != "" {
		_, pick, _ = lo.FindIndexOf(out, func(t models.SubtitleTrack) bool {
			return extractor.LangMatches(t.Lang, lang)
		})
	}
	if pick < 0 {
		_, pick, _ = lo.FindIndexOf(out, func(t models.SubtitleTrack) bool { return t.Default })
	}
	if pick < 0 {
		pick = 0
	}
	for i := range out {
		out[i].Default = i == pick
	}
	return out
}
