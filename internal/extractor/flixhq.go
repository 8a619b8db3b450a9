package extractor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/pkg/errors"
	"github.com/samber/lo"

	"github.com/alvarorichard/gocatalog/internal/models"
	"github.com/alvarorichard/gocatalog/internal/resilience"
	"github.com/alvarorichard/gocatalog/internal/titlematch"
	"github.com/alvarorichard/gocatalog/internal/util"
)

const (
	FlixHQBase     = "https://flixhq.to"
	FlixHQAPI      = "https://dec.eatmynerds.live"
	flixHQServer   = "Vidcloud"
	flixHQAudioTag = "en"
)

var (
	trailingID   = regexp.MustCompile(`-(\d+)$`)
	dottedID     = regexp.MustCompile(`\.(\d+)$`)
	seasonNumber = regexp.MustCompile(`(?i)season\s*(\d+)`)
	episodeLabel = regexp.MustCompile(`(?i)(?:episode|eps)\s*(\d+)`)
)

// ErrChallenge is returned when the site answers with a bot challenge page
var ErrChallenge = errors.New("FlixHQ returned a challenge page")

// FlixHQ searches the site by title, validates the hit with fuzzy matching and
// walks server -> embed -> resolver to reach the sources
type FlixHQ struct {
	spec    Spec
	baseURL string
	apiURL  string
	server  string
	retry   resilience.RetryPolicy
}

type flixMedia struct {
	ID    string
	Title string
	Kind  models.MediaKind
	Year  string
	URL   string
}

type flixSeason struct {
	ID     string
	Number int
	Title  string
}

type flixEpisode struct {
	DataID string
	Title  string
	Number int
}

// NewFlixHQ creates the FlixHQ extractor. Empty spec URLs use the public site.
func NewFlixHQ(spec Spec) *FlixHQ {
	return &FlixHQ{
		spec:    spec,
		baseURL: strings.TrimRight(lo.CoalesceOrEmpty(spec.BaseURL, FlixHQBase), "/"),
		apiURL:  strings.TrimRight(lo.CoalesceOrEmpty(spec.ResolverURL, FlixHQAPI), "/"),
		server:  lo.CoalesceOrEmpty(spec.Server, flixHQServer),
		retry: resilience.RetryPolicy{
			MaxAttempts:  3,
			InitialDelay: 300 * time.Millisecond,
			Multiplier:   2,
			MaxDelay:     2 * time.Second,
		},
	}
}

func (f *FlixHQ) Name() string       { return f.spec.Name }
func (f *FlixHQ) NeedsBrowser() bool { return false }
func (f *FlixHQ) Priority() int      { return f.spec.Priority }

func (f *FlixHQ) Extract(ctx context.Context, client *http.Client, _ BrowserSession, req Request) models.ExtractionResult {
	if strings.TrimSpace(req.Title) == "" {
		return failure(f.Name(), errors.New("title required for search"))
	}

	results, err := resilience.Do(ctx, f.retry, f.Name()+" search", func() ([]flixMedia, error) {
		return f.search(ctx, client, req.Title)
	})
	if err != nil {
		return failure(f.Name(), errors.Wrap(err, "search failed"))
	}

	media, ok := f.pick(results, req)
	if !ok {
		return failure(f.Name(), errors.Errorf("no match for %q", req.Title))
	}
	util.Debug("FlixHQ match", "query", req.Title, "title", media.Title, "id", media.ID)

	var serverID string
	if req.Kind == models.MediaKindTV {
		serverID, err = f.episodeServer(ctx, client, media.ID, req.Season, req.Episode)
	} else {
		serverID, err = f.movieServer(ctx, client, media.ID)
	}
	if err != nil {
		return failure(f.Name(), errors.Wrap(err, "failed to get server ID"))
	}

	embedLink, err := f.embedLink(ctx, client, serverID)
	if err != nil {
		return failure(f.Name(), errors.Wrap(err, "failed to get embed link"))
	}

	payload, err := f.resolve(ctx, client, embedLink)
	if err != nil {
		return failure(f.Name(), errors.Wrap(err, "failed to extract stream info"))
	}

	audio := lo.CoalesceOrEmpty(f.spec.AudioLang, flixHQAudioTag)
	streams := payload.streams(f.Name(), audio, f.baseURL+"/")
	if len(streams) == 0 {
		return failure(f.Name(), errors.New("no video URL found"))
	}
	return success(f.Name(), streams, payload.subtitles())
}

// pick keeps results of the requested kind and returns the best fuzzy title
// match, preferring hits from the requested year
func (f *FlixHQ) pick(results []flixMedia, req Request) (flixMedia, bool) {
	kind := req.Kind
	if kind == "" {
		kind = models.MediaKindMovie
	}
	candidates := lo.Filter(results, func(m flixMedia, _ int) bool { return m.Kind == kind })

	if req.Year > 0 {
		year := strconv.Itoa(req.Year)
		sameYear := lo.Filter(candidates, func(m flixMedia, _ int) bool { return strings.Contains(m.Year, year) })
		if m, ok := bestTitle(sameYear, req.Title); ok {
			return m, true
		}
	}
	return bestTitle(candidates, req.Title)
}

func bestTitle(candidates []flixMedia, title string) (flixMedia, bool) {
	names := lo.Map(candidates, func(m flixMedia, _ int) string { return m.Title })
	idx, _ := titlematch.BestMatch(names, title, titlematch.DefaultThreshold)
	if idx < 0 {
		return flixMedia{}, false
	}
	return candidates[idx], true
}

func (f *FlixHQ) fetchDocument(ctx context.Context, client *http.Client, pageURL string) (*goquery.Document, error) {
	body, err := get(ctx, client, pageURL, f.baseURL+"/")
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse HTML")
	}
	return doc, nil
}

func (f *FlixHQ) search(ctx context.Context, client *http.Client, query string) ([]flixMedia, error) {
	normalizedQuery := strings.ReplaceAll(strings.TrimSpace(query), " ", "-")
	searchURL := fmt.Sprintf("%s/search/%s", f.baseURL, url.PathEscape(normalizedQuery))

	util.Debug("FlixHQ search", "query", query, "url", searchURL)

	doc, err := f.fetchDocument(ctx, client, searchURL)
	if err != nil {
		return nil, err
	}
	if isChallengePage(doc) {
		return nil, ErrChallenge
	}

	var media []flixMedia
	doc.Find(".flw-item").Each(func(_ int, s *goquery.Selection) {
		if m, ok := f.parseMediaItem(s); ok {
			media = append(media, m)
		}
	})
	return media, nil
}

func (f *FlixHQ) parseMediaItem(s *goquery.Selection) (flixMedia, bool) {
	link := s.Find(".film-name a, .film-detail a").First()
	href, exists := link.Attr("href")
	if !exists {
		return flixMedia{}, false
	}

	title := strings.TrimSpace(link.Text())
	if title == "" {
		title, _ = link.Attr("title")
	}
	if title == "" {
		return flixMedia{}, false
	}

	var kind models.MediaKind
	switch {
	case strings.Contains(href, "/tv/"):
		kind = models.MediaKindTV
	case strings.Contains(href, "/movie/"):
		kind = models.MediaKindMovie
	default:
		return flixMedia{}, false
	}

	m := trailingID.FindStringSubmatch(href)
	if len(m) < 2 {
		return flixMedia{}, false
	}

	year := strings.TrimSpace(s.Find(".fdi-item").First().Text())

	return flixMedia{
		ID:    m[1],
		Title: title,
		Kind:  kind,
		Year:  year,
		URL:   resolveURL(parseBase(f.baseURL), href),
	}, true
}

func (f *FlixHQ) movieServer(ctx context.Context, client *http.Client, mediaID string) (string, error) {
	doc, err := f.fetchDocument(ctx, client, fmt.Sprintf("%s/ajax/movie/episodes/%s", f.baseURL, mediaID))
	if err != nil {
		return "", err
	}

	var fallback, chosen string
	doc.Find("a").Each(func(_ int, s *goquery.Selection) {
		m := dottedID.FindStringSubmatch(s.AttrOr("href", ""))
		if len(m) < 2 {
			return
		}
		if fallback == "" {
			fallback = m[1]
		}
		if chosen == "" && strings.EqualFold(s.AttrOr("title", ""), f.server) {
			chosen = m[1]
		}
	})

	if id := lo.CoalesceOrEmpty(chosen, fallback); id != "" {
		return id, nil
	}
	return "", errors.New("no server found for movie")
}

func (f *FlixHQ) episodeServer(ctx context.Context, client *http.Client, mediaID string, season, episode int) (string, error) {
	if season <= 0 || episode <= 0 {
		return "", errors.New("season and episode required")
	}

	seasons, err := f.seasons(ctx, client, mediaID)
	if err != nil {
		return "", err
	}
	s, ok := lo.Find(seasons, func(s flixSeason) bool { return s.Number == season })
	if !ok {
		return "", errors.Errorf("season %d not found", season)
	}

	episodes, err := f.episodes(ctx, client, s.ID)
	if err != nil {
		return "", err
	}
	ep, ok := lo.Find(episodes, func(e flixEpisode) bool { return e.Number == episode })
	if !ok {
		return "", errors.Errorf("episode %d not found in season %d", episode, season)
	}

	doc, err := f.fetchDocument(ctx, client, fmt.Sprintf("%s/ajax/v2/episode/servers/%s", f.baseURL, ep.DataID))
	if err != nil {
		return "", err
	}

	var fallback, chosen string
	doc.Find(".nav-item a").Each(func(_ int, s *goquery.Selection) {
		id := s.AttrOr("data-id", "")
		if id == "" {
			return
		}
		if fallback == "" {
			fallback = id
		}
		if chosen == "" && strings.EqualFold(s.AttrOr("title", ""), f.server) {
			chosen = id
		}
	})

	if id := lo.CoalesceOrEmpty(chosen, fallback); id != "" {
		return id, nil
	}
	return "", errors.New("no server found for episode")
}

func (f *FlixHQ) seasons(ctx context.Context, client *http.Client, mediaID string) ([]flixSeason, error) {
	doc, err := f.fetchDocument(ctx, client, fmt.Sprintf("%s/ajax/v2/tv/seasons/%s", f.baseURL, mediaID))
	if err != nil {
		return nil, err
	}

	var seasons []flixSeason
	doc.Find("a").Each(func(_ int, s *goquery.Selection) {
		id := s.AttrOr("data-id", "")
		if id == "" {
			if m := trailingID.FindStringSubmatch(s.AttrOr("href", "")); len(m) > 1 {
				id = m[1]
			}
		}
		title := strings.TrimSpace(s.Text())
		if id == "" || title == "" {
			return
		}

		number := len(seasons) + 1
		if m := seasonNumber.FindStringSubmatch(title); len(m) > 1 {
			number, _ = strconv.Atoi(m[1])
		}
		seasons = append(seasons, flixSeason{ID: id, Number: number, Title: title})
	})
	return seasons, nil
}

func (f *FlixHQ) episodes(ctx context.Context, client *http.Client, seasonID string) ([]flixEpisode, error) {
	doc, err := f.fetchDocument(ctx, client, fmt.Sprintf("%s/ajax/v2/season/episodes/%s", f.baseURL, seasonID))
	if err != nil {
		return nil, err
	}

	var episodes []flixEpisode
	doc.Find(".nav-item a").Each(func(_ int, s *goquery.Selection) {
		id := s.AttrOr("data-id", "")
		if id == "" {
			return
		}
		title := s.AttrOr("title", "")
		if title == "" {
			title = strings.TrimSpace(s.Text())
		}

		number := len(episodes) + 1
		if m := episodeLabel.FindStringSubmatch(title); len(m) > 1 {
			number, _ = strconv.Atoi(m[1])
		}
		episodes = append(episodes, flixEpisode{DataID: id, Title: title, Number: number})
	})
	return episodes, nil
}

func (f *FlixHQ) embedLink(ctx context.Context, client *http.Client, serverID string) (string, error) {
	body, err := get(ctx, client, fmt.Sprintf("%s/ajax/episode/sources/%s", f.baseURL, serverID), f.baseURL+"/")
	if err != nil {
		return "", err
	}

	var result struct {
		Link string `json:"link"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return "", errors.Wrap(err, "failed to decode response")
	}
	if result.Link == "" {
		return "", errors.New("no embed link found")
	}
	return result.Link, nil
}

func (f *FlixHQ) resolve(ctx context.Context, client *http.Client, embedLink string) (sourcePayload, error) {
	var payload sourcePayload

	body, err := get(ctx, client, fmt.Sprintf("%s/?url=%s", f.apiURL, url.QueryEscape(embedLink)), f.baseURL+"/")
	if err != nil {
		return payload, err
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return payload, errors.Wrap(err, "failed to decode response")
	}
	return payload, nil
}

func isChallengePage(doc *goquery.Document) bool {
	title := strings.ToLower(strings.TrimSpace(doc.Find("title").First().Text()))
	if strings.Contains(title, "just a moment") {
		return true
	}
	if doc.Find("#cf-wrapper").Length() > 0 || doc.Find("#challenge-form").Length() > 0 {
		return true
	}
	body := strings.ToLower(doc.Text())
	return strings.Contains(body, "cf-error")
}

func parseBase(raw string) *url.URL {
	u, err := url.Parse(raw)
	if err != nil {
		return nil
	}
	return u
}
