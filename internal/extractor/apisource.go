package extractor

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/pkg/errors"

	"github.com/alvarorichard/gocatalog/internal/models"
)

// sourcePayload is the JSON shape most embed resolvers answer with
type sourcePayload struct {
	File    string `json:"file"`
	Sources []struct {
		File    string `json:"file"`
		URL     string `json:"url"`
		Type    string `json:"type"`
		Quality string `json:"quality"`
		Label   string `json:"label"`
		Lang    string `json:"lang"`
	} `json:"sources"`
	Tracks []struct {
		File    string `json:"file"`
		Label   string `json:"label"`
		Kind    string `json:"kind"`
		Default bool   `json:"default"`
	} `json:"tracks"`
}

func (p sourcePayload) streams(provider, audioLang, referer string) []models.ExtractedStream {
	var out []models.ExtractedStream
	if p.File != "" {
		out = append(out, newStream(provider, p.File, "", audioLang, referer))
	}
	for _, s := range p.Sources {
		file := s.File
		if file == "" {
			file = s.URL
		}
		if file == "" {
			continue
		}
		quality := s.Quality
		if quality == "" {
			quality = s.Label
		}
		lang := audioLang
		if s.Lang != "" {
			lang = s.Lang
		}
		st := newStream(provider, file, quality, lang, referer)
		if strings.EqualFold(s.Type, "hls") {
			st.Kind = models.StreamKindHLS
		}
		out = append(out, st)
	}
	return out
}

func (p sourcePayload) subtitles() []models.SubtitleTrack {
	var out []models.SubtitleTrack
	for _, t := range p.Tracks {
		if t.File == "" || (t.Kind != "captions" && t.Kind != "subtitles") {
			continue
		}
		out = append(out, models.SubtitleTrack{
			Lang:    languageFromLabel(t.Label),
			Label:   t.Label,
			URL:     t.File,
			Default: t.Default,
		})
	}
	return out
}

// APISource asks a JSON endpoint for the sources of a title
type APISource struct {
	spec Spec
}

// NewAPISource creates an extractor for a JSON source endpoint
func NewAPISource(spec Spec) *APISource {
	return &APISource{spec: spec}
}

func (a *APISource) Name() string       { return a.spec.Name }
func (a *APISource) NeedsBrowser() bool { return false }
func (a *APISource) Priority() int      { return a.spec.Priority }

func (a *APISource) Extract(ctx context.Context, client *http.Client, _ BrowserSession, req Request) models.ExtractionResult {
	endpoint := a.spec.Expand(req)
	if endpoint == "" {
		return failure(a.Name(), errors.Errorf("no %s endpoint for this title", req.Kind))
	}

	body, err := get(ctx, client, endpoint, a.spec.Referer)
	if err != nil {
		return failure(a.Name(), err)
	}

	var payload sourcePayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return failure(a.Name(), errors.Wrap(err, "failed to decode response"))
	}

	streams := payload.streams(a.Name(), a.spec.AudioLang, a.spec.Referer)
	if len(streams) == 0 {
		return failure(a.Name(), errors.New("no video URL found"))
	}
	return success(a.Name(), streams, payload.subtitles())
}
