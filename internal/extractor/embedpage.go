package extractor

import (
	"bytes"
	"context"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/pkg/errors"
	"github.com/samber/lo"

	"github.com/alvarorichard/gocatalog/internal/models"
)

var inlineMediaURL = regexp.MustCompile(`https?://[^\s"'<>\\]+?\.(?:m3u8|mp4|mkv|webm)(?:\?[^\s"'<>\\]*)?`)

// EmbedPage scrapes an HTML embed page for video elements and playlist URLs
type EmbedPage struct {
	spec Spec
}

// NewEmbedPage creates an extractor for an HTML embed page
func NewEmbedPage(spec Spec) *EmbedPage {
	return &EmbedPage{spec: spec}
}

func (e *EmbedPage) Name() string       { return e.spec.Name }
func (e *EmbedPage) NeedsBrowser() bool { return false }
func (e *EmbedPage) Priority() int      { return e.spec.Priority }

func (e *EmbedPage) Extract(ctx context.Context, client *http.Client, _ BrowserSession, req Request) models.ExtractionResult {
	pageURL := e.spec.Expand(req)
	if pageURL == "" {
		return failure(e.Name(), errors.Errorf("no %s page for this title", req.Kind))
	}

	body, err := get(ctx, client, pageURL, e.spec.Referer)
	if err != nil {
		return failure(e.Name(), err)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return failure(e.Name(), errors.Wrap(err, "failed to parse HTML"))
	}

	base, _ := url.Parse(pageURL)
	referer := e.spec.Referer
	if referer == "" {
		referer = pageURL
	}

	streams, subs := scrapeEmbed(doc, base, e.Name(), e.spec.AudioLang, referer)
	if len(streams) == 0 {
		return failure(e.Name(), errors.New("no video URL found"))
	}
	return success(e.Name(), streams, subs)
}

type mediaRef struct {
	url     string
	quality string
}

// scrapeEmbed collects media from <video>/<source> elements, data-video-src
// attributes and URLs embedded in inline scripts, in document order
func scrapeEmbed(doc *goquery.Document, base *url.URL, provider, audioLang, referer string) ([]models.ExtractedStream, []models.SubtitleTrack) {
	var refs []mediaRef

	doc.Find("video[src], video source[src], source[type*='mpegurl'], source[type*='mp4']").Each(func(_ int, s *goquery.Selection) {
		src, _ := s.Attr("src")
		quality := lo.CoalesceOrEmpty(s.AttrOr("label", ""), s.AttrOr("size", ""), s.AttrOr("data-quality", ""))
		if quality != "" && isDigits(quality) {
			quality += "p"
		}
		refs = append(refs, mediaRef{url: resolveURL(base, src), quality: quality})
	})

	doc.Find("[data-video-src]").Each(func(_ int, s *goquery.Selection) {
		src, _ := s.Attr("data-video-src")
		refs = append(refs, mediaRef{url: resolveURL(base, src), quality: s.AttrOr("data-quality", "")})
	})

	doc.Find("script").Each(func(_ int, s *goquery.Selection) {
		script := strings.ReplaceAll(s.Text(), `\/`, `/`)
		for _, m := range inlineMediaURL.FindAllString(script, -1) {
			refs = append(refs, mediaRef{url: m})
		}
	})

	refs = lo.Filter(refs, func(r mediaRef, _ int) bool { return r.url != "" })
	refs = lo.UniqBy(refs, func(r mediaRef) string { return r.url })

	streams := lo.Map(refs, func(r mediaRef, _ int) models.ExtractedStream {
		return newStream(provider, r.url, r.quality, audioLang, referer)
	})

	var subs []models.SubtitleTrack
	doc.Find("track[src]").Each(func(_ int, s *goquery.Selection) {
		kind := s.AttrOr("kind", "subtitles")
		if kind != "subtitles" && kind != "captions" {
			return
		}
		src := resolveURL(base, s.AttrOr("src", ""))
		if src == "" {
			return
		}
		label := s.AttrOr("label", "")
		lang := s.AttrOr("srclang", "")
		if lang == "" {
			lang = languageFromLabel(label)
		}
		_, isDefault := s.Attr("default")
		subs = append(subs, models.SubtitleTrack{Lang: lang, Label: label, URL: src, Default: isDefault})
	})

	return streams, subs
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
