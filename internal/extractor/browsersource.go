package extractor

import (
	"context"
	"net/http"

	"github.com/pkg/errors"
	"github.com/samber/lo"

	"github.com/alvarorichard/gocatalog/internal/models"
)

// BrowserSource loads a player page in the shared browser and keeps the media
// requests the page makes
type BrowserSource struct {
	spec Spec
}

// NewBrowserSource creates an extractor that requires a browser session
func NewBrowserSource(spec Spec) *BrowserSource {
	return &BrowserSource{spec: spec}
}

func (b *BrowserSource) Name() string       { return b.spec.Name }
func (b *BrowserSource) NeedsBrowser() bool { return true }
func (b *BrowserSource) Priority() int      { return b.spec.Priority }

func (b *BrowserSource) Extract(ctx context.Context, _ *http.Client, browser BrowserSession, req Request) models.ExtractionResult {
	if browser == nil {
		return failure(b.Name(), errors.New("browser session required"))
	}
	pageURL := b.spec.Expand(req)
	if pageURL == "" {
		return failure(b.Name(), errors.Errorf("no %s page for this title", req.Kind))
	}

	urls, err := browser.CaptureStreams(ctx, pageURL, refererHeaders(b.spec.Referer))
	if err != nil {
		return failure(b.Name(), errors.Wrap(err, "capture failed"))
	}

	referer := b.spec.Referer
	if referer == "" {
		referer = pageURL
	}
	streams := lo.Map(lo.Uniq(urls), func(u string, _ int) models.ExtractedStream {
		return newStream(b.Name(), u, "", b.spec.AudioLang, referer)
	})
	if len(streams) == 0 {
		return failure(b.Name(), errors.New("no media requests captured"))
	}
	return success(b.Name(), streams, nil)
}
