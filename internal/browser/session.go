// Package browser drives a headless Chromium through playwright to capture the
// media requests made by JavaScript players.
package browser

import (
	"context"
	"net/url"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/playwright-community/playwright-go"

	"github.com/alvarorichard/gocatalog/internal/util"
)

const (
	defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"
	defaultSettle    = 1500 * time.Millisecond
	defaultIdle      = 8 * time.Second
)

// Options configures the browser session
type Options struct {
	Headless bool
	// Install downloads the Chromium driver before launching
	Install   bool
	UserAgent string
	// Settle is how long to keep listening after the first media request
	Settle time.Duration
	// Idle caps the wait when the page never requests media
	Idle time.Duration
}

// Session is a running Chromium instance shared by browser extractors. Every
// capture gets its own browser context.
type Session struct {
	mu      sync.Mutex
	pw      *playwright.Playwright
	browser playwright.Browser
	opts    Options
	closed  bool
}

// Launch starts playwright and Chromium
func Launch(opts Options) (*Session, error) {
	if opts.UserAgent == "" {
		opts.UserAgent = defaultUserAgent
	}
	if opts.Settle <= 0 {
		opts.Settle = defaultSettle
	}
	if opts.Idle <= 0 {
		opts.Idle = defaultIdle
	}

	if opts.Install {
		util.Info("Installing Chromium driver")
		if err := playwright.Install(&playwright.RunOptions{Browsers: []string{"chromium"}}); err != nil {
			return nil, errors.Wrap(err, "install playwright")
		}
	}

	pw, err := playwright.Run()
	if err != nil {
		return nil, errors.Wrap(err, "start playwright")
	}

	b, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(opts.Headless),
	})
	if err != nil {
		_ = pw.Stop()
		return nil, errors.Wrap(err, "launch chromium")
	}

	util.Debug("Browser session started", "headless", opts.Headless)
	return &Session{pw: pw, browser: b, opts: opts}, nil
}

// CaptureStreams opens pageURL and returns the media URLs requested by the page,
// in request order. It returns once media has been seen and the page settled,
// when the idle limit passes, or when ctx is done.
func (s *Session) CaptureStreams(ctx context.Context, pageURL string, headers map[string]string) ([]string, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, errors.New("browser session closed")
	}
	bctx, err := s.browser.NewContext(playwright.BrowserNewContextOptions{
		UserAgent: playwright.String(s.opts.UserAgent),
	})
	s.mu.Unlock()
	if err != nil {
		return nil, errors.Wrap(err, "new browser context")
	}

	var closeOnce sync.Once
	closeContext := func() {
		closeOnce.Do(func() { _ = bctx.Close() })
	}
	defer closeContext()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			closeContext()
		case <-stop:
		}
	}()

	page, err := bctx.NewPage()
	if err != nil {
		return nil, errors.Wrap(err, "new page")
	}
	if len(headers) > 0 {
		if err := page.SetExtraHTTPHeaders(headers); err != nil {
			return nil, errors.Wrap(err, "set headers")
		}
	}

	var (
		mu    sync.Mutex
		found []string
		seen  = make(map[string]struct{})
		first = make(chan struct{})
		once  sync.Once
	)
	page.OnRequest(func(r playwright.Request) {
		u := r.URL()
		if !IsMediaURL(u) {
			return
		}
		mu.Lock()
		if _, dup := seen[u]; !dup {
			seen[u] = struct{}{}
			found = append(found, u)
		}
		mu.Unlock()
		once.Do(func() { close(first) })
	})

	gotoOpts := playwright.PageGotoOptions{WaitUntil: playwright.WaitUntilStateDomcontentloaded}
	if deadline, ok := ctx.Deadline(); ok {
		gotoOpts.Timeout = playwright.Float(float64(time.Until(deadline).Milliseconds()))
	}
	if _, err := page.Goto(pageURL, gotoOpts); err != nil {
		util.Debug("Page navigation failed", "url", pageURL, "error", err)
	}

	select {
	case <-first:
		select {
		case <-time.After(s.opts.Settle):
		case <-ctx.Done():
		}
	case <-time.After(s.opts.Idle):
	case <-ctx.Done():
	}

	mu.Lock()
	defer mu.Unlock()
	out := make([]string, len(found))
	copy(out, found)

	if len(out) == 0 && ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return out, nil
}

// Close shuts down Chromium and the playwright driver
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	var errs []error
	if err := s.browser.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := s.pw.Stop(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return errors.Wrap(errs[0], "close browser")
	}
	return nil
}

var mediaExtensions = map[string]struct{}{
	".m3u8": {},
	".mp4":  {},
	".mkv":  {},
	".webm": {},
	".mpd":  {},
}

// IsMediaURL reports whether a request URL points at a playlist or video file.
// HLS segments and subtitle files are not media for this purpose.
func IsMediaURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return false
	}
	p := strings.ToLower(u.Path)
	if _, ok := mediaExtensions[path.Ext(p)]; ok {
		return true
	}
	return strings.Contains(p, ".m3u8") || strings.Contains(p, "/playlist/")
}
