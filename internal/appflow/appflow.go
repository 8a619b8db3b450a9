// Package appflow wires configuration into the running services shared by
// the CLI and the daemon.
package appflow

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/alvarorichard/gocatalog/internal/browser"
	"github.com/alvarorichard/gocatalog/internal/config"
	"github.com/alvarorichard/gocatalog/internal/events"
	"github.com/alvarorichard/gocatalog/internal/extractor"
	"github.com/alvarorichard/gocatalog/internal/metadata"
	"github.com/alvarorichard/gocatalog/internal/playback"
	"github.com/alvarorichard/gocatalog/internal/resilience"
	"github.com/alvarorichard/gocatalog/internal/security"
	"github.com/alvarorichard/gocatalog/internal/storage"
	"github.com/alvarorichard/gocatalog/internal/util"
)

// Options selects the optional parts of the application
type Options struct {
	// Events starts an event hub and publishes playback events to it
	Events bool
	// NoBrowser keeps browser providers disabled even when configured
	NoBrowser bool
}

// App holds the constructed services. Store and Events may be nil.
type App struct {
	Config   *config.Config
	Store    *storage.Store
	Breakers *resilience.Breakers
	Registry *extractor.Registry
	Resolver *metadata.Resolver
	Security *security.Aggregator
	Playback *playback.Service
	Events   *events.Hub

	browser   *browser.Session
	cancelHub context.CancelFunc
}

// RetryPolicy converts the retry section of cfg
func RetryPolicy(cfg *config.Config) resilience.RetryPolicy {
	return resilience.RetryPolicy{
		MaxAttempts:  cfg.Retry.MaxAttempts,
		InitialDelay: cfg.Retry.InitialDelay,
		Multiplier:   cfg.Retry.Multiplier,
		MaxDelay:     cfg.Retry.MaxDelay,
	}
}

// Build constructs every service from cfg. The caller must Close the App.
func Build(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	start := time.Now()
	app := &App{
		Config: cfg,
		Breakers: resilience.NewBreakers(resilience.BreakerConfig{
			FailureThreshold: cfg.Breaker.FailureThreshold,
			SuccessThreshold: cfg.Breaker.SuccessThreshold,
			Timeout:          cfg.Breaker.Timeout,
		}),
	}
	policy := RetryPolicy(cfg)

	var store security.Store
	if storage.Available() {
		st, err := storage.Open(ctx, cfg.DB.Path, cfg.Security.ReputationTTL)
		if err != nil {
			return nil, errors.Wrap(err, "open store")
		}
		app.Store = st
		store = st
	} else {
		util.Warn("SQLite unavailable in this build, security lists and cache disabled")
	}

	secOpts := []security.AggregatorOption{
		security.WithBreakers(app.Breakers),
		security.WithRetryPolicy(policy),
		security.WithThreatFeeds(security.NewURLhausClient(cfg.Security.URLhausKey)),
	}
	if cfg.Security.VirusTotalKey != "" {
		secOpts = append(secOpts, security.WithScanners(
			security.NewVirusTotalClient(cfg.Security.VirusTotalKey, cfg.Security.VirusTotalPerMinute),
		))
	}
	app.Security = security.NewAggregator(store, secOpts...)

	extractors, err := extractor.Build(cfg.Extract.Providers)
	if err != nil {
		app.Close()
		return nil, errors.Wrap(err, "build providers")
	}
	regOpts := []extractor.Option{
		extractor.WithBreakers(app.Breakers),
		extractor.WithTimeouts(cfg.Extract.Timeout, cfg.Extract.BrowserTimeout),
	}
	if cfg.Extract.Parallel {
		regOpts = append(regOpts, extractor.WithParallel(cfg.Extract.MaxWorkers))
	}
	app.Registry = extractor.NewRegistry(regOpts...)
	app.Registry.Register(extractors...)

	app.Resolver = metadata.NewResolver(
		metadata.NewTMDBClient(cfg.TMDB.APIKey, nil),
		metadata.NewOMDbClient(cfg.OMDb.APIKey, nil),
		metadata.WithResolverBreakers(app.Breakers),
		metadata.WithResolverRetry(policy),
	)

	pbOpts := []playback.Option{playback.WithResolver(app.Resolver)}

	if cfg.Extract.Browser.Enabled && !opts.NoBrowser {
		session, err := browser.Launch(browser.Options{
			Headless: cfg.Extract.Browser.Headless,
			Install:  cfg.Extract.Browser.Install,
		})
		if err != nil {
			util.Warn("Browser session unavailable, browser providers will be skipped", "error", err)
		} else {
			app.browser = session
			pbOpts = append(pbOpts, playback.WithBrowser(session))
		}
	}

	if opts.Events {
		hubCtx, cancel := context.WithCancel(context.Background())
		app.Events = events.NewHub()
		app.cancelHub = cancel
		go app.Events.Run(hubCtx)
		pbOpts = append(pbOpts, playback.WithPublisher(app.Events))
	}

	app.Playback = playback.NewService(app.Registry, pbOpts...)

	util.Debug("Application built",
		"providers", len(extractors),
		"store", app.Store != nil,
		"browser", app.browser != nil,
		"metadata", app.Resolver.Configured(),
		"elapsed", time.Since(start),
	)
	return app, nil
}

// Close stops the event hub and releases the browser and the store
func (a *App) Close() {
	if a == nil {
		return
	}
	if a.cancelHub != nil {
		a.cancelHub()
	}
	if a.browser != nil {
		if err := a.browser.Close(); err != nil {
			util.Debug("Browser close failed", "error", err)
		}
	}
	if a.Store != nil {
		if err := a.Store.Close(); err != nil {
			util.Debug("Store close failed", "error", err)
		}
	}
}
