package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alvarorichard/gocatalog/internal/appflow"
	"github.com/alvarorichard/gocatalog/internal/config"
	"github.com/alvarorichard/gocatalog/internal/server"
	"github.com/alvarorichard/gocatalog/internal/util"
	"github.com/alvarorichard/gocatalog/internal/version"
)

const purgeInterval = time.Hour

func main() {
	versionFlag := flag.Bool("version", false, "show version information")
	debugFlag := flag.Bool("debug", false, "enable debug mode")
	configFlag := flag.String("config", "", "configuration file")
	addrFlag := flag.String("addr", "", "listen address, overrides server.addr")
	flag.Parse()

	if *versionFlag || version.HasVersionArg() {
		version.ShowVersion("gocatalogd")
		return
	}

	cfg, err := config.Load(*configFlag)
	if err != nil {
		fmt.Fprintln(os.Stderr, util.ErrorHandler(err))
		os.Exit(1)
	}
	util.SetDebugMode(*debugFlag || cfg.Debug)
	util.InitLoggerWithFile(util.LogFileOptions{
		Path:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := serve(ctx, cfg, *addrFlag); err != nil {
		util.Error("Daemon stopped", "error", err)
		stop()
		os.Exit(1)
	}
}

func serve(ctx context.Context, cfg *config.Config, addr string) error {
	app, err := appflow.Build(ctx, cfg, appflow.Options{Events: true})
	if err != nil {
		return err
	}
	defer app.Close()

	if app.Store != nil {
		go purgeLoop(ctx, app)
	}

	srv := server.New(server.Deps{
		Sources:  app.Playback,
		Security: app.Security,
		Breakers: app.Breakers,
		Events:   app.Events,
		Lang:     cfg.Extract.TargetLang,
	}, server.Options{
		RatePerMinute: cfg.Server.RatePerMinute,
		Burst:         cfg.Server.Burst,
		SourcesTTL:    cfg.Server.SourcesTTL,
	})
	defer srv.Close()

	if addr == "" {
		addr = cfg.Server.Addr
	}
	util.Info("Starting gocatalogd", "version", version.Version, "providers", len(app.Registry.Extractors()))
	return srv.Run(ctx, addr)
}

// purgeLoop drops expired reputation rows so the cache table stays small
func purgeLoop(ctx context.Context, app *appflow.App) {
	ticker := time.NewTicker(purgeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := app.Store.PurgeExpiredReputation(ctx)
			if err != nil {
				util.Warn("Reputation purge failed", "error", err)
				continue
			}
			if n > 0 {
				util.Debug("Purged expired reputation rows", "count", n)
			}
		}
	}
}
