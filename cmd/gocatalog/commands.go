package main

import (
	"context"
	"flag"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh/spinner"
	"github.com/ktr0731/go-fuzzyfinder"
	"github.com/pkg/errors"

	"github.com/alvarorichard/gocatalog/internal/appflow"
	"github.com/alvarorichard/gocatalog/internal/config"
	"github.com/alvarorichard/gocatalog/internal/extractor"
	"github.com/alvarorichard/gocatalog/internal/models"
	"github.com/alvarorichard/gocatalog/internal/playback"
	"github.com/alvarorichard/gocatalog/internal/security"
	"github.com/alvarorichard/gocatalog/internal/storage"
	"github.com/alvarorichard/gocatalog/internal/titlematch"
	"github.com/alvarorichard/gocatalog/internal/util"
)

var errUsage = errors.New("invalid usage, run with -help")

func run(ctx context.Context, cfg *config.Config, args []string) error {
	cmd, rest := args[0], args[1:]
	switch cmd {
	case "match":
		return runMatch(rest)
	case "sources", "check", "whitelist", "blacklist", "audit":
	default:
		return errors.Wrapf(errUsage, "unknown command %q", cmd)
	}

	app, err := appflow.Build(ctx, cfg, appflow.Options{NoBrowser: cmd != "sources"})
	if err != nil {
		return err
	}
	defer app.Close()

	switch cmd {
	case "sources":
		return runSources(ctx, app, rest)
	case "check":
		return runCheck(ctx, app, rest)
	case "audit":
		return runAudit(ctx, app, rest)
	default:
		return runDomainList(ctx, app, cmd, rest)
	}
}

func parseRequest(args []string, defaultLang string) (extractor.Request, string, bool, error) {
	fs := flag.NewFlagSet("sources", flag.ContinueOnError)
	tmdb := fs.Int("tmdb", 0, "TMDB id")
	imdb := fs.String("imdb", "", "IMDb id")
	kind := fs.String("kind", "movie", "movie or tv")
	season := fs.Int("season", 0, "season number")
	episode := fs.Int("episode", 0, "episode number")
	title := fs.String("title", "", "title, when metadata lookup is not configured")
	year := fs.Int("year", 0, "release year")
	lang := fs.String("lang", defaultLang, "preferred audio and subtitle language")
	pick := fs.Bool("pick", false, "choose a stream interactively")
	if err := fs.Parse(args); err != nil {
		return extractor.Request{}, "", false, errors.Wrap(errUsage, err.Error())
	}

	req := extractor.Request{
		TMDBID:  *tmdb,
		IMDBID:  strings.TrimSpace(*imdb),
		Kind:    models.ParseMediaKind(*kind),
		Season:  *season,
		Episode: *episode,
		Title:   strings.TrimSpace(*title),
		Year:    *year,
	}
	return req, *lang, *pick, playback.Validate(req)
}

func runSources(ctx context.Context, app *appflow.App, args []string) error {
	req, lang, pick, err := parseRequest(args, app.Config.Extract.TargetLang)
	if err != nil {
		return err
	}

	var out *playback.Sources
	var srcErr error
	_ = spinner.New().
		Title(fmt.Sprintf("Extracting streams for %s...", req.String())).
		Type(spinner.Dots).
		Context(ctx).
		Action(func() {
			out, srcErr = app.Playback.Sources(ctx, req, lang)
		}).
		Run()
	if srcErr != nil {
		return srcErr
	}
	if out == nil {
		return errors.New("extraction cancelled")
	}

	fmt.Print(renderSources(out))
	if len(out.Streams) == 0 {
		return errors.New("no playable streams found")
	}
	if !pick {
		return nil
	}

	chosen, err := pickStream(out.Streams)
	if err != nil {
		return err
	}
	fmt.Println(chosen.URL)
	return nil
}

func pickStream(streams []models.ExtractedStream) (models.ExtractedStream, error) {
	idx, err := fuzzyfinder.Find(
		streams,
		func(i int) string {
			return fmt.Sprintf("%s  %s  %s", streams[i].Provider, streams[i].Quality, streams[i].AudioLang)
		},
		fuzzyfinder.WithPromptString("Select stream: "),
		fuzzyfinder.WithPreviewWindow(func(i, w, h int) string {
			if i < 0 || i >= len(streams) {
				return ""
			}
			s := streams[i]
			preview := fmt.Sprintf("URL: %s\nKind: %s\nQuality: %s\nAudio: %s", s.URL, s.Kind, s.Quality, s.AudioLang)
			for k, v := range s.Headers {
				preview += fmt.Sprintf("\n%s: %s", k, v)
			}
			return preview
		}),
	)
	if err != nil {
		return models.ExtractedStream{}, errors.Wrap(err, "stream selection cancelled")
	}
	return streams[idx], nil
}

func runCheck(ctx context.Context, app *appflow.App, args []string) error {
	if len(args) != 1 {
		return errors.Wrap(errUsage, "check takes exactly one URL")
	}
	var res models.SecurityCheckResult
	_ = spinner.New().
		Title("Checking " + args[0] + "...").
		Type(spinner.Dots).
		Context(ctx).
		Action(func() {
			res = app.Security.CheckDownload(ctx, security.DownloadRequest{URL: args[0], Actor: "cli"})
		}).
		Run()
	fmt.Print(renderVerdict(res))
	if !res.IsAllowed {
		return errors.Errorf("download blocked: %s", res.Reason)
	}
	return nil
}

func runMatch(args []string) error {
	fs := flag.NewFlagSet("match", flag.ContinueOnError)
	threshold := fs.Float64("threshold", titlematch.DefaultThreshold, "match threshold")
	if err := fs.Parse(args); err != nil {
		return errors.Wrap(errUsage, err.Error())
	}
	if fs.NArg() != 2 {
		return errors.Wrap(errUsage, "match takes a release name and a title")
	}
	fmt.Print(renderMatch(fs.Arg(0), fs.Arg(1), *threshold))
	return nil
}

func requireStore(app *appflow.App) (*storage.Store, error) {
	if app.Store == nil {
		return nil, storage.ErrCgoDisabled
	}
	return app.Store, nil
}

func runDomainList(ctx context.Context, app *appflow.App, list string, args []string) error {
	store, err := requireStore(app)
	if err != nil {
		return err
	}
	if len(args) == 0 || args[0] == "list" {
		var entries []models.DomainListEntry
		if list == "whitelist" {
			entries, err = store.ListWhitelist(ctx)
		} else {
			entries, err = store.ListBlacklist(ctx)
		}
		if err != nil {
			return err
		}
		fmt.Print(renderDomainList(list, entries))
		return nil
	}
	if len(args) < 2 {
		return errors.Wrapf(errUsage, "%s %s needs a domain", list, args[0])
	}

	action, domain, note := args[0], args[1], strings.Join(args[2:], " ")
	switch action {
	case "add":
		entry := models.DomainListEntry{Domain: domain, AddedBy: "cli"}
		if list == "whitelist" {
			entry.Reason = note
			err = store.AddWhitelist(ctx, entry)
		} else {
			entry.ThreatType = note
			err = store.AddBlacklist(ctx, entry)
		}
		if err != nil {
			return err
		}
		fmt.Println(util.SuccessStyle.Render(fmt.Sprintf("✓ %s added to %s", domain, list)))
	case "remove":
		var removed bool
		if list == "whitelist" {
			removed, err = store.RemoveWhitelist(ctx, domain)
		} else {
			removed, err = store.RemoveBlacklist(ctx, domain)
		}
		if err != nil {
			return err
		}
		if !removed {
			fmt.Println(util.WarningStyle.Render(fmt.Sprintf("%s was not in %s", domain, list)))
			return nil
		}
		fmt.Println(util.SuccessStyle.Render(fmt.Sprintf("✓ %s removed from %s", domain, list)))
	default:
		return errors.Wrapf(errUsage, "unknown %s action %q", list, action)
	}
	return nil
}

func runAudit(ctx context.Context, app *appflow.App, args []string) error {
	store, err := requireStore(app)
	if err != nil {
		return err
	}
	limit := 0
	if len(args) > 0 {
		if limit, err = strconv.Atoi(args[0]); err != nil {
			return errors.Wrap(errUsage, "audit limit must be a number")
		}
	}
	entries, err := store.RecentAudit(ctx, limit)
	if err != nil {
		return err
	}
	fmt.Print(renderAudit(entries))
	return nil
}
