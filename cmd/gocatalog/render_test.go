package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alvarorichard/gocatalog/internal/models"
	"github.com/alvarorichard/gocatalog/internal/playback"
)

func TestParseRequest(t *testing.T) {
	req, lang, pick, err := parseRequest([]string{"-tmdb", "1396", "-kind", "series", "-season", "2", "-episode", "5", "-pick"}, "en")
	require.NoError(t, err)
	assert.Equal(t, 1396, req.TMDBID)
	assert.Equal(t, models.MediaKindTV, req.Kind)
	assert.Equal(t, 2, req.Season)
	assert.Equal(t, 5, req.Episode)
	assert.Equal(t, "en", lang)
	assert.True(t, pick)

	_, _, _, err = parseRequest([]string{"-kind", "tv", "-tmdb", "1"}, "en")
	assert.ErrorIs(t, err, playback.ErrInvalidRequest)

	_, _, _, err = parseRequest([]string{"-nope"}, "en")
	assert.ErrorIs(t, err, errUsage)
}

func TestRenderSources(t *testing.T) {
	out := renderSources(&playback.Sources{
		Title:   models.Title{Name: "Inception", Year: 2010},
		Streams: []models.ExtractedStream{{Provider: "vidapi", URL: "https://cdn/1080.m3u8", Quality: "1080p", AudioLang: "en"}},
		Subtitles: []models.SubtitleTrack{
			{Lang: "en", URL: "https://subs/en.vtt", Default: true},
		},
		Providers: []playback.ProviderStatus{
			{Name: "vidapi", OK: true, Streams: 1},
			{Name: "broken", Error: "Timeout"},
			{Name: "sniffer", Skipped: true},
		},
	})
	assert.Contains(t, out, "Inception (2010)")
	assert.Contains(t, out, "https://cdn/1080.m3u8")
	assert.Contains(t, out, "Timeout")
	assert.Contains(t, out, "skipped")
}

func TestRenderVerdictAndLists(t *testing.T) {
	v := renderVerdict(models.NewSecurityCheckResult("https://bad.example", "bad.example", models.RiskCritical, "Domain blacklisted: phishing"))
	assert.Contains(t, v, "CRITICAL")
	assert.Contains(t, v, "Domain blacklisted: phishing")

	assert.Contains(t, renderDomainList("whitelist", nil), "whitelist is empty")
	assert.Contains(t, renderDomainList("blacklist", []models.DomainListEntry{{Domain: "bad.example", ThreatType: "malware", RiskLevel: models.RiskCritical}}), "bad.example")

	audit := renderAudit([]models.AuditEntry{{Action: "download_check", Status: "blocked", RiskLevel: models.RiskWarning, SubjectValue: "https://x", CreatedAt: time.Now()}})
	assert.Contains(t, audit, "download_check")
	assert.Contains(t, audit, "https://x")

	assert.Contains(t, renderMatch("Inception.2010.1080p", "Inception", 0.65), "match")
}
