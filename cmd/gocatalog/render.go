package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/alvarorichard/gocatalog/internal/models"
	"github.com/alvarorichard/gocatalog/internal/playback"
	"github.com/alvarorichard/gocatalog/internal/titlematch"
	"github.com/alvarorichard/gocatalog/internal/util"
)

var (
	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6366F1")).
			Bold(true)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#4ECDC4")).
			Width(12)

	providerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#45B7D1")).
			Width(14)
)

func riskStyle(level models.RiskLevel) lipgloss.Style {
	switch level {
	case models.RiskSafe:
		return util.SuccessStyle
	case models.RiskWarning:
		return util.WarningStyle
	default:
		return util.DangerStyle
	}
}

func renderSources(out *playback.Sources) string {
	var b strings.Builder
	name := out.Title.DisplayName()
	if name == "" {
		name = fmt.Sprintf("tmdb:%d %s", out.Title.TMDBID, out.Title.IMDBID)
	}
	if out.Season > 0 {
		name += fmt.Sprintf(" S%02dE%02d", out.Season, out.Episode)
	}
	b.WriteString(headerStyle.Render(name) + "\n\n")

	for i, s := range out.Streams {
		lang := s.AudioLang
		if lang == "" {
			lang = "--"
		}
		fmt.Fprintf(&b, "%2d. %s %-8s %-4s %s\n", i+1, providerStyle.Render(s.Provider), s.Quality, lang, util.MutedStyle.Render(s.URL))
	}
	if len(out.Subtitles) > 0 {
		b.WriteString("\n" + labelStyle.Render("Subtitles") + "\n")
		for _, t := range out.Subtitles {
			mark := " "
			if t.Default {
				mark = "*"
			}
			fmt.Fprintf(&b, "  %s %-6s %s\n", mark, t.Lang, util.MutedStyle.Render(t.URL))
		}
	}

	b.WriteString("\n" + labelStyle.Render("Providers") + "\n")
	for _, p := range out.Providers {
		var status string
		switch {
		case p.Skipped:
			status = util.MutedStyle.Render("skipped")
		case p.OK:
			status = util.SuccessStyle.Render(fmt.Sprintf("%d streams", p.Streams))
		default:
			status = util.DangerStyle.Render(p.Error)
		}
		fmt.Fprintf(&b, "  %s %s\n", providerStyle.Render(p.Name), status)
	}
	return b.String()
}

func renderVerdict(res models.SecurityCheckResult) string {
	var b strings.Builder
	style := riskStyle(res.RiskLevel)
	fmt.Fprintf(&b, "%s %s\n", labelStyle.Render("Risk"), style.Render(strings.ToUpper(string(res.RiskLevel))))
	fmt.Fprintf(&b, "%s %s\n", labelStyle.Render("Reason"), res.Reason)
	fmt.Fprintf(&b, "%s %s\n", labelStyle.Render("Domain"), res.Domain)
	if res.MaliciousCount > 0 {
		fmt.Fprintf(&b, "%s %d\n", labelStyle.Render("Detections"), res.MaliciousCount)
	}
	if res.Cached {
		fmt.Fprintf(&b, "%s %s\n", labelStyle.Render("Source"), util.MutedStyle.Render("cache"))
	}
	return b.String()
}

func renderMatch(candidate, title string, threshold float64) string {
	score := titlematch.Similarity(candidate, title)
	verdict := util.DangerStyle.Render("no match")
	if score >= threshold {
		verdict = util.SuccessStyle.Render("match")
	}
	return fmt.Sprintf("%s %q\n%s %q\n%s %.3f (threshold %.2f) %s\n",
		labelStyle.Render("Candidate"), titlematch.NormalizeTitle(candidate),
		labelStyle.Render("Title"), titlematch.NormalizeTitle(title),
		labelStyle.Render("Score"), score, threshold, verdict)
}

func renderDomainList(list string, entries []models.DomainListEntry) string {
	if len(entries) == 0 {
		return util.MutedStyle.Render(list+" is empty") + "\n"
	}
	var b strings.Builder
	b.WriteString(headerStyle.Render(fmt.Sprintf("%s (%d)", list, len(entries))) + "\n")
	for _, e := range entries {
		note := e.Reason
		if e.ThreatType != "" {
			note = strings.TrimSpace(e.ThreatType + " " + note)
		}
		fmt.Fprintf(&b, "  %-32s %s %s\n", e.Domain, riskStyle(e.RiskLevel).Render(string(e.RiskLevel)), util.MutedStyle.Render(note))
	}
	return b.String()
}

func renderAudit(entries []models.AuditEntry) string {
	if len(entries) == 0 {
		return util.MutedStyle.Render("audit log is empty") + "\n"
	}
	var b strings.Builder
	for _, e := range entries {
		fmt.Fprintf(&b, "%s %-8s %-15s %s %s\n",
			util.MutedStyle.Render(e.CreatedAt.Local().Format("2006-01-02 15:04:05")),
			e.Status, e.Action,
			riskStyle(e.RiskLevel).Render(string(e.RiskLevel)),
			e.SubjectValue)
	}
	return b.String()
}
