package security

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/samber/lo"

	"github.com/alvarorichard/gocatalog/internal/models"
	"github.com/alvarorichard/gocatalog/internal/resilience"
	"github.com/alvarorichard/gocatalog/internal/util"
)

// Audit values written by CheckDownload
const (
	ActionDownloadCheck = "download_check"
	StatusAllowed       = "allowed"
	StatusBlocked       = "blocked"
)

// Aggregator runs the decision chain whitelist -> blacklist -> cached verdict
// -> live sources. Every step is best effort: a failing store or source is
// logged and contributes no signal.
type Aggregator struct {
	store    Store
	feeds    []ThreatFeed
	scanners []MalwareScanner
	breakers *resilience.Breakers
	retry    resilience.RetryPolicy
	now      func() time.Time
}

// AggregatorOption configures an Aggregator
type AggregatorOption func(*Aggregator)

// WithThreatFeeds adds URL blocklist sources
func WithThreatFeeds(feeds ...ThreatFeed) AggregatorOption {
	return func(a *Aggregator) { a.feeds = append(a.feeds, feeds...) }
}

// WithScanners adds malware scanners
func WithScanners(scanners ...MalwareScanner) AggregatorOption {
	return func(a *Aggregator) { a.scanners = append(a.scanners, scanners...) }
}

// WithBreakers guards each source with its own breaker
func WithBreakers(set *resilience.Breakers) AggregatorOption {
	return func(a *Aggregator) { a.breakers = set }
}

// WithRetryPolicy sets the retry policy for source calls
func WithRetryPolicy(p resilience.RetryPolicy) AggregatorOption {
	return func(a *Aggregator) { a.retry = p }
}

// NewAggregator creates an aggregator. A nil store disables list and cache steps.
func NewAggregator(store Store, opts ...AggregatorOption) *Aggregator {
	a := &Aggregator{
		store: store,
		retry: resilience.DefaultExponential(),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// CheckURL classifies rawURL. It always returns a verdict.
func (a *Aggregator) CheckURL(ctx context.Context, rawURL string) models.SecurityCheckResult {
	domain := ExtractDomain(rawURL)

	entry, listed := a.lookupLists(ctx, DomainCandidates(domain))
	switch listed {
	case "blacklist":
		level := models.RiskCritical
		if entry.RiskLevel != "" {
			level = models.ParseRiskLevel(string(entry.RiskLevel))
		}
		threat := lo.CoalesceOrEmpty(entry.ThreatType, "blocked")
		res := a.result(rawURL, domain, level, "Domain blacklisted: "+threat)
		res.ThreatType = entry.ThreatType
		return res
	case "whitelist":
		reason := lo.CoalesceOrEmpty(entry.Reason, "trusted domain")
		return a.result(rawURL, domain, models.RiskSafe, "Domain whitelisted: "+reason)
	}

	if rec := a.cached(ctx, rawURL); rec != nil {
		res := a.result(rawURL, domain, rec.RiskLevel, fmt.Sprintf("Cached result: %s", rec.RiskLevel))
		res.MaliciousCount = rec.MaliciousCount
		res.ThreatType = rec.ThreatPayload
		res.Cached = true
		res.CheckedAt = rec.CheckedAt
		return res
	}

	return a.scan(ctx, rawURL, domain)
}

func (a *Aggregator) result(rawURL, domain string, level models.RiskLevel, reason string) models.SecurityCheckResult {
	res := models.NewSecurityCheckResult(rawURL, domain, level, reason)
	res.CheckedAt = a.now().UTC()
	return res
}

// lookupLists walks candidates from the most specific domain outwards. At each
// level the blacklist is consulted before the whitelist and the first hit wins,
// so a blacklisted subdomain is never rescued by a whitelisted parent.
func (a *Aggregator) lookupLists(ctx context.Context, candidates []string) (*models.DomainListEntry, string) {
	if a.store == nil {
		return nil, ""
	}
	lists := []struct {
		name string
		get  func(context.Context, string) (*models.DomainListEntry, error)
	}{
		{"blacklist", a.store.Blacklisted},
		{"whitelist", a.store.Whitelisted},
	}
	for _, d := range candidates {
		for _, l := range lists {
			entry, err := l.get(ctx, d)
			if err != nil {
				util.Warn("Domain list lookup failed", "list", l.name, "domain", d, "error", err)
				continue
			}
			if entry != nil {
				util.Debug("Domain list hit", "list", l.name, "domain", d)
				return entry, l.name
			}
		}
	}
	return nil, ""
}

func (a *Aggregator) cached(ctx context.Context, rawURL string) *models.ReputationRecord {
	if a.store == nil {
		return nil
	}
	rec, err := a.store.CachedReputation(ctx, rawURL)
	if err != nil {
		util.Warn("Reputation cache lookup failed", "url", rawURL, "error", err)
		return nil
	}
	if rec == nil || !rec.ExpiresAt.After(a.now()) {
		return nil
	}
	return rec
}

type scanOutcome struct {
	result   ScanResult
	analyzed bool
}

func (a *Aggregator) scan(ctx context.Context, rawURL, domain string) models.SecurityCheckResult {
	levels := []models.RiskLevel{models.RiskSafe}
	var (
		feedLabel  string
		feedHit    bool
		malicious  int
		suspicious int
		answered   int
	)

	for _, feed := range a.feeds {
		verdict, err := resilience.Guarded(ctx, a.breakers.Get(feed.Name()), a.retry, feed.Name(), func() (FeedVerdict, error) {
			return feed.Check(ctx, rawURL)
		})
		if err != nil {
			util.Warn("Threat feed unavailable", "source", feed.Name(), "error", err)
			continue
		}
		answered++
		if verdict.Blacklisted {
			feedHit = true
			feedLabel = lo.CoalesceOrEmpty(feedLabel, verdict.ThreatLabel)
			levels = append(levels, models.RiskCritical)
		}
	}

	for _, scanner := range a.scanners {
		out, err := resilience.Guarded(ctx, a.breakers.Get(scanner.Name()), a.retry, scanner.Name(), func() (scanOutcome, error) {
			r, err := scanner.Scan(ctx, rawURL)
			if errors.Is(err, ErrNotAnalyzed) {
				return scanOutcome{}, nil
			}
			return scanOutcome{result: r, analyzed: true}, err
		})
		if err != nil {
			util.Warn("Malware scanner unavailable", "source", scanner.Name(), "error", err)
			continue
		}
		answered++
		if !out.analyzed {
			util.Debug("URL not analyzed by scanner", "source", scanner.Name())
			continue
		}
		malicious = max(malicious, out.result.Malicious)
		suspicious = max(suspicious, out.result.Suspicious)
		levels = append(levels, AssessRiskLevel(out.result.Malicious, out.result.Suspicious))
	}

	level := CombineRisk(levels...)

	var reason string
	switch {
	case malicious > 0:
		reason = fmt.Sprintf("Flagged as malicious by %d security vendors", malicious)
	case feedHit:
		reason = "Listed in threat feed: " + lo.CoalesceOrEmpty(feedLabel, "malware")
	case suspicious > 0:
		reason = fmt.Sprintf("Flagged as suspicious by %d security vendors", suspicious)
	default:
		reason = "Passed security checks"
	}

	res := a.result(rawURL, domain, level, reason)
	res.MaliciousCount = malicious
	res.ThreatType = feedLabel

	if answered > 0 {
		a.persist(ctx, res)
	}
	return res
}

func (a *Aggregator) persist(ctx context.Context, res models.SecurityCheckResult) {
	if a.store == nil {
		return
	}
	err := a.store.SaveReputation(ctx, models.ReputationRecord{
		URL:            res.URL,
		Domain:         res.Domain,
		RiskLevel:      res.RiskLevel,
		MaliciousCount: res.MaliciousCount,
		ThreatPayload:  res.ThreatType,
		CheckedAt:      res.CheckedAt,
	})
	if err != nil {
		util.Warn("Failed to cache reputation", "url", res.URL, "error", err)
	}
}

// DownloadRequest describes a download about to start
type DownloadRequest struct {
	URL       string         `json:"url"`
	Actor     string         `json:"actor,omitempty"`
	IP        string         `json:"ip,omitempty"`
	SubjectID string         `json:"subject_id,omitempty"`
	Title     string         `json:"title,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// CheckDownload checks the URL and records the decision in the audit log
func (a *Aggregator) CheckDownload(ctx context.Context, req DownloadRequest) models.SecurityCheckResult {
	res := a.CheckURL(ctx, req.URL)

	status := StatusBlocked
	if res.IsAllowed {
		status = StatusAllowed
	}

	meta := lo.Assign(map[string]any{}, req.Metadata, map[string]any{
		"domain": res.Domain,
		"cached": res.Cached,
	})
	if req.Title != "" {
		meta["title"] = req.Title
	}
	if res.ThreatType != "" {
		meta["threat_type"] = res.ThreatType
	}

	entry := models.AuditEntry{
		ID:           uuid.NewString(),
		Actor:        req.Actor,
		Action:       ActionDownloadCheck,
		SubjectKind:  "url",
		SubjectID:    req.SubjectID,
		SubjectValue: req.URL,
		IP:           req.IP,
		Metadata:     meta,
		RiskLevel:    res.RiskLevel,
		Status:       status,
		Details:      res.Reason,
		CreatedAt:    a.now().UTC(),
	}

	if a.store != nil {
		if err := a.store.InsertAudit(ctx, entry); err != nil {
			util.Warn("Failed to write audit entry", "url", req.URL, "error", err)
		}
	}

	util.Info("Download checked", "domain", res.Domain, "risk", res.RiskLevel, "status", status)
	return res
}
