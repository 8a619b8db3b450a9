// Package security classifies URLs as safe, warning or critical by combining
// curated domain lists, cached verdicts and live reputation sources.
package security

import (
	"context"

	"github.com/alvarorichard/gocatalog/internal/models"
)

// Store is the persistence the aggregator reads and writes. Lookups return
// (nil, nil) when nothing is stored for the key.
type Store interface {
	Whitelisted(ctx context.Context, domain string) (*models.DomainListEntry, error)
	Blacklisted(ctx context.Context, domain string) (*models.DomainListEntry, error)
	// CachedReputation returns only unexpired records
	CachedReputation(ctx context.Context, rawURL string) (*models.ReputationRecord, error)
	// SaveReputation upserts a verdict; the store owns the expiry
	SaveReputation(ctx context.Context, rec models.ReputationRecord) error
	InsertAudit(ctx context.Context, entry models.AuditEntry) error
}

// FeedVerdict is a threat feed's answer for one URL
type FeedVerdict struct {
	Blacklisted bool
	ThreatLabel string
}

// ThreatFeed is a URL blocklist source such as URLhaus
type ThreatFeed interface {
	Name() string
	Check(ctx context.Context, rawURL string) (FeedVerdict, error)
}

// ScanResult holds the engine counts of a malware scanner
type ScanResult struct {
	Malicious  int
	Suspicious int
}

// MalwareScanner is a multi-engine scanner such as VirusTotal. Scan returns
// ErrNotAnalyzed when the scanner has never seen the URL.
type MalwareScanner interface {
	Name() string
	Scan(ctx context.Context, rawURL string) (ScanResult, error)
}
