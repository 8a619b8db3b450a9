package models

import (
	"strings"
	"time"
)

// RiskLevel is the safety classification of a URL or domain
type RiskLevel string

const (
	RiskSafe     RiskLevel = "safe"
	RiskWarning  RiskLevel = "warning"
	RiskCritical RiskLevel = "critical"
)

// ParseRiskLevel converts stored text into a RiskLevel. Unknown values
// are treated as critical so a corrupted row never relaxes a block.
func ParseRiskLevel(s string) RiskLevel {
	switch RiskLevel(strings.ToLower(strings.TrimSpace(s))) {
	case RiskSafe:
		return RiskSafe
	case RiskWarning:
		return RiskWarning
	default:
		return RiskCritical
	}
}

// Severity orders risk levels: safe < warning < critical
func (r RiskLevel) Severity() int {
	switch r {
	case RiskSafe:
		return 0
	case RiskWarning:
		return 1
	default:
		return 2
	}
}

// MaxRisk returns the more severe of two risk levels
func MaxRisk(a, b RiskLevel) RiskLevel {
	if b.Severity() > a.Severity() {
		return b
	}
	return a
}

// SecurityCheckResult is the verdict for one URL at one point in time.
// Build it with NewSecurityCheckResult so IsAllowed stays tied to RiskLevel.
type SecurityCheckResult struct {
	URL            string    `json:"url"`
	Domain         string    `json:"domain,omitempty"`
	RiskLevel      RiskLevel `json:"risk_level"`
	Reason         string    `json:"reason"`
	IsAllowed      bool      `json:"is_allowed"`
	MaliciousCount int       `json:"malicious_count"`
	ThreatType     string    `json:"threat_type,omitempty"`
	Cached         bool      `json:"cached"`
	CheckedAt      time.Time `json:"checked_at"`
}

// NewSecurityCheckResult builds a verdict whose allow flag is derived from the risk level
func NewSecurityCheckResult(rawURL, domain string, level RiskLevel, reason string) SecurityCheckResult {
	return SecurityCheckResult{
		URL:       rawURL,
		Domain:    domain,
		RiskLevel: level,
		Reason:    reason,
		IsAllowed: level == RiskSafe,
		CheckedAt: time.Now().UTC(),
	}
}

// DomainListEntry is a manually curated whitelist or blacklist row
type DomainListEntry struct {
	Domain     string    `json:"domain"`
	Reason     string    `json:"reason,omitempty"`
	ThreatType string    `json:"threat_type,omitempty"`
	RiskLevel  RiskLevel `json:"risk_level,omitempty"`
	AddedBy    string    `json:"added_by,omitempty"`
	AddedAt    time.Time `json:"added_at"`
}

// ReputationRecord is the compressed, time-bounded form of a verdict kept for cache hits
type ReputationRecord struct {
	URL            string    `json:"url"`
	Domain         string    `json:"domain,omitempty"`
	RiskLevel      RiskLevel `json:"risk_level"`
	MaliciousCount int       `json:"malicious_count"`
	ThreatPayload  string    `json:"threat_payload,omitempty"`
	CheckedAt      time.Time `json:"checked_at"`
	ExpiresAt      time.Time `json:"expires_at"`
}

// AuditEntry records a security-relevant action
type AuditEntry struct {
	ID           string         `json:"id"`
	Actor        string         `json:"actor,omitempty"`
	Action       string         `json:"action"`
	SubjectKind  string         `json:"subject_kind,omitempty"`
	SubjectID    string         `json:"subject_id,omitempty"`
	SubjectValue string         `json:"subject_value,omitempty"`
	IP           string         `json:"ip,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	RiskLevel    RiskLevel      `json:"risk_level"`
	Status       string         `json:"status"`
	Details      string         `json:"details,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}
