// Package storage persists domain lists, cached URL verdicts and the audit log in SQLite
package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	"github.com/pressly/goose/v3"

	"github.com/alvarorichard/gocatalog/internal/models"
	"github.com/alvarorichard/gocatalog/internal/util"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// cgoEnabled is false in builds where go-sqlite3 is a stub
var cgoEnabled = true

var (
	ErrCgoDisabled = errors.New("CGO disabled: sqlite storage not available")
	ErrNotOpen     = errors.New("store not open")
)

const (
	defaultCacheSize  = -20000    // 20MB
	mmapSize          = 268435456 // 256MB
	busyTimeout       = 5000
	walAutoCheckpoint = 1000
	maxOpenConns      = 5
	maxIdleConns      = 2

	// DefaultReputationTTL is how long a computed verdict is served from cache
	DefaultReputationTTL = 24 * time.Hour
)

// Store is the SQLite backed persistence for the security pipeline
type Store struct {
	db            *sql.DB
	reputationTTL time.Duration
	now           func() time.Time

	whitelistPS  *sql.Stmt
	blacklistPS  *sql.Stmt
	reputationPS *sql.Stmt
	saveRepPS    *sql.Stmt
	auditPS      *sql.Stmt
}

// Open creates the database file if needed, applies migrations and prepares
// the lookup statements. ttl <= 0 uses DefaultReputationTTL.
func Open(ctx context.Context, dbPath string, ttl time.Duration) (*Store, error) {
	if !cgoEnabled {
		return nil, ErrCgoDisabled
	}
	if ttl <= 0 {
		ttl = DefaultReputationTTL
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0700); err != nil {
		return nil, errors.Wrap(err, "create data directory")
	}

	db, err := sql.Open("sqlite3", dsn(dbPath))
	if err != nil {
		return nil, errors.Wrap(err, "open database")
	}
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)

	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &Store{db: db, reputationTTL: ttl, now: time.Now}
	if err := s.prepare(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}

	util.Debug("Store opened", "path", dbPath, "reputation_ttl", ttl)
	return s, nil
}

func dsn(dbPath string) string {
	params := fmt.Sprintf(
		"_journal_mode=WAL&_synchronous=NORMAL&_wal_autocheckpoint=%d&_busy_timeout=%d&_cache_size=%d&_mmap_size=%d",
		walAutoCheckpoint, busyTimeout, defaultCacheSize, mmapSize,
	)
	if runtime.GOOS == "windows" {
		return fmt.Sprintf("file:%s?%s&_mode=rwc", strings.ReplaceAll(dbPath, "\\", "/"), params)
	}
	return fmt.Sprintf("file:%s?%s", dbPath, params)
}

func migrate(ctx context.Context, db *sql.DB) error {
	sub, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return errors.Wrap(err, "migrations fs")
	}
	provider, err := goose.NewProvider(goose.DialectSQLite3, db, sub)
	if err != nil {
		return errors.Wrap(err, "migration provider")
	}
	results, err := provider.Up(ctx)
	if err != nil {
		return errors.Wrap(err, "apply migrations")
	}
	for _, r := range results {
		util.Debug("Migration applied", "source", r.Source.Path, "duration", r.Duration)
	}
	return nil
}

func (s *Store) prepare(ctx context.Context) error {
	var err error
	prep := func(name, query string) *sql.Stmt {
		if err != nil {
			return nil
		}
		var stmt *sql.Stmt
		stmt, err = s.db.PrepareContext(ctx, query)
		if err != nil {
			err = errors.Wrapf(err, "%s preparation failed", name)
		}
		return stmt
	}

	s.whitelistPS = prep("whitelist", `SELECT domain, reason, added_by, added_at
		FROM domain_whitelist WHERE domain = ?`)
	s.blacklistPS = prep("blacklist", `SELECT domain, reason, threat_type, risk_level, added_by, added_at
		FROM domain_blacklist WHERE domain = ?`)
	s.reputationPS = prep("reputation", `SELECT url, domain, risk_level, malicious_count, threat_payload, checked_at, expires_at
		FROM url_reputation WHERE url = ? AND expires_at > ?`)
	s.saveRepPS = prep("save reputation", `INSERT INTO url_reputation (
		url, domain, risk_level, malicious_count, threat_payload, checked_at, expires_at
	) VALUES (?,?,?,?,?,?,?)
	ON CONFLICT(url) DO UPDATE SET
		domain = excluded.domain,
		risk_level = excluded.risk_level,
		malicious_count = excluded.malicious_count,
		threat_payload = excluded.threat_payload,
		checked_at = excluded.checked_at,
		expires_at = excluded.expires_at`)
	s.auditPS = prep("audit", `INSERT INTO audit_log (
		id, actor, action, subject_kind, subject_id, subject_value, ip, metadata, risk_level, status, details, created_at
	) VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`)

	return err
}

func normalizeDomain(d string) string {
	return strings.TrimSuffix(strings.ToLower(strings.TrimSpace(d)), ".")
}

// Whitelisted returns the whitelist entry for domain, or nil
func (s *Store) Whitelisted(ctx context.Context, domain string) (*models.DomainListEntry, error) {
	if s == nil || s.whitelistPS == nil {
		return nil, ErrNotOpen
	}
	var e models.DomainListEntry
	var ts int64
	err := s.whitelistPS.QueryRowContext(ctx, normalizeDomain(domain)).Scan(&e.Domain, &e.Reason, &e.AddedBy, &ts)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "whitelist query")
	}
	e.AddedAt = time.Unix(ts, 0).UTC()
	e.RiskLevel = models.RiskSafe
	return &e, nil
}

// Blacklisted returns the blacklist entry for domain, or nil
func (s *Store) Blacklisted(ctx context.Context, domain string) (*models.DomainListEntry, error) {
	if s == nil || s.blacklistPS == nil {
		return nil, ErrNotOpen
	}
	var e models.DomainListEntry
	var ts int64
	var level string
	err := s.blacklistPS.QueryRowContext(ctx, normalizeDomain(domain)).Scan(&e.Domain, &e.Reason, &e.ThreatType, &level, &e.AddedBy, &ts)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "blacklist query")
	}
	if level != "" {
		e.RiskLevel = models.ParseRiskLevel(level)
	}
	e.AddedAt = time.Unix(ts, 0).UTC()
	return &e, nil
}

// CachedReputation returns the unexpired verdict for rawURL, or nil
func (s *Store) CachedReputation(ctx context.Context, rawURL string) (*models.ReputationRecord, error) {
	if s == nil || s.reputationPS == nil {
		return nil, ErrNotOpen
	}
	var r models.ReputationRecord
	var level string
	var checked, expires int64
	err := s.reputationPS.QueryRowContext(ctx, rawURL, s.now().Unix()).Scan(
		&r.URL, &r.Domain, &level, &r.MaliciousCount, &r.ThreatPayload, &checked, &expires,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "reputation query")
	}
	r.RiskLevel = models.ParseRiskLevel(level)
	r.CheckedAt = time.Unix(checked, 0).UTC()
	r.ExpiresAt = time.Unix(expires, 0).UTC()
	return &r, nil
}

// SaveReputation upserts a verdict valid for the store's reputation TTL
func (s *Store) SaveReputation(ctx context.Context, rec models.ReputationRecord) error {
	if s == nil || s.saveRepPS == nil {
		return ErrNotOpen
	}
	checked := rec.CheckedAt
	if checked.IsZero() {
		checked = s.now()
	}
	malicious := max(rec.MaliciousCount, 0)

	_, err := s.saveRepPS.ExecContext(ctx,
		rec.URL,
		normalizeDomain(rec.Domain),
		string(rec.RiskLevel),
		malicious,
		rec.ThreatPayload,
		checked.Unix(),
		s.now().Add(s.reputationTTL).Unix(),
	)
	return errors.Wrap(err, "save reputation")
}

// InsertAudit appends an audit entry
func (s *Store) InsertAudit(ctx context.Context, e models.AuditEntry) error {
	if s == nil || s.auditPS == nil {
		return ErrNotOpen
	}
	meta := []byte("{}")
	if len(e.Metadata) > 0 {
		var err error
		if meta, err = json.Marshal(e.Metadata); err != nil {
			return errors.Wrap(err, "encode audit metadata")
		}
	}
	created := e.CreatedAt
	if created.IsZero() {
		created = s.now()
	}

	_, err := s.auditPS.ExecContext(ctx,
		e.ID, e.Actor, e.Action, e.SubjectKind, e.SubjectID, e.SubjectValue, e.IP,
		string(meta), string(e.RiskLevel), e.Status, e.Details, created.Unix(),
	)
	return errors.Wrap(err, "insert audit entry")
}

// Close releases statements and the database handle
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	var finalErr error
	for name, stmt := range map[string]*sql.Stmt{
		"whitelist":       s.whitelistPS,
		"blacklist":       s.blacklistPS,
		"reputation":      s.reputationPS,
		"save reputation": s.saveRepPS,
		"audit":           s.auditPS,
	} {
		if stmt == nil {
			continue
		}
		if err := stmt.Close(); err != nil {
			finalErr = errors.Wrapf(err, "%s statement close error", name)
		}
	}
	if err := s.db.Close(); err != nil {
		finalErr = errors.Wrap(err, "database close error")
	}
	return finalErr
}

// Available reports whether this build can open SQLite databases
func Available() bool {
	return cgoEnabled
}
