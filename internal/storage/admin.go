package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/pkg/errors"

	"github.com/alvarorichard/gocatalog/internal/models"
	"github.com/alvarorichard/gocatalog/internal/util"
)

const defaultAuditLimit = 50

// AddWhitelist inserts or replaces a whitelist entry
func (s *Store) AddWhitelist(ctx context.Context, e models.DomainListEntry) error {
	if s == nil || s.db == nil {
		return ErrNotOpen
	}
	domain := normalizeDomain(e.Domain)
	if domain == "" {
		return errors.New("domain is required")
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO domain_whitelist (domain, reason, added_by, added_at)
		VALUES (?,?,?,?)
		ON CONFLICT(domain) DO UPDATE SET
			reason = excluded.reason,
			added_by = excluded.added_by,
			added_at = excluded.added_at`,
		domain, e.Reason, e.AddedBy, s.addedAt(e).Unix())
	return errors.Wrap(err, "add whitelist entry")
}

// AddBlacklist inserts or replaces a blacklist entry. An empty risk level is
// read back as critical by the security pipeline.
func (s *Store) AddBlacklist(ctx context.Context, e models.DomainListEntry) error {
	if s == nil || s.db == nil {
		return ErrNotOpen
	}
	domain := normalizeDomain(e.Domain)
	if domain == "" {
		return errors.New("domain is required")
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO domain_blacklist (domain, reason, threat_type, risk_level, added_by, added_at)
		VALUES (?,?,?,?,?,?)
		ON CONFLICT(domain) DO UPDATE SET
			reason = excluded.reason,
			threat_type = excluded.threat_type,
			risk_level = excluded.risk_level,
			added_by = excluded.added_by,
			added_at = excluded.added_at`,
		domain, e.Reason, e.ThreatType, string(e.RiskLevel), e.AddedBy, s.addedAt(e).Unix())
	return errors.Wrap(err, "add blacklist entry")
}

func (s *Store) addedAt(e models.DomainListEntry) time.Time {
	if e.AddedAt.IsZero() {
		return s.now()
	}
	return e.AddedAt
}

// RemoveWhitelist deletes a whitelist entry and reports whether it existed
func (s *Store) RemoveWhitelist(ctx context.Context, domain string) (bool, error) {
	return s.remove(ctx, "domain_whitelist", domain)
}

// RemoveBlacklist deletes a blacklist entry and reports whether it existed
func (s *Store) RemoveBlacklist(ctx context.Context, domain string) (bool, error) {
	return s.remove(ctx, "domain_blacklist", domain)
}

func (s *Store) remove(ctx context.Context, table, domain string) (bool, error) {
	if s == nil || s.db == nil {
		return false, ErrNotOpen
	}
	// table is one of two constants above
	res, err := s.db.ExecContext(ctx, `DELETE FROM `+table+` WHERE domain = ?`, normalizeDomain(domain))
	if err != nil {
		return false, errors.Wrapf(err, "delete from %s", table)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "rows affected")
	}
	return n > 0, nil
}

// ListWhitelist returns all whitelist entries ordered by domain
func (s *Store) ListWhitelist(ctx context.Context) ([]models.DomainListEntry, error) {
	if s == nil || s.db == nil {
		return nil, ErrNotOpen
	}
	rows, err := s.db.QueryContext(ctx, `SELECT domain, reason, added_by, added_at FROM domain_whitelist ORDER BY domain`)
	if err != nil {
		return nil, errors.Wrap(err, "query whitelist")
	}
	defer closeRows(rows)

	var list []models.DomainListEntry
	for rows.Next() {
		var e models.DomainListEntry
		var ts int64
		if err := rows.Scan(&e.Domain, &e.Reason, &e.AddedBy, &ts); err != nil {
			return nil, errors.Wrap(err, "row scan failed")
		}
		e.RiskLevel = models.RiskSafe
		e.AddedAt = time.Unix(ts, 0).UTC()
		list = append(list, e)
	}
	return list, errors.Wrap(rows.Err(), "rows iteration failed")
}

// ListBlacklist returns all blacklist entries ordered by domain
func (s *Store) ListBlacklist(ctx context.Context) ([]models.DomainListEntry, error) {
	if s == nil || s.db == nil {
		return nil, ErrNotOpen
	}
	rows, err := s.db.QueryContext(ctx, `SELECT domain, reason, threat_type, risk_level, added_by, added_at FROM domain_blacklist ORDER BY domain`)
	if err != nil {
		return nil, errors.Wrap(err, "query blacklist")
	}
	defer closeRows(rows)

	var list []models.DomainListEntry
	for rows.Next() {
		var e models.DomainListEntry
		var ts int64
		var level string
		if err := rows.Scan(&e.Domain, &e.Reason, &e.ThreatType, &level, &e.AddedBy, &ts); err != nil {
			return nil, errors.Wrap(err, "row scan failed")
		}
		e.RiskLevel = models.RiskCritical
		if level != "" {
			e.RiskLevel = models.ParseRiskLevel(level)
		}
		e.AddedAt = time.Unix(ts, 0).UTC()
		list = append(list, e)
	}
	return list, errors.Wrap(rows.Err(), "rows iteration failed")
}

// RecentAudit returns the newest audit entries first. limit <= 0 returns 50.
func (s *Store) RecentAudit(ctx context.Context, limit int) ([]models.AuditEntry, error) {
	if s == nil || s.db == nil {
		return nil, ErrNotOpen
	}
	if limit <= 0 {
		limit = defaultAuditLimit
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id, actor, action, subject_kind, subject_id, subject_value, ip, metadata, risk_level, status, details, created_at
		FROM audit_log ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "query audit log")
	}
	defer closeRows(rows)

	list := make([]models.AuditEntry, 0, limit)
	for rows.Next() {
		var e models.AuditEntry
		var meta, level string
		var ts int64
		if err := rows.Scan(&e.ID, &e.Actor, &e.Action, &e.SubjectKind, &e.SubjectID, &e.SubjectValue, &e.IP,
			&meta, &level, &e.Status, &e.Details, &ts); err != nil {
			return nil, errors.Wrap(err, "row scan failed")
		}
		if meta != "" && meta != "{}" {
			if err := json.Unmarshal([]byte(meta), &e.Metadata); err != nil {
				util.Debug("Bad audit metadata", "id", e.ID, "error", err)
			}
		}
		e.RiskLevel = models.ParseRiskLevel(level)
		e.CreatedAt = time.Unix(ts, 0).UTC()
		list = append(list, e)
	}
	return list, errors.Wrap(rows.Err(), "rows iteration failed")
}

// PurgeExpiredReputation deletes cached verdicts past their expiry
func (s *Store) PurgeExpiredReputation(ctx context.Context) (int64, error) {
	if s == nil || s.db == nil {
		return 0, ErrNotOpen
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM url_reputation WHERE expires_at <= ?`, s.now().Unix())
	if err != nil {
		return 0, errors.Wrap(err, "purge reputation")
	}
	return res.RowsAffected()
}

func closeRows(rows *sql.Rows) {
	if err := rows.Close(); err != nil {
		util.Debug("Error closing rows", "error", err)
	}
}
