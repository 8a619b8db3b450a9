package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alvarorichard/gocatalog/internal/models"
	"github.com/alvarorichard/gocatalog/internal/security"
)

var _ security.Store = (*Store)(nil)

func openTestStore(t *testing.T, ttl time.Duration) *Store {
	t.Helper()
	if !cgoEnabled {
		t.Skip("sqlite requires cgo")
	}
	dbPath := filepath.Join(t.TempDir(), "nested", "catalog.db")
	s, err := Open(context.Background(), dbPath, ttl)
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, s.Close())
	})
	return s
}

func TestOpen_CreatesFileAndMigrates(t *testing.T) {
	if !cgoEnabled {
		t.Skip("sqlite requires cgo")
	}
	dbPath := filepath.Join(t.TempDir(), "data", "catalog.db")

	s, err := Open(context.Background(), dbPath, 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultReputationTTL, s.reputationTTL)
	require.NoError(t, s.Close())

	_, err = os.Stat(dbPath)
	require.NoError(t, err)

	// reopening runs migrations again as a no-op
	s, err = Open(context.Background(), dbPath, time.Hour)
	require.NoError(t, err)
	require.NoError(t, s.Close())
}

func TestStore_DomainLists(t *testing.T) {
	s := openTestStore(t, time.Hour)
	ctx := context.Background()

	entry, err := s.Whitelisted(ctx, "example.com")
	require.NoError(t, err)
	assert.Nil(t, entry)

	require.NoError(t, s.AddWhitelist(ctx, models.DomainListEntry{Domain: "Example.COM.", Reason: "official", AddedBy: "admin"}))
	entry, err = s.Whitelisted(ctx, "example.com")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, "official", entry.Reason)
	assert.Equal(t, "admin", entry.AddedBy)
	assert.False(t, entry.AddedAt.IsZero())

	require.NoError(t, s.AddBlacklist(ctx, models.DomainListEntry{Domain: "bad.example", ThreatType: "phishing"}))
	require.NoError(t, s.AddBlacklist(ctx, models.DomainListEntry{Domain: "ads.example", ThreatType: "adware", RiskLevel: models.RiskWarning}))

	bad, err := s.Blacklisted(ctx, "bad.example")
	require.NoError(t, err)
	require.NotNil(t, bad)
	assert.Equal(t, "phishing", bad.ThreatType)
	assert.Empty(t, bad.RiskLevel, "no stored level")

	ads, err := s.Blacklisted(ctx, "ads.example")
	require.NoError(t, err)
	assert.Equal(t, models.RiskWarning, ads.RiskLevel)

	list, err := s.ListBlacklist(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "ads.example", list[0].Domain)
	assert.Equal(t, models.RiskCritical, list[1].RiskLevel)

	removed, err := s.RemoveBlacklist(ctx, "bad.example")
	require.NoError(t, err)
	assert.True(t, removed)
	removed, err = s.RemoveBlacklist(ctx, "bad.example")
	require.NoError(t, err)
	assert.False(t, removed)

	removed, err = s.RemoveWhitelist(ctx, "EXAMPLE.com")
	require.NoError(t, err)
	assert.True(t, removed)

	wl, err := s.ListWhitelist(ctx)
	require.NoError(t, err)
	assert.Empty(t, wl)

	assert.Error(t, s.AddWhitelist(ctx, models.DomainListEntry{Domain: "  "}))
}

func TestStore_ReputationTTL(t *testing.T) {
	s := openTestStore(t, time.Hour)
	ctx := context.Background()

	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	rec := models.ReputationRecord{
		URL:            "https://dl.example/file.zip",
		Domain:         "dl.example",
		RiskLevel:      models.RiskWarning,
		MaliciousCount: 2,
		ThreatPayload:  "malware_download",
		CheckedAt:      now,
	}
	require.NoError(t, s.SaveReputation(ctx, rec))

	got, err := s.CachedReputation(ctx, rec.URL)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, models.RiskWarning, got.RiskLevel)
	assert.Equal(t, 2, got.MaliciousCount)
	assert.Equal(t, "malware_download", got.ThreatPayload)
	assert.Equal(t, now.Add(time.Hour), got.ExpiresAt)

	// upsert replaces the verdict
	rec.RiskLevel = models.RiskCritical
	rec.MaliciousCount = 7
	require.NoError(t, s.SaveReputation(ctx, rec))
	got, err = s.CachedReputation(ctx, rec.URL)
	require.NoError(t, err)
	assert.Equal(t, models.RiskCritical, got.RiskLevel)
	assert.Equal(t, 7, got.MaliciousCount)

	now = now.Add(2 * time.Hour)
	got, err = s.CachedReputation(ctx, rec.URL)
	require.NoError(t, err)
	assert.Nil(t, got, "expired verdicts are not served")

	n, err := s.PurgeExpiredReputation(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestStore_Audit(t *testing.T) {
	s := openTestStore(t, time.Hour)
	ctx := context.Background()

	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	for i, status := range []string{"allowed", "blocked", "allowed"} {
		require.NoError(t, s.InsertAudit(ctx, models.AuditEntry{
			ID:           "id-" + status + string(rune('a'+i)),
			Actor:        "cli",
			Action:       "download_check",
			SubjectKind:  "url",
			SubjectValue: "https://dl.example/" + string(rune('a'+i)),
			Metadata:     map[string]any{"n": i},
			RiskLevel:    models.RiskSafe,
			Status:       status,
			CreatedAt:    base.Add(time.Duration(i) * time.Minute),
		}))
	}

	entries, err := s.RecentAudit(ctx, 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "https://dl.example/c", entries[0].SubjectValue)
	assert.Equal(t, "blocked", entries[1].Status)
	assert.Equal(t, float64(2), entries[0].Metadata["n"])
	assert.Equal(t, base.Add(2*time.Minute), entries[0].CreatedAt)

	all, err := s.RecentAudit(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestStore_NilIsNotOpen(t *testing.T) {
	t.Parallel()

	var s *Store
	_, err := s.Whitelisted(context.Background(), "x")
	assert.ErrorIs(t, err, ErrNotOpen)
	assert.ErrorIs(t, s.SaveReputation(context.Background(), models.ReputationRecord{}), ErrNotOpen)
	assert.NoError(t, s.Close())
}
