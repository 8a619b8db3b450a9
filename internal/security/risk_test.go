package security

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/alvarorichard/gocatalog/internal/models"
)

func TestAssessRiskLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		malicious, suspicious int
		want                  models.RiskLevel
	}{
		{5, 2, models.RiskCritical},
		{4, 0, models.RiskCritical},
		{3, 0, models.RiskWarning},
		{1, 9, models.RiskWarning},
		{0, 2, models.RiskWarning},
		{0, 0, models.RiskSafe},
		{-1, 0, models.RiskSafe},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, AssessRiskLevel(tt.malicious, tt.suspicious), "m=%d s=%d", tt.malicious, tt.suspicious)
	}
}

func TestCombineRisk(t *testing.T) {
	t.Parallel()

	assert.Equal(t, models.RiskSafe, CombineRisk())
	assert.Equal(t, models.RiskWarning, CombineRisk(models.RiskSafe, models.RiskWarning, models.RiskSafe))
	assert.Equal(t, models.RiskCritical, CombineRisk(models.RiskWarning, models.RiskCritical, models.RiskWarning))
}

func TestExtractDomain(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"https://CDN.Example.com/path?q=1": "cdn.example.com",
		"http://example.com:8080/x":        "example.com",
		"example.org/file.zip":             "example.org",
		"https://example.net./":            "example.net",
		"http://[::1]:9000/":               "::1",
		"":                                 "",
		"http://[::1":                      "",
	}
	for in, want := range tests {
		assert.Equal(t, want, ExtractDomain(in), in)
	}
}

func TestDomainCandidates(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{"a.b.example.co.uk", "b.example.co.uk", "example.co.uk"}, DomainCandidates("a.b.example.co.uk"))
	assert.Equal(t, []string{"example.com"}, DomainCandidates("example.com"))
	assert.Equal(t, []string{"10.0.0.1"}, DomainCandidates("10.0.0.1"))
	assert.Equal(t, []string{"localhost"}, DomainCandidates("localhost"))
	assert.Nil(t, DomainCandidates(""))
}
