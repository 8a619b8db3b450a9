package security

import "github.com/alvarorichard/gocatalog/internal/models"

// criticalThreshold is the malicious engine count that blocks outright
const criticalThreshold = 4

// AssessRiskLevel classifies scanner counts:
//
//	malicious >= 4          critical
//	malicious 1-3           warning
//	0 malicious, suspicious warning
//	nothing flagged         safe
func AssessRiskLevel(malicious, suspicious int) models.RiskLevel {
	switch {
	case malicious >= criticalThreshold:
		return models.RiskCritical
	case malicious > 0:
		return models.RiskWarning
	case suspicious > 0:
		return models.RiskWarning
	default:
		return models.RiskSafe
	}
}

// CombineRisk folds any number of source verdicts: critical wins, then warning, else safe
func CombineRisk(levels ...models.RiskLevel) models.RiskLevel {
	out := models.RiskSafe
	for _, l := range levels {
		out = models.MaxRisk(out, l)
	}
	return out
}
