// Package risk derives severity counts, overall risk level, recommendations
// and fine estimates from a set of detected violations.
package risk

import (
	"fmt"
	"sort"

	"github.com/siteguardhq/siteguard/internal/domain"
)

// MaxRecommendations caps how many recommendations are surfaced per
// inspection. Lower-priority items are truncated.
const MaxRecommendations = 4

// DefaultHistoryWindow is how many recent inspections feed the
// recurring-violation-type rule.
const DefaultHistoryWindow = 25

// RecentTypeCounts maps violation type to its occurrence count across the
// recent inspection history window.
type RecentTypeCounts map[string]int

// Assessment is the classifier output for one violation set.
type Assessment struct {
	Counts              domain.SeverityCounts
	OverallRiskLevel    domain.RiskLevel
	Recommendations     []string
	EstimatedTotalFines domain.Money
}

// Classify derives the full risk assessment from a violation set.
//
// The function is pure: the same violations and history always produce the
// same assessment. The risk tie-break order is fixed: any critical violation
// dominates, then three or more moderates, then any violation at all.
func Classify(violations []domain.Violation, recent RecentTypeCounts) Assessment {
	counts := domain.CalculateSeverityCounts(violations)

	return Assessment{
		Counts:              counts,
		OverallRiskLevel:    riskLevel(counts),
		Recommendations:     recommendations(violations, counts, recent),
		EstimatedTotalFines: domain.TotalFines(violations),
	}
}

// riskLevel applies the fixed tie-break order.
func riskLevel(counts domain.SeverityCounts) domain.RiskLevel {
	switch {
	case counts.Critical > 0:
		return domain.RiskCritical
	case counts.Moderate >= 3:
		return domain.RiskMedium
	case counts.Total > 0:
		return domain.RiskLow
	default:
		return domain.RiskNone
	}
}

// recommendations evaluates the fixed pattern rules in priority order,
// truncating at MaxRecommendations.
func recommendations(violations []domain.Violation, counts domain.SeverityCounts, recent RecentTypeCounts) []string {
	recs := make([]string, 0, MaxRecommendations)

	// 1. Critical violations demand a stop-work response.
	if counts.Critical > 0 {
		recs = append(recs, fmt.Sprintf(
			"Stop work immediately in affected areas: %d critical violation(s) must be corrected before operations resume.",
			counts.Critical,
		))
	}

	// 2. Any violation warrants a distributed compliance report.
	if counts.Total > 0 {
		recs = append(recs, "Generate a compliance report and send it to the safety team.")
	}

	// 3. High-severity or accumulating sites need a follow-up inspection.
	if counts.Critical > 0 || counts.Moderate >= 3 {
		recs = append(recs, "Schedule a follow-up inspection within 48 hours to verify corrective actions.")
	}

	// 4. A violation type seen repeatedly in recent history is a pattern,
	// not an incident.
	if t := recurringType(violations, recent); t != "" {
		recs = append(recs, fmt.Sprintf(
			"%q has recurred across recent inspections; review site-wide controls and training for this hazard.", t,
		))
	}

	// 5. A clean inspection gets a positive acknowledgment.
	if counts.Total == 0 {
		recs = append(recs, "No violations detected. The site appears to follow proper safety protocols; maintain current practices.")
	}

	if len(recs) > MaxRecommendations {
		recs = recs[:MaxRecommendations]
	}
	return recs
}

// recurringType returns the most frequent violation type that both appears in
// the current set and has prior occurrences in the recent history window.
// Ties break alphabetically so the output stays deterministic.
func recurringType(violations []domain.Violation, recent RecentTypeCounts) string {
	if len(recent) == 0 {
		return ""
	}

	seen := make(map[string]bool, len(violations))
	candidates := make([]string, 0, len(violations))
	for _, v := range violations {
		if v.Type == "" || seen[v.Type] {
			continue
		}
		seen[v.Type] = true
		if recent[v.Type] > 0 {
			candidates = append(candidates, v.Type)
		}
	}
	if len(candidates) == 0 {
		return ""
	}

	sort.Slice(candidates, func(i, j int) bool {
		if recent[candidates[i]] != recent[candidates[j]] {
			return recent[candidates[i]] > recent[candidates[j]]
		}
		return candidates[i] < candidates[j]
	})
	return candidates[0]
}
