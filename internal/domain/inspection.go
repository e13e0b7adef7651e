// Package domain contains core business types and interfaces.
//
// This file defines the Inspection domain type, the record produced by
// analyzing a single construction site photograph.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// Risk Level
// =============================================================================

// RiskLevel represents the overall risk assessment of an inspection.
type RiskLevel string

const (
	// RiskNone indicates a clean inspection with zero violations.
	RiskNone RiskLevel = "NONE"

	// RiskLow indicates only low-impact violations were found.
	RiskLow RiskLevel = "LOW"

	// RiskMedium indicates an accumulation of moderate violations.
	RiskMedium RiskLevel = "MEDIUM"

	// RiskCritical indicates at least one critical violation. Presence of any
	// critical violation dominates regardless of other counts.
	RiskCritical RiskLevel = "CRITICAL"
)

// String returns the string representation of the risk level.
func (r RiskLevel) String() string {
	return string(r)
}

// IsValid returns true if the risk level is a recognized value.
func (r RiskLevel) IsValid() bool {
	switch r {
	case RiskNone, RiskLow, RiskMedium, RiskCritical:
		return true
	}
	return false
}

// =============================================================================
// Inspection Domain Type
// =============================================================================

// Inspection is the record produced by analyzing one uploaded photograph.
//
// The derived fields (Counts, OverallRiskLevel, Recommendations,
// EstimatedTotalFines) are always recomputed from Violations by the risk
// classifier and are never set independently. An Inspection is owned by the
// coordinator until persisted; afterwards it is referenced by ID only.
type Inspection struct {
	ID                  uuid.UUID      // Unique identifier, generated at creation
	SiteID              string         // Optional: construction site identifier
	Timestamp           time.Time      // When the analysis was performed
	ImageReference      string         // Storage key of the analyzed photograph
	ImageFilename       string         // Original upload filename
	Violations          []Violation    // Ordered as returned by the adapter
	Counts              SeverityCounts // Derived from Violations
	OverallRiskLevel    RiskLevel      // Derived from Violations
	Recommendations     []string       // Derived, priority ordered
	EstimatedTotalFines Money          // Derived sum of fine estimates
}

// HistoryEntry is the summary row returned by history queries, newest first.
type HistoryEntry struct {
	InspectionID    uuid.UUID
	Timestamp       time.Time
	ViolationsCount int
	RiskLevel       RiskLevel
	ReportSent      bool
}

// SafetyMetrics aggregates outcomes across the full inspection history.
type SafetyMetrics struct {
	TotalInspections               int
	TotalViolations                int
	CriticalViolations             int
	ViolationTrends                map[string]int // violation type -> count
	MostCommonViolations           []string       // ranked by count, descending
	AverageViolationsPerInspection float64
	EstimatedFinesPrevented        Money
}
