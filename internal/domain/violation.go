// Package domain contains core business types and interfaces.
//
// This file defines the Violation domain type for safety issues detected
// in construction site photographs.
package domain

import (
	"github.com/google/uuid"
)

// =============================================================================
// Violation Severity
// =============================================================================

// Severity represents the severity level of a detected violation.
type Severity string

const (
	// SeverityLow indicates a low-priority violation that should be addressed
	// during regular maintenance.
	SeverityLow Severity = "LOW"

	// SeverityModerate indicates a violation that should be addressed within
	// 24 hours.
	SeverityModerate Severity = "MODERATE"

	// SeverityCritical indicates an imminent danger requiring an immediate
	// stop-work response.
	SeverityCritical Severity = "CRITICAL"
)

// String returns the string representation of the severity.
func (s Severity) String() string {
	return string(s)
}

// IsValid returns true if the severity is a recognized value.
func (s Severity) IsValid() bool {
	switch s {
	case SeverityLow, SeverityModerate, SeverityCritical:
		return true
	}
	return false
}

// =============================================================================
// Violation Domain Type
// =============================================================================

// Violation represents a single safety issue detected in an analyzed image.
//
// Violations are produced by the vision adapter and are immutable afterwards.
// All loose forms coming back from the model (severity synonyms, preformatted
// fine strings, out-of-range confidence) are normalized once at ingestion.
type Violation struct {
	ID               uuid.UUID // Unique identifier
	Type             string    // Violation category (e.g. "Missing PPE")
	Description      string    // What was observed
	Severity         Severity  // LOW, MODERATE or CRITICAL
	OSHACode         string    // Optional: OSHA regulation citation
	CorrectiveAction string    // Action required to fix the violation
	FineEstimate     *Money    // Optional: estimated regulatory fine
	Location         string    // Optional: where in the image
	Confidence       float64   // Detection confidence in [0, 1]
}

// HasFineEstimate returns true if the violation carries a fine estimate.
func (v *Violation) HasFineEstimate() bool {
	return v.FineEstimate != nil
}

// =============================================================================
// Severity Counts
// =============================================================================

// SeverityCounts aggregates violations by severity for an inspection.
type SeverityCounts struct {
	Critical int
	Moderate int
	Low      int
	Total    int
}

// CalculateSeverityCounts computes severity counts from a list of violations.
// Total always equals the length of the input; unknown severities count toward
// the total only.
func CalculateSeverityCounts(violations []Violation) SeverityCounts {
	counts := SeverityCounts{Total: len(violations)}
	for _, v := range violations {
		switch v.Severity {
		case SeverityCritical:
			counts.Critical++
		case SeverityModerate:
			counts.Moderate++
		case SeverityLow:
			counts.Low++
		}
	}
	return counts
}

// TotalFines sums the fine estimates over a list of violations, treating
// missing estimates as zero.
func TotalFines(violations []Violation) Money {
	var total Money
	for _, v := range violations {
		if v.FineEstimate != nil {
			total += *v.FineEstimate
		}
	}
	return total
}
