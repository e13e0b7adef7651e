// Package domain contains core business types and interfaces.
//
// This file defines the Report domain type and its delivery status machine.
package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// Report Status
// =============================================================================

// ReportStatus represents the delivery state of a composed report.
//
// Status transitions are owned exclusively by the delivery path (the
// clarification manager and dispatcher); nothing else mutates them.
type ReportStatus string

const (
	// ReportStatusPending indicates a report has been composed but not yet
	// delivered. Reports suspended on authorization stay pending.
	ReportStatusPending ReportStatus = "PENDING"

	// ReportStatusSent indicates the external provider accepted the report.
	ReportStatusSent ReportStatus = "SENT"

	// ReportStatusFailed indicates the external provider rejected the send.
	// A failed report keeps its rendered content so a retry does not
	// re-render.
	ReportStatusFailed ReportStatus = "FAILED"
)

// String returns the string representation of the status.
func (s ReportStatus) String() string {
	return string(s)
}

// IsValid returns true if the status is a recognized value.
func (s ReportStatus) IsValid() bool {
	switch s {
	case ReportStatusPending, ReportStatusSent, ReportStatusFailed:
		return true
	}
	return false
}

// validReportTransitions defines the allowed status transitions.
// SENT is terminal. FAILED may retry straight to SENT.
var validReportTransitions = map[ReportStatus][]ReportStatus{
	ReportStatusPending: {ReportStatusSent, ReportStatusFailed},
	ReportStatusFailed:  {ReportStatusSent, ReportStatusFailed, ReportStatusPending},
	ReportStatusSent:    {},
}

// =============================================================================
// Report Domain Type
// =============================================================================

// Report is a composed compliance report for one inspection.
type Report struct {
	ID                uuid.UUID    // Unique identifier, stable for the record lifetime
	InspectionID      uuid.UUID    // Inspection this report covers
	Recipients        []string     // Email recipients; non-empty before SENT
	Status            ReportStatus // Delivery status
	RenderedContent   string       // Deterministic report body
	ExternalMessageID string       // Provider message ID once delivered
	CreatedAt         time.Time    // When the report was composed
}

// TransitionTo moves the report to a new delivery status. It enforces the
// transition table above and the invariant that a report cannot become SENT
// with an empty recipient list. On error the status is unchanged.
func (r *Report) TransitionTo(status ReportStatus) error {
	if !status.IsValid() {
		return fmt.Errorf("invalid report status: %s", status)
	}
	if status == ReportStatusSent && len(r.Recipients) == 0 {
		return fmt.Errorf("cannot transition report %s to SENT without recipients", r.ID)
	}

	for _, allowed := range validReportTransitions[r.Status] {
		if allowed == status {
			r.Status = status
			return nil
		}
	}
	return fmt.Errorf("cannot transition report from %s to %s", r.Status, status)
}
