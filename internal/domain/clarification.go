// Package domain contains core business types and interfaces.
//
// This file defines the AuthorizationClarification type and the replayable
// continuation stored against it while an outbound action is suspended
// waiting for delegated authorization.
package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// Continuation
// =============================================================================

// ActionKind identifies the kind of a suspended action.
type ActionKind string

const (
	// ActionSendReport is the delivery of a composed report via email.
	ActionSendReport ActionKind = "send_report"
)

// IsValid returns true if the action kind is recognized.
func (k ActionKind) IsValid() bool {
	return k == ActionSendReport
}

// Continuation is a tagged, replayable description of a suspended operation.
// The payload captures the original arguments so the action can be replayed
// server-side once authorization completes, with no client involvement.
type Continuation struct {
	Kind    ActionKind      `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

// SendReportArgs are the arguments of a suspended report delivery.
type SendReportArgs struct {
	ReportID     uuid.UUID `json:"report_id"`
	InspectionID uuid.UUID `json:"inspection_id"`
	Recipients   []string  `json:"recipients"`
}

// NewSendReportContinuation builds a continuation for a suspended delivery.
func NewSendReportContinuation(args SendReportArgs) (Continuation, error) {
	payload, err := json.Marshal(args)
	if err != nil {
		return Continuation{}, fmt.Errorf("marshal send_report continuation: %w", err)
	}
	return Continuation{Kind: ActionSendReport, Payload: payload}, nil
}

// SendReportArgs decodes the payload of a send_report continuation.
func (c Continuation) SendReportArgs() (SendReportArgs, error) {
	if c.Kind != ActionSendReport {
		return SendReportArgs{}, fmt.Errorf("continuation is %q, not %q", c.Kind, ActionSendReport)
	}
	var args SendReportArgs
	if err := json.Unmarshal(c.Payload, &args); err != nil {
		return SendReportArgs{}, fmt.Errorf("decode send_report continuation: %w", err)
	}
	return args, nil
}

// =============================================================================
// Authorization Clarification
// =============================================================================

// AuthorizationClarification records a suspended action awaiting delegated
// authorization from the human operator.
//
// At most one unresolved clarification exists per suspended action, and
// resolution is idempotent: resolving an already-resolved clarification is a
// no-op. The core imposes no expiry; an unconfirmed clarification stays
// requested indefinitely.
type AuthorizationClarification struct {
	ID               uuid.UUID    // Unique identifier
	AuthorizationURL string       // Where the human completes authorization
	Action           Continuation // The suspended operation
	ActionKey        string       // Stable identity of the suspended action (e.g. report ID)
	CreatedAt        time.Time    // When the action was suspended
	Resolved         bool         // Whether authorization completed and replay ran
}
