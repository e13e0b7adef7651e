package domain

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReportTransitions(t *testing.T) {
	tests := []struct {
		name    string
		from    ReportStatus
		to      ReportStatus
		wantErr bool
	}{
		{"pending to sent", ReportStatusPending, ReportStatusSent, false},
		{"pending to failed", ReportStatusPending, ReportStatusFailed, false},
		{"failed to sent", ReportStatusFailed, ReportStatusSent, false},
		{"failed to failed", ReportStatusFailed, ReportStatusFailed, false},
		{"failed to pending", ReportStatusFailed, ReportStatusPending, false},
		{"sent is terminal", ReportStatusSent, ReportStatusPending, true},
		{"sent to failed rejected", ReportStatusSent, ReportStatusFailed, true},
		{"pending to pending rejected", ReportStatusPending, ReportStatusPending, true},
		{"invalid target", ReportStatusPending, ReportStatus("DELIVERED"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &Report{
				ID:         uuid.New(),
				Recipients: []string{"safety@example.com"},
				Status:     tt.from,
			}

			err := r.TransitionTo(tt.to)
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, tt.from, r.Status, "status must be unchanged on rejected transition")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.to, r.Status)
		})
	}
}

func TestReportCannotSendWithoutRecipients(t *testing.T) {
	r := &Report{
		ID:     uuid.New(),
		Status: ReportStatusPending,
	}

	err := r.TransitionTo(ReportStatusSent)
	require.Error(t, err)
	assert.Equal(t, ReportStatusPending, r.Status)

	// FAILED is still reachable without recipients.
	require.NoError(t, r.TransitionTo(ReportStatusFailed))
}

func TestSendReportContinuationRoundTrip(t *testing.T) {
	args := SendReportArgs{
		ReportID:     uuid.New(),
		InspectionID: uuid.New(),
		Recipients:   []string{"a@example.com", "b@example.com"},
	}

	cont, err := NewSendReportContinuation(args)
	require.NoError(t, err)
	assert.Equal(t, ActionSendReport, cont.Kind)

	decoded, err := cont.SendReportArgs()
	require.NoError(t, err)
	assert.Equal(t, args, decoded)
}

func TestContinuationKindMismatch(t *testing.T) {
	cont := Continuation{Kind: ActionKind("other"), Payload: []byte(`{}`)}

	_, err := cont.SendReportArgs()
	require.Error(t, err)
}
