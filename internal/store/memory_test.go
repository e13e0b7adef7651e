package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/siteguardhq/siteguard/internal/domain"
)

func storedInspection(violations ...domain.Violation) *domain.Inspection {
	counts := domain.CalculateSeverityCounts(violations)
	return &domain.Inspection{
		ID:                  uuid.New(),
		Timestamp:           time.Now().UTC(),
		Violations:          violations,
		Counts:              counts,
		OverallRiskLevel:    domain.RiskLow,
		EstimatedTotalFines: domain.TotalFines(violations),
	}
}

func TestInspectionRoundTrip(t *testing.T) {
	st := NewMemoryStore()
	ctx := context.Background()

	fine := domain.NewMoneyFromDollars(5000)
	in := storedInspection(domain.Violation{
		ID:           uuid.New(),
		Type:         "Missing PPE",
		Description:  "no hard hat",
		Severity:     domain.SeverityModerate,
		FineEstimate: &fine,
	})

	require.NoError(t, st.CreateInspection(ctx, in))

	got, err := st.GetInspection(ctx, in.ID)
	require.NoError(t, err)
	assert.Equal(t, in, got)

	// The stored copy is isolated from caller mutation.
	got.Violations[0].Type = "mutated"
	again, err := st.GetInspection(ctx, in.ID)
	require.NoError(t, err)
	assert.Equal(t, "Missing PPE", again.Violations[0].Type)

	_, err = st.GetInspection(ctx, uuid.New())
	assert.True(t, IsNotFound(err))
}

func TestListHistoryNewestFirst(t *testing.T) {
	st := NewMemoryStore()
	ctx := context.Background()

	var ids []uuid.UUID
	for i := 0; i < 3; i++ {
		in := storedInspection()
		in.Timestamp = time.Date(2026, 3, 1+i, 0, 0, 0, 0, time.UTC)
		require.NoError(t, st.CreateInspection(ctx, in))
		ids = append(ids, in.ID)
	}

	entries, err := st.ListHistory(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, ids[2], entries[0].InspectionID)
	assert.Equal(t, ids[0], entries[2].InspectionID)

	limited, err := st.ListHistory(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestHistoryReportSentFlag(t *testing.T) {
	st := NewMemoryStore()
	ctx := context.Background()

	in := storedInspection()
	require.NoError(t, st.CreateInspection(ctx, in))

	rpt := &domain.Report{
		ID:           uuid.New(),
		InspectionID: in.ID,
		Recipients:   []string{"safety@example.com"},
		Status:       domain.ReportStatusPending,
		CreatedAt:    time.Now().UTC(),
	}
	require.NoError(t, st.CreateReport(ctx, rpt))

	entries, err := st.ListHistory(ctx, 10)
	require.NoError(t, err)
	assert.False(t, entries[0].ReportSent, "pending report is not sent")

	require.NoError(t, st.UpdateReportStatus(ctx, rpt.ID, domain.ReportStatusSent, "msg-1"))

	entries, err = st.ListHistory(ctx, 10)
	require.NoError(t, err)
	assert.True(t, entries[0].ReportSent)
}

func TestRecentViolationTypeCounts(t *testing.T) {
	st := NewMemoryStore()
	ctx := context.Background()

	mkViolation := func(vtype string) domain.Violation {
		return domain.Violation{ID: uuid.New(), Type: vtype, Severity: domain.SeverityLow}
	}

	// Oldest inspection falls outside a window of 2.
	require.NoError(t, st.CreateInspection(ctx, storedInspection(mkViolation("Equipment Safety"))))
	require.NoError(t, st.CreateInspection(ctx, storedInspection(mkViolation("Missing PPE"))))
	require.NoError(t, st.CreateInspection(ctx, storedInspection(mkViolation("Missing PPE"), mkViolation("Fall Protection"))))

	counts, err := st.RecentViolationTypeCounts(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"Missing PPE": 2, "Fall Protection": 1}, counts)
}

func TestSafetyMetricsAggregation(t *testing.T) {
	st := NewMemoryStore()
	ctx := context.Background()

	m, err := st.SafetyMetrics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, m.TotalInspections)
	assert.Equal(t, 0.0, m.AverageViolationsPerInspection)

	fine := domain.NewMoneyFromDollars(14502)
	require.NoError(t, st.CreateInspection(ctx, storedInspection(
		domain.Violation{ID: uuid.New(), Type: "Fall Protection", Severity: domain.SeverityCritical, FineEstimate: &fine},
		domain.Violation{ID: uuid.New(), Type: "Missing PPE", Severity: domain.SeverityModerate},
	)))
	require.NoError(t, st.CreateInspection(ctx, storedInspection(
		domain.Violation{ID: uuid.New(), Type: "Missing PPE", Severity: domain.SeverityLow},
	)))
	require.NoError(t, st.CreateInspection(ctx, storedInspection()))

	m, err = st.SafetyMetrics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, m.TotalInspections)
	assert.Equal(t, 3, m.TotalViolations)
	assert.Equal(t, 1, m.CriticalViolations)
	assert.Equal(t, map[string]int{"Fall Protection": 1, "Missing PPE": 2}, m.ViolationTrends)
	assert.Equal(t, []string{"Missing PPE", "Fall Protection"}, m.MostCommonViolations)
	assert.InDelta(t, 1.0, m.AverageViolationsPerInspection, 0.0001)
	assert.Equal(t, domain.NewMoneyFromDollars(14502), m.EstimatedFinesPrevented)
}

func TestResolveClarificationOnce(t *testing.T) {
	st := NewMemoryStore()
	ctx := context.Background()

	c := &domain.AuthorizationClarification{
		ID:               uuid.New(),
		AuthorizationURL: "http://localhost/oauth",
		ActionKey:        "send_report:x",
		CreatedAt:        time.Now().UTC(),
	}
	require.NoError(t, st.CreateClarification(ctx, c))

	found, err := st.FindUnresolvedClarification(ctx, "send_report:x")
	require.NoError(t, err)
	assert.Equal(t, c.ID, found.ID)

	transitioned, err := st.ResolveClarification(ctx, c.ID)
	require.NoError(t, err)
	assert.True(t, transitioned)

	transitioned, err = st.ResolveClarification(ctx, c.ID)
	require.NoError(t, err)
	assert.False(t, transitioned, "second resolution is a no-op")

	_, err = st.FindUnresolvedClarification(ctx, "send_report:x")
	assert.True(t, IsNotFound(err))
}

func TestListTurnsOldestFirst(t *testing.T) {
	st := NewMemoryStore()
	ctx := context.Background()

	for i, content := range []string{"first", "second", "third"} {
		require.NoError(t, st.AppendTurn(ctx, &domain.ConversationTurn{
			ID:          uuid.New(),
			SessionID:   "s1",
			Role:        domain.RoleUser,
			Content:     content,
			MessageType: domain.MessageTypeText,
			Timestamp:   time.Date(2026, 3, 1, 8, i, 0, 0, time.UTC),
		}))
	}

	turns, err := st.ListTurns(ctx, "s1", 10)
	require.NoError(t, err)
	require.Len(t, turns, 3)
	assert.Equal(t, "first", turns[0].Content)
	assert.Equal(t, "third", turns[2].Content)

	// Limit keeps the most recent turns, still oldest first.
	turns, err = st.ListTurns(ctx, "s1", 2)
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, "second", turns[0].Content)
}
