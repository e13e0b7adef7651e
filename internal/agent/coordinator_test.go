package agent

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/siteguardhq/siteguard/internal/authz"
	"github.com/siteguardhq/siteguard/internal/domain"
	"github.com/siteguardhq/siteguard/internal/store"
	"github.com/siteguardhq/siteguard/internal/vision"
	visionmock "github.com/siteguardhq/siteguard/internal/vision/mock"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// fakeMailer records deliveries and can be made to fail.
type fakeMailer struct {
	sent       int
	lastTo     []string
	lastBody   string
	deliverErr error
}

func (m *fakeMailer) SendComplianceReport(ctx context.Context, recipients []string, subject, body string) (string, error) {
	if m.deliverErr != nil {
		return "", m.deliverErr
	}
	m.sent++
	m.lastTo = recipients
	m.lastBody = body
	return "msg-" + uuid.NewString(), nil
}

type fixture struct {
	coordinator *Coordinator
	store       *store.MemoryStore
	analyzer    *visionmock.Provider
	mailer      *fakeMailer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	st := store.NewMemoryStore()
	analyzer := visionmock.New(testLogger)
	mailer := &fakeMailer{}
	manager := authz.NewManager(st, &authz.MockProvider{}, testLogger)

	c := New(Options{
		Analyzer:          analyzer,
		Store:             st,
		Authz:             manager,
		Email:             mailer,
		Logger:            testLogger,
		DefaultRecipients: []string{"safety@example.com"},
	})
	return &fixture{coordinator: c, store: st, analyzer: analyzer, mailer: mailer}
}

// minimal 1x1 PNG
var tinyPNG = []byte{
	0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a,
	0x00, 0x00, 0x00, 0x0d, 0x49, 0x48, 0x44, 0x52,
	0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01,
	0x08, 0x06, 0x00, 0x00, 0x00, 0x1f, 0x15, 0xc4,
	0x89, 0x00, 0x00, 0x00, 0x0d, 0x49, 0x44, 0x41,
	0x54, 0x78, 0x9c, 0x62, 0x00, 0x01, 0x00, 0x00,
	0x05, 0x00, 0x01, 0x0d, 0x0a, 0x2d, 0xb4, 0x00,
	0x00, 0x00, 0x00, 0x49, 0x45, 0x4e, 0x44, 0xae,
	0x42, 0x60, 0x82,
}

func imageTurn(session string) TurnRequest {
	return TurnRequest{
		SessionID:        session,
		Message:          "check this scaffold",
		ImageData:        tinyPNG,
		ImageFilename:    "scaffold.png",
		ImageContentType: "image/png",
		SiteID:           "site-42",
	}
}

func TestHandleTurnTextOnly(t *testing.T) {
	f := newFixture(t)

	resp, err := f.coordinator.HandleTurn(context.Background(), TurnRequest{
		SessionID: "s1",
		Message:   "what can you do?",
	})
	require.NoError(t, err)

	assert.Equal(t, domain.MessageTypeText, resp.MessageType)
	assert.Contains(t, resp.Response, "analyze construction site photos")
	assert.Zero(t, f.analyzer.AnalyzeCalls)

	turns, err := f.store.ListTurns(context.Background(), "s1", 10)
	require.NoError(t, err)
	assert.Len(t, turns, 2)
}

func TestHandleTurnWithPhoto(t *testing.T) {
	f := newFixture(t)

	resp, err := f.coordinator.HandleTurn(context.Background(), imageTurn("s1"))
	require.NoError(t, err)

	require.Equal(t, domain.MessageTypeImageAnalysis, resp.MessageType)
	require.Nil(t, resp.Error)
	assert.Contains(t, resp.Response, "2 safety violations")
	assert.Contains(t, resp.Response, "1 critical")

	data, ok := resp.Data.(ImageAnalysisData)
	require.True(t, ok)
	assert.Equal(t, "CRITICAL", data.Inspection.OverallRiskLevel)
	assert.Equal(t, 2, data.Inspection.TotalCount)
	assert.Equal(t, "site-42", data.Inspection.SiteID)
	assert.Equal(t, "$18,502", data.Inspection.EstimatedTotalFines)
	assert.NotEmpty(t, data.Inspection.Recommendations)

	// The inspection is persisted with its violations.
	stored, err := f.store.GetInspection(context.Background(), data.Inspection.ID)
	require.NoError(t, err)
	assert.Len(t, stored.Violations, 2)
	assert.Equal(t, domain.RiskCritical, stored.OverallRiskLevel)
}

func TestHandleTurnCleanPhoto(t *testing.T) {
	f := newFixture(t)
	f.analyzer.AnalyzeResponse = []domain.Violation{}

	resp, err := f.coordinator.HandleTurn(context.Background(), imageTurn("s1"))
	require.NoError(t, err)

	require.Equal(t, domain.MessageTypeImageAnalysis, resp.MessageType)
	assert.Contains(t, resp.Response, "no safety violations")

	data := resp.Data.(ImageAnalysisData)
	assert.Equal(t, "NONE", data.Inspection.OverallRiskLevel)
	assert.Empty(t, data.Inspection.Violations)
}

func TestHandleTurnAnalysisFailures(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode string
	}{
		{"timeout", vision.ErrAnalysisTimeout, ErrCodeAnalysisTimeout},
		{"invalid image", vision.ErrInvalidImage, ErrCodeInvalidImage},
		{"malformed result", vision.ErrAnalysisMalformed, ErrCodeAnalysisMalformed},
		{"unavailable", vision.ErrUnavailable, ErrCodeAnalysisUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.analyzer.AnalyzeError = tt.err

			resp, err := f.coordinator.HandleTurn(context.Background(), imageTurn("s1"))
			require.NoError(t, err, "analysis failures are turn outcomes, not errors")

			assert.Equal(t, domain.MessageTypeText, resp.MessageType)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.wantCode, resp.Error.Code)
			assert.Nil(t, resp.Data, "no partial inspection on failure")
		})
	}
}

func TestGenerateReportDeliversWithCredential(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Credential already on file: no suspension.
	require.NoError(t, f.store.PutCredential(ctx, "mock", []byte("token")))

	turnResp, err := f.coordinator.HandleTurn(ctx, imageTurn("s1"))
	require.NoError(t, err)
	inspectionID := turnResp.Data.(ImageAnalysisData).Inspection.ID

	resp, err := f.coordinator.GenerateReport(ctx, ReportRequest{
		SessionID:    "s1",
		InspectionID: inspectionID,
	})
	require.NoError(t, err)

	require.Equal(t, domain.MessageTypeReport, resp.MessageType)
	data := resp.Data.(ReportData)
	assert.Equal(t, "SENT", data.Status)
	assert.Equal(t, []string{"safety@example.com"}, data.Recipients)
	assert.Contains(t, data.Content, "CONSTRUCTION SITE SAFETY COMPLIANCE REPORT")
	assert.Equal(t, 1, f.mailer.sent)
	assert.Equal(t, []string{"safety@example.com"}, f.mailer.lastTo)
	assert.Equal(t, data.Content, f.mailer.lastBody)

	stored, err := f.store.GetReport(ctx, data.ReportID)
	require.NoError(t, err)
	assert.Equal(t, domain.ReportStatusSent, stored.Status)
	assert.NotEmpty(t, stored.ExternalMessageID)
}

func TestGenerateReportUnknownInspection(t *testing.T) {
	f := newFixture(t)

	resp, err := f.coordinator.GenerateReport(context.Background(), ReportRequest{
		InspectionID: uuid.New(),
	})
	require.NoError(t, err)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeNotFound, resp.Error.Code)
	assert.Zero(t, f.mailer.sent)
}

func TestGenerateReportDeliveryFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.PutCredential(ctx, "mock", []byte("token")))
	f.mailer.deliverErr = errors.New("smtp connection refused")

	turnResp, err := f.coordinator.HandleTurn(ctx, imageTurn("s1"))
	require.NoError(t, err)
	inspectionID := turnResp.Data.(ImageAnalysisData).Inspection.ID

	resp, err := f.coordinator.GenerateReport(ctx, ReportRequest{InspectionID: inspectionID})
	require.NoError(t, err)

	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeDeliveryFailed, resp.Error.Code)
	assert.True(t, resp.Error.Retryable)

	// The report ID is preserved and the report is marked FAILED.
	data := resp.Data.(ReportData)
	stored, err := f.store.GetReport(ctx, data.ReportID)
	require.NoError(t, err)
	assert.Equal(t, domain.ReportStatusFailed, stored.Status)
}

// TestSuspendAndResume walks the full delegated-authorization flow: report
// request without a credential suspends; confirmation resolves and delivers
// the originally composed report; duplicate confirmation is a no-op.
func TestSuspendAndResume(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	turnResp, err := f.coordinator.HandleTurn(ctx, imageTurn("s1"))
	require.NoError(t, err)
	inspectionID := turnResp.Data.(ImageAnalysisData).Inspection.ID

	// No credential on file: delivery suspends.
	resp, err := f.coordinator.GenerateReport(ctx, ReportRequest{
		SessionID:    "s1",
		InspectionID: inspectionID,
	})
	require.NoError(t, err)

	require.Equal(t, domain.MessageTypeOAuth, resp.MessageType)
	assert.NotEmpty(t, resp.ClarificationURL)
	oauthData := resp.Data.(OAuthData)
	suspendedReportID := oauthData.ReportID
	assert.Zero(t, f.mailer.sent, "nothing is delivered while suspended")

	// The suspended report sits PENDING.
	pendingReport, err := f.store.GetReport(ctx, suspendedReportID)
	require.NoError(t, err)
	assert.Equal(t, domain.ReportStatusPending, pendingReport.Status)

	// A repeat request reuses the open clarification.
	again, err := f.coordinator.GenerateReport(ctx, ReportRequest{InspectionID: inspectionID})
	require.NoError(t, err)
	assert.Equal(t, oauthData.ClarificationID, again.Data.(OAuthData).ClarificationID)

	// Human completes authorization; the confirmation arrives.
	confirm, err := f.coordinator.ResolveAuthorization(ctx, oauthData.ClarificationID, []byte("granted-token"))
	require.NoError(t, err)

	require.Equal(t, domain.MessageTypeReport, confirm.MessageType)
	confirmData := confirm.Data.(ReportData)
	assert.Equal(t, suspendedReportID, confirmData.ReportID,
		"the delivered report is the one composed before suspension")
	assert.Equal(t, "SENT", confirmData.Status)
	assert.Equal(t, 1, f.mailer.sent)

	// Duplicate confirmation acknowledges without a second delivery.
	dup, err := f.coordinator.ResolveAuthorization(ctx, oauthData.ClarificationID, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.MessageTypeText, dup.MessageType)
	assert.Equal(t, 1, f.mailer.sent, "exactly one delivery")

	// Subsequent report requests deliver directly with the stored credential.
	direct, err := f.coordinator.GenerateReport(ctx, ReportRequest{InspectionID: inspectionID})
	require.NoError(t, err)
	assert.Equal(t, domain.MessageTypeReport, direct.MessageType)
	assert.Equal(t, 2, f.mailer.sent)
}

func TestReplayIsIdempotentForSentReports(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rpt := &domain.Report{
		ID:           uuid.New(),
		InspectionID: uuid.New(),
		Recipients:   []string{"safety@example.com"},
		Status:       domain.ReportStatusSent,
	}
	require.NoError(t, f.store.CreateReport(ctx, rpt))

	cont, err := domain.NewSendReportContinuation(domain.SendReportArgs{
		ReportID:     rpt.ID,
		InspectionID: rpt.InspectionID,
		Recipients:   rpt.Recipients,
	})
	require.NoError(t, err)

	replayed, err := f.coordinator.Replay(ctx, cont)
	require.NoError(t, err)
	assert.Equal(t, rpt.ID, replayed.ID)
	assert.Zero(t, f.mailer.sent, "a SENT report never delivers again")
}

func TestHistoryAndSafetyMetricsPassthrough(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.coordinator.HandleTurn(ctx, imageTurn("s1"))
	require.NoError(t, err)

	entries, err := f.coordinator.History(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 2, entries[0].ViolationsCount)
	assert.False(t, entries[0].ReportSent)

	m, err := f.coordinator.SafetyMetrics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, m.TotalInspections)
	assert.Equal(t, 2, m.TotalViolations)
	assert.Equal(t, 1, m.CriticalViolations)
}

