package authz

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/siteguardhq/siteguard/internal/domain"
	"github.com/siteguardhq/siteguard/internal/store"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// countingDispatcher records replay invocations.
type countingDispatcher struct {
	calls  atomic.Int64
	report *domain.Report
	err    error
}

func (d *countingDispatcher) Replay(ctx context.Context, action domain.Continuation) (*domain.Report, error) {
	d.calls.Add(1)
	return d.report, d.err
}

func newTestManager(t *testing.T) (*Manager, *store.MemoryStore, *countingDispatcher) {
	t.Helper()

	st := store.NewMemoryStore()
	m := NewManager(st, &MockProvider{}, testLogger)
	d := &countingDispatcher{report: &domain.Report{
		ID:         uuid.New(),
		Recipients: []string{"safety@example.com"},
		Status:     domain.ReportStatusSent,
	}}
	m.SetDispatcher(d)
	return m, st, d
}

func testContinuation(t *testing.T) domain.Continuation {
	t.Helper()
	cont, err := domain.NewSendReportContinuation(domain.SendReportArgs{
		ReportID:     uuid.New(),
		InspectionID: uuid.New(),
		Recipients:   []string{"safety@example.com"},
	})
	require.NoError(t, err)
	return cont
}

func TestRequireWithCredentialPassesThrough(t *testing.T) {
	m, st, _ := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, st.PutCredential(ctx, "mock", []byte("token")))

	pending, err := m.Require(ctx, testContinuation(t), "send_report:x")
	require.NoError(t, err)
	assert.Nil(t, pending)
}

func TestRequireSuspendsWithoutCredential(t *testing.T) {
	m, st, _ := newTestManager(t)
	ctx := context.Background()

	pending, err := m.Require(ctx, testContinuation(t), "send_report:x")
	require.NoError(t, err)
	require.NotNil(t, pending)
	assert.NotEmpty(t, pending.AuthorizationURL)

	c, err := st.GetClarification(ctx, pending.ClarificationID)
	require.NoError(t, err)
	assert.False(t, c.Resolved)
	assert.Equal(t, domain.ActionSendReport, c.Action.Kind)
}

func TestRequireReusesUnresolvedClarification(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()

	first, err := m.Require(ctx, testContinuation(t), "send_report:x")
	require.NoError(t, err)
	second, err := m.Require(ctx, testContinuation(t), "send_report:x")
	require.NoError(t, err)

	assert.Equal(t, first.ClarificationID, second.ClarificationID,
		"repeat requests for the same action reuse the open clarification")

	// A different action gets its own clarification.
	third, err := m.Require(ctx, testContinuation(t), "send_report:y")
	require.NoError(t, err)
	assert.NotEqual(t, first.ClarificationID, third.ClarificationID)
}

func TestResolveReplaysOnce(t *testing.T) {
	m, _, d := newTestManager(t)
	ctx := context.Background()

	pending, err := m.Require(ctx, testContinuation(t), "send_report:x")
	require.NoError(t, err)

	res, err := m.Resolve(ctx, pending.ClarificationID)
	require.NoError(t, err)
	assert.False(t, res.AlreadyResolved)
	assert.Equal(t, d.report, res.Report)
	assert.EqualValues(t, 1, d.calls.Load())

	// Second confirmation is an acknowledged no-op.
	res, err = m.Resolve(ctx, pending.ClarificationID)
	require.NoError(t, err)
	assert.True(t, res.AlreadyResolved)
	assert.EqualValues(t, 1, d.calls.Load(), "no second replay")
}

func TestResolveConcurrentConfirmations(t *testing.T) {
	m, _, d := newTestManager(t)
	ctx := context.Background()

	pending, err := m.Require(ctx, testContinuation(t), "send_report:x")
	require.NoError(t, err)

	const confirmations = 16
	var wg sync.WaitGroup
	var replayed atomic.Int64

	for i := 0; i < confirmations; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := m.Resolve(ctx, pending.ClarificationID)
			if err == nil && !res.AlreadyResolved {
				replayed.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, replayed.Load(), "exactly one caller observes the transition")
	assert.EqualValues(t, 1, d.calls.Load(), "exactly one replay")
}

func TestResolveUnknownClarification(t *testing.T) {
	m, _, _ := newTestManager(t)

	_, err := m.Resolve(context.Background(), uuid.New())
	require.Error(t, err)
	assert.Equal(t, domain.ENOTFOUND, domain.ErrorCode(err))
}

func TestResolveReplayFailureStaysResolved(t *testing.T) {
	m, st, d := newTestManager(t)
	ctx := context.Background()
	d.err = errors.New("smtp connection refused")
	d.report = &domain.Report{ID: uuid.New(), Status: domain.ReportStatusFailed}

	pending, err := m.Require(ctx, testContinuation(t), "send_report:x")
	require.NoError(t, err)

	res, err := m.Resolve(ctx, pending.ClarificationID)
	require.Error(t, err)
	require.NotNil(t, res)
	assert.Equal(t, d.report, res.Report, "report survives so its ID can be reported")

	// Authorization completed; the clarification does not reopen.
	c, err := st.GetClarification(ctx, pending.ClarificationID)
	require.NoError(t, err)
	assert.True(t, c.Resolved)
	assert.EqualValues(t, 1, d.calls.Load())
}

func TestConfirmCredentialStoresGrant(t *testing.T) {
	m, st, _ := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, m.ConfirmCredential(ctx, []byte("grant")))

	ok, err := st.HasValidCredential(ctx, "mock")
	require.NoError(t, err)
	assert.True(t, ok)
}
