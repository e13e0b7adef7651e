package store

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/siteguardhq/siteguard/internal/domain"
)

// MemoryStore is an in-process Store for development and tests.
//
// All state lives behind one RWMutex. ResolveClarification holds the write
// lock for the whole check-and-set, which gives the same exactly-once
// transition guarantee as the conditional UPDATE in PostgresStore.
type MemoryStore struct {
	mu            sync.RWMutex
	inspections   map[uuid.UUID]*domain.Inspection
	inspectionIDs []uuid.UUID // insertion order, oldest first
	reports       map[uuid.UUID]*domain.Report
	clarification map[uuid.UUID]*domain.AuthorizationClarification
	turns         map[string][]domain.ConversationTurn
	credentials   map[string][]byte
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		inspections:   make(map[uuid.UUID]*domain.Inspection),
		reports:       make(map[uuid.UUID]*domain.Report),
		clarification: make(map[uuid.UUID]*domain.AuthorizationClarification),
		turns:         make(map[string][]domain.ConversationTurn),
		credentials:   make(map[string][]byte),
	}
}

func (s *MemoryStore) CreateInspection(ctx context.Context, inspection *domain.Inspection) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := cloneInspection(inspection)
	s.inspections[inspection.ID] = cp
	s.inspectionIDs = append(s.inspectionIDs, inspection.ID)
	return nil
}

func (s *MemoryStore) GetInspection(ctx context.Context, id uuid.UUID) (*domain.Inspection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	inspection, ok := s.inspections[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneInspection(inspection), nil
}

func (s *MemoryStore) ListHistory(ctx context.Context, limit int) ([]domain.HistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := make([]domain.HistoryEntry, 0, len(s.inspectionIDs))
	for i := len(s.inspectionIDs) - 1; i >= 0; i-- {
		if limit > 0 && len(entries) >= limit {
			break
		}
		inspection := s.inspections[s.inspectionIDs[i]]
		entries = append(entries, domain.HistoryEntry{
			InspectionID:    inspection.ID,
			Timestamp:       inspection.Timestamp,
			ViolationsCount: inspection.Counts.Total,
			RiskLevel:       inspection.OverallRiskLevel,
			ReportSent:      s.reportSentLocked(inspection.ID),
		})
	}
	return entries, nil
}

// reportSentLocked reports whether a SENT report exists for the inspection.
// Caller must hold at least the read lock.
func (s *MemoryStore) reportSentLocked(inspectionID uuid.UUID) bool {
	for _, r := range s.reports {
		if r.InspectionID == inspectionID && r.Status == domain.ReportStatusSent {
			return true
		}
	}
	return false
}

func (s *MemoryStore) RecentViolationTypeCounts(ctx context.Context, window int) (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[string]int)
	taken := 0
	for i := len(s.inspectionIDs) - 1; i >= 0 && (window <= 0 || taken < window); i-- {
		inspection := s.inspections[s.inspectionIDs[i]]
		for _, v := range inspection.Violations {
			if v.Type != "" {
				counts[v.Type]++
			}
		}
		taken++
	}
	return counts, nil
}

func (s *MemoryStore) SafetyMetrics(ctx context.Context) (*domain.SafetyMetrics, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	metrics := &domain.SafetyMetrics{
		ViolationTrends: make(map[string]int),
	}

	for _, id := range s.inspectionIDs {
		inspection := s.inspections[id]
		metrics.TotalInspections++
		metrics.TotalViolations += inspection.Counts.Total
		metrics.CriticalViolations += inspection.Counts.Critical
		metrics.EstimatedFinesPrevented += inspection.EstimatedTotalFines
		for _, v := range inspection.Violations {
			if v.Type != "" {
				metrics.ViolationTrends[v.Type]++
			}
		}
	}

	if metrics.TotalInspections > 0 {
		metrics.AverageViolationsPerInspection =
			float64(metrics.TotalViolations) / float64(metrics.TotalInspections)
	}
	metrics.MostCommonViolations = rankViolationTypes(metrics.ViolationTrends)
	return metrics, nil
}

// rankViolationTypes orders types by count descending, name ascending on ties.
func rankViolationTypes(trends map[string]int) []string {
	ranked := make([]string, 0, len(trends))
	for t := range trends {
		ranked = append(ranked, t)
	}
	sort.Slice(ranked, func(i, j int) bool {
		if trends[ranked[i]] != trends[ranked[j]] {
			return trends[ranked[i]] > trends[ranked[j]]
		}
		return ranked[i] < ranked[j]
	})
	return ranked
}

func (s *MemoryStore) CreateReport(ctx context.Context, report *domain.Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *report
	cp.Recipients = append([]string(nil), report.Recipients...)
	s.reports[report.ID] = &cp
	return nil
}

func (s *MemoryStore) GetReport(ctx context.Context, id uuid.UUID) (*domain.Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	report, ok := s.reports[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *report
	cp.Recipients = append([]string(nil), report.Recipients...)
	return &cp, nil
}

func (s *MemoryStore) UpdateReportStatus(ctx context.Context, id uuid.UUID, status domain.ReportStatus, externalMessageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	report, ok := s.reports[id]
	if !ok {
		return ErrNotFound
	}
	report.Status = status
	if externalMessageID != "" {
		report.ExternalMessageID = externalMessageID
	}
	return nil
}

func (s *MemoryStore) CreateClarification(ctx context.Context, c *domain.AuthorizationClarification) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *c
	s.clarification[c.ID] = &cp
	return nil
}

func (s *MemoryStore) GetClarification(ctx context.Context, id uuid.UUID) (*domain.AuthorizationClarification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.clarification[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *MemoryStore) FindUnresolvedClarification(ctx context.Context, actionKey string) (*domain.AuthorizationClarification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, c := range s.clarification {
		if c.ActionKey == actionKey && !c.Resolved {
			cp := *c
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) ResolveClarification(ctx context.Context, id uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.clarification[id]
	if !ok {
		return false, ErrNotFound
	}
	if c.Resolved {
		return false, nil
	}
	c.Resolved = true
	return true, nil
}

func (s *MemoryStore) AppendTurn(ctx context.Context, turn *domain.ConversationTurn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.turns[turn.SessionID] = append(s.turns[turn.SessionID], *turn)
	return nil
}

func (s *MemoryStore) ListTurns(ctx context.Context, sessionID string, limit int) ([]domain.ConversationTurn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	turns := s.turns[sessionID]
	if limit > 0 && len(turns) > limit {
		turns = turns[len(turns)-limit:]
	}
	return append([]domain.ConversationTurn(nil), turns...), nil
}

func (s *MemoryStore) PutCredential(ctx context.Context, provider string, token []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.credentials[provider] = append([]byte(nil), token...)
	return nil
}

func (s *MemoryStore) HasValidCredential(ctx context.Context, provider string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	token, ok := s.credentials[provider]
	return ok && len(token) > 0, nil
}

func cloneInspection(inspection *domain.Inspection) *domain.Inspection {
	cp := *inspection
	cp.Violations = append([]domain.Violation(nil), inspection.Violations...)
	cp.Recommendations = append([]string(nil), inspection.Recommendations...)
	return &cp
}

var _ Store = (*MemoryStore)(nil)
