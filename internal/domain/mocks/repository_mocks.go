package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/trafficlens/trafficlens/internal/domain"
)

// MockEventStore is a mock implementation of domain.EventStore for testing.
type MockEventStore struct {
	mu             sync.Mutex
	WrittenEvents  []domain.NormalizedEvent
	WrittenBatches int
	Cursors        []domain.IngestionCursor
	WriteErr       error
	LatestErr      error
	AppendErr      error

	// FailAfterBatches aborts WriteEventBatch with WriteErr once this many
	// batches have been accepted. Zero means WriteErr (if set) fires on the
	// first batch.
	FailAfterBatches int
}

func (m *MockEventStore) WriteEventBatch(_ context.Context, events []domain.NormalizedEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.WriteErr != nil && m.WrittenBatches >= m.FailAfterBatches {
		return m.WriteErr
	}
	m.WrittenEvents = append(m.WrittenEvents, events...)
	m.WrittenBatches++
	return nil
}

func (m *MockEventStore) LatestCursor(_ context.Context) (*domain.IngestionCursor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.LatestErr != nil {
		return nil, m.LatestErr
	}
	if len(m.Cursors) == 0 {
		return nil, nil
	}
	latest := m.Cursors[0]
	for _, c := range m.Cursors[1:] {
		if c.CreatedAt.After(latest.CreatedAt) {
			latest = c
		}
	}
	return &latest, nil
}

func (m *MockEventStore) AppendCursor(_ context.Context, cursor domain.IngestionCursor) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.AppendErr != nil {
		return m.AppendErr
	}
	m.Cursors = append(m.Cursors, cursor)
	return nil
}

// MockLogSource is a mock implementation of domain.LogSource for testing.
type MockLogSource struct {
	mu       sync.Mutex
	Records  []domain.RawLogRecord
	FetchErr error
	Fetches  []time.Time
}

func (m *MockLogSource) FetchSince(_ context.Context, since time.Time) ([]domain.RawLogRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Fetches = append(m.Fetches, since)
	if m.FetchErr != nil {
		return nil, m.FetchErr
	}
	var out []domain.RawLogRecord
	for _, r := range m.Records {
		if r.Timestamp.After(since) {
			out = append(out, r)
		}
	}
	return out, nil
}

// MockReputationService is a mock implementation of domain.ReputationService.
type MockReputationService struct {
	mu      sync.Mutex
	Banned  []string
	ListErr error
	Calls   int
}

func (m *MockReputationService) ListBannedAddresses(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls++
	if m.ListErr != nil {
		return nil, m.ListErr
	}
	return append([]string(nil), m.Banned...), nil
}

func (m *MockReputationService) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Calls
}
