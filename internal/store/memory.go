package store

import (
	"context"
	"sync"
	"time"

	"github.com/monlabs/monwatch/internal/models"
)

// Memory is an in-process Store used by tests and by runs without a
// configured database. Everything lives behind one mutex; the monitor
// is a single pipeline, so contention is not a concern.
type Memory struct {
	mu        sync.Mutex
	nextID    int64
	snapshots []SnapshotRow
	baselines []models.BaselineValues
	alerts    []AlertRow
	counters  map[string]int
	state     map[string]string
}

func NewMemory() *Memory {
	return &Memory{
		nextID:   1,
		counters: make(map[string]int),
		state:    make(map[string]string),
	}
}

func (m *Memory) Close() error { return nil }

func (m *Memory) SaveSnapshot(_ context.Context, snap *models.VenueSnapshot) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	row := FlattenSnapshot(snap)
	row.ID = m.nextID
	row.CreatedAt = time.Now().UTC()
	m.nextID++
	m.snapshots = append(m.snapshots, row)
	return row.ID, nil
}

func (m *Memory) HistoricalSnapshots(_ context.Context, venue string, trailingDays int) ([]SnapshotRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().UTC().AddDate(0, 0, -trailingDays)
	var out []SnapshotRow
	for _, row := range m.snapshots {
		if row.Venue == venue && !row.MissingMarket && !row.Timestamp.Before(cutoff) {
			out = append(out, row)
		}
	}
	return out, nil
}

func (m *Memory) RecentVolumes(ctx context.Context, venue string, trailingDays int) ([]float64, error) {
	rows, err := m.HistoricalSnapshots(ctx, venue, trailingDays)
	if err != nil {
		return nil, err
	}
	var volumes []float64
	for _, row := range rows {
		if row.QuoteVolume24h != nil {
			volumes = append(volumes, *row.QuoteVolume24h)
		}
	}
	return volumes, nil
}

func (m *Memory) SaveBaseline(_ context.Context, b *models.BaselineValues) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.baselines = append(m.baselines, *b)
	return nil
}

func (m *Memory) SaveAlert(_ context.Context, alert models.Alert, snapshotID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	row := AlertRow{
		ID:             m.nextID,
		Timestamp:      alert.Timestamp,
		Rule:           alert.Rule,
		Venue:          alert.Venue,
		Symbol:         alert.Symbol,
		Severity:       alert.Severity,
		Message:        alert.Message,
		ThresholdValue: alert.ThresholdValue,
		CurrentValue:   alert.CurrentValue,
		BaselineValue:  alert.BaselineValue,
		DedupeKey:      alert.DedupeKey,
		CreatedAt:      time.Now().UTC(),
	}
	if snapshotID > 0 {
		row.SnapshotID = &snapshotID
	}
	m.nextID++
	m.alerts = append(m.alerts, row)
	return nil
}

func (m *Memory) IsDuplicateAlert(_ context.Context, dedupeKey string, window time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().UTC().Add(-window)
	for _, row := range m.alerts {
		if row.DedupeKey == dedupeKey && !row.CreatedAt.Before(cutoff) {
			return true, nil
		}
	}
	return false, nil
}

func (m *Memory) RecentAlerts(_ context.Context, limit int) ([]AlertRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []AlertRow
	for i := len(m.alerts) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.alerts[i])
	}
	return out, nil
}

func (m *Memory) GetCounter(_ context.Context, key string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counters[key], nil
}

func (m *Memory) SetCounter(_ context.Context, key string, value int, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters[key] = value
	return nil
}

func (m *Memory) GetRuntimeState(_ context.Context) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]string, len(m.state))
	for k, v := range m.state {
		out[k] = v
	}
	return out, nil
}

func (m *Memory) SetRuntimeState(_ context.Context, states map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, v := range states {
		m.state[k] = v
	}
	return nil
}

// Baselines returns all stored baselines, for test assertions.
func (m *Memory) Baselines() []models.BaselineValues {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.BaselineValues(nil), m.baselines...)
}

// Snapshots returns all stored snapshot rows, for test assertions.
func (m *Memory) Snapshots() []SnapshotRow {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SnapshotRow(nil), m.snapshots...)
}
