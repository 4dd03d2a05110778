package solar

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"
)

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func ptr[T any](v T) *T { return &v }

type fakeGeocoder struct {
	name     string
	forward  GeocodingResult
	reverse  GeocodingResult
	err      error
	fwdCalls int
	revCalls int
}

func (f *fakeGeocoder) Name() string { return f.name }

func (f *fakeGeocoder) ForwardGeocode(_ context.Context, _ GeocodeQuery) (GeocodingResult, error) {
	f.fwdCalls++
	return f.forward, f.err
}

func (f *fakeGeocoder) ReverseGeocode(_ context.Context, _ Coordinates) (GeocodingResult, error) {
	f.revCalls++
	return f.reverse, f.err
}

type fakeIrradiance struct {
	name       string
	confidence Confidence
	value      float64
	err        error
	calls      int
}

func (f *fakeIrradiance) Name() string           { return f.name }
func (f *fakeIrradiance) Confidence() Confidence { return f.confidence }

func (f *fakeIrradiance) Irradiance(_ context.Context, _ Coordinates) (float64, error) {
	f.calls++
	return f.value, f.err
}

var errDown = errors.New("upstream down")

// memSessions stores JSON copies like the real stores do.
type memSessions struct {
	mu      sync.Mutex
	data    map[string][]byte
	saveErr error
}

func newMemSessions() *memSessions {
	return &memSessions{data: map[string][]byte{}}
}

func (m *memSessions) Load(_ context.Context, owner string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.data[owner]
	if !ok {
		return nil, ErrSessionNotFound
	}
	var s Session
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (m *memSessions) Save(_ context.Context, s *Session) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	b, err := json.Marshal(s)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[s.Owner] = b
	return nil
}

func (m *memSessions) Take(ctx context.Context, owner string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.data[owner]
	if !ok {
		return nil, ErrSessionNotFound
	}
	delete(m.data, owner)
	var s Session
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

type memRecords struct {
	mu      sync.Mutex
	records []EstimationRecord
	saveErr error
}

func (m *memRecords) SaveRecord(_ context.Context, rec EstimationRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.records = append(m.records, rec)
	return nil
}

func (m *memRecords) GetRecord(_ context.Context, owner, id string) (EstimationRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.records {
		if r.Owner == owner && r.ID == id {
			return r, nil
		}
	}
	return EstimationRecord{}, ErrRecordNotFound
}

func (m *memRecords) ListRecords(_ context.Context, owner string, limit int) ([]EstimationRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []EstimationRecord
	for _, r := range m.records {
		if r.Owner == owner {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memRecords) Summary(ctx context.Context, owner string) (RecordSummary, error) {
	recs, _ := m.ListRecords(ctx, owner, 0)
	sum := RecordSummary{Count: len(recs)}
	for _, r := range recs {
		sum.TotalAnnualSavings += r.AnnualSavings
	}
	return sum, nil
}

type staticRates map[string]float64

func (s staticRates) CostPerWatt(_ context.Context, id string) (float64, bool, error) {
	v, ok := s[id]
	return v, ok, nil
}

func (s staticRates) ListProviders(context.Context) ([]ServiceProvider, error) {
	out := make([]ServiceProvider, 0, len(s))
	for id, rate := range s {
		out = append(out, ServiceProvider{ID: id, Name: id, CostPerWatt: rate})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s staticRates) UpsertProvider(_ context.Context, p ServiceProvider) error {
	s[p.ID] = p.CostPerWatt
	return nil
}
