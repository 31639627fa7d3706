package sync

import (
	"context"
	"errors"
	"sort"
	stdsync "sync"
	"time"

	"github.com/Goodheart-Labs/israel-iran-dashboard-sub000/internal/domain"
	"github.com/Goodheart-Labs/israel-iran-dashboard-sub000/internal/notify"
)

// memHistory is an in-memory domain.HistoryStore.
type memHistory struct {
	mu     stdsync.Mutex
	nextID int64
	points map[int64]domain.HistoryPoint

	failInsertBatch bool
	failDelete      bool
}

func newMemHistory() *memHistory {
	return &memHistory{points: make(map[int64]domain.HistoryPoint)}
}

func (s *memHistory) Insert(_ context.Context, p domain.HistoryPoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	p.ID = s.nextID
	s.points[p.ID] = p
	return nil
}

func (s *memHistory) FirstInRange(_ context.Context, marketID, fromMs, toMs int64) (domain.HistoryPoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var found []domain.HistoryPoint
	for _, p := range s.points {
		if p.MarketID == marketID && p.TimestampMs >= fromMs && p.TimestampMs <= toMs {
			found = append(found, p)
		}
	}
	if len(found) == 0 {
		return domain.HistoryPoint{}, domain.ErrNotFound
	}
	sort.Slice(found, func(i, j int) bool { return found[i].TimestampMs < found[j].TimestampMs })
	return found[0], nil
}

func (s *memHistory) UpdatePoint(_ context.Context, id int64, probability int, timestampMs int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.points[id]
	if !ok {
		return domain.ErrNotFound
	}
	p.Probability = probability
	p.TimestampMs = timestampMs
	s.points[id] = p
	return nil
}

func (s *memHistory) InsertMissing(_ context.Context, points []domain.HistoryPoint) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inserted := 0
	for _, p := range points {
		if s.hasTimestampLocked(p.MarketID, p.TimestampMs) {
			continue
		}
		s.nextID++
		p.ID = s.nextID
		s.points[p.ID] = p
		inserted++
	}
	return inserted, nil
}

func (s *memHistory) hasTimestampLocked(marketID, tsMs int64) bool {
	for _, q := range s.points {
		if q.MarketID == marketID && q.TimestampMs == tsMs {
			return true
		}
	}
	return false
}

func (s *memHistory) DeleteByMarket(_ context.Context, marketID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failDelete {
		return errors.New("delete failed")
	}
	for id, p := range s.points {
		if p.MarketID == marketID {
			delete(s.points, id)
		}
	}
	return nil
}

func (s *memHistory) InsertBatch(_ context.Context, points []domain.HistoryPoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failInsertBatch {
		return errors.New("insert failed")
	}
	for _, p := range points {
		s.nextID++
		p.ID = s.nextID
		s.points[p.ID] = p
	}
	return nil
}

func (s *memHistory) ListByMarket(_ context.Context, marketID int64) ([]domain.HistoryPoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.HistoryPoint
	for _, p := range s.points {
		if p.MarketID == marketID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TimestampMs < out[j].TimestampMs })
	return out, nil
}

func (s *memHistory) CountByMarket(_ context.Context, marketID int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, p := range s.points {
		if p.MarketID == marketID {
			n++
		}
	}
	return n, nil
}

var _ domain.HistoryStore = (*memHistory)(nil)

// memMarkets is an in-memory domain.MarketStore.
type memMarkets struct {
	mu       stdsync.Mutex
	markets  map[int64]domain.Market
	failList bool
}

func newMemMarkets(markets ...domain.Market) *memMarkets {
	s := &memMarkets{markets: make(map[int64]domain.Market)}
	for _, m := range markets {
		s.markets[m.ID] = m
	}
	return s
}

func (s *memMarkets) Upsert(_ context.Context, m domain.Market) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markets[m.ID] = m
	return nil
}

func (s *memMarkets) GetByID(_ context.Context, id int64) (domain.Market, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.markets[id]
	if !ok {
		return domain.Market{}, domain.ErrNotFound
	}
	return m, nil
}

func (s *memMarkets) ListActive(_ context.Context, source domain.Source) ([]domain.Market, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failList {
		return nil, errors.New("list failed")
	}
	var out []domain.Market
	for _, m := range s.markets {
		if !m.Active {
			continue
		}
		if source != "" && m.Source != source {
			continue
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memMarkets) UpdateProbability(_ context.Context, id int64, probability, previous int, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.markets[id]
	if !ok {
		return domain.ErrNotFound
	}
	m.Probability = probability
	m.PreviousProbability = previous
	m.LastUpdated = at
	s.markets[id] = m
	return nil
}

func (s *memMarkets) SetExternalID(_ context.Context, id int64, externalID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.markets[id]
	if !ok {
		return domain.ErrNotFound
	}
	m.ExternalID = externalID
	s.markets[id] = m
	return nil
}

func (s *memMarkets) Count(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.markets)), nil
}

var _ domain.MarketStore = (*memMarkets)(nil)

// memHealth is an in-memory domain.SourceHealthStore.
type memHealth struct {
	mu      stdsync.Mutex
	records map[domain.Source]domain.SourceHealth
}

func newMemHealth() *memHealth {
	return &memHealth{records: make(map[domain.Source]domain.SourceHealth)}
}

func (s *memHealth) Get(_ context.Context, source domain.Source) (domain.SourceHealth, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.records[source]
	if !ok {
		return domain.SourceHealth{}, domain.ErrNotFound
	}
	return h, nil
}

func (s *memHealth) Upsert(_ context.Context, h domain.SourceHealth) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[h.Source] = h
	return nil
}

var _ domain.SourceHealthStore = (*memHealth)(nil)

// memUpdateLog is an in-memory domain.UpdateLogStore.
type memUpdateLog struct {
	mu      stdsync.Mutex
	entries []domain.UpdateLogEntry
}

func (s *memUpdateLog) Insert(_ context.Context, e domain.UpdateLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e.ID = int64(len(s.entries) + 1)
	s.entries = append(s.entries, e)
	return nil
}

func (s *memUpdateLog) ListRecent(_ context.Context, limit int) ([]domain.UpdateLogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.UpdateLogEntry, len(s.entries))
	copy(out, s.entries)
	return out, nil
}

var _ domain.UpdateLogStore = (*memUpdateLog)(nil)

// memReports is an in-memory domain.ReportLog.
type memReports struct {
	mu      stdsync.Mutex
	reports []domain.UpdateReport
}

func (s *memReports) Append(_ context.Context, r domain.UpdateReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports = append(s.reports, r)
	return nil
}

func (s *memReports) Last(_ context.Context, cycle domain.Cycle) (domain.UpdateReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.reports) - 1; i >= 0; i-- {
		if s.reports[i].Cycle == cycle {
			return s.reports[i], nil
		}
	}
	return domain.UpdateReport{}, domain.ErrNotFound
}

func (s *memReports) Window(_ context.Context, d time.Duration) ([]domain.UpdateReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.UpdateReport, len(s.reports))
	copy(out, s.reports)
	return out, nil
}

var _ domain.ReportLog = (*memReports)(nil)

// fakeNotifier records the events emitted by the orchestrator.
type fakeNotifier struct {
	mu     stdsync.Mutex
	events []notify.Event
}

func (n *fakeNotifier) Notify(_ context.Context, event notify.Event, _, _ string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return nil
}

var _ Notifier = (*fakeNotifier)(nil)

// fakeClient is a scriptable MarketClient.
type fakeClient struct {
	source  domain.Source
	price   func(ref string) (domain.Quote, error)
	history func(ref string, days int) ([]domain.RawPoint, error)
}

func (c *fakeClient) CurrentPrice(_ context.Context, ref string) (domain.Quote, error) {
	return c.price(ref)
}

func (c *fakeClient) History(_ context.Context, ref string, days int) ([]domain.RawPoint, error) {
	return c.history(ref, days)
}

func (c *fakeClient) Source() domain.Source {
	if c.source == "" {
		return domain.SourcePolymarket
	}
	return c.source
}

var _ MarketClient = (*fakeClient)(nil)
