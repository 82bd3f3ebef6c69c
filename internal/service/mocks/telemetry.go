package mocks

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/SergeiKhy/linkhub/internal/geo"
	"github.com/SergeiKhy/linkhub/internal/models"
	"github.com/SergeiKhy/linkhub/internal/repository"
)

var errCacheDown = errors.New("mock cache unavailable")

// MockVisitRepository implements repository.VisitRepository for testing
type MockVisitRepository struct {
	mu     sync.RWMutex
	visits []*models.Visit
	nextID int64

	// Links, when set, lets ReconcileCounters correct the mock links the
	// way the SQL reconciliation does.
	Links *MockLinkRepository

	// FailInserts makes the next N Insert calls fail, for retry tests.
	FailInserts int
}

func NewMockVisitRepository() *MockVisitRepository {
	return &MockVisitRepository{nextID: 1}
}

func (m *MockVisitRepository) Insert(ctx context.Context, visit *models.Visit) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailInserts > 0 {
		m.FailInserts--
		return errors.New("mock insert failure")
	}

	visit.ID = m.nextID
	m.nextID++
	stored := *visit
	m.visits = append(m.visits, &stored)
	return nil
}

func (m *MockVisitRepository) HasRecentVisit(ctx context.Context, aliasID int64, fingerprint string, window time.Duration) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cutoff := time.Now().UTC().Add(-window)
	for _, v := range m.visits {
		if v.AliasID == aliasID && v.Fingerprint == fingerprint && v.VisitedAt.After(cutoff) {
			return true, nil
		}
	}
	return false, nil
}

func (m *MockVisitRepository) GetDailyStats(ctx context.Context, f repository.VisitFilter) ([]models.DailyVisitStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	byDay := make(map[string]*models.DailyVisitStats)
	for _, v := range m.matched(f) {
		day := v.VisitedAt.UTC().Format("2006-01-02")
		s, ok := byDay[day]
		if !ok {
			s = &models.DailyVisitStats{Day: day}
			byDay[day] = s
		}
		s.Total++
		if v.FirstTime {
			s.FirstTime++
		}
	}

	var out []models.DailyVisitStats
	for _, s := range byDay {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Day < out[j].Day })
	return out, nil
}

func (m *MockVisitRepository) GetGeoStats(ctx context.Context, f repository.VisitFilter, resolution string) ([]models.GeoStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	counts := make(map[string]int64)
	for _, v := range m.matched(f) {
		switch resolution {
		case "state":
			if v.Country == "United States" && v.StateCode != geo.Unknown {
				counts[v.StateCode]++
			}
		default:
			if v.Country != geo.Unknown {
				counts[v.Country]++
			}
		}
	}

	var out []models.GeoStats
	for location, visits := range counts {
		out = append(out, models.GeoStats{Location: location, Visits: visits})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Visits > out[j].Visits })
	return out, nil
}

func (m *MockVisitRepository) GetClientStats(ctx context.Context, f repository.VisitFilter) (*models.ClientStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := &models.ClientStats{
		Browser:  make(map[string]int64),
		Platform: make(map[string]int64),
	}
	for _, v := range m.matched(f) {
		stats.Browser[v.Browser]++
		stats.Platform[v.Platform]++
	}
	return stats, nil
}

func (m *MockVisitRepository) GetRefererStats(ctx context.Context, f repository.VisitFilter) (map[string]int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := make(map[string]int64)
	var blank int64
	for _, v := range m.matched(f) {
		if v.RefererDomain == "" {
			blank++
			continue
		}
		stats[v.RefererDomain]++
	}
	if len(stats) > 0 && blank > 0 {
		stats["unknown"] = blank
	}
	return stats, nil
}

func (m *MockVisitRepository) ReconcileCounters(ctx context.Context) (int64, error) {
	if m.Links == nil {
		return 0, nil
	}

	m.mu.RLock()
	totals := make(map[int64]int64)
	uniques := make(map[int64]int64)
	for _, v := range m.visits {
		totals[v.LinkID]++
		if v.FirstTime {
			uniques[v.LinkID]++
		}
	}
	m.mu.RUnlock()

	m.Links.mu.Lock()
	defer m.Links.mu.Unlock()

	var fixed int64
	for linkID, total := range totals {
		link, exists := m.Links.links[linkID]
		if !exists {
			continue
		}
		if link.Visits != total || link.UniqueVisits != uniques[linkID] {
			link.Visits = total
			link.UniqueVisits = uniques[linkID]
			fixed++
		}
	}
	return fixed, nil
}

// matched assumes the lock is held
func (m *MockVisitRepository) matched(f repository.VisitFilter) []*models.Visit {
	var out []*models.Visit
	for _, v := range m.visits {
		if v.LinkID != f.LinkID {
			continue
		}
		if f.AliasID != nil && v.AliasID != *f.AliasID {
			continue
		}
		out = append(out, v)
	}
	return out
}

func (m *MockVisitRepository) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.visits)
}

func (m *MockVisitRepository) All() []models.Visit {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.Visit, 0, len(m.visits))
	for _, v := range m.visits {
		out = append(out, *v)
	}
	return out
}

func (m *MockVisitRepository) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.visits = nil
	m.nextID = 1
	m.FailInserts = 0
}

// MockCacheRepository implements repository.CacheRepository for testing
type MockCacheRepository struct {
	mu           sync.RWMutex
	resolutions  map[string]*models.Resolution
	fingerprints map[string]time.Time // key -> expiry

	// Unavailable simulates a Redis outage: FirstVisit returns an error
	// so callers fall back to the visit ledger.
	Unavailable bool

	// DeleteHook, when set, runs right after DeleteResolution removes a
	// key. Tests use it to interleave a concurrent lookup at the worst
	// possible moment of an invalidation.
	DeleteHook func(alias string)
}

func NewMockCacheRepository() *MockCacheRepository {
	return &MockCacheRepository{
		resolutions:  make(map[string]*models.Resolution),
		fingerprints: make(map[string]time.Time),
	}
}

func (m *MockCacheRepository) GetResolution(ctx context.Context, alias string) (*models.Resolution, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	res, exists := m.resolutions[alias]
	if !exists {
		return nil, repository.ErrCacheMiss
	}
	out := *res
	return &out, nil
}

func (m *MockCacheRepository) SetResolution(ctx context.Context, alias string, res *models.Resolution, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := *res
	m.resolutions[alias] = &stored
	return nil
}

func (m *MockCacheRepository) DeleteResolution(ctx context.Context, alias string) error {
	m.mu.Lock()
	delete(m.resolutions, alias)
	hook := m.DeleteHook
	m.mu.Unlock()

	if hook != nil {
		hook(alias)
	}
	return nil
}

func (m *MockCacheRepository) FirstVisit(ctx context.Context, aliasID int64, fingerprint string, window time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Unavailable {
		return false, errCacheDown
	}

	key := fmt.Sprintf("%d:%s", aliasID, fingerprint)
	if expiry, exists := m.fingerprints[key]; exists && time.Now().Before(expiry) {
		return false, nil
	}
	m.fingerprints[key] = time.Now().Add(window)
	return true, nil
}

func (m *MockCacheRepository) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resolutions = make(map[string]*models.Resolution)
	m.fingerprints = make(map[string]time.Time)
	m.Unavailable = false
}
