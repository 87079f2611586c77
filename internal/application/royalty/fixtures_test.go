package royalty_test

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	app "github.com/minegov/royalty-engine/internal/application/royalty"
	"github.com/minegov/royalty-engine/internal/domain/audit"
	"github.com/minegov/royalty-engine/internal/domain/contract"
	"github.com/minegov/royalty-engine/internal/domain/pricing"
	domain "github.com/minegov/royalty-engine/internal/domain/royalty"
	"github.com/minegov/royalty-engine/internal/infrastructure/monitoring/logging"
	"github.com/minegov/royalty-engine/internal/infrastructure/monitoring/prometheus"
	"github.com/minegov/royalty-engine/internal/testutil"
	"github.com/minegov/royalty-engine/pkg/errors"
	"github.com/minegov/royalty-engine/pkg/types/common"
)

var testNow = time.Date(2025, time.June, 15, 12, 0, 0, 0, time.UTC)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// memCache is an in-memory CachePort double backed by JSON blobs.
type memCache struct {
	mu      sync.Mutex
	entries map[string][]byte
}

func newMemCache() *memCache {
	return &memCache{entries: make(map[string][]byte)}
}

func (c *memCache) Get(_ context.Context, key string, dest interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	raw, ok := c.entries[key]
	if !ok {
		return errors.NotFound("cache miss")
	}
	return json.Unmarshal(raw, dest)
}

func (c *memCache) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = raw
	return nil
}

func (c *memCache) Delete(_ context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		delete(c.entries, k)
	}
	return nil
}

func (c *memCache) DeleteByPrefix(_ context.Context, prefix string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var n int64
	for k := range c.entries {
		if strings.HasPrefix(k, prefix) {
			delete(c.entries, k)
			n++
		}
	}
	return n, nil
}

func (c *memCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// notifierRecorder captures delivered notifications.
type notifierRecorder struct {
	mu       sync.Mutex
	sent     []app.Notification
	failWith error
}

func (n *notifierRecorder) Notify(_ context.Context, note app.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.failWith != nil {
		return n.failWith
	}
	n.sent = append(n.sent, note)
	return nil
}

func (n *notifierRecorder) byType(t app.NotificationType) []app.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []app.Notification
	for _, note := range n.sent {
		if note.Type == t {
			out = append(out, note)
		}
	}
	return out
}

type appFixture struct {
	svc       *app.Service
	engine    *domain.Service
	records   *testutil.MemoryRoyaltyRepo
	contracts *testutil.MemoryContractRepo
	cache     *memCache
	notes     *notifierRecorder
	metrics   *prometheus.AppMetrics
	collector prometheus.MetricsCollector
}

func newAppFixture(t *testing.T) *appFixture {
	t.Helper()

	records := testutil.NewMemoryRoyaltyRepo()
	contracts := testutil.NewMemoryContractRepo()
	rules := domain.DefaultRuleset()
	calc := domain.NewCalculator(pricing.NewRegistry(), rules)
	validator := domain.NewValidator(records, calc, rules)
	engine := domain.NewService(records, contracts, validator, calc, audit.NewTrail(100),
		logging.NewNopLogger(), func() time.Time { return testNow })

	collector, err := prometheus.NewMetricsCollector(prometheus.CollectorConfig{
		Namespace: "test",
		Subsystem: "app",
	}, logging.NewNopLogger())
	require.NoError(t, err)
	metrics := prometheus.NewAppMetrics(collector)

	cache := newMemCache()
	notes := &notifierRecorder{}
	svc := app.NewService(engine, cache, notes, metrics, logging.NewNopLogger())

	return &appFixture{
		svc:       svc,
		engine:    engine,
		records:   records,
		contracts: contracts,
		cache:     cache,
		notes:     notes,
		metrics:   metrics,
		collector: collector,
	}
}

func (f *appFixture) addContract(t *testing.T, rate float64) *contract.Contract {
	t.Helper()
	ct, err := contract.NewContract("Maloma Colliery", "Coal", "fixed",
		pricing.Params{Rate: rate}, date(2024, time.January, 1), nil)
	require.NoError(t, err)
	require.NoError(t, f.contracts.Save(context.Background(), ct))
	return ct
}

func validCandidate() domain.Candidate {
	return domain.Candidate{
		Entity:           "Maloma Colliery",
		Mineral:          "Coal",
		ProductionVolume: 1000,
		UnitPrice:        25,
		ReportingPeriod: common.Period{
			Start: date(2025, time.April, 1),
			End:   date(2025, time.April, 30),
		},
		Currency:    "SZL",
		PaymentDate: testNow.AddDate(0, 0, 30),
		Status:      domain.StatusPending,
	}
}
