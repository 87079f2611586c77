package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	reporting "github.com/minegov/royalty-engine/internal/application/reporting"
	app "github.com/minegov/royalty-engine/internal/application/royalty"
	"github.com/minegov/royalty-engine/internal/domain/audit"
	"github.com/minegov/royalty-engine/internal/domain/contract"
	"github.com/minegov/royalty-engine/internal/domain/pricing"
	domain "github.com/minegov/royalty-engine/internal/domain/royalty"
	"github.com/minegov/royalty-engine/internal/infrastructure/monitoring/logging"
	"github.com/minegov/royalty-engine/internal/infrastructure/monitoring/prometheus"
	apihttp "github.com/minegov/royalty-engine/internal/interfaces/http"
	"github.com/minegov/royalty-engine/internal/interfaces/http/handlers"
	"github.com/minegov/royalty-engine/internal/interfaces/http/middleware"
	"github.com/minegov/royalty-engine/internal/testutil"
	"github.com/minegov/royalty-engine/pkg/errors"
	"github.com/minegov/royalty-engine/pkg/types/common"
)

var testNow = time.Date(2025, time.June, 15, 12, 0, 0, 0, time.UTC)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// nullCache treats every lookup as a miss.
type nullCache struct{}

func (nullCache) Get(context.Context, string, interface{}) error {
	return errors.NotFound("cache miss")
}
func (nullCache) Set(context.Context, string, interface{}, time.Duration) error { return nil }
func (nullCache) Delete(context.Context, ...string) error                       { return nil }
func (nullCache) DeleteByPrefix(context.Context, string) (int64, error)         { return 0, nil }

type nullNotifier struct{}

func (nullNotifier) Notify(context.Context, app.Notification) error { return nil }

// memStore captures archived exports in memory.
type memStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newMemStore() *memStore {
	return &memStore{objects: make(map[string][]byte)}
}

func (s *memStore) Put(_ context.Context, objectName string, r io.Reader, _ int64, _ string) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[objectName] = data
	return "royalty-exports/" + objectName, nil
}

type apiFixture struct {
	router    http.Handler
	records   *testutil.MemoryRoyaltyRepo
	contracts *testutil.MemoryContractRepo
	store     *memStore
}

func newAPIFixture(t *testing.T) *apiFixture {
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
		Subsystem: "api",
	}, logging.NewNopLogger())
	require.NoError(t, err)
	metrics := prometheus.NewAppMetrics(collector)

	svc := app.NewService(engine, nullCache{}, nullNotifier{}, metrics, logging.NewNopLogger())
	store := newMemStore()
	importer := app.NewImportService(svc, metrics, logging.NewNopLogger())
	exporter := app.NewExportService(svc, store, metrics, logging.NewNopLogger())
	reports := reporting.NewService(records, logging.NewNopLogger(), func() time.Time { return testNow })

	router := apihttp.NewRouter(apihttp.RouterConfig{
		Royalty:   handlers.NewRoyaltyHandler(svc, importer, exporter, logging.NewNopLogger()),
		Contracts: handlers.NewContractHandler(contracts, logging.NewNopLogger()),
		Reports:   handlers.NewReportHandler(reports, logging.NewNopLogger()),
		Health:    handlers.NewHealthHandler("test"),
		Logger:    logging.NewNopLogger(),
		Metrics:   metrics,
		CORS:      middleware.DefaultCORSConfig(),
		Logging:   middleware.DefaultLoggingConfig(),
	})

	return &apiFixture{router: router, records: records, contracts: contracts, store: store}
}

func (f *apiFixture) do(t *testing.T, method, target string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Actor", "inspector.dlamini")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dest interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), dest))
}

func validSubmitBody() handlers.SubmitRequest {
	return handlers.SubmitRequest{
		Candidate: domain.Candidate{
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
		},
	}
}

func TestSubmitRecord(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodPost, "/api/v1/records", validSubmitBody())
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp handlers.SubmitResponse
	decodeBody(t, rec, &resp)
	assert.NotEmpty(t, resp.Record.ID)
	assert.Equal(t, "Maloma Colliery", resp.Record.Entity)
	assert.Equal(t, domain.StatusPending, resp.Record.Status)
	assert.Equal(t, "inspector.dlamini", resp.Record.CreatedBy)
	assert.Greater(t, resp.Record.Breakdown.Total, 0.0)
}

func TestSubmitRecord_ValidationFailure(t *testing.T) {
	f := newAPIFixture(t)

	body := validSubmitBody()
	body.Entity = ""
	body.ProductionVolume = -5

	rec := f.do(t, http.MethodPost, "/api/v1/records", body)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	var resp struct {
		Code    string        `json:"code"`
		Details domain.Result `json:"details"`
	}
	decodeBody(t, rec, &resp)
	assert.Equal(t, string(errors.CodeValidationFailed), resp.Code)
	assert.NotEmpty(t, resp.Details.Errors)
}

func TestSubmitRecord_MalformedBody(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodPost, "/api/v1/records", "{not json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetRecord(t *testing.T) {
	f := newAPIFixture(t)

	created := f.do(t, http.MethodPost, "/api/v1/records", validSubmitBody())
	require.Equal(t, http.StatusCreated, created.Code)
	var resp handlers.SubmitResponse
	decodeBody(t, created, &resp)

	rec := f.do(t, http.MethodGet, "/api/v1/records/"+string(resp.Record.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var fetched domain.Record
	decodeBody(t, rec, &fetched)
	assert.Equal(t, resp.Record.ID, fetched.ID)
}

func TestGetRecord_NotFound(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodGet, "/api/v1/records/no-such-record", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestChangeStatus(t *testing.T) {
	f := newAPIFixture(t)

	created := f.do(t, http.MethodPost, "/api/v1/records", validSubmitBody())
	require.Equal(t, http.StatusCreated, created.Code)
	var resp handlers.SubmitResponse
	decodeBody(t, created, &resp)

	rec := f.do(t, http.MethodPost, "/api/v1/records/"+string(resp.Record.ID)+"/status",
		handlers.StatusRequest{Status: "Paid", Notes: "bank transfer confirmed"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var updated domain.Record
	decodeBody(t, rec, &updated)
	assert.Equal(t, domain.StatusPaid, updated.Status)
	require.NotEmpty(t, updated.StatusHistory)
	assert.Equal(t, "inspector.dlamini", updated.StatusHistory[len(updated.StatusHistory)-1].ChangedBy)
}

func TestChangeStatus_UnknownStatus(t *testing.T) {
	f := newAPIFixture(t)

	created := f.do(t, http.MethodPost, "/api/v1/records", validSubmitBody())
	require.Equal(t, http.StatusCreated, created.Code)
	var resp handlers.SubmitResponse
	decodeBody(t, created, &resp)

	rec := f.do(t, http.MethodPost, "/api/v1/records/"+string(resp.Record.ID)+"/status",
		handlers.StatusRequest{Status: "Archived"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAddPayment(t *testing.T) {
	f := newAPIFixture(t)

	created := f.do(t, http.MethodPost, "/api/v1/records", validSubmitBody())
	require.Equal(t, http.StatusCreated, created.Code)
	var resp handlers.SubmitResponse
	decodeBody(t, created, &resp)

	rec := f.do(t, http.MethodPost, "/api/v1/records/"+string(resp.Record.ID)+"/payments",
		handlers.PaymentRequest{Amount: 500})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var updated domain.Record
	decodeBody(t, rec, &updated)
	require.Len(t, updated.PartialPayments, 1)
	assert.Equal(t, 500.0, updated.PartialPayments[0].Amount)
}

func TestListRecords_FilterByMineral(t *testing.T) {
	f := newAPIFixture(t)

	coal := validSubmitBody()
	iron := validSubmitBody()
	iron.Entity = "Ngwenya Mine"
	iron.Mineral = "Iron Ore"
	iron.ReportingPeriod = common.Period{
		Start: date(2025, time.May, 1),
		End:   date(2025, time.May, 31),
	}

	require.Equal(t, http.StatusCreated, f.do(t, http.MethodPost, "/api/v1/records", coal).Code)
	require.Equal(t, http.StatusCreated, f.do(t, http.MethodPost, "/api/v1/records", iron).Code)

	rec := f.do(t, http.MethodGet, "/api/v1/records?mineral=Iron+Ore", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var result app.ListResult
	decodeBody(t, rec, &result)
	require.Equal(t, int64(1), result.Total)
	assert.Equal(t, "Ngwenya Mine", result.Records[0].Entity)
}

func TestImportCSV_PartialSuccess(t *testing.T) {
	f := newAPIFixture(t)

	csvBody := strings.Join([]string{
		"Entity ID,Mineral,Production Volume,Unit Price,Period Start,Period End,Currency",
		"Maloma Colliery,Coal,1000,25,2025-04-01,2025-04-30,SZL",
		"Ngwenya Mine,Iron Ore,abc,30,2025-05-01,2025-05-31,SZL",
	}, "\n")

	rec := f.do(t, http.MethodPost, "/api/v1/records/import", csvBody)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var report app.ImportReport
	decodeBody(t, rec, &report)
	assert.Equal(t, 2, report.TotalRows)
	assert.Equal(t, 1, report.Successful)
	require.Len(t, report.Errors, 1)
	assert.Equal(t, 3, report.Errors[0].Row)
}

func TestImportCSV_AllRowsRejected(t *testing.T) {
	f := newAPIFixture(t)

	csvBody := strings.Join([]string{
		"Entity ID,Mineral,Production Volume,Unit Price,Period Start,Period End",
		",Coal,1000,25,2025-04-01,2025-04-30",
	}, "\n")

	rec := f.do(t, http.MethodPost, "/api/v1/records/import", csvBody)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestExportCSV(t *testing.T) {
	f := newAPIFixture(t)
	require.Equal(t, http.StatusCreated, f.do(t, http.MethodPost, "/api/v1/records", validSubmitBody()).Code)

	rec := f.do(t, http.MethodGet, "/api/v1/records/export", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "royalty-records-")
	assert.Contains(t, rec.Body.String(), "Maloma Colliery")
}

func TestExportToStore(t *testing.T) {
	f := newAPIFixture(t)
	require.Equal(t, http.StatusCreated, f.do(t, http.MethodPost, "/api/v1/records", validSubmitBody()).Code)

	rec := f.do(t, http.MethodPost, "/api/v1/records/export",
		handlers.ArchiveRequest{ObjectName: "exports/april.csv"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp handlers.ArchiveResponse
	decodeBody(t, rec, &resp)
	assert.Equal(t, "royalty-exports/exports/april.csv", resp.Location)
	assert.Equal(t, 1, resp.Rows)
	assert.Contains(t, string(f.store.objects["exports/april.csv"]), "Maloma Colliery")
}

func TestRefreshOverdue_NothingDue(t *testing.T) {
	f := newAPIFixture(t)
	require.Equal(t, http.StatusCreated, f.do(t, http.MethodPost, "/api/v1/records", validSubmitBody()).Code)

	rec := f.do(t, http.MethodPost, "/api/v1/records/overdue/refresh", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]int
	decodeBody(t, rec, &resp)
	assert.Equal(t, 0, resp["transitioned"])
}

func TestContractLifecycle(t *testing.T) {
	f := newAPIFixture(t)

	created := f.do(t, http.MethodPost, "/api/v1/contracts", handlers.ContractRequest{
		Entity:            "Maloma Colliery",
		Mineral:           "Coal",
		CalculationType:   "fixed",
		CalculationParams: pricing.Params{Rate: 3.0},
		StartDate:         "2024-01-01",
	})
	require.Equal(t, http.StatusCreated, created.Code, created.Body.String())

	var ct contract.Contract
	decodeBody(t, created, &ct)
	require.NotEmpty(t, ct.ID)

	got := f.do(t, http.MethodGet, "/api/v1/contracts/"+string(ct.ID), nil)
	require.Equal(t, http.StatusOK, got.Code)

	active := f.do(t, http.MethodGet, "/api/v1/contracts/active?entity=Maloma+Colliery&mineral=Coal&at=2025-06-01", nil)
	require.Equal(t, http.StatusOK, active.Code)
	var found contract.Contract
	decodeBody(t, active, &found)
	assert.Equal(t, ct.ID, found.ID)

	amended := f.do(t, http.MethodPut, "/api/v1/contracts/"+string(ct.ID), handlers.ContractRequest{
		CalculationType:   "fixed",
		CalculationParams: pricing.Params{Rate: 3.5},
		StartDate:         "2025-07-01",
	})
	require.Equal(t, http.StatusCreated, amended.Code, amended.Body.String())
	var successor contract.Contract
	decodeBody(t, amended, &successor)
	assert.NotEqual(t, ct.ID, successor.ID)

	oldAfter := f.do(t, http.MethodGet, "/api/v1/contracts/"+string(ct.ID), nil)
	require.Equal(t, http.StatusOK, oldAfter.Code)
	var closed contract.Contract
	decodeBody(t, oldAfter, &closed)
	require.NotNil(t, closed.EndDate)
	assert.Equal(t, date(2025, time.June, 30), closed.EndDate.UTC())

	list := f.do(t, http.MethodGet, "/api/v1/contracts", nil)
	require.Equal(t, http.StatusOK, list.Code)
	var listed handlers.ContractListResult
	decodeBody(t, list, &listed)
	assert.Equal(t, int64(2), listed.Total)
}

func TestContractActive_MissingParams(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodGet, "/api/v1/contracts/active?entity=Maloma+Colliery", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReportSummary(t *testing.T) {
	f := newAPIFixture(t)
	require.Equal(t, http.StatusCreated, f.do(t, http.MethodPost, "/api/v1/records", validSubmitBody()).Code)

	rec := f.do(t, http.MethodGet, "/api/v1/reports/summary", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var summary reporting.Summary
	decodeBody(t, rec, &summary)
	assert.Equal(t, int64(1), summary.TotalRecords)
	assert.Contains(t, summary.ByEntity, "Maloma Colliery")
}

func TestLivenessProbe(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]string
	decodeBody(t, rec, &resp)
	assert.Equal(t, "ok", resp["status"])
	assert.Equal(t, "test", resp["version"])
}

func TestReadinessProbe_FailingDependency(t *testing.T) {
	router := apihttp.NewRouter(apihttp.RouterConfig{
		Health: handlers.NewHealthHandler("test",
			handlers.CheckerFunc{CheckerName: "postgres", Fn: func(context.Context) error { return nil }},
			handlers.CheckerFunc{CheckerName: "redis", Fn: func(context.Context) error {
				return fmt.Errorf("connection refused")
			}},
		),
		CORS:    middleware.DefaultCORSConfig(),
		Logging: middleware.DefaultLoggingConfig(),
	})

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var resp handlers.ReadinessResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "not_ready", resp.Status)
	require.Len(t, resp.Components, 2)
}
