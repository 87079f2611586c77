package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewClient(srv.URL, "inspector.dlamini",
		WithRetryMax(2),
		WithRetryWait(time.Millisecond, 2*time.Millisecond))
	require.NoError(t, err)
	return c, srv
}

func TestNewClient_RejectsBadBaseURL(t *testing.T) {
	_, err := NewClient("", "actor")
	assert.Error(t, err)

	_, err = NewClient("ftp://example.com", "actor")
	assert.Error(t, err)
}

func TestClient_SetsIdentityHeaders(t *testing.T) {
	var gotActor, gotAgent, gotRequestID string
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotActor = r.Header.Get("X-Actor")
		gotAgent = r.Header.Get("User-Agent")
		gotRequestID = r.Header.Get("X-Request-ID")
		w.WriteHeader(http.StatusNoContent)
	}))

	require.NoError(t, c.get(context.Background(), "/api/v1/records", nil))
	assert.Equal(t, "inspector.dlamini", gotActor)
	assert.Contains(t, gotAgent, "royalty-go-sdk/")
	assert.NotEmpty(t, gotRequestID)
}

func TestClient_RetriesServerErrors(t *testing.T) {
	var calls int32
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"id":"rec-1"}`))
	}))

	var record Record
	require.NoError(t, c.get(context.Background(), "/api/v1/records/rec-1", &record))
	assert.Equal(t, "rec-1", record.ID)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestClient_DoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"code":"ROYALTY_RECORD_NOT_FOUND","message":"record not found"}`))
	}))

	err := c.get(context.Background(), "/api/v1/records/missing", nil)
	require.Error(t, err)
	apiErr, ok := err.(*APIError)
	require.True(t, ok)
	assert.True(t, apiErr.IsNotFound())
	assert.Equal(t, "ROYALTY_RECORD_NOT_FOUND", apiErr.Code)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestRecords_Submit(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/v1/records", r.URL.Path)

		var req SubmitRecordRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "Maloma Colliery", req.Entity)

		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(SubmitRecordResult{
			Record: &Record{ID: "rec-1", Entity: req.Entity, Status: "Pending"},
		})
	}))

	result, err := c.Records().Submit(context.Background(), SubmitRecordRequest{
		Entity:           "Maloma Colliery",
		Mineral:          "Coal",
		ProductionVolume: 1000,
	})
	require.NoError(t, err)
	assert.Equal(t, "rec-1", result.Record.ID)
}

func TestRecords_ListBuildsQuery(t *testing.T) {
	var gotQuery string
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		_ = json.NewEncoder(w).Encode(RecordList{Total: 0})
	}))

	from := time.Date(2025, time.April, 1, 0, 0, 0, 0, time.UTC)
	_, err := c.Records().List(context.Background(), ListRecordsOptions{
		Mineral:    "Coal",
		Status:     "Overdue",
		PeriodFrom: &from,
		Page:       2,
		PageSize:   50,
	})
	require.NoError(t, err)
	assert.Contains(t, gotQuery, "mineral=Coal")
	assert.Contains(t, gotQuery, "status=Overdue")
	assert.Contains(t, gotQuery, "period_from=2025-04-01")
	assert.Contains(t, gotQuery, "page=2")
	assert.Contains(t, gotQuery, "page_size=50")
}

func TestRecords_ImportCSV(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/records/import", r.URL.Path)
		require.Equal(t, "true", r.URL.Query().Get("confirm_warnings"))
		require.Equal(t, "text/csv", r.Header.Get("Content-Type"))
		_ = json.NewEncoder(w).Encode(ImportReport{TotalRows: 2, Successful: 2})
	}))

	report, err := c.Records().ImportCSV(context.Background(),
		strings.NewReader("Entity ID,Mineral\n"), true)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Successful)
}

func TestRecords_ImportCSV_RecoversRejectedReport(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_ = json.NewEncoder(w).Encode(ImportReport{
			TotalRows: 1,
			Errors:    []RowIssue{{Row: 2, Field: "entity", Message: "entity is required"}},
		})
	}))

	report, err := c.Records().ImportCSV(context.Background(), strings.NewReader("x\n"), false)
	require.Error(t, err)
	require.NotNil(t, report)
	assert.Equal(t, 0, report.Successful)
	require.Len(t, report.Errors, 1)
	assert.Equal(t, "entity is required", report.Errors[0].Message)
}

func TestRecords_ExportCSV(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/csv")
		_, _ = w.Write([]byte("ID,Entity\nrec-1,Maloma Colliery\n"))
	}))

	var out strings.Builder
	require.NoError(t, c.Records().ExportCSV(context.Background(), ListRecordsOptions{}, &out))
	assert.Contains(t, out.String(), "Maloma Colliery")
}

func TestRecords_RefreshOverdue(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/records/overdue/refresh", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]int{"transitioned": 4})
	}))

	n, err := c.Records().RefreshOverdue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestContracts_Active(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/contracts/active", r.URL.Path)
		require.Equal(t, "Ngwenya Mine", r.URL.Query().Get("entity"))
		require.Equal(t, "2025-06-01", r.URL.Query().Get("at"))
		_ = json.NewEncoder(w).Encode(Contract{ID: "ct-1", Mineral: "Iron Ore"})
	}))

	at := time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC)
	ct, err := c.Contracts().Active(context.Background(), "Ngwenya Mine", "Iron Ore", at)
	require.NoError(t, err)
	assert.Equal(t, "ct-1", ct.ID)
}

func TestReports_Summary(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/reports/summary", r.URL.Path)
		_ = json.NewEncoder(w).Encode(Summary{
			TotalRecords:   3,
			TotalRoyalties: 182500,
			ByStatus:       map[string]int64{"Pending": 2, "Paid": 1},
		})
	}))

	summary, err := c.Reports().Summary(context.Background(), ListRecordsOptions{})
	require.NoError(t, err)
	assert.Equal(t, int64(3), summary.TotalRecords)
	assert.Equal(t, int64(2), summary.ByStatus["Pending"])
}
