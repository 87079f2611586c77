package cli

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minegov/royalty-engine/pkg/client"
)

// runCLI executes the root command against a fake API server, returning
// captured stdout and stderr.
func runCLI(t *testing.T, handler http.Handler, args ...string) (string, string, error) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	root := NewRootCommand()
	var stdout, stderr bytes.Buffer
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(append(args, "--server", srv.URL))

	err := root.Execute()
	return stdout.String(), stderr.String(), err
}

func TestRootCommand_HasSubcommands(t *testing.T) {
	root := NewRootCommand()
	names := make(map[string]bool)
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"submit", "records", "import", "export", "overdue", "contracts", "report", "migrate"} {
		assert.True(t, names[want], "missing subcommand %s", want)
	}
}

func TestRecordsList_RendersTable(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/records", r.URL.Path)
		require.Equal(t, "Coal", r.URL.Query().Get("mineral"))
		_ = json.NewEncoder(w).Encode(client.RecordList{
			Records: []*client.Record{{
				ID:      "rec-1",
				Entity:  "Maloma Colliery",
				Mineral: "Coal",
				Status:  "Pending",
			}},
			Total:      1,
			Page:       1,
			TotalPages: 1,
		})
	})

	stdout, _, err := runCLI(t, handler, "records", "list", "--mineral", "Coal")
	require.NoError(t, err)
	assert.Contains(t, stdout, "rec-1")
	assert.Contains(t, stdout, "Maloma Colliery")
	assert.Contains(t, stdout, "1 of 1 records")
}

func TestRecordsStatus_PrintsConfirmation(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/records/rec-1/status", r.URL.Path)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "Paid", body["status"])
		_ = json.NewEncoder(w).Encode(client.Record{ID: "rec-1", Status: "Paid"})
	})

	stdout, _, err := runCLI(t, handler, "records", "status", "rec-1", "Paid")
	require.NoError(t, err)
	assert.Contains(t, stdout, "record rec-1 is now Paid")
}

func TestSubmit_RequiresFlags(t *testing.T) {
	_, _, err := runCLI(t, http.NotFoundHandler(), "submit")
	require.Error(t, err)
}

func TestSubmit_SendsCandidate(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req client.SubmitRecordRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "Ngwenya Mine", req.Entity)
		assert.Equal(t, 5000.0, req.ProductionVolume)
		assert.Equal(t, "Pending", req.Status)

		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(client.SubmitRecordResult{
			Record: &client.Record{ID: "rec-9", Currency: "SZL"},
		})
	})

	stdout, _, err := runCLI(t, handler, "submit",
		"--entity", "Ngwenya Mine",
		"--mineral", "Iron Ore",
		"--volume", "5000",
		"--unit-price", "36.5",
		"--period-start", "2025-05-01",
		"--period-end", "2025-05-31",
		"--payment-date", "2025-07-15",
		"-o", "json")
	require.NoError(t, err)
	assert.Contains(t, stdout, "record rec-9 created")
}

func TestOverdueRefresh(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/records/overdue/refresh", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]int{"transitioned": 2})
	})

	stdout, _, err := runCLI(t, handler, "overdue", "refresh")
	require.NoError(t, err)
	assert.Contains(t, stdout, "2 records transitioned")
}

func TestReport_TextOutput(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(client.Summary{
			TotalRecords:   2,
			TotalRoyalties: 250000,
			ByEntity: map[string]client.GroupTotal{
				"Maloma Colliery": {Count: 2, Amount: 250000},
			},
			ByStatus: map[string]int64{"Pending": 2},
		})
	})

	stdout, _, err := runCLI(t, handler, "report")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Records:          2")
	assert.Contains(t, stdout, "Maloma Colliery")
	assert.Contains(t, stdout, "Pending")
}

func TestFormatTable_AlignsColumns(t *testing.T) {
	out := FormatTable(
		[]string{"ID", "ENTITY"},
		[][]string{
			{"rec-1", "Maloma Colliery"},
			{"rec-22", "Ngwenya Mine"},
		},
	)
	assert.Contains(t, out, "ID      ENTITY")
	assert.Contains(t, out, "rec-1   Maloma Colliery")
	assert.Contains(t, out, "rec-22  Ngwenya Mine")
}

func TestParseDateFlag(t *testing.T) {
	d, err := parseDateFlag("start", "2025-04-01")
	require.NoError(t, err)
	assert.Equal(t, 2025, d.Year())

	_, err = parseDateFlag("start", "01/04/2025")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--start")
}
