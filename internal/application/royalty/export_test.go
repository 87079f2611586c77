package royalty_test

import (
	"bytes"
	"context"
	"encoding/csv"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	app "github.com/minegov/royalty-engine/internal/application/royalty"
	domain "github.com/minegov/royalty-engine/internal/domain/royalty"
	"github.com/minegov/royalty-engine/internal/infrastructure/monitoring/logging"
	"github.com/minegov/royalty-engine/pkg/errors"
)

// stubStore captures uploaded artifacts in memory.
type stubStore struct {
	mu       sync.Mutex
	objects  map[string][]byte
	failWith error
}

func newStubStore() *stubStore {
	return &stubStore{objects: make(map[string][]byte)}
}

func (s *stubStore) Put(_ context.Context, objectName string, r io.Reader, _ int64, _ string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return "", s.failWith
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	s.objects[objectName] = data
	return "minio://exports/" + objectName, nil
}

func seedRecords(t *testing.T, f *appFixture, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		c := validCandidate()
		c.ReportingPeriod.Start = date(2025, time.Month(i+1), 1)
		c.ReportingPeriod.End = date(2025, time.Month(i+1), 28)
		_, _, err := f.svc.Submit(context.Background(), app.SubmitInput{
			Candidate: c,
			Actor:     "inspector.dlamini",
		})
		require.NoError(t, err)
	}
}

func TestExportCSV_WritesHeaderAndRows(t *testing.T) {
	t.Parallel()

	f := newAppFixture(t)
	seedRecords(t, f, 2)

	exporter := app.NewExportService(f.svc, nil, f.metrics, logging.NewNopLogger())
	var buf bytes.Buffer
	rows, err := exporter.ExportCSV(context.Background(), domain.Filter{}, &buf)
	require.NoError(t, err)
	assert.Equal(t, 2, rows)

	parsed, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, parsed, 3)
	assert.Equal(t, []string{
		"ID", "Entity", "Mineral", "Production Volume", "Royalty Amount",
		"Period Start", "Period End", "Status", "Created Date",
	}, parsed[0])
	assert.Equal(t, "Maloma Colliery", parsed[1][1])
	assert.Equal(t, "Coal", parsed[1][2])
	assert.Equal(t, "25000.00", parsed[1][4])
	assert.Equal(t, "pending", parsed[1][7])
}

func TestExportCSV_FilterNarrowsRows(t *testing.T) {
	t.Parallel()

	f := newAppFixture(t)
	seedRecords(t, f, 2)

	exporter := app.NewExportService(f.svc, nil, f.metrics, logging.NewNopLogger())
	var buf bytes.Buffer
	rows, err := exporter.ExportCSV(context.Background(), domain.Filter{Mineral: "Diamond"}, &buf)
	require.NoError(t, err)
	assert.Equal(t, 0, rows)
}

func TestExportToStore_UploadsArtifact(t *testing.T) {
	t.Parallel()

	f := newAppFixture(t)
	seedRecords(t, f, 1)

	store := newStubStore()
	exporter := app.NewExportService(f.svc, store, f.metrics, logging.NewNopLogger())

	location, rows, err := exporter.ExportToStore(context.Background(), domain.Filter{}, "royalties-2025-06.csv")
	require.NoError(t, err)
	assert.Equal(t, 1, rows)
	assert.Equal(t, "minio://exports/royalties-2025-06.csv", location)

	data, ok := store.objects["royalties-2025-06.csv"]
	require.True(t, ok)
	assert.Contains(t, string(data), "Maloma Colliery")
}

func TestExportToStore_NoStoreConfigured(t *testing.T) {
	t.Parallel()

	f := newAppFixture(t)
	exporter := app.NewExportService(f.svc, nil, f.metrics, logging.NewNopLogger())

	_, _, err := exporter.ExportToStore(context.Background(), domain.Filter{}, "anything.csv")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeExportFailed))
}

func TestExportToStore_UploadFailure(t *testing.T) {
	t.Parallel()

	f := newAppFixture(t)
	seedRecords(t, f, 1)

	store := newStubStore()
	store.failWith = errors.Internal("bucket unreachable")
	exporter := app.NewExportService(f.svc, store, f.metrics, logging.NewNopLogger())

	_, _, err := exporter.ExportToStore(context.Background(), domain.Filter{}, "broken.csv")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeExportFailed))
}
