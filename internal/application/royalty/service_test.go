package royalty_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	app "github.com/minegov/royalty-engine/internal/application/royalty"
	domain "github.com/minegov/royalty-engine/internal/domain/royalty"
	"github.com/minegov/royalty-engine/pkg/errors"
)

func scrape(t *testing.T, f *appFixture) string {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	f.collector.Handler().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	return w.Body.String()
}

func TestSubmit_NotifiesAndCountsSubmission(t *testing.T) {
	t.Parallel()

	f := newAppFixture(t)
	record, result, err := f.svc.Submit(context.Background(), app.SubmitInput{
		Candidate: validCandidate(),
		Actor:     "inspector.dlamini",
	})
	require.NoError(t, err)
	assert.True(t, result.Clean())
	assert.Equal(t, 25_000.0, record.Breakdown.Total)

	created := f.notes.byType(app.NotifyRecordCreated)
	require.Len(t, created, 1)
	assert.Equal(t, record.ID, created[0].RecordID)
	assert.Equal(t, 25_000.0, created[0].Amount)

	output := scrape(t, f)
	assert.Contains(t, output, `test_app_royalty_submissions_total{mineral="Coal",status="pending"} 1`)
}

func TestSubmit_ValidationFailureCountsIssuesAndSkipsNotification(t *testing.T) {
	t.Parallel()

	f := newAppFixture(t)
	c := validCandidate()
	c.Entity = ""
	c.ProductionVolume = -5

	_, result, err := f.svc.Submit(context.Background(), app.SubmitInput{
		Candidate: c,
		Actor:     "inspector.dlamini",
	})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeValidationFailed))
	assert.NotEmpty(t, result.Errors)
	assert.Empty(t, f.notes.sent)
	assert.Equal(t, 0, f.records.Len())

	output := scrape(t, f)
	assert.Contains(t, output, `test_app_royalty_validation_failures_total{field="entity"} 1`)
}

func TestSubmit_NotifierFailureDoesNotAbort(t *testing.T) {
	t.Parallel()

	f := newAppFixture(t)
	f.notes.failWith = errors.Internal("kafka unreachable")

	record, _, err := f.svc.Submit(context.Background(), app.SubmitInput{
		Candidate: validCandidate(),
		Actor:     "inspector.dlamini",
	})
	require.NoError(t, err)
	assert.NotNil(t, record)
	assert.Equal(t, 1, f.records.Len())
}

func TestGet_ReadsThroughCache(t *testing.T) {
	t.Parallel()

	f := newAppFixture(t)
	record, _, err := f.svc.Submit(context.Background(), app.SubmitInput{
		Candidate: validCandidate(),
		Actor:     "inspector.dlamini",
	})
	require.NoError(t, err)

	// First read misses and populates the cache.
	got, err := f.svc.Get(context.Background(), record.ID)
	require.NoError(t, err)
	assert.Equal(t, record.ID, got.ID)
	assert.Equal(t, 1, f.cache.len())

	// Mutate the stored copy behind the cache; the next read within the
	// TTL still sees the cached snapshot.
	stored, err := f.records.GetByID(context.Background(), record.ID)
	require.NoError(t, err)
	stored.Notes = "changed underneath"
	stored.Version++
	require.NoError(t, f.records.Save(context.Background(), stored))

	cached, err := f.svc.Get(context.Background(), record.ID)
	require.NoError(t, err)
	assert.Empty(t, cached.Notes)

	output := scrape(t, f)
	assert.Contains(t, output, `test_app_cache_hits_total{cache="record"} 1`)
	assert.Contains(t, output, `test_app_cache_misses_total{cache="record"} 1`)
}

func TestChangeStatus_InvalidatesCacheAndNotifies(t *testing.T) {
	t.Parallel()

	f := newAppFixture(t)
	record, _, err := f.svc.Submit(context.Background(), app.SubmitInput{
		Candidate: validCandidate(),
		Actor:     "inspector.dlamini",
	})
	require.NoError(t, err)

	_, err = f.svc.Get(context.Background(), record.ID)
	require.NoError(t, err)
	require.Equal(t, 1, f.cache.len())

	updated, err := f.svc.ChangeStatus(context.Background(), app.StatusInput{
		RecordID: record.ID,
		To:       domain.StatusPaid,
		Actor:    "finance.simelane",
		Notes:    "receipt 4471",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPaid, updated.Status)
	assert.Equal(t, 0, f.cache.len())

	changed := f.notes.byType(app.NotifyStatusChanged)
	require.Len(t, changed, 1)
	assert.Equal(t, record.ID, changed[0].RecordID)

	output := scrape(t, f)
	assert.Contains(t, output, `test_app_royalty_status_transitions_total{from="pending",to="paid"} 1`)
}

func TestAddPartialPayment_CountsInstalment(t *testing.T) {
	t.Parallel()

	f := newAppFixture(t)
	record, _, err := f.svc.Submit(context.Background(), app.SubmitInput{
		Candidate: validCandidate(),
		Actor:     "inspector.dlamini",
	})
	require.NoError(t, err)

	updated, err := f.svc.AddPartialPayment(context.Background(), app.PaymentInput{
		RecordID: record.ID,
		Amount:   10_000,
		Actor:    "finance.simelane",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPartiallyPaid, updated.Status)
	assert.Equal(t, 15_000.0, updated.RemainingAmount())

	output := scrape(t, f)
	assert.Contains(t, output, `test_app_royalty_partial_payments_total{mineral="Coal"} 1`)
}

func TestList_Paginates(t *testing.T) {
	t.Parallel()

	f := newAppFixture(t)
	for i := 0; i < 3; i++ {
		c := validCandidate()
		c.ReportingPeriod.Start = date(2025, time.Month(i+1), 1)
		c.ReportingPeriod.End = date(2025, time.Month(i+1), 28)
		_, _, err := f.svc.Submit(context.Background(), app.SubmitInput{
			Candidate: c,
			Actor:     "inspector.dlamini",
		})
		require.NoError(t, err)
	}

	page, err := f.svc.List(context.Background(), domain.Filter{})
	require.NoError(t, err)
	assert.Equal(t, int64(3), page.Total)
	assert.Len(t, page.Records, 3)
	assert.Equal(t, 1, page.TotalPages)
}

func TestRefreshOverdue_FlushesCacheAndCounts(t *testing.T) {
	t.Parallel()

	f := newAppFixture(t)
	record, _, err := f.svc.Submit(context.Background(), app.SubmitInput{
		Candidate: validCandidate(),
		Actor:     "inspector.dlamini",
	})
	require.NoError(t, err)

	_, err = f.svc.Get(context.Background(), record.ID)
	require.NoError(t, err)
	require.Equal(t, 1, f.cache.len())

	// Age the stored copy past its payment date.
	stored, err := f.records.GetByID(context.Background(), record.ID)
	require.NoError(t, err)
	stored.PaymentDate = testNow.AddDate(0, 0, -40)
	stored.Version++
	require.NoError(t, f.records.Save(context.Background(), stored))

	flipped, err := f.svc.RefreshOverdue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, flipped)
	assert.Equal(t, 0, f.cache.len())

	output := scrape(t, f)
	assert.Contains(t, output, `test_app_royalty_overdue_scans_total{result="success"} 1`)
	assert.Contains(t, output, "test_app_royalty_overdue_records_total 1")
}
