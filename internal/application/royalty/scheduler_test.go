package royalty_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	app "github.com/minegov/royalty-engine/internal/application/royalty"
	domain "github.com/minegov/royalty-engine/internal/domain/royalty"
	"github.com/minegov/royalty-engine/internal/infrastructure/monitoring/logging"
)

func newScheduler(f *appFixture) *app.Scheduler {
	return app.NewScheduler(f.svc, f.notes, f.metrics, logging.NewNopLogger(),
		app.SchedulerConfig{}, func() time.Time { return testNow })
}

func TestTick_NotifiesPaymentsDueSoon(t *testing.T) {
	t.Parallel()

	f := newAppFixture(t)
	c := validCandidate()
	c.PaymentDate = testNow.AddDate(0, 0, 3)
	record, _, err := f.svc.Submit(context.Background(), app.SubmitInput{
		Candidate: c,
		Actor:     "inspector.dlamini",
	})
	require.NoError(t, err)

	newScheduler(f).Tick(context.Background())

	due := f.notes.byType(app.NotifyPaymentDueSoon)
	require.Len(t, due, 1)
	assert.Equal(t, record.ID, due[0].RecordID)
	assert.Equal(t, record.Breakdown.Total, due[0].Amount)
}

func TestTick_IgnoresPaymentsOutsideWindow(t *testing.T) {
	t.Parallel()

	f := newAppFixture(t)
	c := validCandidate()
	c.PaymentDate = testNow.AddDate(0, 0, 30)
	_, _, err := f.svc.Submit(context.Background(), app.SubmitInput{
		Candidate: c,
		Actor:     "inspector.dlamini",
	})
	require.NoError(t, err)

	newScheduler(f).Tick(context.Background())
	assert.Empty(t, f.notes.byType(app.NotifyPaymentDueSoon))
}

func TestTick_DueSoonNotificationIsIdempotent(t *testing.T) {
	t.Parallel()

	f := newAppFixture(t)
	c := validCandidate()
	c.PaymentDate = testNow.AddDate(0, 0, 3)
	_, _, err := f.svc.Submit(context.Background(), app.SubmitInput{
		Candidate: c,
		Actor:     "inspector.dlamini",
	})
	require.NoError(t, err)

	sched := newScheduler(f)
	sched.Tick(context.Background())
	sched.Tick(context.Background())
	sched.Tick(context.Background())

	assert.Len(t, f.notes.byType(app.NotifyPaymentDueSoon), 1)
}

func TestTick_FlipsOverdueRecords(t *testing.T) {
	t.Parallel()

	f := newAppFixture(t)
	record, _, err := f.svc.Submit(context.Background(), app.SubmitInput{
		Candidate: validCandidate(),
		Actor:     "inspector.dlamini",
	})
	require.NoError(t, err)

	// Age the stored copy past its payment date.
	stored, err := f.records.GetByID(context.Background(), record.ID)
	require.NoError(t, err)
	stored.PaymentDate = testNow.AddDate(0, 0, -10)
	stored.Version++
	require.NoError(t, f.records.Save(context.Background(), stored))

	newScheduler(f).Tick(context.Background())

	after, err := f.records.GetByID(context.Background(), record.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusOverdue, after.Status)

	// An overdue record is past its due date, not "due soon".
	assert.Empty(t, f.notes.byType(app.NotifyPaymentDueSoon))
}

func TestTick_RetriesFailedNotificationNextTick(t *testing.T) {
	t.Parallel()

	f := newAppFixture(t)
	c := validCandidate()
	c.PaymentDate = testNow.AddDate(0, 0, 3)
	_, _, err := f.svc.Submit(context.Background(), app.SubmitInput{
		Candidate: c,
		Actor:     "inspector.dlamini",
	})
	require.NoError(t, err)

	sched := newScheduler(f)
	f.notes.failWith = context.DeadlineExceeded
	sched.Tick(context.Background())
	assert.Empty(t, f.notes.byType(app.NotifyPaymentDueSoon))

	f.notes.failWith = nil
	sched.Tick(context.Background())
	assert.Len(t, f.notes.byType(app.NotifyPaymentDueSoon), 1)
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	t.Parallel()

	f := newAppFixture(t)
	sched := app.NewScheduler(f.svc, f.notes, f.metrics, logging.NewNopLogger(),
		app.SchedulerConfig{ScanInterval: 10 * time.Millisecond}, func() time.Time { return testNow })

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := sched.Run(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
