package royalty_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minegov/royalty-engine/internal/domain/royalty"
	"github.com/minegov/royalty-engine/pkg/errors"
	"github.com/minegov/royalty-engine/pkg/types/common"
)

func pendingRecord(total float64) *royalty.Record {
	r := royalty.NewRecord(royalty.Candidate{
		Entity:           "Ngwenya Mine",
		Mineral:          "Iron Ore",
		ProductionVolume: 100,
		ReportingPeriod: common.Period{
			Start: date(2025, time.April, 1),
			End:   date(2025, time.April, 30),
		},
		Currency:    "SZL",
		PaymentDate: date(2025, time.May, 31),
		Status:      royalty.StatusPending,
	}, "tester")
	r.Breakdown = royalty.Breakdown{Base: total, Total: total}
	return r
}

func TestCanTransition(t *testing.T) {
	t.Parallel()

	tests := []struct {
		from, to royalty.Status
		want     bool
	}{
		{royalty.StatusDraft, royalty.StatusPending, true},
		{royalty.StatusDraft, royalty.StatusPaid, false},
		{royalty.StatusPending, royalty.StatusPaid, true},
		{royalty.StatusPending, royalty.StatusOverdue, true},
		{royalty.StatusPending, royalty.StatusDisputed, true},
		{royalty.StatusPending, royalty.StatusPartiallyPaid, true},
		{royalty.StatusPending, royalty.StatusDraft, false},
		{royalty.StatusOverdue, royalty.StatusPaid, true},
		{royalty.StatusOverdue, royalty.StatusPartiallyPaid, true},
		{royalty.StatusPartiallyPaid, royalty.StatusPaid, true},
		{royalty.StatusPaid, royalty.StatusPending, false},
		{royalty.StatusPaid, royalty.StatusOverdue, false},
		{royalty.StatusDisputed, royalty.StatusPending, true},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(string(tc.from)+" to "+string(tc.to), func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, royalty.CanTransition(tc.from, tc.to))
		})
	}
}

func TestParseStatus(t *testing.T) {
	t.Parallel()

	for _, s := range royalty.Statuses() {
		parsed, err := royalty.ParseStatus(string(s))
		require.NoError(t, err)
		assert.Equal(t, s, parsed)
	}

	_, err := royalty.ParseStatus("Cancelled")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeInvalidTransition))
}

func TestApplyStatus_AppendsHistoryAndBumpsVersion(t *testing.T) {
	t.Parallel()

	r := pendingRecord(1000)
	v := r.Version

	require.NoError(t, r.ApplyStatus(royalty.StatusDisputed, "auditor.simelane", "volume questioned"))

	assert.Equal(t, royalty.StatusDisputed, r.Status)
	assert.Equal(t, v+1, r.Version)
	require.Len(t, r.StatusHistory, 1)
	entry := r.StatusHistory[0]
	assert.Equal(t, royalty.StatusPending, entry.From)
	assert.Equal(t, royalty.StatusDisputed, entry.To)
	assert.Equal(t, "auditor.simelane", entry.ChangedBy)
	assert.Equal(t, "volume questioned", entry.Notes)
}

func TestApplyStatus_IllegalTransition(t *testing.T) {
	t.Parallel()

	r := pendingRecord(1000)
	require.NoError(t, r.ApplyStatus(royalty.StatusPaid, "tester", ""))

	err := r.ApplyStatus(royalty.StatusPending, "tester", "")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeInvalidTransition))
	assert.Len(t, r.StatusHistory, 1, "failed transitions leave history untouched")
}

func TestRecordPartialPayment(t *testing.T) {
	t.Parallel()

	r := pendingRecord(1000)

	require.NoError(t, r.RecordPartialPayment(400, "clerk.nkambule"))
	assert.Equal(t, royalty.StatusPartiallyPaid, r.Status)
	assert.Equal(t, 600.0, r.RemainingAmount())
	require.Len(t, r.PartialPayments, 1)
	assert.Equal(t, "clerk.nkambule", r.PartialPayments[0].RecordedBy)

	require.NoError(t, r.RecordPartialPayment(600, "clerk.nkambule"))
	assert.Equal(t, royalty.StatusPaid, r.Status)
	assert.Zero(t, r.RemainingAmount())
	assert.Len(t, r.PartialPayments, 2)
	assert.Len(t, r.StatusHistory, 2)
}

func TestRecordPartialPayment_Invalid(t *testing.T) {
	t.Parallel()

	r := pendingRecord(1000)

	err := r.RecordPartialPayment(0, "clerk")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodePaymentInvalid))

	err = r.RecordPartialPayment(-50, "clerk")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodePaymentInvalid))

	err = r.RecordPartialPayment(1500, "clerk")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodePaymentInvalid))

	assert.Empty(t, r.PartialPayments)
	assert.Equal(t, royalty.StatusPending, r.Status)
}

func TestIsOverdueAndDaysPastDue(t *testing.T) {
	t.Parallel()

	r := pendingRecord(1000)
	due := r.PaymentDate

	assert.False(t, r.IsOverdue(due))
	assert.True(t, r.IsOverdue(due.AddDate(0, 0, 1)))
	assert.Equal(t, 0, r.DaysPastDue(due))
	assert.Equal(t, 45, r.DaysPastDue(due.AddDate(0, 0, 45)))

	require.NoError(t, r.ApplyStatus(royalty.StatusPaid, "tester", ""))
	assert.False(t, r.IsOverdue(due.AddDate(0, 0, 45)), "paid records are never overdue")
}

func TestNewRecord_Defaults(t *testing.T) {
	t.Parallel()

	r := royalty.NewRecord(royalty.Candidate{
		Entity:  "Kwalini Quarry",
		Mineral: "Quarried Stone",
	}, "creator")

	assert.Equal(t, royalty.StatusDraft, r.Status)
	assert.Equal(t, "creator", r.CreatedBy)
	assert.NotEmpty(t, r.ID)
	assert.EqualValues(t, 1, r.Version)
}
