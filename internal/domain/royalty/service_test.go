package royalty_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minegov/royalty-engine/internal/domain/audit"
	"github.com/minegov/royalty-engine/internal/domain/contract"
	"github.com/minegov/royalty-engine/internal/domain/pricing"
	"github.com/minegov/royalty-engine/internal/domain/royalty"
	"github.com/minegov/royalty-engine/internal/testutil"
	"github.com/minegov/royalty-engine/pkg/errors"
	"github.com/minegov/royalty-engine/pkg/types/common"
)

type serviceFixture struct {
	svc       *royalty.Service
	records   *testutil.MemoryRoyaltyRepo
	contracts *testutil.MemoryContractRepo
	trail     *audit.Trail
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()

	records := testutil.NewMemoryRoyaltyRepo()
	contracts := testutil.NewMemoryContractRepo()
	trail := audit.NewTrail(100)

	rules := royalty.DefaultRuleset()
	calc := royalty.NewCalculator(pricing.NewRegistry(), rules)
	validator := royalty.NewValidator(records, calc, rules)

	svc := royalty.NewService(records, contracts, validator, calc, trail,
		testutil.NewMockLogger(), func() time.Time { return testNow })

	return &serviceFixture{svc: svc, records: records, contracts: contracts, trail: trail}
}

func (f *serviceFixture) addContract(t *testing.T, rate float64) *contract.Contract {
	t.Helper()
	ct, err := contract.NewContract("Maloma Colliery", "Coal", "fixed",
		pricing.Params{Rate: rate}, date(2024, time.January, 1), nil)
	require.NoError(t, err)
	require.NoError(t, f.contracts.Save(context.Background(), ct))
	return ct
}

func TestSubmit_PersistsRecordWithBreakdown(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t)
	ct := f.addContract(t, 25)

	c := validCandidate()
	c.ContractID = ct.ID

	record, result, err := f.svc.Submit(context.Background(), c, "inspector.dlamini", false)
	require.NoError(t, err)
	assert.True(t, result.Clean())

	assert.Equal(t, 25_000.0, record.Breakdown.Base)
	assert.Equal(t, ct.ID, record.ContractID)
	assert.Equal(t, "inspector.dlamini", record.CreatedBy)
	assert.Equal(t, 1, f.records.Len())

	events := f.trail.Recent(0)
	require.Len(t, events, 1)
	assert.Equal(t, audit.ActionRecordCreated, events[0].Action)
	assert.Equal(t, "inspector.dlamini", events[0].Actor)
}

func TestSubmit_ResolvesActiveContractWhenUnreferenced(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t)
	ct := f.addContract(t, 25)

	record, _, err := f.svc.Submit(context.Background(), validCandidate(), "inspector.dlamini", false)
	require.NoError(t, err)
	assert.Equal(t, ct.ID, record.ContractID)
	assert.Equal(t, 25_000.0, record.Breakdown.Base)
}

func TestSubmit_DefaultTariffWithoutContract(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t)

	record, _, err := f.svc.Submit(context.Background(), validCandidate(), "inspector.dlamini", false)
	require.NoError(t, err)
	assert.Empty(t, record.ContractID)
	// Volume 1000 at unit price 25.
	assert.Equal(t, 25_000.0, record.Breakdown.Base)
}

func TestSubmit_ValidationErrorsBlockPersistence(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t)

	c := validCandidate()
	c.ProductionVolume = -5

	_, result, err := f.svc.Submit(context.Background(), c, "inspector.dlamini", false)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeValidationFailed))
	assert.NotEmpty(t, result.Errors)
	assert.Zero(t, f.records.Len())
	assert.Zero(t, f.trail.Len())
}

func TestSubmit_WarningsVetoWithoutConfirmation(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t)

	// An existing record for the same entity, mineral, and period produces a
	// duplicate warning.
	_, _, err := f.svc.Submit(context.Background(), validCandidate(), "inspector.dlamini", false)
	require.NoError(t, err)

	_, result, err := f.svc.Submit(context.Background(), validCandidate(), "inspector.dlamini", false)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeWarningsUnconfirmed))
	assert.NotEmpty(t, result.Warnings)
	assert.Equal(t, 1, f.records.Len())

	// Confirmed resubmission proceeds.
	_, _, err = f.svc.Submit(context.Background(), validCandidate(), "inspector.dlamini", true)
	require.NoError(t, err)
	assert.Equal(t, 2, f.records.Len())
}

func TestSubmit_RequiresActor(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t)
	_, _, err := f.svc.Submit(context.Background(), validCandidate(), "", false)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeInvalidParam))
}

func TestSubmit_UnknownContractReference(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t)

	c := validCandidate()
	c.ContractID = common.NewID()

	_, _, err := f.svc.Submit(context.Background(), c, "inspector.dlamini", false)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeContractNotFound))
}

func TestChangeStatus(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t)
	record, _, err := f.svc.Submit(context.Background(), validCandidate(), "inspector.dlamini", false)
	require.NoError(t, err)

	updated, err := f.svc.ChangeStatus(context.Background(), record.ID,
		royalty.StatusDisputed, "auditor.simelane", "volume under review")
	require.NoError(t, err)

	assert.Equal(t, royalty.StatusDisputed, updated.Status)
	require.Len(t, updated.StatusHistory, 1)
	assert.Equal(t, "auditor.simelane", updated.StatusHistory[0].ChangedBy)

	stored, err := f.records.GetByID(context.Background(), record.ID)
	require.NoError(t, err)
	assert.Equal(t, royalty.StatusDisputed, stored.Status)

	events := f.trail.Recent(1)
	require.Len(t, events, 1)
	assert.Equal(t, audit.ActionStatusChanged, events[0].Action)
}

func TestChangeStatus_IllegalTransition(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t)
	record, _, err := f.svc.Submit(context.Background(), validCandidate(), "inspector.dlamini", false)
	require.NoError(t, err)

	_, err = f.svc.ChangeStatus(context.Background(), record.ID,
		royalty.StatusDraft, "auditor.simelane", "")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeInvalidTransition))
}

func TestChangeStatus_NotFound(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t)
	_, err := f.svc.ChangeStatus(context.Background(), common.NewID(),
		royalty.StatusPaid, "auditor.simelane", "")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeRecordNotFound))
}

func TestAddPartialPayment(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t)
	record, _, err := f.svc.Submit(context.Background(), validCandidate(), "inspector.dlamini", false)
	require.NoError(t, err)
	total := record.Breakdown.Total

	updated, err := f.svc.AddPartialPayment(context.Background(), record.ID, total/2, "clerk.nkambule")
	require.NoError(t, err)

	assert.Equal(t, royalty.StatusPartiallyPaid, updated.Status)
	assert.InDelta(t, total/2, updated.RemainingAmount(), 1e-9)

	settled, err := f.svc.AddPartialPayment(context.Background(), record.ID, total/2, "clerk.nkambule")
	require.NoError(t, err)
	assert.Equal(t, royalty.StatusPaid, settled.Status)
	assert.Zero(t, settled.RemainingAmount())
}

func TestAddPartialPayment_Overpayment(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t)
	record, _, err := f.svc.Submit(context.Background(), validCandidate(), "inspector.dlamini", false)
	require.NoError(t, err)

	_, err = f.svc.AddPartialPayment(context.Background(), record.ID,
		record.Breakdown.Total+1, "clerk.nkambule")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodePaymentInvalid))
}

func TestGet_DerivesOverdueOnRead(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t)

	// Submit with a future payment date, then store a past-due copy the way
	// an aging record would look.
	record, _, err := f.svc.Submit(context.Background(), validCandidate(), "inspector.dlamini", false)
	require.NoError(t, err)

	stored, err := f.records.GetByID(context.Background(), record.ID)
	require.NoError(t, err)
	stored.PaymentDate = testNow.AddDate(0, 0, -45)
	stored.Version++
	require.NoError(t, f.records.Save(context.Background(), stored))

	got, err := f.svc.Get(context.Background(), record.ID)
	require.NoError(t, err)

	assert.Equal(t, royalty.StatusOverdue, got.Status)
	assert.Positive(t, got.Breakdown.Penalties, "overdue derivation recomputes penalties")
	assert.Positive(t, got.Breakdown.Interest)

	persisted, err := f.records.GetByID(context.Background(), record.ID)
	require.NoError(t, err)
	assert.Equal(t, royalty.StatusOverdue, persisted.Status)
}

func TestRefreshOverdue(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t)

	record, _, err := f.svc.Submit(context.Background(), validCandidate(), "inspector.dlamini", false)
	require.NoError(t, err)

	stored, err := f.records.GetByID(context.Background(), record.ID)
	require.NoError(t, err)
	stored.PaymentDate = testNow.AddDate(0, 0, -10)
	stored.Version++
	require.NoError(t, f.records.Save(context.Background(), stored))

	flipped, err := f.svc.RefreshOverdue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, flipped)

	// A second scan is idempotent.
	flipped, err = f.svc.RefreshOverdue(context.Background())
	require.NoError(t, err)
	assert.Zero(t, flipped)
}

func TestSave_StaleVersionRejected(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t)
	record, _, err := f.svc.Submit(context.Background(), validCandidate(), "inspector.dlamini", false)
	require.NoError(t, err)

	first, err := f.records.GetByID(context.Background(), record.ID)
	require.NoError(t, err)
	second, err := f.records.GetByID(context.Background(), record.ID)
	require.NoError(t, err)

	require.NoError(t, first.ApplyStatus(royalty.StatusDisputed, "a", ""))
	require.NoError(t, f.records.Save(context.Background(), first))

	require.NoError(t, second.ApplyStatus(royalty.StatusPaid, "b", ""))
	err = f.records.Save(context.Background(), second)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeStaleVersion))
}
