package royalty

import (
	"context"
	"fmt"
	"time"

	"github.com/minegov/royalty-engine/internal/domain/audit"
	"github.com/minegov/royalty-engine/internal/domain/contract"
	"github.com/minegov/royalty-engine/internal/infrastructure/monitoring/logging"
	"github.com/minegov/royalty-engine/pkg/errors"
	"github.com/minegov/royalty-engine/pkg/types/common"
)

// Clock supplies the current time. Injectable so lifecycle decisions are
// testable against a fixed instant.
type Clock func() time.Time

// Service is the record lifecycle manager. Every mutating operation takes
// an explicit actor and runs validate, calculate, persist, audit in that
// order. Audit failures are logged and never abort the business operation.
type Service struct {
	records   Repository
	contracts contract.Repository
	validator *Validator
	calc      *Calculator
	sink      audit.Sink
	logger    logging.Logger
	now       Clock
}

// NewService wires the lifecycle manager. A nil clock defaults to UTC now.
func NewService(
	records Repository,
	contracts contract.Repository,
	validator *Validator,
	calc *Calculator,
	sink audit.Sink,
	logger logging.Logger,
	now Clock,
) *Service {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Service{
		records:   records,
		contracts: contracts,
		validator: validator,
		calc:      calc,
		sink:      sink,
		logger:    logger.Named("royalty.service"),
		now:       now,
	}
}

// Reload swaps the calculation and validation ruleset. Requests already in
// flight finish on the rules they started with.
func (s *Service) Reload(rules Ruleset) {
	s.calc.Reload(rules)
	s.validator.Reload(rules)
}

// Rules returns a snapshot of the current ruleset.
func (s *Service) Rules() Ruleset { return s.calc.Rules() }

// ─────────────────────────────────────────────────────────────────────────────
// Submit
// ─────────────────────────────────────────────────────────────────────────────

// Submit validates a candidate, computes its breakdown, and persists it.
// Hard validation errors are returned in the Result alongside a
// CodeValidationFailed error without persisting anything. Warnings veto
// persistence unless confirmWarnings is set.
func (s *Service) Submit(ctx context.Context, c Candidate, actor string, confirmWarnings bool) (*Record, Result, error) {
	if actor == "" {
		return nil, Result{}, errors.InvalidParam("actor must not be empty")
	}

	ct, err := s.resolveContract(ctx, c)
	if err != nil {
		return nil, Result{}, err
	}

	now := s.now()
	result, err := s.validator.Validate(ctx, c, ct, now)
	if err != nil {
		return nil, Result{}, err
	}
	if !result.OK() {
		return nil, result, errors.New(errors.CodeValidationFailed,
			fmt.Sprintf("record validation failed with %d error(s)", len(result.Errors)))
	}
	if len(result.Warnings) > 0 && !confirmWarnings {
		return nil, result, errors.New(errors.CodeWarningsUnconfirmed,
			fmt.Sprintf("%d validation warning(s) require confirmation", len(result.Warnings)))
	}

	record := NewRecord(c, actor)
	if ct != nil {
		record.ContractID = ct.ID
	}
	breakdown, err := s.calc.Calculate(record, ct, now)
	if err != nil {
		return nil, result, err
	}
	record.Breakdown = breakdown

	if err := s.records.Save(ctx, record); err != nil {
		return nil, result, errors.Wrap(err, errors.CodeDatabaseError, "failed to persist royalty record")
	}

	s.audit(ctx, audit.ActionRecordCreated, record.ID, actor, map[string]interface{}{
		"entity":  record.Entity,
		"mineral": record.Mineral,
		"total":   record.Breakdown.Total,
	})

	s.logger.Info("royalty record submitted",
		logging.String("record_id", string(record.ID)),
		logging.String("entity", record.Entity),
		logging.String("mineral", record.Mineral),
		logging.Float64("total", record.Breakdown.Total),
	)
	return record, result, nil
}

// resolveContract loads the referenced contract, or falls back to the active
// contract for the entity and mineral when none is referenced. Records
// without any matching contract use the default tariff.
func (s *Service) resolveContract(ctx context.Context, c Candidate) (*contract.Contract, error) {
	if c.ContractID != "" {
		ct, err := s.contracts.GetByID(ctx, c.ContractID)
		if err != nil {
			if errors.IsNotFound(err) {
				return nil, errors.New(errors.CodeContractNotFound,
					fmt.Sprintf("contract %s not found", c.ContractID))
			}
			return nil, errors.Wrap(err, errors.CodeDatabaseError, "failed to load contract")
		}
		return ct, nil
	}

	ct, err := s.contracts.FindActive(ctx, c.Entity, c.Mineral, c.ReportingPeriod.Start)
	if err != nil {
		if errors.IsNotFound(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, errors.CodeDatabaseError, "failed to look up active contract")
	}
	return ct, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Status changes and payments
// ─────────────────────────────────────────────────────────────────────────────

// ChangeStatus transitions a record through the payment state machine,
// recomputing the breakdown so that newly accrued penalties and interest are
// visible on the persisted record.
func (s *Service) ChangeStatus(ctx context.Context, id common.ID, to Status, actor, note string) (*Record, error) {
	if actor == "" {
		return nil, errors.InvalidParam("actor must not be empty")
	}

	record, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	from := record.Status
	if err := record.ApplyStatus(to, actor, note); err != nil {
		return nil, err
	}

	if err := s.recalculate(ctx, record); err != nil {
		return nil, err
	}
	if err := s.records.Save(ctx, record); err != nil {
		return nil, errors.Wrap(err, errors.CodeDatabaseError, "failed to persist status change")
	}

	s.audit(ctx, audit.ActionStatusChanged, record.ID, actor, map[string]interface{}{
		"from": string(from),
		"to":   string(to),
		"note": note,
	})
	return record, nil
}

// AddPartialPayment records an instalment against a record, flipping it to
// Paid once the balance is settled.
func (s *Service) AddPartialPayment(ctx context.Context, id common.ID, amount float64, actor string) (*Record, error) {
	if actor == "" {
		return nil, errors.InvalidParam("actor must not be empty")
	}

	record, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := record.RecordPartialPayment(amount, actor); err != nil {
		return nil, err
	}
	if err := s.records.Save(ctx, record); err != nil {
		return nil, errors.Wrap(err, errors.CodeDatabaseError, "failed to persist partial payment")
	}

	s.audit(ctx, audit.ActionPartialPayment, record.ID, actor, map[string]interface{}{
		"amount":    amount,
		"remaining": record.RemainingAmount(),
	})
	return record, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Reads and overdue derivation
// ─────────────────────────────────────────────────────────────────────────────

// Get loads a record, deriving Overdue from the payment date on read. The
// derived transition is persisted so downstream consumers see a consistent
// status.
func (s *Service) Get(ctx context.Context, id common.ID) (*Record, error) {
	record, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := s.deriveOverdue(ctx, record); err != nil {
		return nil, err
	}
	return record, nil
}

// List returns records matching the filter.
func (s *Service) List(ctx context.Context, filter Filter) ([]*Record, int64, error) {
	return s.records.List(ctx, filter)
}

// RefreshOverdue scans for records whose payment date has passed and flips
// them to Overdue, recomputing penalties and interest. It returns the number
// of records transitioned. The scan is idempotent: already-overdue records
// are left alone.
func (s *Service) RefreshOverdue(ctx context.Context) (int, error) {
	now := s.now()
	due := now
	records, _, err := s.records.List(ctx, Filter{DueBefore: &due})
	if err != nil {
		return 0, errors.Wrap(err, errors.CodeDatabaseError, "overdue scan failed")
	}

	var flipped int
	for _, record := range records {
		changed, err := s.deriveOverdue(ctx, record)
		if err != nil {
			s.logger.Warn("failed to refresh overdue record",
				logging.String("record_id", string(record.ID)), logging.Err(err))
			continue
		}
		if changed {
			flipped++
		}
	}
	return flipped, nil
}

// deriveOverdue flips an overdue record to Overdue and persists it. Returns
// whether a transition happened.
func (s *Service) deriveOverdue(ctx context.Context, record *Record) (bool, error) {
	now := s.now()
	if record.Status == StatusOverdue || !record.IsOverdue(now) {
		return false, nil
	}

	if err := record.ApplyStatus(StatusOverdue, "system", "derived from payment date"); err != nil {
		return false, err
	}
	if err := s.recalculate(ctx, record); err != nil {
		return false, err
	}
	if err := s.records.Save(ctx, record); err != nil {
		return false, errors.Wrap(err, errors.CodeDatabaseError, "failed to persist overdue derivation")
	}

	s.audit(ctx, audit.ActionOverdueDetected, record.ID, "system", map[string]interface{}{
		"days_past_due": record.DaysPastDue(now),
	})
	return true, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Internal helpers
// ─────────────────────────────────────────────────────────────────────────────

func (s *Service) load(ctx context.Context, id common.ID) (*Record, error) {
	record, err := s.records.GetByID(ctx, id)
	if err != nil {
		if errors.IsNotFound(err) {
			return nil, errors.New(errors.CodeRecordNotFound,
				fmt.Sprintf("royalty record %s not found", id))
		}
		return nil, errors.Wrap(err, errors.CodeDatabaseError, "failed to load royalty record")
	}
	return record, nil
}

// recalculate refreshes the persisted breakdown after a lifecycle change.
func (s *Service) recalculate(ctx context.Context, record *Record) error {
	var ct *contract.Contract
	if record.ContractID != "" {
		loaded, err := s.contracts.GetByID(ctx, record.ContractID)
		if err != nil && !errors.IsNotFound(err) {
			return errors.Wrap(err, errors.CodeDatabaseError, "failed to load contract")
		}
		ct = loaded
	}

	breakdown, err := s.calc.Calculate(record, ct, s.now())
	if err != nil {
		return err
	}
	record.Breakdown = breakdown
	return nil
}

func (s *Service) audit(ctx context.Context, action audit.Action, recordID common.ID, actor string, details map[string]interface{}) {
	if s.sink == nil {
		return
	}
	if err := s.sink.Append(ctx, audit.NewEvent(action, recordID, actor, details)); err != nil {
		s.logger.Warn("audit append failed",
			logging.String("action", string(action)),
			logging.String("record_id", string(recordID)),
			logging.Err(err),
		)
	}
}
