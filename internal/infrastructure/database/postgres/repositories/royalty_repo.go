// Package repositories contains the PostgreSQL implementations of the
// domain persistence contracts. All repositories run over the shared
// connection pool and speak plain SQL; JSON document columns carry the
// aggregate sub-structures that never need relational querying.
package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/minegov/royalty-engine/internal/domain/royalty"
	"github.com/minegov/royalty-engine/internal/infrastructure/database/postgres"
	"github.com/minegov/royalty-engine/internal/infrastructure/monitoring/logging"
	"github.com/minegov/royalty-engine/pkg/errors"
	"github.com/minegov/royalty-engine/pkg/types/common"
)

const royaltyColumns = `
	id, entity, mineral, contract_id,
	production_volume, unit_price, commodity_price, market_value, gross_value,
	period_start, period_end, currency, payment_date,
	status, breakdown, adjustments, partial_payments, status_history,
	created_by, notes, version, created_at, updated_at`

// royaltySortColumns whitelists the sortable fields. Anything else falls
// back to payment_date so a caller-supplied field name never reaches SQL.
var royaltySortColumns = map[string]string{
	"entity":       "entity",
	"mineral":      "mineral",
	"status":       "status",
	"payment_date": "payment_date",
	"period_start": "period_start",
	"created_at":   "created_at",
}

type postgresRoyaltyRepo struct {
	conn *postgres.Connection
	log  logging.Logger
}

// NewPostgresRoyaltyRepo returns a royalty.Repository backed by the
// royalty_records table.
func NewPostgresRoyaltyRepo(conn *postgres.Connection, log logging.Logger) royalty.Repository {
	return &postgresRoyaltyRepo{conn: conn, log: log}
}

func (r *postgresRoyaltyRepo) executor() queryExecutor {
	return r.conn.DB()
}

func (r *postgresRoyaltyRepo) GetByID(ctx context.Context, id common.ID) (*royalty.Record, error) {
	query := `SELECT` + royaltyColumns + ` FROM royalty_records WHERE id = $1`
	rec, err := scanRoyaltyRecord(r.executor().QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, errors.New(errors.CodeRecordNotFound, fmt.Sprintf("royalty record %s not found", id))
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to load royalty record")
	}
	return rec, nil
}

func (r *postgresRoyaltyRepo) List(ctx context.Context, filter royalty.Filter) ([]*royalty.Record, int64, error) {
	where, args := buildRoyaltyWhere(filter)

	var total int64
	countQuery := `SELECT COUNT(*) FROM royalty_records ` + where
	if err := r.executor().QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to count royalty records")
	}

	query := `SELECT` + royaltyColumns + ` FROM royalty_records ` + where + royaltyOrderBy(filter.Sort)
	if filter.PageSize > 0 {
		query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
		args = append(args, filter.PageSize, filter.Offset())
	}

	rows, err := r.executor().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to query royalty records")
	}
	defer rows.Close()

	records := []*royalty.Record{}
	for rows.Next() {
		rec, err := scanRoyaltyRecord(rows)
		if err != nil {
			return nil, 0, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to scan royalty record")
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to iterate royalty records")
	}
	return records, total, nil
}

func (r *postgresRoyaltyRepo) FindOverlapping(ctx context.Context, entity, mineral string, period common.Period) ([]*royalty.Record, error) {
	query := `SELECT` + royaltyColumns + `
		FROM royalty_records
		WHERE entity = $1 AND mineral = $2
		  AND period_start <= $3 AND period_end >= $4
		ORDER BY period_start ASC`

	rows, err := r.executor().QueryContext(ctx, query, entity, mineral, period.End, period.Start)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to query overlapping records")
	}
	defer rows.Close()

	records := []*royalty.Record{}
	for rows.Next() {
		rec, err := scanRoyaltyRecord(rows)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to scan royalty record")
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Save upserts the record. The ON CONFLICT update only fires when the
// incoming version exceeds the stored one, so a concurrent writer that got
// there first turns this write into a no-op and surfaces as CodeStaleVersion.
func (r *postgresRoyaltyRepo) Save(ctx context.Context, rec *royalty.Record) error {
	query := `
		INSERT INTO royalty_records (` + strings.TrimSpace(royaltyColumns) + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13,
		        $14, $15, $16, $17, $18, $19, $20, $21, $22, $23)
		ON CONFLICT (id) DO UPDATE SET
			entity = EXCLUDED.entity,
			mineral = EXCLUDED.mineral,
			contract_id = EXCLUDED.contract_id,
			production_volume = EXCLUDED.production_volume,
			unit_price = EXCLUDED.unit_price,
			commodity_price = EXCLUDED.commodity_price,
			market_value = EXCLUDED.market_value,
			gross_value = EXCLUDED.gross_value,
			period_start = EXCLUDED.period_start,
			period_end = EXCLUDED.period_end,
			currency = EXCLUDED.currency,
			payment_date = EXCLUDED.payment_date,
			status = EXCLUDED.status,
			breakdown = EXCLUDED.breakdown,
			adjustments = EXCLUDED.adjustments,
			partial_payments = EXCLUDED.partial_payments,
			status_history = EXCLUDED.status_history,
			notes = EXCLUDED.notes,
			version = EXCLUDED.version,
			updated_at = EXCLUDED.updated_at
		WHERE royalty_records.version < EXCLUDED.version`

	breakdownJSON, err := json.Marshal(rec.Breakdown)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to encode breakdown")
	}
	adjustmentsJSON, _ := json.Marshal(rec.Adjustments)
	paymentsJSON, _ := json.Marshal(rec.PartialPayments)
	historyJSON, _ := json.Marshal(rec.StatusHistory)

	var contractID sql.NullString
	if rec.ContractID != "" {
		contractID = sql.NullString{String: string(rec.ContractID), Valid: true}
	}

	res, err := r.executor().ExecContext(ctx, query,
		rec.ID, rec.Entity, rec.Mineral, contractID,
		rec.ProductionVolume, rec.UnitPrice, rec.CommodityPrice, rec.MarketValue, rec.GrossValue,
		rec.ReportingPeriod.Start, rec.ReportingPeriod.End, rec.Currency, rec.PaymentDate,
		rec.Status, breakdownJSON, adjustmentsJSON, paymentsJSON, historyJSON,
		rec.CreatedBy, rec.Notes, rec.Version, rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to save royalty record")
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to read save result")
	}
	if affected == 0 {
		return errors.New(errors.CodeStaleVersion, "record was modified by another operation")
	}
	return nil
}

func (r *postgresRoyaltyRepo) Delete(ctx context.Context, id common.ID) error {
	res, err := r.executor().ExecContext(ctx, `DELETE FROM royalty_records WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to delete royalty record")
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return errors.New(errors.CodeRecordNotFound, fmt.Sprintf("royalty record %s not found", id))
	}
	return nil
}

func buildRoyaltyWhere(f royalty.Filter) (string, []interface{}) {
	conditions := []string{}
	args := []interface{}{}

	add := func(cond string, value interface{}) {
		conditions = append(conditions, fmt.Sprintf(cond, len(args)+1))
		args = append(args, value)
	}

	if f.Entity != "" {
		add("entity = $%d", f.Entity)
	}
	if f.Mineral != "" {
		add("mineral = $%d", f.Mineral)
	}
	if f.Status != "" {
		add("status = $%d", f.Status)
	}
	if f.ContractID != "" {
		add("contract_id = $%d", string(f.ContractID))
	}
	if f.PeriodFrom != nil {
		add("period_end >= $%d", *f.PeriodFrom)
	}
	if f.PeriodTo != nil {
		add("period_start <= $%d", *f.PeriodTo)
	}
	if f.DueBefore != nil {
		add("payment_date < $%d", *f.DueBefore)
	}
	if f.DueAfter != nil {
		add("payment_date > $%d", *f.DueAfter)
	}
	if f.CreatedFrom != nil {
		add("created_at >= $%d", *f.CreatedFrom)
	}

	if len(conditions) == 0 {
		return "", args
	}
	return "WHERE " + strings.Join(conditions, " AND "), args
}

func royaltyOrderBy(sort []common.SortField) string {
	clauses := []string{}
	for _, s := range sort {
		col, ok := royaltySortColumns[s.Field]
		if !ok {
			continue
		}
		dir := "ASC"
		if s.Order == common.SortDesc {
			dir = "DESC"
		}
		clauses = append(clauses, col+" "+dir)
	}
	if len(clauses) == 0 {
		return " ORDER BY payment_date ASC, id ASC"
	}
	return " ORDER BY " + strings.Join(clauses, ", ")
}

func scanRoyaltyRecord(s scanner) (*royalty.Record, error) {
	var (
		rec             royalty.Record
		contractID      sql.NullString
		periodStart     time.Time
		periodEnd       time.Time
		breakdownJSON   []byte
		adjustmentsJSON []byte
		paymentsJSON    []byte
		historyJSON     []byte
	)

	err := s.Scan(
		&rec.ID, &rec.Entity, &rec.Mineral, &contractID,
		&rec.ProductionVolume, &rec.UnitPrice, &rec.CommodityPrice, &rec.MarketValue, &rec.GrossValue,
		&periodStart, &periodEnd, &rec.Currency, &rec.PaymentDate,
		&rec.Status, &breakdownJSON, &adjustmentsJSON, &paymentsJSON, &historyJSON,
		&rec.CreatedBy, &rec.Notes, &rec.Version, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if contractID.Valid {
		rec.ContractID = common.ID(contractID.String)
	}
	rec.ReportingPeriod = common.Period{Start: periodStart, End: periodEnd}

	if err := json.Unmarshal(breakdownJSON, &rec.Breakdown); err != nil {
		return nil, fmt.Errorf("decode breakdown: %w", err)
	}
	if len(adjustmentsJSON) > 0 {
		if err := json.Unmarshal(adjustmentsJSON, &rec.Adjustments); err != nil {
			return nil, fmt.Errorf("decode adjustments: %w", err)
		}
	}
	if len(paymentsJSON) > 0 {
		if err := json.Unmarshal(paymentsJSON, &rec.PartialPayments); err != nil {
			return nil, fmt.Errorf("decode partial payments: %w", err)
		}
	}
	if len(historyJSON) > 0 {
		if err := json.Unmarshal(historyJSON, &rec.StatusHistory); err != nil {
			return nil, fmt.Errorf("decode status history: %w", err)
		}
	}
	return &rec, nil
}
