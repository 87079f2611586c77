package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/minegov/royalty-engine/internal/domain/contract"
	"github.com/minegov/royalty-engine/internal/infrastructure/database/postgres"
	"github.com/minegov/royalty-engine/internal/infrastructure/monitoring/logging"
	"github.com/minegov/royalty-engine/pkg/errors"
	"github.com/minegov/royalty-engine/pkg/types/common"
)

const contractColumns = `
	id, entity, mineral, calculation_type, calculation_params,
	start_date, end_date, version, created_at, updated_at`

type postgresContractRepo struct {
	conn *postgres.Connection
	log  logging.Logger
}

// NewPostgresContractRepo returns a contract.Repository backed by the
// contracts table.
func NewPostgresContractRepo(conn *postgres.Connection, log logging.Logger) contract.Repository {
	return &postgresContractRepo{conn: conn, log: log}
}

func (r *postgresContractRepo) executor() queryExecutor {
	return r.conn.DB()
}

func (r *postgresContractRepo) GetByID(ctx context.Context, id common.ID) (*contract.Contract, error) {
	query := `SELECT` + contractColumns + ` FROM contracts WHERE id = $1`
	c, err := scanContract(r.executor().QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, errors.New(errors.CodeContractNotFound, fmt.Sprintf("contract %s not found", id))
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to load contract")
	}
	return c, nil
}

// FindActive resolves the contract governing an entity/mineral pair at a
// point in time. With overlapping validity windows the most recently started
// contract wins.
func (r *postgresContractRepo) FindActive(ctx context.Context, entity, mineral string, at time.Time) (*contract.Contract, error) {
	query := `SELECT` + contractColumns + `
		FROM contracts
		WHERE entity = $1 AND mineral = $2
		  AND start_date <= $3
		  AND (end_date IS NULL OR end_date >= $3)
		ORDER BY start_date DESC
		LIMIT 1`

	c, err := scanContract(r.executor().QueryRowContext(ctx, query, entity, mineral, at))
	if err == sql.ErrNoRows {
		return nil, errors.New(errors.CodeContractNotFound,
			fmt.Sprintf("no active contract for %s/%s", entity, mineral))
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to resolve active contract")
	}
	return c, nil
}

func (r *postgresContractRepo) List(ctx context.Context, filter contract.Filter) ([]*contract.Contract, int64, error) {
	conditions := []string{}
	args := []interface{}{}

	if filter.Entity != "" {
		conditions = append(conditions, fmt.Sprintf("entity = $%d", len(args)+1))
		args = append(args, filter.Entity)
	}
	if filter.Mineral != "" {
		conditions = append(conditions, fmt.Sprintf("mineral = $%d", len(args)+1))
		args = append(args, filter.Mineral)
	}
	if filter.ActiveAt != nil {
		conditions = append(conditions,
			fmt.Sprintf("start_date <= $%d AND (end_date IS NULL OR end_date >= $%d)", len(args)+1, len(args)+1))
		args = append(args, *filter.ActiveAt)
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int64
	if err := r.executor().QueryRowContext(ctx, `SELECT COUNT(*) FROM contracts `+where, args...).Scan(&total); err != nil {
		return nil, 0, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to count contracts")
	}

	query := `SELECT` + contractColumns + ` FROM contracts ` + where + ` ORDER BY entity ASC, mineral ASC, start_date DESC`
	if filter.PageSize > 0 {
		query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
		args = append(args, filter.PageSize, filter.Offset())
	}

	rows, err := r.executor().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to query contracts")
	}
	defer rows.Close()

	contracts := []*contract.Contract{}
	for rows.Next() {
		c, err := scanContract(rows)
		if err != nil {
			return nil, 0, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to scan contract")
		}
		contracts = append(contracts, c)
	}
	return contracts, total, rows.Err()
}

func (r *postgresContractRepo) Save(ctx context.Context, c *contract.Contract) error {
	query := `
		INSERT INTO contracts (` + strings.TrimSpace(contractColumns) + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			entity = EXCLUDED.entity,
			mineral = EXCLUDED.mineral,
			calculation_type = EXCLUDED.calculation_type,
			calculation_params = EXCLUDED.calculation_params,
			start_date = EXCLUDED.start_date,
			end_date = EXCLUDED.end_date,
			version = EXCLUDED.version,
			updated_at = EXCLUDED.updated_at
		WHERE contracts.version < EXCLUDED.version`

	paramsJSON, err := json.Marshal(c.CalculationParams)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to encode calculation params")
	}

	var endDate sql.NullTime
	if c.EndDate != nil {
		endDate = sql.NullTime{Time: *c.EndDate, Valid: true}
	}

	res, err := r.executor().ExecContext(ctx, query,
		c.ID, c.Entity, c.Mineral, c.CalculationType, paramsJSON,
		c.StartDate, endDate, c.Version, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to save contract")
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to read save result")
	}
	if affected == 0 {
		return errors.New(errors.CodeStaleVersion, "contract was modified by another operation")
	}
	return nil
}

func (r *postgresContractRepo) Delete(ctx context.Context, id common.ID) error {
	res, err := r.executor().ExecContext(ctx, `DELETE FROM contracts WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to delete contract")
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return errors.New(errors.CodeContractNotFound, fmt.Sprintf("contract %s not found", id))
	}
	return nil
}

func scanContract(s scanner) (*contract.Contract, error) {
	var (
		c          contract.Contract
		paramsJSON []byte
		endDate    sql.NullTime
	)

	err := s.Scan(
		&c.ID, &c.Entity, &c.Mineral, &c.CalculationType, &paramsJSON,
		&c.StartDate, &endDate, &c.Version, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if endDate.Valid {
		t := endDate.Time
		c.EndDate = &t
	}
	if err := json.Unmarshal(paramsJSON, &c.CalculationParams); err != nil {
		return nil, fmt.Errorf("decode calculation params: %w", err)
	}
	return &c, nil
}
