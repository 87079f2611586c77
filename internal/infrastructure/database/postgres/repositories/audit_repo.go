package repositories

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/minegov/royalty-engine/internal/domain/audit"
	"github.com/minegov/royalty-engine/internal/infrastructure/database/postgres"
	"github.com/minegov/royalty-engine/internal/infrastructure/monitoring/logging"
	"github.com/minegov/royalty-engine/pkg/errors"
	"github.com/minegov/royalty-engine/pkg/types/common"
)

const auditColumns = ` id, action, record_id, actor, details, occurred_at`

// PostgresAuditRepo is the durable audit store. It implements audit.Sink
// for writes and adds read methods for the activity views.
type PostgresAuditRepo struct {
	conn *postgres.Connection
	log  logging.Logger
}

func NewPostgresAuditRepo(conn *postgres.Connection, log logging.Logger) *PostgresAuditRepo {
	return &PostgresAuditRepo{conn: conn, log: log}
}

func (r *PostgresAuditRepo) executor() queryExecutor {
	return r.conn.DB()
}

func (r *PostgresAuditRepo) Append(ctx context.Context, event audit.Event) error {
	query := `
		INSERT INTO audit_events (id, action, record_id, actor, details, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	detailsJSON, err := json.Marshal(event.Details)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to encode audit details")
	}

	_, err = r.executor().ExecContext(ctx, query,
		event.ID, event.Action, event.RecordID, event.Actor, detailsJSON, event.Timestamp,
	)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to append audit event")
	}
	return nil
}

// Recent returns the newest events, newest first.
func (r *PostgresAuditRepo) Recent(ctx context.Context, limit int) ([]audit.Event, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT` + auditColumns + ` FROM audit_events ORDER BY occurred_at DESC LIMIT $1`
	return r.queryEvents(ctx, query, limit)
}

// FindByRecord returns the full audit history of one royalty record,
// oldest first.
func (r *PostgresAuditRepo) FindByRecord(ctx context.Context, recordID common.ID) ([]audit.Event, error) {
	query := `SELECT` + auditColumns + ` FROM audit_events WHERE record_id = $1 ORDER BY occurred_at ASC`
	return r.queryEvents(ctx, query, recordID)
}

func (r *PostgresAuditRepo) queryEvents(ctx context.Context, query string, args ...interface{}) ([]audit.Event, error) {
	rows, err := r.executor().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to query audit events")
	}
	defer rows.Close()

	events := []audit.Event{}
	for rows.Next() {
		var (
			ev          audit.Event
			detailsJSON []byte
		)
		if err := rows.Scan(&ev.ID, &ev.Action, &ev.RecordID, &ev.Actor, &detailsJSON, &ev.Timestamp); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to scan audit event")
		}
		if len(detailsJSON) > 0 {
			if err := json.Unmarshal(detailsJSON, &ev.Details); err != nil {
				return nil, errors.Wrap(err, errors.ErrCodeInternal,
					fmt.Sprintf("failed to decode audit details for %s", ev.ID))
			}
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}
