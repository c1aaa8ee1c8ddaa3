package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/davidleathers/healthcare-security-pipeline/internal/domain/audit"
	"github.com/davidleathers/healthcare-security-pipeline/internal/domain/errors"
)

// InvestigationRepository persists investigations in PostgreSQL
type InvestigationRepository struct {
	db *pgxpool.Pool
}

func NewInvestigationRepository(db *pgxpool.Pool) *InvestigationRepository {
	return &InvestigationRepository{db: db}
}

const investigationColumns = `
	id, event_id, requested_by, requested_at, reason, priority,
	status, assigned_to, findings, resolution, actions, updated_at`

func (r *InvestigationRepository) Insert(ctx context.Context, inv *audit.Investigation) error {
	query := `
		INSERT INTO investigations (` + investigationColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err := r.db.Exec(ctx, query,
		inv.ID,
		inv.EventID,
		inv.RequestedBy,
		inv.RequestedAt,
		inv.Reason,
		string(inv.Priority),
		string(inv.Status),
		inv.AssignedTo,
		inv.Findings,
		inv.Resolution,
		inv.Actions,
		inv.UpdatedAt,
	)
	if err != nil {
		return errors.NewStorageWriteError("failed to insert investigation").WithCause(err)
	}
	return nil
}

func (r *InvestigationRepository) Update(ctx context.Context, inv *audit.Investigation) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE investigations
		SET status = $2, assigned_to = $3, findings = $4,
			resolution = $5, actions = $6, updated_at = $7
		WHERE id = $1`,
		inv.ID,
		string(inv.Status),
		inv.AssignedTo,
		inv.Findings,
		inv.Resolution,
		inv.Actions,
		inv.UpdatedAt,
	)
	if err != nil {
		return errors.NewStorageWriteError("failed to update investigation").WithCause(err)
	}
	if tag.RowsAffected() == 0 {
		return errors.NewNotFoundError("investigation")
	}
	return nil
}

func (r *InvestigationRepository) GetByID(ctx context.Context, id uuid.UUID) (*audit.Investigation, error) {
	query := `SELECT ` + investigationColumns + ` FROM investigations WHERE id = $1`

	inv, err := scanInvestigation(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, errors.NewNotFoundError("investigation")
		}
		return nil, errors.NewStorageReadError("failed to load investigation").WithCause(err)
	}
	return inv, nil
}

func (r *InvestigationRepository) Query(ctx context.Context, filter audit.InvestigationFilter) ([]*audit.Investigation, error) {
	var conds []string
	var args []interface{}

	add := func(cond string, value interface{}) {
		args = append(args, value)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if filter.EventID != nil {
		add("event_id = $%d", *filter.EventID)
	}
	if filter.Status != "" {
		add("status = $%d", string(filter.Status))
	}
	if filter.Priority != "" {
		add("priority = $%d", string(filter.Priority))
	}
	if filter.AssignedTo != "" {
		add("assigned_to = $%d", filter.AssignedTo)
	}

	query := `SELECT ` + investigationColumns + ` FROM investigations`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY requested_at DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" OFFSET $%d LIMIT $%d", len(args)+1, len(args)+2)
		args = append(args, filter.Offset, filter.Limit)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.NewStorageReadError("failed to query investigations").WithCause(err)
	}
	defer rows.Close()

	var investigations []*audit.Investigation
	for rows.Next() {
		inv, err := scanInvestigation(rows)
		if err != nil {
			return nil, errors.NewStorageReadError("failed to scan investigation").WithCause(err)
		}
		investigations = append(investigations, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewStorageReadError("failed reading investigations").WithCause(err)
	}
	return investigations, nil
}

func scanInvestigation(row rowScanner) (*audit.Investigation, error) {
	var (
		inv      audit.Investigation
		priority string
		status   string
	)
	err := row.Scan(
		&inv.ID,
		&inv.EventID,
		&inv.RequestedBy,
		&inv.RequestedAt,
		&inv.Reason,
		&priority,
		&status,
		&inv.AssignedTo,
		&inv.Findings,
		&inv.Resolution,
		&inv.Actions,
		&inv.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	inv.Priority = audit.InvestigationPriority(priority)
	inv.Status = audit.InvestigationStatus(status)
	return &inv, nil
}
