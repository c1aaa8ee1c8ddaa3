package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/davidleathers/healthcare-security-pipeline/internal/domain/audit"
	"github.com/davidleathers/healthcare-security-pipeline/internal/domain/errors"
	"github.com/davidleathers/healthcare-security-pipeline/internal/domain/values"
)

// AuditEventRepository persists audit events in PostgreSQL
type AuditEventRepository struct {
	db *pgxpool.Pool
}

func NewAuditEventRepository(db *pgxpool.Pool) *AuditEventRepository {
	return &AuditEventRepository{db: db}
}

const auditEventColumns = `
	id, ts, event_type, category, severity, outcome,
	actor_id, session_id, subject_record_id, resource, tenant_id,
	risk_score, details, correlation_id,
	data_sensitivity, compliance_frameworks,
	retain_until, auto_delete, tags,
	requires_investigation, investigation_status, investigation_notes`

func (r *AuditEventRepository) Insert(ctx context.Context, event *audit.Event) error {
	detailsJSON, err := json.Marshal(event.Details)
	if err != nil {
		return errors.NewInternalError("failed to marshal event details").WithCause(err)
	}

	query := `
		INSERT INTO audit_events (` + auditEventColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11,
			$12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)`

	_, err = r.db.Exec(ctx, query,
		event.ID,
		event.Timestamp,
		string(event.Type),
		string(event.Category),
		string(event.Severity),
		string(event.Outcome),
		event.ActorID,
		event.SessionID,
		event.SubjectRecordID,
		event.Resource,
		event.TenantID,
		event.RiskScore.Int(),
		detailsJSON,
		event.CorrelationID,
		string(event.DataSensitivity),
		event.ComplianceFrameworks,
		event.Retention.RetainUntil,
		event.Retention.AutoDelete,
		event.Tags,
		event.RequiresInvestigation,
		string(event.InvestigationStatus),
		event.InvestigationNotes,
	)
	if err != nil {
		return errors.NewStorageWriteError("failed to insert audit event").WithCause(err)
	}
	return nil
}

func (r *AuditEventRepository) GetByID(ctx context.Context, id uuid.UUID) (*audit.Event, error) {
	query := `SELECT ` + auditEventColumns + ` FROM audit_events WHERE id = $1`

	event, err := scanEvent(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, errors.NewNotFoundError("audit event")
		}
		return nil, errors.NewStorageReadError("failed to load audit event").WithCause(err)
	}
	return event, nil
}

// Query returns the matching page plus the total match count.
func (r *AuditEventRepository) Query(ctx context.Context, filter audit.EventFilter) ([]*audit.Event, int, error) {
	where, args := buildEventWhere(filter)

	var total int
	countQuery := `SELECT COUNT(*) FROM audit_events` + where
	if err := r.db.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, errors.NewStorageReadError("failed to count audit events").WithCause(err)
	}

	order := orderClause(filter)
	query := fmt.Sprintf(`SELECT %s FROM audit_events%s%s OFFSET $%d LIMIT $%d`,
		auditEventColumns, where, order, len(args)+1, len(args)+2)
	args = append(args, filter.Offset, filter.Limit)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, errors.NewStorageReadError("failed to query audit events").WithCause(err)
	}
	defer rows.Close()

	var events []*audit.Event
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, 0, errors.NewStorageReadError("failed to scan audit event").WithCause(err)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, errors.NewStorageReadError("failed reading audit events").WithCause(err)
	}
	return events, total, nil
}

func (r *AuditEventRepository) UpdateInvestigationStatus(ctx context.Context, eventID uuid.UUID, status audit.InvestigationStatus, notes string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE audit_events SET investigation_status = $2, investigation_notes = $3 WHERE id = $1`,
		eventID, string(status), notes)
	if err != nil {
		return errors.NewStorageWriteError("failed to update investigation status").WithCause(err)
	}
	if tag.RowsAffected() == 0 {
		return errors.NewNotFoundError("audit event")
	}
	return nil
}

func (r *AuditEventRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM audit_events WHERE auto_delete AND retain_until <= $1`, now)
	if err != nil {
		return 0, errors.NewStorageWriteError("failed to delete expired audit events").WithCause(err)
	}
	return tag.RowsAffected(), nil
}

func buildEventWhere(filter audit.EventFilter) (string, []interface{}) {
	var conds []string
	var args []interface{}

	add := func(cond string, value interface{}) {
		args = append(args, value)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if !filter.From.IsZero() {
		add("ts >= $%d", filter.From)
	}
	if !filter.To.IsZero() {
		add("ts <= $%d", filter.To)
	}
	if filter.ActorID != "" {
		add("actor_id = $%d", filter.ActorID)
	}
	if len(filter.Types) > 0 {
		add("event_type = ANY($%d)", asStrings(filter.Types))
	}
	if len(filter.Categories) > 0 {
		add("category = ANY($%d)", asStrings(filter.Categories))
	}
	if len(filter.Severities) > 0 {
		add("severity = ANY($%d)", asStrings(filter.Severities))
	}
	if filter.Outcome != "" {
		add("outcome = $%d", string(filter.Outcome))
	}
	if filter.Resource != "" {
		add("resource = $%d", filter.Resource)
	}
	if filter.SubjectRecordID != "" {
		add("subject_record_id = $%d", filter.SubjectRecordID)
	}
	if filter.TenantID != "" {
		add("tenant_id = $%d", filter.TenantID)
	}
	if filter.Framework != "" {
		add("$%d = ANY(compliance_frameworks)", filter.Framework)
	}
	if filter.Sensitivity != "" {
		add("data_sensitivity = $%d", string(filter.Sensitivity))
	}
	if filter.MinRiskScore != nil {
		add("risk_score >= $%d", *filter.MinRiskScore)
	}
	if filter.MaxRiskScore != nil {
		add("risk_score <= $%d", *filter.MaxRiskScore)
	}
	if len(filter.Tags) > 0 {
		add("tags @> $%d", filter.Tags)
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func orderClause(filter audit.EventFilter) string {
	column := "ts"
	switch filter.SortBy {
	case audit.SortByRisk:
		column = "risk_score"
	case audit.SortBySeverity:
		// Severity sorts by rank, not alphabetically.
		column = `CASE severity WHEN 'critical' THEN 4 WHEN 'high' THEN 3 WHEN 'medium' THEN 2 ELSE 1 END`
	}
	direction := "ASC"
	if filter.Descending {
		direction = "DESC"
	}
	return fmt.Sprintf(" ORDER BY %s %s, id ASC", column, direction)
}

func asStrings[T ~string](in []T) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = string(v)
	}
	return out
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEvent(row rowScanner) (*audit.Event, error) {
	var (
		event       audit.Event
		eventType   string
		category    string
		severity    string
		outcome     string
		riskScore   int
		detailsJSON []byte
		sensitivity string
		invStatus   string
	)

	err := row.Scan(
		&event.ID,
		&event.Timestamp,
		&eventType,
		&category,
		&severity,
		&outcome,
		&event.ActorID,
		&event.SessionID,
		&event.SubjectRecordID,
		&event.Resource,
		&event.TenantID,
		&riskScore,
		&detailsJSON,
		&event.CorrelationID,
		&sensitivity,
		&event.ComplianceFrameworks,
		&event.Retention.RetainUntil,
		&event.Retention.AutoDelete,
		&event.Tags,
		&event.RequiresInvestigation,
		&invStatus,
		&event.InvestigationNotes,
	)
	if err != nil {
		return nil, err
	}

	event.Type = audit.EventType(eventType)
	event.Category = audit.Category(category)
	event.Severity = audit.Severity(severity)
	event.Outcome = audit.Outcome(outcome)
	event.DataSensitivity = audit.Sensitivity(sensitivity)
	event.InvestigationStatus = audit.InvestigationStatus(invStatus)
	event.RiskScore = values.ClampRiskScore(riskScore)

	if len(detailsJSON) > 0 {
		if err := json.Unmarshal(detailsJSON, &event.Details); err != nil {
			return nil, fmt.Errorf("unmarshaling event details: %w", err)
		}
	}
	return &event, nil
}
