package audit

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/davidleathers/healthcare-security-pipeline/internal/domain/audit"
	"github.com/davidleathers/healthcare-security-pipeline/internal/domain/errors"
)

func (t *Trail) CreateInvestigation(ctx context.Context, eventID uuid.UUID, requestedBy, reason string, priority audit.InvestigationPriority) (*audit.Investigation, error) {
	ctx, span := t.tracer.Start(ctx, "audit.create_investigation")
	defer span.End()

	// Every investigation must reference an existing event.
	event := t.ring.Find(func(e *audit.Event) bool { return e.ID == eventID })
	if event == nil {
		stored, err := t.events.GetByID(ctx, eventID)
		if err != nil {
			return nil, errors.NewStorageReadError("audit event lookup failed").WithCause(err)
		}
		if stored == nil {
			return nil, errors.NewNotFoundError("audit event")
		}
		event = stored
	}

	inv, err := audit.NewInvestigation(eventID, requestedBy, reason, priority)
	if err != nil {
		return nil, err
	}
	if err := t.investigations.Insert(ctx, inv); err != nil {
		return nil, errors.NewStorageWriteError("investigation insert failed").WithCause(err)
	}

	if event.InvestigationStatus == "" {
		event.InvestigationStatus = audit.InvestigationPending
	}

	t.logger.Info("investigation created",
		zap.String("investigation_id", inv.ID.String()),
		zap.String("event_id", eventID.String()),
		zap.String("requested_by", requestedBy))

	if record, err := audit.NewEvent(audit.EventInvestigationAdded, audit.CategorySystem,
		audit.SeverityLow, audit.OutcomeSuccess, event.TenantID); err == nil {
		record.WithActor(requestedBy, "").
			WithDetail("investigation_id", inv.ID.String()).
			WithDetail("event_id", eventID.String()).
			WithDetail("priority", string(priority))
		if _, err := t.LogEvent(ctx, record); err != nil {
			t.logger.Warn("failed to audit investigation creation", zap.Error(err))
		}
	}
	return inv, nil
}

func (t *Trail) UpdateInvestigation(ctx context.Context, id uuid.UUID, update audit.InvestigationUpdate) (*audit.Investigation, error) {
	ctx, span := t.tracer.Start(ctx, "audit.update_investigation")
	defer span.End()

	inv, err := t.investigations.GetByID(ctx, id)
	if err != nil {
		return nil, errors.NewStorageReadError("investigation lookup failed").WithCause(err)
	}
	if inv == nil {
		return nil, errors.NewNotFoundError("investigation")
	}

	if err := inv.Apply(update); err != nil {
		return nil, err
	}
	if err := t.investigations.Update(ctx, inv); err != nil {
		return nil, errors.NewStorageWriteError("investigation update failed").WithCause(err)
	}

	// Resolution back-fills the originating event so the audit record
	// reflects the outcome without a join.
	if inv.Status == audit.InvestigationResolved {
		t.backfillEvent(ctx, inv)
	}

	return inv, nil
}

func (t *Trail) GetInvestigations(ctx context.Context, filter audit.InvestigationFilter) ([]*audit.Investigation, error) {
	ctx, span := t.tracer.Start(ctx, "audit.get_investigations")
	defer span.End()

	if filter.Limit <= 0 {
		filter.Limit = audit.DefaultPageLimit
	}
	invs, err := t.investigations.Query(ctx, filter)
	if err != nil {
		return nil, errors.NewStorageReadError("investigation query failed").WithCause(err)
	}
	return invs, nil
}

func (t *Trail) backfillEvent(ctx context.Context, inv *audit.Investigation) {
	notes := inv.Resolution
	if notes == "" {
		notes = inv.Findings
	}

	if event := t.ring.Find(func(e *audit.Event) bool { return e.ID == inv.EventID }); event != nil {
		event.InvestigationStatus = audit.InvestigationResolved
		event.InvestigationNotes = notes
	}

	if err := t.events.UpdateInvestigationStatus(ctx, inv.EventID, audit.InvestigationResolved, notes); err != nil {
		t.logger.Error("failed to back-fill event investigation status",
			zap.String("event_id", inv.EventID.String()),
			zap.String("investigation_id", inv.ID.String()),
			zap.Error(err))
	}
}
