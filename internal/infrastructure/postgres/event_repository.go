package postgres

import (
	"context"
	"fmt"

	"github.com/jhoicas/eca-purchase-flow/internal/domain/entity"
	"github.com/jhoicas/eca-purchase-flow/internal/domain/repository"
)

var _ repository.EventRepository = (*EventRepo)(nil)

// EventRepo log de auditoría append-only.
type EventRepo struct {
	q Querier
}

// NewEventRepository construye el adaptador. Pasar pool o tx (Querier).
func NewEventRepository(q Querier) *EventRepo {
	return &EventRepo{q: q}
}

// Append inserta el evento.
func (r *EventRepo) Append(ctx context.Context, ev *entity.BusinessEvent) error {
	payload, err := jsonb(ev.Payload)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO business_events (id, entity_type, entity_id, event_code, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	if _, err := r.q.Exec(ctx, query, ev.ID, ev.EntityType, ev.EntityID, ev.EventCode, payload, ev.CreatedAt); err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// ListByEntity eventos de una entidad/transacción en orden cronológico.
func (r *EventRepo) ListByEntity(ctx context.Context, entityType, entityID string) ([]*entity.BusinessEvent, error) {
	query := `
		SELECT id, entity_type, entity_id, event_code, payload, created_at
		FROM business_events WHERE entity_type = $1 AND entity_id = $2
		ORDER BY created_at, id`
	rows, err := r.q.Query(ctx, query, entityType, entityID)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var list []*entity.BusinessEvent
	for rows.Next() {
		var (
			ev      entity.BusinessEvent
			payload []byte
		)
		if err := rows.Scan(&ev.ID, &ev.EntityType, &ev.EntityID, &ev.EventCode, &payload, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		if ev.Payload, err = fromJSONB(payload); err != nil {
			return nil, err
		}
		list = append(list, &ev)
	}
	return list, rows.Err()
}
