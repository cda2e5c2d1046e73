package purchaseflow

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jhoicas/eca-purchase-flow/internal/domain/entity"
	"github.com/jhoicas/eca-purchase-flow/internal/domain/repository"
	"github.com/jhoicas/eca-purchase-flow/pkg/logger"
)

// Códigos de evento de auditoría.
const (
	EventPurchaseOrderCreated  = "purchase_order_created"
	EventPurchaseOrderApproved = "purchase_order_approved"
	EventInvoiceRegistered     = "invoice_registered"
	EventArrivedAtCD           = "arrived_at_cd"
	EventConferenceStarted     = "conference_started"
	EventReceiptItemScannedOK  = "receipt_item_scanned_ok"
	EventCDEffectuated         = "cd_effectuated"
)

// EventRecorder escribe el log de auditoría en modo best-effort: un fallo del store se registra
// en el log y se descarta, nunca hace fallar la operación que lo invoca.
type EventRecorder struct {
	repo     repository.EventRepository
	log      *logger.Logger
	observer Observer
	now      func() time.Time
}

// NewEventRecorder construye el recorder. observer puede ser nil.
func NewEventRecorder(repo repository.EventRepository, log *logger.Logger, observer Observer) *EventRecorder {
	if observer == nil {
		observer = nopObserver{}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &EventRecorder{repo: repo, log: log, observer: observer, now: time.Now}
}

// Record agrega el evento. No devuelve error.
func (r *EventRecorder) Record(ctx context.Context, entityType, entityID, code string, payload map[string]any) {
	if payload == nil {
		payload = map[string]any{}
	}
	ev := &entity.BusinessEvent{
		ID:         uuid.New().String(),
		EntityType: entityType,
		EntityID:   entityID,
		EventCode:  code,
		Payload:    payload,
		CreatedAt:  r.now().UTC(),
	}
	if err := r.repo.Append(ctx, ev); err != nil {
		r.observer.EventRecordFailed(code)
		r.log.Warn().Err(err).
			Str("event_code", code).
			Str("entity_type", entityType).
			Str("entity_id", entityID).
			Msg("evento de auditoría descartado")
	}
}
