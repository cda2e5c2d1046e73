package purchaseflow

import (
	"context"
	"fmt"

	"github.com/jhoicas/eca-purchase-flow/internal/application/dto"
	"github.com/jhoicas/eca-purchase-flow/internal/domain"
	"github.com/jhoicas/eca-purchase-flow/internal/domain/entity"
	"github.com/jhoicas/eca-purchase-flow/internal/domain/purchaseflow"
	"github.com/jhoicas/eca-purchase-flow/internal/domain/repository"
)

// QueryService lecturas del estado del flujo (sin efectos).
type QueryService struct {
	transactions repository.TransactionRepository
	snapshots    repository.SnapshotRepository
	events       repository.EventRepository
}

// NewQueryService construye el servicio de lectura sobre los repositorios del pool.
func NewQueryService(repos Repositories) *QueryService {
	return &QueryService{transactions: repos.Transactions, snapshots: repos.Snapshots, events: repos.Events}
}

// GetTransaction devuelve la transacción con su historial de estados.
func (s *QueryService) GetTransaction(ctx context.Context, organizationID, transactionType, externalID string) (*dto.TransactionResponse, error) {
	if !purchaseflow.IsKnownTransactionType(transactionType) {
		return nil, &domain.ValidationError{Action: "get_transaction", Field: "transaction_type", Reason: "desconocido"}
	}
	t, err := s.transactions.GetByExternalID(ctx, organizationID, transactionType, externalID)
	if err != nil {
		return nil, fmt.Errorf("leer %s %q: %w", transactionType, externalID, err)
	}
	if t == nil {
		return nil, &domain.NotFoundError{Kind: transactionType, ExternalID: externalID}
	}
	out := &dto.TransactionResponse{
		ID:              t.ID,
		OrganizationID:  t.OrganizationID,
		TransactionType: t.TransactionType,
		ExternalID:      t.ExternalIDValue(),
		Status:          t.Status,
		Attributes:      t.Attributes,
		StateHistory:    make([]dto.StateHistoryEntryDTO, 0, len(t.StateHistory)),
		Version:         t.Version,
		CreatedAt:       t.CreatedAt,
		UpdatedAt:       t.UpdatedAt,
	}
	for _, h := range t.StateHistory {
		out.StateHistory = append(out.StateHistory, dto.StateHistoryEntryDTO{From: h.From, To: h.To, TransitionedAt: h.TransitionedAt})
	}
	return out, nil
}

// ListEvents devuelve la página pedida del log de auditoría de la transacción, en orden cronológico.
func (s *QueryService) ListEvents(ctx context.Context, organizationID, transactionType, externalID string, page dto.PageRequest) (*dto.EventListResponse, error) {
	if !purchaseflow.IsKnownTransactionType(transactionType) {
		return nil, &domain.ValidationError{Action: "list_events", Field: "transaction_type", Reason: "desconocido"}
	}
	page.DefaultPage()
	if page.Limit > 100 {
		page.Limit = 100
	}
	t, err := s.transactions.GetByExternalID(ctx, organizationID, transactionType, externalID)
	if err != nil {
		return nil, fmt.Errorf("leer %s %q: %w", transactionType, externalID, err)
	}
	if t == nil {
		return nil, &domain.NotFoundError{Kind: transactionType, ExternalID: externalID}
	}
	events, err := s.events.ListByEntity(ctx, t.TransactionType, t.ID)
	if err != nil {
		return nil, fmt.Errorf("listar eventos de %s %q: %w", transactionType, externalID, err)
	}
	out := &dto.EventListResponse{
		Items: []dto.EventResponse{},
		Page:  dto.PageResponse{Limit: page.Limit, Offset: page.Offset, Total: len(events)},
	}
	for i := page.Offset; i < len(events) && i < page.Offset+page.Limit; i++ {
		ev := events[i]
		out.Items = append(out.Items, dto.EventResponse{
			ID:        ev.ID,
			EventCode: ev.EventCode,
			Payload:   ev.Payload,
			CreatedAt: ev.CreatedAt,
		})
	}
	return out, nil
}

// GetSnapshot devuelve el stock corriente de (variante, ubicación).
func (s *QueryService) GetSnapshot(ctx context.Context, organizationID, variantExternalID, locationExternalID string) (*dto.SnapshotResponse, error) {
	key := entity.SnapshotKey{
		OrganizationID:     organizationID,
		VariantExternalID:  variantExternalID,
		LocationExternalID: locationExternalID,
	}
	snap, err := s.snapshots.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("leer snapshot %s: %w", key, err)
	}
	if snap == nil {
		return nil, &domain.NotFoundError{Kind: "INVENTORY_SNAPSHOT", ExternalID: variantExternalID + "@" + locationExternalID}
	}
	return &dto.SnapshotResponse{
		OrganizationID:     key.OrganizationID,
		VariantExternalID:  key.VariantExternalID,
		LocationExternalID: key.LocationExternalID,
		CurrentStock:       snap.CurrentStock,
		LastMovement:       snap.LastMovement,
		LastMovementRef:    snap.LastMovementRef,
		LastUpdated:        snap.LastUpdated,
	}, nil
}
