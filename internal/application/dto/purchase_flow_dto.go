package dto

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// InboundEvent evento de entrada del flujo de compras (webhook HTTP o tópico Kafka).
type InboundEvent struct {
	Action         string          `json:"action" validate:"required"`
	OrganizationID string          `json:"organization_id"`
	Attributes     json.RawMessage `json:"attributes"`
	Metadata       *EventMetadata  `json:"metadata,omitempty"`
}

// EventMetadata metadatos opcionales del emisor. EventUUID permite al emisor fijar el id de correlación.
type EventMetadata struct {
	SourceSystem string `json:"source_system,omitempty"`
	UserID       string `json:"user_id,omitempty"`
	Timestamp    string `json:"timestamp,omitempty"`
	EventUUID    string `json:"event_uuid,omitempty"`
}

// OrderItemPayload línea de create_order.
type OrderItemPayload struct {
	ProductExternalID string          `json:"product_external_id" validate:"required"`
	ProductName       string          `json:"product_name"`
	Quantity          decimal.Decimal `json:"quantity"`
	UnitPrice         decimal.Decimal `json:"unit_price"`
}

// CreateOrderPayload atributos de create_order.
type CreateOrderPayload struct {
	ExternalID         string             `json:"external_id" validate:"required"`
	SupplierExternalID string             `json:"supplier_external_id" validate:"required"`
	SupplierName       string             `json:"supplier_name"`
	Items              []OrderItemPayload `json:"items" validate:"required,min=1,dive"`
	TotalValue         decimal.Decimal    `json:"total_value"`
	IssueDate          string             `json:"issue_date"`
	ExpectedDelivery   string             `json:"expected_delivery"`
}

// ApproveOrderPayload atributos de approve_order.
type ApproveOrderPayload struct {
	ExternalID string `json:"external_id" validate:"required"`
}

// RegisterInvoicePayload atributos de register_invoice.
type RegisterInvoicePayload struct {
	ExternalID              string          `json:"external_id" validate:"required"`
	PurchaseOrderExternalID string          `json:"purchase_order_external_id" validate:"required"`
	SupplierExternalID      string          `json:"supplier_external_id"`
	LocationExternalID      string          `json:"location_external_id"`
	TotalValue              decimal.Decimal `json:"total_value"`
	IssueDate               string          `json:"issue_date"`
}

// DocumentPayload atributos de arrive_at_cd, start_conference y effectuate_cd.
// Se acepta invoice_external_id como alias de external_id.
type DocumentPayload struct {
	ExternalID         string `json:"external_id" validate:"required"`
	LocationExternalID string `json:"location_external_id"`
}

// ScannedItemPayload ítem de scan_items. qty_diff ausente se calcula como qty_scanned - qty_expected.
type ScannedItemPayload struct {
	ProductExternalID  string           `json:"product_external_id" validate:"required"`
	VariantExternalID  string           `json:"variant_external_id"`
	LocationExternalID string           `json:"location_external_id"`
	QtyExpected        decimal.Decimal  `json:"qty_expected"`
	QtyScanned         decimal.Decimal  `json:"qty_scanned"`
	QtyDiff            *decimal.Decimal `json:"qty_diff"`
}

// ScanItemsPayload atributos de scan_items.
type ScanItemsPayload struct {
	ExternalID string               `json:"external_id" validate:"required"`
	Items      []ScannedItemPayload `json:"items" validate:"required,min=1,dive"`
}

// OutboundResult respuesta del procesamiento de un evento, tanto en éxito como en fallo.
type OutboundResult struct {
	Success         bool                `json:"success"`
	Action          string              `json:"action"`
	TransactionID   string              `json:"transaction_id,omitempty"`
	EntityIDs       []string            `json:"entity_ids,omitempty"`
	RelationshipIDs []string            `json:"relationship_ids,omitempty"`
	StateTransition *StateTransitionDTO `json:"state_transition,omitempty"`
	Attributes      ResultAttributes    `json:"attributes"`
	Metadata        ResultMetadata      `json:"metadata"`
	Error           *ErrorResponse      `json:"error,omitempty"`
}

// StateTransitionDTO transición aplicada.
type StateTransitionDTO struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// ResultAttributes detalle del resultado.
type ResultAttributes struct {
	Success      bool             `json:"success"`
	EntityType   string           `json:"entityType,omitempty"`
	EntityID     string           `json:"entityId,omitempty"`
	ExternalID   string           `json:"external_id,omitempty"`
	Status       string           `json:"status,omitempty"`
	Replayed     bool             `json:"replayed,omitempty"`
	Summary      SummaryDTO       `json:"summary"`
	Divergencias []DiscrepancyDTO `json:"divergencias,omitempty"`
	ItemFailures []ItemFailureDTO `json:"item_failures,omitempty"`
}

// SummaryDTO conteos por registro.
type SummaryDTO struct {
	Message           string `json:"message"`
	RecordsProcessed  int    `json:"records_processed"`
	RecordsSuccessful int    `json:"records_successful"`
	RecordsFailed     int    `json:"records_failed"`
}

// DiscrepancyDTO divergencia de conferencia por SKU.
type DiscrepancyDTO struct {
	SKU         string          `json:"sku"`
	QtyExpected decimal.Decimal `json:"qty_expected"`
	QtyScanned  decimal.Decimal `json:"qty_scanned"`
	QtyDiff     decimal.Decimal `json:"qty_diff"`
	ScannedAt   time.Time       `json:"scanned_at"`
}

// ItemFailureDTO fallo de un ítem escaneado.
type ItemFailureDTO struct {
	ProductExternalID string `json:"product_external_id"`
	Reason            string `json:"reason"`
}

// ResultMetadata metadatos de trazabilidad, presentes siempre.
type ResultMetadata struct {
	ProcessedAt      time.Time `json:"processed_at"`
	ProcessingTimeMs int64     `json:"processing_time_ms"`
	OrganizationID   string    `json:"organization_id"`
	Action           string    `json:"action"`
	EventUUID        string    `json:"event_uuid"`
}

// TransactionResponse lectura de una transacción de negocio con su historial.
type TransactionResponse struct {
	ID              string                 `json:"id"`
	OrganizationID  string                 `json:"organization_id"`
	TransactionType string                 `json:"transaction_type"`
	ExternalID      string                 `json:"external_id,omitempty"`
	Status          string                 `json:"status"`
	Attributes      map[string]any         `json:"attributes"`
	StateHistory    []StateHistoryEntryDTO `json:"state_history"`
	Version         int64                  `json:"version"`
	CreatedAt       time.Time              `json:"created_at"`
	UpdatedAt       time.Time              `json:"updated_at"`
}

// StateHistoryEntryDTO entrada del historial de estados.
type StateHistoryEntryDTO struct {
	From           string    `json:"from"`
	To             string    `json:"to"`
	TransitionedAt time.Time `json:"transitioned_at"`
}

// SnapshotResponse stock corriente de una variante en una ubicación.
type SnapshotResponse struct {
	OrganizationID     string          `json:"organization_id"`
	VariantExternalID  string          `json:"variant_external_id"`
	LocationExternalID string          `json:"location_external_id"`
	CurrentStock       decimal.Decimal `json:"current_stock"`
	LastMovement       string          `json:"last_movement,omitempty"`
	LastMovementRef    string          `json:"last_movement_ref,omitempty"`
	LastUpdated        time.Time       `json:"last_updated"`
}

// EventResponse evento del log de auditoría.
type EventResponse struct {
	ID        string         `json:"id"`
	EventCode string         `json:"event_code"`
	Payload   map[string]any `json:"payload"`
	CreatedAt time.Time      `json:"created_at"`
}

// EventListResponse página de eventos de una transacción.
type EventListResponse struct {
	Items []EventResponse `json:"items"`
	Page  PageResponse    `json:"page"`
}
