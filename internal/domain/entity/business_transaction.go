package entity

import "time"

// Tipos de transacción de negocio.
const (
	TransactionTypeOrderPurchase      = "ORDER_PURCHASE"
	TransactionTypeDocumentSupplierIn = "DOCUMENT_SUPPLIER_IN"
	TransactionTypeInventoryMovement  = "INVENTORY_MOVEMENT"
)

// Estados del pedido de compra.
const (
	OrderStatusPending  = "PENDENTE"
	OrderStatusApproved = "APPROVED"
)

// Estados del documento de proveedor (recepción en CD).
const (
	DocumentStatusPreBaixa            = "PRE_BAIXA"
	DocumentStatusAwaitingConference  = "AGUARDANDO_CONFERENCIA_CD"
	DocumentStatusInConference        = "EM_CONFERENCIA_CD"
	DocumentStatusConferenceOK        = "CONFERENCIA_CD_SEM_DIVERGENCIA"
	DocumentStatusConferenceDivergent = "CONFERENCIA_CD_COM_DIVERGENCIA"
	DocumentStatusEffectuated         = "EFETIVADO_CD"
)

// MovementStatusExecuted estado fijo de los movimientos de inventario (sin máquina de estados).
const MovementStatusExecuted = "MOVIMENTO_EXECUTADO"

// StateHistoryKey clave del historial dentro del bag de atributos persistido.
const StateHistoryKey = "state_history"

// StateTransition entrada del historial de estados.
type StateTransition struct {
	From           string    `json:"from"`
	To             string    `json:"to"`
	TransitionedAt time.Time `json:"transitioned_at"`
}

// BusinessTransaction pedido de compra, documento de proveedor o movimiento de inventario.
// Version se incrementa en cada escritura y condiciona la siguiente (compare-and-swap).
type BusinessTransaction struct {
	ID              string
	OrganizationID  string
	TransactionType string
	ExternalID      *string // nil para INVENTORY_MOVEMENT
	Status          string
	Attributes      map[string]any
	StateHistory    []StateTransition
	Version         int64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// ExternalIDValue devuelve el external id o "" si no tiene.
func (t *BusinessTransaction) ExternalIDValue() string {
	if t.ExternalID == nil {
		return ""
	}
	return *t.ExternalID
}
