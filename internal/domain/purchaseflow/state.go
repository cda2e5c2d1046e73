// Package purchaseflow contiene las reglas puras de las máquinas de estado del flujo de compras:
// pedido de compra (PENDENTE -> APPROVED) y documento de proveedor (PRE_BAIXA -> ... -> EFETIVADO_CD).
package purchaseflow

import (
	"github.com/jhoicas/eca-purchase-flow/internal/domain"
	"github.com/jhoicas/eca-purchase-flow/internal/domain/entity"
)

// Nombres de acción (contrato del evento entrante).
const (
	ActionCreateOrder     = "create_order"
	ActionApproveOrder    = "approve_order"
	ActionRegisterInvoice = "register_invoice"
	ActionArriveAtCD      = "arrive_at_cd"
	ActionStartConference = "start_conference"
	ActionScanItems       = "scan_items"
	ActionEffectuateCD    = "effectuate_cd"
)

// Claves de atributos estampadas por las transiciones.
const (
	AttrArrivedAt           = "chegada_cd_em"
	AttrConferenceStartedAt = "conferencia_iniciada_em"
	AttrLastConferenceAt    = "ultima_conferencia_em"
	AttrEffectuatedAt       = "efetivado_em"
	AttrDiscrepancies       = "divergencias"
	AttrLocationExternalID  = "location_external_id"
)

var orderStatuses = []string{
	entity.OrderStatusPending,
	entity.OrderStatusApproved,
}

var documentStatuses = []string{
	entity.DocumentStatusPreBaixa,
	entity.DocumentStatusAwaitingConference,
	entity.DocumentStatusInConference,
	entity.DocumentStatusConferenceOK,
	entity.DocumentStatusConferenceDivergent,
	entity.DocumentStatusEffectuated,
}

// allowedFrom estados de origen permitidos por acción guardada.
var allowedFrom = map[string][]string{
	ActionApproveOrder:    {entity.OrderStatusPending},
	ActionArriveAtCD:      {entity.DocumentStatusPreBaixa},
	ActionStartConference: {entity.DocumentStatusPreBaixa, entity.DocumentStatusAwaitingConference},
	ActionScanItems: {
		entity.DocumentStatusInConference,
		entity.DocumentStatusConferenceOK,
		entity.DocumentStatusConferenceDivergent,
	},
	ActionEffectuateCD: {entity.DocumentStatusConferenceOK, entity.DocumentStatusConferenceDivergent},
}

// targetStatus estado destino fijo por acción; scan_items no figura porque su destino se deriva.
var targetStatus = map[string]string{
	ActionApproveOrder:    entity.OrderStatusApproved,
	ActionArriveAtCD:      entity.DocumentStatusAwaitingConference,
	ActionStartConference: entity.DocumentStatusInConference,
	ActionEffectuateCD:    entity.DocumentStatusEffectuated,
}

// InitialStatus estado inicial de cada tipo de transacción.
func InitialStatus(transactionType string) string {
	switch transactionType {
	case entity.TransactionTypeOrderPurchase:
		return entity.OrderStatusPending
	case entity.TransactionTypeDocumentSupplierIn:
		return entity.DocumentStatusPreBaixa
	case entity.TransactionTypeInventoryMovement:
		return entity.MovementStatusExecuted
	}
	return ""
}

// IsKnownTransactionType indica si el tipo es uno de los tres manejados por el flujo.
func IsKnownTransactionType(transactionType string) bool {
	return InitialStatus(transactionType) != ""
}

// IsValidStatus indica si status pertenece a la máquina de estados del tipo de transacción.
func IsValidStatus(transactionType, status string) bool {
	switch transactionType {
	case entity.TransactionTypeOrderPurchase:
		return contains(orderStatuses, status)
	case entity.TransactionTypeDocumentSupplierIn:
		return contains(documentStatuses, status)
	case entity.TransactionTypeInventoryMovement:
		return status == entity.MovementStatusExecuted
	}
	return false
}

// AllowedFrom devuelve copia de los estados de origen permitidos para la acción.
func AllowedFrom(action string) []string {
	return append([]string(nil), allowedFrom[action]...)
}

// Guard valida que la acción pueda ejecutarse desde current. Devuelve *domain.GuardError si no.
func Guard(action, externalID, current string) error {
	expected, ok := allowedFrom[action]
	if !ok {
		return &domain.ValidationError{Action: action, Field: "action", Reason: "no es una acción guardada"}
	}
	if contains(expected, current) {
		return nil
	}
	return &domain.GuardError{
		Action:     action,
		ExternalID: externalID,
		Expected:   AllowedFrom(action),
		Actual:     current,
	}
}

// TargetStatus estado destino de una acción con destino fijo.
func TargetStatus(action string) (string, bool) {
	s, ok := targetStatus[action]
	return s, ok
}

// IsTerminal indica si no hay transiciones definidas desde status.
func IsTerminal(status string) bool {
	return status == entity.OrderStatusApproved || status == entity.DocumentStatusEffectuated
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
