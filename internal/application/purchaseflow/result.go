package purchaseflow

import "github.com/jhoicas/eca-purchase-flow/internal/domain/purchaseflow"

// Summary conteos por registro; en scan_items un fallo de un ítem no aborta el lote.
type Summary struct {
	Message           string
	RecordsProcessed  int
	RecordsSuccessful int
	RecordsFailed     int
}

// StateChange transición aplicada por la acción.
type StateChange struct {
	From string
	To   string
}

// ItemFailure fallo del efecto de inventario de un ítem escaneado.
type ItemFailure struct {
	ProductExternalID string
	Reason            string
}

// Result salida estructurada de una acción.
type Result struct {
	Action          string
	TransactionType string
	TransactionID   string
	ExternalID      string
	Status          string
	StateTransition *StateChange
	EntityIDs       []string
	RelationshipIDs []string
	Summary         Summary
	Discrepancies   []purchaseflow.Discrepancy
	ItemFailures    []ItemFailure
	// Replayed indica que la transacción ya existía y no se modificó nada.
	Replayed bool
}
