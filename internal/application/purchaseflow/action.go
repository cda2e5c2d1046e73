package purchaseflow

import (
	"context"

	"github.com/jhoicas/eca-purchase-flow/internal/domain/purchaseflow"
	"github.com/shopspring/decimal"
)

// Action una de las siete acciones del flujo de compras. Cada variante se despacha a sí misma,
// así que agregar una acción obliga a implementar su ejecución.
type Action interface {
	Name() string
	execute(ctx context.Context, o *Orchestrator, organizationID string) (*Result, error)
}

// OrderItem línea de un pedido de compra.
type OrderItem struct {
	ProductExternalID string
	ProductName       string
	Quantity          decimal.Decimal
	UnitPrice         decimal.Decimal
}

// CreateOrder crea un pedido de compra en PENDENTE.
type CreateOrder struct {
	ExternalID         string
	SupplierExternalID string
	SupplierName       string
	Items              []OrderItem
	TotalValue         decimal.Decimal
	IssueDate          string
	ExpectedDelivery   string
	Extra              map[string]any
}

// ApproveOrder PENDENTE -> APPROVED.
type ApproveOrder struct {
	ExternalID string
}

// RegisterInvoice registra un documento de proveedor en PRE_BAIXA basado en un pedido existente.
type RegisterInvoice struct {
	ExternalID              string
	PurchaseOrderExternalID string
	SupplierExternalID      string
	LocationExternalID      string
	TotalValue              decimal.Decimal
	IssueDate               string
	Extra                   map[string]any
}

// ArriveAtCD PRE_BAIXA -> AGUARDANDO_CONFERENCIA_CD.
type ArriveAtCD struct {
	InvoiceExternalID  string
	LocationExternalID string
}

// StartConference PRE_BAIXA | AGUARDANDO_CONFERENCIA_CD -> EM_CONFERENCIA_CD.
type StartConference struct {
	InvoiceExternalID string
}

// ScannedItem ítem escaneado en conferencia. QtyDiff nil = QtyScanned - QtyExpected.
type ScannedItem struct {
	ProductExternalID  string
	VariantExternalID  string
	LocationExternalID string
	QtyExpected        decimal.Decimal
	QtyScanned         decimal.Decimal
	QtyDiff            *decimal.Decimal
	Extra              map[string]any
}

// Diff diferencia informada o calculada.
func (i ScannedItem) Diff() decimal.Decimal {
	if i.QtyDiff != nil {
		return *i.QtyDiff
	}
	return i.QtyScanned.Sub(i.QtyExpected)
}

// ScanItems registra un lote de ítems escaneados; repetible mientras dure la conferencia.
// EventUUID identifica la entrega: un reintento con el mismo uuid no repite movimientos ya
// registrados. Vacío = sin deduplicación.
type ScanItems struct {
	InvoiceExternalID string
	Items             []ScannedItem
	EventUUID         string
}

// EffectuateCD conferencia terminada -> EFETIVADO_CD (terminal).
type EffectuateCD struct {
	InvoiceExternalID string
}

func (CreateOrder) Name() string     { return purchaseflow.ActionCreateOrder }
func (ApproveOrder) Name() string    { return purchaseflow.ActionApproveOrder }
func (RegisterInvoice) Name() string { return purchaseflow.ActionRegisterInvoice }
func (ArriveAtCD) Name() string      { return purchaseflow.ActionArriveAtCD }
func (StartConference) Name() string { return purchaseflow.ActionStartConference }
func (ScanItems) Name() string       { return purchaseflow.ActionScanItems }
func (EffectuateCD) Name() string    { return purchaseflow.ActionEffectuateCD }

func (a CreateOrder) execute(ctx context.Context, o *Orchestrator, org string) (*Result, error) {
	return o.createOrder(ctx, org, a)
}

func (a ApproveOrder) execute(ctx context.Context, o *Orchestrator, org string) (*Result, error) {
	return o.approveOrder(ctx, org, a)
}

func (a RegisterInvoice) execute(ctx context.Context, o *Orchestrator, org string) (*Result, error) {
	return o.registerInvoice(ctx, org, a)
}

func (a ArriveAtCD) execute(ctx context.Context, o *Orchestrator, org string) (*Result, error) {
	return o.arriveAtCD(ctx, org, a)
}

func (a StartConference) execute(ctx context.Context, o *Orchestrator, org string) (*Result, error) {
	return o.startConference(ctx, org, a)
}

func (a ScanItems) execute(ctx context.Context, o *Orchestrator, org string) (*Result, error) {
	return o.scanItems(ctx, org, a)
}

func (a EffectuateCD) execute(ctx context.Context, o *Orchestrator, org string) (*Result, error) {
	return o.effectuateCD(ctx, org, a)
}
