package purchaseflow_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/eca-purchase-flow/internal/application/purchaseflow"
	"github.com/jhoicas/eca-purchase-flow/internal/domain"
	"github.com/jhoicas/eca-purchase-flow/internal/domain/entity"
	domainflow "github.com/jhoicas/eca-purchase-flow/internal/domain/purchaseflow"
)

// ──────────────────────────────────────────────────────────────────────────────
// Pedido de compra
// ──────────────────────────────────────────────────────────────────────────────

func TestCreateOrder_CreaPedidoProveedorYProductos(t *testing.T) {
	e := newEngine(t)

	res := e.handle(t, sampleOrder("PO-1"))

	assert.Equal(t, entity.OrderStatusPending, res.Status)
	assert.False(t, res.Replayed)
	assert.Len(t, res.EntityIDs, 3, "proveedor + 2 productos")
	assert.Len(t, res.RelationshipIDs, 3, "FROM_SUPPLIER + 2 CONTAINS_ITEM")
	assert.Equal(t, 2, res.Summary.RecordsProcessed)
	assert.Equal(t, 1, e.store.CountEntities(testOrg, entity.EntityTypeSupplier, "SUP-1"))
	assert.Equal(t, 1, e.store.CountEntities(testOrg, entity.EntityTypeProduct, "P1"))

	order := e.transaction(t, entity.TransactionTypeOrderPurchase, "PO-1")
	assert.Equal(t, "SUP-1", order.Attributes["supplier_external_id"])
	assert.Equal(t, "575", order.Attributes["total_value"])
	assert.EqualValues(t, 1, order.Version)

	events, err := e.store.Repositories().Events.ListByEntity(context.Background(), entity.TransactionTypeOrderPurchase, order.ID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, purchaseflow.EventPurchaseOrderCreated, events[0].EventCode)
}

func TestCreateOrder_Repetido_NoDuplicaNiModifica(t *testing.T) {
	e := newEngine(t)
	first := e.handle(t, sampleOrder("PO-1"))

	second := e.handle(t, sampleOrder("PO-1"))

	assert.True(t, second.Replayed)
	assert.Equal(t, first.TransactionID, second.TransactionID)
	assert.Equal(t, 1, e.store.CountTransactions(testOrg, entity.TransactionTypeOrderPurchase))
	assert.Equal(t, 1, e.store.CountEntities(testOrg, entity.EntityTypeSupplier, "SUP-1"))
}

func TestCreateOrder_ProductoCompartido_SeReutiliza(t *testing.T) {
	e := newEngine(t)
	e.handle(t, sampleOrder("PO-1"))
	e.handle(t, sampleOrder("PO-2"))

	assert.Equal(t, 1, e.store.CountEntities(testOrg, entity.EntityTypeProduct, "P1"))
	assert.Equal(t, 2, e.store.CountTransactions(testOrg, entity.TransactionTypeOrderPurchase))
}

func TestCreateOrder_SinItems_EsValidacion(t *testing.T) {
	e := newEngine(t)
	order := sampleOrder("PO-1")
	order.Items = nil

	_, err := e.orch.Handle(context.Background(), testOrg, order)

	var verr *domain.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "items", verr.Field)
	assert.Equal(t, 0, e.store.CountTransactions(testOrg, entity.TransactionTypeOrderPurchase))
}

func TestHandle_SinOrganizacion_EsValidacion(t *testing.T) {
	e := newEngine(t)

	_, err := e.orch.Handle(context.Background(), "", sampleOrder("PO-1"))

	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Equal(t, 1, e.obs.outcomes[domainflow.ActionCreateOrder+":"+purchaseflow.OutcomeValidation])
}

// Escenario A: aprobar un pedido pendiente.
func TestApproveOrder_PendenteAApproved(t *testing.T) {
	e := newEngine(t)
	e.handle(t, sampleOrder("PO-1"))

	res := e.handle(t, purchaseflow.ApproveOrder{ExternalID: "PO-1"})

	require.NotNil(t, res.StateTransition)
	assert.Equal(t, entity.OrderStatusPending, res.StateTransition.From)
	assert.Equal(t, entity.OrderStatusApproved, res.StateTransition.To)

	order := e.transaction(t, entity.TransactionTypeOrderPurchase, "PO-1")
	assert.Equal(t, entity.OrderStatusApproved, order.Status)
	require.Len(t, order.StateHistory, 1)
	assert.Equal(t, entity.StateTransition{From: entity.OrderStatusPending, To: entity.OrderStatusApproved, TransitionedAt: fixedNow}, order.StateHistory[0])
	assert.EqualValues(t, 2, order.Version)
	assert.Equal(t, 1, e.obs.outcomes[domainflow.ActionApproveOrder+":"+purchaseflow.OutcomeSuccess])
}

func TestApproveOrder_DosVeces_RechazaSinMutar(t *testing.T) {
	e := newEngine(t)
	e.handle(t, sampleOrder("PO-1"))
	e.handle(t, purchaseflow.ApproveOrder{ExternalID: "PO-1"})

	_, err := e.orch.Handle(context.Background(), testOrg, purchaseflow.ApproveOrder{ExternalID: "PO-1"})

	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	order := e.transaction(t, entity.TransactionTypeOrderPurchase, "PO-1")
	assert.Len(t, order.StateHistory, 1)
	assert.EqualValues(t, 2, order.Version)
}

func TestApproveOrder_Inexistente_EsNotFound(t *testing.T) {
	e := newEngine(t)

	_, err := e.orch.Handle(context.Background(), testOrg, purchaseflow.ApproveOrder{ExternalID: "PO-X"})

	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Equal(t, purchaseflow.OutcomeNotFound, purchaseflow.Outcome(err))
}

// ──────────────────────────────────────────────────────────────────────────────
// Documento de proveedor
// ──────────────────────────────────────────────────────────────────────────────

func TestRegisterInvoice_PedidoInexistente_EsNotFound(t *testing.T) {
	e := newEngine(t)

	_, err := e.orch.Handle(context.Background(), testOrg, purchaseflow.RegisterInvoice{
		ExternalID:              "INV-1",
		PurchaseOrderExternalID: "PO-NO-EXISTE",
	})

	var nf *domain.NotFoundError
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, entity.TransactionTypeOrderPurchase, nf.Kind)
	assert.Equal(t, 0, e.store.CountTransactions(testOrg, entity.TransactionTypeDocumentSupplierIn))
}

func TestRegisterInvoice_EnlazaPedidoYHeredaProveedor(t *testing.T) {
	e := newEngine(t)
	order := e.handle(t, sampleOrder("PO-1"))

	res := e.handle(t, purchaseflow.RegisterInvoice{ExternalID: "INV-1", PurchaseOrderExternalID: "PO-1"})

	assert.Equal(t, entity.DocumentStatusPreBaixa, res.Status)
	doc := e.document(t, "INV-1")
	assert.Equal(t, "SUP-1", doc.Attributes["supplier_external_id"])

	rels, err := e.store.Repositories().Relationships.ListBySource(context.Background(), doc.ID)
	require.NoError(t, err)
	require.Len(t, rels, 1)
	assert.Equal(t, entity.RelationshipBasedOnOrder, rels[0].RelationshipType)
	assert.Equal(t, order.TransactionID, rels[0].TargetID)
}

// Escenario B: recepción completa con divergencia.
func TestFlujoCompleto_ConDivergencia(t *testing.T) {
	e := newEngine(t)
	e.documentInConference(t)

	res := e.handle(t, purchaseflow.ScanItems{
		InvoiceExternalID: "INV-1",
		Items: []purchaseflow.ScannedItem{
			{ProductExternalID: "P1", QtyExpected: dec(10), QtyScanned: dec(8)},
			{ProductExternalID: "P2", QtyExpected: dec(4), QtyScanned: dec(4)},
		},
	})

	assert.Equal(t, entity.DocumentStatusConferenceDivergent, res.Status)
	assert.Equal(t, entity.DocumentStatusInConference, res.StateTransition.From)
	assert.Equal(t, 2, res.Summary.RecordsProcessed)
	assert.Equal(t, 2, res.Summary.RecordsSuccessful)
	assert.Equal(t, 0, res.Summary.RecordsFailed)
	require.Len(t, res.Discrepancies, 1)
	assert.Equal(t, "P1", res.Discrepancies[0].SKU)
	assert.True(t, res.Discrepancies[0].QtyDiff.Equal(dec(-2)))
	assert.Equal(t, 2, e.obs.scannedOK)

	// Un movimiento por ítem, también el que no tiene diferencia.
	assert.Equal(t, 2, e.store.CountTransactions(testOrg, entity.TransactionTypeInventoryMovement))

	snap, err := e.store.Repositories().Snapshots.Get(context.Background(), entity.SnapshotKey{
		OrganizationID: testOrg, VariantExternalID: "P1", LocationExternalID: "CD-01",
	})
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.True(t, snap.CurrentStock.Equal(dec(8)))
	assert.Equal(t, entity.MovementTypeCDReceipt, snap.LastMovement)

	done := e.handle(t, purchaseflow.EffectuateCD{InvoiceExternalID: "INV-1"})
	assert.Equal(t, entity.DocumentStatusEffectuated, done.Status)

	doc := e.document(t, "INV-1")
	statuses := make([]string, 0, len(doc.StateHistory))
	for _, h := range doc.StateHistory {
		statuses = append(statuses, h.To)
	}
	assert.Equal(t, []string{
		entity.DocumentStatusAwaitingConference,
		entity.DocumentStatusInConference,
		entity.DocumentStatusConferenceDivergent,
		entity.DocumentStatusEffectuated,
	}, statuses)
	assert.Contains(t, doc.Attributes, domainflow.AttrArrivedAt)
	assert.Contains(t, doc.Attributes, domainflow.AttrConferenceStartedAt)
	assert.Contains(t, doc.Attributes, domainflow.AttrLastConferenceAt)
	assert.Contains(t, doc.Attributes, domainflow.AttrEffectuatedAt)
}

func TestScanItems_SinDiferencia_SemDivergencia(t *testing.T) {
	e := newEngine(t)
	e.documentInConference(t)

	res := e.handle(t, purchaseflow.ScanItems{
		InvoiceExternalID: "INV-1",
		Items:             []purchaseflow.ScannedItem{{ProductExternalID: "P1", QtyExpected: dec(10), QtyScanned: dec(10)}},
	})

	assert.Equal(t, entity.DocumentStatusConferenceOK, res.Status)
	assert.Empty(t, res.Discrepancies)
	assert.Equal(t, 1, e.store.CountTransactions(testOrg, entity.TransactionTypeInventoryMovement))
}

func TestScanItems_MismaEntrega_NoRepiteMovimientos(t *testing.T) {
	e := newEngine(t)
	e.documentInConference(t)
	scan := purchaseflow.ScanItems{
		InvoiceExternalID: "INV-1",
		EventUUID:         "7c9e6679-7425-40de-944b-e07fc1f90ae7",
		Items: []purchaseflow.ScannedItem{
			{ProductExternalID: "P1", QtyExpected: dec(10), QtyScanned: dec(10)},
			{ProductExternalID: "P2", QtyExpected: dec(4), QtyScanned: dec(3)},
		},
	}

	first := e.handle(t, scan)
	again := e.handle(t, scan)

	assert.Equal(t, 2, e.store.CountTransactions(testOrg, entity.TransactionTypeInventoryMovement))
	assert.Equal(t, 2, again.Summary.RecordsSuccessful)
	assert.ElementsMatch(t, first.RelationshipIDs, again.RelationshipIDs)
	snap, err := e.store.Repositories().Snapshots.Get(context.Background(), entity.SnapshotKey{
		OrganizationID: testOrg, VariantExternalID: "P2", LocationExternalID: "CD-01",
	})
	require.NoError(t, err)
	assert.True(t, snap.CurrentStock.Equal(dec(3)), "stock=%s", snap.CurrentStock)
	assert.Equal(t, entity.DocumentStatusConferenceDivergent, again.Status)
}

func TestScanItems_EntregasDistintas_AcumulanMovimientos(t *testing.T) {
	e := newEngine(t)
	e.documentInConference(t)
	item := []purchaseflow.ScannedItem{{ProductExternalID: "P1", QtyExpected: dec(10), QtyScanned: dec(5)}}

	e.handle(t, purchaseflow.ScanItems{InvoiceExternalID: "INV-1", EventUUID: "0b8f3c3e-1111-4a55-9d1e-000000000001", Items: item})
	e.handle(t, purchaseflow.ScanItems{InvoiceExternalID: "INV-1", EventUUID: "0b8f3c3e-1111-4a55-9d1e-000000000002", Items: item})

	assert.Equal(t, 2, e.store.CountTransactions(testOrg, entity.TransactionTypeInventoryMovement))
	snap, err := e.store.Repositories().Snapshots.Get(context.Background(), entity.SnapshotKey{
		OrganizationID: testOrg, VariantExternalID: "P1", LocationExternalID: "CD-01",
	})
	require.NoError(t, err)
	assert.True(t, snap.CurrentStock.Equal(dec(10)), "stock=%s", snap.CurrentStock)
}

func TestScanItems_MismoSKU_ReemplazaDivergencia(t *testing.T) {
	e := newEngine(t)
	e.documentInConference(t)

	e.handle(t, purchaseflow.ScanItems{
		InvoiceExternalID: "INV-1",
		Items:             []purchaseflow.ScannedItem{{ProductExternalID: "X", QtyExpected: dec(10), QtyScanned: dec(13)}},
	})
	res := e.handle(t, purchaseflow.ScanItems{
		InvoiceExternalID: "INV-1",
		Items:             []purchaseflow.ScannedItem{{ProductExternalID: "X", QtyExpected: dec(10), QtyScanned: dec(11)}},
	})

	require.Len(t, res.Discrepancies, 1)
	assert.True(t, res.Discrepancies[0].QtyDiff.Equal(dec(1)))

	stored, err := domainflow.DiscrepanciesFromAttributes(e.document(t, "INV-1").Attributes)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "X", stored[0].SKU)
	assert.True(t, stored[0].QtyDiff.Equal(dec(1)))
}

func TestScanItems_QtyDiffInformado_Prevalece(t *testing.T) {
	e := newEngine(t)
	e.documentInConference(t)
	informed := dec(-5)

	res := e.handle(t, purchaseflow.ScanItems{
		InvoiceExternalID: "INV-1",
		Items:             []purchaseflow.ScannedItem{{ProductExternalID: "P1", QtyExpected: dec(10), QtyScanned: dec(10), QtyDiff: &informed}},
	})

	require.Len(t, res.Discrepancies, 1)
	assert.True(t, res.Discrepancies[0].QtyDiff.Equal(informed))
}

func TestScanItems_SinUbicacion_CuentaFallaYContinua(t *testing.T) {
	e := newEngine(t)
	e.handle(t, sampleOrder("PO-1"))
	e.handle(t, purchaseflow.RegisterInvoice{ExternalID: "INV-1", PurchaseOrderExternalID: "PO-1"})
	e.handle(t, purchaseflow.StartConference{InvoiceExternalID: "INV-1"})

	res := e.handle(t, purchaseflow.ScanItems{
		InvoiceExternalID: "INV-1",
		Items: []purchaseflow.ScannedItem{
			{ProductExternalID: "P1", QtyExpected: dec(10), QtyScanned: dec(10)},
			{ProductExternalID: "P2", LocationExternalID: "CD-02", QtyExpected: dec(4), QtyScanned: dec(4)},
		},
	})

	assert.Equal(t, 2, res.Summary.RecordsProcessed)
	assert.Equal(t, 1, res.Summary.RecordsSuccessful)
	assert.Equal(t, 1, res.Summary.RecordsFailed)
	require.Len(t, res.ItemFailures, 1)
	assert.Equal(t, "P1", res.ItemFailures[0].ProductExternalID)
	assert.Equal(t, entity.DocumentStatusConferenceOK, res.Status)
	assert.Equal(t, 1, e.store.CountTransactions(testOrg, entity.TransactionTypeInventoryMovement))
	assert.Equal(t, 1, e.obs.scannedFail)
	assert.Equal(t, 0, e.store.CountEntities(testOrg, entity.EntityTypeLocation, ""))
}

func TestScanItems_ConVariante_UsaVarianteComoClave(t *testing.T) {
	e := newEngine(t)
	e.documentInConference(t)

	e.handle(t, purchaseflow.ScanItems{
		InvoiceExternalID: "INV-1",
		Items: []purchaseflow.ScannedItem{
			{ProductExternalID: "P1", VariantExternalID: "P1-AZUL-M", QtyExpected: dec(3), QtyScanned: dec(3)},
		},
	})

	assert.Equal(t, 1, e.store.CountEntities(testOrg, entity.EntityTypeVariant, "P1-AZUL-M"))
	snap, err := e.store.Repositories().Snapshots.Get(context.Background(), entity.SnapshotKey{
		OrganizationID: testOrg, VariantExternalID: "P1-AZUL-M", LocationExternalID: "CD-01",
	})
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.True(t, snap.CurrentStock.Equal(dec(3)))
}

// Escenario de rechazo: efetivar antes de conferir.
func TestEffectuateCD_DesdePreBaixa_RechazaConEsperadosYActual(t *testing.T) {
	e := newEngine(t)
	e.handle(t, sampleOrder("PO-1"))
	e.handle(t, purchaseflow.RegisterInvoice{ExternalID: "INV-1", PurchaseOrderExternalID: "PO-1"})
	before := e.document(t, "INV-1")

	_, err := e.orch.Handle(context.Background(), testOrg, purchaseflow.EffectuateCD{InvoiceExternalID: "INV-1"})

	var guardErr *domain.GuardError
	require.True(t, errors.As(err, &guardErr))
	assert.Equal(t, entity.DocumentStatusPreBaixa, guardErr.Actual)
	assert.ElementsMatch(t, []string{entity.DocumentStatusConferenceOK, entity.DocumentStatusConferenceDivergent}, guardErr.Expected)

	after := e.document(t, "INV-1")
	assert.Equal(t, before.Status, after.Status)
	assert.Equal(t, before.Version, after.Version)
	assert.Len(t, after.StateHistory, len(before.StateHistory))
	assert.NotContains(t, after.Attributes, domainflow.AttrEffectuatedAt)
	assert.Equal(t, 1, e.obs.outcomes[domainflow.ActionEffectuateCD+":"+purchaseflow.OutcomeGuard])
}

func TestScanItems_DocumentoEfetivado_Rechaza(t *testing.T) {
	e := newEngine(t)
	e.documentInConference(t)
	e.handle(t, purchaseflow.ScanItems{
		InvoiceExternalID: "INV-1",
		Items:             []purchaseflow.ScannedItem{{ProductExternalID: "P1", QtyExpected: dec(1), QtyScanned: dec(1)}},
	})
	e.handle(t, purchaseflow.EffectuateCD{InvoiceExternalID: "INV-1"})

	_, err := e.orch.Handle(context.Background(), testOrg, purchaseflow.ScanItems{
		InvoiceExternalID: "INV-1",
		Items:             []purchaseflow.ScannedItem{{ProductExternalID: "P1", QtyExpected: dec(1), QtyScanned: dec(1)}},
	})

	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	assert.Equal(t, 1, e.store.CountTransactions(testOrg, entity.TransactionTypeInventoryMovement))
}

func TestStartConference_DirectoDesdePreBaixa(t *testing.T) {
	e := newEngine(t)
	e.handle(t, sampleOrder("PO-1"))
	e.handle(t, purchaseflow.RegisterInvoice{ExternalID: "INV-1", PurchaseOrderExternalID: "PO-1"})

	res := e.handle(t, purchaseflow.StartConference{InvoiceExternalID: "INV-1"})

	assert.Equal(t, entity.DocumentStatusPreBaixa, res.StateTransition.From)
	assert.Equal(t, entity.DocumentStatusInConference, res.StateTransition.To)
}

func TestArriveAtCD_GuardaUbicacion(t *testing.T) {
	e := newEngine(t)
	e.handle(t, sampleOrder("PO-1"))
	e.handle(t, purchaseflow.RegisterInvoice{ExternalID: "INV-1", PurchaseOrderExternalID: "PO-1"})

	e.handle(t, purchaseflow.ArriveAtCD{InvoiceExternalID: "INV-1", LocationExternalID: "CD-09"})

	doc := e.document(t, "INV-1")
	assert.Equal(t, "CD-09", doc.Attributes[domainflow.AttrLocationExternalID])
	assert.Equal(t, fixedNow.Format("2006-01-02T15:04:05Z07:00"), doc.Attributes[domainflow.AttrArrivedAt])
}

func TestTransition_ConcurrenciaSobreMismoDocumento_UnaSolaGana(t *testing.T) {
	e := newEngine(t)
	e.handle(t, sampleOrder("PO-1"))
	e.handle(t, purchaseflow.RegisterInvoice{ExternalID: "INV-1", PurchaseOrderExternalID: "PO-1"})

	const n = 8
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() {
			_, err := e.orch.Handle(context.Background(), testOrg, purchaseflow.ArriveAtCD{InvoiceExternalID: "INV-1"})
			errs <- err
		}()
	}
	ok := 0
	for i := 0; i < n; i++ {
		if err := <-errs; err == nil {
			ok++
		} else {
			assert.ErrorIs(t, err, domain.ErrInvalidTransition)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Len(t, e.document(t, "INV-1").StateHistory, 1)
}
