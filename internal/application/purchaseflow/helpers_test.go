package purchaseflow_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/eca-purchase-flow/internal/application/purchaseflow"
	"github.com/jhoicas/eca-purchase-flow/internal/domain/entity"
	"github.com/jhoicas/eca-purchase-flow/internal/infrastructure/memory"
	"github.com/jhoicas/eca-purchase-flow/pkg/logger"
)

const testOrg = "org-1"

var fixedNow = time.Date(2026, 3, 10, 14, 30, 0, 0, time.UTC)

// spyObserver cuenta las métricas emitidas por el motor.
type spyObserver struct {
	mu          sync.Mutex
	outcomes    map[string]int
	recordFails map[string]int
	scannedOK   int
	scannedFail int
}

func newSpyObserver() *spyObserver {
	return &spyObserver{outcomes: map[string]int{}, recordFails: map[string]int{}}
}

func (s *spyObserver) ObserveAction(action, outcome string, _ time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outcomes[action+":"+outcome]++
}

func (s *spyObserver) EventRecordFailed(code string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recordFails[code]++
}

func (s *spyObserver) ItemScanned(ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ok {
		s.scannedOK++
	} else {
		s.scannedFail++
	}
}

type engine struct {
	store *memory.Store
	orch  *purchaseflow.Orchestrator
	obs   *spyObserver
}

func newEngine(t *testing.T) *engine {
	t.Helper()
	store := memory.NewStore()
	obs := newSpyObserver()
	events := purchaseflow.NewEventRecorder(store.Repositories().Events, logger.Nop(), obs)
	orch := purchaseflow.NewOrchestrator(store, store, events, logger.Nop(),
		purchaseflow.WithObserver(obs),
		purchaseflow.WithClock(func() time.Time { return fixedNow }),
	)
	return &engine{store: store, orch: orch, obs: obs}
}

func (e *engine) handle(t *testing.T, a purchaseflow.Action) *purchaseflow.Result {
	t.Helper()
	res, err := e.orch.Handle(context.Background(), testOrg, a)
	require.NoError(t, err)
	require.NotNil(t, res)
	return res
}

func (e *engine) transaction(t *testing.T, txType, externalID string) *entity.BusinessTransaction {
	t.Helper()
	tx, err := e.store.Repositories().Transactions.GetByExternalID(context.Background(), testOrg, txType, externalID)
	require.NoError(t, err)
	require.NotNil(t, tx)
	return tx
}

func (e *engine) document(t *testing.T, externalID string) *entity.BusinessTransaction {
	return e.transaction(t, entity.TransactionTypeDocumentSupplierIn, externalID)
}

func dec(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func sampleOrder(externalID string) purchaseflow.CreateOrder {
	return purchaseflow.CreateOrder{
		ExternalID:         externalID,
		SupplierExternalID: "SUP-1",
		SupplierName:       "Proveedor Uno",
		Items: []purchaseflow.OrderItem{
			{ProductExternalID: "P1", ProductName: "Camisa", Quantity: dec(10), UnitPrice: decimal.RequireFromString("25.50")},
			{ProductExternalID: "P2", ProductName: "Pantalón", Quantity: dec(4), UnitPrice: dec(80)},
		},
		TotalValue: decimal.RequireFromString("575.00"),
	}
}

// documentInConference deja un documento INV-1 en EM_CONFERENCIA_CD con ubicación CD-01.
func (e *engine) documentInConference(t *testing.T) {
	t.Helper()
	e.handle(t, sampleOrder("PO-1"))
	e.handle(t, purchaseflow.RegisterInvoice{ExternalID: "INV-1", PurchaseOrderExternalID: "PO-1", LocationExternalID: "CD-01"})
	e.handle(t, purchaseflow.ArriveAtCD{InvoiceExternalID: "INV-1"})
	e.handle(t, purchaseflow.StartConference{InvoiceExternalID: "INV-1"})
}
