package purchaseflow

import (
	"context"
	"time"

	"github.com/jhoicas/eca-purchase-flow/internal/domain/repository"
)

// Repositories repositorios atados a una misma unidad de trabajo.
type Repositories struct {
	Entities      repository.EntityRepository
	Transactions  repository.TransactionRepository
	Relationships repository.RelationshipRepository
	Events        repository.EventRepository
	Snapshots     repository.SnapshotRepository
}

// TxRunner ejecuta fn dentro de una transacción de BD con repositorios atados a esa tx.
// Commit si fn no devuelve error, Rollback en caso contrario.
type TxRunner interface {
	Run(ctx context.Context, fn func(repos Repositories) error) error
}

// Locker serializa operaciones sobre una misma clave (una transacción de negocio por external id).
// El unlock devuelto es idempotente.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// Observer recibe métricas del motor. Las implementaciones no deben bloquear.
type Observer interface {
	ObserveAction(action, outcome string, elapsed time.Duration)
	EventRecordFailed(eventCode string)
	ItemScanned(ok bool)
}

type nopObserver struct{}

func (nopObserver) ObserveAction(string, string, time.Duration) {}
func (nopObserver) EventRecordFailed(string)                     {}
func (nopObserver) ItemScanned(bool)                             {}
