package repository

import (
	"context"

	"github.com/jhoicas/eca-purchase-flow/internal/domain/entity"
)

// TransactionRepository define el puerto de persistencia para BusinessTransaction.
type TransactionRepository interface {
	GetByID(ctx context.Context, id string) (*entity.BusinessTransaction, error)
	// GetByExternalID devuelve (nil, nil) si no existe.
	GetByExternalID(ctx context.Context, organizationID, transactionType, externalID string) (*entity.BusinessTransaction, error)
	// GetByExternalIDForUpdate igual que GetByExternalID pero bloquea la fila hasta el fin de la transacción de BD.
	GetByExternalIDForUpdate(ctx context.Context, organizationID, transactionType, externalID string) (*entity.BusinessTransaction, error)
	// Create inserta la transacción con Version = 1; domain.ErrDuplicate si el external id ya existe.
	Create(ctx context.Context, t *entity.BusinessTransaction) error
	// Transition escribe Status, Attributes y StateHistory en una sola escritura condicionada a
	// expectedVersion. Devuelve domain.ErrConcurrentModification si la versión cambió.
	Transition(ctx context.Context, t *entity.BusinessTransaction, expectedVersion int64) error
}
