package repository

import (
	"context"

	"github.com/jhoicas/eca-purchase-flow/internal/domain/entity"
)

// SnapshotRepository define el puerto para leer/escribir snapshots de inventario por clave.
// El read-modify-write debe hacerse con GetForUpdate + Upsert dentro de la misma transacción.
type SnapshotRepository interface {
	// Get devuelve (nil, nil) si no existe.
	Get(ctx context.Context, key entity.SnapshotKey) (*entity.InventorySnapshot, error)
	// GetForUpdate bloquea la clave hasta el fin de la transacción; si no existe devuelve un
	// snapshot con stock cero.
	GetForUpdate(ctx context.Context, key entity.SnapshotKey) (*entity.InventorySnapshot, error)
	Upsert(ctx context.Context, s *entity.InventorySnapshot) error
}
