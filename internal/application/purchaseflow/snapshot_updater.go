package purchaseflow

import (
	"context"
	"fmt"
	"time"

	"github.com/jhoicas/eca-purchase-flow/internal/domain"
	"github.com/jhoicas/eca-purchase-flow/internal/domain/entity"
	"github.com/jhoicas/eca-purchase-flow/internal/domain/repository"
	"github.com/shopspring/decimal"
)

// DeltaInput delta firmado a aplicar sobre el snapshot (variante, ubicación).
type DeltaInput struct {
	OrganizationID     string
	VariantExternalID  string
	LocationExternalID string
	QtyChange          decimal.Decimal
	MovementType       string
	ReferenceID        string
}

// Key clave de snapshot derivada de la entrada.
func (in DeltaInput) Key() entity.SnapshotKey {
	return entity.SnapshotKey{
		OrganizationID:     in.OrganizationID,
		VariantExternalID:  in.VariantExternalID,
		LocationExternalID: in.LocationExternalID,
	}
}

// SnapshotUpdater mantiene una fila por (variante, ubicación) con stock corriente.
// El read-modify-write se serializa por clave con GetForUpdate (bloqueo de fila) dentro de la tx.
type SnapshotUpdater struct {
	txRunner TxRunner
	now      func() time.Time
}

// NewSnapshotUpdater construye el actualizador.
func NewSnapshotUpdater(txRunner TxRunner) *SnapshotUpdater {
	return &SnapshotUpdater{txRunner: txRunner, now: time.Now}
}

// ApplyDelta abre su propia transacción y aplica el delta.
func (u *SnapshotUpdater) ApplyDelta(ctx context.Context, in DeltaInput) (*entity.InventorySnapshot, error) {
	var out *entity.InventorySnapshot
	err := u.txRunner.Run(ctx, func(repos Repositories) error {
		s, err := u.ApplyDeltaInTx(ctx, repos.Snapshots, in)
		out = s
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ApplyDeltaInTx aplica el delta con el repositorio de la transacción del caller:
// bloquea la clave, suma qtyChange al stock actual (ausente = 0) y persiste.
func (u *SnapshotUpdater) ApplyDeltaInTx(ctx context.Context, repo repository.SnapshotRepository, in DeltaInput) (*entity.InventorySnapshot, error) {
	if in.OrganizationID == "" || in.VariantExternalID == "" || in.LocationExternalID == "" {
		return nil, &domain.ValidationError{Action: "apply_delta", Field: "snapshot_key"}
	}
	key := in.Key()
	snap, err := repo.GetForUpdate(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("leer snapshot %s: %w", key, err)
	}
	if snap == nil {
		snap = &entity.InventorySnapshot{Key: key, CurrentStock: decimal.Zero}
	}
	snap.CurrentStock = snap.CurrentStock.Add(in.QtyChange)
	snap.LastMovement = in.MovementType
	snap.LastMovementRef = in.ReferenceID
	snap.LastUpdated = u.now().UTC()
	if err := repo.Upsert(ctx, snap); err != nil {
		return nil, fmt.Errorf("escribir snapshot %s: %w", key, err)
	}
	return snap, nil
}
