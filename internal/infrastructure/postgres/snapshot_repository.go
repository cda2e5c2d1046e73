package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jhoicas/eca-purchase-flow/internal/domain/entity"
	"github.com/jhoicas/eca-purchase-flow/internal/domain/repository"
	"github.com/shopspring/decimal"
)

var _ repository.SnapshotRepository = (*SnapshotRepo)(nil)

// SnapshotRepo implementación de SnapshotRepository sobre PostgreSQL (usable con pool o tx).
type SnapshotRepo struct {
	q Querier
}

// NewSnapshotRepository construye el adaptador. Pasar pool o tx (Querier).
func NewSnapshotRepository(q Querier) *SnapshotRepo {
	return &SnapshotRepo{q: q}
}

const snapshotSelect = `
		SELECT organization_id, variant_external_id, location_external_id, current_stock,
		       COALESCE(last_movement, ''), COALESCE(last_movement_ref, ''), last_updated
		FROM inventory_snapshots
		WHERE organization_id = $1 AND variant_external_id = $2 AND location_external_id = $3`

// Get obtiene el snapshot de la clave; (nil, nil) si no existe.
func (r *SnapshotRepo) Get(ctx context.Context, key entity.SnapshotKey) (*entity.InventorySnapshot, error) {
	s, err := r.scan(ctx, snapshotSelect, key)
	if err != nil {
		return nil, fmt.Errorf("get snapshot: %w", err)
	}
	return s, nil
}

// GetForUpdate crea la fila en cero si falta y la bloquea (SELECT FOR UPDATE) hasta el fin de la tx.
func (r *SnapshotRepo) GetForUpdate(ctx context.Context, key entity.SnapshotKey) (*entity.InventorySnapshot, error) {
	seed := `
		INSERT INTO inventory_snapshots (organization_id, variant_external_id, location_external_id, current_stock, last_updated)
		VALUES ($1, $2, $3, 0, now())
		ON CONFLICT (organization_id, variant_external_id, location_external_id) DO NOTHING`
	if _, err := r.q.Exec(ctx, seed, key.OrganizationID, key.VariantExternalID, key.LocationExternalID); err != nil {
		return nil, fmt.Errorf("seed snapshot: %w", err)
	}
	s, err := r.scan(ctx, snapshotSelect+"\n\t\tFOR UPDATE", key)
	if err != nil {
		return nil, fmt.Errorf("get snapshot for update: %w", err)
	}
	if s == nil {
		return &entity.InventorySnapshot{Key: key, CurrentStock: decimal.Zero}, nil
	}
	return s, nil
}

// Upsert inserta o actualiza el stock de la clave.
func (r *SnapshotRepo) Upsert(ctx context.Context, s *entity.InventorySnapshot) error {
	query := `
		INSERT INTO inventory_snapshots (organization_id, variant_external_id, location_external_id, current_stock, last_movement, last_movement_ref, last_updated)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (organization_id, variant_external_id, location_external_id)
		DO UPDATE SET current_stock = EXCLUDED.current_stock, last_movement = EXCLUDED.last_movement,
		              last_movement_ref = EXCLUDED.last_movement_ref, last_updated = EXCLUDED.last_updated`
	_, err := r.q.Exec(ctx, query,
		s.Key.OrganizationID, s.Key.VariantExternalID, s.Key.LocationExternalID,
		s.CurrentStock, s.LastMovement, s.LastMovementRef, s.LastUpdated,
	)
	if err != nil {
		return fmt.Errorf("upsert snapshot: %w", err)
	}
	return nil
}

func (r *SnapshotRepo) scan(ctx context.Context, query string, key entity.SnapshotKey) (*entity.InventorySnapshot, error) {
	var s entity.InventorySnapshot
	err := r.q.QueryRow(ctx, query, key.OrganizationID, key.VariantExternalID, key.LocationExternalID).Scan(
		&s.Key.OrganizationID, &s.Key.VariantExternalID, &s.Key.LocationExternalID, &s.CurrentStock,
		&s.LastMovement, &s.LastMovementRef, &s.LastUpdated,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}
