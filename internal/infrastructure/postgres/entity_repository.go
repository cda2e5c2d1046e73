package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jhoicas/eca-purchase-flow/internal/domain"
	"github.com/jhoicas/eca-purchase-flow/internal/domain/entity"
	"github.com/jhoicas/eca-purchase-flow/internal/domain/repository"
)

var _ repository.EntityRepository = (*EntityRepo)(nil)

// EntityRepo implementación de EntityRepository sobre PostgreSQL (usable con pool o tx).
type EntityRepo struct {
	q Querier
}

// NewEntityRepository construye el adaptador. Pasar pool o tx (Querier).
func NewEntityRepository(q Querier) *EntityRepo {
	return &EntityRepo{q: q}
}

// GetByExternalID obtiene una entidad por (organización, tipo, external id).
func (r *EntityRepo) GetByExternalID(ctx context.Context, organizationID, entityType, externalID string) (*entity.BusinessEntity, error) {
	query := `
		SELECT id, organization_id, entity_type, external_id, name, attributes, status, created_at, updated_at
		FROM business_entities
		WHERE organization_id = $1 AND entity_type = $2 AND external_id = $3`
	var (
		e     entity.BusinessEntity
		attrs []byte
	)
	err := r.q.QueryRow(ctx, query, organizationID, entityType, externalID).Scan(
		&e.ID, &e.OrganizationID, &e.EntityType, &e.ExternalID, &e.Name, &attrs, &e.Status, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get entity: %w", err)
	}
	if e.Attributes, err = fromJSONB(attrs); err != nil {
		return nil, err
	}
	return &e, nil
}

// Create inserta la entidad. Un conflicto en la clave no aborta la tx (ON CONFLICT DO NOTHING)
// y se informa como domain.ErrDuplicate.
func (r *EntityRepo) Create(ctx context.Context, e *entity.BusinessEntity) error {
	attrs, err := jsonb(e.Attributes)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO business_entities (id, organization_id, entity_type, external_id, name, attributes, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (organization_id, entity_type, external_id) DO NOTHING
		RETURNING id`
	var id string
	err = r.q.QueryRow(ctx, query,
		e.ID, e.OrganizationID, e.EntityType, e.ExternalID, e.Name, attrs, e.Status, e.CreatedAt, e.UpdatedAt,
	).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrDuplicate
		}
		return fmt.Errorf("insert entity: %w", err)
	}
	return nil
}
