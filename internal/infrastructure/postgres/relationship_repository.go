package postgres

import (
	"context"
	"fmt"

	"github.com/jhoicas/eca-purchase-flow/internal/domain/entity"
	"github.com/jhoicas/eca-purchase-flow/internal/domain/repository"
)

var _ repository.RelationshipRepository = (*RelationshipRepo)(nil)

// RelationshipRepo aristas entre transacciones y entidades (solo INSERT).
type RelationshipRepo struct {
	q Querier
}

// NewRelationshipRepository construye el adaptador. Pasar pool o tx (Querier).
func NewRelationshipRepository(q Querier) *RelationshipRepo {
	return &RelationshipRepo{q: q}
}

// Create inserta la relación.
func (r *RelationshipRepo) Create(ctx context.Context, rel *entity.BusinessRelationship) error {
	attrs, err := jsonb(rel.Attributes)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO business_relationships (id, relationship_type, source_id, target_id, attributes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	if _, err := r.q.Exec(ctx, query, rel.ID, rel.RelationshipType, rel.SourceID, rel.TargetID, attrs, rel.CreatedAt); err != nil {
		return fmt.Errorf("insert relationship: %w", err)
	}
	return nil
}

// ListBySource relaciones salientes de sourceID en orden de creación.
func (r *RelationshipRepo) ListBySource(ctx context.Context, sourceID string) ([]*entity.BusinessRelationship, error) {
	query := `
		SELECT id, relationship_type, source_id, target_id, attributes, created_at
		FROM business_relationships WHERE source_id = $1
		ORDER BY created_at, id`
	rows, err := r.q.Query(ctx, query, sourceID)
	if err != nil {
		return nil, fmt.Errorf("list relationships: %w", err)
	}
	defer rows.Close()

	var list []*entity.BusinessRelationship
	for rows.Next() {
		var (
			rel   entity.BusinessRelationship
			attrs []byte
		)
		if err := rows.Scan(&rel.ID, &rel.RelationshipType, &rel.SourceID, &rel.TargetID, &attrs, &rel.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan relationship: %w", err)
		}
		if rel.Attributes, err = fromJSONB(attrs); err != nil {
			return nil, err
		}
		list = append(list, &rel)
	}
	return list, rows.Err()
}
