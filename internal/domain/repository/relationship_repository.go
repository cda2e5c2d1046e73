package repository

import (
	"context"

	"github.com/jhoicas/eca-purchase-flow/internal/domain/entity"
)

// RelationshipRepository aristas aditivas entre transacciones y entidades.
type RelationshipRepository interface {
	Create(ctx context.Context, r *entity.BusinessRelationship) error
	ListBySource(ctx context.Context, sourceID string) ([]*entity.BusinessRelationship, error)
}
