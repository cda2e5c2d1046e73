package purchaseflow

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jhoicas/eca-purchase-flow/internal/domain/entity"
	"github.com/jhoicas/eca-purchase-flow/internal/domain/repository"
)

// RelationshipLinker crea aristas tipadas entre transacciones y entidades. Solo agrega.
type RelationshipLinker struct {
	repo repository.RelationshipRepository
	now  func() time.Time
}

// NewRelationshipLinker construye el linker sobre el repositorio dado (pool o tx).
func NewRelationshipLinker(repo repository.RelationshipRepository) *RelationshipLinker {
	return &RelationshipLinker{repo: repo, now: time.Now}
}

// Link crea la relación relType de sourceID a targetID.
func (l *RelationshipLinker) Link(ctx context.Context, relType, sourceID, targetID string, attrs map[string]any) (*entity.BusinessRelationship, error) {
	if attrs == nil {
		attrs = map[string]any{}
	}
	rel := &entity.BusinessRelationship{
		ID:               uuid.New().String(),
		RelationshipType: relType,
		SourceID:         sourceID,
		TargetID:         targetID,
		Attributes:       attrs,
		CreatedAt:        l.now().UTC(),
	}
	if err := l.repo.Create(ctx, rel); err != nil {
		return nil, fmt.Errorf("relación %s %s->%s: %w", relType, sourceID, targetID, err)
	}
	return rel, nil
}
