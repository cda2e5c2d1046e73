package repository

import (
	"context"

	"github.com/jhoicas/eca-purchase-flow/internal/domain/entity"
)

//go:generate mockgen -source=entity_repository.go -destination=entity_repository_mock.go -package=repository

// EntityRepository define el puerto de persistencia para BusinessEntity (DIP).
type EntityRepository interface {
	// GetByExternalID devuelve (nil, nil) si no existe.
	GetByExternalID(ctx context.Context, organizationID, entityType, externalID string) (*entity.BusinessEntity, error)
	// Create inserta la entidad; devuelve domain.ErrDuplicate si ya existe la clave (organización, tipo, external id).
	Create(ctx context.Context, e *entity.BusinessEntity) error
}
