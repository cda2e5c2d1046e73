package purchaseflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jhoicas/eca-purchase-flow/internal/domain"
	"github.com/jhoicas/eca-purchase-flow/internal/domain/entity"
	"github.com/jhoicas/eca-purchase-flow/internal/domain/repository"
)

// EntitySeed atributos usados solo al crear la entidad; en un hit se ignoran (gana el primero).
type EntitySeed struct {
	Name       string
	Attributes map[string]any
}

// EntityResolver get-or-create de entidades de negocio por (organización, tipo, external id).
type EntityResolver struct {
	repo repository.EntityRepository
	now  func() time.Time
}

// NewEntityResolver construye el resolver sobre el repositorio dado (pool o tx).
func NewEntityResolver(repo repository.EntityRepository) *EntityResolver {
	return &EntityResolver{repo: repo, now: time.Now}
}

// ResolveOrCreate devuelve la entidad existente o la crea con seed. externalID llega normalizado
// por el Decoder. Con externalID vacío devuelve (nil, nil): la entidad no aplica. Si otro proceso
// la crea entre la lectura y el insert (domain.ErrDuplicate) se vuelve a leer y se devuelve esa.
// No reintenta errores de infraestructura.
func (r *EntityResolver) ResolveOrCreate(ctx context.Context, organizationID, entityType, externalID string, seed EntitySeed) (*entity.BusinessEntity, error) {
	if externalID == "" {
		return nil, nil
	}
	found, err := r.repo.GetByExternalID(ctx, organizationID, entityType, externalID)
	if err != nil {
		return nil, fmt.Errorf("resolver %s %q: %w", entityType, externalID, err)
	}
	if found != nil {
		return found, nil
	}

	name := seed.Name
	if name == "" {
		name = externalID
	}
	attrs := seed.Attributes
	if attrs == nil {
		attrs = map[string]any{}
	}
	now := r.now().UTC()
	e := &entity.BusinessEntity{
		ID:             uuid.New().String(),
		OrganizationID: organizationID,
		EntityType:     entityType,
		ExternalID:     externalID,
		Name:           name,
		Attributes:     attrs,
		Status:         entity.EntityStatusActive,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := r.repo.Create(ctx, e); err != nil {
		if !errors.Is(err, domain.ErrDuplicate) {
			return nil, fmt.Errorf("crear %s %q: %w", entityType, externalID, err)
		}
		// Otro proceso ganó la carrera: devolver su registro.
		found, err = r.repo.GetByExternalID(ctx, organizationID, entityType, externalID)
		if err != nil {
			return nil, fmt.Errorf("releer %s %q: %w", entityType, externalID, err)
		}
		if found == nil {
			return nil, fmt.Errorf("%s %q duplicado pero no visible", entityType, externalID)
		}
		return found, nil
	}
	return e, nil
}
