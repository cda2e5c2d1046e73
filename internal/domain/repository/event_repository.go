package repository

import (
	"context"

	"github.com/jhoicas/eca-purchase-flow/internal/domain/entity"
)

//go:generate mockgen -source=event_repository.go -destination=event_repository_mock.go -package=repository

// EventRepository log de auditoría append-only.
type EventRepository interface {
	Append(ctx context.Context, e *entity.BusinessEvent) error
	ListByEntity(ctx context.Context, entityType, entityID string) ([]*entity.BusinessEvent, error)
}
