package memory

import (
	"context"
	"fmt"

	"github.com/jhoicas/eca-purchase-flow/internal/application/purchaseflow"
	"github.com/jhoicas/eca-purchase-flow/internal/domain"
	"github.com/jhoicas/eca-purchase-flow/internal/domain/entity"
	"github.com/jhoicas/eca-purchase-flow/internal/domain/repository"
)

var (
	_ repository.EntityRepository       = (*EntityRepo)(nil)
	_ repository.TransactionRepository  = (*TransactionRepo)(nil)
	_ repository.RelationshipRepository = (*RelationshipRepo)(nil)
	_ repository.EventRepository        = (*EventRepo)(nil)
	_ repository.SnapshotRepository     = (*SnapshotRepo)(nil)
)

// Con u == nil los repositorios leen lo confirmado y cada escritura es su propia unidad de trabajo.
// Con u != nil leen primero el staging de u y escriben solo en él.

// ──────────────────────────────────────────────────────────────────────────────
// Entidades
// ──────────────────────────────────────────────────────────────────────────────

// EntityRepo entidades de negocio en memoria.
type EntityRepo struct {
	s *Store
	u *unitOfWork
}

func (r *EntityRepo) GetByExternalID(_ context.Context, organizationID, entityType, externalID string) (*entity.BusinessEntity, error) {
	e := r.lookup(entityKey(organizationID, entityType, externalID))
	if e == nil {
		return nil, nil
	}
	return cloneEntity(e), nil
}

func (r *EntityRepo) Create(ctx context.Context, e *entity.BusinessEntity) error {
	if r.u == nil {
		return r.s.Run(ctx, func(repos purchaseflow.Repositories) error {
			return repos.Entities.Create(ctx, e)
		})
	}
	attrs, err := cloneAttrs(e.Attributes)
	if err != nil {
		return err
	}
	key := entityKey(e.OrganizationID, e.EntityType, e.ExternalID)
	if r.lookup(key) != nil {
		return domain.ErrDuplicate
	}
	stored := *e
	stored.Attributes = attrs
	r.u.entities[key] = &stored
	return nil
}

func (r *EntityRepo) lookup(key string) *entity.BusinessEntity {
	if r.u != nil {
		if e, ok := r.u.entities[key]; ok {
			return e
		}
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return r.s.entities[key]
}

func cloneEntity(e *entity.BusinessEntity) *entity.BusinessEntity {
	out := *e
	out.Attributes = mustCloneAttrs(e.Attributes)
	return &out
}

// ──────────────────────────────────────────────────────────────────────────────
// Transacciones
// ──────────────────────────────────────────────────────────────────────────────

// TransactionRepo transacciones de negocio en memoria con control de versión.
type TransactionRepo struct {
	s *Store
	u *unitOfWork
}

func (r *TransactionRepo) GetByID(_ context.Context, id string) (*entity.BusinessTransaction, error) {
	t := r.lookup(id)
	if t == nil {
		return nil, nil
	}
	return cloneTransaction(t), nil
}

func (r *TransactionRepo) GetByExternalID(_ context.Context, organizationID, transactionType, externalID string) (*entity.BusinessTransaction, error) {
	id, ok := r.lookupExternal(entityKey(organizationID, transactionType, externalID))
	if !ok {
		return nil, nil
	}
	t := r.lookup(id)
	if t == nil {
		return nil, nil
	}
	return cloneTransaction(t), nil
}

// GetByExternalIDForUpdate en memoria no bloquea: la unidad de trabajo ya es exclusiva y la
// escritura compara versión.
func (r *TransactionRepo) GetByExternalIDForUpdate(ctx context.Context, organizationID, transactionType, externalID string) (*entity.BusinessTransaction, error) {
	return r.GetByExternalID(ctx, organizationID, transactionType, externalID)
}

func (r *TransactionRepo) Create(ctx context.Context, t *entity.BusinessTransaction) error {
	if r.u == nil {
		return r.s.Run(ctx, func(repos purchaseflow.Repositories) error {
			return repos.Transactions.Create(ctx, t)
		})
	}
	attrs, err := cloneAttrs(t.Attributes)
	if err != nil {
		return err
	}
	var extKey string
	if t.ExternalID != nil {
		extKey = entityKey(t.OrganizationID, t.TransactionType, *t.ExternalID)
		if _, exists := r.lookupExternal(extKey); exists {
			return domain.ErrDuplicate
		}
	}
	if r.lookup(t.ID) != nil {
		return domain.ErrDuplicate
	}
	t.Version = 1
	stored := *t
	stored.Attributes = attrs
	stored.StateHistory = append([]entity.StateTransition(nil), t.StateHistory...)
	r.u.transactions[t.ID] = &stored
	if extKey != "" {
		r.u.txByExternal[extKey] = t.ID
	}
	return nil
}

func (r *TransactionRepo) Transition(ctx context.Context, t *entity.BusinessTransaction, expectedVersion int64) error {
	if r.u == nil {
		return r.s.Run(ctx, func(repos purchaseflow.Repositories) error {
			return repos.Transactions.Transition(ctx, t, expectedVersion)
		})
	}
	attrs, err := cloneAttrs(t.Attributes)
	if err != nil {
		return err
	}
	current := r.lookup(t.ID)
	if current == nil {
		return fmt.Errorf("transición %s: %w", t.ID, domain.ErrNotFound)
	}
	if current.Version != expectedVersion {
		return domain.ErrConcurrentModification
	}
	stored := *current
	stored.Status = t.Status
	stored.Attributes = attrs
	stored.StateHistory = append([]entity.StateTransition(nil), t.StateHistory...)
	stored.UpdatedAt = t.UpdatedAt
	stored.Version = expectedVersion + 1
	r.u.transactions[t.ID] = &stored
	t.Version = stored.Version
	return nil
}

func (r *TransactionRepo) lookup(id string) *entity.BusinessTransaction {
	if r.u != nil {
		if t, ok := r.u.transactions[id]; ok {
			return t
		}
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return r.s.transactions[id]
}

func (r *TransactionRepo) lookupExternal(key string) (string, bool) {
	if r.u != nil {
		if id, ok := r.u.txByExternal[key]; ok {
			return id, true
		}
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	id, ok := r.s.txByExternal[key]
	return id, ok
}

func cloneTransaction(t *entity.BusinessTransaction) *entity.BusinessTransaction {
	out := *t
	out.Attributes = mustCloneAttrs(t.Attributes)
	out.StateHistory = append([]entity.StateTransition(nil), t.StateHistory...)
	if t.ExternalID != nil {
		ext := *t.ExternalID
		out.ExternalID = &ext
	}
	return &out
}

// ──────────────────────────────────────────────────────────────────────────────
// Relaciones
// ──────────────────────────────────────────────────────────────────────────────

// RelationshipRepo relaciones en memoria (solo agregar).
type RelationshipRepo struct {
	s *Store
	u *unitOfWork
}

func (r *RelationshipRepo) Create(ctx context.Context, rel *entity.BusinessRelationship) error {
	if r.u == nil {
		return r.s.Run(ctx, func(repos purchaseflow.Repositories) error {
			return repos.Relationships.Create(ctx, rel)
		})
	}
	attrs, err := cloneAttrs(rel.Attributes)
	if err != nil {
		return err
	}
	stored := *rel
	stored.Attributes = attrs
	r.u.relationships = append(r.u.relationships, &stored)
	return nil
}

func (r *RelationshipRepo) ListBySource(_ context.Context, sourceID string) ([]*entity.BusinessRelationship, error) {
	r.s.mu.RLock()
	all := append([]*entity.BusinessRelationship(nil), r.s.relationships...)
	r.s.mu.RUnlock()
	if r.u != nil {
		all = append(all, r.u.relationships...)
	}

	var out []*entity.BusinessRelationship
	for _, rel := range all {
		if rel.SourceID == sourceID {
			c := *rel
			c.Attributes = mustCloneAttrs(rel.Attributes)
			out = append(out, &c)
		}
	}
	return out, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Eventos
// ──────────────────────────────────────────────────────────────────────────────

// EventRepo log de auditoría en memoria. Fuera de una unidad de trabajo el append es directo:
// el log solo agrega y no compite con otras escrituras.
type EventRepo struct {
	s *Store
	u *unitOfWork
}

func (r *EventRepo) Append(_ context.Context, ev *entity.BusinessEvent) error {
	payload, err := cloneAttrs(ev.Payload)
	if err != nil {
		return err
	}
	stored := *ev
	stored.Payload = payload

	if r.u != nil {
		r.u.events = append(r.u.events, &stored)
		return nil
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.events = append(r.s.events, &stored)
	return nil
}

func (r *EventRepo) ListByEntity(_ context.Context, entityType, entityID string) ([]*entity.BusinessEvent, error) {
	r.s.mu.RLock()
	all := append([]*entity.BusinessEvent(nil), r.s.events...)
	r.s.mu.RUnlock()
	if r.u != nil {
		all = append(all, r.u.events...)
	}

	var out []*entity.BusinessEvent
	for _, ev := range all {
		if ev.EntityType == entityType && ev.EntityID == entityID {
			c := *ev
			c.Payload = mustCloneAttrs(ev.Payload)
			out = append(out, &c)
		}
	}
	return out, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Snapshots
// ──────────────────────────────────────────────────────────────────────────────

// SnapshotRepo snapshots de inventario en memoria.
type SnapshotRepo struct {
	s *Store
	u *unitOfWork
}

func (r *SnapshotRepo) Get(_ context.Context, key entity.SnapshotKey) (*entity.InventorySnapshot, error) {
	k := key.String()
	if r.u != nil {
		if snap, ok := r.u.snapshots[k]; ok {
			c := *snap
			return &c, nil
		}
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	snap, ok := r.s.snapshots[k]
	if !ok {
		return nil, nil
	}
	c := *snap
	return &c, nil
}

// GetForUpdate no toma bloqueo de fila: dentro de Run la unidad de trabajo ya es exclusiva.
// Una clave nunca escrita devuelve un snapshot en cero.
func (r *SnapshotRepo) GetForUpdate(ctx context.Context, key entity.SnapshotKey) (*entity.InventorySnapshot, error) {
	snap, err := r.Get(ctx, key)
	if err != nil || snap != nil {
		return snap, err
	}
	return &entity.InventorySnapshot{Key: key}, nil
}

func (r *SnapshotRepo) Upsert(ctx context.Context, snap *entity.InventorySnapshot) error {
	if r.u == nil {
		return r.s.Run(ctx, func(repos purchaseflow.Repositories) error {
			return repos.Snapshots.Upsert(ctx, snap)
		})
	}
	stored := *snap
	r.u.snapshots[snap.Key.String()] = &stored
	return nil
}
