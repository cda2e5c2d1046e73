// Package memory implementa los puertos de persistencia del flujo de compras en memoria.
// Se usa en tests y con STORE_DRIVER=memory para ejecutar el servicio sin PostgreSQL.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/jhoicas/eca-purchase-flow/internal/application/purchaseflow"
	"github.com/jhoicas/eca-purchase-flow/internal/domain/entity"
)

var (
	_ purchaseflow.TxRunner = (*Store)(nil)
	_ purchaseflow.Locker   = (*Store)(nil)
)

// Store almacenamiento en memoria. mu protege los mapas confirmados. Las unidades de trabajo se
// ejecutan de a una (writer) y escriben en su propio staging, que se publica solo al confirmar:
// nadie lee escrituras sin confirmar. bizLocks serializa las transacciones de negocio.
type Store struct {
	mu            sync.RWMutex
	entities      map[string]*entity.BusinessEntity // org|tipo|external id
	transactions  map[string]*entity.BusinessTransaction
	txByExternal  map[string]string // org|tipo|external id -> id
	relationships []*entity.BusinessRelationship
	events        []*entity.BusinessEvent
	snapshots     map[string]*entity.InventorySnapshot

	writer   chan struct{}
	bizLocks *KeyedMutex
}

// NewStore construye un store vacío.
func NewStore() *Store {
	return &Store{
		entities:     make(map[string]*entity.BusinessEntity),
		transactions: make(map[string]*entity.BusinessTransaction),
		txByExternal: make(map[string]string),
		snapshots:    make(map[string]*entity.InventorySnapshot),
		writer:       make(chan struct{}, 1),
		bizLocks:     NewKeyedMutex(),
	}
}

// Lock serializa las operaciones sobre una transacción de negocio.
func (s *Store) Lock(ctx context.Context, key string) (func(), error) {
	return s.bizLocks.Lock(ctx, key)
}

// Run ejecuta fn como unidad de trabajo. Espera a que termine la unidad en curso (cancelable por
// ctx). Las escrituras de fn quedan en staging y se publican juntas si fn no falla; si falla se
// descartan sin que otra lectura las haya visto.
func (s *Store) Run(ctx context.Context, fn func(repos purchaseflow.Repositories) error) error {
	select {
	case s.writer <- struct{}{}:
	case <-ctx.Done():
		return fmt.Errorf("iniciar unidad de trabajo: %w", ctx.Err())
	}
	defer func() { <-s.writer }()

	u := newUnitOfWork()
	if err := fn(s.repositories(u)); err != nil {
		return err
	}
	s.mu.Lock()
	u.publish(s)
	s.mu.Unlock()
	return nil
}

// Repositories repositorios fuera de transacción (lecturas y auditoría). Cada escritura se
// confirma por separado.
func (s *Store) Repositories() purchaseflow.Repositories {
	return s.repositories(nil)
}

func (s *Store) repositories(u *unitOfWork) purchaseflow.Repositories {
	return purchaseflow.Repositories{
		Entities:      &EntityRepo{s: s, u: u},
		Transactions:  &TransactionRepo{s: s, u: u},
		Relationships: &RelationshipRepo{s: s, u: u},
		Events:        &EventRepo{s: s, u: u},
		Snapshots:     &SnapshotRepo{s: s, u: u},
	}
}

// CountEntities filas de entidad confirmadas con la clave dada.
func (s *Store) CountEntities(organizationID, entityType, externalID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, e := range s.entities {
		if e.OrganizationID == organizationID && e.EntityType == entityType && e.ExternalID == externalID {
			n++
		}
	}
	return n
}

// CountTransactions transacciones confirmadas de un tipo en la organización.
func (s *Store) CountTransactions(organizationID, transactionType string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, t := range s.transactions {
		if t.OrganizationID == organizationID && t.TransactionType == transactionType {
			n++
		}
	}
	return n
}

// unitOfWork escrituras pendientes de una unidad de trabajo. Solo la usa la goroutine de fn.
type unitOfWork struct {
	entities      map[string]*entity.BusinessEntity
	transactions  map[string]*entity.BusinessTransaction
	txByExternal  map[string]string
	relationships []*entity.BusinessRelationship
	events        []*entity.BusinessEvent
	snapshots     map[string]*entity.InventorySnapshot
}

func newUnitOfWork() *unitOfWork {
	return &unitOfWork{
		entities:     map[string]*entity.BusinessEntity{},
		transactions: map[string]*entity.BusinessTransaction{},
		txByExternal: map[string]string{},
		snapshots:    map[string]*entity.InventorySnapshot{},
	}
}

// publish copia el staging a los mapas confirmados. Requiere s.mu tomado.
func (u *unitOfWork) publish(s *Store) {
	for k, e := range u.entities {
		s.entities[k] = e
	}
	for id, t := range u.transactions {
		s.transactions[id] = t
	}
	for k, id := range u.txByExternal {
		s.txByExternal[k] = id
	}
	s.relationships = append(s.relationships, u.relationships...)
	s.events = append(s.events, u.events...)
	for k, snap := range u.snapshots {
		s.snapshots[k] = snap
	}
}

func entityKey(organizationID, entityType, externalID string) string {
	return organizationID + "|" + entityType + "|" + externalID
}

// cloneAttrs copia profunda vía JSON: el store nunca comparte mapas con el llamador y los
// valores quedan con la misma forma que tendrían al leerlos de JSONB.
func cloneAttrs(m map[string]any) (map[string]any, error) {
	if m == nil {
		return map[string]any{}, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("serializar atributos: %w", err)
	}
	out := map[string]any{}
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("deserializar atributos: %w", err)
	}
	return out, nil
}

func mustCloneAttrs(m map[string]any) map[string]any {
	out, err := cloneAttrs(m)
	if err != nil {
		// Los valores guardados ya pasaron por cloneAttrs en la escritura.
		panic(err)
	}
	return out
}
