package memory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/eca-purchase-flow/internal/application/purchaseflow"
	"github.com/jhoicas/eca-purchase-flow/internal/domain"
	"github.com/jhoicas/eca-purchase-flow/internal/domain/entity"
	"github.com/jhoicas/eca-purchase-flow/internal/infrastructure/memory"
)

const org = "org-1"

func newOrder(id, ext string) *entity.BusinessTransaction {
	return &entity.BusinessTransaction{
		ID:              id,
		OrganizationID:  org,
		TransactionType: entity.TransactionTypeOrderPurchase,
		ExternalID:      &ext,
		Status:          entity.OrderStatusPending,
		Attributes:      map[string]any{"total_value": "10"},
	}
}

func TestTransactionCreate_AsignaVersionYRechazaDuplicado(t *testing.T) {
	s := memory.NewStore()
	repo := s.Repositories().Transactions
	ctx := context.Background()

	tx := newOrder("t-1", "PO-1")
	require.NoError(t, repo.Create(ctx, tx))
	assert.EqualValues(t, 1, tx.Version)

	err := repo.Create(ctx, newOrder("t-2", "PO-1"))
	assert.ErrorIs(t, err, domain.ErrDuplicate)
}

func TestTransition_VersionDesactualizada_EsConflicto(t *testing.T) {
	s := memory.NewStore()
	repo := s.Repositories().Transactions
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, newOrder("t-1", "PO-1")))

	a, err := repo.GetByExternalID(ctx, org, entity.TransactionTypeOrderPurchase, "PO-1")
	require.NoError(t, err)
	b, err := repo.GetByExternalID(ctx, org, entity.TransactionTypeOrderPurchase, "PO-1")
	require.NoError(t, err)

	a.Status = entity.OrderStatusApproved
	require.NoError(t, repo.Transition(ctx, a, 1))
	assert.EqualValues(t, 2, a.Version)

	b.Status = entity.OrderStatusApproved
	assert.ErrorIs(t, repo.Transition(ctx, b, 1), domain.ErrConcurrentModification)
}

func TestRun_Error_DeshaceEscrituras(t *testing.T) {
	s := memory.NewStore()
	ctx := context.Background()
	boom := errors.New("falla a mitad de la unidad de trabajo")
	key := entity.SnapshotKey{OrganizationID: org, VariantExternalID: "V1", LocationExternalID: "CD-01"}

	err := s.Run(ctx, func(repos purchaseflow.Repositories) error {
		require.NoError(t, repos.Entities.Create(ctx, &entity.BusinessEntity{
			ID: "e-1", OrganizationID: org, EntityType: entity.EntityTypeProduct, ExternalID: "P1",
		}))
		require.NoError(t, repos.Transactions.Create(ctx, newOrder("t-1", "PO-1")))
		snap, err := repos.Snapshots.GetForUpdate(ctx, key)
		require.NoError(t, err)
		snap.CurrentStock = decimal.NewFromInt(5)
		require.NoError(t, repos.Snapshots.Upsert(ctx, snap))
		return boom
	})

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, s.CountEntities(org, entity.EntityTypeProduct, "P1"))
	assert.Equal(t, 0, s.CountTransactions(org, entity.TransactionTypeOrderPurchase))
	snap, err := s.Repositories().Snapshots.Get(ctx, key)
	require.NoError(t, err)
	assert.Nil(t, snap)
}

func TestRun_ErrorDespuesDeTransicion_RestauraEstado(t *testing.T) {
	s := memory.NewStore()
	ctx := context.Background()
	require.NoError(t, s.Repositories().Transactions.Create(ctx, newOrder("t-1", "PO-1")))

	_ = s.Run(ctx, func(repos purchaseflow.Repositories) error {
		tx, err := repos.Transactions.GetByExternalIDForUpdate(ctx, org, entity.TransactionTypeOrderPurchase, "PO-1")
		require.NoError(t, err)
		tx.Status = entity.OrderStatusApproved
		require.NoError(t, repos.Transactions.Transition(ctx, tx, tx.Version))
		return errors.New("rollback")
	})

	tx, err := s.Repositories().Transactions.GetByExternalID(ctx, org, entity.TransactionTypeOrderPurchase, "PO-1")
	require.NoError(t, err)
	assert.Equal(t, entity.OrderStatusPending, tx.Status)
	assert.EqualValues(t, 1, tx.Version)
}

func TestLecturas_NoCompartenMapas(t *testing.T) {
	s := memory.NewStore()
	ctx := context.Background()
	require.NoError(t, s.Repositories().Transactions.Create(ctx, newOrder("t-1", "PO-1")))

	tx, err := s.Repositories().Transactions.GetByID(ctx, "t-1")
	require.NoError(t, err)
	tx.Attributes["total_value"] = "999"

	again, err := s.Repositories().Transactions.GetByID(ctx, "t-1")
	require.NoError(t, err)
	assert.Equal(t, "10", again.Attributes["total_value"])
}

func TestRun_UnaUnidadALaVez_EsperaCancelable(t *testing.T) {
	s := memory.NewStore()
	ctx := context.Background()
	key := entity.SnapshotKey{OrganizationID: org, VariantExternalID: "V1", LocationExternalID: "CD-01"}

	locked := make(chan struct{})
	release := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = s.Run(ctx, func(repos purchaseflow.Repositories) error {
			_, err := repos.Snapshots.GetForUpdate(ctx, key)
			close(locked)
			<-release
			return err
		})
	}()
	<-locked

	waitCtx, cancel := context.WithTimeout(ctx, 30*time.Millisecond)
	defer cancel()
	called := false
	err := s.Run(waitCtx, func(repos purchaseflow.Repositories) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, called)

	close(release)
	<-done
	err = s.Run(ctx, func(repos purchaseflow.Repositories) error {
		_, err := repos.Snapshots.GetForUpdate(ctx, key)
		return err
	})
	assert.NoError(t, err)
}

func TestRun_EscriturasSinConfirmar_NoSonVisibles(t *testing.T) {
	s := memory.NewStore()
	ctx := context.Background()

	created := make(chan struct{})
	release := make(chan struct{})
	aDone := make(chan error, 1)
	go func() {
		aDone <- s.Run(ctx, func(repos purchaseflow.Repositories) error {
			if err := repos.Entities.Create(ctx, &entity.BusinessEntity{
				ID: "e-a", OrganizationID: org, EntityType: entity.EntityTypeProduct, ExternalID: "P9",
			}); err != nil {
				return err
			}
			close(created)
			<-release
			return errors.New("la unidad A falla después de crear P9")
		})
	}()
	<-created

	got, err := s.Repositories().Entities.GetByExternalID(ctx, org, entity.EntityTypeProduct, "P9")
	require.NoError(t, err)
	assert.Nil(t, got, "P9 todavía no está confirmado")

	var (
		bID  string
		bErr error
	)
	bDone := make(chan struct{})
	go func() {
		defer close(bDone)
		bErr = s.Run(ctx, func(repos purchaseflow.Repositories) error {
			p, err := purchaseflow.NewEntityResolver(repos.Entities).
				ResolveOrCreate(ctx, org, entity.EntityTypeProduct, "P9", purchaseflow.EntitySeed{})
			if err != nil {
				return err
			}
			bID = p.ID
			return repos.Relationships.Create(ctx, &entity.BusinessRelationship{
				ID: "r-b", RelationshipType: entity.RelationshipAffectsProduct, SourceID: "mov-b", TargetID: p.ID,
			})
		})
	}()

	select {
	case <-bDone:
		t.Fatal("la unidad B no debe avanzar mientras A sigue abierta")
	case <-time.After(20 * time.Millisecond):
	}

	close(release)
	require.Error(t, <-aDone)
	<-bDone
	require.NoError(t, bErr)
	assert.NotEqual(t, "e-a", bID)

	got, err = s.Repositories().Entities.GetByExternalID(ctx, org, entity.EntityTypeProduct, "P9")
	require.NoError(t, err)
	require.NotNil(t, got, "la entidad referenciada por B sigue existiendo")
	assert.Equal(t, bID, got.ID)
	rels, err := s.Repositories().Relationships.ListBySource(ctx, "mov-b")
	require.NoError(t, err)
	require.Len(t, rels, 1)
	assert.Equal(t, got.ID, rels[0].TargetID)
}

func TestRun_LeeSusPropiasEscrituras(t *testing.T) {
	s := memory.NewStore()
	ctx := context.Background()
	key := entity.SnapshotKey{OrganizationID: org, VariantExternalID: "V1", LocationExternalID: "CD-01"}

	err := s.Run(ctx, func(repos purchaseflow.Repositories) error {
		require.NoError(t, repos.Transactions.Create(ctx, newOrder("t-1", "PO-1")))
		tx, err := repos.Transactions.GetByExternalIDForUpdate(ctx, org, entity.TransactionTypeOrderPurchase, "PO-1")
		require.NoError(t, err)
		require.NotNil(t, tx)
		tx.Status = entity.OrderStatusApproved
		require.NoError(t, repos.Transactions.Transition(ctx, tx, 1))

		snap, err := repos.Snapshots.GetForUpdate(ctx, key)
		require.NoError(t, err)
		snap.CurrentStock = decimal.NewFromInt(3)
		require.NoError(t, repos.Snapshots.Upsert(ctx, snap))
		again, err := repos.Snapshots.GetForUpdate(ctx, key)
		require.NoError(t, err)
		assert.True(t, again.CurrentStock.Equal(decimal.NewFromInt(3)))
		return nil
	})
	require.NoError(t, err)

	tx, err := s.Repositories().Transactions.GetByExternalID(ctx, org, entity.TransactionTypeOrderPurchase, "PO-1")
	require.NoError(t, err)
	assert.Equal(t, entity.OrderStatusApproved, tx.Status)
	assert.EqualValues(t, 2, tx.Version)
}

func TestKeyedMutex_CancelacionYLimpieza(t *testing.T) {
	km := memory.NewKeyedMutex()
	ctx := context.Background()

	unlock, err := km.Lock(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, 1, km.Len())

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = km.Lock(cancelled, "k")
	assert.ErrorIs(t, err, context.Canceled)

	unlock()
	unlock() // idempotente
	assert.Equal(t, 0, km.Len())

	unlock2, err := km.Lock(ctx, "k")
	require.NoError(t, err)
	unlock2()
}
