package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jhoicas/eca-purchase-flow/internal/application/purchaseflow"
)

var _ purchaseflow.TxRunner = (*TxRunner)(nil)

// TxRunner ejecuta callbacks dentro de una transacción PostgreSQL.
type TxRunner struct {
	pool *pgxpool.Pool
}

// NewTxRunner construye el runner con el pool.
func NewTxRunner(pool *pgxpool.Pool) *TxRunner {
	return &TxRunner{pool: pool}
}

// Run inicia una transacción, ejecuta fn con repos atados a la tx y hace Commit o Rollback.
func (r *TxRunner) Run(ctx context.Context, fn func(repos purchaseflow.Repositories) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(NewRepositories(tx)); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// NewRepositories repositorios atados a q (pool para lecturas y auditoría, tx dentro de Run).
func NewRepositories(q Querier) purchaseflow.Repositories {
	return purchaseflow.Repositories{
		Entities:      NewEntityRepository(q),
		Transactions:  NewTransactionRepository(q),
		Relationships: NewRelationshipRepository(q),
		Events:        NewEventRepository(q),
		Snapshots:     NewSnapshotRepository(q),
	}
}
