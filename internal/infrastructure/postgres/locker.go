package postgres

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jhoicas/eca-purchase-flow/internal/application/purchaseflow"
	"github.com/jhoicas/eca-purchase-flow/pkg/logger"
)

var _ purchaseflow.Locker = (*AdvisoryLocker)(nil)

// AdvisoryLocker serializa por clave con advisory locks de sesión. Cada lock retiene una conexión
// del pool propio hasta el unlock, por eso no comparte pool con los repositorios.
type AdvisoryLocker struct {
	pool *pgxpool.Pool
	log  *logger.Logger
}

// NewAdvisoryLocker construye el locker sobre un pool dedicado.
func NewAdvisoryLocker(pool *pgxpool.Pool, log *logger.Logger) *AdvisoryLocker {
	if log == nil {
		log = logger.Nop()
	}
	return &AdvisoryLocker{pool: pool, log: log}
}

// Lock espera el advisory lock de key (cancelable por ctx).
func (l *AdvisoryLocker) Lock(ctx context.Context, key string) (func(), error) {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire lock conn: %w", err)
	}
	if _, err := conn.Exec(ctx, `SELECT pg_advisory_lock(hashtextextended($1, 0))`, key); err != nil {
		// La sesión puede quedar con el lock si la cancelación llegó tarde: no se devuelve al pool.
		_ = conn.Conn().Close(context.Background())
		conn.Release()
		return nil, fmt.Errorf("advisory lock %q: %w", key, err)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			unlockCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if _, err := conn.Exec(unlockCtx, `SELECT pg_advisory_unlock(hashtextextended($1, 0))`, key); err != nil {
				l.log.Warn().Err(err).Str("key", key).Msg("advisory unlock falló, cerrando conexión")
				_ = conn.Conn().Close(unlockCtx)
			}
			conn.Release()
		})
	}, nil
}
