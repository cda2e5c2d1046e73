package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jhoicas/eca-purchase-flow/internal/domain"
	"github.com/jhoicas/eca-purchase-flow/internal/domain/entity"
	"github.com/jhoicas/eca-purchase-flow/internal/domain/repository"
)

var _ repository.TransactionRepository = (*TransactionRepo)(nil)

// TransactionRepo implementación de TransactionRepository sobre PostgreSQL. El historial de estados
// se persiste dentro de attributes bajo la clave state_history.
type TransactionRepo struct {
	q Querier
}

// NewTransactionRepository construye el adaptador. Pasar pool o tx (Querier).
func NewTransactionRepository(q Querier) *TransactionRepo {
	return &TransactionRepo{q: q}
}

const transactionColumns = `id, organization_id, transaction_type, external_id, status, attributes, version, created_at, updated_at`

// GetByID obtiene una transacción por ID.
func (r *TransactionRepo) GetByID(ctx context.Context, id string) (*entity.BusinessTransaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM business_transactions WHERE id = $1`
	return r.scanOne(ctx, "get transaction", query, id)
}

// GetByExternalID obtiene una transacción por (organización, tipo, external id).
func (r *TransactionRepo) GetByExternalID(ctx context.Context, organizationID, transactionType, externalID string) (*entity.BusinessTransaction, error) {
	query := `SELECT ` + transactionColumns + `
		FROM business_transactions
		WHERE organization_id = $1 AND transaction_type = $2 AND external_id = $3`
	return r.scanOne(ctx, "get transaction by external id", query, organizationID, transactionType, externalID)
}

// GetByExternalIDForUpdate igual que GetByExternalID con SELECT FOR UPDATE.
func (r *TransactionRepo) GetByExternalIDForUpdate(ctx context.Context, organizationID, transactionType, externalID string) (*entity.BusinessTransaction, error) {
	query := `SELECT ` + transactionColumns + `
		FROM business_transactions
		WHERE organization_id = $1 AND transaction_type = $2 AND external_id = $3
		FOR UPDATE`
	return r.scanOne(ctx, "get transaction for update", query, organizationID, transactionType, externalID)
}

// Create inserta la transacción con version 1.
func (r *TransactionRepo) Create(ctx context.Context, t *entity.BusinessTransaction) error {
	attrs, err := withHistory(t)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO business_transactions (` + transactionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, 1, $7, $8)`
	_, err = r.q.Exec(ctx, query,
		t.ID, t.OrganizationID, t.TransactionType, t.ExternalID, t.Status, attrs, t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicate
		}
		return fmt.Errorf("insert transaction: %w", err)
	}
	t.Version = 1
	return nil
}

// Transition escribe estado, atributos e historial si la versión no cambió.
func (r *TransactionRepo) Transition(ctx context.Context, t *entity.BusinessTransaction, expectedVersion int64) error {
	attrs, err := withHistory(t)
	if err != nil {
		return err
	}
	query := `
		UPDATE business_transactions
		SET status = $3, attributes = $4, version = version + 1, updated_at = $5
		WHERE id = $1 AND version = $2`
	tag, err := r.q.Exec(ctx, query, t.ID, expectedVersion, t.Status, attrs, t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("transition transaction: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrConcurrentModification
	}
	t.Version = expectedVersion + 1
	return nil
}

func (r *TransactionRepo) scanOne(ctx context.Context, op, query string, args ...any) (*entity.BusinessTransaction, error) {
	var (
		t     entity.BusinessTransaction
		attrs []byte
	)
	err := r.q.QueryRow(ctx, query, args...).Scan(
		&t.ID, &t.OrganizationID, &t.TransactionType, &t.ExternalID, &t.Status, &attrs, &t.Version, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := splitHistory(&t, attrs); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &t, nil
}

// withHistory serializa attributes con state_history embebido.
func withHistory(t *entity.BusinessTransaction) ([]byte, error) {
	merged := make(map[string]any, len(t.Attributes)+1)
	for k, v := range t.Attributes {
		merged[k] = v
	}
	history := t.StateHistory
	if history == nil {
		history = []entity.StateTransition{}
	}
	merged[entity.StateHistoryKey] = history
	return jsonb(merged)
}

// splitHistory separa state_history del bag de atributos leído.
func splitHistory(t *entity.BusinessTransaction, raw []byte) error {
	var doc map[string]json.RawMessage
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &doc); err != nil {
			return fmt.Errorf("deserializar atributos: %w", err)
		}
	}
	if h, ok := doc[entity.StateHistoryKey]; ok {
		if err := json.Unmarshal(h, &t.StateHistory); err != nil {
			return fmt.Errorf("deserializar state_history: %w", err)
		}
		delete(doc, entity.StateHistoryKey)
	}
	t.Attributes = make(map[string]any, len(doc))
	for k, v := range doc {
		var val any
		if err := json.Unmarshal(v, &val); err != nil {
			return fmt.Errorf("deserializar atributo %s: %w", k, err)
		}
		t.Attributes[k] = val
	}
	return nil
}
