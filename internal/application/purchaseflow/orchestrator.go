package purchaseflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jhoicas/eca-purchase-flow/internal/domain"
	"github.com/jhoicas/eca-purchase-flow/internal/domain/entity"
	"github.com/jhoicas/eca-purchase-flow/internal/domain/purchaseflow"
	"github.com/jhoicas/eca-purchase-flow/pkg/logger"
)

// DefaultTransitionRetries reintentos ante domain.ErrConcurrentModification.
const DefaultTransitionRetries = 3

// Resultados de acción para métricas.
const (
	OutcomeSuccess    = "success"
	OutcomeValidation = "validation"
	OutcomeNotFound   = "not_found"
	OutcomeGuard      = "guard"
	OutcomeConflict   = "conflict"
	OutcomeError      = "error"
)

// Orchestrator máquina de estados del flujo de compras: valida precondiciones, resuelve
// entidades, muta la transacción con guarda, crea relaciones, actualiza snapshots y audita.
// No guarda estado compartido entre invocaciones; el único recurso compartido es el store.
type Orchestrator struct {
	txRunner  TxRunner
	locker    Locker
	events    *EventRecorder
	snapshots *SnapshotUpdater
	log       *logger.Logger
	observer  Observer
	retries   int
	now       func() time.Time
}

// Option configura el Orchestrator.
type Option func(*Orchestrator)

// WithObserver registra métricas de cada acción.
func WithObserver(obs Observer) Option {
	return func(o *Orchestrator) {
		if obs != nil {
			o.observer = obs
		}
	}
}

// WithTransitionRetries número de reintentos optimistas (0 = rechazar al primer conflicto).
func WithTransitionRetries(n int) Option {
	return func(o *Orchestrator) {
		if n >= 0 {
			o.retries = n
		}
	}
}

// WithClock reloj usado para estampar transiciones (tests).
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// NewOrchestrator construye el orquestador.
func NewOrchestrator(txRunner TxRunner, locker Locker, events *EventRecorder, log *logger.Logger, opts ...Option) *Orchestrator {
	if log == nil {
		log = logger.Nop()
	}
	o := &Orchestrator{
		txRunner:  txRunner,
		locker:    locker,
		events:    events,
		snapshots: NewSnapshotUpdater(txRunner),
		log:       log,
		observer:  nopObserver{},
		retries:   DefaultTransitionRetries,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	o.snapshots.now = o.now
	return o
}

// Handle ejecuta la acción para la organización dada.
func (o *Orchestrator) Handle(ctx context.Context, organizationID string, action Action) (*Result, error) {
	if action == nil {
		return nil, &domain.ValidationError{Action: "unknown", Field: "action"}
	}
	start := time.Now()
	var (
		res *Result
		err error
	)
	if organizationID == "" {
		err = &domain.ValidationError{Action: action.Name(), Field: "organization_id"}
	} else {
		res, err = action.execute(ctx, o, organizationID)
	}
	o.observer.ObserveAction(action.Name(), Outcome(err), time.Since(start))
	return res, err
}

// Outcome clasifica el error para métricas y logs.
func Outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeSuccess
	case errors.Is(err, domain.ErrInvalidInput):
		return OutcomeValidation
	case errors.Is(err, domain.ErrNotFound):
		return OutcomeNotFound
	case errors.Is(err, domain.ErrInvalidTransition):
		return OutcomeGuard
	case errors.Is(err, domain.ErrConcurrentModification), errors.Is(err, domain.ErrConflict), errors.Is(err, domain.ErrDuplicate):
		return OutcomeConflict
	}
	return OutcomeError
}

// lockKey clave de serialización de una transacción de negocio.
func lockKey(organizationID, transactionType, externalID string) string {
	return "purchase-flow:" + organizationID + ":" + transactionType + ":" + externalID
}

func (o *Orchestrator) lock(ctx context.Context, organizationID, transactionType, externalID string) (func(), error) {
	unlock, err := o.locker.Lock(ctx, lockKey(organizationID, transactionType, externalID))
	if err != nil {
		return nil, fmt.Errorf("lock %s %q: %w", transactionType, externalID, err)
	}
	return unlock, nil
}

// mutateFunc aplica los cambios de la acción sobre t (atributos) y devuelve el estado destino.
type mutateFunc func(t *entity.BusinessTransaction, now time.Time) (string, error)

// transition toma el lock de la transacción y aplica una transición guardada.
func (o *Orchestrator) transition(ctx context.Context, org, txType, externalID, action string, mutate mutateFunc) (*entity.BusinessTransaction, string, error) {
	unlock, err := o.lock(ctx, org, txType, externalID)
	if err != nil {
		return nil, "", err
	}
	defer unlock()
	return o.transitionLocked(ctx, org, txType, externalID, action, mutate)
}

// transitionLocked lee con bloqueo, verifica la guarda y escribe estado + atributos + historial en
// una única escritura condicionada a la versión leída. Ante conflicto de versión relee y vuelve a
// evaluar la guarda, hasta o.retries veces. Si la guarda falla no se escribe nada.
func (o *Orchestrator) transitionLocked(ctx context.Context, org, txType, externalID, action string, mutate mutateFunc) (*entity.BusinessTransaction, string, error) {
	for attempt := 0; ; attempt++ {
		var (
			out  *entity.BusinessTransaction
			from string
		)
		err := o.txRunner.Run(ctx, func(repos Repositories) error {
			t, err := repos.Transactions.GetByExternalIDForUpdate(ctx, org, txType, externalID)
			if err != nil {
				return fmt.Errorf("leer %s %q: %w", txType, externalID, err)
			}
			if t == nil {
				return &domain.NotFoundError{Kind: txType, ExternalID: externalID}
			}
			if err := purchaseflow.Guard(action, externalID, t.Status); err != nil {
				return err
			}
			if t.Attributes == nil {
				t.Attributes = map[string]any{}
			}
			now := o.now().UTC()
			to, err := mutate(t, now)
			if err != nil {
				return err
			}
			if !purchaseflow.IsValidStatus(txType, to) {
				return fmt.Errorf("estado destino %q inválido para %s", to, txType)
			}
			from = t.Status
			expected := t.Version
			t.Status = to
			t.StateHistory = append(t.StateHistory, entity.StateTransition{From: from, To: to, TransitionedAt: now})
			t.UpdatedAt = now
			if err := repos.Transactions.Transition(ctx, t, expected); err != nil {
				return err
			}
			out = t
			return nil
		})
		if err == nil {
			return out, from, nil
		}
		if errors.Is(err, domain.ErrConcurrentModification) && attempt < o.retries {
			o.log.Debug().Str("action", action).Str("external_id", externalID).Int("attempt", attempt+1).
				Msg("conflicto de versión, reintentando")
			continue
		}
		return nil, "", err
	}
}

// transitionResult arma el Result común de una transición simple.
func transitionResult(action string, t *entity.BusinessTransaction, from string) *Result {
	return &Result{
		Action:          action,
		TransactionType: t.TransactionType,
		TransactionID:   t.ID,
		ExternalID:      t.ExternalIDValue(),
		Status:          t.Status,
		StateTransition: &StateChange{From: from, To: t.Status},
		Summary: Summary{
			Message:           fmt.Sprintf("%s: %s -> %s", action, from, t.Status),
			RecordsProcessed:  1,
			RecordsSuccessful: 1,
		},
	}
}

func stamp(now time.Time) string {
	return now.UTC().Format(time.RFC3339Nano)
}

func required(action, field, value string) error {
	if value == "" {
		return &domain.ValidationError{Action: action, Field: field}
	}
	return nil
}

func mergeExtra(dst, extra map[string]any) map[string]any {
	if dst == nil {
		dst = map[string]any{}
	}
	for k, v := range extra {
		if _, taken := dst[k]; !taken {
			dst[k] = v
		}
	}
	return dst
}
