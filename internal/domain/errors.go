package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Errores de dominio (sin dependencias externas).
var (
	ErrNotFound               = errors.New("recurso no encontrado")
	ErrInvalidInput           = errors.New("entrada inválida")
	ErrDuplicate              = errors.New("recurso duplicado")
	ErrUnauthorized           = errors.New("no autorizado")
	ErrForbidden              = errors.New("acceso denegado")
	ErrConflict               = errors.New("conflicto con el estado actual")
	ErrInvalidTransition      = errors.New("transición de estado no permitida")
	ErrConcurrentModification = errors.New("la transacción fue modificada por otro proceso")
)

// ValidationError campo obligatorio ausente o inválido en los atributos de una acción.
type ValidationError struct {
	Action string
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("%s: campo %q obligatorio", e.Action, e.Field)
	}
	return fmt.Sprintf("%s: campo %q %s", e.Action, e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrInvalidInput }

// NotFoundError referencia por external id que debía existir.
type NotFoundError struct {
	Kind       string
	ExternalID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q no encontrado", e.Kind, e.ExternalID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// GuardError acción intentada desde un estado no permitido por la máquina de estados.
type GuardError struct {
	Action     string
	ExternalID string
	Expected   []string
	Actual     string
}

func (e *GuardError) Error() string {
	return fmt.Sprintf("%s sobre %q: estado esperado %s, actual %s",
		e.Action, e.ExternalID, strings.Join(e.Expected, " | "), e.Actual)
}

func (e *GuardError) Unwrap() error { return ErrInvalidTransition }

// IsDomainError indica si err es un error de dominio (validación, no encontrado, guarda, conflicto)
// en contraposición a un error de infraestructura.
func IsDomainError(err error) bool {
	for _, target := range []error{
		ErrNotFound, ErrInvalidInput, ErrDuplicate, ErrUnauthorized, ErrForbidden,
		ErrConflict, ErrInvalidTransition, ErrConcurrentModification,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
