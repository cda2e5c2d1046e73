package purchaseflow

import (
	"errors"

	"github.com/jhoicas/eca-purchase-flow/internal/domain"
)

// Códigos de error expuestos a los transportes.
const (
	CodeValidation             = "VALIDATION"
	CodeNotFound               = "NOT_FOUND"
	CodeInvalidTransition      = "INVALID_TRANSITION"
	CodeConcurrentModification = "CONCURRENT_MODIFICATION"
	CodeConflict               = "CONFLICT"
	CodeUnauthorized           = "UNAUTHORIZED"
	CodeForbidden              = "FORBIDDEN"
	CodeInternal               = "INTERNAL"
)

// ErrorCode traduce err a un código estable. El booleano es false para errores de infraestructura.
func ErrorCode(err error) (string, bool) {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return CodeValidation, true
	case errors.Is(err, domain.ErrNotFound):
		return CodeNotFound, true
	case errors.Is(err, domain.ErrInvalidTransition):
		return CodeInvalidTransition, true
	case errors.Is(err, domain.ErrConcurrentModification):
		return CodeConcurrentModification, true
	case errors.Is(err, domain.ErrConflict), errors.Is(err, domain.ErrDuplicate):
		return CodeConflict, true
	case errors.Is(err, domain.ErrUnauthorized):
		return CodeUnauthorized, true
	case errors.Is(err, domain.ErrForbidden):
		return CodeForbidden, true
	}
	return CodeInternal, false
}
