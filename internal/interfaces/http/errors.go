package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/jhoicas/eca-purchase-flow/internal/application/dto"
	"github.com/jhoicas/eca-purchase-flow/internal/application/purchaseflow"
)

// statusFor código HTTP para un error del motor.
func statusFor(err error) int {
	if err == nil {
		return fiber.StatusOK
	}
	code, _ := purchaseflow.ErrorCode(err)
	switch code {
	case purchaseflow.CodeValidation:
		return fiber.StatusBadRequest
	case purchaseflow.CodeNotFound:
		return fiber.StatusNotFound
	case purchaseflow.CodeInvalidTransition, purchaseflow.CodeConcurrentModification, purchaseflow.CodeConflict:
		return fiber.StatusConflict
	case purchaseflow.CodeUnauthorized:
		return fiber.StatusUnauthorized
	case purchaseflow.CodeForbidden:
		return fiber.StatusForbidden
	}
	return fiber.StatusInternalServerError
}

// writeError responde con dto.ErrorResponse. Los errores internos no exponen el detalle.
func writeError(c *fiber.Ctx, err error) error {
	code, isDomain := purchaseflow.ErrorCode(err)
	msg := err.Error()
	if !isDomain {
		msg = "error interno"
	}
	return c.Status(statusFor(err)).JSON(dto.ErrorResponse{Code: code, Message: msg})
}
