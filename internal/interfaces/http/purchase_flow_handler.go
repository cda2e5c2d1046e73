package http

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/jhoicas/eca-purchase-flow/internal/application/dto"
	"github.com/jhoicas/eca-purchase-flow/internal/application/purchaseflow"
)

// PurchaseFlowHandler maneja el webhook de eventos y las lecturas del flujo de compras (protegido).
type PurchaseFlowHandler struct {
	processor *purchaseflow.Processor
	query     *purchaseflow.QueryService
}

// NewPurchaseFlowHandler construye el handler.
func NewPurchaseFlowHandler(processor *purchaseflow.Processor, query *purchaseflow.QueryService) *PurchaseFlowHandler {
	return &PurchaseFlowHandler{processor: processor, query: query}
}

// PostEvent godoc
// @Summary      Procesar evento del flujo de compras
// @Description  Ejecuta una de las acciones create_order, approve_order, register_invoice, arrive_at_cd,
//
//	start_conference, scan_items, effectuate_cd. organization_id por defecto es la empresa del token.
//
// @Tags         purchase-flow
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  dto.InboundEvent  true  "action, organization_id, attributes, metadata"
// @Success      200   {object}  dto.OutboundResult
// @Failure      400   {object}  dto.OutboundResult
// @Failure      403   {object}  dto.OutboundResult
// @Failure      404   {object}  dto.OutboundResult
// @Failure      409   {object}  dto.OutboundResult
// @Failure      500   {object}  dto.OutboundResult
// @Router       /api/purchase-flow/events [post]
func (h *PurchaseFlowHandler) PostEvent(c *fiber.Ctx) error {
	start := time.Now()
	companyID := GetCompanyID(c)
	if companyID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Code: "UNAUTHORIZED", Message: "token inválido"})
	}
	var ev dto.InboundEvent
	if err := c.BodyParser(&ev); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(rejected(start, ev, companyID, "INVALID_BODY", "cuerpo inválido"))
	}
	if ev.OrganizationID == "" {
		ev.OrganizationID = companyID
	}
	if ev.OrganizationID != companyID {
		return c.Status(fiber.StatusForbidden).JSON(rejected(start, ev, companyID, purchaseflow.CodeForbidden, "organization_id no corresponde al token"))
	}
	if ev.Metadata != nil && ev.Metadata.UserID == "" {
		ev.Metadata.UserID = GetUserID(c)
	}

	out, err := h.processor.Process(c.UserContext(), ev)
	return c.Status(statusFor(err)).JSON(out)
}

// GetTransaction godoc
// @Summary      Consultar transacción de negocio
// @Tags         purchase-flow
// @Security     Bearer
// @Produce      json
// @Param        type         path  string  true  "ORDER_PURCHASE | DOCUMENT_SUPPLIER_IN"
// @Param        external_id  path  string  true  "External id"
// @Success      200  {object}  dto.TransactionResponse
// @Failure      400  {object}  dto.ErrorResponse
// @Failure      404  {object}  dto.ErrorResponse
// @Router       /api/purchase-flow/transactions/{type}/{external_id} [get]
func (h *PurchaseFlowHandler) GetTransaction(c *fiber.Ctx) error {
	companyID := GetCompanyID(c)
	if companyID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Code: "UNAUTHORIZED", Message: "token inválido"})
	}
	txType := strings.ToUpper(c.Params("type"))
	out, err := h.query.GetTransaction(c.UserContext(), companyID, txType, c.Params("external_id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(out)
}

// ListEvents godoc
// @Summary      Log de auditoría de una transacción
// @Tags         purchase-flow
// @Security     Bearer
// @Produce      json
// @Param        type         path   string  true   "ORDER_PURCHASE | DOCUMENT_SUPPLIER_IN"
// @Param        external_id  path   string  true   "External id"
// @Param        limit        query  int     false  "Límite (default 20, máx 100)"
// @Param        offset       query  int     false  "Offset"
// @Success      200  {object}  dto.EventListResponse
// @Failure      404  {object}  dto.ErrorResponse
// @Router       /api/purchase-flow/transactions/{type}/{external_id}/events [get]
func (h *PurchaseFlowHandler) ListEvents(c *fiber.Ctx) error {
	companyID := GetCompanyID(c)
	if companyID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Code: "UNAUTHORIZED", Message: "token inválido"})
	}
	var page dto.PageRequest
	if err := c.QueryParser(&page); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: purchaseflow.CodeValidation, Message: "limit/offset inválidos"})
	}
	txType := strings.ToUpper(c.Params("type"))
	out, err := h.query.ListEvents(c.UserContext(), companyID, txType, c.Params("external_id"), page)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(out)
}

// GetSnapshot godoc
// @Summary      Consultar stock por variante y ubicación
// @Tags         inventory
// @Security     Bearer
// @Produce      json
// @Param        variant   path  string  true  "Variant external id (o product external id)"
// @Param        location  path  string  true  "Location external id"
// @Success      200  {object}  dto.SnapshotResponse
// @Failure      404  {object}  dto.ErrorResponse
// @Router       /api/inventory/snapshots/{variant}/{location} [get]
func (h *PurchaseFlowHandler) GetSnapshot(c *fiber.Ctx) error {
	companyID := GetCompanyID(c)
	if companyID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Code: "UNAUTHORIZED", Message: "token inválido"})
	}
	out, err := h.query.GetSnapshot(c.UserContext(), companyID, c.Params("variant"), c.Params("location"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(out)
}

// rejected resultado para eventos rechazados antes de llegar al procesador.
func rejected(start time.Time, ev dto.InboundEvent, org, code, msg string) dto.OutboundResult {
	eventUUID := ""
	if ev.Metadata != nil {
		eventUUID = ev.Metadata.EventUUID
	}
	if _, err := uuid.Parse(eventUUID); err != nil {
		eventUUID = uuid.New().String()
	}
	return dto.OutboundResult{
		Success: false,
		Action:  ev.Action,
		Attributes: dto.ResultAttributes{
			Summary: dto.SummaryDTO{Message: msg, RecordsFailed: 1},
		},
		Metadata: dto.ResultMetadata{
			ProcessedAt:      time.Now().UTC(),
			ProcessingTimeMs: time.Since(start).Milliseconds(),
			OrganizationID:   org,
			Action:           ev.Action,
			EventUUID:        eventUUID,
		},
		Error: &dto.ErrorResponse{Code: code, Message: msg},
	}
}
