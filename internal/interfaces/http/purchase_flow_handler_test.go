package http_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/eca-purchase-flow/internal/application/dto"
	"github.com/jhoicas/eca-purchase-flow/internal/application/purchaseflow"
	"github.com/jhoicas/eca-purchase-flow/internal/infrastructure/memory"
	"github.com/jhoicas/eca-purchase-flow/internal/infrastructure/metrics"
	apphttp "github.com/jhoicas/eca-purchase-flow/internal/interfaces/http"
	"github.com/jhoicas/eca-purchase-flow/pkg/logger"
)

// ──────────────────────────────────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────────────────────────────────

// buildFlowApp arma el router completo sobre el store en memoria.
func buildFlowApp(t *testing.T) *fiber.App {
	t.Helper()
	store := memory.NewStore()
	obs := metrics.NewPrometheusObserver()
	events := purchaseflow.NewEventRecorder(store.Repositories().Events, logger.Nop(), obs)
	orch := purchaseflow.NewOrchestrator(store, store, events, logger.Nop(), purchaseflow.WithObserver(obs))

	app := fiber.New()
	apphttp.Router(app, apphttp.RouterDeps{
		Processor:   purchaseflow.NewProcessor(orch, purchaseflow.NewDecoder(), logger.Nop()),
		Query:       purchaseflow.NewQueryService(store.Repositories()),
		Metrics:     obs,
		JWTSecret:   testJWTSecret,
		JWTIssuer:   testIssuer,
		ServiceName: "eca-purchase-flow-test",
	})
	return app
}

func postEvent(t *testing.T, app *fiber.App, role, body string) (*http.Response, dto.OutboundResult) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/purchase-flow/events", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", tokenForRole(t, role))
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out dto.OutboundResult
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &out), "cuerpo: %s", raw)
	return resp, out
}

func get(t *testing.T, app *fiber.App, path string) *http.Response {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.Header.Set("Authorization", tokenForRole(t, "bodeguero"))
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

const createOrderBody = `{
	"action": "create_order",
	"attributes": {
		"external_id": "PO-1",
		"supplier_external_id": "SUP-1",
		"items": [{"product_external_id": "P1", "quantity": 10, "unit_price": "12.5"}]
	}
}`

// ──────────────────────────────────────────────────────────────────────────────
// POST /api/purchase-flow/events
// ──────────────────────────────────────────────────────────────────────────────

func TestPostEvent_CreateOrder_UsaEmpresaDelToken(t *testing.T) {
	app := buildFlowApp(t)

	resp, out := postEvent(t, app, "integracion", createOrderBody)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, out.Success)
	assert.Equal(t, testCompanyID, out.Metadata.OrganizationID)
	assert.Equal(t, "PENDENTE", out.Attributes.Status)
	assert.NotEmpty(t, out.Metadata.EventUUID)
}

func TestPostEvent_OrganizacionDistinta_Retorna403(t *testing.T) {
	app := buildFlowApp(t)
	body := `{"action":"approve_order","organization_id":"otra-org","attributes":{"external_id":"PO-1"}}`

	resp, out := postEvent(t, app, "admin", body)

	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.False(t, out.Success)
	require.NotNil(t, out.Error)
	assert.Equal(t, purchaseflow.CodeForbidden, out.Error.Code)
	assert.NotEmpty(t, out.Metadata.EventUUID)
}

func TestPostEvent_GuardaRechazada_Retorna409(t *testing.T) {
	app := buildFlowApp(t)
	postEvent(t, app, "admin", createOrderBody)
	resp, _ := postEvent(t, app, "admin", `{"action":"approve_order","attributes":{"external_id":"PO-1"}}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, out := postEvent(t, app, "admin", `{"action":"approve_order","attributes":{"external_id":"PO-1"}}`)

	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, purchaseflow.CodeInvalidTransition, out.Error.Code)
	assert.Equal(t, 1, out.Attributes.Summary.RecordsFailed)
}

func TestPostEvent_CampoFaltante_Retorna400(t *testing.T) {
	app := buildFlowApp(t)

	resp, out := postEvent(t, app, "admin", `{"action":"create_order","attributes":{"external_id":"PO-1"}}`)

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, purchaseflow.CodeValidation, out.Error.Code)
	assert.Contains(t, out.Error.Message, "supplier_external_id")
}

func TestPostEvent_PedidoInexistente_Retorna404(t *testing.T) {
	app := buildFlowApp(t)

	resp, out := postEvent(t, app, "admin",
		`{"action":"register_invoice","attributes":{"external_id":"INV-1","purchase_order_external_id":"PO-X"}}`)

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, purchaseflow.CodeNotFound, out.Error.Code)
}

func TestPostEvent_CuerpoInvalido_Retorna400(t *testing.T) {
	app := buildFlowApp(t)

	resp, out := postEvent(t, app, "admin", `{"action": `)

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "INVALID_BODY", out.Error.Code)
}

func TestPostEvent_SinToken_Retorna401(t *testing.T) {
	app := buildFlowApp(t)
	req := httptest.NewRequest(http.MethodPost, "/api/purchase-flow/events", strings.NewReader(createOrderBody))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

// ──────────────────────────────────────────────────────────────────────────────
// Lecturas
// ──────────────────────────────────────────────────────────────────────────────

func TestGetTransaction_TipoEnMinusculas(t *testing.T) {
	app := buildFlowApp(t)
	postEvent(t, app, "admin", createOrderBody)

	resp := get(t, app, "/api/purchase-flow/transactions/order_purchase/PO-1")
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var out dto.TransactionResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, "PO-1", out.ExternalID)
	assert.Equal(t, "PENDENTE", out.Status)
	assert.Empty(t, out.StateHistory)
}

func TestGetTransaction_Inexistente_Retorna404(t *testing.T) {
	app := buildFlowApp(t)

	resp := get(t, app, "/api/purchase-flow/transactions/ORDER_PURCHASE/PO-X")
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), purchaseflow.CodeNotFound)
}

func TestListEvents_Paginado(t *testing.T) {
	app := buildFlowApp(t)
	postEvent(t, app, "admin", createOrderBody)
	postEvent(t, app, "admin", `{"action":"approve_order","attributes":{"external_id":"PO-1"}}`)

	resp := get(t, app, "/api/purchase-flow/transactions/ORDER_PURCHASE/PO-1/events?limit=1&offset=1")
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var out dto.EventListResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, 2, out.Page.Total)
	require.Len(t, out.Items, 1)
	assert.Equal(t, purchaseflow.EventPurchaseOrderApproved, out.Items[0].EventCode)
}

func TestGetSnapshot_Inexistente_Retorna404(t *testing.T) {
	app := buildFlowApp(t)

	resp := get(t, app, "/api/inventory/snapshots/P1/CD-01")
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

// ──────────────────────────────────────────────────────────────────────────────
// Rutas públicas
// ──────────────────────────────────────────────────────────────────────────────

func TestHealthYMetrics_SinToken(t *testing.T) {
	app := buildFlowApp(t)
	postEvent(t, app, "admin", createOrderBody)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/health", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/metrics", nil), -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), metrics.MetricActionsTotal)
}
