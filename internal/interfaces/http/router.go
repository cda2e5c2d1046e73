package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/jhoicas/eca-purchase-flow/internal/application/purchaseflow"
	"github.com/jhoicas/eca-purchase-flow/internal/infrastructure/metrics"
	"github.com/jhoicas/eca-purchase-flow/pkg/jwt"
)

// RouterDeps dependencias para el router.
type RouterDeps struct {
	Processor   *purchaseflow.Processor
	Query       *purchaseflow.QueryService
	Metrics     *metrics.PrometheusObserver // nil = sin /metrics
	JWTSecret   string
	JWTIssuer   string // vacío = no se verifica iss
	ServiceName string
}

// Router registra las rutas de la API.
func Router(app *fiber.App, deps RouterDeps) {
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "service": deps.ServiceName})
	})
	if deps.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(deps.Metrics.Handler()))
	}

	api := app.Group("/api")

	// Rutas protegidas (requieren Bearer Token)
	protected := api.Group("/", AuthMiddleware(deps.JWTSecret, deps.JWTIssuer))
	handler := NewPurchaseFlowHandler(deps.Processor, deps.Query)

	flow := protected.Group("/purchase-flow")
	flow.Post("/events", RequireRole(jwt.RoleAdmin, jwt.RoleBodeguero, jwt.RoleIntegracion), handler.PostEvent)
	flow.Get("/transactions/:type/:external_id", handler.GetTransaction)
	flow.Get("/transactions/:type/:external_id/events", handler.ListEvents)

	inventory := protected.Group("/inventory")
	inventory.Get("/snapshots/:variant/:location", handler.GetSnapshot)
}
