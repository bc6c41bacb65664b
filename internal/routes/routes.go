package routes

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/wirehooks/eventbus-svc/internal/handlers"
)

// SetupRoutes configures all application routes with dependencies.
// metricsHandler may be nil when no exporter is configured.
func SetupRoutes(
	app *fiber.App,
	events *handlers.EventsHandler,
	subscriptions *handlers.SubscriptionsHandler,
	deliveries *handlers.DeliveriesHandler,
	health *handlers.HealthHandler,
	metricsHandler http.Handler,
) {
	app.Get("/health", health.HealthCheck)
	if metricsHandler != nil {
		app.Get("/metrics", adaptor.HTTPHandler(metricsHandler))
	}

	api := app.Group("/api/v1")
	{
		api.Post("/events", events.EmitEvent)
		api.Get("/events", events.GetEvents)
		api.Get("/events/:id", events.GetEvent)

		api.Post("/subscriptions", subscriptions.Create)
		api.Get("/subscriptions", subscriptions.List)
		api.Get("/subscriptions/:id", subscriptions.Get)
		api.Patch("/subscriptions/:id", subscriptions.Update)
		api.Delete("/subscriptions/:id", subscriptions.Delete)

		api.Get("/deliveries", deliveries.List)
		api.Get("/deliveries/stats", deliveries.Stats)
		api.Get("/deliveries/:id", deliveries.Get)
	}
}
