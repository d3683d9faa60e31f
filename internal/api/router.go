package api

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"nms-backend/internal/auth"
)

// NewApp returns a Fiber app with the shared error handler, panic recovery
// and request logging installed.
func NewApp(log *zap.SugaredLogger) *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler:          ErrorHandler(log),
		DisableStartupMessage: true,
		BodyLimit:             64 * 1024 * 1024,
	})
	app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))
	app.Use(RequestLogger(log))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	return app
}

// RegisterRoutes mounts the engine endpoints behind authMW. Migration and
// unit endpoints additionally require adminMW.
func RegisterRoutes(app *fiber.App, h *Handler, authMW, adminMW fiber.Handler) {
	api := app.Group("/api", authMW)

	api.Get("/auth/me", auth.Me)
	api.Get("/schema", h.ListEntities)
	api.Get("/schema/:type", h.GetEntity)

	api.Post("/filtering/:type", h.Filtering)
	api.Post("/multiselect/:type", h.Multiselect)
	api.Get("/instance/:type/:id", h.Get)
	api.Post("/update/:type", h.Update)
	api.Post("/delete/:type/:id", h.Delete)

	api.Post("/bulk/add", h.BulkAdd)
	api.Post("/bulk/remove/:type", h.BulkRemove)
	api.Post("/bulk/edit/:type", h.BulkEdit)
	api.Post("/bulk/delete/:type", h.BulkDelete)
	api.Post("/remove/:relation_type/:relation_id/:type/:id/:property", h.RemoveInstance)

	migrations := api.Group("/migrations", adminMW)
	migrations.Get("/", h.ListMigrations)
	migrations.Post("/export", h.ExportMigration)
	migrations.Post("/import", h.ImportMigration)

	units := api.Group("/units", adminMW)
	units.Post("/export/:type/:name", h.ExportUnit)
	units.Post("/import", h.ImportUnit)
}
