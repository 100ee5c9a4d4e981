// Package server assembles the fiber application: middleware, error
// rendering and the route table.
package server

import (
	"errors"
	"time"

	"jewelry-backend/internal/apperr"
	"jewelry-backend/internal/audit"
	"jewelry-backend/internal/auth"
	"jewelry-backend/internal/catalog"
	"jewelry-backend/internal/composition"
	"jewelry-backend/internal/logger"
	"jewelry-backend/internal/models"
	"jewelry-backend/internal/observability"
	"jewelry-backend/internal/ratelimit"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/ulule/limiter/v3"
	"gorm.io/gorm"
)

type Deps struct {
	DB          *gorm.DB
	Catalog     *catalog.Service
	Audit       *audit.Log
	Products    *composition.Store
	Limiter     *limiter.Limiter // nil disables admin throttling
	Log         *logger.Logger
	JWTSecret   string
	CORSOrigins string
}

func New(d Deps) *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler: ErrorHandler(d.Log),
	})

	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: d.CORSOrigins,
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
	}))
	app.Use(requestLogger(d.Log))
	app.Use(observability.Middleware())

	app.Get("/healthz", healthHandler(d.DB))

	api := app.Group("/api")
	protected := api.Group("")
	protected.Use(auth.JWTMiddleware(d.JWTSecret))

	adminRoutes := protected.Group("/admin")
	adminRoutes.Use(auth.RequireRole(models.RoleAdmin))
	if d.Limiter != nil {
		adminRoutes.Use(ratelimit.Middleware(d.Limiter, d.Log))
	}

	// Materials
	protected.Get("/materials", catalog.ListMaterialsHandler(d.Catalog))
	protected.Get("/materials/:id", catalog.GetMaterialHandler(d.Catalog))
	adminRoutes.Post("/materials", catalog.CreateMaterialHandler(d.Catalog))
	adminRoutes.Put("/materials/:id", catalog.ReplaceMaterialHandler(d.Catalog))
	adminRoutes.Put("/materials/:id/variants/:index/price", catalog.UpdateVariantPriceHandler(d.Catalog))
	adminRoutes.Post("/materials/:id/prices/import", catalog.ImportPriceSheetHandler(d.Catalog))
	adminRoutes.Delete("/materials/:id", catalog.DeleteMaterialHandler(d.Catalog))

	// Price history
	protected.Get("/price-history", audit.ListPriceHistoryHandler(d.Audit))
	adminRoutes.Post("/price-history/:id/revert", catalog.RevertPriceChangeHandler(d.Catalog))

	// Products and compositions
	protected.Get("/products/:id", composition.GetProductHandler(d.Products))
	protected.Get("/products/:id/composition", composition.GetCompositionHandler(d.Products))
	protected.Get("/products/:id/price", composition.GetPriceHandler(d.Products))
	adminRoutes.Post("/products", composition.CreateProductHandler(d.Products))
	adminRoutes.Delete("/products/:id", composition.DeleteProductHandler(d.Products))
	adminRoutes.Put("/products/:id/composition", composition.SaveCompositionHandler(d.Products))

	return app
}

// ErrorHandler renders fiber and domain errors as {error, code}. Anything
// unrecognised is logged and answered with a generic 500.
func ErrorHandler(log *logger.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var fe *fiber.Error
		if errors.As(err, &fe) {
			return c.Status(fe.Code).JSON(fiber.Map{
				"error": fe.Message,
			})
		}

		status := apperr.Status(err)
		if status == fiber.StatusInternalServerError {
			log.Error("unexpected error",
				"error", err.Error(),
				"method", c.Method(),
				"path", c.Path(),
				"request_id", c.GetRespHeader(fiber.HeaderXRequestID),
			)
			return c.Status(status).JSON(fiber.Map{
				"error": "internal server error",
				"code":  apperr.Code(err),
			})
		}

		body := fiber.Map{
			"error": err.Error(),
			"code":  apperr.Code(err),
		}
		var referenced *apperr.ReferencedError
		if errors.As(err, &referenced) {
			body["reference_count"] = referenced.Count
		}
		return c.Status(status).JSON(body)
	}
}

func requestLogger(log *logger.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		if err != nil {
			// Let the error handler pick the status before it is logged.
			if herr := c.App().ErrorHandler(c, err); herr != nil {
				_ = c.SendStatus(fiber.StatusInternalServerError)
			}
		}

		log.Info("request",
			"method", c.Method(),
			"path", c.Path(),
			"status", c.Response().StatusCode(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", c.GetRespHeader(fiber.HeaderXRequestID),
		)
		return nil
	}
}

func healthHandler(db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		sqlDB, err := db.DB()
		if err == nil {
			err = sqlDB.PingContext(c.UserContext())
		}
		if err != nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "unavailable"})
		}
		return c.JSON(fiber.Map{"status": "ok"})
	}
}
