package bootstrap

import (
	"strings"

	httpadapter "triage_server/adapter/in/http"
	"triage_server/config"
	"triage_server/infra/middleware"
	"triage_server/pkg/logger"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
)

// NewAPI assembles the HTTP surface: agent routes behind JWT auth,
// admin routes behind an additional role check.
func NewAPI(cfg *config.Config) (*fiber.App, func(), error) {
	logLevel := logger.LevelInfo
	if cfg.IsDevelopment() {
		logLevel = logger.LevelDebug
	}
	logger.Init(logger.Config{
		Level:   logLevel,
		Service: "triage-api",
	})

	deps, cleanup, err := NewDependencies(cfg)
	if err != nil {
		logger.WithError(err).Error("Failed to initialize dependencies")
		return nil, nil, err
	}

	app := fiber.New(fiber.Config{
		ErrorHandler:          middleware.ErrorHandler(),
		DisableStartupMessage: cfg.IsProduction(),
		ReadBufferSize:        16384,
		WriteBufferSize:       16384,
		JSONEncoder:           json.Marshal,
		JSONDecoder:           json.Unmarshal,
		BodyLimit:             4 * 1024 * 1024,
	})

	// Order matters: recovery first, then request identity, then logging.
	app.Use(middleware.Recover())
	app.Use(middleware.RequestID())
	app.Use(middleware.RequestLogger())
	app.Use(compress.New(compress.Config{
		Level: compress.LevelBestSpeed,
	}))

	allowOrigins := strings.Join(cfg.AllowedOrigins, ",")
	allowCredentials := true
	if allowOrigins == "" || allowOrigins == "*" {
		if cfg.IsProduction() {
			allowOrigins = ""
			allowCredentials = false
		} else {
			allowOrigins = "http://localhost:3000,http://localhost:5173"
		}
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     allowOrigins,
		AllowMethods:     "GET,POST,PUT,DELETE,PATCH,OPTIONS",
		AllowHeaders:     "Origin,Content-Type,Accept,Authorization,X-Request-ID",
		ExposeHeaders:    "X-Request-ID",
		AllowCredentials: allowCredentials,
	}))

	// Health endpoints stay outside auth for probes.
	httpadapter.NewHealthHandler(deps.DB, deps.Redis).Register(app)

	threadHandler := httpadapter.NewThreadHandler(deps.ThreadService)
	draftHandler := httpadapter.NewDraftHandler(deps.DraftReview)
	observationHandler := httpadapter.NewObservationHandler(deps.Tracker)
	kbHandler := httpadapter.NewKBHandler(deps.KBService)

	adminService := deps.NewAdminService(nil)
	adminHandler := httpadapter.NewAdminHandler(adminService, adminService)

	api := app.Group("/api/v1", middleware.JWTAuth(cfg.JWTSecret))
	threadHandler.Register(api)
	draftHandler.Register(api)
	observationHandler.Register(api)
	kbHandler.Register(api)

	adminGroup := api.Group("/admin", middleware.RequireRole("admin"))
	adminHandler.Register(adminGroup)
	threadHandler.RegisterAdmin(adminGroup)

	logger.Info("API routes registered")
	return app, cleanup, nil
}
