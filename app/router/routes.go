// Package router provides HTTP routing, middleware configuration, and server setup for the web application
package router

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"log"
	"os"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/gofiber/fiber/v3/middleware/compress"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/helmet"
	"github.com/gofiber/fiber/v3/middleware/limiter"
	"github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/gofiber/fiber/v3/middleware/requestid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kokuban/kujibiki/app/dto"
	"github.com/kokuban/kujibiki/app/handlers"
	"github.com/kokuban/kujibiki/app/middleware"
	"github.com/kokuban/kujibiki/utils"
)

// Router interface for HTTP routing
type Router interface {
	SetupRoutes()
	Start(address string) error
	GetApp() *fiber.App
}

// FiberRouter implements Router using Fiber v3
type FiberRouter struct {
	app             *fiber.App
	shufflerHandler handlers.ShufflerHandlerInterface
	pickerHandler   handlers.PickerHandlerInterface
	authMiddleware  *middleware.AuthMiddleware
}

// NewFiberRouter creates a new Fiber router
func NewFiberRouter(
	shufflerHandler handlers.ShufflerHandlerInterface,
	pickerHandler handlers.PickerHandlerInterface,
	authMiddleware *middleware.AuthMiddleware,
) Router {
	app := fiber.New(fiber.Config{
		AppName:      "Kujibiki API",
		ServerHeader: "Kujibiki",
		ErrorHandler: errorHandler,
		BodyLimit:    1 * 1024 * 1024, // 1MB
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
		JSONEncoder:  json.Marshal,
		JSONDecoder:  json.Unmarshal,
	})

	return &FiberRouter{
		app:             app,
		shufflerHandler: shufflerHandler,
		pickerHandler:   pickerHandler,
		authMiddleware:  authMiddleware,
	}
}

// SetupRoutes configures all application routes
func (r *FiberRouter) SetupRoutes() {
	log.Println("Setting up routes...")

	// Global middleware
	r.setupMiddleware()

	// Prometheus metrics endpoint, outside the rate-limited API group
	r.app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	// API routes
	api := r.app.Group("/api/v1")

	// Health check route (no rate limiting)
	api.Get("/health", r.healthCheck)

	// API documentation route (development only)
	if os.Getenv("APP_ENV") == "development" || os.Getenv("APP_ENV") == "local" {
		api.Get("/docs", r.getAPIDocumentation)
		log.Println("API documentation enabled for development")
	}

	// Apply general rate limiting to all API routes
	api.Use(limiter.New(limiter.Config{
		Max:        600,             // Maximum 600 requests
		Expiration: 1 * time.Minute, // Per minute
		KeyGenerator: func(c fiber.Ctx) string {
			return c.IP() // Rate limit by IP
		},
		LimitReached: func(c fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(dto.APIResponse{
				Success: false,
				Message: "Too many requests. Please try again later.",
				Error: dto.ErrorDetail{
					Code: "RATE_LIMIT_EXCEEDED",
				},
			})
		},
		Next: func(c fiber.Ctx) bool {
			// Skip rate limiting for health checks
			return c.Path() == "/api/v1/health"
		},
	}))

	// Operator identity is attached when a valid token is presented
	api.Use(r.authMiddleware.OptionalAuth())

	// Shuffler endpoints
	classes := api.Group("/classes/:classId")
	classes.Post("/shuffles", r.shufflerHandler.RunShuffle)
	classes.Get("/shuffles", r.shufflerHandler.ListRuns)
	classes.Get("/shuffle-stats", r.shufflerHandler.ShuffleStats)
	classes.Get("/shuffle-stats/export", r.shufflerHandler.ExportShuffleStats)

	shuffles := api.Group("/shuffles")
	shuffles.Get("/:uuid", r.shufflerHandler.GetRun)
	shuffles.Post("/:uuid/completion", r.shufflerHandler.ToggleCompletion)

	// Picker endpoints
	classes.Post("/picker-instances", r.pickerHandler.CreateInstance)
	classes.Get("/picker-instances", r.pickerHandler.ListInstances)

	instances := api.Group("/picker-instances")
	instances.Put("/:uuid", r.pickerHandler.UpdateInstance)
	instances.Delete("/:uuid", r.pickerHandler.DeleteInstance)
	instances.Post("/:uuid/picks", r.pickerHandler.Pick)
	instances.Post("/:uuid/rounds", r.pickerHandler.StartNewRound)
	instances.Get("/:uuid/rounds", r.pickerHandler.ListRounds)
	instances.Get("/:uuid/stats", r.pickerHandler.PickStats)
	instances.Get("/:uuid/stats/export", r.pickerHandler.ExportPickStats)

	// Not found handler
	r.app.Use(r.notFoundHandler)

	log.Println("Routes configured successfully")
}

// setupMiddleware configures global middleware
func (r *FiberRouter) setupMiddleware() {
	// Request ID middleware - must be first
	r.app.Use(requestid.New(requestid.Config{
		Header: "X-Request-ID",
		Generator: func() string {
			return generateRequestID()
		},
	}))

	// Security headers middleware
	r.app.Use(helmet.New(helmet.Config{
		XSSProtection:             "1; mode=block",
		ContentTypeNosniff:        "nosniff",
		XFrameOptions:             "DENY",
		HSTSMaxAge:                31536000, // 1 year
		HSTSExcludeSubdomains:     false,
		ContentSecurityPolicy:     "default-src 'self'; frame-ancestors 'none';",
		ReferrerPolicy:            "strict-origin-when-cross-origin",
		CrossOriginEmbedderPolicy: "require-corp",
		CrossOriginOpenerPolicy:   "same-origin",
		CrossOriginResourcePolicy: "cross-origin",
		OriginAgentCluster:        "?1",
		XDNSPrefetchControl:       "off",
		XDownloadOptions:          "noopen",
		XPermittedCrossDomain:     "none",
	}))

	// CORS middleware with production settings
	r.app.Use(cors.New(cors.Config{
		AllowOrigins: []string{
			"https://kujibiki.app",
			"https://api.kujibiki.app",
			"https://classroom.kujibiki.app",
		},
		AllowMethods: []string{
			"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS",
		},
		AllowHeaders: []string{
			"Origin",
			"Content-Type",
			"Accept",
			"Authorization",
			"X-Requested-With",
			"X-Request-ID",
			"Cache-Control",
		},
		ExposeHeaders: []string{
			"X-Request-ID",
			"Content-Disposition",
		},
		AllowCredentials: true,
		MaxAge:           utils.CORSMaxAge,
	}))

	// Compression middleware for performance
	r.app.Use(compress.New(compress.Config{
		Level: compress.LevelBestSpeed,
		Next: func(c fiber.Ctx) bool {
			// Workbook downloads are already compressed
			return contains(c.Path(), "/export")
		},
	}))

	// Prometheus metrics middleware
	r.app.Use(middleware.Metrics())

	// Structured request logging
	r.app.Use(logger.New(logger.Config{
		Format:     `{"time":"${time}","pid":"${pid}","request_id":"${locals:requestid}","level":"info","method":"${method}","path":"${path}","protocol":"${protocol}","ip":"${ip}","user_agent":"${ua}","status":${status},"latency":"${latency}","bytes_in":${bytesReceived},"bytes_out":${bytesSent},"referer":"${referer}"}` + "\n",
		TimeFormat: time.RFC3339,
		TimeZone:   "UTC",
		Next: func(c fiber.Ctx) bool {
			// Skip logging for health checks in production
			return c.Path() == "/api/v1/health"
		},
	}))

	// Recovery middleware with custom error handling
	r.app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
		StackTraceHandler: func(c fiber.Ctx, e interface{}) {
			// Log panic with request context
			log.Printf(`{"time":"%s","level":"error","request_id":"%s","event":"panic","error":"%v","path":"%s","method":"%s","ip":"%s"}`,
				utils.UTCNow().Format(time.RFC3339),
				c.Locals("requestid"),
				e,
				c.Path(),
				c.Method(),
				c.IP(),
			)
		},
	}))
}

// Start starts the HTTP server
func (r *FiberRouter) Start(address string) error {
	log.Printf("Starting server on %s", address)
	return r.app.Listen(address)
}

// GetApp returns the Fiber app instance
func (r *FiberRouter) GetApp() *fiber.App {
	return r.app
}

// Health check endpoint
func (r *FiberRouter) healthCheck(c fiber.Ctx) error {
	return c.JSON(dto.APIResponse{
		Success: true,
		Message: "Service is healthy",
		Data: fiber.Map{
			"status":    "ok",
			"timestamp": utils.UTCNow().Unix(),
			"version":   "1.0.0",
			"service":   "kujibiki-api",
		},
	})
}

// API documentation endpoint
func (r *FiberRouter) getAPIDocumentation(c fiber.Ctx) error {
	docs := GetRouteDocumentation()
	return c.JSON(dto.APIResponse{
		Success: true,
		Message: "API documentation retrieved successfully",
		Data: fiber.Map{
			"title":       "Kujibiki API Documentation",
			"version":     "1.0.0",
			"description": "Classroom fair randomization API",
			"endpoints":   docs,
		},
	})
}

// Not found handler
func (r *FiberRouter) notFoundHandler(c fiber.Ctx) error {
	requestID := c.Locals("requestid")

	return c.Status(fiber.StatusNotFound).JSON(dto.APIResponse{
		Success: false,
		Message: "The requested resource was not found",
		Error: dto.ErrorDetail{
			Code: "NOT_FOUND",
			Details: fiber.Map{
				"path":       c.Path(),
				"method":     c.Method(),
				"request_id": requestID,
			},
		},
	})
}

// Global error handler
func errorHandler(c fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError

	// Retrieve the custom status code if it's a fiber.*Error
	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
	}

	log.Printf("Error %d: %v", code, err)

	requestID := c.Locals("requestid")

	return c.Status(code).JSON(dto.APIResponse{
		Success: false,
		Message: "An internal server error occurred",
		Error: dto.ErrorDetail{
			Code: "INTERNAL_ERROR",
			Details: fiber.Map{
				"timestamp":  utils.UTCNow().Unix(),
				"request_id": requestID,
			},
		},
	})
}

// Helper functions

// generateRequestID creates a unique request ID
func generateRequestID() string {
	bytes := make([]byte, 8)
	rand.Read(bytes)
	return hex.EncodeToString(bytes)
}

// contains checks if a string contains a substring
func contains(str, substr string) bool {
	return strings.Contains(str, substr)
}

// GetRouteDocumentation returns API documentation
func GetRouteDocumentation() []map[string]any {
	return []map[string]any{
		{
			"method":      "POST",
			"path":        "/api/v1/classes/:classId/shuffles",
			"description": "Run a fair shuffle over a class, group, or team scope",
			"parameters": map[string]any{
				"scope.kind":        "string (required) - class|group|team",
				"scope.target_uuid": "string (required) - UUID of the scope target",
				"name":              "string (optional) - Label for the run",
			},
		},
		{
			"method":      "GET",
			"path":        "/api/v1/classes/:classId/shuffles",
			"description": "List shuffle runs of a scope, newest first",
			"parameters": map[string]any{
				"kind":      "string (required) - Query parameter: class|group|team",
				"target":    "string (required) - Query parameter: scope target UUID",
				"page":      "number (optional) - Page number, default 1",
				"page_size": "number (optional) - Page size, default 20",
			},
		},
		{
			"method":      "GET",
			"path":        "/api/v1/shuffles/:uuid",
			"description": "Get one shuffle run with its full order and completion state",
			"parameters":  map[string]any{},
		},
		{
			"method":      "POST",
			"path":        "/api/v1/shuffles/:uuid/completion",
			"description": "Toggle whether a student of the run has taken their turn",
			"parameters": map[string]any{
				"student_uuid": "string (required) - UUID of the student to toggle",
			},
		},
		{
			"method":      "GET",
			"path":        "/api/v1/classes/:classId/shuffle-stats",
			"description": "First/last fairness statistics of a scope",
			"parameters": map[string]any{
				"kind":   "string (required) - Query parameter: class|group|team",
				"target": "string (required) - Query parameter: scope target UUID",
			},
		},
		{
			"method":      "POST",
			"path":        "/api/v1/classes/:classId/picker-instances",
			"description": "Create a named picker bound to a scope",
			"parameters": map[string]any{
				"name":              "string (required) - Instance name",
				"scope.kind":        "string (required) - class|group|team",
				"scope.target_uuid": "string (required) - UUID of the scope target",
			},
		},
		{
			"method":      "POST",
			"path":        "/api/v1/picker-instances/:uuid/picks",
			"description": "Draw the next student without replacement from the current round",
			"parameters":  map[string]any{},
		},
		{
			"method":      "POST",
			"path":        "/api/v1/picker-instances/:uuid/rounds",
			"description": "Close the current round and open a fresh one with the full pool",
			"parameters":  map[string]any{},
		},
		{
			"method":      "GET",
			"path":        "/api/v1/picker-instances/:uuid/stats",
			"description": "Per-position pick statistics of an instance",
			"parameters":  map[string]any{},
		},
		{
			"method":      "GET",
			"path":        "/api/v1/health",
			"description": "Health check endpoint",
			"parameters":  map[string]any{},
		},
	}
}
