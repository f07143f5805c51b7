package http

import (
	"log/slog"
	"time"

	"github.com/geocoder89/taskhub/internal/http/handlers"
	"github.com/geocoder89/taskhub/internal/http/middlewares"
	"github.com/geocoder89/taskhub/internal/observability"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

const (
	serviceName  = "taskhub"
	maxBodyBytes = 1 << 20
)

// Deps is everything the router needs. Stores are reached only through the
// services and the health checks.
type Deps struct {
	Log      *slog.Logger
	Prom     *observability.Prom
	Gatherer prometheus.Gatherer

	Env            string
	RequestTimeout time.Duration
	CORSOrigins    []string
	HSTS           bool

	AuthRateLimit  int
	AuthRateWindow time.Duration
	LimitStore     middlewares.LimitStore

	Tokens  middlewares.TokenVerifier
	AuthSvc handlers.AuthServicer
	TaskSvc handlers.TaskServicer

	Checks []handlers.Check
}

func NewRouter(d Deps) *gin.Engine {
	if d.Env != "dev" && d.Env != "test" {
		gin.SetMode(gin.ReleaseMode)
	}
	if d.Log == nil {
		d.Log = slog.Default()
	}
	if d.Gatherer == nil {
		d.Gatherer = prometheus.DefaultGatherer
	}
	if d.LimitStore == nil {
		d.LimitStore = middlewares.NewMemoryLimitStore()
	}

	r := gin.New()

	// middleware
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware(serviceName))
	r.Use(d.Prom.GinHandleMiddleware())
	r.Use(middlewares.RequestID())
	r.Use(middlewares.RequestLogger(d.Log))
	r.Use(middlewares.SecurityHeaders(d.HSTS))
	r.Use(middlewares.CORSMiddleware(d.CORSOrigins))
	r.Use(middlewares.MaxBodyBytes(maxBodyBytes))
	r.Use(middlewares.RequireJSON())

	// ops
	health := handlers.NewHealthHandler(time.Second, d.Checks...)
	r.GET("/healthz", health.Healthz)
	r.GET("/readyz", health.Readyz)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{})))
	r.GET("/docs", handlers.SwaggerUI)
	r.GET("/docs/openapi.yaml", handlers.OpenAPISpec)

	guard := middlewares.NewAuthMiddleware(d.Tokens, d.Prom.IncAuthFailure)
	limiter := middlewares.NewRateLimiter(d.LimitStore, d.AuthRateLimit, d.AuthRateWindow, d.Log, d.Prom.IncRateLimited)
	limited := limiter.RateLimiterMiddleware(middlewares.KeyByIPAndRoute)

	authHandler := handlers.NewAuthHandler(d.AuthSvc, d.RequestTimeout)
	tasksHandler := handlers.NewTasksHandler(d.TaskSvc, d.RequestTimeout)

	v1 := r.Group("/api/v1")

	authGroup := v1.Group("/auth")
	authGroup.POST("/register", limited, authHandler.Register)
	authGroup.POST("/login", limited, authHandler.Login)
	authGroup.POST("/refresh", limited, authHandler.Refresh)
	authGroup.GET("/profile", guard.RequireAuth(), authHandler.Profile)

	tasks := v1.Group("/tasks", guard.RequireAuth())
	tasks.POST("", tasksHandler.CreateTask)
	tasks.GET("", tasksHandler.ListTasks)
	tasks.GET("/:id", tasksHandler.GetTask)
	tasks.PATCH("/:id", tasksHandler.UpdateTask)
	tasks.DELETE("/:id", tasksHandler.DeleteTask)

	return r
}
