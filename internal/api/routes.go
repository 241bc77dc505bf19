package api

import (
	"context"
	"net/http"
	"time"

	"github.com/fiufit-grupo-4/goals-microservice/internal/domain"
	"github.com/fiufit-grupo-4/goals-microservice/internal/metrics"
	"github.com/fiufit-grupo-4/goals-microservice/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

const healthCheckTimeout = 2 * time.Second

// RouterConfig holds what SetupRoutes needs beyond the service itself.
type RouterConfig struct {
	JWTSecret string

	// MetricsHandler serves /metrics. The route is not registered when nil.
	MetricsHandler      http.Handler
	MetricsUsername     string
	MetricsPasswordHash string

	// RateLimiter is applied to the goal routes when set.
	RateLimiter *RateLimiter
}

func SetupRoutes(
	router *gin.Engine,
	cfg RouterConfig,
	goalService service.GoalService,
	m *metrics.Metrics,
	log logrus.FieldLogger,
) {
	goalHandler := NewGoalHandler(goalService, log)

	router.Use(RequestIDMiddleware(), RequestLogger(log), MetricsMiddleware(m))

	router.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})

	router.GET("/health", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
		defer cancel()
		if err := goalService.Ping(ctx); err != nil {
			log.WithError(err).Warn("Health check failed")
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "database": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	if cfg.MetricsHandler != nil {
		metricsGroup := router.Group("/metrics")
		if cfg.MetricsUsername != "" && cfg.MetricsPasswordHash != "" {
			metricsGroup.Use(BasicAuthMiddleware(cfg.MetricsUsername, cfg.MetricsPasswordHash))
		}
		metricsGroup.GET("", gin.WrapH(cfg.MetricsHandler))
	}

	// --- Goal Routes ---
	// All goal routes require a valid token from an athlete or an admin.
	goals := router.Group("/goals")
	goals.Use(AuthMiddleware(cfg.JWTSecret, m), RoleMiddleware(domain.RoleAthlete, domain.RoleAdmin))
	if cfg.RateLimiter != nil {
		goals.Use(cfg.RateLimiter.Middleware(m))
	}
	{
		goals.POST("", goalHandler.CreateGoal)
		goals.GET("", goalHandler.ListGoals)

		// PATCH /goals/progress - batch progress over every started goal of the caller
		goals.PATCH("/progress", goalHandler.ApplyProgressForUser)

		goals.GET("/:id", goalHandler.GetGoal)
		goals.PATCH("/:id", goalHandler.UpdateGoal)
		goals.DELETE("/:id", goalHandler.DeleteGoal)

		goals.PATCH("/:id/start", goalHandler.StartGoal)
		goals.PATCH("/:id/complete", goalHandler.CompleteGoal)
		goals.PATCH("/:id/stop", goalHandler.StopGoal)
		goals.PATCH("/:id/progress", goalHandler.ApplyProgress)

		goals.GET("/:id/receipt", goalHandler.GetReceipt)
	}
}
