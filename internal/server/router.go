package server

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/yungbote/manuscript-backend/internal/handlers"
	"github.com/yungbote/manuscript-backend/internal/middleware"
)

type RouterConfig struct {
	AuthHandler        *handlers.AuthHandler
	AuthMiddleware     *middleware.AuthMiddleware
	UserHandler        *handlers.UserHandler
	ProjectHandler     *handlers.ProjectHandler
	PageHandler        *handlers.PageHandler
	RecognitionHandler *handlers.RecognitionHandler
	FeedbackHandler    *handlers.FeedbackHandler
	TrainingHandler    *handlers.TrainingHandler
	ModelHandler       *handlers.ModelHandler
	AllowOrigins       []string
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.Default()

	allowOrigins := cfg.AllowOrigins
	if len(allowOrigins) == 0 {
		allowOrigins = []string{
			"http://localhost:80",
			"http://localhost:3000",
			"http://localhost:5174",
		}
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     allowOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
	}))

	// ===============
	// || Public    ||
	// ===============
	router.GET("/healthcheck", handlers.HealthCheck)
	router.POST("/register", cfg.AuthHandler.Register)
	router.POST("/login", cfg.AuthHandler.Login)
	router.POST("/refresh", cfg.AuthHandler.Refresh)

	// ===============
	// || Protected ||
	// ===============
	protected := router.Group("/")
	protected.Use(cfg.AuthMiddleware.RequireAuth())
	// Auth
	protected.POST("/logout", cfg.AuthHandler.Logout)
	// User
	protected.GET("/user", cfg.UserHandler.GetMe)
	protected.PATCH("/user", cfg.UserHandler.UpdateMe)
	// Projects
	protected.POST("/projects", cfg.ProjectHandler.Create)
	protected.GET("/projects", cfg.ProjectHandler.List)
	protected.GET("/projects/:projectID", cfg.ProjectHandler.Get)
	protected.PATCH("/projects/:projectID", cfg.ProjectHandler.Update)
	protected.DELETE("/projects/:projectID", cfg.ProjectHandler.Delete)
	// Project permissions
	protected.GET("/projects/:projectID/permissions", cfg.ProjectHandler.ListPermissions)
	protected.POST("/projects/:projectID/permissions", cfg.ProjectHandler.GrantPermission)
	protected.DELETE("/projects/:projectID/permissions/:userID", cfg.ProjectHandler.RevokePermission)
	// Pages
	protected.POST("/projects/:projectID/pages", cfg.PageHandler.Upload)
	protected.GET("/projects/:projectID/pages", cfg.PageHandler.List)
	protected.DELETE("/projects/:projectID/pages/:pageID", cfg.PageHandler.Delete)
	// Recognition
	protected.POST("/projects/:projectID/recognitions", cfg.RecognitionHandler.Recognize)
	protected.GET("/projects/:projectID/recognitions", cfg.RecognitionHandler.List)
	// Feedback
	protected.POST("/projects/:projectID/feedback", cfg.FeedbackHandler.Record)
	// Training
	protected.POST("/training/jobs", cfg.TrainingHandler.Request)
	protected.GET("/training/jobs", cfg.TrainingHandler.List)
	protected.GET("/training/jobs/:jobID", cfg.TrainingHandler.Get)
	protected.POST("/training/jobs/:jobID/cancel", cfg.TrainingHandler.Cancel)
	// Models
	protected.GET("/models/active", cfg.ModelHandler.GetActive)
	protected.GET("/models/history", cfg.ModelHandler.History)

	return router
}
