package main

import (
	"github.com/gin-gonic/gin"
	"github.com/ideahub/backend/internal/middleware"
	"github.com/ideahub/backend/pkg/logger"
)

// registerRoutes sets up all HTTP routes on the given Gin engine.
func registerRoutes(r *gin.Engine, svc *appServices) {
	// Middleware
	r.Use(logger.GinLogger(), logger.GinRecovery())
	r.RedirectTrailingSlash = false
	r.RedirectFixedPath = false
	r.Use(middleware.CORS())

	r.GET("/health", svc.healthHandler.CheckHealth)

	api := r.Group("/api")
	{
		// Public reads; a valid token adds the viewer's own vote and comment state.
		public := api.Group("")
		public.Use(middleware.OptionalAuth())
		{
			public.POST("/users", svc.userHandler.Register)
			public.GET("/users/:id", svc.userHandler.Get)

			public.GET("/projects", svc.projectHandler.List)
			public.GET("/projects/:id", svc.projectHandler.GetByID)

			public.GET("/categories", svc.categoryHandler.List)

			public.GET("/ideas", svc.ideaHandler.Search)
			public.GET("/ideas/:id", svc.ideaHandler.Get)
			public.GET("/ideas/:id/votes", svc.voteHandler.Counts)

			// Live vote tallies
			public.GET("/ideas/:id/votes/ws", svc.liveHandler.WebSocket)
			public.GET("/ideas/:id/votes/stream", svc.liveHandler.Stream)
		}

		// Protected routes
		protected := api.Group("")
		protected.Use(middleware.AuthRequired())
		{
			protected.POST("/projects", svc.projectHandler.Create)
			protected.PUT("/projects/:id", svc.projectHandler.Update)
			protected.DELETE("/projects/:id", svc.projectHandler.Delete)

			protected.POST("/categories", svc.categoryHandler.Create)

			protected.POST("/ideas", svc.ideaHandler.Create)
			protected.POST("/ideas/:id/comments", svc.ideaHandler.CreateComment)

			// Vote mutations are limited per user
			votes := protected.Group("", svc.voteLimiter.Middleware())
			{
				votes.POST("/ideas/:id/votes", svc.voteHandler.Cast)
				votes.DELETE("/ideas/:id/votes", svc.voteHandler.Retract)
			}
		}
	}
}
