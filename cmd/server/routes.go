package main

import (
	"github.com/gin-gonic/gin"
	"github.com/taskhub/backend/internal/config"
	"github.com/taskhub/backend/internal/middleware"
	"github.com/taskhub/backend/pkg/logger"
)

// registerRoutes sets up all HTTP routes on the given Gin engine.
func registerRoutes(r *gin.Engine, svc *appServices, cfg *config.Config) {
	r.Use(logger.GinLogger(), logger.GinRecovery())
	r.RedirectTrailingSlash = false
	r.RedirectFixedPath = false
	r.Use(middleware.CORS())

	authLimiter := middleware.NewRateLimiter(cfg.RateLimit.AuthRPS, cfg.RateLimit.AuthBurst)

	r.GET("/health", svc.healthHandler.CheckHealth)

	api := r.Group("/api")
	api.Use(middleware.AuditLog())
	{
		// Auth routes (public, rate limited)
		public := api.Group("", authLimiter.Middleware())
		{
			public.POST("/register", svc.authHandler.Register)
			public.POST("/login", svc.authHandler.Login)
		}

		protected := api.Group("")
		protected.Use(middleware.AuthRequired(svc.identity))
		{
			// Account
			protected.GET("/profile", svc.authHandler.Profile)
			protected.GET("/logout", svc.authHandler.Logout)
			protected.GET("/getUserByEmail", svc.authHandler.GetUserByEmail)

			// Projects
			protected.POST("/createProject", svc.projectHandler.Create)
			protected.PUT("/updateProject/:id", svc.projectHandler.Update)
			protected.DELETE("/deleteProject/:id", svc.projectHandler.Delete)
			protected.GET("/getProject/:id", svc.projectHandler.Get)
			protected.GET("/getAllMyProjects", svc.projectHandler.ListMine)

			// Project members
			protected.GET("/project/:id/members", svc.projectMemberHandler.List)
			protected.POST("/addMembersToProject/:id", svc.projectMemberHandler.Add)
			protected.DELETE("/project/:id/member/:user_id", svc.projectMemberHandler.Remove)
			protected.GET("/project/:id/activity", svc.activityHandler.List)

			// Tasks
			protected.POST("/createTask/:id", svc.taskHandler.Create)
			protected.PUT("/updateTask/:id", svc.taskHandler.Update)
			protected.DELETE("/deleteTask/:id", svc.taskHandler.Delete)
			protected.GET("/getTasksByProject/:id", svc.taskHandler.ListByProject)
			protected.GET("/projects/:project_id/tasks/:task_id", svc.taskHandler.Get)
			protected.POST("/tasks/:id/assignUser", svc.taskHandler.AssignUser)
			protected.DELETE("/tasks/:id/unassign", svc.taskHandler.UnassignUser)
			protected.GET("/tasks/:id/assignedUsers", svc.taskHandler.AssignedUsers)
		}
	}
}
