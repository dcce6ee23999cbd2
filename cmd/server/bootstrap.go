package main

import (
	"github.com/taskhub/backend/internal/config"
	"github.com/taskhub/backend/internal/handlers"
	"github.com/taskhub/backend/internal/models"
	"github.com/taskhub/backend/internal/services"
	"github.com/taskhub/backend/internal/utils"
	"github.com/taskhub/backend/pkg/logger"
)

// appServices holds all initialized services and handlers needed by the application.
type appServices struct {
	activityQueue services.ActivityQueue
	worker        *services.Worker
	retention     *services.RetentionScheduler
	identity      *services.IdentityService

	authHandler          *handlers.AuthHandler
	projectHandler       *handlers.ProjectHandler
	projectMemberHandler *handlers.ProjectMemberHandler
	taskHandler          *handlers.TaskHandler
	activityHandler      *handlers.ActivityHandler
	healthHandler        *handlers.HealthHandler
}

// bootstrap initializes all application dependencies: database, services, schedulers.
func bootstrap(cfg *config.Config) *appServices {
	if cfg.JWT.Secret == config.DefaultJWTSecret {
		logger.Warn().Msg("JWT secret is the built-in default, set JWT_SECRET in production")
	}
	utils.SetJWTSecret(cfg.JWT.Secret)

	if err := models.InitDB(&cfg.Database); err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	if err := models.AutoMigrate(); err != nil {
		logger.Fatalf("Failed to migrate database: %v", err)
	}
	db := models.GetDB()

	// Activity events go through Redis when enabled, otherwise they are stored inline
	activityService := services.NewActivityService(db)
	activityQueue := services.InitActivityQueue(cfg, activityService.Process)

	var worker *services.Worker
	if activityQueue.IsAsync() {
		worker = services.NewWorker(&cfg.Redis)
		if worker != nil {
			worker.SetProcessor(activityService.Process)
			if err := worker.Start(); err != nil {
				logger.Error().Err(err).Msg("Failed to start activity worker")
			}
		}
	}

	retention := services.NewRetentionScheduler(db, activityService, cfg.Activity)
	if err := retention.Start(); err != nil {
		logger.Fatalf("Failed to start activity retention: %v", err)
	}

	recorder := services.NewActivityRecorder(activityQueue)
	identity := services.NewIdentityService(db, &cfg.JWT, &cfg.LDAP)
	projectService := services.NewProjectService(db, identity, recorder)
	taskService := services.NewTaskService(db, identity, recorder)

	if err := handlers.RegisterValidators(); err != nil {
		logger.Fatalf("Failed to register validators: %v", err)
	}

	return &appServices{
		activityQueue:        activityQueue,
		worker:               worker,
		retention:            retention,
		identity:             identity,
		authHandler:          handlers.NewAuthHandler(identity),
		projectHandler:       handlers.NewProjectHandler(projectService),
		projectMemberHandler: handlers.NewProjectMemberHandler(projectService),
		taskHandler:          handlers.NewTaskHandler(taskService),
		activityHandler:      handlers.NewActivityHandler(activityService),
		healthHandler:        handlers.NewHealthHandler(db, activityQueue),
	}
}

// shutdown gracefully stops all services.
func (s *appServices) shutdown() {
	s.retention.Stop()
	logger.Info().Msg("All schedulers stopped")

	if s.worker != nil {
		s.worker.Stop()
	}
	if s.activityQueue != nil {
		if err := s.activityQueue.Close(); err != nil {
			logger.Warn().Err(err).Msg("Failed to close activity queue")
		}
	}
}
