// Package app is the composition root. Bootstrap stays orchestration-only.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/riverqueue/river"

	"xixu.io/notifier/internal/api/handlers"
	"xixu.io/notifier/internal/api/middleware"
	"xixu.io/notifier/internal/app/modules"
	"xixu.io/notifier/internal/config"
	"xixu.io/notifier/internal/infrastructure"
	"xixu.io/notifier/internal/pkg/worker"
)

// Application holds composed application dependencies.
type Application struct {
	Config  *config.Config
	Router  *gin.Engine
	DB      *infrastructure.DatabaseClients
	Pools   *worker.Pools
	Modules []modules.Module

	infra *modules.Infrastructure
}

// Bootstrap initializes all dependencies using module-oriented manual DI.
func Bootstrap(ctx context.Context, cfg *config.Config) (*Application, error) {
	infra, err := modules.NewInfrastructure(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("init infrastructure: %w", err)
	}

	notificationModule, err := modules.NewNotificationModule(ctx, infra)
	if err != nil {
		infra.Close(ctx)
		return nil, fmt.Errorf("init notification module: %w", err)
	}
	allModules := []modules.Module{notificationModule}

	if cfg.Scheduler.Enabled {
		schedulerModule, err := modules.NewSchedulerModule(infra, notificationModule.Dispatcher())
		if err != nil {
			infra.Close(ctx)
			return nil, fmt.Errorf("init scheduler module: %w", err)
		}
		allModules = append(allModules, schedulerModule)
	}

	if infra.DB != nil {
		allModules = append(allModules, modules.NewRetentionModule(infra))

		workers := river.NewWorkers()
		var periodic []*river.PeriodicJob
		for _, mod := range allModules {
			mod.RegisterWorkers(workers)
			if p, ok := mod.(modules.PeriodicJobProvider); ok {
				periodic = append(periodic, p.PeriodicJobs()...)
			}
		}
		if err := infra.DB.InitRiverClient(workers, periodic, cfg.River); err != nil {
			infra.Close(ctx)
			return nil, fmt.Errorf("init river workers: %w", err)
		}
	}

	server := handlers.NewServer(modules.NewServerDeps(infra, allModules))
	jwtCfg := middleware.JWTConfig{
		SigningKey: []byte(cfg.Security.JWTSecret),
		Issuer:     cfg.Security.JWTIssuer,
		ExpiresIn:  time.Hour,
	}

	return &Application{
		Config:  cfg,
		Router:  newRouter(cfg, server, jwtCfg),
		DB:      infra.DB,
		Pools:   infra.Pools,
		Modules: allModules,
		infra:   infra,
	}, nil
}
