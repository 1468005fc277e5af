package modules

import (
	"xixu.io/notifier/internal/api/handlers"
)

// NewServerDeps builds base server deps then lets each module contribute explicit wiring.
func NewServerDeps(infra *Infrastructure, mods []Module) handlers.ServerDeps {
	cfg := infra.Config
	deps := handlers.ServerDeps{
		HealthChecks: infra.HealthChecks(),
		FrontendURL:  cfg.Scheduler.FrontendURL,
		Location:     infra.Location,
		DateLayout:   cfg.Scheduler.DateLayout,
	}
	if infra.Pools != nil {
		deps.PoolStats = infra.Pools.Metrics
	}
	for _, mod := range mods {
		if mod == nil {
			continue
		}
		contributor, ok := mod.(ServerDepsContributor)
		if !ok {
			continue
		}
		contributor.ContributeServerDeps(&deps)
	}
	return deps
}
