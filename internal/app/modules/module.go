// Package modules contains the dependency modules of the composition root.
package modules

import (
	"context"

	"github.com/riverqueue/river"

	"xixu.io/notifier/internal/api/handlers"
)

// Module represents a dependency unit in the composition root.
type Module interface {
	// Name returns a stable module identifier for logging/debugging.
	Name() string

	// RegisterWorkers registers module workers into a shared River worker registry.
	RegisterWorkers(*river.Workers)

	// Shutdown performs module-local graceful cleanup.
	Shutdown(context.Context) error
}

// ServerDepsContributor is implemented by modules that expose handlers deps.
type ServerDepsContributor interface {
	ContributeServerDeps(*handlers.ServerDeps)
}

// PeriodicJobProvider is implemented by modules that schedule River jobs.
type PeriodicJobProvider interface {
	PeriodicJobs() []*river.PeriodicJob
}

// Starter is implemented by modules with background work started after
// bootstrap.
type Starter interface {
	Start(context.Context) error
}
