// Package worker provides goroutine pool management.
//
// Naked goroutines are avoided in service code: channel deliveries and
// manually triggered jobs go through these pools with context propagation.
package worker

import (
	"context"
	"errors"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"xixu.io/notifier/internal/pkg/logger"
)

// ErrPoolClosed is returned when submitting to a closed pool.
var ErrPoolClosed = errors.New("worker pool is closed")

// Task is a context-aware task function.
type Task func(ctx context.Context)

// Pool wraps ants.Pool with context-aware submission.
type Pool struct {
	pool *ants.Pool
	name string
}

// Pools is the Worker pool collection.
type Pools struct {
	// General runs detached background work such as manual job triggers.
	General *Pool
	// Delivery runs per-channel delivery attempts of a single dispatch.
	Delivery *Pool
}

// PoolConfig contains Worker Pool configuration.
type PoolConfig struct {
	GeneralPoolSize  int
	DeliveryPoolSize int
}

// DefaultPoolConfig returns default configuration.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		GeneralPoolSize:  10,
		DeliveryPoolSize: 50,
	}
}

// NewPools creates Worker pool collection.
func NewPools(cfg PoolConfig) (*Pools, error) {
	// Unified panic recovery
	panicHandler := func(p interface{}) {
		logger.Error("Worker panic recovered",
			zap.Any("panic", p),
			zap.Stack("stack"),
		)
	}

	generalAnts, err := ants.NewPool(cfg.GeneralPoolSize,
		ants.WithPanicHandler(panicHandler),
		ants.WithNonblocking(false),
		ants.WithExpiryDuration(10*time.Second),
	)
	if err != nil {
		return nil, err
	}

	deliveryAnts, err := ants.NewPool(cfg.DeliveryPoolSize,
		ants.WithPanicHandler(panicHandler),
		ants.WithNonblocking(false),
		ants.WithExpiryDuration(30*time.Second), // SMTP round-trips keep workers busy longer
	)
	if err != nil {
		generalAnts.Release()
		return nil, err
	}

	return &Pools{
		General:  &Pool{pool: generalAnts, name: "general"},
		Delivery: &Pool{pool: deliveryAnts, name: "delivery"},
	}, nil
}

// Name returns the pool name used in logs.
func (p *Pool) Name() string {
	return p.name
}

// Submit submits a context-aware task.
// The task receives the caller's context and SHOULD check ctx.Done() at blocking points.
// If context is already cancelled, returns ctx.Err() immediately without submitting.
func (p *Pool) Submit(ctx context.Context, task Task) error {
	// Fast path: check if context is already cancelled
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	return p.pool.Submit(func() {
		// Check context again inside worker (may have been cancelled while queued)
		select {
		case <-ctx.Done():
			logger.Debug("Task skipped: context cancelled",
				zap.String("pool", p.name),
				zap.Error(ctx.Err()),
			)
			return
		default:
		}
		task(ctx)
	})
}

// Shutdown waits for running tasks (max 30s) and releases both pools.
func (p *Pools) Shutdown() {
	const shutdownTimeout = 30 * time.Second
	if err := p.General.pool.ReleaseTimeout(shutdownTimeout); err != nil {
		logger.Warn("General pool shutdown timeout", zap.Error(err))
	}
	if err := p.Delivery.pool.ReleaseTimeout(shutdownTimeout); err != nil {
		logger.Warn("Delivery pool shutdown timeout", zap.Error(err))
	}
}

// Metrics returns pool metrics for observability.
func (p *Pools) Metrics() map[string]interface{} {
	return map[string]interface{}{
		"general": map[string]int{
			"running": p.General.pool.Running(),
			"free":    p.General.pool.Free(),
			"cap":     p.General.pool.Cap(),
		},
		"delivery": map[string]int{
			"running": p.Delivery.pool.Running(),
			"free":    p.Delivery.pool.Free(),
			"cap":     p.Delivery.pool.Cap(),
		},
	}
}
