package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"xixu.io/notifier/internal/pkg/logger"
)

func init() {
	// Initialize logger for tests
	_ = logger.Init("error", "json")
}

func TestNewPools(t *testing.T) {
	pools, err := NewPools(DefaultPoolConfig())
	if err != nil {
		t.Fatalf("NewPools() error = %v", err)
	}
	defer pools.Shutdown()

	if pools.General == nil {
		t.Error("General pool is nil")
	}
	if pools.Delivery == nil {
		t.Error("Delivery pool is nil")
	}
}

func TestPool_Submit(t *testing.T) {
	ctx := context.Background()
	pools, err := NewPools(PoolConfig{
		GeneralPoolSize:  10,
		DeliveryPoolSize: 5,
	})
	if err != nil {
		t.Fatalf("NewPools() error = %v", err)
	}
	defer pools.Shutdown()

	var executed atomic.Bool
	var wg sync.WaitGroup
	wg.Add(1)

	err = pools.General.Submit(ctx, func(ctx context.Context) {
		executed.Store(true)
		wg.Done()
	})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	wg.Wait()
	if !executed.Load() {
		t.Error("Task was not executed")
	}
}

func TestPool_Submit_CancelledContext(t *testing.T) {
	pools, err := NewPools(DefaultPoolConfig())
	if err != nil {
		t.Fatalf("NewPools() error = %v", err)
	}
	defer pools.Shutdown()

	cancelledCtx, cancel := context.WithCancel(context.Background())
	cancel() // Cancel immediately

	err = pools.General.Submit(cancelledCtx, func(ctx context.Context) {
		t.Error("Task should not execute with cancelled context")
	})
	if err != context.Canceled {
		t.Errorf("Submit() error = %v, want context.Canceled", err)
	}
}

func TestPools_Metrics(t *testing.T) {
	pools, err := NewPools(PoolConfig{
		GeneralPoolSize:  10,
		DeliveryPoolSize: 5,
	})
	if err != nil {
		t.Fatalf("NewPools() error = %v", err)
	}
	defer pools.Shutdown()

	metrics := pools.Metrics()
	if metrics == nil {
		t.Fatal("Metrics() returned nil")
	}

	general, ok := metrics["general"].(map[string]int)
	if !ok {
		t.Fatal("general metrics not found or wrong type")
	}
	if general["cap"] != 10 {
		t.Errorf("general cap = %d, want 10", general["cap"])
	}

	delivery, ok := metrics["delivery"].(map[string]int)
	if !ok {
		t.Fatal("delivery metrics not found or wrong type")
	}
	if delivery["cap"] != 5 {
		t.Errorf("delivery cap = %d, want 5", delivery["cap"])
	}
}

func TestPool_Submit_ContextCancelledWhileQueued(t *testing.T) {
	ctx := context.Background()
	pools, err := NewPools(PoolConfig{
		GeneralPoolSize:  1,
		DeliveryPoolSize: 1,
	})
	if err != nil {
		t.Fatalf("NewPools() error = %v", err)
	}
	defer pools.Shutdown()

	// Fill the pool with a blocking task
	blockCh := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	_ = pools.General.Submit(ctx, func(ctx context.Context) {
		wg.Done()
		<-blockCh // Block until released
	})
	wg.Wait() // Wait for blocking task to start

	// Submit a task with a context that will be cancelled
	cancelCtx, cancel := context.WithCancel(ctx)

	var taskExecuted atomic.Bool
	var submitWg sync.WaitGroup
	submitWg.Add(1)
	go func() {
		defer submitWg.Done()
		_ = pools.General.Submit(cancelCtx, func(ctx context.Context) {
			taskExecuted.Store(true)
		})
	}()

	// Give the task time to be queued, then cancel context
	time.Sleep(10 * time.Millisecond)
	cancel()

	// Release the blocking task
	close(blockCh)
	submitWg.Wait()

	// The task may or may not execute depending on timing,
	// but it should not panic
}
