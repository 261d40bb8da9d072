package affinity

import (
	"context"
	"sync"

	"github.com/Swind/go-affinity-scheduler/core"
)

// =============================================================================
// Global Scheduler Helper (Singleton)
// =============================================================================

var (
	globalScheduler *Scheduler
	globalMu        sync.Mutex
)

// InitGlobalScheduler creates and starts the global scheduler.
// Calling it again while one is installed is a no-op.
func InitGlobalScheduler(opts Options) error {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalScheduler != nil {
		return nil // Already initialized
	}

	s := core.New(opts)
	if err := s.Start(context.Background()); err != nil {
		return err
	}
	globalScheduler = s
	return nil
}

// GetGlobalScheduler returns the global scheduler instance.
// It panics if InitGlobalScheduler has not been called.
func GetGlobalScheduler() *Scheduler {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalScheduler == nil {
		panic("global scheduler not initialized. Call InitGlobalScheduler() first.")
	}
	return globalScheduler
}

// ShutdownGlobalScheduler shuts the global scheduler down and uninstalls it.
func ShutdownGlobalScheduler() {
	globalMu.Lock()
	s := globalScheduler
	globalScheduler = nil
	globalMu.Unlock()

	if s != nil {
		s.Shutdown()
	}
}

// PostTask submits fn to the global scheduler.
func PostTask(fn func(ctx context.Context), opts ...TaskOption) (TaskID, error) {
	return GetGlobalScheduler().Submit(core.NewFuncTask(fn, opts...))
}

// PostRepeatingTask submits fn as a repeating task. It runs until aborted
// through the returned id or until the scheduler shuts down.
func PostRepeatingTask(fn func(ctx context.Context), opts ...TaskOption) (TaskID, error) {
	return PostTask(fn, append(opts, core.WithRepeating())...)
}

// OpenWindow starts context workers for w on the global scheduler.
func OpenWindow(w Window) (int, error) {
	return GetGlobalScheduler().CreateContextWorkers(w)
}

// CloseWindow tears down the context workers of w on the global scheduler.
func CloseWindow(w Window) error {
	return GetGlobalScheduler().DestroyContextWorkers(w)
}
