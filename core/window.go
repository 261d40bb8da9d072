package core

import (
	"context"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
)

// Window is a rendering surface whose context-bound tasks must run on threads
// owning one of its rendering contexts.
//
// Windows are used as map keys, so implementations must be comparable
// (typically a pointer type).
type Window interface {
	Name() string

	// CreateContext is called once per context worker, on the OS thread the
	// worker is locked to. An error discards that worker.
	CreateContext() (gpucontext.DeviceProvider, error)

	// ReleaseContext is called on the same OS thread when the worker exits.
	ReleaseContext(gpucontext.DeviceProvider)
}

// HeadlessWindow is a Window without a GPU surface. Its contexts expose no
// device, which is enough to pin work to dedicated threads.
type HeadlessWindow struct {
	name string
}

// NewHeadlessWindow creates a window whose contexts never fail.
func NewHeadlessWindow(name string) *HeadlessWindow {
	return &HeadlessWindow{name: name}
}

func (w *HeadlessWindow) Name() string { return w.name }

func (w *HeadlessWindow) CreateContext() (gpucontext.DeviceProvider, error) {
	return NullContext{}, nil
}

func (w *HeadlessWindow) ReleaseContext(gpucontext.DeviceProvider) {}

// NullContext is a DeviceProvider with no device behind it.
type NullContext struct{}

func (NullContext) Device() gpucontext.Device   { return nil }
func (NullContext) Queue() gpucontext.Queue     { return nil }
func (NullContext) Adapter() gpucontext.Adapter { return nil }
func (NullContext) SurfaceFormat() gputypes.TextureFormat {
	return gputypes.TextureFormatUndefined
}
func (NullContext) AdapterInfo() gpucontext.AdapterInfo {
	return gpucontext.AdapterInfo{Type: gpucontext.AdapterTypeUnknown}
}

var _ gpucontext.DeviceProvider = NullContext{}

// devicePoller is implemented by devices that deliver completed GPU work
// through polling.
type devicePoller interface {
	Poll(wait bool)
}

// pumpContext lets the device of a context worker process finished work
// after each task, without blocking.
func pumpContext(provider gpucontext.DeviceProvider) {
	if provider == nil {
		return
	}
	if p, ok := provider.Device().(devicePoller); ok {
		p.Poll(false)
	}
}

// =============================================================================
// Worker identity carried in the task context
// =============================================================================

type workerKeyType struct{}

var workerKey workerKeyType

func workerFromContext(ctx context.Context) *worker {
	if v := ctx.Value(workerKey); v != nil {
		return v.(*worker)
	}
	return nil
}

// CurrentWindow returns the window whose context worker runs the current
// task, or nil on a regular worker.
func CurrentWindow(ctx context.Context) Window {
	if w := workerFromContext(ctx); w != nil {
		return w.window
	}
	return nil
}

// RenderContext returns the rendering context owned by the current context
// worker.
func RenderContext(ctx context.Context) (gpucontext.DeviceProvider, bool) {
	w := workerFromContext(ctx)
	if w == nil || w.provider == nil {
		return nil, false
	}
	return w.provider, true
}

// WorkerID returns the id of the worker executing the current task.
func WorkerID(ctx context.Context) (int, bool) {
	if w := workerFromContext(ctx); w != nil {
		return w.id, true
	}
	return 0, false
}

// WorkerThreadID returns the OS thread id a context worker is locked to, or -1
// when unknown or not running on a context worker.
func WorkerThreadID(ctx context.Context) int {
	if w := workerFromContext(ctx); w != nil {
		return w.threadID
	}
	return -1
}
