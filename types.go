package affinity

import "github.com/Swind/go-affinity-scheduler/core"

// Re-export commonly used types from core package for convenience.
// This allows users to import only the affinity package for most use cases.

// Scheduler owns the regular pool and the per-window context pools.
type Scheduler = core.Scheduler

// Options configures a Scheduler.
type Options = core.Options

// PoolSizing bounds a worker pool; Max may be AutoThreads.
type PoolSizing = core.PoolSizing

// Task is the unit of work.
type Task = core.Task

// BaseTask carries the bookkeeping every Task embeds.
type BaseTask = core.BaseTask

// FuncTask adapts a function to Task.
type FuncTask = core.FuncTask

type (
	TaskID           = core.TaskID
	TaskOption       = core.TaskOption
	Priority         = core.Priority
	Affinity         = core.Affinity
	Window           = core.Window
	HeadlessWindow   = core.HeadlessWindow
	NullContext      = core.NullContext
	DelegateID       = core.DelegateID
	TaskFinishedFunc = core.TaskFinishedFunc
	SchedulerStats   = core.SchedulerStats
	PoolStats        = core.PoolStats
)

// Priority and affinity constants
const (
	PriorityHighest = core.PriorityHighest
	PriorityDefault = core.PriorityDefault
	PriorityLowest  = core.PriorityLowest

	AffinityDefault      = core.AffinityDefault
	AffinityContextBound = core.AffinityContextBound

	AutoThreads = core.AutoThreads
)

// Errors returned by Submit and the context worker operations.
var (
	ErrNilTask             = core.ErrNilTask
	ErrDuplicateTask       = core.ErrDuplicateTask
	ErrSchedulerStopped    = core.ErrSchedulerStopped
	ErrSchedulerNotStarted = core.ErrSchedulerNotStarted
	ErrMissingWindow       = core.ErrMissingWindow
	ErrUnknownWindow       = core.ErrUnknownWindow
	ErrWindowExists        = core.ErrWindowExists
	ErrContextUnavailable  = core.ErrContextUnavailable
)

// Constructors and task options
var (
	New               = core.New
	DefaultOptions    = core.DefaultOptions
	NewFuncTask       = core.NewFuncTask
	NewBaseTask       = core.NewBaseTask
	NewHeadlessWindow = core.NewHeadlessWindow

	WithPriority  = core.WithPriority
	WithRepeating = core.WithRepeating
	WithWindow    = core.WithWindow
	WithAffinity  = core.WithAffinity
	WithID        = core.WithID
	WithName      = core.WithName
)

// Run-context accessors
var (
	SchedulerFromContext = core.SchedulerFromContext
	CurrentWindow        = core.CurrentWindow
	RenderContext        = core.RenderContext
	WorkerID             = core.WorkerID
	WorkerThreadID       = core.WorkerThreadID
)
