// Package affinity schedules prioritised, cancellable tasks on two kinds of
// workers: a regular pool for work that may run on any goroutine, and per
// window pools of context workers that each own a rendering context on a
// locked OS thread.
//
// # Quick Start
//
// Initialize the global scheduler at application startup:
//
//	if err := affinity.InitGlobalScheduler(affinity.DefaultOptions()); err != nil {
//		log.Fatal(err)
//	}
//	defer affinity.ShutdownGlobalScheduler()
//
// Post regular work:
//
//	affinity.PostTask(func(ctx context.Context) {
//		// runs on any regular worker
//	}, affinity.WithPriority(affinity.PriorityHighest))
//
// # Key Concepts
//
// Task: a unit of work with an id, a priority (lower runs first), an
// affinity and an optional repeating flag. Tasks embed *BaseTask.
//
// Window: a rendering target able to create a rendering context. Tasks bound
// to a window run only on that window's context workers, on the thread that
// created the context.
//
// Pipeline: every pool moves tasks through incoming, queued and running
// lists. Submissions land in incoming, workers drain incoming into the
// priority-ordered queued list and pick the head.
//
// # Teardown
//
// Shutdown stops every pool; DestroyContextWorkers stops only one window.
// Both abort running tasks, wait for them to retire, drop tasks that never
// started and join the workers, which release their contexts on the
// threads that created them.
//
// # Example
//
//	s := affinity.New(affinity.DefaultOptions())
//	if err := s.Start(ctx); err != nil {
//		return err
//	}
//	defer s.Shutdown()
//
//	win := affinity.NewHeadlessWindow("main")
//	if _, err := s.CreateContextWorkers(win); err != nil {
//		return err
//	}
//	s.Submit(affinity.NewFuncTask(func(ctx context.Context) {
//		dev, _ := affinity.RenderContext(ctx)
//		_ = dev
//	}, affinity.WithWindow(win), affinity.WithRepeating()))
//
// For more details, see https://github.com/Swind/go-affinity-scheduler
package affinity
