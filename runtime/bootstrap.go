// Package runtime wires together the process-wide singletons — logger,
// timer driver, task executor, network driver, fiber scheduler,
// configuration store — and owns their goroutine lifecycle (spec §4.8
// "Process bootstrap").
//
// Grounded on the startup/shutdown ordering in the teacher's
// server/hioload.go and facade/hioload.go (control → affinity → pools
// → transport → executor → poller → scheduler), and on
// original_source/poseidon/main.cpp for the set of resident threads
// (logger, timer, five task workers, network) and the trapped signal
// set (SIGINT, SIGTERM, SIGALRM terminate; SIGPIPE is ignored).
package runtime

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime/pprof"
	"sync"
	"syscall"

	"github.com/lhmouse/poseidon/config"
	"github.com/lhmouse/poseidon/fiber"
	"github.com/lhmouse/poseidon/logger"
	"github.com/lhmouse/poseidon/network"
	"github.com/lhmouse/poseidon/socket"
	"github.com/lhmouse/poseidon/task"
	"github.com/lhmouse/poseidon/timer"
)

// defaultTaskWorkers mirrors main.cpp's do_create_threads, which
// starts five resident task-executor threads ("task_0".."task_4").
const defaultTaskWorkers = 5

// Runtime owns the process-wide component singletons and their
// goroutines. Exactly one Runtime is expected per process.
type Runtime struct {
	Config  *config.Store
	Logger  *logger.Logger
	Timer   *timer.Driver
	Task    *task.Executor
	Network *network.Driver
	Fiber   *fiber.Scheduler

	wg      sync.WaitGroup
	started bool
}

// New constructs the component singletons but does not start their
// goroutines; call Start after the configuration has been loaded once.
func New() (*Runtime, error) {
	r := &Runtime{
		Config: config.NewStore(),
		Logger: logger.New(),
		Timer:  timer.NewDriver(),
		Task:   task.NewExecutor(defaultTaskWorkers),
		Fiber:  fiber.NewScheduler(),
	}

	net, err := network.NewDriver(r.Logger)
	if err != nil {
		return nil, fmt.Errorf("runtime: network driver init: %w", err)
	}
	r.Network = net

	r.Timer.SetPanicHandler(func(err any, t *timer.Timer) {
		r.Logger.Error("timer callback panic: %v", err)
	})
	r.Task.SetPanicHandler(func(err any, t *task.Task) {
		r.Logger.Error("task execution panic: %v", err)
	})
	r.Network.SetPanicHandler(func(err any, s *socket.Base) {
		r.Logger.Error("network callback panic: %v", err)
	})
	r.Fiber.SetPanicHandler(func(err any, fb *fiber.Fiber) {
		r.Logger.Error("fiber panic: %v", err)
	})
	r.Fiber.SetWarnHandler(func(fb *fiber.Fiber) {
		r.Logger.Warn("fiber parked past warn timeout")
	})

	return r, nil
}

// LoadConfig reads the configuration file at path and reloads every
// component that has a Reload hook (spec §4.7's copy-on-write swap
// propagating to the logger and network driver). A missing file is
// not an error: the store keeps its empty-root defaults, the same
// state config.NewStore leaves it in before any Reload.
func (r *Runtime) LoadConfig(path string) error {
	if err := r.Config.Reload(path); err != nil && !os.IsNotExist(errors.Unwrap(err)) {
		return fmt.Errorf("runtime: load config: %w", err)
	}
	if err := r.Logger.Reload(r.Config); err != nil {
		return fmt.Errorf("runtime: reload logger: %w", err)
	}
	if err := r.Network.Reload(r.Config); err != nil {
		return fmt.Errorf("runtime: reload network driver: %w", err)
	}
	return nil
}

// Start launches one labeled goroutine per resident component that
// owns a blocking run loop (the logger and task executor already
// start their own goroutines in New/NewExecutor, mirroring
// do_create_threads' one-thread-per-component layout without
// duplicating the executor's own worker pool).
func (r *Runtime) Start() {
	r.started = true
	r.startLabeled("timer", r.Timer.Run)
	r.startLabeled("network", r.Network.Run)
	r.startLabeled("fiber", r.Fiber.Run)
}

func (r *Runtime) startLabeled(name string, fn func()) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		pprof.Do(context.Background(), pprof.Labels("poseidon_thread", name), func(context.Context) {
			fn()
		})
	}()
}

// Shutdown stops every component and waits for their goroutines to
// exit, logging through Synchronize so the final messages are flushed
// before the process exits (mirrors main.cpp's async_logger.synchronize()
// call in do_exit_printf).
func (r *Runtime) Shutdown() {
	if r.started {
		r.Timer.Stop()
	}
	r.Task.Close()
	if r.started {
		r.Network.Stop()
		r.Fiber.Stop()
	}
	r.wg.Wait()
	r.Logger.Synchronize()
	r.Logger.Close()
}

// WaitForSignal blocks until SIGINT, SIGTERM, or SIGALRM is received,
// logging which one triggered shutdown, then returns. SIGPIPE and
// SIGHUP are left to the caller's IgnoreSIGPIPE policy; this
// matches main.cpp's do_init_signal_handlers trapping INT/TERM/ALRM
// into a single exit_signal flag read by the main loop.
func (r *Runtime) WaitForSignal() os.Signal {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM, syscall.SIGALRM)
	sig := <-ch
	signal.Stop(ch)
	r.Logger.Info("shutting down (signal: %v)", sig)
	return sig
}

// IgnoreSIGPIPE ignores SIGPIPE for the process lifetime, matching
// do_init_signal_handlers: writes to a half-closed socket should
// surface as an EPIPE error return, never a process-killing signal.
// When daemonizeHangupIgnored is true, SIGHUP is ignored too (a
// daemonized process has no controlling terminal to receive it from).
func IgnoreSIGPIPE(daemonizeHangupIgnored bool) {
	signal.Ignore(syscall.SIGPIPE)
	if daemonizeHangupIgnored {
		signal.Ignore(syscall.SIGHUP)
	}
}
