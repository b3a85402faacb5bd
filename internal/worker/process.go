package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
)

// CrashReport describes why a worker generation died.
type CrashReport struct {
	Message string
	Trace   string
}

// Lines splits the trace for line-by-line logging.
func (c CrashReport) Lines() []string {
	trace := strings.TrimRight(c.Trace, "\n")
	if trace == "" {
		return []string{c.Message}
	}
	return strings.Split(trace, "\n")
}

// NewErrorChannel returns the error channel for one generation.
func NewErrorChannel() chan CrashReport {
	return make(chan CrashReport, 1)
}

// DrainErrors collects every pending report without blocking.
func DrainErrors(ch <-chan CrashReport) []CrashReport {
	if ch == nil {
		return nil
	}
	var out []CrashReport
	for {
		select {
		case report := <-ch:
			out = append(out, report)
		default:
			return out
		}
	}
}

// Runner is the body of a role. Returning nil or context.Canceled is a
// clean exit; any other error or a panic becomes a CrashReport.
type Runner interface {
	Run(ctx context.Context) error
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context) error

func (f RunnerFunc) Run(ctx context.Context) error { return f(ctx) }

// Process is one isolated generation of a role. It runs in its own goroutine
// under its own cancellable context and never lets a failure escape.
type Process struct {
	name   string
	runner Runner
	errs   chan<- CrashReport

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewProcess prepares a generation; nothing runs until Start.
func NewProcess(name string, runner Runner, errs chan<- CrashReport) *Process {
	return &Process{
		name:   name,
		runner: runner,
		errs:   errs,
		done:   make(chan struct{}),
	}
}

// Name returns the worker name.
func (p *Process) Name() string {
	return p.name
}

// Start launches the runner. A second call is ignored.
func (p *Process) Start(parent context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}
	p.started = true
	ctx, cancel := context.WithCancel(parent)
	p.cancel = cancel
	go p.run(ctx)
}

func (p *Process) run(ctx context.Context) {
	defer close(p.done)
	defer p.cancel()
	defer func() {
		if r := recover(); r != nil {
			p.report(CrashReport{
				Message: fmt.Sprintf("%s panic: %v", p.name, r),
				Trace:   fmt.Sprintf("panic: %v\n%s", r, debug.Stack()),
			})
		}
	}()

	err := p.runner.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		p.report(CrashReport{
			Message: fmt.Sprintf("%s exited: %v", p.name, err),
			Trace:   err.Error(),
		})
	}
}

func (p *Process) report(report CrashReport) {
	if p.errs == nil {
		return
	}
	select {
	case p.errs <- report:
	default:
	}
}

// Alive reports whether the generation was started and has not exited.
func (p *Process) Alive() bool {
	if p == nil {
		return false
	}
	p.mu.Lock()
	started := p.started
	p.mu.Unlock()
	if !started {
		return false
	}
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}

// Terminate cancels the generation's context. It does not wait.
func (p *Process) Terminate() {
	p.mu.Lock()
	cancel := p.cancel
	p.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Join waits for the generation to exit. It returns immediately when the
// process was never started.
func (p *Process) Join() {
	p.mu.Lock()
	started := p.started
	p.mu.Unlock()
	if !started {
		return
	}
	<-p.done
}

// Done is closed when the generation exits.
func (p *Process) Done() <-chan struct{} {
	return p.done
}
