package script

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dop251/goja"

	"github.com/flowkit/topicflow/errors"
	"github.com/flowkit/topicflow/metric"
	"github.com/flowkit/topicflow/pkg/cache"
	"github.com/flowkit/topicflow/types"
)

// DefaultTimeout bounds a single script run.
const DefaultTimeout = 5 * time.Second

// compiledScript pairs a compiled program with the hash of the source it
// was compiled from, so edits to the stored script take effect on the
// next run.
type compiledScript struct {
	program *goja.Program
	hash    string
}

// Executor runs stored JavaScript by name. A script's source defines a
// function with the same name as the script; Run compiles the source
// once per version and invokes that function with the given arguments.
//
// Programs are cached and shared; each run gets a fresh runtime, so
// scripts cannot observe each other's state.
type Executor struct {
	repo     types.ScriptRepository
	programs cache.Cache[*compiledScript]
	logger   *slog.Logger
	timeout  time.Duration
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithTimeout bounds individual script runs.
func WithTimeout(timeout time.Duration) ExecutorOption {
	return func(e *Executor) {
		if timeout > 0 {
			e.timeout = timeout
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) ExecutorOption {
	return func(e *Executor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewExecutor creates a script executor backed by the given repository.
// metricsReg may be nil to disable program-cache metrics.
func NewExecutor(repo types.ScriptRepository, metricsReg *metric.MetricsRegistry, options ...ExecutorOption) (*Executor, error) {
	var cacheOpts []cache.Option[*compiledScript]
	if metricsReg != nil {
		cacheOpts = append(cacheOpts, cache.WithMetrics[*compiledScript](metricsReg, "script_programs"))
	}
	programs, err := cache.NewSimple(cacheOpts...)
	if err != nil {
		return nil, errors.Wrap(err, "script", "NewExecutor", "create program cache")
	}

	e := &Executor{
		repo:     repo,
		programs: programs,
		logger:   slog.Default().With("component", "script-executor"),
		timeout:  DefaultTimeout,
	}
	for _, opt := range options {
		opt(e)
	}
	return e, nil
}

// Run executes the named script's function with the given arguments and
// returns its result as a string. A missing script returns
// ErrScriptNotFound; compile and runtime failures return
// ErrScriptExecution. Both are per-rule failures for callers.
func (e *Executor) Run(ctx context.Context, name string, args ...string) (string, error) {
	stored, err := e.repo.Get(ctx, name)
	if err != nil {
		return "", errors.Wrap(err, "script", "Run", "load script "+name)
	}

	compiled, err := e.compile(name, stored.SourceCode)
	if err != nil {
		return "", err
	}

	vm := goja.New()

	// Interrupt the runtime on timeout or caller cancellation.
	runCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	watchDone := make(chan struct{})
	defer close(watchDone)
	go func() {
		select {
		case <-runCtx.Done():
			vm.Interrupt("script deadline exceeded")
		case <-watchDone:
		}
	}()

	if _, err := vm.RunProgram(compiled.program); err != nil {
		return "", e.execError(name, "run script source", err)
	}

	fn, ok := goja.AssertFunction(vm.Get(name))
	if !ok {
		return "", errors.WrapInvalid(
			fmt.Errorf("%w: %s does not define function %q", errors.ErrScriptExecution, name, name),
			"script", "Run", "resolve script function")
	}

	callArgs := make([]goja.Value, len(args))
	for i, arg := range args {
		callArgs[i] = vm.ToValue(arg)
	}
	result, err := fn(goja.Undefined(), callArgs...)
	if err != nil {
		return "", e.execError(name, "invoke script function", err)
	}

	if result == nil || goja.IsUndefined(result) || goja.IsNull(result) {
		return "", nil
	}
	return result.String(), nil
}

// Check compiles source without running it, for editors validating a
// script before saving.
func (e *Executor) Check(name, source string) error {
	if _, err := goja.Compile(name, source, false); err != nil {
		return errors.WrapInvalid(
			fmt.Errorf("%w: %v", errors.ErrScriptExecution, err),
			"script", "Check", "compile script "+name)
	}
	return nil
}

// Invalidate drops the cached program for a script, typically after a
// delete. Saves need no invalidation since compile hashes the source.
func (e *Executor) Invalidate(name string) {
	e.programs.Delete(name)
}

// Close releases the program cache.
func (e *Executor) Close() error {
	return e.programs.Close()
}

// compile returns the cached program for this exact source, compiling
// when the script is new or its source changed.
func (e *Executor) compile(name, source string) (*compiledScript, error) {
	sum := sha256.Sum256([]byte(source))
	hash := hex.EncodeToString(sum[:])

	if cached, ok := e.programs.Get(name); ok && cached.hash == hash {
		return cached, nil
	}

	program, err := goja.Compile(name, source, false)
	if err != nil {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: %v", errors.ErrScriptExecution, err),
			"script", "compile", "compile script "+name)
	}

	compiled := &compiledScript{program: program, hash: hash}
	if _, err := e.programs.Set(name, compiled); err != nil {
		e.logger.Warn("Failed to cache compiled script", "script", name, "error", err)
	}
	return compiled, nil
}

func (e *Executor) execError(name, action string, err error) error {
	var interrupted *goja.InterruptedError
	if stderrors.As(err, &interrupted) {
		return errors.WrapTransient(
			fmt.Errorf("%w: %s interrupted: %v", errors.ErrScriptExecution, name, interrupted.Value()),
			"script", "Run", action)
	}
	return errors.WrapInvalid(
		fmt.Errorf("%w: %s: %v", errors.ErrScriptExecution, name, err),
		"script", "Run", action)
}
