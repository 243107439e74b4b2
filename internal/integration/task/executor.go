package task

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	osexec "os/exec"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/uebuild/internal/logging"
)

// ExecutorConfig configures the task executor.
type ExecutorConfig struct {
	// DefaultShell is the shell to use for shell tasks.
	DefaultShell string

	// DefaultShellArgs precede the command line.
	DefaultShellArgs []string

	// DefaultEnv are environment variables to add to all tasks.
	DefaultEnv map[string]string

	// WorkingDir is the default working directory.
	WorkingDir string

	// OutputBufferSize is the longest accepted output line.
	OutputBufferSize int

	// MaxConcurrent is the maximum number of running executions.
	MaxConcurrent int

	// KillGrace bounds how long Wait keeps reading output after the
	// process was killed.
	KillGrace time.Duration
}

// DefaultExecutorConfig returns the defaults for the host OS.
func DefaultExecutorConfig() ExecutorConfig {
	shell, args := "/bin/sh", []string{"-c"}
	if runtime.GOOS == "windows" {
		shell, args = "cmd", []string{"/C"}
	}

	return ExecutorConfig{
		DefaultShell:     shell,
		DefaultShellArgs: args,
		OutputBufferSize: 1024 * 1024,
		MaxConcurrent:    1,
		KillGrace:        5 * time.Second,
	}
}

// ExecutionState represents the state of a task execution.
type ExecutionState string

const (
	// ExecutionStatePending indicates the task is waiting to run.
	ExecutionStatePending ExecutionState = "pending"
	// ExecutionStateRunning indicates the task is currently running.
	ExecutionStateRunning ExecutionState = "running"
	// ExecutionStateSucceeded indicates the task completed successfully.
	ExecutionStateSucceeded ExecutionState = "succeeded"
	// ExecutionStateFailed indicates the task failed.
	ExecutionStateFailed ExecutionState = "failed"
	// ExecutionStateCanceled indicates the task was canceled.
	ExecutionStateCanceled ExecutionState = "canceled"
)

// IsTerminal reports whether the state is final.
func (s ExecutionState) IsTerminal() bool {
	return s == ExecutionStateSucceeded || s == ExecutionStateFailed || s == ExecutionStateCanceled
}

// Execution represents a running or completed task execution.
type Execution struct {
	// ID is a unique identifier for this execution.
	ID string

	// Task is the task being executed.
	Task *Task

	State     ExecutionState
	StartTime time.Time
	EndTime   time.Time

	// ExitCode is the process exit code (-1 if not yet finished).
	ExitCode int

	// Error is any error that occurred.
	Error error

	// Problems are problems found in the output.
	Problems []Problem

	cancel           context.CancelFunc
	sink             *OutputSink
	done             chan struct{}
	doneOnce         sync.Once
	notifiedComplete bool
	mu               sync.RWMutex
}

// ExecutionListener receives execution events. Output and problem events
// arrive from reader goroutines.
type ExecutionListener interface {
	OnExecutionStarted(exec *Execution)
	OnExecutionOutput(exec *Execution, line OutputLine)
	OnExecutionProblem(exec *Execution, problem Problem)
	OnExecutionCompleted(exec *Execution)
}

// Executor manages task execution.
type Executor struct {
	config ExecutorConfig
	sink   *OutputSink
	logger logrus.FieldLogger

	executions   map[string]*Execution
	executionsMu sync.RWMutex

	// sem limits concurrent executions.
	sem chan struct{}

	problems *ProblemMatcher

	listeners   []ExecutionListener
	listenersMu sync.RWMutex
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithSink shares an existing output sink.
func WithSink(sink *OutputSink) ExecutorOption {
	return func(e *Executor) {
		e.sink = sink
	}
}

// WithLogger sets the logger.
func WithLogger(logger logrus.FieldLogger) ExecutorOption {
	return func(e *Executor) {
		e.logger = logger
	}
}

// NewExecutor creates a new task executor.
func NewExecutor(config ExecutorConfig, opts ...ExecutorOption) *Executor {
	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = 1
	}
	if config.DefaultShell == "" {
		def := DefaultExecutorConfig()
		config.DefaultShell = def.DefaultShell
		config.DefaultShellArgs = def.DefaultShellArgs
	}

	e := &Executor{
		config:     config,
		executions: make(map[string]*Execution),
		sem:        make(chan struct{}, config.MaxConcurrent),
		problems:   NewProblemMatcher(),
		logger:     logging.Discard(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.sink == nil {
		e.sink = NewOutputSink(config.OutputBufferSize)
	}
	e.logger = e.logger.WithField("component", "task")
	return e
}

// Sink returns the output sink shared by all executions.
func (e *Executor) Sink() *OutputSink {
	return e.sink
}

// Problems returns the problem matcher registry.
func (e *Executor) Problems() *ProblemMatcher {
	return e.problems
}

// AddListener adds an execution listener.
func (e *Executor) AddListener(listener ExecutionListener) {
	e.listenersMu.Lock()
	defer e.listenersMu.Unlock()
	e.listeners = append(e.listeners, listener)
}

// RemoveListener removes an execution listener.
func (e *Executor) RemoveListener(listener ExecutionListener) {
	e.listenersMu.Lock()
	defer e.listenersMu.Unlock()

	for i, l := range e.listeners {
		if l == listener {
			e.listeners = append(e.listeners[:i], e.listeners[i+1:]...)
			return
		}
	}
}

// Execute queues a task and returns the execution handle immediately.
func (e *Executor) Execute(ctx context.Context, task *Task) (*Execution, error) {
	if task == nil || strings.TrimSpace(task.Command) == "" {
		return nil, ErrEmptyCommand
	}

	execCtx, cancel := context.WithCancel(ctx)
	exec := &Execution{
		ID:       uuid.NewString(),
		Task:     task,
		State:    ExecutionStatePending,
		ExitCode: -1,
		cancel:   cancel,
		sink:     e.sink,
		done:     make(chan struct{}),
	}

	e.executionsMu.Lock()
	e.executions[exec.ID] = exec
	e.executionsMu.Unlock()

	go e.runExecution(execCtx, exec)

	return exec, nil
}

// ExecuteSync runs a task and waits for completion. The returned error
// reports only failures to queue the task; inspect the execution for the
// outcome.
func (e *Executor) ExecuteSync(ctx context.Context, task *Task) (*Execution, error) {
	exec, err := e.Execute(ctx, task)
	if err != nil {
		return nil, err
	}
	<-exec.Done()
	return exec, nil
}

// GetExecution returns an execution by ID.
func (e *Executor) GetExecution(id string) (*Execution, bool) {
	e.executionsMu.RLock()
	defer e.executionsMu.RUnlock()
	exec, ok := e.executions[id]
	return exec, ok
}

// ListExecutions returns all tracked executions ordered by start.
func (e *Executor) ListExecutions() []*Execution {
	e.executionsMu.RLock()
	result := make([]*Execution, 0, len(e.executions))
	for _, exec := range e.executions {
		result = append(result, exec)
	}
	e.executionsMu.RUnlock()

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].startTime().Before(result[j].startTime())
	})
	return result
}

// CancelExecution cancels an execution by ID.
func (e *Executor) CancelExecution(id string) error {
	exec, ok := e.GetExecution(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrExecutionNotFound, id)
	}
	exec.Cancel()
	return nil
}

// CancelAll cancels all active executions.
func (e *Executor) CancelAll() {
	for _, exec := range e.ListExecutions() {
		exec.Cancel()
	}
}

// CleanupCompleted removes completed executions from tracking.
func (e *Executor) CleanupCompleted() int {
	e.executionsMu.Lock()
	defer e.executionsMu.Unlock()

	count := 0
	for id, exec := range e.executions {
		if exec.CurrentState().IsTerminal() {
			delete(e.executions, id)
			count++
		}
	}
	return count
}

// runExecution handles the actual task execution.
func (e *Executor) runExecution(ctx context.Context, exec *Execution) {
	defer exec.cancel()
	log := e.logger.WithFields(logrus.Fields{"execution": exec.ID, "task": exec.Task.Name})

	select {
	case e.sem <- struct{}{}:
		defer func() { <-e.sem }()
	case <-ctx.Done():
		e.setExecutionState(exec, ExecutionStateCanceled, ctx.Err())
		return
	}

	cmd := e.buildCommand(ctx, exec.Task)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		e.setExecutionState(exec, ExecutionStateFailed, fmt.Errorf("stdout pipe: %w", err))
		return
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		e.setExecutionState(exec, ExecutionStateFailed, fmt.Errorf("stderr pipe: %w", err))
		return
	}

	var matcher *CompiledMatcher
	if exec.Task.ProblemMatcher != "" {
		matcher = e.problems.GetMatcher(exec.Task.ProblemMatcher)
	}

	exec.mu.Lock()
	exec.StartTime = time.Now()
	exec.State = ExecutionStateRunning
	exec.mu.Unlock()

	if exec.Task.Echo != "" {
		e.sink.Append(OutputLine{Content: exec.Task.Echo, ExecutionID: exec.ID})
	}

	if err := cmd.Start(); err != nil {
		e.setExecutionState(exec, ExecutionStateFailed, fmt.Errorf("start: %w", err))
		return
	}
	log.WithField("pid", cmd.Process.Pid).Debug("process started")
	e.notifyStarted(exec)

	var pumps errgroup.Group
	pumps.Go(func() error {
		return e.processOutput(exec, stdout, OutputStreamStdout, matcher)
	})
	pumps.Go(func() error {
		return e.processOutput(exec, stderr, OutputStreamStderr, matcher)
	})
	if err := pumps.Wait(); err != nil {
		// Output after an overlong line is lost but the process still runs
		// to completion.
		log.WithError(err).Warn("output stream truncated")
	}

	err = cmd.Wait()

	exec.mu.Lock()
	exec.EndTime = time.Now()
	var exitErr *osexec.ExitError
	switch {
	case ctx.Err() != nil:
		exec.State = ExecutionStateCanceled
		exec.Error = ctx.Err()
	case errors.As(err, &exitErr):
		exec.State = ExecutionStateFailed
		exec.ExitCode = exitErr.ExitCode()
		exec.Error = &ExitError{Code: exec.ExitCode, Err: err}
	case err != nil:
		exec.State = ExecutionStateFailed
		exec.Error = err
	default:
		exec.State = ExecutionStateSucceeded
		exec.ExitCode = 0
	}
	state, code := exec.State, exec.ExitCode
	exec.mu.Unlock()

	log.WithFields(logrus.Fields{"state": state, "exit_code": code}).Debug("process finished")
	e.notifyCompleted(exec)
}

// buildCommand creates the osexec.Cmd for a task.
func (e *Executor) buildCommand(ctx context.Context, task *Task) *osexec.Cmd {
	var cmd *osexec.Cmd
	switch task.Type {
	case TaskTypeProcess:
		cmd = osexec.CommandContext(ctx, task.Command, task.Args...)
	default:
		args := append(append([]string(nil), e.config.DefaultShellArgs...), task.Command)
		cmd = osexec.CommandContext(ctx, e.config.DefaultShell, args...)
	}

	cwd := task.Cwd
	if cwd == "" {
		cwd = e.config.WorkingDir
	}
	cmd.Dir = cwd
	cmd.Env = e.buildEnvironment(task)

	// stdin stays nil: the process reads from the null device.
	cmd.Stdin = nil

	setProcessGroup(cmd)
	cmd.Cancel = func() error {
		return killProcessGroup(cmd)
	}
	cmd.WaitDelay = e.config.KillGrace

	return cmd
}

// buildEnvironment creates the environment for a task.
// Precedence (highest to lowest): task.Env > defaultEnv > os.Environ()
func (e *Executor) buildEnvironment(task *Task) []string {
	envMap := make(map[string]string)
	for _, kv := range os.Environ() {
		if idx := strings.Index(kv, "="); idx > 0 {
			envMap[kv[:idx]] = kv[idx+1:]
		}
	}
	for k, v := range e.config.DefaultEnv {
		envMap[k] = v
	}
	for k, v := range task.Env {
		envMap[k] = v
	}

	keys := make([]string, 0, len(envMap))
	for k := range envMap {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	env := make([]string, 0, len(envMap))
	for _, k := range keys {
		env = append(env, k+"="+envMap[k])
	}
	return env
}

// processOutput reads and processes output from a stream.
func (e *Executor) processOutput(exec *Execution, r io.Reader, stream OutputStream, matcher *CompiledMatcher) error {
	err := e.sink.Process(r, stream, exec.ID, func(line OutputLine) {
		e.notifyOutput(exec, line)

		if matcher != nil {
			if problem, ok := matcher.Match(line.Content); ok {
				exec.mu.Lock()
				exec.Problems = append(exec.Problems, problem)
				exec.mu.Unlock()
				e.notifyProblem(exec, problem)
			}
		}
	})
	if err != nil {
		// Keep draining so the process never blocks on a full pipe.
		_, _ = io.Copy(io.Discard, r)
	}
	return err
}

// setExecutionState sets a terminal state reached before the process ran.
func (e *Executor) setExecutionState(exec *Execution, state ExecutionState, err error) {
	exec.mu.Lock()
	exec.State = state
	exec.Error = err
	if exec.EndTime.IsZero() {
		exec.EndTime = time.Now()
	}
	exec.mu.Unlock()

	e.logger.WithError(err).WithField("execution", exec.ID).Debug("execution did not start")
	if state.IsTerminal() {
		e.notifyCompleted(exec)
	}
}

func (e *Executor) snapshotListeners() []ExecutionListener {
	e.listenersMu.RLock()
	defer e.listenersMu.RUnlock()
	listeners := make([]ExecutionListener, len(e.listeners))
	copy(listeners, e.listeners)
	return listeners
}

func (e *Executor) notifyStarted(exec *Execution) {
	for _, l := range e.snapshotListeners() {
		l.OnExecutionStarted(exec)
	}
}

func (e *Executor) notifyOutput(exec *Execution, line OutputLine) {
	for _, l := range e.snapshotListeners() {
		l.OnExecutionOutput(exec, line)
	}
}

func (e *Executor) notifyProblem(exec *Execution, problem Problem) {
	for _, l := range e.snapshotListeners() {
		l.OnExecutionProblem(exec, problem)
	}
}

func (e *Executor) notifyCompleted(exec *Execution) {
	exec.mu.Lock()
	if exec.notifiedComplete {
		exec.mu.Unlock()
		return
	}
	exec.notifiedComplete = true
	exec.mu.Unlock()

	// Listeners run before Done is closed so waiters observe their effects.
	for _, l := range e.snapshotListeners() {
		l.OnExecutionCompleted(exec)
	}
	exec.markDone()
}

// Cancel cancels the execution. A running process group is killed; a
// pending execution never starts.
func (ex *Execution) Cancel() {
	ex.mu.RLock()
	cancel := ex.cancel
	ex.mu.RUnlock()

	if cancel != nil {
		cancel()
	}
}

// Done returns a channel that's closed when execution completes.
func (ex *Execution) Done() <-chan struct{} {
	return ex.done
}

// Wait blocks until the execution completes or ctx is done and returns
// the execution error.
func (ex *Execution) Wait(ctx context.Context) error {
	select {
	case <-ex.done:
		return ex.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Err returns the execution error; nil while running or after success.
func (ex *Execution) Err() error {
	ex.mu.RLock()
	defer ex.mu.RUnlock()
	return ex.Error
}

func (ex *Execution) markDone() {
	ex.doneOnce.Do(func() {
		close(ex.done)
	})
}

// CurrentState returns the state under the execution lock.
func (ex *Execution) CurrentState() ExecutionState {
	ex.mu.RLock()
	defer ex.mu.RUnlock()
	return ex.State
}

// Code returns the exit code (-1 while running).
func (ex *Execution) Code() int {
	ex.mu.RLock()
	defer ex.mu.RUnlock()
	return ex.ExitCode
}

// IsRunning returns true if the execution is still running.
func (ex *Execution) IsRunning() bool {
	return ex.CurrentState() == ExecutionStateRunning
}

func (ex *Execution) startTime() time.Time {
	ex.mu.RLock()
	defer ex.mu.RUnlock()
	return ex.StartTime
}

// Duration returns the execution duration.
func (ex *Execution) Duration() time.Duration {
	ex.mu.RLock()
	defer ex.mu.RUnlock()

	if ex.StartTime.IsZero() {
		return 0
	}
	end := ex.EndTime
	if end.IsZero() {
		end = time.Now()
	}
	return end.Sub(ex.StartTime)
}

// Output returns the lines this execution wrote to the sink.
func (ex *Execution) Output() []OutputLine {
	return ex.sink.LinesFor(ex.ID)
}

// ProblemList returns a copy of the problems found so far.
func (ex *Execution) ProblemList() []Problem {
	ex.mu.RLock()
	defer ex.mu.RUnlock()
	return append([]Problem(nil), ex.Problems...)
}
