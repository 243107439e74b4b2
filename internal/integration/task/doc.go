// Package task runs build tool invocations as child processes.
//
// An Executor runs one process per Task and streams its stdout and stderr
// line by line into an append-only OutputSink shared by every execution of
// that executor. Listeners observe each execution's lifecycle:
//
//	┌──────────────────────────────────────────────┐
//	│  Executor                                    │
//	│  - queues executions (MaxConcurrent)         │
//	│  - spawns the host shell, stdin detached     │
//	│  - pumps stdout/stderr into the OutputSink   │
//	│  - matches compiler problems per line        │
//	└──────────────────────────────────────────────┘
//	                     │
//	                     ▼
//	┌──────────────────────────────────────────────┐
//	│  ExecutionListener                           │
//	│  started → output… → problem… → completed    │
//	└──────────────────────────────────────────────┘
//
// # Serialisation
//
// MaxConcurrent defaults to 1, so executions that share a sink run one
// after another and their output never interleaves. Queued executions
// stay pending until the running one completes.
//
// # Exit status
//
// A process that exits non-zero leaves its Execution in the failed state
// with an *ExitError carrying the code. Cancellation kills the whole
// process group and leaves the execution canceled.
//
// # Example
//
//	exec := task.NewExecutor(task.DefaultExecutorConfig())
//	run, err := exec.Execute(ctx, &task.Task{
//	    Name:    "build",
//	    Type:    task.TaskTypeShell,
//	    Command: line,
//	})
//	if err != nil {
//	    return err
//	}
//	if err := run.Wait(ctx); err != nil {
//	    var exitErr *task.ExitError
//	    if errors.As(err, &exitErr) {
//	        log.Printf("build failed with code %d", exitErr.Code)
//	    }
//	}
package task
