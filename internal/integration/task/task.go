package task

// TaskType selects how the command is launched.
type TaskType string

const (
	// TaskTypeShell runs Command as a complete line through the host shell.
	TaskTypeShell TaskType = "shell"
	// TaskTypeProcess runs Command directly with Args.
	TaskTypeProcess TaskType = "process"
)

// Task describes one process to run.
type Task struct {
	// Name is the display name.
	Name string

	// Type is the launch mode; empty means TaskTypeShell.
	Type TaskType

	// Command is the shell line (TaskTypeShell) or the program path.
	Command string

	// Args are program arguments for TaskTypeProcess. They are ignored
	// for shell tasks, whose Command is already escaped.
	Args []string

	// Cwd is the working directory.
	Cwd string

	// Env adds environment variables to the process.
	Env map[string]string

	// ProblemMatcher names the matcher applied to output lines.
	ProblemMatcher string

	// Echo is appended to the sink when the execution leaves the queue,
	// ahead of the process output.
	Echo string
}
