package app

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/dshills/uebuild/internal/logging"
)

// Level is the severity of a user notification.
type Level int

const (
	LevelInfo Level = iota
	LevelWarn
	LevelError
)

// String returns the level name.
func (l Level) String() string {
	switch l {
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return fmt.Sprintf("unknown(%d)", int(l))
	}
}

// Notifier shows messages to the user.
type Notifier interface {
	Notify(level Level, msg string)
}

// NotifyFunc adapts a function to Notifier.
type NotifyFunc func(level Level, msg string)

// Notify calls f.
func (f NotifyFunc) Notify(level Level, msg string) {
	f(level, msg)
}

// LogNotifier writes notifications to a logger.
type LogNotifier struct {
	Logger logrus.FieldLogger
}

// Notify implements Notifier.
func (n LogNotifier) Notify(level Level, msg string) {
	logger := n.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	switch level {
	case LevelError:
		logger.Error(msg)
	case LevelWarn:
		logger.Warn(msg)
	default:
		logger.Info(msg)
	}
}

// Report notifies err unless it is nil or a cancellation.
func Report(n Notifier, err error) {
	if n == nil {
		return
	}
	switch Classify(err) {
	case KindNone, KindCancelled:
		return
	case KindSubprocess:
		n.Notify(LevelError, fmt.Sprintf("%s failed with exit code %d", operation(err), ExitCode(err)))
	default:
		n.Notify(LevelError, err.Error())
	}
}

// operation names the failed operation for messages, "Build" by default.
func operation(err error) string {
	op := "build"
	var opErr *OperationError
	if errors.As(err, &opErr) && opErr.Op != "" {
		op = opErr.Op
	}
	return strings.ToUpper(op[:1]) + op[1:]
}
