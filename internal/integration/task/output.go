package task

import (
	"bufio"
	"io"
	"strings"
	"sync"
	"time"
)

// OutputStream identifies the source stream.
type OutputStream int

const (
	// OutputStreamStdout is standard output.
	OutputStreamStdout OutputStream = iota
	// OutputStreamStderr is standard error.
	OutputStreamStderr
)

// String returns the stream name.
func (s OutputStream) String() string {
	switch s {
	case OutputStreamStdout:
		return "stdout"
	case OutputStreamStderr:
		return "stderr"
	default:
		return "unknown"
	}
}

// OutputLine represents a single line of output.
type OutputLine struct {
	// Content is the line content without the line terminator.
	Content string

	// Stream identifies the source (stdout or stderr).
	Stream OutputStream

	// ExecutionID is the execution that produced the line; empty for
	// lines appended directly.
	ExecutionID string

	// Timestamp is when the line was received.
	Timestamp time.Time

	// LineNumber is the position in the sink (1-based).
	LineNumber int
}

// OutputSink is an append-only line buffer. Lines are never modified or
// removed once appended.
type OutputSink struct {
	lines      []OutputLine
	bufferSize int
	mu         sync.RWMutex
}

// NewOutputSink creates a sink whose readers accept lines up to
// bufferSize bytes.
func NewOutputSink(bufferSize int) *OutputSink {
	if bufferSize <= 0 {
		bufferSize = 64 * 1024
	}
	return &OutputSink{
		lines:      make([]OutputLine, 0, 256),
		bufferSize: bufferSize,
	}
}

// Append adds a line and returns it with its line number set. A trailing
// carriage return is stripped.
func (s *OutputSink) Append(line OutputLine) OutputLine {
	line.Content = strings.TrimSuffix(line.Content, "\r")
	if line.Timestamp.IsZero() {
		line.Timestamp = time.Now()
	}

	s.mu.Lock()
	line.LineNumber = len(s.lines) + 1
	s.lines = append(s.lines, line)
	s.mu.Unlock()

	return line
}

// AppendText appends each line of text as stdout with no execution.
func (s *OutputSink) AppendText(text string) {
	for _, l := range strings.Split(strings.TrimSuffix(text, "\n"), "\n") {
		s.Append(OutputLine{Content: l})
	}
}

// Process reads r line by line into the sink and calls callback for each
// appended line. It returns the scanner error, if any.
func (s *OutputSink) Process(r io.Reader, stream OutputStream, execID string, callback func(OutputLine)) error {
	scanner := bufio.NewScanner(r)
	initial := 4096
	if initial > s.bufferSize {
		initial = s.bufferSize
	}
	scanner.Buffer(make([]byte, initial), s.bufferSize)

	for scanner.Scan() {
		line := s.Append(OutputLine{
			Content:     scanner.Text(),
			Stream:      stream,
			ExecutionID: execID,
		})
		if callback != nil {
			callback(line)
		}
	}
	return scanner.Err()
}

// Len returns the number of lines.
func (s *OutputSink) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.lines)
}

// Lines returns a copy of all lines.
func (s *OutputSink) Lines() []OutputLine {
	return s.Since(0)
}

// Since returns the lines after the first n.
func (s *OutputSink) Since(n int) []OutputLine {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if n < 0 {
		n = 0
	}
	if n >= len(s.lines) {
		return nil
	}
	result := make([]OutputLine, len(s.lines)-n)
	copy(result, s.lines[n:])
	return result
}

// LinesFor returns the lines produced by one execution.
func (s *OutputSink) LinesFor(execID string) []OutputLine {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []OutputLine
	for _, line := range s.lines {
		if line.ExecutionID == execID {
			result = append(result, line)
		}
	}
	return result
}

// Content returns all output joined by newlines.
func (s *OutputSink) Content() string {
	return joinContent(s.Lines())
}

func joinContent(lines []OutputLine) string {
	if len(lines) == 0 {
		return ""
	}
	var b strings.Builder
	for i, line := range lines {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(line.Content)
	}
	return b.String()
}
