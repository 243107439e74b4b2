package engine

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/dshills/uebuild/internal/unreal"
)

// Marker describes the per-project file that persists a resolved engine
// root as a single KEY=<path> line.
type Marker struct {
	FileName string
	Key      string
}

// DefaultMarker returns the ".ue-engine" / ENGINE_PATH marker.
func DefaultMarker() Marker {
	return Marker{FileName: ".ue-engine", Key: "ENGINE_PATH"}
}

// Path returns the marker location inside projectDir.
func (m Marker) Path(projectDir string) string {
	return filepath.Join(projectDir, m.FileName)
}

// Read returns the path stored in projectDir's marker file.
// A missing file yields unreal.ErrNotFound; a file without the expected
// key yields unreal.ErrInvalidInput.
func (m Marker) Read(projectDir string) (string, error) {
	data, err := os.ReadFile(m.Path(projectDir))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", unreal.ErrNotFound, m.Path(projectDir))
		}
		return "", fmt.Errorf("read marker: %w", err)
	}

	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok || strings.TrimSpace(key) != m.Key {
			return "", fmt.Errorf("%w: marker %s: expected %s=<path>", unreal.ErrInvalidInput, m.Path(projectDir), m.Key)
		}
		value = strings.TrimSpace(value)
		if value == "" {
			return "", fmt.Errorf("%w: marker %s: empty path", unreal.ErrInvalidInput, m.Path(projectDir))
		}
		return value, nil
	}
	return "", fmt.Errorf("%w: marker %s is empty", unreal.ErrInvalidInput, m.Path(projectDir))
}

// Write stores root in projectDir's marker file, replacing any content.
func (m Marker) Write(projectDir, root string) error {
	line := m.Key + "=" + root + "\n"
	if err := os.WriteFile(m.Path(projectDir), []byte(line), 0o644); err != nil {
		return fmt.Errorf("write marker: %w", err)
	}
	return nil
}
