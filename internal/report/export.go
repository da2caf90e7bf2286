package report

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/atotto/clipboard"
)

// ErrClipboardUnavailable is returned when no system clipboard can be used.
var ErrClipboardUnavailable = errors.New("clipboard unavailable")

// Exporter persists a rendered report under name and returns where it went.
type Exporter interface {
	Export(ctx context.Context, name, doc string) (string, error)
}

// Clipboard receives the share summary.
type Clipboard interface {
	WriteAll(text string) error
}

// DirExporter writes reports into a local directory.
type DirExporter struct {
	Dir string
}

// Export writes doc to Dir/name, creating Dir if needed.
func (d DirExporter) Export(_ context.Context, name, doc string) (string, error) {
	if name != filepath.Base(name) {
		return "", fmt.Errorf("export: invalid report name %q", name)
	}
	dir := d.Dir
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("export: create dir: %w", err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		return "", fmt.Errorf("export: write report: %w", err)
	}
	return path, nil
}

// clipboardWriteAll is a package-level variable to allow mocking in tests.
var clipboardWriteAll = clipboard.WriteAll

// SystemClipboard writes to the OS clipboard.
type SystemClipboard struct{}

// WriteAll copies text to the system clipboard.
func (SystemClipboard) WriteAll(text string) error {
	if clipboard.Unsupported {
		return ErrClipboardUnavailable
	}
	if err := clipboardWriteAll(text); err != nil {
		return fmt.Errorf("clipboard: %w", err)
	}
	return nil
}
