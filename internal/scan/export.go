package scan

import (
	"io"
	"os"
	"path/filepath"
)

// CSVSource writes a tag table as CSV. *Controller implements it.
type CSVSource interface {
	WriteCSV(w io.Writer) error
}

// ExportFile writes src to path, creating missing parent directories.
func ExportFile(src CSVSource, path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := src.WriteCSV(f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
