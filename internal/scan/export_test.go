package scan

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"bcms_scan_go/internal/domain"
)

func TestExportFileCreatesParents(t *testing.T) {
	r := newRig(t, true)
	r.agg.AddOrMergeRead(domain.TagRead{TID: "T1", EPC: "34AA", RSSI: -45, ObservedAt: time.Now()})

	path := filepath.Join(t.TempDir(), "nested", "out", "tags.csv")
	if err := ExportFile(r.ctrl, path); err != nil {
		t.Fatalf("export: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read export: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 || !strings.Contains(lines[1], "34AA") {
		t.Fatalf("unexpected export %q", data)
	}
}

type failingSource struct{}

func (failingSource) WriteCSV(io.Writer) error { return errors.New("table gone") }

func TestExportFileReportsWriteError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tags.csv")
	if err := ExportFile(failingSource{}, path); err == nil || err.Error() != "table gone" {
		t.Fatalf("expected write error, got %v", err)
	}
}
