package result

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"pmcharness/internal/counter"
	appErr "pmcharness/pkg/errors"
)

func appendRows(t *testing.T, path string, ids []string, rows ...Sample) {
	t.Helper()
	s, err := Open(path, ids)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	for _, row := range rows {
		if err := s.Append(row); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestHeaderThenRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "monitor.out")
	appendRows(t, path, []string{"INSTR", "CYCLES"}, Sample{10, 20}, Sample{11, 21}, Sample{12, 22})

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	want := "INSTR|CYCLES|\n10|20|\n11|21|\n12|22|\n"
	if string(data) != want {
		t.Fatalf("file = %q, want %q", string(data), want)
	}
}

func TestReopenAppendsWithoutHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "monitor.out")
	ids := []string{"INST_RETIRED.ANY_P"}
	appendRows(t, path, ids, Sample{1}, Sample{2})
	appendRows(t, path, ids, Sample{3}, Sample{4}, Sample{5})

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	lines := strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
	if len(lines) != 6 {
		t.Fatalf("lines = %d, want 6: %q", len(lines), lines)
	}
	if lines[0] != "INST_RETIRED.ANY_P|" {
		t.Fatalf("header = %q", lines[0])
	}
	for _, line := range lines[1:] {
		if line == lines[0] {
			t.Fatalf("header repeated: %q", lines)
		}
	}
}

func TestMismatchedHeaderRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "monitor.out")
	appendRows(t, path, []string{"A", "B"}, Sample{1, 2})

	_, err := Open(path, []string{"A", "C"})
	if !appErr.Is(err, appErr.UsageFailure) {
		t.Fatalf("expected usage failure, got %v", err)
	}
}

func TestAppendWidthMismatch(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "monitor.out"), []string{"A", "B"})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()
	if err := s.Append(Sample{1}); !appErr.Is(err, appErr.IOFailure) {
		t.Fatalf("expected io failure, got %v", err)
	}
}

func TestOpenWithoutCounters(t *testing.T) {
	if _, err := Open(filepath.Join(t.TempDir(), "x.out"), nil); err == nil {
		t.Fatalf("expected error")
	}
}

func TestAttackerPath(t *testing.T) {
	if got := AttackerPath("results/run.out"); got != "results/run.out.attacker" {
		t.Fatalf("AttackerPath() = %q", got)
	}
}

func TestDump(t *testing.T) {
	var buf bytes.Buffer
	specs := counter.Specs{{Key: "BR_MISP_RETIRED", Mask: "ALL", Config: 0x4300c5, Full: "0x4300c5", Description: "mispredicts"}}
	Dump(&buf, "victim", 2, []string{"INSTRUCTIONS_RETIRED"}, specs, Sample{1000, 7})

	out := buf.String()
	for _, want := range []string{"[victim #2]", "INSTRUCTIONS_RETIRED", "BR_MISP_RETIRED.ALL", "config=0x4300c5", "mispredicts"} {
		if !strings.Contains(out, want) {
			t.Fatalf("dump missing %q:\n%s", want, out)
		}
	}
}
