package paths_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/throw-if-null/covalent/internal/paths"
)

func TestValidateSessionIDGood(t *testing.T) {
	good := []string{"b2f9c1aa-3c6f-4a8f-9f2e-0c1d2e3f4a5b", "a", "A0._-"}
	for _, s := range good {
		if err := paths.ValidateSessionID(s); err != nil {
			t.Fatalf("expected valid for %q, got %v", s, err)
		}
	}
}

func TestValidateSessionIDBad(t *testing.T) {
	bad := []string{"", "a/b", "a\\b", "../x", "..\\x", "/abs", "C:\\x", "a b", strings.Repeat("x", 65)}
	for _, s := range bad {
		if err := paths.ValidateSessionID(s); err == nil {
			t.Fatalf("expected invalid for %q", s)
		}
	}
}

func TestShortID(t *testing.T) {
	if got := paths.ShortID("b2f9c1aa-3c6f-4a8f-9f2e-0c1d2e3f4a5b"); got != "b2f9c1aa" {
		t.Fatalf("short id: %q", got)
	}
	if got := paths.ShortID("abc"); got != "abc" {
		t.Fatalf("short id for short input: %q", got)
	}
}

func TestReportFile(t *testing.T) {
	p, err := paths.ReportFile("/tmp/root", "b2f9c1aa-3c6f-4a8f-9f2e-0c1d2e3f4a5b")
	if err != nil {
		t.Fatalf("report file: %v", err)
	}
	want := filepath.Join("/tmp/root", ".covalent", "reports", "synthesis_report_b2f9c1aa.md")
	if p != want {
		t.Fatalf("report file = %q, want %q", p, want)
	}

	if _, err := paths.ReportFile("/tmp/root", "../escape"); err == nil {
		t.Fatalf("expected error for traversal session id")
	}
}

func TestEnsureDirs(t *testing.T) {
	d, err := os.MkdirTemp("", "covalent-paths-test-")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(d)

	if err := paths.EnsureDirs(d); err != nil {
		t.Fatalf("ensure dirs: %v", err)
	}
	for _, p := range []string{paths.DataDir(d), paths.ReportsDir(d)} {
		fi, err := os.Stat(p)
		if err != nil || !fi.IsDir() {
			t.Fatalf("expected dir at %s: %v", p, err)
		}
	}
}

func TestSafeJoin(t *testing.T) {
	if _, err := paths.SafeJoin("/tmp/root", "../outside"); err == nil {
		t.Fatalf("expected escape error")
	}
	if _, err := paths.SafeJoin("/tmp/root", "/abs"); err == nil {
		t.Fatalf("expected absolute rejection")
	}
	p, err := paths.SafeJoin("/tmp/root", filepath.Join(".covalent", "state.json"))
	if err != nil {
		t.Fatalf("safe join: %v", err)
	}
	if !strings.HasSuffix(p, filepath.Join(".covalent", "state.json")) {
		t.Fatalf("unexpected join result: %q", p)
	}
}
