package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/throw-if-null/covalent/internal/telemetry"
)

func setupRoot(t *testing.T) string {
	t.Helper()
	d, err := os.MkdirTemp("", "covalent-main-test-")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(d) })

	// fast mock delays so the end-to-end run finishes quickly
	cc := filepath.Join(d, ".covalent")
	if err := os.Mkdir(cc, 0o755); err != nil {
		t.Fatal(err)
	}
	content := `
[agents]
mock_delay_min_ms = 1
mock_delay_max_ms = 2
`
	if err := os.WriteFile(filepath.Join(cc, "config.toml"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return d
}

func muteExternals(t *testing.T) {
	t.Helper()
	oldDot := dotenvLoad
	dotenvLoad = func(...string) error { return nil }
	oldInit := telemetryInit
	telemetryInit = func(context.Context, telemetry.Config) (func(context.Context) error, error) {
		return func(context.Context) error { return nil }, nil
	}
	t.Cleanup(func() {
		dotenvLoad = oldDot
		telemetryInit = oldInit
	})
}

func TestRunCommand_EndToEndMock(t *testing.T) {
	muteExternals(t)
	root := setupRoot(t)

	var stdout, stderr bytes.Buffer
	code := run([]string{"run", "--agents", "2", "--mock", "--root", root, "Review the login flow"}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("run exit code %d, stderr=%s", code, stderr.String())
	}
	out := stdout.String()
	if !strings.Contains(out, "session: ") || !strings.Contains(out, "report: ") {
		t.Fatalf("unexpected run output: %s", out)
	}

	// the printed report path exists and has two sections
	var reportPath string
	for _, line := range strings.Split(out, "\n") {
		if strings.HasPrefix(line, "report: ") {
			reportPath = strings.TrimPrefix(line, "report: ")
		}
	}
	b, err := os.ReadFile(reportPath)
	if err != nil {
		t.Fatalf("read report %q: %v", reportPath, err)
	}
	if strings.Count(string(b), "### ") != 2 {
		t.Fatalf("expected 2 sections in report:\n%s", string(b))
	}

	// status shows the drained run
	stdout.Reset()
	stderr.Reset()
	code = run([]string{"status", "--root", root}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("status exit code %d, stderr=%s", code, stderr.String())
	}
	if !strings.Contains(stdout.String(), "Review the login flow") {
		t.Fatalf("status output missing objective: %s", stdout.String())
	}
	if !strings.Contains(stdout.String(), "completed") {
		t.Fatalf("status output missing completed tasks: %s", stdout.String())
	}

	// history lists the finished session
	stdout.Reset()
	stderr.Reset()
	code = run([]string{"history", "--root", root}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("history exit code %d, stderr=%s", code, stderr.String())
	}
	if !strings.Contains(stdout.String(), "finished") || !strings.Contains(stdout.String(), "Review the login flow") {
		t.Fatalf("history output: %s", stdout.String())
	}
}

func TestHistoryCommand_SessionDetail(t *testing.T) {
	muteExternals(t)
	root := setupRoot(t)

	var stdout, stderr bytes.Buffer
	code := run([]string{"run", "--agents", "2", "--mock", "--root", root, "Review the login flow"}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("run exit code %d, stderr=%s", code, stderr.String())
	}
	var sessionID string
	for _, line := range strings.Split(stdout.String(), "\n") {
		if strings.HasPrefix(line, "session: ") {
			sessionID = strings.TrimPrefix(line, "session: ")
		}
	}
	if sessionID == "" {
		t.Fatalf("session id not printed: %s", stdout.String())
	}

	// the short id shown in the list view resolves as a prefix
	stdout.Reset()
	stderr.Reset()
	code = run([]string{"history", "--session", sessionID[:8], "--root", root}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("history detail exit code %d, stderr=%s", code, stderr.String())
	}
	out := stdout.String()
	if !strings.Contains(out, "session: "+sessionID) || !strings.Contains(out, "Review the login flow") {
		t.Fatalf("detail header missing: %s", out)
	}
	if strings.Count(out, "completed") != 2 {
		t.Fatalf("expected 2 completed task runs: %s", out)
	}
	if !strings.Contains(out, "finished: ") || !strings.Contains(out, "report: ") {
		t.Fatalf("finalized session fields missing: %s", out)
	}

	stdout.Reset()
	stderr.Reset()
	if code := run([]string{"history", "--session", "deadbeef", "--root", root}, &stdout, &stderr); code != 1 {
		t.Fatalf("expected exit 1 for unknown session, got %d", code)
	}
}

func TestStatusCommand_NoState(t *testing.T) {
	muteExternals(t)
	d, err := os.MkdirTemp("", "covalent-main-test-")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(d)

	var stdout, stderr bytes.Buffer
	code := run([]string{"status", "--root", d}, &stdout, &stderr)
	if code != 1 {
		t.Fatalf("expected exit 1, got %d", code)
	}
	if !strings.Contains(stderr.String(), "no state recorded") {
		t.Fatalf("stderr: %s", stderr.String())
	}
}

func TestRunCommand_ObjectiveBeforeFlags(t *testing.T) {
	muteExternals(t)
	root := setupRoot(t)

	// the usage line puts the objective first; both orders must parse
	var stdout, stderr bytes.Buffer
	code := run([]string{"run", "Review the login flow", "--agents", "2", "--mock", "--root", root}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("run exit code %d, stderr=%s", code, stderr.String())
	}
	if !strings.Contains(stdout.String(), "report: ") {
		t.Fatalf("unexpected run output: %s", stdout.String())
	}
}

func TestRunCommand_RejectsTwoObjectives(t *testing.T) {
	muteExternals(t)
	var stdout, stderr bytes.Buffer
	code := run([]string{"run", "first objective", "--mock", "second objective"}, &stdout, &stderr)
	if code != 2 {
		t.Fatalf("expected exit 2, got %d", code)
	}
}

func TestRunCommand_RequiresObjective(t *testing.T) {
	muteExternals(t)
	var stdout, stderr bytes.Buffer
	code := run([]string{"run", "--mock"}, &stdout, &stderr)
	if code != 2 {
		t.Fatalf("expected exit 2, got %d", code)
	}
}

func TestVersionCommand(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run([]string{"version"}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("version exit code %d", code)
	}
	if !strings.HasPrefix(stdout.String(), "covalent ") {
		t.Fatalf("version output: %s", stdout.String())
	}
}

func TestUnknownCommand(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if code := run([]string{"bogus"}, &stdout, &stderr); code != 2 {
		t.Fatalf("expected exit 2 for unknown command")
	}
	if !strings.Contains(stderr.String(), "usage:") {
		t.Fatalf("usage not printed: %s", stderr.String())
	}
}
