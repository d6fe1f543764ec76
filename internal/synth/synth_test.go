package synth

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/throw-if-null/covalent/internal/api"
	"github.com/throw-if-null/covalent/internal/paths"
)

func TestRender_SectionsInDerivationOrder(t *testing.T) {
	s := &api.Session{
		SessionID: "b2f9c1aa-3c6f-4a8f-9f2e-0c1d2e3f4a5b",
		Objective: "Review the login flow",
		Tasks: []*api.Task{
			{Name: "security-auditor", Prompt: strings.Repeat("p", 150), Status: api.StatusCompleted, Result: "found nothing"},
			{Name: "backend-specialist", Prompt: "short prompt", Status: api.StatusFailed, Error: "not found"},
		},
	}

	out := Render(s)
	if !strings.Contains(out, "# Parallel Agents Synthesis Report") {
		t.Fatalf("missing header: %q", out)
	}
	if !strings.Contains(out, s.SessionID) || !strings.Contains(out, "Review the login flow") {
		t.Fatalf("missing session metadata")
	}
	first := strings.Index(out, "### security-auditor")
	second := strings.Index(out, "### backend-specialist")
	if first < 0 || second < 0 || second < first {
		t.Fatalf("sections missing or out of order: %d, %d", first, second)
	}
	// prompt preview is bounded
	if strings.Contains(out, strings.Repeat("p", 101)) {
		t.Fatalf("prompt preview not bounded")
	}
	if !strings.Contains(out, "found nothing") {
		t.Fatalf("full result text missing")
	}
	// failed task has explicit placeholder for empty result
	if !strings.Contains(out, "No output generated.") {
		t.Fatalf("empty-result placeholder missing")
	}
	if !strings.Contains(out, "**Status**: failed") {
		t.Fatalf("failed status missing")
	}
}

func TestRender_MultibytePromptPreview(t *testing.T) {
	s := &api.Session{
		SessionID: "sess-0",
		Objective: "obj",
		Tasks: []*api.Task{
			// a cut at the raw preview bound would split a rune here
			{Name: "security-auditor", Prompt: "a" + strings.Repeat("é", 80), Status: api.StatusCompleted, Result: "ok"},
		},
	}
	out := Render(s)
	if !utf8.ValidString(out) {
		t.Fatalf("report is not valid UTF-8: %q", out)
	}
}

func TestRender_EmptySession(t *testing.T) {
	s := &api.Session{SessionID: "sess-0", Objective: "noop"}
	out := Render(s)
	if !strings.Contains(out, "sess-0") {
		t.Fatalf("header missing for empty session")
	}
	if strings.Contains(out, "### ") {
		t.Fatalf("unexpected task section in empty session report")
	}
}

func TestWrite_SessionNamespacedPath(t *testing.T) {
	d, err := os.MkdirTemp("", "covalent-synth-test-")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(d)
	if err := paths.EnsureDirs(d); err != nil {
		t.Fatal(err)
	}

	s1 := &api.Session{SessionID: "aaaaaaaa-1111-4aaa-8aaa-aaaaaaaaaaaa", Objective: "one"}
	s2 := &api.Session{SessionID: "bbbbbbbb-2222-4bbb-8bbb-bbbbbbbbbbbb", Objective: "two"}

	p1, err := Write(d, s1)
	if err != nil {
		t.Fatalf("write s1: %v", err)
	}
	p2, err := Write(d, s2)
	if err != nil {
		t.Fatalf("write s2: %v", err)
	}
	if p1 == p2 {
		t.Fatalf("reports collided: %s", p1)
	}
	if filepath.Base(p1) != "synthesis_report_aaaaaaaa.md" {
		t.Fatalf("unexpected report name: %s", filepath.Base(p1))
	}

	b, err := os.ReadFile(p1)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	if !strings.Contains(string(b), "one") {
		t.Fatalf("report content: %q", string(b))
	}
}
