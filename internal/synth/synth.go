// Package synth compiles the final report once every task has terminated.
package synth

import (
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/throw-if-null/covalent/internal/api"
	"github.com/throw-if-null/covalent/internal/paths"
)

const promptPreviewLen = 100

// Render builds the markdown synthesis report: a session header, then one
// section per task in derivation order. It only reads task state.
func Render(s *api.Session) string {
	var b strings.Builder
	b.WriteString("# Parallel Agents Synthesis Report\n")
	fmt.Fprintf(&b, "**Session ID**: %s\n", s.SessionID)
	fmt.Fprintf(&b, "**Main Objective**: %s\n\n", s.Objective)
	b.WriteString("---\n\n")

	for _, t := range s.Tasks {
		fmt.Fprintf(&b, "### %s\n", t.Name)
		fmt.Fprintf(&b, "- **Task**: %s...\n", preview(t.Prompt))
		fmt.Fprintf(&b, "- **Status**: %s\n", t.Status)
		result := t.Result
		if result == "" {
			result = "No output generated."
		}
		fmt.Fprintf(&b, "- **Key Findings**:\n\n%s\n\n", result)
		b.WriteString("---\n\n")
	}
	return b.String()
}

// Write renders the report and persists it to the session-namespaced path
// under root. Reports from different sessions never overwrite each other.
func Write(root string, s *api.Session) (string, error) {
	path, err := paths.ReportFile(root, s.SessionID)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, []byte(Render(s)), 0o644); err != nil {
		return "", err
	}
	return path, nil
}

func preview(s string) string {
	if len(s) <= promptPreviewLen {
		return s
	}
	n := promptPreviewLen
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
