package paths

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

var (
	// ErrInvalidSessionID returned when a session id fails validation
	ErrInvalidSessionID = errors.New("invalid session id")
)

// DirName is the data directory created under the orchestrator root.
const DirName = ".covalent"

const maxSessionIDLen = 64

var sessionIDRe = regexp.MustCompile(`^[A-Za-z0-9._-]{1,` + strconv.Itoa(maxSessionIDLen) + `}$`)

// ValidateSessionID returns nil for allowed session ids, or ErrInvalidSessionID.
// Rules:
// - Only allow ASCII letters, digits, dot, underscore and dash.
// - Max length is 64.
// - Disallow any ".." substring to avoid traversal attempts.
// - This forbids path separators '/' and '\\' and characters like ':' used in drive letters.
func ValidateSessionID(id string) error {
	if id == "" {
		return fmt.Errorf("empty session id: %w", ErrInvalidSessionID)
	}
	if len(id) > maxSessionIDLen {
		return fmt.Errorf("session id too long: %w", ErrInvalidSessionID)
	}
	if strings.Contains(id, "..") {
		return fmt.Errorf("session id contains disallowed '..': %w", ErrInvalidSessionID)
	}
	if !sessionIDRe.MatchString(id) {
		return fmt.Errorf("session id contains invalid characters: %w", ErrInvalidSessionID)
	}
	return nil
}

// ShortID returns the first 8 characters of a session id, used to namespace
// report filenames.
func ShortID(sessionID string) string {
	if len(sessionID) <= 8 {
		return sessionID
	}
	return sessionID[:8]
}

// DataDir returns the data directory under root (e.g. "<root>/.covalent").
func DataDir(root string) string {
	return filepath.Join(root, DirName)
}

// StateFile returns the shared live-state snapshot path. It is overwritten
// on every write; there is one per root, not per session.
func StateFile(root string) string {
	return filepath.Join(root, DirName, "state.json")
}

// ReportsDir returns the directory holding synthesis reports.
func ReportsDir(root string) string {
	return filepath.Join(root, DirName, "reports")
}

// HistoryDB returns the sqlite history database path.
func HistoryDB(root string) string {
	return filepath.Join(root, DirName, "covalent.db")
}

// ReportFile returns the session-namespaced synthesis report path
// (e.g. "<root>/.covalent/reports/synthesis_report_<sid[:8]>.md").
func ReportFile(root, sessionID string) (string, error) {
	if err := ValidateSessionID(sessionID); err != nil {
		return "", err
	}
	rel := filepath.Join(DirName, "reports", fmt.Sprintf("synthesis_report_%s.md", ShortID(sessionID)))
	return SafeJoin(root, rel)
}

// EnsureDirs creates the data and reports directories under root.
func EnsureDirs(root string) error {
	if err := os.MkdirAll(DataDir(root), 0o755); err != nil {
		return err
	}
	return os.MkdirAll(ReportsDir(root), 0o755)
}

// SafeJoin joins root with rel and ensures the resulting path is inside root.
// Returns an error if the result would escape root or if inputs are absolute in unexpected ways.
func SafeJoin(root, rel string) (string, error) {
	if root == "" {
		return "", fmt.Errorf("empty root")
	}
	// If rel is absolute, joining will return rel; treat absolute rel as disallowed.
	if filepath.IsAbs(rel) {
		return "", fmt.Errorf("relative path expected, got absolute: %s", rel)
	}
	joined := filepath.Join(root, rel)
	cleaned := filepath.Clean(joined)
	// Make both absolute for reliable Rel behavior
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", err
	}
	absCleaned, err := filepath.Abs(cleaned)
	if err != nil {
		return "", err
	}
	relToRoot, err := filepath.Rel(absRoot, absCleaned)
	if err != nil {
		return "", err
	}
	if strings.HasPrefix(relToRoot, "..") || strings.HasPrefix(filepath.ToSlash(relToRoot), "../") {
		return "", fmt.Errorf("path escapes root: %s", rel)
	}
	return absCleaned, nil
}
