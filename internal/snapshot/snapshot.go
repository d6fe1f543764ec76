// Package snapshot persists the live orchestrator state so external tools
// can poll run progress and a crash mid-run leaves an inspectable record.
package snapshot

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"
	"unicode/utf8"

	"github.com/throw-if-null/covalent/internal/api"
	"github.com/throw-if-null/covalent/internal/paths"
)

// result previews are bounded so snapshots stay small
const resultSnippetLen = 200

// Recorder overwrites a single shared state file, last write wins. Calls
// must be serialized by the caller; the orchestrator drives them from its
// drain loop only.
type Recorder struct {
	path string
}

func NewRecorder(root string) *Recorder {
	return &Recorder{path: paths.StateFile(root)}
}

// Path returns the state file location.
func (r *Recorder) Path() string { return r.path }

// Write serializes the current view of the session and replaces the state
// file. The write goes through a temp file and rename so pollers never see
// a torn snapshot.
func (r *Recorder) Write(s *api.Session) error {
	return r.write(Build(s))
}

func (r *Recorder) write(snap api.Snapshot) error {
	b, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(r.path), "state-*.json")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, r.path); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return nil
}

// WritePartial is the drain-loop variant of Write: only tasks listed in
// done have been handed back by the pool, so only their mutable fields are
// safe to read. Everything else is rendered from immutable derivation
// fields, with started deciding between running and still-queued pending.
func (r *Recorder) WritePartial(s *api.Session, done map[string]bool, started func(id string) bool) error {
	return r.write(BuildPartial(s, done, started))
}

// Build renders the snapshot record for a session without writing it. The
// caller must own every task, i.e. no pool worker may still be running.
func Build(s *api.Session) api.Snapshot {
	snap := api.Snapshot{
		SessionID: s.SessionID,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Objective: s.Objective,
		Tasks:     make([]api.TaskSnapshot, 0, len(s.Tasks)),
	}
	for _, t := range s.Tasks {
		snap.Tasks = append(snap.Tasks, api.TaskSnapshot{
			ID:            t.ID,
			Name:          t.Name,
			Status:        t.Status,
			StartedAt:     t.StartedAt,
			EndedAt:       t.EndedAt,
			ResultSnippet: snippet(t.Result),
		})
	}
	return snap
}

// BuildPartial renders a mid-drain snapshot. Tasks in done are read fully;
// the rest are still owned by the pool and are rendered without timestamps
// as running once dispatched to a worker slot, pending while queued.
func BuildPartial(s *api.Session, done map[string]bool, started func(id string) bool) api.Snapshot {
	snap := api.Snapshot{
		SessionID: s.SessionID,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Objective: s.Objective,
		Tasks:     make([]api.TaskSnapshot, 0, len(s.Tasks)),
	}
	for _, t := range s.Tasks {
		if !done[t.ID] {
			status := api.StatusPending
			if started != nil && started(t.ID) {
				status = api.StatusRunning
			}
			snap.Tasks = append(snap.Tasks, api.TaskSnapshot{
				ID:     t.ID,
				Name:   t.Name,
				Status: status,
			})
			continue
		}
		snap.Tasks = append(snap.Tasks, api.TaskSnapshot{
			ID:            t.ID,
			Name:          t.Name,
			Status:        t.Status,
			StartedAt:     t.StartedAt,
			EndedAt:       t.EndedAt,
			ResultSnippet: snippet(t.Result),
		})
	}
	return snap
}

// Read loads a previously written snapshot.
func Read(root string) (*api.Snapshot, error) {
	b, err := os.ReadFile(paths.StateFile(root))
	if err != nil {
		return nil, err
	}
	var snap api.Snapshot
	if err := json.Unmarshal(b, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

func snippet(s string) string {
	if len(s) <= resultSnippetLen {
		return s
	}
	n := resultSnippetLen
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
