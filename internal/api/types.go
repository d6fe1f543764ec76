package api

type TaskStatus string

const (
	StatusPending   TaskStatus = "pending"
	StatusRunning   TaskStatus = "running"
	StatusCompleted TaskStatus = "completed"
	StatusFailed    TaskStatus = "failed"
)

// Terminal reports whether s is a final task status.
func (s TaskStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Role is one entry of the static perspective table. Tasks are assigned a
// role by slot index modulo table size.
type Role struct {
	Perspective string   `json:"perspective" toml:"perspective"`
	Agent       string   `json:"agent" toml:"agent"`
	Skills      []string `json:"skills" toml:"skills"`
}

// Task is one unit of parallel work wrapping a single agent invocation.
// Exactly one pool worker writes its mutable fields; everything else reads
// them only after the pool has handed the task back.
type Task struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Prompt    string     `json:"prompt"`
	Role      Role       `json:"role"`
	Status    TaskStatus `json:"status"`
	StartedAt string     `json:"started_at,omitempty"`
	EndedAt   string     `json:"ended_at,omitempty"`
	Result    string     `json:"result,omitempty"`
	Error     string     `json:"error,omitempty"`
}

// Session is one end-to-end orchestrator run. The task list is fixed after
// derivation.
type Session struct {
	SessionID string  `json:"session_id"`
	Objective string  `json:"objective"`
	Tasks     []*Task `json:"tasks"`
}

// Snapshot is the persisted point-in-time view of a session, overwritten at
// a well-known path after every task completion. External tools may poll it.
type Snapshot struct {
	SessionID string         `json:"session_id"`
	Timestamp string         `json:"timestamp"`
	Objective string         `json:"objective"`
	Tasks     []TaskSnapshot `json:"tasks"`
}

type TaskSnapshot struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	Status        TaskStatus `json:"status"`
	StartedAt     string     `json:"started_at,omitempty"`
	EndedAt       string     `json:"ended_at,omitempty"`
	ResultSnippet string     `json:"result_snippet"`
}
