// Package roles derives the per-agent task list for one orchestrator run.
package roles

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/throw-if-null/covalent/internal/api"
)

// Derive fans one objective out into count tasks, pairing slot i with
// table[i % len(table)]. count <= 0 yields an empty list. Every task gets a
// fresh uuid; order is stable and matches slot index.
func Derive(objective string, count int, table []api.Role) []*api.Task {
	if count <= 0 || len(table) == 0 {
		return nil
	}
	tasks := make([]*api.Task, 0, count)
	for i := 0; i < count; i++ {
		role := table[i%len(table)]
		id := uuid.NewString()
		name := role.Agent
		if name == "" {
			name = "agent-" + id[:4]
		}
		tasks = append(tasks, &api.Task{
			ID:     id,
			Name:   name,
			Prompt: Render(role, objective),
			Role:   role,
			Status: api.StatusPending,
		})
	}
	return tasks
}

// Render produces the instruction handed to the agent command: it names the
// sub-agent, its skills and the perspective to focus on, then restates the
// objective.
func Render(role api.Role, objective string) string {
	return fmt.Sprintf("Use the %s agent with %s skills to focus on %s: %s",
		role.Agent, strings.Join(role.Skills, ", "), role.Perspective, objective)
}
