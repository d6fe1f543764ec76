// Package pool fans tasks out to a bounded set of worker slots and yields
// them back in completion order.
package pool

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/throw-if-null/covalent/internal/api"
)

// Run executes every task exactly once via exec, with at most workers tasks
// in flight (workers <= 0 means one slot per task). Tasks are sent on the
// returned channel as they terminate; the order is load-dependent and must
// not be relied upon. The channel is closed only after every task has been
// yielded, so no task is silently dropped.
//
// The returned predicate reports whether a task id has been dispatched to a
// worker slot; tasks still queued behind the cap have not started. It is
// safe to call while the pool is draining.
//
// A panic escaping exec is recovered at the pool boundary: it is logged, the
// task is marked failed unless already terminal, and sibling tasks keep
// running.
func Run(ctx context.Context, tasks []*api.Task, workers int, exec func(context.Context, *api.Task)) (<-chan *api.Task, func(id string) bool) {
	out := make(chan *api.Task)
	var mu sync.Mutex
	dispatched := make(map[string]bool, len(tasks))
	started := func(id string) bool {
		mu.Lock()
		defer mu.Unlock()
		return dispatched[id]
	}
	if len(tasks) == 0 {
		close(out)
		return out, started
	}
	if workers <= 0 || workers > len(tasks) {
		workers = len(tasks)
	}
	sem := make(chan struct{}, workers)

	var wg sync.WaitGroup
	for _, t := range tasks {
		wg.Add(1)
		go func(t *api.Task) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			mu.Lock()
			dispatched[t.ID] = true
			mu.Unlock()
			defer func() {
				if r := recover(); r != nil {
					log.Printf("task %s crashed: %v", t.Name, r)
					if !t.Status.Terminal() {
						now := time.Now().UTC().Format(time.RFC3339Nano)
						if t.StartedAt == "" {
							t.StartedAt = now
						}
						t.Status = api.StatusFailed
						t.Error = fmt.Sprintf("worker panic: %v", r)
						t.EndedAt = now
					}
				}
				out <- t
			}()
			exec(ctx, t)
		}(t)
	}

	go func() {
		wg.Wait()
		close(out)
	}()
	return out, started
}
