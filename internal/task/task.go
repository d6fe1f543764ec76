// Package task owns the single-task lifecycle: pending -> running ->
// completed|failed, exactly once, never reset.
package task

import (
	"bytes"
	"context"
	"fmt"
	"math/rand/v2"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/throw-if-null/covalent/internal/api"
)

// Executor runs one task to a terminal state. The zero value is not usable;
// set Command (real mode) or Mock.
type Executor struct {
	// Command is the agent argv. The task prompt is appended as the sole
	// extra argument.
	Command []string
	Runner  CommandRunner
	Dir     string

	Mock bool
	// Objective is the session objective; mock results quote its prefix so
	// reports stay recognizable without running a real agent.
	Objective    string
	MockDelayMin time.Duration
	MockDelayMax time.Duration
	// Sleep substitutes for time.Sleep in tests. Nil means time.Sleep.
	Sleep func(time.Duration)

	// Timeout bounds one task's runtime. Zero means no timeout.
	Timeout time.Duration
}

// Execute drives t from pending to a terminal status, emitting tracing spans
// and events for the key transitions. It never returns an error and never
// panics: all execution failures, including the command failing to launch,
// are captured on the task itself. The pool relies on that.
func (e *Executor) Execute(ctx context.Context, t *api.Task) {
	tr := otel.Tracer("covalent")
	ctx, span := tr.Start(
		ctx,
		"covalent.task",
		trace.WithNewRoot(),
		trace.WithAttributes(
			attribute.String("task.id", t.ID),
			attribute.String("task.agent", t.Name),
		),
	)
	defer span.End()

	t.Status = api.StatusRunning
	t.StartedAt = time.Now().UTC().Format(time.RFC3339Nano)
	span.AddEvent("task.started")

	if e.Mock {
		e.executeMock(t)
	} else {
		e.executeReal(ctx, t)
	}

	t.EndedAt = time.Now().UTC().Format(time.RFC3339Nano)
	if t.Status == api.StatusFailed {
		span.AddEvent("task.failed")
		span.SetStatus(codes.Error, t.Error)
		return
	}
	span.AddEvent("task.completed")
	span.SetStatus(codes.Ok, "")
}

func (e *Executor) executeMock(t *api.Task) {
	sleep := e.Sleep
	if sleep == nil {
		sleep = time.Sleep
	}
	sleep(e.mockDelay())
	subject := e.Objective
	if subject == "" {
		subject = t.Prompt
	}
	t.Result = fmt.Sprintf("MOCK RESULT for %s: Analyzed %s... found 3 issues.", t.Name, prefix(subject, 30))
	t.Status = api.StatusCompleted
}

func (e *Executor) executeReal(ctx context.Context, t *api.Task) {
	if len(e.Command) == 0 {
		t.Status = api.StatusFailed
		t.Error = "no agent command configured"
		return
	}

	if e.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.Timeout)
		defer cancel()
	}

	runner := e.Runner
	if runner == nil {
		runner = &RealCommandRunner{}
	}

	argv := append(append([]string{}, e.Command...), t.Prompt)
	var stdout, stderr bytes.Buffer
	exitCode, err := runner.Run(ctx, e.Dir, argv, nil, &stdout, &stderr)

	t.Result = stdout.String()
	if err == nil && exitCode == 0 {
		t.Status = api.StatusCompleted
		return
	}

	t.Status = api.StatusFailed
	switch {
	case ctx.Err() == context.DeadlineExceeded:
		t.Error = fmt.Sprintf("timed out after %s", e.Timeout)
	case stderr.Len() > 0:
		t.Error = stderr.String()
	case err != nil:
		t.Error = err.Error()
	default:
		t.Error = fmt.Sprintf("exit status %d", exitCode)
	}
}

func (e *Executor) mockDelay() time.Duration {
	min, max := e.MockDelayMin, e.MockDelayMax
	if min < 0 {
		min = 0
	}
	if max <= min {
		return min
	}
	return min + time.Duration(rand.Int64N(int64(max-min)))
}

func prefix(s string, n int) string {
	if len(s) <= n {
		return s
	}
	// back up to a rune boundary so multibyte text is never cut mid-rune
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
