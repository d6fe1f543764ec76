// Package orchestrator sequences one session: derive tasks, persist state,
// drain the pool, synthesize.
package orchestrator

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/throw-if-null/covalent/internal/api"
	"github.com/throw-if-null/covalent/internal/config"
	"github.com/throw-if-null/covalent/internal/paths"
	"github.com/throw-if-null/covalent/internal/pool"
	"github.com/throw-if-null/covalent/internal/roles"
	"github.com/throw-if-null/covalent/internal/snapshot"
	"github.com/throw-if-null/covalent/internal/store"
	"github.com/throw-if-null/covalent/internal/synth"
	"github.com/throw-if-null/covalent/internal/task"
)

type Options struct {
	Root       string
	Objective  string
	AgentCount int
	Mock       bool
	Config     config.Config

	// History is optional; a nil store disables session history. Store
	// failures during a run are logged, never fatal: the JSON snapshot and
	// the report are the contract-bearing artifacts.
	History *store.Store

	// Runner and Sleep are test injection points.
	Runner task.CommandRunner
	Sleep  func(time.Duration)
}

type Orchestrator struct {
	opts    Options
	session *api.Session
}

func New(opts Options) *Orchestrator {
	return &Orchestrator{
		opts: opts,
		session: &api.Session{
			SessionID: uuid.NewString(),
			Objective: opts.Objective,
		},
	}
}

// Session exposes the run's session, fully populated after Run returns.
func (o *Orchestrator) Session() *api.Session { return o.session }

// Run executes the full sequence and returns the synthesis report path.
// Individual task failures are captured on the tasks and never abort the
// run; only sequencing failures (directories, snapshot writes, report
// write) are returned as errors. Synthesis runs whenever the pool drains,
// even if every task failed.
func (o *Orchestrator) Run(ctx context.Context) (string, error) {
	tr := otel.Tracer("covalent")
	ctx, span := tr.Start(ctx, "covalent.run",
		trace.WithAttributes(attribute.String("session.id", o.session.SessionID)),
	)
	defer span.End()

	fail := func(err error) (string, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	if err := paths.EnsureDirs(o.opts.Root); err != nil {
		return fail(err)
	}

	o.session.Tasks = roles.Derive(o.opts.Objective, o.opts.AgentCount, o.opts.Config.Roles)
	span.SetAttributes(attribute.Int("session.tasks", len(o.session.Tasks)))
	span.AddEvent("run.derived")

	recorder := snapshot.NewRecorder(o.opts.Root)
	if err := recorder.Write(o.session); err != nil {
		return fail(err)
	}

	if o.opts.History != nil {
		if err := o.opts.History.CreateSession(o.session.SessionID, o.session.Objective, len(o.session.Tasks), o.opts.Mock); err != nil {
			log.Printf("history: create session failed: %v", err)
		}
	}

	exec := o.executor()
	log.Printf("orchestrator started: session=%s agents=%d mock=%v", o.session.SessionID, len(o.session.Tasks), o.opts.Mock)

	var drainErr error
	done := make(map[string]bool, len(o.session.Tasks))
	completions, started := pool.Run(ctx, o.session.Tasks, o.opts.Config.Orchestrator.MaxWorkers, exec.Execute)
	for t := range completions {
		log.Printf("%s finished: %s", t.Name, t.Status)
		done[t.ID] = true
		if o.opts.History != nil {
			if err := o.opts.History.RecordTaskRun(o.session.SessionID, t); err != nil {
				log.Printf("history: record task run failed: %v", err)
			}
		}
		// keep draining even after a snapshot failure so no worker is
		// abandoned mid-flight; the error surfaces once the pool is done
		if err := recorder.WritePartial(o.session, done, started); err != nil && drainErr == nil {
			drainErr = err
		}
	}
	span.AddEvent("run.drained")
	if drainErr != nil {
		return fail(drainErr)
	}

	log.Printf("synthesizing results for session %s", o.session.SessionID)
	reportPath, err := synth.Write(o.opts.Root, o.session)
	if err != nil {
		return fail(err)
	}
	span.AddEvent("run.synthesized")

	if o.opts.History != nil {
		if err := o.opts.History.FinishSession(o.session.SessionID, reportPath); err != nil {
			log.Printf("history: finish session failed: %v", err)
		}
	}

	log.Printf("synthesis report generated: %s", reportPath)
	span.SetStatus(codes.Ok, "")
	return reportPath, nil
}

func (o *Orchestrator) executor() *task.Executor {
	cfg := o.opts.Config
	return &task.Executor{
		Command:      cfg.Agents.Command,
		Runner:       o.opts.Runner,
		Mock:         o.opts.Mock,
		Objective:    o.opts.Objective,
		MockDelayMin: time.Duration(cfg.Agents.MockDelayMinMS) * time.Millisecond,
		MockDelayMax: time.Duration(cfg.Agents.MockDelayMaxMS) * time.Millisecond,
		Sleep:        o.opts.Sleep,
		Timeout:      time.Duration(cfg.Orchestrator.TimeoutMS) * time.Millisecond,
	}
}
