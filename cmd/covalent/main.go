package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/joho/godotenv"
	_ "modernc.org/sqlite"

	"github.com/throw-if-null/covalent/internal/config"
	"github.com/throw-if-null/covalent/internal/orchestrator"
	"github.com/throw-if-null/covalent/internal/paths"
	"github.com/throw-if-null/covalent/internal/snapshot"
	"github.com/throw-if-null/covalent/internal/store"
	"github.com/throw-if-null/covalent/internal/telemetry"
	"github.com/throw-if-null/covalent/internal/version"
)

// overridable in tests
var (
	dotenvLoad    = godotenv.Load
	telemetryInit = telemetry.Init
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		usage(stderr)
		return 2
	}

	switch args[0] {
	case "run":
		return cmdRun(args[1:], stdout, stderr)
	case "status":
		return cmdStatus(args[1:], stdout, stderr)
	case "history":
		return cmdHistory(args[1:], stdout, stderr)
	case "version":
		fmt.Fprintf(stdout, "covalent %s (%s)\n", version.Version, version.Commit)
		return 0
	default:
		usage(stderr)
		return 2
	}
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "usage:")
	fmt.Fprintln(w, "  covalent run \"<objective>\" [--agents N] [--mock] [--root DIR]")
	fmt.Fprintln(w, "  covalent status [--root DIR]")
	fmt.Fprintln(w, "  covalent history [--limit N] [--session ID] [--root DIR]")
	fmt.Fprintln(w, "  covalent version")
}

func cmdRun(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.SetOutput(stderr)
	agents := fs.Int("agents", -1, "number of parallel agents (default from config)")
	mock := fs.Bool("mock", false, "mock agent execution")
	rootFlag := fs.String("root", "", "orchestrator root directory")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	// the objective may come before the flags; re-parse whatever followed it
	rest := fs.Args()
	if len(rest) == 0 || rest[0] == "" {
		fmt.Fprintln(stderr, "run requires exactly one objective argument")
		fs.Usage()
		return 2
	}
	objective := rest[0]
	if err := fs.Parse(rest[1:]); err != nil {
		return 2
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(stderr, "run requires exactly one objective argument")
		fs.Usage()
		return 2
	}

	// best-effort .env for COVALENT_* overrides
	_ = dotenvLoad()

	root, err := resolveRoot(*rootFlag)
	if err != nil {
		fmt.Fprintln(stderr, err.Error())
		return 1
	}

	res := config.Load(root)
	if res.ParseError != nil {
		fmt.Fprintf(stderr, "failed to parse %s: %v\n", res.Path, res.ParseError)
		return 1
	}
	cfg := res.Config

	if *agents < 0 {
		*agents = cfg.Orchestrator.AgentCount
	}
	runMock := *mock || cfg.Orchestrator.Mock

	ctx := context.Background()

	if ep := os.Getenv("COVALENT_OTLP_ENDPOINT"); ep != "" {
		cfg.Telemetry.Enabled = true
		cfg.Telemetry.OTLPEndpoint = ep
	}
	if cfg.Telemetry.Enabled {
		shutdown, err := telemetryInit(ctx, telemetry.Config{
			ServiceName:    "covalent",
			ServiceVersion: version.Version,
			OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		})
		if err != nil {
			log.Printf("telemetry init failed: %v", err)
		} else {
			defer func() { _ = shutdown(context.Background()) }()
		}
	}

	if err := paths.EnsureDirs(root); err != nil {
		fmt.Fprintf(stderr, "failed to prepare data dir: %v\n", err)
		return 1
	}

	history := openHistory(root)

	orch := orchestrator.New(orchestrator.Options{
		Root:       root,
		Objective:  objective,
		AgentCount: *agents,
		Mock:       runMock,
		Config:     cfg,
		History:    history,
	})

	reportPath, err := orch.Run(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "run failed: %v\n", err)
		return 1
	}

	fmt.Fprintf(stdout, "session: %s\n", orch.Session().SessionID)
	fmt.Fprintf(stdout, "report: %s\n", reportPath)
	return 0
}

// openHistory opens the sqlite history store. History is observational, so
// any failure here degrades to a nil store with a logged warning.
func openHistory(root string) *store.Store {
	db, err := sql.Open("sqlite", paths.HistoryDB(root))
	if err != nil {
		log.Printf("history disabled: open db: %v", err)
		return nil
	}
	s := store.New(db)
	if err := s.Init(); err != nil {
		log.Printf("history disabled: init schema: %v", err)
		_ = db.Close()
		return nil
	}
	return s
}

func cmdStatus(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	fs.SetOutput(stderr)
	rootFlag := fs.String("root", "", "orchestrator root directory")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	root, err := resolveRoot(*rootFlag)
	if err != nil {
		fmt.Fprintln(stderr, err.Error())
		return 1
	}

	snap, err := snapshot.Read(root)
	if err != nil {
		if os.IsNotExist(err) {
			fmt.Fprintln(stderr, "no state recorded yet")
			return 1
		}
		fmt.Fprintf(stderr, "failed to read state: %v\n", err)
		return 1
	}

	fmt.Fprintf(stdout, "session: %s\n", snap.SessionID)
	fmt.Fprintf(stdout, "objective: %s\n", snap.Objective)
	fmt.Fprintf(stdout, "as of: %s\n", snap.Timestamp)
	for _, t := range snap.Tasks {
		fmt.Fprintf(stdout, "  %-24s %s\n", t.Name, t.Status)
	}
	return 0
}

func cmdHistory(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	fs.SetOutput(stderr)
	limit := fs.Int("limit", 10, "max sessions to list (0 = all)")
	sessionID := fs.String("session", "", "show one session's task runs (full or short id)")
	rootFlag := fs.String("root", "", "orchestrator root directory")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	root, err := resolveRoot(*rootFlag)
	if err != nil {
		fmt.Fprintln(stderr, err.Error())
		return 1
	}

	db, err := sql.Open("sqlite", paths.HistoryDB(root))
	if err != nil {
		fmt.Fprintf(stderr, "failed to open history: %v\n", err)
		return 1
	}
	defer db.Close()

	s := store.New(db)
	if err := s.Init(); err != nil {
		fmt.Fprintf(stderr, "failed to init history: %v\n", err)
		return 1
	}

	if *sessionID != "" {
		return historyDetail(s, *sessionID, stdout, stderr)
	}

	sessions, err := s.ListSessions(*limit)
	if err != nil {
		fmt.Fprintf(stderr, "failed to list sessions: %v\n", err)
		return 1
	}
	if len(sessions) == 0 {
		fmt.Fprintln(stdout, "no sessions recorded")
		return 0
	}
	for _, sess := range sessions {
		state := "running"
		if sess.FinishedAt != "" {
			state = "finished"
		}
		fmt.Fprintf(stdout, "%s  %s  agents=%d  %s  %s\n", paths.ShortID(sess.SessionID), sess.CreatedAt, sess.AgentCount, state, sess.Objective)
	}
	return 0
}

// historyDetail prints one session's header and its task runs. Short ids as
// printed by the list view are accepted as unique prefixes.
func historyDetail(s *store.Store, id string, stdout, stderr io.Writer) int {
	sess, err := s.GetSession(id)
	if errors.Is(err, store.ErrNotFound) {
		sess, err = findSessionByPrefix(s, id)
	}
	if err != nil {
		fmt.Fprintf(stderr, "failed to resolve session %q: %v\n", id, err)
		return 1
	}

	fmt.Fprintf(stdout, "session: %s\n", sess.SessionID)
	fmt.Fprintf(stdout, "objective: %s\n", sess.Objective)
	fmt.Fprintf(stdout, "created: %s\n", sess.CreatedAt)
	if sess.FinishedAt != "" {
		fmt.Fprintf(stdout, "finished: %s\n", sess.FinishedAt)
		fmt.Fprintf(stdout, "report: %s\n", sess.ReportPath)
	}

	runs, err := s.ListTaskRuns(sess.SessionID)
	if err != nil {
		fmt.Fprintf(stderr, "failed to list task runs: %v\n", err)
		return 1
	}
	for _, r := range runs {
		line := fmt.Sprintf("  %-24s %s", r.Name, r.Status)
		if r.ErrorSummary != "" {
			line += "  " + r.ErrorSummary
		}
		fmt.Fprintln(stdout, line)
	}
	return 0
}

func findSessionByPrefix(s *store.Store, prefix string) (*store.SessionRow, error) {
	sessions, err := s.ListSessions(0)
	if err != nil {
		return nil, err
	}
	var match *store.SessionRow
	for _, cand := range sessions {
		if !strings.HasPrefix(cand.SessionID, prefix) {
			continue
		}
		if match != nil {
			return nil, fmt.Errorf("ambiguous session id prefix %q", prefix)
		}
		match = cand
	}
	if match == nil {
		return nil, store.ErrNotFound
	}
	return match, nil
}

func resolveRoot(flagVal string) (string, error) {
	if flagVal != "" {
		return flagVal, nil
	}
	if env := os.Getenv("COVALENT_ROOT"); env != "" {
		return env, nil
	}
	wd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to resolve working directory: %w", err)
	}
	return wd, nil
}
