package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"

	"github.com/throw-if-null/covalent/internal/api"
	"github.com/throw-if-null/covalent/internal/paths"
)

type Config struct {
	Orchestrator OrchestratorConfig `toml:"orchestrator"`
	Agents       AgentsConfig       `toml:"agents"`
	Telemetry    TelemetryConfig    `toml:"telemetry"`
	Roles        []api.Role         `toml:"roles"`
}

type OrchestratorConfig struct {
	AgentCount int  `toml:"agent_count"`
	Mock       bool `toml:"mock"`
	// TimeoutMS bounds a single task's runtime. Zero means no timeout; a
	// hung agent command then hangs its task until the process exits.
	TimeoutMS int `toml:"timeout_ms"`
	// MaxWorkers caps pool parallelism. Zero means one worker slot per task.
	MaxWorkers int `toml:"max_workers"`
}

type AgentsConfig struct {
	// Command is the agent argv; the rendered task prompt is appended as
	// the sole extra argument.
	Command        []string `toml:"command"`
	MockDelayMinMS int      `toml:"mock_delay_min_ms"`
	MockDelayMaxMS int      `toml:"mock_delay_max_ms"`
}

type TelemetryConfig struct {
	Enabled      bool   `toml:"enabled"`
	OTLPEndpoint string `toml:"otlp_endpoint"`
}

func Default() Config {
	return Config{
		Orchestrator: OrchestratorConfig{AgentCount: 3},
		Agents:       AgentsConfig{Command: []string{"claude"}, MockDelayMinMS: 2000, MockDelayMaxMS: 5000},
		Telemetry:    TelemetryConfig{Enabled: false},
		Roles:        DefaultRoles(),
	}
}

// DefaultRoles is the built-in perspective table. Task slot i gets entry
// i % len(table); the wraparound is deliberate when agent count exceeds
// table size.
func DefaultRoles() []api.Role {
	return []api.Role{
		{Perspective: "Architecture & Security", Agent: "security-auditor", Skills: []string{"security-checklist", "api-patterns"}},
		{Perspective: "Backend Implementation", Agent: "backend-specialist", Skills: []string{"nodejs-best-practices", "api-patterns"}},
		{Perspective: "Frontend & UI/UX", Agent: "frontend-specialist", Skills: []string{"react-patterns", "tailwind-patterns"}},
		{Perspective: "Testing", Agent: "test-engineer", Skills: []string{"testing-patterns", "webapp-testing"}},
		{Perspective: "DevOps & Performance", Agent: "devops-engineer", Skills: []string{"deployment-procedures", "server-management"}},
	}
}

var (
	ErrInvalid = errors.New("invalid config")
)

type LoadResult struct {
	Config     Config
	Found      bool
	Path       string
	ParseError error
}

func Load(root string) LoadResult {
	res := LoadResult{Config: Default()}
	path := filepath.Join(root, paths.DirName, "config.toml")
	res.Path = path

	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return res
		}
		res.ParseError = err
		return res
	}

	res.Found = true
	var parsed Config
	if err := toml.Unmarshal(b, &parsed); err != nil {
		res.ParseError = fmt.Errorf("%w: %v", ErrInvalid, err)
		return res
	}

	res.Config = merge(Default(), parsed)
	return res
}

func merge(def Config, cfg Config) Config {
	// Orchestrator
	if cfg.Orchestrator.AgentCount != 0 {
		def.Orchestrator.AgentCount = cfg.Orchestrator.AgentCount
	}
	def.Orchestrator.Mock = cfg.Orchestrator.Mock
	if cfg.Orchestrator.TimeoutMS != 0 {
		def.Orchestrator.TimeoutMS = cfg.Orchestrator.TimeoutMS
	}
	if cfg.Orchestrator.MaxWorkers != 0 {
		def.Orchestrator.MaxWorkers = cfg.Orchestrator.MaxWorkers
	}
	// Agents
	if len(cfg.Agents.Command) != 0 {
		def.Agents.Command = cfg.Agents.Command
	}
	if cfg.Agents.MockDelayMinMS != 0 {
		def.Agents.MockDelayMinMS = cfg.Agents.MockDelayMinMS
	}
	if cfg.Agents.MockDelayMaxMS != 0 {
		def.Agents.MockDelayMaxMS = cfg.Agents.MockDelayMaxMS
	}
	// Telemetry
	def.Telemetry.Enabled = cfg.Telemetry.Enabled
	if cfg.Telemetry.OTLPEndpoint != "" {
		def.Telemetry.OTLPEndpoint = cfg.Telemetry.OTLPEndpoint
	}
	// Roles: a non-empty [[roles]] list replaces the built-in table wholesale.
	if len(cfg.Roles) != 0 {
		def.Roles = cfg.Roles
	}
	return def
}
