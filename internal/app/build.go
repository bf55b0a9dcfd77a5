package app

import (
	"fmt"
	"os"

	"github.com/anthropics/agent-orchestrator/graph"
	"github.com/anthropics/agent-orchestrator/graph/emit"
	"github.com/anthropics/agent-orchestrator/graph/store"
	"github.com/anthropics/agent-orchestrator/internal/agent"
	"github.com/anthropics/agent-orchestrator/internal/budget"
	"github.com/anthropics/agent-orchestrator/internal/config"
	"github.com/anthropics/agent-orchestrator/internal/events"
	"github.com/anthropics/agent-orchestrator/internal/hooks"
	"github.com/anthropics/agent-orchestrator/internal/nodes"
	"github.com/anthropics/agent-orchestrator/internal/observability"
	"github.com/anthropics/agent-orchestrator/internal/repository"
	"github.com/anthropics/agent-orchestrator/internal/workflow"
	"github.com/anthropics/agent-orchestrator/internal/workspace"
)

// Options configures one Build call. ProjectDir and ProjectName are
// required; everything else falls back to spec.md §6 defaults.
type Options struct {
	ProjectDir  string
	ProjectName string
	Mode        workflow.ExecutionMode

	// StorePath, when set, persists engine steps/checkpoints to a SQLite
	// file at this path instead of the teacher's in-memory store. Runs
	// that should survive a process restart (anything other than a quick
	// local smoke run) want this set.
	StorePath string

	// RepositoryPath, when set, opens an internal/repository.Repository
	// backed by SQLite at this path for the project-scoped query surface
	// (logs/events/checkpoints) that sits alongside, not instead of, the
	// engine's own store. Empty uses an in-memory repository.
	RepositoryPath string

	// LogJSON switches the event sink from human-readable to NDJSON.
	LogJSON bool

	// WriteHandoff persists the completion node's rendered brief; nil
	// skips persistence (callers embedding the engine in a test harness
	// commonly leave this nil).
	WriteHandoff func(markdown string) error
}

// Built bundles everything Build assembles, so callers (the CLI, tests) can
// reach the pieces they need without re-deriving them.
type Built struct {
	Runner     *workflow.Runner
	Deps       *nodes.Deps
	Repository repository.Repository
	Aggregator *observability.ErrorAggregator
	Config     config.Config
	Mode       workflow.ExecutionMode
}

// InitialState returns the WorkflowState a fresh Run should start from:
// project identity and mode set, phase/task fields zero.
func (b *Built) InitialState() workflow.WorkflowState {
	return workflow.WorkflowState{
		ProjectName:   b.Deps.ProjectName,
		ProjectDir:    b.Deps.ProjectDir,
		ExecutionMode: b.Mode,
		CurrentPhase:  int(workflow.PhasePlanning),
	}
}

// Build assembles one project's full node graph: every node named in
// spec.md §4.6-§4.8, wired with shared Deps, into a workflow.Runner ready
// for Run/Resume. This is the Go equivalent of
// orchestrator/langgraph/workflow.py's graph-construction function, adapted
// to the teacher's Engine[S].Add/Connect/StartAt builder instead of
// langgraph's StateGraph.add_node/add_edge.
func Build(opts Options) (*Built, error) {
	if opts.ProjectDir == "" || opts.ProjectName == "" {
		return nil, fmt.Errorf("app: ProjectDir and ProjectName are required")
	}
	mode := opts.Mode
	if mode == "" {
		mode = workflow.ModeAutonomous
	}

	cfg, err := config.Load(opts.ProjectDir)
	if err != nil {
		return nil, fmt.Errorf("app: loading config: %w", err)
	}

	repo, err := buildRepository(opts.RepositoryPath)
	if err != nil {
		return nil, fmt.Errorf("app: opening repository: %w", err)
	}

	engineStore, err := buildStore(opts.StorePath)
	if err != nil {
		return nil, fmt.Errorf("app: opening engine store: %w", err)
	}

	sink := emit.NewLogEmitter(os.Stderr, opts.LogJSON)
	emitter := events.NewEmitter(sink, opts.ProjectName)

	subAgent := agent.NewSubprocessAgent(opts.ProjectDir)
	agents := map[string]agent.Agent{
		"claude": subAgent,
		"cursor": subAgent,
		"gemini": subAgent,
	}

	budgetMgr := budget.NewManager(opts.ProjectName,
		cfg.Retry.Agent.InitialInterval*float64(cfg.Retry.MaxTaskLoopIterations),
		cfg.Retry.Implementation.InitialInterval*float64(cfg.Retry.MaxTaskLoopIterations)*2,
		0.4, true)

	deps := &nodes.Deps{
		ProjectName: opts.ProjectName,
		ProjectDir:  opts.ProjectDir,
		Agents:      agents,
		Budget:      budgetMgr,
		Events:      emitter,
		Config:      cfg,
		Hooks:       hooks.New(opts.ProjectDir),
		RunTests:    NewTestRunner(opts.ProjectDir, cfg.Workflow),
	}

	aggregator := observability.NewErrorAggregator()
	worktrees := &workspace.Manager{ProjectDir: opts.ProjectDir}

	nodeMap := map[string]graph.Node[workflow.WorkflowState]{
		"planning":                 &nodes.PlanningNode{Deps: deps},
		"validate":                 &nodes.ValidateNode{Deps: deps},
		"merge-validation":         &nodes.MergeValidationNode{Deps: deps},
		"task-breakdown":           &nodes.TaskBreakdownNode{Deps: deps},
		"select-task":              &nodes.SelectTaskNode{Deps: deps},
		"write-tests":              &nodes.WriteTestsNode{Deps: deps},
		"implement-task":           &nodes.ImplementTaskNode{Deps: deps},
		"implement-tasks-parallel": &nodes.ImplementTasksParallelNode{Deps: deps, Worktrees: worktrees},
		"verify-task":              &nodes.VerifyTaskNode{Deps: deps},
		"verify-tasks-parallel":    &nodes.VerifyTasksParallelNode{Deps: deps},
		"fix-bug":                  &nodes.FixBugNode{Deps: deps},
		"verify":                   &nodes.VerifyNode{Deps: deps},
		"merge-verification":       &nodes.MergeVerificationNode{Deps: deps},
		"quality-gate":             &nodes.QualityGateNode{Deps: deps},
		"security-gate":            &nodes.SecurityGateNode{Deps: deps},
		"error-dispatch":           &nodes.ErrorDispatchNode{Deps: deps, Aggregator: aggregator},
		"completion":               &nodes.CompletionNode{Deps: deps, Aggregator: aggregator, WriteHandoff: opts.WriteHandoff},
	}

	// Every node above self-routes via graph.NodeResult.Route (Goto/Stop/
	// Interrupted); none falls back to edge-based routing, so no Connect
	// edges need registering here.
	runner, err := workflow.New(engineStore, sink, "planning", nodeMap, nil)
	if err != nil {
		return nil, fmt.Errorf("app: building engine: %w", err)
	}

	return &Built{Runner: runner, Deps: deps, Repository: repo, Aggregator: aggregator, Config: cfg, Mode: mode}, nil
}

func buildRepository(path string) (repository.Repository, error) {
	if path == "" {
		return repository.NewMemRepository(), nil
	}
	return repository.NewSQLiteRepository(path)
}

func buildStore(path string) (store.Store[workflow.WorkflowState], error) {
	if path == "" {
		return store.NewMemStore[workflow.WorkflowState](), nil
	}
	return store.NewSQLiteStore[workflow.WorkflowState](path)
}
