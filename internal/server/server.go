// Package server wires all hoofctx components and creates the MCP server.
//
// This is the composition root: it opens the store, builds the engine
// components over it and injects them into the tool handlers. No business
// logic lives here, only wiring.
package server

import (
	"fmt"

	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/HendryAvila/hoofctx/internal/activework"
	"github.com/HendryAvila/hoofctx/internal/bundle"
	"github.com/HendryAvila/hoofctx/internal/cache"
	"github.com/HendryAvila/hoofctx/internal/config"
	"github.com/HendryAvila/hoofctx/internal/directory"
	"github.com/HendryAvila/hoofctx/internal/model"
	"github.com/HendryAvila/hoofctx/internal/persona"
	"github.com/HendryAvila/hoofctx/internal/prompts"
	"github.com/HendryAvila/hoofctx/internal/resources"
	"github.com/HendryAvila/hoofctx/internal/rules"
	"github.com/HendryAvila/hoofctx/internal/store/sqlite"
	"github.com/HendryAvila/hoofctx/internal/tools"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Engine holds the wired components shared by the MCP server and the CLI
// commands.
type Engine struct {
	Config     *config.Config
	Store      *sqlite.Store
	Directory  *directory.Resolver
	Reconciler *activework.Reconciler
	Sweeper    *activework.Sweeper
	Bundles    *bundle.Orchestrator
	Personas   *persona.Chain
}

// NewEngine opens the configured database and builds every component over
// it. Close releases the database.
func NewEngine(cfg *config.Config, logger *zap.Logger) (*Engine, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	path, err := cfg.ResolveDatabasePath()
	if err != nil {
		return nil, err
	}
	st, err := sqlite.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	words := cfg.Words()

	dirOpts := []directory.Option{directory.WithDefaultPolicy(cfg.ActiveWork.Policy)}
	if ttl := cfg.Directory.CacheTTL; ttl > 0 {
		dirOpts = append(dirOpts, directory.WithCaches(
			cache.NewTTL[model.Workspace](ttl, nil),
			cache.NewTTL[model.Project](ttl, nil),
		))
	}
	dir := directory.New(st, dirOpts...)

	reconciler := activework.NewReconciler(st, activework.NewInferencer(words),
		activework.WithLogger(logger.Named("activework")))
	sweeper := activework.NewSweeper(st, reconciler,
		activework.WithConcurrency(cfg.ActiveWork.SweepConcurrency),
		activework.WithPolicy(dir.Policy),
		activework.WithSweepLogger(logger.Named("sweep")))
	assembler := rules.NewAssembler(st, rules.WithLogger(logger.Named("rules")))
	chain := persona.DefaultChain(persona.NewRecommender(words), logger.Named("persona"))
	bundles := bundle.New(st, dir, assembler, reconciler,
		bundle.WithRetriever(st),
		bundle.WithPersonaChain(chain),
		bundle.WithSettings(bundle.SettingsFrom(cfg)),
		bundle.WithLogger(logger.Named("bundle")))

	logger.Debug("engine ready", zap.String("database", path))
	return &Engine{
		Config:     cfg,
		Store:      st,
		Directory:  dir,
		Reconciler: reconciler,
		Sweeper:    sweeper,
		Bundles:    bundles,
		Personas:   chain,
	}, nil
}

// Close closes the store's database connection.
func (e *Engine) Close() error {
	return e.Store.Close()
}

// New creates the MCP server with every hoofctx tool registered.
func New(e *Engine) *server.MCPServer {
	s := server.NewMCPServer(
		"hoofctx",
		Version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithPromptCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(serverInstructions()),
	)

	// --- Context ---
	bundleTool := tools.NewBundleTool(e.Bundles)
	s.AddTool(bundleTool.Definition(), bundleTool.Handle)

	personaTool := tools.NewPersonaTool(e.Store, e.Store, e.Personas)
	s.AddTool(personaTool.Definition(), personaTool.Handle)

	memorySearch := tools.NewMemorySearchTool(e.Directory, e.Store, e.Config.Retrieval.Boosts)
	s.AddTool(memorySearch.Definition(), memorySearch.Handle)

	// --- Active work ---
	recomputeTool := tools.NewRecomputeTool(e.Directory, e.Reconciler)
	s.AddTool(recomputeTool.Definition(), recomputeTool.Handle)

	listTool := tools.NewActiveWorkListTool(e.Directory, e.Store, e.Reconciler)
	s.AddTool(listTool.Definition(), listTool.Handle)

	transitionTool := tools.NewTransitionTool(e.Directory, e.Reconciler)
	s.AddTool(transitionTool.Definition(), transitionTool.Handle)

	// --- Writes ---
	ruleSave := tools.NewRuleSaveTool(e.Store, e.Store)
	s.AddTool(ruleSave.Definition(), ruleSave.Handle)

	memorySave := tools.NewMemorySaveTool(e.Store, e.Store)
	s.AddTool(memorySave.Definition(), memorySave.Handle)

	eventRecord := tools.NewEventRecordTool(e.Store, e.Store)
	s.AddTool(eventRecord.Definition(), eventRecord.Handle)

	memoryManage := tools.NewMemoryManageTool(e.Directory, e.Store)
	s.AddTool(memoryManage.Definition(), memoryManage.Handle)

	settings := tools.NewWorkspaceSettingsTool(e.Store, e.Directory)
	s.AddTool(settings.Definition(), settings.Handle)

	// --- Prompts ---
	startPrompt := prompts.NewStartPrompt()
	s.AddPrompt(startPrompt.Definition(), startPrompt.Handle)

	wrapUpPrompt := prompts.NewWrapUpPrompt()
	s.AddPrompt(wrapUpPrompt.Definition(), wrapUpPrompt.Handle)

	// --- Resources ---
	resourceHandler := resources.NewHandler(e.Store, e.Directory, e.Store)
	s.AddResource(resourceHandler.WorkspacesResource(), resourceHandler.HandleWorkspaces)
	s.AddResourceTemplate(resourceHandler.ActiveWorkTemplate(), resourceHandler.HandleActiveWork)

	return s
}

// serverInstructions returns the system instructions that tell the AI
// how to use hoofctx.
func serverInstructions() string {
	return `You have access to hoofctx, a context engine for coding assistants.

## START OF EVERY TASK
Call ctx_bundle with the workspace and project keys, plus a short 'query'
describing the task and the 'subpath' you are working in. The bundle holds:
- global.workspace_rules / global.user_rules: rules you MUST follow
- snapshot: confirmed decisions, constraints, active work and recent activity
- retrieval: memories relevant to the query, weighted for your persona

Respect the token budget: ask for mode=debug only when you need to explain
why something was or was not included.

## WHILE WORKING
- Save decisions, constraints and goals with ctx_memory_save as they happen.
- At the end of a session, save a summary with capture_decisions=true and a
  "## Decisions" section so each decision is captured as a draft.
- New standing rules go through ctx_rule_save.
- Captured decisions are drafts: find them with ctx_memory_search and confirm
  them with ctx_memory_manage once the user agrees.

## ACTIVE WORK
Active work is inferred from repository events (ctx_event_record, usually
called by git hooks). Use ctx_active_work_recompute to refresh it and
ctx_active_work_transition to confirm what the user is really working on or
close what is done. ctx_workspace_settings turns on activity auto-logging,
which also enrolls the workspace in the nightly sweep.

## PROMPTS AND RESOURCES
- ctx-start loads the bundle for a task; ctx-wrap-up saves the session summary.
- hoofctx://workspaces lists workspaces and projects.
- hoofctx://{workspace}/{project}/active-work shows a project's open work.`
}
