// Package prompts implements MCP prompt handlers for hoofctx.
//
// MCP prompts are user-triggered workflows (like slash commands) that
// instruct the AI to execute a specific sequence. Unlike tools (which
// the AI calls), prompts are initiated by the user.
package prompts

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// StartPrompt handles the ctx-start MCP prompt.
// It has the AI load the context bundle before touching a task.
type StartPrompt struct{}

// NewStartPrompt creates a StartPrompt.
func NewStartPrompt() *StartPrompt {
	return &StartPrompt{}
}

// Definition returns the MCP prompt definition for registration.
func (p *StartPrompt) Definition() mcp.Prompt {
	return mcp.NewPrompt("ctx-start",
		mcp.WithPromptDescription(
			"Start a task with the project's context loaded: rules to follow, "+
				"confirmed decisions, active work and relevant memories.",
		),
		mcp.WithArgument("workspace",
			mcp.ArgumentDescription("Workspace key"),
			mcp.RequiredArgument(),
		),
		mcp.WithArgument("project",
			mcp.ArgumentDescription("Project key"),
			mcp.RequiredArgument(),
		),
		mcp.WithArgument("task",
			mcp.ArgumentDescription("What you want to work on"),
		),
		mcp.WithArgument("subpath",
			mcp.ArgumentDescription("Repository area you are working in"),
		),
	)
}

// Handle processes the ctx-start prompt request.
func (p *StartPrompt) Handle(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	workspace := argument(req, "workspace", "")
	project := argument(req, "project", "")
	if workspace == "" || project == "" {
		return nil, fmt.Errorf("ctx-start needs both 'workspace' and 'project'")
	}
	task := argument(req, "task", "")
	subpath := argument(req, "subpath", "")

	var call strings.Builder
	fmt.Fprintf(&call, "workspace='%s', project='%s'", workspace, project)
	if task != "" {
		fmt.Fprintf(&call, ", query='%s'", task)
	}
	if subpath != "" {
		fmt.Fprintf(&call, ", subpath='%s'", subpath)
	}

	ask := "Ask me what I want to work on, then start."
	if task != "" {
		ask = fmt.Sprintf("The task: %s", task)
	}

	return &mcp.GetPromptResult{
		Description: fmt.Sprintf("Start task in %s/%s", workspace, project),
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.NewTextContent(fmt.Sprintf(
					"Before working, load the project context.\n\n"+
						"1. Run `ctx_bundle` with %s\n"+
						"2. Treat every workspace and user rule in the bundle as binding\n"+
						"3. Summarize in two or three lines the decisions and active work that matter for this task\n"+
						"4. If the active work looks wrong, tell me and offer `ctx_active_work_transition`\n\n"+
						"%s",
					call.String(), ask,
				)),
			},
		},
	}, nil
}

// argument returns a trimmed prompt argument, or def when it is missing.
func argument(req mcp.GetPromptRequest, name, def string) string {
	if args := req.Params.Arguments; args != nil {
		if v := strings.TrimSpace(args[name]); v != "" {
			return v
		}
	}
	return def
}
