package prompts

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

// WrapUpPrompt handles the ctx-wrap-up MCP prompt.
// It has the AI write a session summary whose decisions are captured as
// drafts.
type WrapUpPrompt struct{}

// NewWrapUpPrompt creates a WrapUpPrompt.
func NewWrapUpPrompt() *WrapUpPrompt {
	return &WrapUpPrompt{}
}

// Definition returns the MCP prompt definition for registration.
func (p *WrapUpPrompt) Definition() mcp.Prompt {
	return mcp.NewPrompt("ctx-wrap-up",
		mcp.WithPromptDescription(
			"End a session: save a summary of what was done and capture "+
				"the decisions made as drafts for later confirmation.",
		),
		mcp.WithArgument("workspace",
			mcp.ArgumentDescription("Workspace key"),
			mcp.RequiredArgument(),
		),
		mcp.WithArgument("project",
			mcp.ArgumentDescription("Project key"),
			mcp.RequiredArgument(),
		),
	)
}

// Handle processes the ctx-wrap-up prompt request.
func (p *WrapUpPrompt) Handle(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	workspace := argument(req, "workspace", "")
	project := argument(req, "project", "")
	if workspace == "" || project == "" {
		return nil, fmt.Errorf("ctx-wrap-up needs both 'workspace' and 'project'")
	}

	return &mcp.GetPromptResult{
		Description: fmt.Sprintf("Wrap up session in %s/%s", workspace, project),
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.NewTextContent(fmt.Sprintf(
					"We're done for now. Please:\n"+
						"1. Write a short summary of this session: goal, what changed, what is left\n"+
						"2. End it with a `## Decisions` section listing each decision we made as a numbered item\n"+
						"3. Run `ctx_memory_save` with workspace='%s', project='%s', type='summary', "+
						"capture_decisions=true and the summary as content\n"+
						"4. Tell me how many decisions were captured so I can confirm them later",
					workspace, project,
				)),
			},
		},
	}, nil
}
