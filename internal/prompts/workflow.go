// Package prompts implements MCP prompt handlers for hoofy-guard.
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

// WorkflowPrompt handles the guard-workflow MCP prompt.
// It asks the AI to make a change as one batch and validate it before
// reporting back.
type WorkflowPrompt struct {
	types []string
}

// NewWorkflowPrompt creates a WorkflowPrompt. types lists the validation
// types the server knows about.
func NewWorkflowPrompt(types []string) *WorkflowPrompt {
	return &WorkflowPrompt{types: types}
}

// Definition returns the MCP prompt definition for registration.
func (p *WorkflowPrompt) Definition() mcp.Prompt {
	return mcp.NewPrompt("guard-workflow",
		mcp.WithPromptDescription(
			"Make a change safely: write every file in one atomic batch, "+
				"then validate it and fix what fails.",
		),
		mcp.WithArgument("task",
			mcp.ArgumentDescription("What to change"),
		),
		mcp.WithArgument("validations",
			mcp.ArgumentDescription("Comma-separated validation types to run after writing. Default: typescript,eslint,test"),
		),
	)
}

// Handle processes the guard-workflow prompt request.
func (p *WorkflowPrompt) Handle(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	task := "the change I describe next"
	validations := []string{"typescript", "eslint", "test"}
	if args := req.Params.Arguments; args != nil {
		if t := strings.TrimSpace(args["task"]); t != "" {
			task = t
		}
		if v := splitList(args["validations"]); len(v) > 0 {
			validations = v
		}
	}

	known := "any type configured in .hoofy-guard.yaml"
	if len(p.types) > 0 {
		known = strings.Join(p.types, ", ")
	}

	return &mcp.GetPromptResult{
		Description: fmt.Sprintf("Guarded change: %s", task),
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.NewTextContent(fmt.Sprintf(
					"Make this change: %s\n\n"+
						"Please:\n"+
						"1. Plan every file the change touches before writing anything\n"+
						"2. Write all of them with ONE `guard_write_files` call, each with its complete new content\n"+
						"3. If the batch is ROLLED BACK, nothing was changed: fix the reported file and resend the whole batch\n"+
						"4. Run `guard_validate` for each of: %s\n"+
						"5. For every FAILED validation, fix the reported errors with another batch and validate again\n"+
						"6. Stop when every validation PASSES, or after three rounds, and summarize what still fails\n\n"+
						"Known validation types: %s. Use `fix: true` for eslint and format issues marked [fixable].",
					task, strings.Join(validations, ", "), known,
				)),
			},
		},
	}, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, strings.ToLower(part))
		}
	}
	return out
}
