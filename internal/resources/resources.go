// Package resources implements MCP resource handlers for hoofy-guard.
//
// Resources provide read-only data that the host can consume for context.
// They use URI-based addressing (guard://...) following MCP conventions.
package resources

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/HendryAvila/hoofy-guard/internal/validation"
	"github.com/mark3labs/mcp-go/mcp"
)

// CommandsURI addresses the validation command table.
const CommandsURI = "guard://commands"

// CommandTable lists the registered validation commands.
type CommandTable interface {
	Entries() []validation.Entry
}

// Handler manages guard resource endpoints.
type Handler struct {
	commands CommandTable
	root     string
}

// NewHandler creates a resource Handler with its dependencies.
func NewHandler(commands CommandTable, root string) *Handler {
	return &Handler{commands: commands, root: root}
}

// commandsDocument is the JSON body of guard://commands.
type commandsDocument struct {
	Root     string             `json:"root"`
	Commands []validation.Entry `json:"commands"`
}

// CommandsResource returns the MCP resource definition for the command table.
func (h *Handler) CommandsResource() mcp.Resource {
	return mcp.NewResource(
		CommandsURI,
		"Validation Commands",
		mcp.WithResourceDescription("Validation types with their check command, fix variant and config flag"),
		mcp.WithMIMEType("application/json"),
	)
}

// HandleCommands returns the command table as JSON.
func (h *Handler) HandleCommands(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	if h.commands == nil {
		return errorResource(req.Params.URI, "no command table configured"), nil
	}

	data, err := json.MarshalIndent(commandsDocument{Root: h.root, Commands: h.commands.Entries()}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling commands: %w", err)
	}

	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      req.Params.URI,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

// errorResource returns a resource with an error message.
func errorResource(uri, message string) []mcp.ResourceContents {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "text/plain",
			Text:     fmt.Sprintf("Error: %s", message),
		},
	}
}
