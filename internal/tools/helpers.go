// Package tools implements the MCP tool handlers of hoofy-guard.
//
// Each tool receives its dependencies via its struct and exposes a
// Definition for registration and a Handle compatible with mcp-go's
// CallToolRequest signature. Arguments are read raw with GetArguments and
// normalized by the params package, so hosts that wrap, stringify or
// rename payloads are still understood.
package tools

import (
	"context"
	"errors"
	"fmt"

	"github.com/HendryAvila/hoofy-guard/internal/audit"
	"github.com/HendryAvila/hoofy-guard/internal/params"
	"github.com/HendryAvila/hoofy-guard/internal/validation"
	"github.com/HendryAvila/hoofy-guard/internal/writer"
	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"
)

// BatchWriter applies a file batch atomically.
type BatchWriter interface {
	ApplyBatch(ctx context.Context, batch []writer.FileMutation) ([]writer.WriteOutcome, error)
}

// Validator runs one validation.
type Validator interface {
	Validate(ctx context.Context, typ string, opts validation.Options) *validation.Result
}

// Journal records runs for guard_history. A nil Journal disables recording.
type Journal interface {
	RecordBatch(b audit.Batch) (string, error)
	RecordValidation(v audit.Validation) (string, error)
	Recent(kind string, limit int) ([]audit.Entry, error)
}

// argumentError renders a params rejection as a tool error the caller can act on.
func argumentError(what string, err error) *mcp.CallToolResult {
	msg := fmt.Sprintf("Invalid %s: %v", what, err)

	var me *params.MutationError
	switch {
	case errors.Is(err, params.ErrMissing):
		msg += "\n\nThe parameter is required."
	case errors.Is(err, params.ErrEmpty):
		msg += "\n\nThe parameter was sent but is empty."
	case errors.As(err, &me) && me.Index >= 0:
		msg += fmt.Sprintf("\n\nNo file was written; fix mutation %d and resend the whole batch.", me.Index)
	}
	return mcp.NewToolResultError(msg)
}

// record runs fn against the journal when one is configured. Journal
// failures never fail the tool call.
func record(j Journal, log *zap.Logger, fn func(Journal) (string, error)) {
	if j == nil {
		return
	}
	if id, err := fn(j); err != nil {
		log.Warn("recording to journal", zap.Error(err))
	} else {
		log.Debug("recorded to journal", zap.String("id", id))
	}
}

// intArg extracts an integer argument from a tool request, returning
// defaultVal if the key is missing or not a number (JSON numbers are float64).
func intArg(req mcp.CallToolRequest, key string, defaultVal int) int {
	v, ok := req.GetArguments()[key].(float64)
	if !ok {
		return defaultVal
	}
	return int(v)
}

func loggerOrNop(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}
