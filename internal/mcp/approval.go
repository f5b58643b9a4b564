package mcpserver

import (
	"context"
	"log"
)

// Approver decides whether a destructive tool call may proceed.
type Approver interface {
	Request(ctx context.Context, tool, description string) (bool, error)
}

// AutoApprove allows every request and logs it.
type AutoApprove struct{}

func (AutoApprove) Request(_ context.Context, tool, description string) (bool, error) {
	log.Printf("[MCP] auto-approved %s: %s", tool, description)
	return true, nil
}

// DenyAll rejects every request.
type DenyAll struct{}

func (DenyAll) Request(_ context.Context, tool, description string) (bool, error) {
	log.Printf("[MCP] rejected %s: %s (server started without --allow-run)", tool, description)
	return false, nil
}

// ApproverFunc adapts a function to Approver.
type ApproverFunc func(ctx context.Context, tool, description string) (bool, error)

func (f ApproverFunc) Request(ctx context.Context, tool, description string) (bool, error) {
	return f(ctx, tool, description)
}
