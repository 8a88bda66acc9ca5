// Package core defines the shared contracts between tools, agents, and workflows.
package core

import "context"

// Tool is an executable capability an agent or workflow step can invoke.
type Tool interface {
	Name() string
	Call(ctx context.Context, input any) (any, error)
}
