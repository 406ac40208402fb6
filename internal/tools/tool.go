package tools

import (
	"context"

	"github.com/ironclaw/core/pkg/models"
)

// Tool is the polymorphic handle the registry stores: everything the
// executor needs to validate, dispatch, and classify a call without
// knowing the concrete tool's implementation.
type Tool interface {
	Descriptor() models.ToolDescriptor
	Execute(ctx context.Context, params []byte, jobCtx *models.JobContext) (models.ToolOutput, error)
}

// Func adapts a plain function plus a static descriptor into a Tool,
// for the common case of a tool with no extra state.
type Func struct {
	descriptor models.ToolDescriptor
	fn         func(ctx context.Context, params []byte, jobCtx *models.JobContext) (models.ToolOutput, error)
}

// NewFunc builds a Tool from a descriptor and an execution function.
func NewFunc(descriptor models.ToolDescriptor, fn func(ctx context.Context, params []byte, jobCtx *models.JobContext) (models.ToolOutput, error)) *Func {
	return &Func{descriptor: descriptor, fn: fn}
}

func (f *Func) Descriptor() models.ToolDescriptor { return f.descriptor }

func (f *Func) Execute(ctx context.Context, params []byte, jobCtx *models.JobContext) (models.ToolOutput, error) {
	return f.fn(ctx, params, jobCtx)
}
