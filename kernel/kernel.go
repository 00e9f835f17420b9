// Package kernel defines what the bridge needs from a computation engine ("kernel"): synchronous
// evaluation, rasterization of results, symbol listings for completion, and a stream of
// asynchronous messages printed by the kernel while an evaluation is running.
//
// Process is the implementation used by the binary. It drives an external program over its
// standard input and output with newline delimited JSON packets, so any kernel can be plugged in
// through a small adapter script.
package kernel

import (
	"context"

	"github.com/pkg/errors"
)

var (
	ErrNotConnected = errors.New("kernel not connected")
	ErrKernelExited = errors.New("kernel exited")
)

// Expr is the structured result of an evaluation.
type Expr struct {
	// head symbol, eg. "Graphics" or "List"
	Head string `json:"head"`
	// direct sub expressions, only needed to look into the first element of lists
	Args []Expr `json:"args,omitempty"`
	// input form of the whole expression
	Text string `json:"text,omitempty"`
}

// First returns the first sub expression, or nil.
func (e *Expr) First() *Expr {
	if e == nil || len(e.Args) == 0 {
		return nil
	}
	return &e.Args[0]
}

// MessageKind tells apart plain printed output from kernel warnings.
type MessageKind int

const (
	Info MessageKind = iota
	Warning
)

func (k MessageKind) String() string {
	switch k {
	case Info:
		return "info"
	case Warning:
		return "warning"
	default:
		return "unknown"
	}
}

// Message is output the kernel emits on its own while evaluating, before the result.
type Message struct {
	Kind MessageKind
	Text string
}

// Engine is a stateful connection to a kernel. Implementations are not safe for concurrent use,
// callers serialize access.
type Engine interface {
	Connect(ctx context.Context) error
	Disconnect() error
	// Evaluate returns nil if the evaluation has no result (eg. input ending in a semicolon)
	Evaluate(ctx context.Context, text string) (*Expr, error)
	// EvaluateToImage rasterizes an evaluation result, nil means no image could be produced.
	EvaluateToImage(ctx context.Context, source *Expr) ([]byte, error)
	// Contexts lists the kernel context search path, eg. "Global`", "System`"
	Contexts(ctx context.Context) ([]string, error)
	// Names lists the symbol names under the context prefix, eg. "System`"
	Names(ctx context.Context, prefix string) ([]string, error)
	// SetHandler registers the function receiving asynchronous messages.
	SetHandler(func(Message))
}

// Factory creates a new, not yet connected, Engine.
type Factory func() (Engine, error)
