// Package kerneltest provides a scripted kernel.Engine for tests.
package kerneltest

import (
	"context"
	"strings"
	"sync"

	"github.com/mathmate/tmjlink/kernel"
)

// Kernel answers evaluations from its tables, keyed by input text. Inputs not found in Results
// evaluate to a String expression echoing the input, or to nothing if they end in a semicolon.
// Fields must be set before the Kernel is handed out.
type Kernel struct {
	Results  map[string]*kernel.Expr
	Messages map[string][]kernel.Message
	Errors   map[string]error
	// images keyed by the Text of the expression to rasterize
	Images map[string][]byte
	// used for any expression not in Images
	DefaultImage []byte
	ContextList  []string
	// names keyed by context
	NameLists map[string][]string
	// evaluations of these inputs block until the channel is closed
	Hold map[string]chan struct{}

	mu          sync.Mutex
	handler     func(kernel.Message)
	connected   bool
	connects    int
	disconnects int
	evaluations []string
}

func New() *Kernel {
	return &Kernel{
		Results:   make(map[string]*kernel.Expr),
		Messages:  make(map[string][]kernel.Message),
		Errors:    make(map[string]error),
		Images:    make(map[string][]byte),
		NameLists: make(map[string][]string),
		Hold:      make(map[string]chan struct{}),
	}
}

// Factory always hands out k.
func (k *Kernel) Factory() kernel.Factory {
	return func() (kernel.Engine, error) {
		return k, nil
	}
}

func (k *Kernel) Connect(context.Context) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.connected = true
	k.connects++
	return nil
}

func (k *Kernel) Disconnect() error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.connected = false
	k.disconnects++
	return nil
}

func (k *Kernel) SetHandler(fn func(kernel.Message)) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.handler = fn
}

func (k *Kernel) Evaluate(ctx context.Context, text string) (*kernel.Expr, error) {
	k.mu.Lock()
	if !k.connected {
		k.mu.Unlock()
		return nil, kernel.ErrNotConnected
	}
	k.evaluations = append(k.evaluations, text)
	handler := k.handler
	k.mu.Unlock()

	if handler != nil {
		for _, m := range k.Messages[text] {
			handler(m)
		}
	}
	if hold, ok := k.Hold[text]; ok {
		select {
		case <-hold:
		case <-ctx.Done():
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err, ok := k.Errors[text]; ok {
		return nil, err
	}
	if expr, ok := k.Results[text]; ok {
		return expr, nil
	}
	if strings.HasSuffix(strings.TrimSpace(text), ";") {
		return nil, nil
	}
	return &kernel.Expr{Head: "String", Text: text}, nil
}

func (k *Kernel) EvaluateToImage(_ context.Context, source *kernel.Expr) ([]byte, error) {
	if !k.Connected() {
		return nil, kernel.ErrNotConnected
	}
	if source == nil {
		return nil, nil
	}
	if data, ok := k.Images[source.Text]; ok {
		return data, nil
	}
	return k.DefaultImage, nil
}

func (k *Kernel) Contexts(context.Context) ([]string, error) {
	if !k.Connected() {
		return nil, kernel.ErrNotConnected
	}
	return k.ContextList, nil
}

func (k *Kernel) Names(_ context.Context, prefix string) ([]string, error) {
	if !k.Connected() {
		return nil, kernel.ErrNotConnected
	}
	return k.NameLists[prefix], nil
}

func (k *Kernel) Connected() bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.connected
}

func (k *Kernel) Connects() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.connects
}

func (k *Kernel) Disconnects() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.disconnects
}

// Evaluations returns every text passed to Evaluate, in order.
func (k *Kernel) Evaluations() []string {
	k.mu.Lock()
	defer k.mu.Unlock()
	return append([]string(nil), k.evaluations...)
}
