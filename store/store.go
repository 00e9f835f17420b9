// Package store caches everything a kernel produces for one session, and renders it as html.
//
// A Store owns the only connection to its kernel. All operations hold the store lock for their
// whole duration, so evaluations from different clients sharing a session never interleave.
package store

import (
	"context"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/mathmate/tmjlink/kernel"
	"github.com/mathmate/tmjlink/out"
	"github.com/pkg/errors"
	"go.elastic.co/apm"
)

var ErrClosed = errors.New("store closed")

// LayoutFile is looked up in the cache folder when no layout is given.
const LayoutFile = "layout.html.erb"

// SessionsDir holds one folder per session id, apart from the other files of the cache folder.
const SessionsDir = "sessions"

// replaced by the rendered resources in the layout
const yieldToken = "<%= yield %>"

type Store struct {
	id     string
	dir    string
	layout string
	logger *out.Logger
	engine kernel.Engine

	// serializes operations, and with them engine calls
	mu       sync.Mutex
	snapshot string
	closed   bool

	// guards the log, which the engine handler appends to in the middle of an evaluation
	logMu     sync.Mutex
	turn      int
	resources []*Resource
}

type Option func(*Store)

// WithLayout sets the html template the rendered history is embedded in.
func WithLayout(path string) Option {
	return func(s *Store) {
		s.layout = path
	}
}

func WithLogger(logger *out.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// New creates the folder of session id under cacheDir/sessions, wiping any stale one left behind,
// and connects a new engine to it.
func New(ctx context.Context, id, cacheDir string, factory kernel.Factory, opts ...Option) (*Store, error) {
	if err := ValidID(id); err != nil {
		return nil, err
	}
	s := &Store{
		id:     id,
		dir:    filepath.Join(cacheDir, SessionsDir, id),
		layout: filepath.Join(cacheDir, LayoutFile),
		logger: out.NewLogger(ioutil.Discard, false),
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := os.RemoveAll(s.dir); err != nil {
		return nil, errors.Wrap(err, "removing stale session folder")
	}
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return nil, errors.Wrap(err, "creating session folder")
	}

	engine, err := factory()
	if err == nil {
		engine.SetHandler(s.onMessage)
		err = engine.Connect(ctx)
	}
	if err != nil {
		os.RemoveAll(s.dir)
		return nil, errors.Wrap(err, "connecting kernel")
	}
	s.engine = engine
	s.logger.Debugf("store %s allocated at %s", id, s.dir)
	return s, nil
}

// ValidID rejects session ids that can't be used as a folder name.
func ValidID(id string) error {
	if id == "" || id == "." || id == ".." || strings.ContainsAny(id, `/\`+"\x00") {
		return errors.Errorf("invalid session id %q", id)
	}
	return nil
}

func (s *Store) ID() string {
	return s.id
}

// Dir is the session folder, holding images and the html snapshot.
func (s *Store) Dir() string {
	return s.dir
}

// Len is the number of cached resources.
func (s *Store) Len() int {
	s.logMu.Lock()
	defer s.logMu.Unlock()
	return len(s.resources)
}

// Turn is the turn the next evaluation gets.
func (s *Store) Turn() int {
	s.logMu.Lock()
	defer s.logMu.Unlock()
	return s.turn
}

// Resources returns a copy of the log.
func (s *Store) Resources() []Resource {
	s.logMu.Lock()
	defer s.logMu.Unlock()
	rs := make([]Resource, len(s.resources))
	for i, r := range s.resources {
		rs[i] = *r
	}
	return rs
}

type Stats struct {
	ID        string
	Turn      int
	Resources int
	Graphics  int
}

// Stats doesn't wait for a running evaluation.
func (s *Store) Stats() Stats {
	s.logMu.Lock()
	defer s.logMu.Unlock()
	st := Stats{ID: s.id, Turn: s.turn, Resources: len(s.resources)}
	for _, r := range s.resources {
		if r.Kind == Graphic {
			st.Graphics++
		}
	}
	return st
}

func (s *Store) onMessage(m kernel.Message) {
	s.logMu.Lock()
	defer s.logMu.Unlock()
	s.resources = append(s.resources, &Resource{Kind: kindOf(m), Turn: s.turn, Text: m.Text, Visible: true, dir: s.dir})
}

func (s *Store) append(r *Resource) {
	s.logMu.Lock()
	defer s.logMu.Unlock()
	r.dir = s.dir
	s.resources = append(s.resources, r)
}

// Evaluate sends text to the kernel and logs the input, any messages printed meanwhile and the
// result under a new turn. The result is rasterized if wantImage is set or it holds graphics.
// It returns the html of the turn.
// A kernel failure leaves the input logged, and the turn is used up anyway.
func (s *Store) Evaluate(ctx context.Context, text string, wantImage bool) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", ErrClosed
	}

	turn := s.Turn()
	defer func() {
		s.logMu.Lock()
		s.turn++
		s.logMu.Unlock()
	}()
	s.append(&Resource{Kind: InputEcho, Turn: turn, Text: text, Visible: true})

	span, ctx := apm.StartSpan(ctx, "Evaluate", "kernel")
	expr, err := s.engine.Evaluate(ctx, text)
	span.End()
	if err != nil {
		return "", errors.Wrap(err, "evaluation failed")
	}
	if expr == nil {
		return s.renderTurn(turn), nil
	}

	visible := true
	if wantImage || IsGraphics(expr) {
		span, ctx := apm.StartSpan(ctx, "EvaluateToImage", "kernel")
		data, err := s.engine.EvaluateToImage(ctx, expr)
		span.End()
		if err != nil {
			return "", errors.Wrap(err, "rasterization failed")
		}
		if data != nil {
			name := uuid.New().String() + ".gif"
			if err := ioutil.WriteFile(filepath.Join(s.dir, name), data, 0644); err != nil {
				return "", errors.Wrap(err, "saving image")
			}
			s.append(&Resource{Kind: Graphic, Turn: turn, File: name, Visible: true})
			visible = false
		}
	}

	text = expr.Text
	if text == "" {
		text = expr.Head
	}
	s.append(&Resource{Kind: ReturnValue, Turn: turn, Text: text, Expr: expr, Visible: visible})
	return s.renderTurn(turn), nil
}

// Release deletes every cached resource along with its files and the snapshot, and returns how
// many there were. The kernel connection is kept.
func (s *Store) Release() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.release()
}

func (s *Store) release() int {
	if s.snapshot != "" {
		if err := os.Remove(filepath.Join(s.dir, s.snapshot)); err != nil && !os.IsNotExist(err) {
			s.logger.Errorf("removing snapshot: %s", err.Error())
		}
		s.snapshot = ""
	}

	s.logMu.Lock()
	defer s.logMu.Unlock()
	n := len(s.resources)
	for _, r := range s.resources {
		if err := r.release(); err != nil {
			s.logger.Errorf("%s", err.Error())
		}
	}
	s.resources = nil
	return n
}

// Reconnect brings the kernel connection back up if the kernel went away, keeping the history.
func (s *Store) Reconnect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return errors.Wrap(s.engine.Connect(ctx), "connecting kernel")
}

// Close releases everything, disconnects the kernel and removes the session folder.
// Closing twice is a no-op.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	n := s.release()
	err := s.engine.Disconnect()
	if err != nil {
		err = errors.Wrap(err, "disconnecting kernel")
	}
	if rmErr := os.Remove(s.dir); rmErr != nil && !os.IsNotExist(rmErr) && err == nil {
		err = errors.Wrap(rmErr, "removing session folder")
	}
	s.logger.Debugf("store %s closed, %d resources released", s.id, n)
	return err
}

// Suggestions lists the names in every context of the kernel search path, in order.
// Names found in more than one context are listed more than once.
func (s *Store) Suggestions(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}

	span, ctx := apm.StartSpan(ctx, "Suggestions", "kernel")
	defer span.End()
	contexts, err := s.engine.Contexts(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "listing contexts")
	}
	var names []string
	for _, c := range contexts {
		xs, err := s.engine.Names(ctx, c)
		if err != nil {
			return nil, errors.Wrapf(err, "listing names in %s", c)
		}
		names = append(names, xs...)
	}
	return names, nil
}
