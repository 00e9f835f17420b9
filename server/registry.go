package server

import (
	"context"
	"sort"
	"sync"

	"github.com/mathmate/tmjlink/kernel"
	"github.com/mathmate/tmjlink/out"
	"github.com/mathmate/tmjlink/store"
)

// Registry holds the store of every session, by id.
type Registry struct {
	cacheDir string
	factory  kernel.Factory
	opts     []store.Option
	logger   *out.Logger

	mu     sync.Mutex
	stores map[string]*store.Store
	// ids whose store is being created or reset, closed once it is in stores
	pending map[string]chan struct{}
	closed  bool
}

func NewRegistry(cacheDir string, factory kernel.Factory, logger *out.Logger, opts ...store.Option) *Registry {
	return &Registry{
		cacheDir: cacheDir,
		factory:  factory,
		opts:     append([]store.Option{store.WithLogger(logger)}, opts...),
		logger:   logger,
		stores:   make(map[string]*store.Store),
		pending:  make(map[string]chan struct{}),
	}
}

// GetOrCreate returns the store of session id, creating it if needed.
// Concurrent callers with the same id get the same store. Only callers of an id whose store is
// being created or reset wait for it.
func (r *Registry) GetOrCreate(ctx context.Context, id string) (*store.Store, error) {
	for {
		r.mu.Lock()
		if r.closed {
			r.mu.Unlock()
			return nil, ErrServerClosed
		}
		if done, ok := r.pending[id]; ok {
			r.mu.Unlock()
			if err := wait(ctx, done); err != nil {
				return nil, err
			}
			continue
		}
		if s, ok := r.stores[id]; ok {
			r.mu.Unlock()
			return s, nil
		}
		done := r.claim(id)
		r.mu.Unlock()
		return r.settle(ctx, id, done)
	}
}

// Reset closes the store of session id and replaces it with an empty one.
// Close waits for a running evaluation, so nobody is left using the old store files when it returns.
// Sessions bound to other ids are not held up meanwhile.
func (r *Registry) Reset(ctx context.Context, id string) (*store.Store, error) {
	for {
		r.mu.Lock()
		if r.closed {
			r.mu.Unlock()
			return nil, ErrServerClosed
		}
		if done, ok := r.pending[id]; ok {
			r.mu.Unlock()
			if err := wait(ctx, done); err != nil {
				return nil, err
			}
			continue
		}
		old := r.stores[id]
		delete(r.stores, id)
		done := r.claim(id)
		r.mu.Unlock()

		if old != nil {
			if err := old.Close(); err != nil {
				r.logger.Errorf("closing store %s: %s", id, err.Error())
			}
		}
		return r.settle(ctx, id, done)
	}
}

// claim marks id as pending, r.mu must be held.
func (r *Registry) claim(id string) chan struct{} {
	done := make(chan struct{})
	r.pending[id] = done
	return done
}

// settle creates the store of a claimed id and wakes up whoever waits for it.
func (r *Registry) settle(ctx context.Context, id string, done chan struct{}) (*store.Store, error) {
	s, err := store.New(ctx, id, r.cacheDir, r.factory, r.opts...)

	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.pending, id)
	close(done)
	if err != nil {
		return nil, err
	}
	if r.closed {
		if err := s.Close(); err != nil {
			r.logger.Errorf("closing store %s: %s", id, err.Error())
		}
		return nil, ErrServerClosed
	}
	r.stores[id] = s
	r.logger.Infof("store %s allocated", id)
	return s, nil
}

func wait(ctx context.Context, done <-chan struct{}) error {
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// CloseAll closes every store and refuses to create new ones, it returns how many were closed.
func (r *Registry) CloseAll() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	n := len(r.stores)
	for id, s := range r.stores {
		if err := s.Close(); err != nil {
			r.logger.Errorf("closing store %s: %s", id, err.Error())
		}
		delete(r.stores, id)
	}
	return n
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.stores)
}

// Each calls fn with every store, sorted by id.
func (r *Registry) Each(fn func(*store.Store)) {
	r.mu.Lock()
	stores := make([]*store.Store, 0, len(r.stores))
	for _, s := range r.stores {
		stores = append(stores, s)
	}
	r.mu.Unlock()

	sort.Slice(stores, func(i, j int) bool {
		return stores[i].ID() < stores[j].ID()
	})
	for _, s := range stores {
		fn(s)
	}
}
