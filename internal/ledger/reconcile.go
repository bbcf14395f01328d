package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/carehub/ledger/internal/platform/metrics"
)

// Refresher re-reads authoritative state after a write.
type Refresher interface {
	ScheduleRefresh()
	ForceRefresh(ctx context.Context) error
}

// FetchFunc loads the authoritative contents of a collection.
type FetchFunc[T any] func(ctx context.Context) ([]T, error)

type CollectionOptions struct {
	// Delay is how long ScheduleRefresh waits before re-reading.
	Delay time.Duration
	// Timeout bounds a scheduled re-read.
	Timeout time.Duration
	// MaxAge is how long a loaded copy serves reads before Snapshot re-reads
	// it. Zero re-reads on every Snapshot.
	MaxAge  time.Duration
	Logger  zerolog.Logger
	Metrics *metrics.Ledger
	Now     func() time.Time
}

// Collection is a reconciled in-memory copy of one remote collection.
// Optimistic merges apply immediately; re-fetched state replaces them wholesale.
type Collection[T any] struct {
	name  string
	fetch FetchFunc[T]
	idOf  func(T) string
	opts  CollectionOptions

	mu       sync.Mutex
	items    map[string]T
	order    []string
	loaded   bool
	loadedAt time.Time
	timer    *time.Timer
}

func NewCollection[T any](name string, fetch FetchFunc[T], idOf func(T) string, opts CollectionOptions) *Collection[T] {
	if opts.Delay <= 0 {
		opts.Delay = time.Second
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Collection[T]{
		name:  name,
		fetch: fetch,
		idOf:  idOf,
		opts:  opts,
		items: make(map[string]T),
	}
}

func (c *Collection[T]) Name() string { return c.name }

// Snapshot returns the current items. It re-reads the collection when it has
// never been loaded or the loaded copy is older than MaxAge, so rows written
// by other clients show up. A failed re-read of a loaded copy serves the copy.
func (c *Collection[T]) Snapshot(ctx context.Context) ([]T, error) {
	c.mu.Lock()
	loaded := c.loaded
	stale := !loaded || c.opts.Now().Sub(c.loadedAt) >= c.opts.MaxAge
	c.mu.Unlock()
	if stale {
		if err := c.Refresh(ctx); err != nil && !loaded {
			return nil, err
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]T, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.items[id])
	}
	return out, nil
}

func (c *Collection[T]) Get(id string) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.items[id]
	return v, ok
}

// Lookup returns the item with id, re-reading the collection once when it is
// not held locally.
func (c *Collection[T]) Lookup(ctx context.Context, id string) (T, error) {
	if _, err := c.Snapshot(ctx); err != nil {
		var zero T
		return zero, err
	}
	if v, ok := c.Get(id); ok {
		return v, nil
	}
	if err := c.ForceRefresh(ctx); err != nil {
		var zero T
		return zero, err
	}
	if v, ok := c.Get(id); ok {
		return v, nil
	}
	var zero T
	return zero, fmt.Errorf("%s %s: %w", c.name, id, ErrNotFound)
}

// Merge applies an optimistic change. The copy counts as fresh again so the
// change is served until the scheduled re-read reconciles it.
func (c *Collection[T]) Merge(id string, item T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.items[id]; !ok {
		c.order = append(c.order, id)
	}
	c.items[id] = item
	c.touch()
}

// Remove drops an item optimistically.
func (c *Collection[T]) Remove(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.items[id]; !ok {
		return
	}
	delete(c.items, id)
	for i, oid := range c.order {
		if oid == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	c.touch()
}

func (c *Collection[T]) touch() {
	if c.loaded {
		c.loadedAt = c.opts.Now()
	}
}

// ScheduleRefresh re-reads the collection after the configured delay.
// Calls within the delay window collapse into one re-read.
func (c *Collection[T]) ScheduleRefresh() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.timer != nil {
		c.timer.Stop()
	}
	c.timer = time.AfterFunc(c.opts.Delay, func() {
		ctx, cancel := context.WithTimeout(context.Background(), c.opts.Timeout)
		defer cancel()
		_ = c.Refresh(ctx)
	})
}

// ForceRefresh cancels any pending scheduled re-read and re-reads now.
func (c *Collection[T]) ForceRefresh(ctx context.Context) error {
	c.mu.Lock()
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.mu.Unlock()
	return c.Refresh(ctx)
}

// Refresh replaces local state with the authoritative collection.
func (c *Collection[T]) Refresh(ctx context.Context) error {
	items, err := c.fetch(ctx)
	c.opts.Metrics.ObserveRefresh(c.name, err)
	if err != nil {
		c.opts.Logger.Error().Err(err).Str("collection", c.name).Msg("collection refresh failed")
		return err
	}

	next := make(map[string]T, len(items))
	order := make([]string, 0, len(items))
	for _, item := range items {
		id := c.idOf(item)
		if _, dup := next[id]; !dup {
			order = append(order, id)
		}
		next[id] = item
	}

	c.mu.Lock()
	c.items = next
	c.order = order
	c.loaded = true
	c.loadedAt = c.opts.Now()
	c.mu.Unlock()
	return nil
}

// Stop cancels a pending scheduled refresh.
func (c *Collection[T]) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

// Refreshable is any collection the sweep can re-read.
type Refreshable interface {
	Name() string
	Refresh(ctx context.Context) error
}

// Sweep re-reads every collection concurrently. Individual failures are
// logged; the first one is returned after all collections have been tried.
func Sweep(ctx context.Context, logger zerolog.Logger, cols ...Refreshable) error {
	var g errgroup.Group
	for _, col := range cols {
		col := col
		g.Go(func() error {
			if err := col.Refresh(ctx); err != nil {
				logger.Warn().Err(err).Str("collection", col.Name()).Msg("sweep refresh failed")
				return err
			}
			return nil
		})
	}
	return g.Wait()
}
