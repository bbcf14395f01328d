package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// WithTimeout bounds every call made through next. A call that runs past the
// deadline fails like any other remote error.
func WithTimeout(next Store, d time.Duration) Store {
	if d <= 0 {
		return next
	}
	return &timeoutStore{next: next, d: d}
}

type timeoutStore struct {
	next Store
	d    time.Duration
}

func (s *timeoutStore) Select(ctx context.Context, table string, where ...Cond) ([]json.RawMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, s.d)
	defer cancel()
	rows, err := s.next.Select(ctx, table, where...)
	return rows, s.wrap(ctx, "select "+table, err)
}

func (s *timeoutStore) Insert(ctx context.Context, table string, values map[string]any) error {
	ctx, cancel := context.WithTimeout(ctx, s.d)
	defer cancel()
	return s.wrap(ctx, "insert "+table, s.next.Insert(ctx, table, values))
}

func (s *timeoutStore) Update(ctx context.Context, table string, set map[string]any, where ...Cond) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.d)
	defer cancel()
	n, err := s.next.Update(ctx, table, set, where...)
	return n, s.wrap(ctx, "update "+table, err)
}

func (s *timeoutStore) Delete(ctx context.Context, table string, where ...Cond) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.d)
	defer cancel()
	n, err := s.next.Delete(ctx, table, where...)
	return n, s.wrap(ctx, "delete "+table, err)
}

func (s *timeoutStore) Call(ctx context.Context, procedure string, args map[string]any) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.d)
	defer cancel()
	n, err := s.next.Call(ctx, procedure, args)
	return n, s.wrap(ctx, "call "+procedure, err)
}

func (s *timeoutStore) wrap(ctx context.Context, op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) && !errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: timed out after %s: %w (%v)", op, s.d, context.DeadlineExceeded, err)
	}
	return err
}
