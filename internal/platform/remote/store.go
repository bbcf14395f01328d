// Package remote is the capability boundary to the shared relational data
// store. Rows cross the boundary as JSON documents so that every table maps
// onto the json tags of the domain models without per-table scanning code.
package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
)

// Cond is an equality predicate on a single column.
type Cond struct {
	Column string
	Value  any
}

// Eq builds an equality predicate.
func Eq(column string, value any) Cond {
	return Cond{Column: column, Value: value}
}

// Store is the set of operations the ledger consumes from the remote store.
// Update and Delete report affected rows; Call invokes a stored procedure with
// named arguments and reports how many rows it changed.
type Store interface {
	Select(ctx context.Context, table string, where ...Cond) ([]json.RawMessage, error)
	Insert(ctx context.Context, table string, values map[string]any) error
	Update(ctx context.Context, table string, set map[string]any, where ...Cond) (int64, error)
	Delete(ctx context.Context, table string, where ...Cond) (int64, error)
	Call(ctx context.Context, procedure string, args map[string]any) (int64, error)
}

var identPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// ValidIdentifier reports whether name is safe to use as a table, column,
// procedure, or argument name.
func ValidIdentifier(name string) bool {
	return identPattern.MatchString(name)
}

// Decode unmarshals every raw row into T.
func Decode[T any](raws []json.RawMessage) ([]T, error) {
	out := make([]T, 0, len(raws))
	for i, raw := range raws {
		var v T
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("decode row %d: %w", i, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// First decodes the first row, reporting false when there are none.
func First[T any](raws []json.RawMessage) (T, bool, error) {
	var v T
	if len(raws) == 0 {
		return v, false, nil
	}
	if err := json.Unmarshal(raws[0], &v); err != nil {
		return v, false, fmt.Errorf("decode row: %w", err)
	}
	return v, true, nil
}
