// Package remotetest provides an in-memory remote.Store for tests.
package remotetest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/carehub/ledger/internal/platform/remote"
)

// Procedure is a fake stored procedure. It runs without the store lock held
// so it may call back into the store.
type Procedure func(ctx context.Context, s *Store, args map[string]any) (int64, error)

// Op records one call made against the store.
type Op struct {
	Kind   string // select, insert, update, delete, call
	Target string // table or procedure name
	Args   map[string]any
}

// Store is a goroutine-safe in-memory remote.Store.
type Store struct {
	mu         sync.Mutex
	tables     map[string][]map[string]any
	procedures map[string]Procedure
	ops        []Op

	// Failure injection keyed by table or procedure name.
	FailSelect map[string]error
	FailInsert map[string]error
	FailUpdate map[string]error
	FailDelete map[string]error
	FailCall   map[string]error
}

var _ remote.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		tables:     make(map[string][]map[string]any),
		procedures: make(map[string]Procedure),
		FailSelect: make(map[string]error),
		FailInsert: make(map[string]error),
		FailUpdate: make(map[string]error),
		FailDelete: make(map[string]error),
		FailCall:   make(map[string]error),
	}
}

// Seed appends rows to table. Rows may be maps or any JSON-encodable value.
func (s *Store) Seed(table string, rows ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range rows {
		s.tables[table] = append(s.tables[table], toMap(r))
	}
}

// Register installs a fake stored procedure.
func (s *Store) Register(name string, p Procedure) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.procedures[name] = p
}

// Rows returns a copy of the rows in table.
func (s *Store) Rows(table string) []map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]map[string]any, 0, len(s.tables[table]))
	for _, r := range s.tables[table] {
		out = append(out, copyMap(r))
	}
	return out
}

// Row returns the row in table whose id matches.
func (s *Store) Row(table, id string) (map[string]any, bool) {
	for _, r := range s.Rows(table) {
		if fmt.Sprint(r["id"]) == id {
			return r, true
		}
	}
	return nil, false
}

// Ops returns every recorded operation.
func (s *Store) Ops() []Op {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Op(nil), s.ops...)
}

// Count returns how many operations of kind were made, optionally against target.
func (s *Store) Count(kind, target string) int {
	n := 0
	for _, op := range s.Ops() {
		if op.Kind == kind && (target == "" || op.Target == target) {
			n++
		}
	}
	return n
}

// Writes counts every mutating operation.
func (s *Store) Writes() int {
	n := 0
	for _, op := range s.Ops() {
		if op.Kind != "select" {
			n++
		}
	}
	return n
}

func (s *Store) Select(_ context.Context, table string, where ...remote.Cond) ([]json.RawMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ops = append(s.ops, Op{Kind: "select", Target: table})
	if err := s.FailSelect[table]; err != nil {
		return nil, err
	}
	var out []json.RawMessage
	for _, r := range s.tables[table] {
		if !matches(r, where) {
			continue
		}
		raw, err := json.Marshal(r)
		if err != nil {
			return nil, err
		}
		out = append(out, raw)
	}
	return out, nil
}

func (s *Store) Insert(_ context.Context, table string, values map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ops = append(s.ops, Op{Kind: "insert", Target: table, Args: copyMap(values)})
	if err := s.FailInsert[table]; err != nil {
		return err
	}
	s.tables[table] = append(s.tables[table], toMap(values))
	return nil
}

func (s *Store) Update(_ context.Context, table string, set map[string]any, where ...remote.Cond) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ops = append(s.ops, Op{Kind: "update", Target: table, Args: copyMap(set)})
	if err := s.FailUpdate[table]; err != nil {
		return 0, err
	}
	patch := toMap(set)
	var n int64
	for _, r := range s.tables[table] {
		if !matches(r, where) {
			continue
		}
		for k, v := range patch {
			r[k] = v
		}
		n++
	}
	return n, nil
}

func (s *Store) Delete(_ context.Context, table string, where ...remote.Cond) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ops = append(s.ops, Op{Kind: "delete", Target: table})
	if err := s.FailDelete[table]; err != nil {
		return 0, err
	}
	kept := s.tables[table][:0]
	var n int64
	for _, r := range s.tables[table] {
		if matches(r, where) {
			n++
			continue
		}
		kept = append(kept, r)
	}
	s.tables[table] = kept
	return n, nil
}

func (s *Store) Call(ctx context.Context, procedure string, args map[string]any) (int64, error) {
	s.mu.Lock()
	s.ops = append(s.ops, Op{Kind: "call", Target: procedure, Args: copyMap(args)})
	failErr := s.FailCall[procedure]
	p, ok := s.procedures[procedure]
	s.mu.Unlock()

	if failErr != nil {
		return 0, failErr
	}
	if !ok {
		return 0, fmt.Errorf("function %s does not exist", procedure)
	}
	return p(ctx, s, args)
}

func matches(row map[string]any, where []remote.Cond) bool {
	for _, c := range where {
		if fmt.Sprint(row[c.Column]) != fmt.Sprint(normalize(c.Value)) {
			return false
		}
	}
	return true
}

// toMap round-trips v through JSON so stored rows hold the same shapes the
// Postgres implementation would return.
func toMap(v any) map[string]any {
	raw, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("remotetest: marshal row: %v", err))
	}
	m := make(map[string]any)
	if err := json.Unmarshal(raw, &m); err != nil {
		panic(fmt.Sprintf("remotetest: unmarshal row: %v", err))
	}
	return m
}

func normalize(v any) any {
	raw, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return v
	}
	return out
}

func copyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
