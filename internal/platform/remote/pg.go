package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// PG implements Store on top of a pgx connection pool.
type PG struct {
	conn queryable
}

func NewPG(pool *pgxpool.Pool) *PG {
	return &PG{conn: pool}
}

func (s *PG) Select(ctx context.Context, table string, where ...Cond) ([]json.RawMessage, error) {
	tbl, err := quote(table)
	if err != nil {
		return nil, err
	}
	clause, args, err := whereClause(where, 1)
	if err != nil {
		return nil, err
	}

	rows, err := s.conn.Query(ctx, `SELECT to_jsonb(t) FROM `+tbl+` t`+clause, args...)
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", table, err)
	}
	defer rows.Close()

	var out []json.RawMessage
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan %s: %w", table, err)
		}
		out = append(out, append(json.RawMessage(nil), raw...))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", table, err)
	}
	return out, nil
}

func (s *PG) Insert(ctx context.Context, table string, values map[string]any) error {
	tbl, err := quote(table)
	if err != nil {
		return err
	}
	if len(values) == 0 {
		return fmt.Errorf("insert %s: no values", table)
	}

	cols := sortedKeys(values)
	quoted := make([]string, len(cols))
	holders := make([]string, len(cols))
	args := make([]any, len(cols))
	for i, col := range cols {
		q, err := quote(col)
		if err != nil {
			return err
		}
		quoted[i] = q
		holders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = values[col]
	}

	sql := fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s)`, tbl, strings.Join(quoted, ", "), strings.Join(holders, ", "))
	if _, err := s.conn.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert %s: %w", table, err)
	}
	return nil
}

func (s *PG) Update(ctx context.Context, table string, set map[string]any, where ...Cond) (int64, error) {
	tbl, err := quote(table)
	if err != nil {
		return 0, err
	}
	if len(set) == 0 {
		return 0, fmt.Errorf("update %s: nothing to set", table)
	}
	if len(where) == 0 {
		return 0, fmt.Errorf("update %s: refusing unconditional update", table)
	}

	cols := sortedKeys(set)
	assignments := make([]string, len(cols))
	args := make([]any, 0, len(cols)+len(where))
	for i, col := range cols {
		q, err := quote(col)
		if err != nil {
			return 0, err
		}
		assignments[i] = fmt.Sprintf("%s = $%d", q, i+1)
		args = append(args, set[col])
	}
	clause, whereArgs, err := whereClause(where, len(cols)+1)
	if err != nil {
		return 0, err
	}
	args = append(args, whereArgs...)

	tag, err := s.conn.Exec(ctx, `UPDATE `+tbl+` SET `+strings.Join(assignments, ", ")+clause, args...)
	if err != nil {
		return 0, fmt.Errorf("update %s: %w", table, err)
	}
	return tag.RowsAffected(), nil
}

func (s *PG) Delete(ctx context.Context, table string, where ...Cond) (int64, error) {
	tbl, err := quote(table)
	if err != nil {
		return 0, err
	}
	if len(where) == 0 {
		return 0, fmt.Errorf("delete %s: refusing unconditional delete", table)
	}
	clause, args, err := whereClause(where, 1)
	if err != nil {
		return 0, err
	}

	tag, err := s.conn.Exec(ctx, `DELETE FROM `+tbl+clause, args...)
	if err != nil {
		return 0, fmt.Errorf("delete %s: %w", table, err)
	}
	return tag.RowsAffected(), nil
}

// Call invokes procedure using named-argument notation. An integer result is
// taken as the affected row count; any other result (void, boolean true, a
// row) counts as one applied change.
func (s *PG) Call(ctx context.Context, procedure string, args map[string]any) (int64, error) {
	fn, err := quote(procedure)
	if err != nil {
		return 0, err
	}

	names := sortedKeys(args)
	params := make([]string, len(names))
	values := make([]any, len(names))
	for i, name := range names {
		q, err := quote(name)
		if err != nil {
			return 0, err
		}
		params[i] = fmt.Sprintf("%s => $%d", q, i+1)
		values[i] = args[name]
	}

	rows, err := s.conn.Query(ctx, `SELECT `+fn+`(`+strings.Join(params, ", ")+`)`, values...)
	if err != nil {
		return 0, fmt.Errorf("call %s: %w", procedure, err)
	}
	defer rows.Close()

	var affected int64
	if rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return 0, fmt.Errorf("call %s: read result: %w", procedure, err)
		}
		affected = 1
		if len(vals) > 0 {
			affected = resultCount(vals[0])
		}
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("call %s: %w", procedure, err)
	}
	return affected, nil
}

func resultCount(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int32:
		return int64(n)
	case int16:
		return int64(n)
	case int:
		return int64(n)
	case bool:
		if n {
			return 1
		}
		return 0
	default:
		return 1
	}
}

func quote(name string) (string, error) {
	if !ValidIdentifier(name) {
		return "", fmt.Errorf("invalid identifier %q", name)
	}
	return pgx.Identifier{name}.Sanitize(), nil
}

func whereClause(where []Cond, start int) (string, []any, error) {
	if len(where) == 0 {
		return "", nil, nil
	}
	parts := make([]string, len(where))
	args := make([]any, len(where))
	for i, c := range where {
		q, err := quote(c.Column)
		if err != nil {
			return "", nil, err
		}
		parts[i] = fmt.Sprintf("%s = $%d", q, start+i)
		args[i] = c.Value
	}
	return " WHERE " + strings.Join(parts, " AND "), args, nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
