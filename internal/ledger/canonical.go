package ledger

import (
	"sort"
	"time"
)

// Keyed is a row of a logically-singleton resource that may have duplicate
// physical rows in the store.
type Keyed interface {
	LogicalKey() string
	RowID() string
	UpdatedTime() time.Time
}

// Canonicalize returns one row per logical key: the most recently updated.
// Equal timestamps are broken by the lexicographically smallest row id.
func Canonicalize[T Keyed](rows []T) map[string]T {
	out := make(map[string]T, len(rows))
	for _, r := range rows {
		key := r.LogicalKey()
		cur, ok := out[key]
		if !ok || preferred(r, cur) {
			out[key] = r
		}
	}
	return out
}

// Duplicates returns, per logical key, the rows that lost to the canonical row.
// Keys with a single row are omitted.
func Duplicates[T Keyed](rows []T) map[string][]T {
	canon := Canonicalize(rows)
	out := make(map[string][]T)
	for _, r := range rows {
		if c := canon[r.LogicalKey()]; c.RowID() != r.RowID() {
			out[r.LogicalKey()] = append(out[r.LogicalKey()], r)
		}
	}
	return out
}

// Sorted returns the canonical rows ordered by logical key.
func Sorted[T Keyed](canon map[string]T) []T {
	out := make([]T, 0, len(canon))
	for _, r := range canon {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LogicalKey() < out[j].LogicalKey() })
	return out
}

func preferred[T Keyed](a, b T) bool {
	at, bt := a.UpdatedTime(), b.UpdatedTime()
	if !at.Equal(bt) {
		return at.After(bt)
	}
	return a.RowID() < b.RowID()
}
