package cql

import (
	"fmt"
	"sort"
	"strings"
)

// Replication is the keyspace replication map, e.g.
// {"class": "NetworkTopologyStrategy", "dc1": 3}. It is passed through
// verbatim; galley does not interpret strategies.
type Replication map[string]any

// DefaultReplication is used when no replication is configured.
func DefaultReplication() Replication {
	return Replication{"class": "SimpleStrategy", "replication_factor": 1}
}

// String renders r as a CQL map literal with "class" first and the
// remaining keys sorted. String values are single-quoted; numbers and
// booleans are emitted bare.
func (r Replication) String() string {
	keys := make([]string, 0, len(r))
	for k := range r {
		if k != "class" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	if _, ok := r["class"]; ok {
		keys = append([]string{"class"}, keys...)
	}

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", quote(k), literal(r[k])))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

func literal(v any) string {
	switch x := v.(type) {
	case string:
		return quote(x)
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64, bool:
		return fmt.Sprint(x)
	default:
		return quote(fmt.Sprint(x))
	}
}

func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
