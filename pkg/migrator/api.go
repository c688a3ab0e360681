package migrator

import (
	"context"
	"fmt"
	"sort"
)

// Status represents the reconciliation state of one migration family.
// Use GetStatus to report progress without applying anything.
type Status struct {
	// Applied lists on-disk migrations already recorded, ascending.
	Applied []string

	// Pending lists on-disk migrations not yet recorded, in execution order.
	Pending []string

	// Recorded lists every identifier in the ledger, ascending. It may include
	// identifiers from other migration families sharing the ledger.
	Recorded []string
}

// GetStatus compares the source against the ledger without mutating either.
func (m *Migrator) GetStatus(ctx context.Context) (*Status, error) {
	candidates, err := m.source.List()
	if err != nil {
		return nil, fmt.Errorf("loading migrations: %w", err)
	}
	applied, err := m.ledger.ListApplied(ctx)
	if err != nil {
		return nil, err
	}

	s := &Status{}
	for _, a := range candidates {
		if _, ok := applied[a.ID]; ok {
			s.Applied = append(s.Applied, a.ID)
		}
	}
	for _, a := range Pending(candidates, applied) {
		s.Pending = append(s.Pending, a.ID)
	}
	s.Recorded = sortedKeys(applied)
	sort.Strings(s.Applied)
	return s, nil
}

// Orphaned returns ledger identifiers that match none of the given on-disk
// identifiers, ascending. Pass the identifiers of every family sharing the
// ledger, otherwise another family's migrations are reported.
func Orphaned(recorded []string, onDisk ...[]string) []string {
	known := make(map[string]struct{})
	for _, ids := range onDisk {
		for _, id := range ids {
			known[id] = struct{}{}
		}
	}
	var out []string
	for _, id := range recorded {
		if _, ok := known[id]; !ok {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
