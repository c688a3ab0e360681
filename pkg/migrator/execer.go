package migrator

import (
	"context"

	"github.com/galleyhq/galley/pkg/artifact"
)

// Ledger is the minimal ledger interface needed for reconciliation.
// Implemented by *ledger.Ledger.
type Ledger interface {
	ListApplied(ctx context.Context) (map[string]struct{}, error)
	RecordApplied(ctx context.Context, id string) error
}

// Source lists candidate migrations in ascending identifier order.
// Implemented by *artifact.Repository.
type Source interface {
	List() ([]artifact.Artifact, error)
}
