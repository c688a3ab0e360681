// Package executor applies a single migration artifact.
//
// Three strategies are provided:
//   - Statements: split the file on ';' and run each statement through the driver
//   - Client: hand the file to cqlsh with -f
//   - Script: run the file as its own process with a restricted environment
//
// Every strategy is fail-fast within one artifact: the first failing statement
// or non-zero exit aborts the artifact and returns a
// *galley.PartialApplicationError. Nothing here touches the ledger.
package executor

import (
	"context"
	"fmt"

	"github.com/galleyhq/galley/pkg/artifact"
)

// Executor applies one artifact.
type Executor interface {
	Execute(ctx context.Context, a artifact.Artifact) error
}

// Func adapts a function to Executor.
type Func func(ctx context.Context, a artifact.Artifact) error

// Execute implements Executor.
func (f Func) Execute(ctx context.Context, a artifact.Artifact) error {
	return f(ctx, a)
}

// ByKind dispatches on the artifact's kind.
type ByKind map[artifact.Kind]Executor

// Execute implements Executor.
func (m ByKind) Execute(ctx context.Context, a artifact.Artifact) error {
	ex, ok := m[a.Kind]
	if !ok {
		return fmt.Errorf("no executor for %s migration %s", a.Kind, a.ID)
	}
	return ex.Execute(ctx, a)
}
