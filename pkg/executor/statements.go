package executor

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/galleyhq/galley"
	"github.com/galleyhq/galley/pkg/artifact"
	"github.com/galleyhq/galley/pkg/cql"
)

// SplitStatements splits a CQL script on ';', trims whitespace, and drops
// empty segments.
//
// The split is naive: a ';' inside a string literal or a comment still ends
// a statement. Migrations that need one must use the Client executor instead.
func SplitStatements(script string) []string {
	parts := strings.Split(script, ";")
	stmts := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			stmts = append(stmts, p)
		}
	}
	return stmts
}

// Statements runs each statement of a CQL artifact through the session,
// in file order, at the session's consistency level.
type Statements struct {
	Session cql.Execer
	Log     *zap.Logger
}

// Execute implements Executor.
func (s *Statements) Execute(ctx context.Context, a artifact.Artifact) error {
	log := s.Log
	if log == nil {
		log = zap.NewNop()
	}

	content, err := a.Read()
	if err != nil {
		return err
	}

	stmts := SplitStatements(string(content))
	for i, stmt := range stmts {
		log.Debug("Executing statement",
			zap.String("migration", a.ID),
			zap.Int("index", i),
			zap.Int("statement_count", len(stmts)))

		if err := s.Session.Exec(ctx, stmt); err != nil {
			log.Error("Query failed, migration partially applied",
				zap.String("migration", a.ID),
				zap.String("statement", stmt),
				zap.Error(err))
			return &galley.PartialApplicationError{Artifact: a.ID, Statement: stmt, Err: err}
		}
	}
	return nil
}
