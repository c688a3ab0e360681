// Package cqltest provides an in-memory CQL session for tests.
package cqltest

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/gocql/gocql"
)

// Statement is one executed statement.
type Statement struct {
	CQL    string
	Values []any
}

// Session is a fake cql.Session. It understands just enough CQL to act as
// a ledger: inserts into <ks>.migrations are remembered and returned by
// SELECT migration, and CREATE KEYSPACE, CREATE TABLE and DROP KEYSPACE
// are reflected in the system_schema lookups.
// Everything else is recorded and succeeds unless ExecErr says otherwise.
type Session struct {
	mu sync.Mutex

	Executed  []Statement
	Applied   map[string]struct{}
	Keyspaces map[string]*gocql.KeyspaceMetadata
	Tables    map[string]struct{}

	// ExecErr, if set, is consulted before each Exec.
	ExecErr func(stmt string, values []any) error
	// QueryErr, if set, fails every Strings call.
	QueryErr error

	Closed bool
}

// NewSession returns an empty fake session.
func NewSession() *Session {
	return &Session{
		Applied:   make(map[string]struct{}),
		Keyspaces: make(map[string]*gocql.KeyspaceMetadata),
		Tables:    make(map[string]struct{}),
	}
}

// Exec implements cql.Execer.
func (s *Session) Exec(_ context.Context, stmt string, values ...any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ExecErr != nil {
		if err := s.ExecErr(stmt, values); err != nil {
			return err
		}
	}
	s.Executed = append(s.Executed, Statement{CQL: stmt, Values: values})

	fields := strings.Fields(stmt)
	switch {
	case strings.HasPrefix(stmt, "INSERT INTO ") && len(fields) > 2 && strings.HasSuffix(fields[2], ".migrations"):
		s.Applied[fmt.Sprint(values[0])] = struct{}{}
	case strings.HasPrefix(stmt, "CREATE KEYSPACE IF NOT EXISTS ") && len(fields) > 5:
		name := fields[5]
		if _, ok := s.Keyspaces[name]; !ok {
			s.Keyspaces[name] = &gocql.KeyspaceMetadata{Name: name, Tables: map[string]*gocql.TableMetadata{}}
		}
	case strings.HasPrefix(stmt, "CREATE TABLE IF NOT EXISTS ") && len(fields) > 5:
		s.Tables[fields[5]] = struct{}{}
	case strings.HasPrefix(stmt, "DROP KEYSPACE ") && len(fields) > 2:
		delete(s.Keyspaces, fields[2])
		for name := range s.Tables {
			if strings.HasPrefix(name, fields[2]+".") {
				delete(s.Tables, name)
			}
		}
		s.Applied = make(map[string]struct{})
	}
	return nil
}

// Strings implements cql.Querier.
func (s *Session) Strings(_ context.Context, stmt string, values ...any) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.QueryErr != nil {
		return nil, s.QueryErr
	}

	switch {
	case strings.HasPrefix(stmt, "SELECT migration FROM "):
		out := make([]string, 0, len(s.Applied))
		for id := range s.Applied {
			out = append(out, id)
		}
		sort.Strings(out)
		return out, nil
	case strings.Contains(stmt, "system_schema.keyspaces"):
		if _, ok := s.Keyspaces[fmt.Sprint(values[0])]; ok {
			return []string{fmt.Sprint(values[0])}, nil
		}
		return nil, nil
	case strings.Contains(stmt, "system_schema.tables"):
		name := fmt.Sprint(values[0]) + "." + fmt.Sprint(values[1])
		if _, ok := s.Tables[name]; ok {
			return []string{fmt.Sprint(values[1])}, nil
		}
		return nil, nil
	}
	return nil, nil
}

// KeyspaceMetadata implements cql.MetadataSource.
func (s *Session) KeyspaceMetadata(keyspace string) (*gocql.KeyspaceMetadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ks, ok := s.Keyspaces[keyspace]
	if !ok {
		return nil, gocql.ErrKeyspaceDoesNotExist
	}
	return ks, nil
}

// Close implements cql.Session.
func (s *Session) Close() {
	s.mu.Lock()
	s.Closed = true
	s.mu.Unlock()
}

// Statements returns the CQL text of every executed statement.
func (s *Session) Statements() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, len(s.Executed))
	for i, st := range s.Executed {
		out[i] = st.CQL
	}
	return out
}

// AppliedIDs returns the recorded migration ids in ascending order.
func (s *Session) AppliedIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, 0, len(s.Applied))
	for id := range s.Applied {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Record marks ids as already applied.
func (s *Session) Record(ids ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		s.Applied[id] = struct{}{}
	}
}

// FailOn returns an ExecErr that fails any statement containing substr.
func FailOn(substr string, err error) func(string, []any) error {
	return func(stmt string, _ []any) error {
		if strings.Contains(stmt, substr) {
			return err
		}
		return nil
	}
}
