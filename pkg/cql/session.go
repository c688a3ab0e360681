// Package cql connects to Cassandra and wraps the cqlsh client.
//
// The rest of galley talks to the cluster through the Session interface so
// that the ledger, executors, and snapshot exporters can be tested without a
// running cluster.
package cql

import (
	"context"
	"fmt"
	"time"

	"github.com/gocql/gocql"
	"go.uber.org/zap"

	"github.com/galleyhq/galley"
)

// SystemKeyspace is used when the target keyspace may not exist yet.
const SystemKeyspace = "system"

// Execer executes a statement that returns no rows.
type Execer interface {
	Exec(ctx context.Context, stmt string, values ...any) error
}

// Querier runs a query whose first column is text and returns every value.
type Querier interface {
	Strings(ctx context.Context, stmt string, values ...any) ([]string, error)
}

// MetadataSource exposes driver schema metadata. *gocql.Session implements it.
type MetadataSource interface {
	KeyspaceMetadata(keyspace string) (*gocql.KeyspaceMetadata, error)
}

// Session is the subset of a CQL session galley uses.
type Session interface {
	Execer
	Querier
	MetadataSource
	Close()
}

// Config describes how to reach the cluster.
type Config struct {
	ContactPoints []string
	Port          int
	Username      string
	Password      string
	Consistency   string
	Timeout       time.Duration
}

// AuthEnabled reports whether credentials were supplied.
func (c Config) AuthEnabled() bool {
	return c.Username != "" && c.Password != ""
}

// Connect opens a session bound to keyspace. Connection failures wrap
// galley.ErrTransport.
func Connect(cfg Config, keyspace string, log *zap.Logger) (Session, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if len(cfg.ContactPoints) == 0 {
		return nil, fmt.Errorf("%w: no contact points configured", galley.ErrInvalidArgument)
	}

	consistency := gocql.Quorum
	if cfg.Consistency != "" {
		c, err := gocql.ParseConsistencyWrapper(cfg.Consistency)
		if err != nil {
			return nil, fmt.Errorf("%w: consistency %q: %v", galley.ErrInvalidArgument, cfg.Consistency, err)
		}
		consistency = c
	}

	cluster := gocql.NewCluster(cfg.ContactPoints...)
	cluster.Keyspace = keyspace
	cluster.Consistency = consistency
	if cfg.Port != 0 {
		cluster.Port = cfg.Port
	}
	if cfg.Timeout > 0 {
		cluster.Timeout = cfg.Timeout
		cluster.ConnectTimeout = cfg.Timeout
	}
	if cfg.AuthEnabled() {
		cluster.Authenticator = gocql.PasswordAuthenticator{
			Username: cfg.Username,
			Password: cfg.Password,
		}
	}

	log.Debug("Connecting to Cassandra",
		zap.Strings("contact_points", cfg.ContactPoints),
		zap.String("keyspace", keyspace),
		zap.Stringer("consistency", consistency))

	s, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("%w: connecting to %v: %v", galley.ErrTransport, cfg.ContactPoints, err)
	}
	return &session{s: s, consistency: consistency}, nil
}

type session struct {
	s           *gocql.Session
	consistency gocql.Consistency
}

func (s *session) query(ctx context.Context, stmt string, values ...any) *gocql.Query {
	return s.s.Query(stmt, values...).WithContext(ctx).Consistency(s.consistency)
}

func (s *session) Exec(ctx context.Context, stmt string, values ...any) error {
	return s.query(ctx, stmt, values...).Exec()
}

func (s *session) Strings(ctx context.Context, stmt string, values ...any) ([]string, error) {
	iter := s.query(ctx, stmt, values...).Iter()

	var (
		out []string
		v   string
	)
	for iter.Scan(&v) {
		out = append(out, v)
	}
	if err := iter.Close(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *session) KeyspaceMetadata(keyspace string) (*gocql.KeyspaceMetadata, error) {
	return s.s.KeyspaceMetadata(keyspace)
}

func (s *session) Close() {
	s.s.Close()
}
