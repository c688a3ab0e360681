// Package galley applies versioned migrations to a Cassandra keyspace and
// publishes Solr core configuration.
//
// # Ledger
//
// Applied migrations are tracked in a single-column table inside the target
// keyspace:
//
//	CREATE TABLE <keyspace>.migrations (migration text PRIMARY KEY)
//
// A migration is recorded only after every statement in it succeeded. A run
// stops at the first failing migration; earlier migrations in the same run stay
// recorded, so re-running resumes where the previous run stopped.
//
// # Layout
//
//	db/migrations/YYYYMMDDHHMM_name.cql   schema migrations
//	db/data/YYYYMMDDHHMM_name.py          data migrations
//	db/solr/<core>/...                    Solr core configuration
//	db/schema.cql                         schema snapshot
//
// Identifiers are file names. Because they start with a minute-precision
// timestamp, lexical order is creation order, and pending migrations always
// run in ascending identifier order.
//
// # Packages
//
//   - pkg/artifact: discover and scaffold migration files
//   - pkg/ledger: read and write the applied-migration table
//   - pkg/executor: run a single migration
//   - pkg/migrator: reconcile disk against the ledger
//   - pkg/snapshot: export and import the keyspace schema
//   - pkg/solr: upload and create/reload Solr cores
//
// This package holds the error taxonomy shared by all of them.
package galley
