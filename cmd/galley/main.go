// Package main provides the galley CLI.
//
// galley applies versioned migrations to a Cassandra keyspace and publishes
// Solr core configuration:
//   - cassandra: create/drop the keyspace, run CQL migrations, dump and load
//     the schema snapshot
//   - data: run data migration scripts through the same ledger
//   - solr: upload core configuration and create or reload cores
//   - status, doctor: report progress and project health
//
// Only a process configured as the migration master changes cluster state;
// every other process treats mutating commands as a no-op.
//
// Usage:
//
//	galley [flags] <command>
package main

func main() {
	Execute()
}
