// Package snapshot exports a keyspace schema to a single CQL file and loads
// it back into an empty cluster.
//
// Two exporters are available. ClientExporter asks cqlsh to DESCRIBE the
// keyspace and is complete. MetadataExporter renders the keyspace and its
// tables from driver metadata and needs no external client, but does not
// render indexes, user types, or materialized views.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/gocql/gocql"

	"github.com/galleyhq/galley"
	"github.com/galleyhq/galley/internal/process"
	"github.com/galleyhq/galley/pkg/cql"
)

// Exporter serializes the schema of one keyspace.
type Exporter interface {
	Export(ctx context.Context, keyspace string) (string, error)
}

// StatementRunner runs one inline CQL statement through the external client.
// *cql.Shell implements it.
type StatementRunner interface {
	Execute(ctx context.Context, stmt string) (*process.Result, error)
}

// ClientExporter exports with "DESCRIBE KEYSPACE <keyspace>".
type ClientExporter struct {
	Shell StatementRunner
}

// Export implements Exporter.
func (e *ClientExporter) Export(ctx context.Context, keyspace string) (string, error) {
	res, err := e.Shell.Execute(ctx, "DESCRIBE KEYSPACE "+keyspace)
	if err != nil {
		return "", fmt.Errorf("%w: describing keyspace %s: %v", galley.ErrTransport, keyspace, err)
	}
	if !res.OK() {
		return "", fmt.Errorf("%w: describing keyspace %s: exit status %d: %s",
			galley.ErrTransport, keyspace, res.ExitCode, strings.TrimSpace(res.Output()))
	}
	return strings.TrimSpace(string(res.Stdout)) + "\n", nil
}

// MetadataExporter exports from driver schema metadata.
type MetadataExporter struct {
	Source cql.MetadataSource
}

// Export implements Exporter.
func (e *MetadataExporter) Export(_ context.Context, keyspace string) (string, error) {
	md, err := e.Source.KeyspaceMetadata(keyspace)
	if err != nil {
		if errors.Is(err, gocql.ErrKeyspaceDoesNotExist) {
			return "", fmt.Errorf("%w: keyspace %s", galley.ErrArtifactNotFound, keyspace)
		}
		return "", fmt.Errorf("reading metadata for %s: %w", keyspace, err)
	}
	return Render(md), nil
}

// Render formats keyspace metadata as CQL: one CREATE KEYSPACE followed by
// a CREATE TABLE per table in name order.
func Render(md *gocql.KeyspaceMetadata) string {
	var b strings.Builder

	replication := cql.Replication{"class": md.StrategyClass}
	for k, v := range md.StrategyOptions {
		replication[k] = v
	}
	fmt.Fprintf(&b, "CREATE KEYSPACE %s WITH replication = %s AND durable_writes = %t;\n",
		md.Name, replication, md.DurableWrites)

	names := make([]string, 0, len(md.Tables))
	for name := range md.Tables {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		b.WriteString("\n")
		renderTable(&b, md.Name, md.Tables[name])
	}
	return b.String()
}

func renderTable(b *strings.Builder, keyspace string, t *gocql.TableMetadata) {
	var lines []string
	for _, col := range orderedColumns(t) {
		lines = append(lines, col.Name+" "+col.Validator)
	}

	if partition := columnNames(t.PartitionKey); len(partition) > 0 {
		key := partition[0]
		if len(partition) > 1 {
			key = "(" + strings.Join(partition, ", ") + ")"
		}
		if len(t.ClusteringColumns) > 0 {
			key += ", " + strings.Join(columnNames(t.ClusteringColumns), ", ")
		}
		lines = append(lines, "PRIMARY KEY ("+key+")")
	}

	fmt.Fprintf(b, "CREATE TABLE %s.%s (\n    %s\n)", keyspace, t.Name, strings.Join(lines, ",\n    "))

	if len(t.ClusteringColumns) > 0 {
		order := make([]string, len(t.ClusteringColumns))
		for i, col := range t.ClusteringColumns {
			dir := "ASC"
			if col.Order == gocql.DESC {
				dir = "DESC"
			}
			order[i] = col.Name + " " + dir
		}
		fmt.Fprintf(b, " WITH CLUSTERING ORDER BY (%s)", strings.Join(order, ", "))
	}
	b.WriteString(";\n")
}

// orderedColumns returns partition key columns, then clustering columns,
// then the remaining columns by name.
func orderedColumns(t *gocql.TableMetadata) []*gocql.ColumnMetadata {
	seen := make(map[string]struct{})
	var out []*gocql.ColumnMetadata
	for _, col := range append(append([]*gocql.ColumnMetadata{}, t.PartitionKey...), t.ClusteringColumns...) {
		seen[col.Name] = struct{}{}
		out = append(out, col)
	}

	rest := make([]string, 0, len(t.Columns))
	for name := range t.Columns {
		if _, ok := seen[name]; !ok {
			rest = append(rest, name)
		}
	}
	sort.Strings(rest)
	for _, name := range rest {
		out = append(out, t.Columns[name])
	}
	return out
}

func columnNames(cols []*gocql.ColumnMetadata) []string {
	out := make([]string, len(cols))
	for i, col := range cols {
		out[i] = col.Name
	}
	return out
}
