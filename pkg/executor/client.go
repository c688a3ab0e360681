package executor

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/galleyhq/galley"
	"github.com/galleyhq/galley/pkg/artifact"
	"github.com/galleyhq/galley/pkg/cql"
)

// Client runs a CQL artifact through the external client (cqlsh -f <file> -k <keyspace>).
type Client struct {
	Shell    *cql.Shell
	Keyspace string
	Log      *zap.Logger
}

// Execute implements Executor.
func (c *Client) Execute(ctx context.Context, a artifact.Artifact) error {
	res, err := c.Shell.RunFile(ctx, a.Path, c.Keyspace)
	if err != nil {
		return fmt.Errorf("%w: %v", galley.ErrTransport, err)
	}
	if !res.OK() {
		if c.Log != nil {
			c.Log.Error("cqlsh failed, migration partially applied",
				zap.String("migration", a.ID),
				zap.Int("exit_code", res.ExitCode),
				zap.String("output", res.Output()))
		}
		return &galley.PartialApplicationError{
			Artifact: a.ID,
			ExitCode: res.ExitCode,
			Output:   res.Output(),
		}
	}
	return nil
}
