//go:build integration

package cqltest

import (
	"context"
	"fmt"
	"net"
	"os"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/cassandra"

	"github.com/galleyhq/galley/pkg/cql"
)

// Image is the Cassandra image started when CASSANDRA_HOST is unset.
const Image = "cassandra:4.1"

var (
	clusterOnce sync.Once
	clusterCfg  cql.Config
	clusterErr  error
)

// Cluster returns connection settings for a real Cassandra node.
//
// If CASSANDRA_HOST is set (optionally with CASSANDRA_PORT) that node is
// used. Otherwise one container is started for the whole test binary and
// left for ryuk to reap.
func Cluster(t *testing.T) cql.Config {
	t.Helper()
	clusterOnce.Do(func() {
		clusterCfg, clusterErr = startCluster()
	})
	require.NoError(t, clusterErr)
	return clusterCfg
}

func startCluster() (cql.Config, error) {
	cfg := cql.Config{Consistency: "ONE", Timeout: 30 * time.Second}

	if host := os.Getenv("CASSANDRA_HOST"); host != "" {
		cfg.ContactPoints = []string{host}
		cfg.Port = 9042
		if p := os.Getenv("CASSANDRA_PORT"); p != "" {
			port, err := strconv.Atoi(p)
			if err != nil {
				return cql.Config{}, fmt.Errorf("CASSANDRA_PORT: %w", err)
			}
			cfg.Port = port
		}
		return cfg, nil
	}

	ctx := context.Background()
	container, err := cassandra.Run(ctx, Image)
	if err != nil {
		return cql.Config{}, fmt.Errorf("failed to start Cassandra container: %w", err)
	}

	hostPort, err := container.ConnectionHost(ctx)
	if err != nil {
		_ = testcontainers.TerminateContainer(container)
		return cql.Config{}, fmt.Errorf("failed to get Cassandra address: %w", err)
	}
	host, port, err := net.SplitHostPort(hostPort)
	if err != nil {
		_ = testcontainers.TerminateContainer(container)
		return cql.Config{}, err
	}
	cfg.ContactPoints = []string{host}
	cfg.Port, err = strconv.Atoi(port)
	if err != nil {
		_ = testcontainers.TerminateContainer(container)
		return cql.Config{}, err
	}
	return cfg, nil
}
