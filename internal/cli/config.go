package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"sigs.k8s.io/yaml"

	"github.com/galleyhq/galley/pkg/cql"
	"github.com/galleyhq/galley/pkg/ledger"
)

const (
	maxWalkDepth = 25

	// Redacted replaces secrets in printed configuration.
	Redacted = "********"
)

// Config represents the galley configuration from galley.yaml.
type Config struct {
	Cassandra CassandraConfig `mapstructure:"cassandra" json:"cassandra"`
	Client    ClientConfig    `mapstructure:"client" json:"client"`
	Paths     PathsConfig     `mapstructure:"paths" json:"paths"`
	Migrate   MigrateConfig   `mapstructure:"migrate" json:"migrate"`
	Snapshot  SnapshotConfig  `mapstructure:"snapshot" json:"snapshot"`
	Data      DataConfig      `mapstructure:"data" json:"data"`
	Solr      SolrConfig      `mapstructure:"solr" json:"solr"`
	Log       LogConfig       `mapstructure:"log" json:"log"`
}

// CassandraConfig holds cluster connection settings.
type CassandraConfig struct {
	ContactPoints   []string       `mapstructure:"contact_points" json:"contact_points"`
	Port            int            `mapstructure:"port" json:"port"`
	Keyspace        string         `mapstructure:"keyspace" json:"keyspace"`
	Username        string         `mapstructure:"username" json:"username,omitempty"`
	Password        string         `mapstructure:"password" json:"password,omitempty"`
	Consistency     string         `mapstructure:"consistency" json:"consistency"`
	Timeout         time.Duration  `mapstructure:"timeout" json:"timeout"`
	Replication     map[string]any `mapstructure:"replication" json:"replication"`
	MigrationMaster bool           `mapstructure:"migration_master" json:"migration_master"`
}

// ClientConfig holds external CQL client settings.
type ClientConfig struct {
	Command string `mapstructure:"command" json:"command"`
}

// PathsConfig holds artifact locations, relative to the working directory.
type PathsConfig struct {
	Migrations string `mapstructure:"migrations" json:"migrations"`
	Data       string `mapstructure:"data" json:"data"`
	Solr       string `mapstructure:"solr" json:"solr"`
	Schema     string `mapstructure:"schema" json:"schema"`
}

// Executor names for migrate.executor.
const (
	ExecutorNative = "native"
	ExecutorClient = "client"
)

// MigrateConfig holds schema migration settings.
type MigrateConfig struct {
	Executor   string `mapstructure:"executor" json:"executor"`
	DumpSchema bool   `mapstructure:"dump_schema" json:"dump_schema"`
}

// Exporter names for snapshot.exporter.
const (
	ExporterClient   = "client"
	ExporterMetadata = "metadata"
)

// SnapshotConfig holds schema snapshot settings.
type SnapshotConfig struct {
	Exporter string `mapstructure:"exporter" json:"exporter"`
}

// DataConfig holds data migration settings.
type DataConfig struct {
	Extension   string            `mapstructure:"extension" json:"extension"`
	Interpreter string            `mapstructure:"interpreter" json:"interpreter"`
	Dir         string            `mapstructure:"dir" json:"dir,omitempty"`
	Env         []string          `mapstructure:"env" json:"env"`
	SetEnv      map[string]string `mapstructure:"set_env" json:"set_env,omitempty"`
}

// SolrConfig holds Solr endpoint settings.
type SolrConfig struct {
	URL      string        `mapstructure:"url" json:"url"`
	Username string        `mapstructure:"username" json:"username,omitempty"`
	Password string        `mapstructure:"password" json:"password,omitempty"`
	Retries  int           `mapstructure:"retries" json:"retries"`
	Timeout  time.Duration `mapstructure:"timeout" json:"timeout"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `mapstructure:"level" json:"level"`
	Format string `mapstructure:"format" json:"format"`
}

// LoadConfig discovers and loads configuration with proper precedence:
// flags > env > config file > defaults.
//
// Returns the loaded config, the path to the config file (empty if none found),
// and any error encountered.
func LoadConfig(explicitConfigPath string) (*Config, string, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("GALLEY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	configPath, err := findConfigFile(explicitConfigPath)
	if err != nil {
		return nil, "", err
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, configPath, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, configPath, fmt.Errorf("unmarshaling config: %w", err)
	}

	// viper lowercases map keys. Datacenter names and environment variable
	// names are case-sensitive, so those maps are taken verbatim from the file.
	if configPath != "" {
		if err := readCaseSensitive(configPath, &cfg); err != nil {
			return nil, configPath, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, configPath, err
	}
	return &cfg, configPath, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("cassandra.contact_points", []string{"127.0.0.1"})
	v.SetDefault("cassandra.port", 9042)
	v.SetDefault("cassandra.keyspace", "")
	v.SetDefault("cassandra.username", "")
	v.SetDefault("cassandra.password", "")
	v.SetDefault("cassandra.consistency", "QUORUM")
	v.SetDefault("cassandra.timeout", 10*time.Second)
	v.SetDefault("cassandra.replication", map[string]any(cql.DefaultReplication()))
	v.SetDefault("cassandra.migration_master", false)

	v.SetDefault("client.command", cql.DefaultShellCommand)

	v.SetDefault("paths.migrations", "db/migrations")
	v.SetDefault("paths.data", "db/data")
	v.SetDefault("paths.solr", "db/solr")
	v.SetDefault("paths.schema", "db/schema.cql")

	v.SetDefault("migrate.executor", ExecutorNative)
	v.SetDefault("migrate.dump_schema", true)

	v.SetDefault("snapshot.exporter", ExporterClient)

	v.SetDefault("data.extension", ".py")
	v.SetDefault("data.interpreter", "python3")
	v.SetDefault("data.dir", "")
	v.SetDefault("data.env", []string{"PYTHONPATH", "ENVIRONMENT"})
	v.SetDefault("data.set_env", map[string]string{})

	v.SetDefault("solr.url", "")
	v.SetDefault("solr.username", "")
	v.SetDefault("solr.password", "")
	v.SetDefault("solr.retries", 3)
	v.SetDefault("solr.timeout", 30*time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
}

// findConfigFile finds the config file to use.
// If explicitPath is provided, it validates the file exists.
// Otherwise, it walks up from cwd looking for galley.yaml or galley.yml,
// stopping at a .git directory or after maxWalkDepth levels.
func findConfigFile(explicitPath string) (string, error) {
	if explicitPath != "" {
		if _, err := os.Stat(explicitPath); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicitPath)
		}
		return explicitPath, nil
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("getting cwd: %w", err)
	}

	dir := cwd
	for i := 0; i < maxWalkDepth; i++ {
		for _, name := range []string{"galley.yaml", "galley.yml"} {
			path := filepath.Join(dir, name)
			if _, err := os.Stat(path); err == nil {
				return path, nil
			}
		}

		if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
			break
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", nil
}

func readCaseSensitive(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}
	var raw struct {
		Cassandra struct {
			Replication map[string]any `json:"replication"`
		} `json:"cassandra"`
		Data struct {
			SetEnv map[string]string `json:"set_env"`
		} `json:"data"`
	}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}
	if raw.Cassandra.Replication != nil {
		cfg.Cassandra.Replication = raw.Cassandra.Replication
	}
	if raw.Data.SetEnv != nil {
		cfg.Data.SetEnv = raw.Data.SetEnv
	}
	return nil
}

// Validate checks enumerated settings.
func (c *Config) Validate() error {
	switch c.Migrate.Executor {
	case ExecutorNative, ExecutorClient:
	default:
		return fmt.Errorf("migrate.executor must be %q or %q, got %q", ExecutorNative, ExecutorClient, c.Migrate.Executor)
	}
	switch c.Snapshot.Exporter {
	case ExporterClient, ExporterMetadata:
	default:
		return fmt.Errorf("snapshot.exporter must be %q or %q, got %q", ExporterClient, ExporterMetadata, c.Snapshot.Exporter)
	}
	return nil
}

// RequireKeyspace returns the configured keyspace, or an error naming the
// setting to fill in when it is missing or not a usable keyspace name.
func (c *Config) RequireKeyspace() (string, error) {
	if c.Cassandra.Keyspace == "" {
		return "", fmt.Errorf("cassandra.keyspace is required (set it in galley.yaml or pass --keyspace)")
	}
	if err := ledger.ValidateKeyspace(c.Cassandra.Keyspace); err != nil {
		return "", fmt.Errorf("cassandra.keyspace: %w", err)
	}
	return c.Cassandra.Keyspace, nil
}

// CQL returns the session settings.
func (c *Config) CQL() cql.Config {
	return cql.Config{
		ContactPoints: c.Cassandra.ContactPoints,
		Port:          c.Cassandra.Port,
		Username:      c.Cassandra.Username,
		Password:      c.Cassandra.Password,
		Consistency:   c.Cassandra.Consistency,
		Timeout:       c.Cassandra.Timeout,
	}
}

// Replication returns the configured keyspace replication.
func (c *Config) Replication() cql.Replication {
	if len(c.Cassandra.Replication) == 0 {
		return cql.DefaultReplication()
	}
	return cql.Replication(c.Cassandra.Replication)
}

// ResolvedDataDir returns the working directory for data scripts,
// defaulting to the data root.
func (c *Config) ResolvedDataDir() string {
	if c.Data.Dir != "" {
		return c.Data.Dir
	}
	return c.Paths.Data
}

// Redact returns a copy with secrets replaced, for printing.
func (c *Config) Redact() *Config {
	out := *c
	if out.Cassandra.Password != "" {
		out.Cassandra.Password = Redacted
	}
	if out.Solr.Password != "" {
		out.Solr.Password = Redacted
	}
	return &out
}
