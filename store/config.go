package store

import (
	"context"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/jacentio/lattice/model"
)

// Config holds configuration for the Store. It is the context shared by every controller
// the store creates.
type Config struct {
	// ID identifies the store in logs and metrics.
	// Default: "lattice"
	ID string

	// TablePrefix is prepended to every table name when NamingStrategy is unset.
	// Default: "" (table names are used as-is)
	TablePrefix string

	// NamingStrategy maps model table names to DynamoDB table names.
	// Default: DirectoryPrefixedNaming{Prefix: TablePrefix}, or IdentityNaming without a prefix
	NamingStrategy NamingStrategy

	// CopyStrategy is passed to controllers created by the store.
	// Default: model.CopyAlways
	CopyStrategy model.CopyStrategy

	// CreateAbsentTables creates missing tables on first use instead of failing.
	// Default: true (nil is treated as true; use aws.Bool(false) to disable)
	CreateAbsentTables *bool

	// TableWaitTimeout bounds the wait for a newly created table to become active.
	// Default: 2m
	TableWaitTimeout time.Duration

	// Region and Endpoint configure the client built by NewClient.
	// An empty Endpoint uses the regional AWS endpoint.
	Region   string
	Endpoint string

	// MaxAttempts is the retry budget of the client built by NewClient.
	// Default: 3
	MaxAttempts int

	// MaxParallelOps bounds how many operations of one Execute call run concurrently.
	// Default: 8
	// Max: 64
	MaxParallelOps int

	// Logger receives per-operation diagnostics.
	// Default: a no-op logger
	Logger *zap.SugaredLogger

	// Metrics receives operation counters. Default: unregistered metrics.
	Metrics *Metrics
}

// DefaultConfig returns sensible defaults for a single-application deployment.
func DefaultConfig() Config {
	return Config{
		ID:                 "lattice",
		CopyStrategy:       model.DefaultCopyStrategy,
		CreateAbsentTables: aws.Bool(true),
		TableWaitTimeout:   2 * time.Minute,
		MaxAttempts:        3,
		MaxParallelOps:     8,
	}
}

// validate ensures config values are within acceptable bounds.
func (c *Config) validate() {
	if c.ID == "" {
		c.ID = "lattice"
	}
	if c.NamingStrategy == nil {
		if c.TablePrefix != "" {
			c.NamingStrategy = DirectoryPrefixedNaming{Prefix: c.TablePrefix}
		} else {
			c.NamingStrategy = IdentityNaming{}
		}
	}
	if c.CopyStrategy < model.CopyAlways || c.CopyStrategy > model.CopyOnSet {
		c.CopyStrategy = model.DefaultCopyStrategy
	}
	if c.TableWaitTimeout <= 0 {
		c.TableWaitTimeout = 2 * time.Minute
	}
	if c.CreateAbsentTables == nil {
		c.CreateAbsentTables = aws.Bool(true)
	}
	if c.MaxAttempts < 1 {
		c.MaxAttempts = 3
	}
	if c.MaxParallelOps < 1 {
		c.MaxParallelOps = 8
	}
	if c.MaxParallelOps > 64 {
		c.MaxParallelOps = 64
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop().Sugar()
	}
	if c.Metrics == nil {
		c.Metrics = NewMetrics(nil)
	}
}

// fileConfig is the YAML form of Config.
type fileConfig struct {
	ID                 string        `yaml:"id"`
	TablePrefix        string        `yaml:"table_prefix"`
	CopyStrategy       string        `yaml:"copy_strategy"`
	CreateAbsentTables *bool         `yaml:"create_absent_tables"`
	TableWaitTimeout   time.Duration `yaml:"table_wait_timeout"`
	Region             string        `yaml:"region"`
	Endpoint           string        `yaml:"endpoint"`
	MaxAttempts        int           `yaml:"max_attempts"`
	MaxParallelOps     int           `yaml:"max_parallel_ops"`
}

// LoadConfig reads a YAML config file over DefaultConfig. Unset keys keep their defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrapf(err, "read config %s", path)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return cfg, errors.Wrapf(err, "parse config %s", path)
	}

	if fc.ID != "" {
		cfg.ID = fc.ID
	}
	cfg.TablePrefix = fc.TablePrefix
	if fc.CopyStrategy != "" {
		s, ok := model.ParseCopyStrategy(fc.CopyStrategy)
		if !ok {
			return cfg, errors.Newf("lattice: unknown copy strategy %q in %s", fc.CopyStrategy, path)
		}
		cfg.CopyStrategy = s
	}
	if fc.CreateAbsentTables != nil {
		cfg.CreateAbsentTables = aws.Bool(*fc.CreateAbsentTables)
	}
	if fc.TableWaitTimeout > 0 {
		cfg.TableWaitTimeout = fc.TableWaitTimeout
	}
	cfg.Region = fc.Region
	cfg.Endpoint = fc.Endpoint
	if fc.MaxAttempts > 0 {
		cfg.MaxAttempts = fc.MaxAttempts
	}
	if fc.MaxParallelOps > 0 {
		cfg.MaxParallelOps = fc.MaxParallelOps
	}
	return cfg, nil
}

// NewClient builds a DynamoDB client from the default AWS credential chain, applying the
// config's region, endpoint and retry budget.
func NewClient(ctx context.Context, cfg Config) (*dynamodb.Client, error) {
	cfg.validate()

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRetryMaxAttempts(cfg.MaxAttempts),
	}
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "load AWS config")
	}

	return dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	}), nil
}
