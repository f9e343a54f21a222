package config

import (
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

type Config struct {
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	HTTP     HTTP
	DB       DB
	Redis    Redis
	Cluster  Cluster
	Queue    Queue
	Toggles  Toggles
	Indexer  Indexer
}

type HTTP struct {
	Port int `env:"HTTP_PORT" envDefault:"8080"`
}

type DB struct {
	// Driver is "sqlite" or "pgx".
	Driver string `env:"DB_DRIVER" envDefault:"sqlite"`
	DSN    string `env:"DB_DSN" envDefault:"file:indexq.db?_pragma=busy_timeout(5000)"`
}

type Redis struct {
	Addr      string `env:"Redis_Address"`
	Password  string `env:"Redis_Password"`
	DB        int    `env:"Redis_DB"`
	StreamKey string `env:"Redis_StreamKey" envDefault:"indexq:signals"`
	MaxLen    int64  `env:"Redis_StreamMaxLen" envDefault:"1000"`
	// SignalRate caps outgoing signals per second.
	SignalRate  float64 `env:"Redis_SignalRate" envDefault:"5"`
	SignalBurst int     `env:"Redis_SignalBurst" envDefault:"10"`
}

type Cluster struct {
	NodeName      string   `env:"CLUSTER_NODE_NAME"`
	Nodes         []string `env:"CLUSTER_NODES" envSeparator:","`
	SharedStorage bool     `env:"CLUSTER_SHARED_STORAGE"`
	LockPath      string   `env:"CLUSTER_LOCK_PATH" envDefault:"indexq.lock"`
}

type Queue struct {
	BatchSize    int           `env:"QUEUE_BATCH_SIZE" envDefault:"10"`
	MaxRestarts  int           `env:"QUEUE_MAX_RESTARTS" envDefault:"5"`
	RestartDelay time.Duration `env:"QUEUE_RESTART_DELAY" envDefault:"1s"`
	RestartMax   time.Duration `env:"QUEUE_RESTART_MAX_DELAY" envDefault:"30s"`
	SweepSpec    string        `env:"QUEUE_SWEEP_SPEC" envDefault:"@every 1m"`
}

type Toggles struct {
	Indexing           bool   `env:"INDEXING_ENABLED" envDefault:"true"`
	TaskCreation       bool   `env:"TASK_CREATION_ENABLED" envDefault:"true"`
	Search             bool   `env:"SEARCH_ENABLED" envDefault:"true"`
	ProcessImmediately bool   `env:"PROCESS_IMMEDIATELY" envDefault:"true"`
	File               string `env:"TOGGLES_FILE"`
}

type Indexer struct {
	DefaultEndpoint string            `env:"INDEXER_DEFAULT_ENDPOINT"`
	Endpoints       map[string]string `env:"INDEXER_ENDPOINTS" envSeparator:"," envKeyValSeparator:"="`
	Timeout         time.Duration     `env:"INDEXER_TIMEOUT" envDefault:"30s"`
	OwnedIndexes    []int64           `env:"INDEXER_OWNED_INDEXES" envSeparator:","`
}

// Load reads an optional .env file and then the process environment.
func Load() *Config {
	c, err := Parse()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	return c
}

func Parse() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	var c Config
	if err := env.Parse(&c); err != nil {
		return nil, err
	}
	if c.Cluster.NodeName == "" {
		host, err := os.Hostname()
		if err != nil {
			return nil, fmt.Errorf("resolve node name: %w", err)
		}
		c.Cluster.NodeName = host
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks settings that flags may have changed after Parse.
func (c *Config) Validate() error {
	if c.Queue.BatchSize <= 0 {
		return fmt.Errorf("QUEUE_BATCH_SIZE must be positive, got %d", c.Queue.BatchSize)
	}
	// a partitioned node missing from the list would never get a row to drain
	if !c.Cluster.SharedStorage && len(c.Cluster.Nodes) > 1 && !slices.Contains(c.Cluster.Nodes, c.Cluster.NodeName) {
		return fmt.Errorf("node %q is not listed in CLUSTER_NODES %v", c.Cluster.NodeName, c.Cluster.Nodes)
	}
	return nil
}
