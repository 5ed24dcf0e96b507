package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	App      AppConfig      `yaml:"app"`
	Logging  LoggingConfig  `yaml:"logging"`
	Security SecurityConfig `yaml:"security"`
	Chain    ChainConfig    `yaml:"chain"`
	Ingest   IngestConfig   `yaml:"ingest"`
	Dedupe   DedupeConfig   `yaml:"dedupe"`
	Stores   StoresConfig   `yaml:"stores"`
	PubSub   PubSubConfig   `yaml:"pubsub"`
	API      APIConfig      `yaml:"api"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

type AppConfig struct {
	InstanceID      string        `yaml:"instance_id"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug|info|warn|error
	Format string `yaml:"format"` // json|console
}

type JWTConfig struct {
	Enabled       bool   `yaml:"enabled"`
	PublicKeyPath string `yaml:"public_key_path"`
	Audience      string `yaml:"audience"`
	Issuer        string `yaml:"issuer"`
}

type SecurityConfig struct {
	JWT JWTConfig `yaml:"jwt"`
}

// ChainConfig is the per-deployment table of contract addresses and pricing
// sources. It is injected into the price resolver and entity accessors at
// startup, never read from package-level state.
type ChainConfig struct {
	// main exchange contract; also the pool entity id
	PoolAddress string `yaml:"pool_address"`
	// cove (sub-vault) contract
	CoveAddress string `yaml:"cove_address"`
	// helper contract that proxies farming deposits; transfers from it
	// re-point deposit attribution
	FarmingHelperAddress string `yaml:"farming_helper_address"`
	// alias for the zero address on cove swaps (wrapped native asset)
	WrappedNativeAddress string `yaml:"wrapped_native_address"`

	// symbol -> chainlink-style oracle address
	OracleAddresses map[string]string `yaml:"oracle_addresses"`
	// symbol -> static USD price, degraded-mode safety net
	FallbackPrices map[string]string `yaml:"fallback_prices"`
	// assets that trade directly against the main pool; anything else is
	// long-tail and lives in a cove
	ShortTailAssets []string `yaml:"short_tail_assets"`

	// deployment-specific workaround: when set, pool liquidity is reported
	// as this constant instead of summing live balances
	PoolValueOverrideUSD string `yaml:"pool_value_override_usd"`

	// yaml chain-state snapshot for dev runs without an RPC node
	SnapshotPath string `yaml:"snapshot_path"`
}

type IngestConfig struct {
	URL     string `yaml:"url"`     // NATS url of the decoded-event feed
	Subject string `yaml:"subject"` // subject carrying ordered events
	Durable string `yaml:"durable"`
}

type BloomConfig struct {
	Enabled  bool    `yaml:"enabled"`
	Key      string  `yaml:"key"`
	Capacity int64   `yaml:"capacity"`
	ErrRate  float64 `yaml:"err_rate"`
}

type DedupeConfig struct {
	TTL    time.Duration `yaml:"ttl"`
	Prefix string        `yaml:"prefix"`
	Bloom  BloomConfig   `yaml:"bloom"`
}

type RedisConfig struct {
	Addr         string        `yaml:"addr"`
	Username     string        `yaml:"username"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	Prefix       string        `yaml:"prefix"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

type ClickHouseWriterConfig struct {
	BatchMaxRows     int           `yaml:"batch_max_rows"`
	BatchMaxInterval time.Duration `yaml:"batch_max_interval"`
	MaxRetries       int           `yaml:"max_retries"`
	RetryBackoff     time.Duration `yaml:"retry_backoff"`
}

type ClickHouseConfig struct {
	DSN    string                 `yaml:"dsn"`
	Writer ClickHouseWriterConfig `yaml:"writer"`
}

type StoresConfig struct {
	Redis      RedisConfig      `yaml:"redis"`
	ClickHouse ClickHouseConfig `yaml:"clickhouse"`
}

type NATSConfig struct {
	URL             string `yaml:"url"`
	BroadcastPrefix string `yaml:"broadcast_prefix"`
}

type PubSubConfig struct {
	NATS NATSConfig `yaml:"nats"`
}

type CORSConfig struct {
	Enabled bool     `yaml:"enabled"`
	Origins []string `yaml:"origins"`
	Methods []string `yaml:"methods"`
	Headers []string `yaml:"headers"`
}

type RateBucketConfig struct {
	RefillPerSec int           `yaml:"refill_per_sec"`
	Burst        int           `yaml:"burst"`
	TTL          time.Duration `yaml:"ttl"`
}

type RateLimitConfig struct {
	Enabled bool             `yaml:"enabled"`
	ByIP    RateBucketConfig `yaml:"by_ip"`
	ByJWT   RateBucketConfig `yaml:"by_jwt"`
}

type HTTPConfig struct {
	Addr         string          `yaml:"addr"`
	ReadTimeout  time.Duration   `yaml:"read_timeout"`
	WriteTimeout time.Duration   `yaml:"write_timeout"`
	IdleTimeout  time.Duration   `yaml:"idle_timeout"`
	GzipLevel    int             `yaml:"gzip_level"`
	CORS         CORSConfig      `yaml:"cors"`
	RateLimit    RateLimitConfig `yaml:"rate_limit"`
}

type APIConfig struct {
	HTTP HTTPConfig `yaml:"http"`
}

type PyroscopeConfig struct {
	Enabled    bool              `yaml:"enabled"`
	AppName    string            `yaml:"app_name"`
	ServerAddr string            `yaml:"server_addr"`
	AuthToken  string            `yaml:"auth_token"`
	Tags       map[string]string `yaml:"tags"`
}

type MetricsConfig struct {
	Pyroscope PyroscopeConfig `yaml:"pyroscope"`
}

func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err = yaml.Unmarshal(b, &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
