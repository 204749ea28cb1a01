package shared

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	"go.uber.org/config"

	"barefoot_sync/internal/domain"
)

type Config struct {
	AppEnv      string `yaml:"appEnv"`
	HTTPAddr    string `yaml:"httpAddr"`
	MetricsAddr string `yaml:"metricsAddr"`
	AdminToken  string `yaml:"adminToken"`

	StoreDriver string `yaml:"storeDriver"` // sqlite|mysql
	SQLitePath  string `yaml:"sqlitePath"`
	MySQLDSN    string `yaml:"mysqlDSN"`

	RedisAddr string        `yaml:"redisAddr"`
	RedisDB   int           `yaml:"redisDB"`
	RedisPass string        `yaml:"redisPassword"`
	CacheTTL  time.Duration `yaml:"cacheTTL"`

	Barefoot BarefootConfig `yaml:"barefoot"`
	Sync     SyncConfig     `yaml:"sync"`
}

type BarefootConfig struct {
	Endpoint       string        `yaml:"endpoint"`
	Username       string        `yaml:"username"`
	Password       string        `yaml:"password"`
	Account        string        `yaml:"account"`
	ConnectTimeout time.Duration `yaml:"connectTimeout"`
	CallTimeout    time.Duration `yaml:"callTimeout"`
	RPS            int           `yaml:"rps"`
	RetryAttempts  int           `yaml:"retryAttempts"`
}

type SyncConfig struct {
	Enrich           bool          `yaml:"enrich"`
	EnrichWorkers    int           `yaml:"enrichWorkers"`
	RateWindowDays   int           `yaml:"rateWindowDays"`
	LeaseTTL         time.Duration `yaml:"leaseTTL"`
	Interval         time.Duration `yaml:"interval"`
	DistributedLease bool          `yaml:"distributedLease"`
}

func (c Config) Credentials() domain.Credentials {
	return domain.Credentials{
		Endpoint: c.Barefoot.Endpoint,
		Username: c.Barefoot.Username,
		Password: c.Barefoot.Password,
		Account:  c.Barefoot.Account,
	}
}

func defaults() Config {
	return Config{
		AppEnv:      "prod",
		HTTPAddr:    ":8080",
		StoreDriver: "sqlite",
		SQLitePath:  "barefoot.db",
		MySQLDSN:    "root:root@tcp(localhost:3306)/barefoot?parseTime=true&charset=utf8mb4,utf8&loc=UTC",
		RedisAddr:   "",
		CacheTTL:    900 * time.Second,
		Barefoot: BarefootConfig{
			Endpoint:       "https://portals.barefoot.com/BarefootWebService/BarefootService.asmx",
			ConnectTimeout: 30 * time.Second,
			CallTimeout:    60 * time.Second,
			RPS:            5,
			RetryAttempts:  3,
		},
		Sync: SyncConfig{
			Enrich:         true,
			EnrichWorkers:  3,
			RateWindowDays: 365,
			LeaseTTL:       30 * time.Minute,
		},
	}
}

// Load builds the process configuration once at startup: defaults, then the
// YAML file named by BAREFOOT_CONFIG (if any), then environment variables.
func Load() (Config, error) {
	c := defaults()
	if path := os.Getenv("BAREFOOT_CONFIG"); path != "" {
		if err := loadFile(path, &c); err != nil {
			return c, err
		}
	}
	applyEnv(&c)
	if c.Barefoot.Username == "" || c.Barefoot.Password == "" {
		log.Warn().Msg("BAREFOOT_USERNAME or BAREFOOT_PASSWORD is empty")
	}
	return c, nil
}

func loadFile(path string, c *Config) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open config %s: %w", path, err)
	}
	defer f.Close()

	yaml, err := config.NewYAML(config.Source(f), config.Expand(os.LookupEnv))
	if err != nil {
		return fmt.Errorf("failed to read yaml config %w", err)
	}
	if err := yaml.Get(config.Root).Populate(c); err != nil {
		return fmt.Errorf("failed to populate config from %s: %w", path, err)
	}
	return nil
}

func applyEnv(c *Config) {
	c.AppEnv = env("APP_ENV", c.AppEnv)
	c.HTTPAddr = env("HTTP_ADDR", c.HTTPAddr)
	c.MetricsAddr = env("METRICS_ADDR", c.MetricsAddr)
	c.AdminToken = env("ADMIN_TOKEN", c.AdminToken)
	c.StoreDriver = env("STORE_DRIVER", c.StoreDriver)
	c.SQLitePath = env("SQLITE_PATH", c.SQLitePath)
	c.MySQLDSN = env("MYSQL_DSN", c.MySQLDSN)
	c.RedisAddr = env("REDIS_ADDR", c.RedisAddr)
	c.RedisPass = env("REDIS_PASSWORD", c.RedisPass)
	c.RedisDB = atoi("REDIS_DB", c.RedisDB)
	c.CacheTTL = time.Duration(atoi("CACHE_TTL_SECONDS", int(c.CacheTTL.Seconds()))) * time.Second

	c.Barefoot.Endpoint = env("BAREFOOT_ENDPOINT", c.Barefoot.Endpoint)
	c.Barefoot.Username = env("BAREFOOT_USERNAME", c.Barefoot.Username)
	c.Barefoot.Password = env("BAREFOOT_PASSWORD", c.Barefoot.Password)
	c.Barefoot.Account = env("BAREFOOT_ACCOUNT", c.Barefoot.Account)
	c.Barefoot.ConnectTimeout = dur("BAREFOOT_CONNECT_TIMEOUT", c.Barefoot.ConnectTimeout)
	c.Barefoot.CallTimeout = dur("BAREFOOT_CALL_TIMEOUT", c.Barefoot.CallTimeout)
	c.Barefoot.RPS = atoi("BAREFOOT_RPS", c.Barefoot.RPS)
	c.Barefoot.RetryAttempts = atoi("BAREFOOT_RETRY_ATTEMPTS", c.Barefoot.RetryAttempts)

	c.Sync.Enrich = boolean("SYNC_ENRICH", c.Sync.Enrich)
	c.Sync.EnrichWorkers = atoi("SYNC_ENRICH_WORKERS", c.Sync.EnrichWorkers)
	c.Sync.RateWindowDays = atoi("SYNC_RATE_WINDOW_DAYS", c.Sync.RateWindowDays)
	c.Sync.LeaseTTL = dur("SYNC_LEASE_TTL", c.Sync.LeaseTTL)
	c.Sync.Interval = dur("SYNC_INTERVAL", c.Sync.Interval)
	c.Sync.DistributedLease = boolean("SYNC_DISTRIBUTED_LEASE", c.Sync.DistributedLease)
}

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func atoi(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
		log.Warn().Str("key", k).Str("value", v).Msg("ignoring non-integer env value")
	}
	return def
}

func dur(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		log.Warn().Str("key", k).Str("value", v).Msg("ignoring invalid duration env value")
	}
	return def
}

func boolean(k string, def bool) bool {
	if v := os.Getenv(k); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}
