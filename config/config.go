package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	viper *viper.Viper
}

func (c *Config) GetHTTPAddr() string {
	return c.viper.GetString("http.addr")
}

func (c *Config) GetSlackToken() string {
	return c.viper.GetString("slack.token")
}

func (c *Config) GetSlackSigningSecret() string {
	return c.viper.GetString("slack.signing_secret")
}

func (c *Config) GetPollHost() string {
	return c.viper.GetString("poll.host")
}

func (c *Config) GetScanInterval() time.Duration {
	return c.viper.GetDuration("monitor.scan_interval")
}

func (c *Config) GetStaleness() time.Duration {
	return c.viper.GetDuration("monitor.staleness")
}

func (c *Config) GetFetchTimeout() time.Duration {
	return c.viper.GetDuration("monitor.fetch_timeout")
}

func (c *Config) GetWorkers() int {
	return c.viper.GetInt("monitor.workers")
}

func (c *Config) GetPersistInterval() time.Duration {
	return c.viper.GetDuration("persist.interval")
}

func (c *Config) GetStoreDriver() string {
	return c.viper.GetString("store.driver")
}

func (c *Config) GetStorePath() string {
	return c.viper.GetString("store.path")
}

func (c *Config) GetDBUsername() string {
	return c.viper.GetString("db.username")
}

func (c *Config) GetDBPassword() string {
	return c.viper.GetString("db.password")
}

func (c *Config) GetDBName() string {
	return c.viper.GetString("db.name")
}

func (c *Config) GetDBHost() string {
	return c.viper.GetString("db.host")
}

func (c *Config) GetRedisAddr() string {
	return c.viper.GetString("redis.addr")
}

func (c *Config) GetRedisPassword() string {
	return c.viper.GetString("redis.password")
}

func (c *Config) GetRedisDB() int {
	return c.viper.GetInt("redis.db")
}

func (c *Config) GetRedisKey() string {
	return c.viper.GetString("redis.key")
}

func (c *Config) GetLogLevel() string {
	return c.viper.GetString("log.level")
}

func (c *Config) GetLogEncoding() string {
	return c.viper.GetString("log.encoding")
}

func (c *Config) Set(key string, value interface{}) {
	c.viper.Set(key, value)
}

// LoadConfig reads the optional config file, then POLLWATCH_* environment
// variables, e.g. POLLWATCH_SLACK_TOKEN for slack.token.
func LoadConfig(file string) (*Config, error) {
	v := viper.New()

	config := Config{
		viper: v,
	}

	v.SetDefault("http.addr", ":8080")
	v.SetDefault("poll.host", "doodle.com")
	v.SetDefault("monitor.scan_interval", 10*time.Second)
	v.SetDefault("monitor.staleness", 5*time.Minute)
	v.SetDefault("monitor.fetch_timeout", 30*time.Second)
	v.SetDefault("monitor.workers", 4)
	v.SetDefault("persist.interval", time.Second)
	v.SetDefault("store.driver", "file")
	v.SetDefault("store.path", "data.json")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.key", "pollwatch:state")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "json")

	v.SetEnvPrefix("POLLWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	_ = v.BindEnv("slack.token", "POLLWATCH_SLACK_TOKEN")
	_ = v.BindEnv("slack.signing_secret", "POLLWATCH_SLACK_SIGNING_SECRET")

	_ = v.BindEnv("db.username", "POLLWATCH_DB_USERNAME")
	_ = v.BindEnv("db.password", "POLLWATCH_DB_PASSWORD")
	_ = v.BindEnv("db.name", "POLLWATCH_DB_NAME")
	_ = v.BindEnv("db.host", "POLLWATCH_DB_HOST")

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", file, err)
		}
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c *Config) validate() error {
	switch c.GetStoreDriver() {
	case "file", "mysql", "redis", "memory":
	default:
		return fmt.Errorf("unknown store driver %q", c.GetStoreDriver())
	}

	// the scheduler runs @every jobs on whole seconds
	for key, interval := range map[string]time.Duration{
		"monitor.scan_interval": c.GetScanInterval(),
		"persist.interval":      c.GetPersistInterval(),
	} {
		if interval < time.Second || interval%time.Second != 0 {
			return fmt.Errorf("%s must be a whole number of seconds, got %s", key, interval)
		}
	}

	if c.GetWorkers() < 1 {
		return fmt.Errorf("monitor.workers must be at least 1")
	}

	return nil
}
