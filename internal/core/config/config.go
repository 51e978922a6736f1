// Package config loads service settings from the environment, optional .env
// files and an optional YAML config file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	DefaultOSDDBaseURL = "https://cwic.wgiss.ceos.org/opensearch/datasets"
	DefaultClientID    = "eed-edsc-dev"
)

type MetricsCfg struct {
	Enabled bool
	Addr    string
	Path    string
}

type RateLimitCfg struct {
	Enabled   bool
	RPS       float64
	Burst     int
	CacheSize int
	KeyHeader string
	TrustXFF  bool
}

type StatsCfg struct {
	Enabled     bool
	RedisAddr   string
	Prefix      string
	TTL         time.Duration
	OpTimeout   time.Duration
	PoolSize    int
	DialTimeout time.Duration
}

type EventsCfg struct {
	Enabled bool
	Brokers []string
	Topic   string
	Queue   int
	H3Res   int

	// H3ParentRes < 0 turns the parent cell off.
	H3ParentRes int
}

type Config struct {
	Addr       string
	LogLevel   string
	LogConsole bool
	LogSampleN int

	OSDDBaseURL     string
	OSDDClientID    string
	ClientID        string
	UpstreamTimeout time.Duration
	ResponseHeaders map[string]string

	Metrics   MetricsCfg
	RateLimit RateLimitCfg
	Stats     StatsCfg
	Events    EventsCfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ADDR", ":8090")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_CONSOLE", false)
	v.SetDefault("LOG_SAMPLE_N", 0)

	v.SetDefault("OSDD_BASE_URL", DefaultOSDDBaseURL)
	v.SetDefault("OSDD_CLIENT_ID", DefaultClientID)
	v.SetDefault("CLIENT_ID", DefaultClientID)
	v.SetDefault("UPSTREAM_TIMEOUT", 30*time.Second)
	v.SetDefault("DEFAULT_RESPONSE_HEADERS", "Access-Control-Allow-Origin=*;Access-Control-Allow-Credentials=true")

	v.SetDefault("METRICS_ENABLED", false)
	v.SetDefault("METRICS_ADDR", ":9090")
	v.SetDefault("METRICS_PATH", "/metrics")

	v.SetDefault("RATE_LIMIT_ENABLED", false)
	v.SetDefault("RATE_LIMIT_RPS", 10.0)
	v.SetDefault("RATE_LIMIT_BURST", 20)
	v.SetDefault("RATE_LIMIT_CACHE_SIZE", 10000)
	v.SetDefault("RATE_LIMIT_KEY_HEADER", "Client-Id")
	v.SetDefault("RATE_LIMIT_TRUST_XFF", false)

	v.SetDefault("STATS_ENABLED", false)
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("STATS_PREFIX", "granule-bridge")
	v.SetDefault("STATS_TTL", 24*time.Hour)
	v.SetDefault("STATS_OP_TIMEOUT", 250*time.Millisecond)
	v.SetDefault("STATS_POOL_SIZE", 16)
	v.SetDefault("STATS_DIAL_TIMEOUT", 2*time.Second)

	v.SetDefault("EVENTS_ENABLED", false)
	v.SetDefault("KAFKA_BROKERS", "localhost:9092")
	v.SetDefault("KAFKA_TOPIC", "granule-searches")
	v.SetDefault("EVENTS_QUEUE", 256)
	v.SetDefault("H3_RES", 5)
	v.SetDefault("H3_PARENT_RES", 2)
}

// Load reads .env and .env.local when present, then the environment, then
// path (if non-empty). Environment values win over the file.
func Load(path string) (Config, error) {
	loadEnvFiles()

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	return fromViper(v)
}

// FromEnv is Load without a config file. Invalid values fall back to defaults.
func FromEnv() Config {
	c, err := Load("")
	if err != nil {
		v := viper.New()
		setDefaults(v)
		c, _ = fromViper(v)
	}
	return c
}

func fromViper(v *viper.Viper) (Config, error) {
	res := v.GetInt("H3_RES")
	if res < 0 {
		res = 0
	}
	if res > 15 {
		res = 15
	}
	parentRes := v.GetInt("H3_PARENT_RES")
	if parentRes >= res {
		parentRes = -1
	}

	c := Config{
		Addr:       v.GetString("ADDR"),
		LogLevel:   v.GetString("LOG_LEVEL"),
		LogConsole: v.GetBool("LOG_CONSOLE"),
		LogSampleN: v.GetInt("LOG_SAMPLE_N"),

		OSDDBaseURL:     strings.TrimRight(v.GetString("OSDD_BASE_URL"), "/"),
		OSDDClientID:    v.GetString("OSDD_CLIENT_ID"),
		ClientID:        v.GetString("CLIENT_ID"),
		UpstreamTimeout: v.GetDuration("UPSTREAM_TIMEOUT"),
		ResponseHeaders: ParseHeaderMap(v.GetString("DEFAULT_RESPONSE_HEADERS")),

		Metrics: MetricsCfg{
			Enabled: v.GetBool("METRICS_ENABLED"),
			Addr:    v.GetString("METRICS_ADDR"),
			Path:    v.GetString("METRICS_PATH"),
		},
		RateLimit: RateLimitCfg{
			Enabled:   v.GetBool("RATE_LIMIT_ENABLED"),
			RPS:       v.GetFloat64("RATE_LIMIT_RPS"),
			Burst:     v.GetInt("RATE_LIMIT_BURST"),
			CacheSize: v.GetInt("RATE_LIMIT_CACHE_SIZE"),
			KeyHeader: v.GetString("RATE_LIMIT_KEY_HEADER"),
			TrustXFF:  v.GetBool("RATE_LIMIT_TRUST_XFF"),
		},
		Stats: StatsCfg{
			Enabled:     v.GetBool("STATS_ENABLED"),
			RedisAddr:   v.GetString("REDIS_ADDR"),
			Prefix:      v.GetString("STATS_PREFIX"),
			TTL:         v.GetDuration("STATS_TTL"),
			OpTimeout:   v.GetDuration("STATS_OP_TIMEOUT"),
			PoolSize:    v.GetInt("STATS_POOL_SIZE"),
			DialTimeout: v.GetDuration("STATS_DIAL_TIMEOUT"),
		},
		Events: EventsCfg{
			Enabled:     v.GetBool("EVENTS_ENABLED"),
			Brokers:     splitList(v.GetString("KAFKA_BROKERS")),
			Topic:       v.GetString("KAFKA_TOPIC"),
			Queue:       v.GetInt("EVENTS_QUEUE"),
			H3Res:       res,
			H3ParentRes: parentRes,
		},
	}
	return c, c.Validate()
}

// Validate rejects settings the server cannot start with.
func (c Config) Validate() error {
	var errs []error
	if c.OSDDBaseURL == "" {
		errs = append(errs, errors.New("OSDD_BASE_URL is required"))
	}
	if c.UpstreamTimeout <= 0 {
		errs = append(errs, errors.New("UPSTREAM_TIMEOUT must be positive"))
	}
	if c.RateLimit.Enabled && c.RateLimit.RPS <= 0 {
		errs = append(errs, errors.New("RATE_LIMIT_RPS must be positive"))
	}
	if c.Events.Enabled && len(c.Events.Brokers) == 0 {
		errs = append(errs, errors.New("KAFKA_BROKERS is required when events are enabled"))
	}
	return errors.Join(errs...)
}

// .env.local overrides .env; neither overrides the real environment.
func loadEnvFiles() {
	for _, f := range []string{".env.local", ".env"} {
		if _, err := os.Stat(f); err == nil {
			_ = godotenv.Load(f)
		}
	}
}

// ParseHeaderMap parses "Name=value;Other=value" into a map.
func ParseHeaderMap(s string) map[string]string {
	out := map[string]string{}
	for p := range strings.SplitSeq(s, ";") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		k, v, ok := strings.Cut(p, "=")
		if !ok {
			continue
		}
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		out[k] = strings.TrimSpace(v)
	}
	return out
}

func splitList(s string) []string {
	var out []string
	for p := range strings.SplitSeq(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
