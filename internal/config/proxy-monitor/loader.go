package proxy_monitor_config

import (
	"fmt"
	"strings"

	"github.com/NordCoder/proxy-monitor/internal/domain/probe"
	"github.com/spf13/viper"
)

var requiredKeys = []string{
	"test_url",
	"expected_status",
	"retries",
	"timeout_seconds",
	"retry_delay_seconds",
	"interval_minutes",
	"targets",
}

// Load reads a JSON config file, applies PROXY_MONITOR_* environment
// overrides and validates the result. Unsupported proxy schemes fail with an
// error wrapping probe.ErrUnsupportedScheme.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("json")
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	v.SetDefault("concurrency", 1)
	v.SetDefault("follow_redirects", true)
	v.SetDefault("verify_tls", true)
	v.SetDefault("user_agent", "proxy-monitor/1.0")
	v.SetDefault("push_timeout_seconds", 10)
	v.SetDefault("metrics_addr", "")
	v.SetDefault("log_level", LogLevelInfo)
	v.SetDefault("log_pretty", false)

	v.SetDefault("otel.enable", false)
	v.SetDefault("otel.service_name", "proxy-monitor")
	v.SetDefault("otel.sample_ratio", 1.0)
	v.SetDefault("otel.endpoint", "localhost:4317")

	v.SetDefault("kafka.topic", "proxy-monitor.verdicts")

	v.SetEnvPrefix("PROXY_MONITOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for _, k := range requiredKeys {
		if !v.IsSet(k) {
			return nil, fmt.Errorf("missing config field: %s", k)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.normalize()

	for i, t := range cfg.Targets {
		if t.Proxy == "" || t.PushURL == "" {
			return nil, fmt.Errorf("target %d: each target must contain proxy and push_url", i)
		}
		if _, err := probe.ParseProxyURL(t.Proxy); err != nil {
			return nil, fmt.Errorf("target %d: %w", i, err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}
