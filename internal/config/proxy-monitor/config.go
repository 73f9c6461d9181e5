package proxy_monitor_config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/NordCoder/proxy-monitor/internal/domain/probe"
	"github.com/NordCoder/proxy-monitor/internal/obs"
	validation "github.com/go-ozzo/ozzo-validation/v4"
)

const (
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"
)

type TargetCfg struct {
	Proxy   string `mapstructure:"proxy"`
	PushURL string `mapstructure:"push_url"`
	Remark  string `mapstructure:"remark"`
}

type OTELCfg struct {
	Enable      bool    `mapstructure:"enable"`
	Endpoint    string  `mapstructure:"endpoint"`
	ServiceName string  `mapstructure:"service_name"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

type KafkaCfg struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

type Config struct {
	TestURL           string      `mapstructure:"test_url"`
	ExpectedStatus    int         `mapstructure:"expected_status"`
	Retries           int         `mapstructure:"retries"`
	TimeoutSeconds    float64     `mapstructure:"timeout_seconds"`
	RetryDelaySeconds float64     `mapstructure:"retry_delay_seconds"`
	IntervalMinutes   int         `mapstructure:"interval_minutes"`
	Targets           []TargetCfg `mapstructure:"targets"`

	Concurrency        int     `mapstructure:"concurrency"`
	FollowRedirects    bool    `mapstructure:"follow_redirects"`
	VerifyTLS          bool    `mapstructure:"verify_tls"`
	UserAgent          string  `mapstructure:"user_agent"`
	PushTimeoutSeconds float64 `mapstructure:"push_timeout_seconds"`
	MetricsAddr        string  `mapstructure:"metrics_addr"`
	LogLevel           string  `mapstructure:"log_level"`
	LogPretty          bool    `mapstructure:"log_pretty"`
	Env                string  `mapstructure:"env"`

	OTEL  OTELCfg  `mapstructure:"otel"`
	Kafka KafkaCfg `mapstructure:"kafka"`
}

func seconds(f float64) time.Duration {
	return time.Duration(f * float64(time.Second))
}

func (c *Config) AsCheckConfig() probe.CheckConfig {
	return probe.CheckConfig{
		TestURL:        c.TestURL,
		ExpectedStatus: c.ExpectedStatus,
		Retries:        c.Retries,
		Timeout:        seconds(c.TimeoutSeconds),
		RetryDelay:     seconds(c.RetryDelaySeconds),
		Interval:       time.Duration(c.IntervalMinutes) * time.Minute,
	}
}

func (c *Config) AsTargets() []probe.Target {
	out := make([]probe.Target, 0, len(c.Targets))
	for _, t := range c.Targets {
		out = append(out, probe.Target{
			ProxyURL: t.Proxy,
			PushURL:  t.PushURL,
			Remark:   t.Remark,
		})
	}
	return out
}

func (c *Config) PushTimeout() time.Duration {
	return seconds(c.PushTimeoutSeconds)
}

func (c *Config) AsLoggerConfig() obs.LogConfig {
	return obs.LogConfig{
		Level:  c.LogLevel,
		Pretty: c.LogPretty,
		App:    "proxy-monitor",
		Env:    c.Env,
	}
}

func (c *Config) AsOTELConfig() *obs.OTELConfig {
	return &obs.OTELConfig{
		Enable:      c.OTEL.Enable,
		Endpoint:    c.OTEL.Endpoint,
		ServiceName: c.OTEL.ServiceName,
		SampleRatio: c.OTEL.SampleRatio,
	}
}

func (c *Config) normalize() {
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	for i := range c.Targets {
		c.Targets[i].Proxy = strings.TrimSpace(c.Targets[i].Proxy)
		c.Targets[i].PushURL = strings.TrimSpace(c.Targets[i].PushURL)
		c.Targets[i].Remark = strings.TrimSpace(c.Targets[i].Remark)
	}
}

func (c *Config) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.TestURL, validation.Required, validation.By(validateHTTPURL)),
		validation.Field(&c.ExpectedStatus, validation.Required, validation.Min(100), validation.Max(599)),
		validation.Field(&c.Retries, validation.Required, validation.Min(1)),
		validation.Field(&c.TimeoutSeconds, validation.Required, validation.Min(0.0).Exclusive()),
		validation.Field(&c.RetryDelaySeconds, validation.Min(0.0)),
		validation.Field(&c.Targets,
			validation.Required.Error("no targets defined"),
			validation.Each(validation.By(validateTarget)),
		),
		validation.Field(&c.Concurrency, validation.Min(0)),
		validation.Field(&c.PushTimeoutSeconds, validation.Required, validation.Min(0.0).Exclusive()),
		validation.Field(&c.LogLevel, validation.In(LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError)),
		validation.Field(&c.OTEL, validation.By(func(value interface{}) error {
			oc, ok := value.(OTELCfg)
			if !ok {
				return validation.NewError("validation_invalid_type", "must be an OTELCfg")
			}
			if !oc.Enable {
				return nil
			}
			return validation.ValidateStruct(&oc,
				validation.Field(&oc.Endpoint, validation.Required),
				validation.Field(&oc.SampleRatio, validation.Min(0.0), validation.Max(1.0)),
			)
		})),
		validation.Field(&c.Kafka, validation.By(func(value interface{}) error {
			kc, ok := value.(KafkaCfg)
			if !ok {
				return validation.NewError("validation_invalid_type", "must be a KafkaCfg")
			}
			if len(kc.Brokers) == 0 {
				return nil
			}
			return validation.ValidateStruct(&kc, validation.Field(&kc.Topic, validation.Required))
		})),
	)
}

func validateTarget(value interface{}) error {
	tc, ok := value.(TargetCfg)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a TargetCfg")
	}
	return validation.ValidateStruct(&tc,
		validation.Field(&tc.Proxy, validation.Required),
		validation.Field(&tc.PushURL, validation.Required, validation.By(validateHTTPURL)),
	)
}

func validateHTTPURL(value interface{}) error {
	s, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}
	if s == "" {
		return nil
	}
	u, err := url.Parse(s)
	if err != nil {
		return validation.NewError("validation_invalid_url", fmt.Sprintf("invalid url: %v", err))
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return validation.NewError("validation_invalid_url", "must be an http or https url")
	}
	if u.Host == "" {
		return validation.NewError("validation_invalid_url", "must include a host")
	}
	return nil
}
