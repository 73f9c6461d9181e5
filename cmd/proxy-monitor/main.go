package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	config "github.com/NordCoder/proxy-monitor/internal/config/proxy-monitor"
	"github.com/NordCoder/proxy-monitor/internal/obs"
	"github.com/NordCoder/proxy-monitor/internal/repository/kafka"
	pingworker "github.com/NordCoder/proxy-monitor/internal/services/ping-worker"
	notifier "github.com/NordCoder/proxy-monitor/internal/services/push-notifier"
	"github.com/NordCoder/proxy-monitor/internal/services/scheduler"
	"github.com/spf13/pflag"

	"go.uber.org/zap"
)

type options struct {
	configPath string
	once       bool
}

func parseFlags(args []string) (options, error) {
	var o options
	fs := pflag.NewFlagSet("proxy-monitor", pflag.ContinueOnError)
	fs.StringVarP(&o.configPath, "config", "c", "", "Path to config.json")
	fs.BoolVar(&o.once, "once", false, "Run only one check cycle")
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Proxy health checker with per-proxy Uptime Kuma push reporting")
		fmt.Fprintln(os.Stderr)
		fmt.Fprintln(os.Stderr, "Usage: proxy-monitor -c config.json [--once]")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return o, err
	}
	if o.configPath == "" {
		fs.Usage()
		return o, errors.New("--config is required")
	}
	return o, nil
}

func wire(cfg *config.Config, once bool, pub *kafka.VerdictEventsKafka, l *zap.Logger) *scheduler.Runner {
	checkCfg := cfg.AsCheckConfig()

	prober := pingworker.NewProber(checkCfg, pingworker.HTTPOptions{
		UserAgent:       cfg.UserAgent,
		FollowRedirects: cfg.FollowRedirects,
		VerifyTLS:       cfg.VerifyTLS,
	}).WithLogger(l)
	checker := pingworker.NewChecker(prober, checkCfg, l)
	pusher := notifier.New(cfg.PushTimeout()).WithLogger(l)

	cycle := scheduler.NewCycleRunner(checker, pusher, scheduler.NewExecutor(cfg.Concurrency), l)
	if pub != nil {
		cycle = cycle.WithPublisher(pub)
	}
	return scheduler.New(l, cycle, cfg.AsTargets(), checkCfg.Interval, once)
}

// cycleBudget is the worst-case duration of one cycle.
func cycleBudget(cfg *config.Config) time.Duration {
	c := cfg.AsCheckConfig()
	perTarget := time.Duration(c.Retries)*(c.Timeout+c.RetryDelay) + cfg.PushTimeout()
	workers := cfg.Concurrency
	if workers < 1 {
		workers = 1
	}
	batches := (len(cfg.Targets) + workers - 1) / workers
	return time.Duration(batches) * perTarget
}

func main() {
	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	// init
	root, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		log.Fatal(err)
	}

	// logger
	l, err := obs.NewLogger(cfg.AsLoggerConfig())
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = l.Sync() }()
	zap.ReplaceGlobals(l)

	checkCfg := cfg.AsCheckConfig()
	l.Info("starting proxy-monitor",
		zap.Int("targets", len(cfg.Targets)),
		zap.String("test_url", checkCfg.TestURL),
		zap.Int("expected_status", checkCfg.ExpectedStatus),
		zap.Int("retries", checkCfg.Retries),
		zap.Duration("interval", checkCfg.Interval),
		zap.Bool("once", opts.once),
		zap.Int("concurrency", cfg.Concurrency),
	)

	// otel
	otelCloser, err := obs.SetupOTel(root, cfg.AsOTELConfig())
	if err != nil {
		l.Fatal("otel init", zap.Error(err))
	}
	defer func() { _ = otelCloser.Shutdown(context.Background()) }()

	// kafka
	var pub *kafka.VerdictEventsKafka
	if len(cfg.Kafka.Brokers) > 0 {
		prod := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic).WithLogger(l)
		defer func() { _ = prod.Close() }()
		pub = kafka.NewVerdictEventsKafka(prod)
	}

	// wiring
	runner := wire(cfg, opts.once, pub, l)

	// metrics
	var ms interface{ Shutdown(context.Context) error }
	if cfg.MetricsAddr != "" {
		ms = obs.BootstrapMetricsServer(cfg.MetricsAddr, runner.Healthy(cycleBudget(cfg)), l)
	}

	// run
	errCh := make(chan error, 1)
	go func() { errCh <- runner.Run(root) }()

	select {
	case err = <-errCh:
	case <-root.Done():
		l.Info("shutdown requested, waiting for in-flight checks")
		grace := checkCfg.Timeout + cfg.PushTimeout() + time.Second
		select {
		case err = <-errCh:
		case <-time.After(grace):
			l.Warn("in-flight checks did not finish in time", zap.Duration("grace", grace))
		}
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		l.Error("runner error", zap.Error(err))
	}

	// graceful metrics server shutdown
	if ms != nil {
		shCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = ms.Shutdown(shCtx)
	}
	l.Info("bye")
}
