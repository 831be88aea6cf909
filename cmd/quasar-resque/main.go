// Quasar Resque - Resque queue monitor for the Gravito infrastructure
//
// Discovers the Redis instances backing Resque (from a Chef server or a static
// list), polls each one on its own schedule and reports worker, queue and job
// rate metrics.
//
// Usage:
//
//	QUASAR_CHEF_SERVER_URL=https://chef/organizations/ops quasar-resque
//
// Or with a config file:
//
//	quasar-resque --config /etc/quasar/quasar.yaml
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/gravito-framework/quasar-resque/internal/bootstrap"
	internalredis "github.com/gravito-framework/quasar-resque/internal/redis"
	"github.com/gravito-framework/quasar-resque/pkg/agent"
	"github.com/gravito-framework/quasar-resque/pkg/config"
	"github.com/gravito-framework/quasar-resque/pkg/probes"
	"github.com/gravito-framework/quasar-resque/pkg/probes/resque"
	"github.com/gravito-framework/quasar-resque/pkg/report"
	"github.com/gravito-framework/quasar-resque/pkg/server"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	configPath := flag.String("config", "", "Path to a YAML config file")
	envFile := flag.String("env-file", ".env", "Optional dotenv file loaded before the config")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Usage = printHelp
	flag.Parse()

	if *showVersion {
		fmt.Printf("quasar-resque %s (commit: %s, built: %s)\n", version, commit, date)
		return
	}

	fmt.Printf("\n  🌌 Quasar Resque %s (%s)\n  Watching your workers so you don't have to.\n\n",
		version, commit[:min(7, len(commit))])

	if err := run(*configPath, *envFile); err != nil {
		slog.Error("Fatal error", "error", err)
		os.Exit(1)
	}
}

func run(configPath, envFile string) error {
	if err := config.LoadEnvFiles(envFile); err != nil {
		return err
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Println("\nRun 'quasar-resque --help' for usage information.")
		return err
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))
	slog.SetDefault(logger)
	internalredis.RouteLogs(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	targets, err := bootstrap.Targets(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("discovery failed: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	publishers := report.Publishers{
		report.NewLogPublisher(logger),
		report.NewPrometheusPublisher(reg),
	}

	if cfg.Transport.RedisURL != "" {
		client, err := internalredis.NewClientLazy(cfg.Transport.RedisURL, internalredis.TimeoutsFor(cfg.Poll.Timeout))
		if err != nil {
			return fmt.Errorf("invalid transport redis URL: %w", err)
		}
		systemProbe, err := probes.NewGoSystemProbe(0)
		if err != nil {
			return fmt.Errorf("failed to create system probe: %w", err)
		}
		defer systemProbe.Stop()

		transport := report.NewRedisPublisher(client, cfg.Transport.TTL,
			report.WithSystemProbe(systemProbe),
			report.WithRedisLogger(logger),
		)
		defer transport.Close()

		if err := client.Ping(ctx).Err(); err != nil {
			logger.Warn("⚠️ Failed to connect to transport Redis, reports will be retried every cycle", "error", err)
		}
		publishers = append(publishers, transport)
	}

	runner := agent.NewRunner(cfg.Poll.Interval, cfg.Poll.Timeout,
		agent.WithRunnerLogger(logger),
		agent.WithPublisher(publishers),
		agent.WithPollMetrics(report.NewPollMetrics(reg)),
	)

	backend := resque.NewBackend(cfg.Poll.Timeout, resque.WithNamespace(cfg.Poll.Namespace))
	skipped := bootstrap.RegisterAgents(runner, targets, cfg, backend, logger)

	registered := len(runner.Agents())
	if registered == 0 {
		logger.Warn("No agents registered", "targets", len(targets), "skipped", len(skipped))
	}

	logger.Info("Quasar Resque started",
		"agents", registered,
		"interval", cfg.Poll.Interval,
		"timeout", cfg.Poll.Timeout,
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return runner.Run(ctx)
	})
	if cfg.HTTP.ListenAddr != "" {
		srv := server.New(cfg.HTTP.ListenAddr, reg, runner, logger)
		g.Go(func() error {
			return srv.Run(ctx)
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	logger.Info("Quasar Resque stopped")
	return nil
}

func printHelp() {
	fmt.Println(`Usage: quasar-resque [options]

Quasar Resque polls the Redis instances behind Resque and reports worker,
queue and job-rate metrics. Targets come from a Chef node search or from the
static "agents" section of the config file.

Options:
  --config PATH     YAML config file (default: ./quasar.yaml, /etc/quasar/quasar.yaml)
  --env-file PATH   dotenv file loaded before the config (default: .env)
  --version         Show version information
  -h, --help        Show this help message

Environment Variables:
  QUASAR_CHEF_SERVER_URL      Chef server organization URL (enables discovery)
  QUASAR_CHEF_CLIENT_NAME     Chef client name
  QUASAR_CHEF_CLIENT_KEY      Chef client key (path or PEM)
  QUASAR_CHEF_ENVIRONMENT     Chef environment to search (default: production)
  QUASAR_CHEF_ROLE            Role carried by Redis nodes (default: yotpo_redis)
  QUASAR_AGENT_INTERVAL       Poll interval (default: 60s)
  QUASAR_AGENT_TIMEOUT        Per-poll timeout (default: 5s)
  QUASAR_AGENT_NAMESPACE      Default Resque namespace (default: resque)
  QUASAR_TRANSPORT_REDIS_URL  Publish reports to this Redis (also QUASAR_REDIS_URL)
  QUASAR_HTTP_LISTEN_ADDR     /metrics listen address (default: :9121, empty disables)
  QUASAR_LOG_LEVEL            debug, info, warn or error (default: info)

Examples:
  # Static targets
  quasar-resque --config ./quasar.yaml

  # Chef discovery in staging
  QUASAR_CHEF_SERVER_URL=https://chef.example.com/organizations/ops \
  QUASAR_CHEF_CLIENT_NAME=quasar \
  QUASAR_CHEF_CLIENT_KEY=/etc/chef/quasar.pem \
  QUASAR_CHEF_ENVIRONMENT=staging \
  quasar-resque`)
}
