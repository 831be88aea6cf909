package bootstrap

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/gravito-framework/quasar-resque/pkg/agent"
	"github.com/gravito-framework/quasar-resque/pkg/config"
	"github.com/gravito-framework/quasar-resque/pkg/discovery"
	"github.com/gravito-framework/quasar-resque/pkg/probes/resque"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func staticConfig() *config.Config {
	return &config.Config{
		Chef: config.ChefConfig{Environment: "production", Role: "yotpo_redis"},
		Poll: config.PollConfig{Interval: time.Minute, Timeout: time.Second},
		Agents: map[string]config.TargetConfig{
			"primary": {Redis: "localhost:6379", Hostname: "jobs"},
			"replica": {Redis: "localhost:6380", Namespace: "jobs"},
			"broken":  {},
		},
	}
}

func TestTargetsStatic(t *testing.T) {
	targets, err := Targets(context.Background(), staticConfig(), quietLogger())
	require.NoError(t, err)
	assert.Equal(t, []string{"broken", "primary", "replica"}, discovery.SortedIDs(targets))
}

func TestTargetsDiscoveryBadKey(t *testing.T) {
	cfg := staticConfig()
	cfg.Chef.ServerURL = "https://chef.example.com/organizations/ops"
	cfg.Chef.ClientName = "quasar"
	cfg.Chef.ClientKey = t.TempDir() + "/missing.pem"

	_, err := Targets(context.Background(), cfg, quietLogger())

	var discErr *discovery.Error
	require.ErrorAs(t, err, &discErr)
	assert.Equal(t, "connect", discErr.Op)
}

func TestRegisterAgents(t *testing.T) {
	cfg := staticConfig()
	runner := agent.NewRunner(cfg.Poll.Interval, cfg.Poll.Timeout, agent.WithRunnerLogger(quietLogger()))

	skipped := RegisterAgents(runner, discovery.FromStatic(cfg.Agents), cfg, resque.NewBackend(time.Second), quietLogger())

	require.Len(t, skipped, 1)
	var cfgErr *config.ConfigError
	assert.ErrorAs(t, skipped["broken"], &cfgErr)

	agents := runner.Agents()
	require.Len(t, agents, 2)
	assert.Equal(t, "primary", agents[0].ID())
	assert.Equal(t, "jobs", agents[0].Label())
	assert.Equal(t, "replica", agents[1].ID())
}
