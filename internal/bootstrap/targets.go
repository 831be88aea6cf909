// Package bootstrap wires configuration into targets and agents for the commands.
package bootstrap

import (
	"context"
	"log/slog"

	"github.com/gravito-framework/quasar-resque/internal/chef"
	"github.com/gravito-framework/quasar-resque/pkg/agent"
	"github.com/gravito-framework/quasar-resque/pkg/config"
	"github.com/gravito-framework/quasar-resque/pkg/discovery"
	"github.com/gravito-framework/quasar-resque/pkg/probes"
	"github.com/gravito-framework/quasar-resque/pkg/types"
)

// Targets resolves the targets to poll: from the Chef server when one is
// configured, otherwise from the static agents section.
func Targets(ctx context.Context, cfg *config.Config, logger *slog.Logger) (map[string]types.AgentTarget, error) {
	if !cfg.DiscoveryEnabled() {
		logger.Info("Using static agents", "count", len(cfg.Agents))
		return discovery.FromStatic(cfg.Agents), nil
	}

	searcher, err := chef.NewSearcher(chef.Options{
		ServerURL:  cfg.Chef.ServerURL,
		ClientName: cfg.Chef.ClientName,
		ClientKey:  cfg.Chef.ClientKey,
		SkipSSL:    cfg.Chef.SkipSSL,
		Timeout:    int(cfg.Poll.Timeout.Seconds()) + 1,
	})
	if err != nil {
		return nil, &discovery.Error{Op: "connect", Err: err}
	}

	d := discovery.New(searcher,
		discovery.WithRole(cfg.Chef.Role),
		discovery.WithLogger(logger),
	)
	return d.Discover(ctx, cfg.Chef.Environment)
}

// RegisterAgents creates one ResqueAgent per target and registers it on the
// runner. Targets that fail validation are skipped and returned.
func RegisterAgents(
	runner *agent.Runner,
	targets map[string]types.AgentTarget,
	cfg *config.Config,
	backend probes.QueueBackend,
	logger *slog.Logger,
) (skipped map[string]error) {
	skipped = make(map[string]error)

	for _, id := range discovery.SortedIDs(targets) {
		a, err := agent.NewResqueAgent(targets[id],
			agent.WithBackend(backend),
			agent.WithInterval(cfg.Poll.Interval),
			agent.WithLogger(logger),
		)
		if err == nil {
			err = runner.Register(a)
		}
		if err != nil {
			logger.Error("Agent not registered", "agent", id, "error", err)
			skipped[id] = err
			continue
		}
		logger.Info("Agent registered", "agent", id, "label", a.Label())
	}

	return skipped
}
