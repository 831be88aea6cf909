// Package discovery expands a node inventory into Resque polling targets.
package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/gravito-framework/quasar-resque/pkg/config"
	"github.com/gravito-framework/quasar-resque/pkg/types"
)

// Redis instances on a node listen on consecutive ports starting at
// BasePort on masters and BasePort+1 on replicas.
const BasePort = 6379

// Node is one inventory entry as returned by a NodeSearcher. Pointer fields
// are nil when the attribute is missing on the node.
type Node struct {
	FQDN        string
	RedisMaster *bool
	Instances   *int
}

// NodeSearcher queries a node inventory
type NodeSearcher interface {
	SearchNodes(ctx context.Context, query string) ([]Node, error)
}

// Error is returned when discovery cannot produce a target set
type Error struct {
	Op   string // "search" or "validate"
	Node string
	Err  error
}

func (e *Error) Error() string {
	if e.Node != "" {
		return fmt.Sprintf("discovery %s %s: %v", e.Op, e.Node, e.Err)
	}
	return fmt.Sprintf("discovery %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Discoverer builds agent targets from a NodeSearcher
type Discoverer struct {
	searcher NodeSearcher
	role     string
	logger   *slog.Logger
}

// Option configures a Discoverer
type Option func(*Discoverer)

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) Option {
	return func(d *Discoverer) {
		d.logger = logger
	}
}

// WithRole overrides the role tag nodes must carry
func WithRole(role string) Option {
	return func(d *Discoverer) {
		d.role = role
	}
}

// New creates a Discoverer
func New(searcher NodeSearcher, opts ...Option) *Discoverer {
	d := &Discoverer{
		searcher: searcher,
		role:     "yotpo_redis",
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Query returns the inventory search statement for environment
func (d *Discoverer) Query(environment string) string {
	return fmt.Sprintf("environment:%s AND role:%s", environment, d.role)
}

// Discover returns one target per Redis instance on every node matching
// environment. An empty result is valid. Nodes that expand to an id already
// produced overwrite the earlier target.
func (d *Discoverer) Discover(ctx context.Context, environment string) (map[string]types.AgentTarget, error) {
	query := d.Query(environment)

	nodes, err := d.searcher.SearchNodes(ctx, query)
	if err != nil {
		return nil, &Error{Op: "search", Err: err}
	}

	targets := make(map[string]types.AgentTarget)
	for _, node := range nodes {
		expanded, err := Expand(node)
		if err != nil {
			return nil, err
		}

		for _, t := range expanded {
			if _, exists := targets[t.ID]; exists {
				d.logger.Warn("Duplicate Redis target, keeping the later node", "agent", t.ID)
			}
			targets[t.ID] = t
		}
	}

	d.logger.Info("Discovery finished", "query", query, "nodes", len(nodes), "targets", len(targets))
	return targets, nil
}

// Expand validates node and returns its targets in port order
func Expand(node Node) ([]types.AgentTarget, error) {
	switch {
	case node.FQDN == "":
		return nil, &Error{Op: "validate", Err: fmt.Errorf("node has no fqdn")}
	case node.RedisMaster == nil:
		return nil, &Error{Op: "validate", Node: node.FQDN, Err: fmt.Errorf("missing redis master flag")}
	case node.Instances == nil:
		return nil, &Error{Op: "validate", Node: node.FQDN, Err: fmt.Errorf("missing redis instance count")}
	case *node.Instances < 1:
		return nil, &Error{Op: "validate", Node: node.FQDN, Err: fmt.Errorf("invalid redis instance count %d", *node.Instances)}
	}

	base := BasePort
	if !*node.RedisMaster {
		base++
	}
	if base+*node.Instances-1 > 65535 {
		return nil, &Error{Op: "validate", Node: node.FQDN, Err: fmt.Errorf("instance count %d overflows port range", *node.Instances)}
	}

	targets := make([]types.AgentTarget, 0, *node.Instances)
	for i := 0; i < *node.Instances; i++ {
		port := uint16(base + i)
		t := types.AgentTarget{
			ID:   types.TargetID(node.FQDN, port),
			Host: node.FQDN,
			Port: port,
		}
		t.Redis = t.Addr()
		targets = append(targets, t)
	}
	return targets, nil
}

// FromStatic builds targets from the agents section of the configuration.
// Targets without a connection string are kept so registration can reject them.
func FromStatic(agents map[string]config.TargetConfig) map[string]types.AgentTarget {
	targets := make(map[string]types.AgentTarget, len(agents))
	for id, a := range agents {
		targets[id] = types.AgentTarget{
			ID:        id,
			Redis:     a.Redis,
			Namespace: a.Namespace,
			Hostname:  a.Hostname,
		}
	}
	return targets
}

// SortedIDs returns the target ids in lexical order
func SortedIDs(targets map[string]types.AgentTarget) []string {
	ids := make([]string, 0, len(targets))
	for id := range targets {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
