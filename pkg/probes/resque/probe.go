// Package resque reads Resque runtime statistics from Redis.
package resque

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	internalredis "github.com/gravito-framework/quasar-resque/internal/redis"
	"github.com/gravito-framework/quasar-resque/pkg/probes"
	"github.com/gravito-framework/quasar-resque/pkg/types"
	"github.com/redis/go-redis/v9"
)

// DefaultNamespace is the key prefix Resque uses unless configured otherwise
const DefaultNamespace = "resque"

// Probe reads Resque statistics. Resque keeps its state under these keys:
//   - <ns>:queues          (Set)    queue names
//   - <ns>:queue:<name>    (List)   pending jobs
//   - <ns>:workers         (Set)    registered worker ids
//   - <ns>:worker:<id>     (String) present while the worker runs a job
//   - <ns>:stat:processed  (String) cumulative processed count
//   - <ns>:stat:failed     (String) cumulative failed count
type Probe struct {
	client    *redis.Client
	namespace string
}

// NewProbe creates a probe over an existing client
func NewProbe(client *redis.Client, namespace string) *Probe {
	namespace = strings.TrimSuffix(namespace, ":")
	if namespace == "" {
		namespace = DefaultNamespace
	}
	return &Probe{
		client:    client,
		namespace: namespace,
	}
}

func (p *Probe) key(parts ...string) string {
	return p.namespace + ":" + strings.Join(parts, ":")
}

// GetInfo returns the current Resque statistics
func (p *Probe) GetInfo(ctx context.Context) (*types.QueueInfo, error) {
	pipe := p.client.Pipeline()
	queuesCmd := pipe.SMembers(ctx, p.key("queues"))
	workersCmd := pipe.SMembers(ctx, p.key("workers"))
	processedCmd := pipe.Get(ctx, p.key("stat", "processed"))
	failedCmd := pipe.Get(ctx, p.key("stat", "failed"))

	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}

	queues, err := queuesCmd.Result()
	if err != nil {
		return nil, err
	}
	workers, err := workersCmd.Result()
	if err != nil {
		return nil, err
	}
	processed, err := readStat(processedCmd)
	if err != nil {
		return nil, err
	}
	failed, err := readStat(failedCmd)
	if err != nil {
		return nil, err
	}

	info := &types.QueueInfo{
		Workers:        uint64(len(workers)),
		Queues:         uint64(len(queues)),
		ProcessedTotal: processed,
		FailedTotal:    failed,
	}

	if len(queues) == 0 && len(workers) == 0 {
		return info, nil
	}

	pipe = p.client.Pipeline()
	lengths := make([]*redis.IntCmd, 0, len(queues))
	for _, q := range queues {
		lengths = append(lengths, pipe.LLen(ctx, p.key("queue", q)))
	}
	busy := make([]*redis.IntCmd, 0, len(workers))
	for _, w := range workers {
		busy = append(busy, pipe.Exists(ctx, p.key("worker", w)))
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}

	for _, cmd := range lengths {
		info.Pending += uint64(cmd.Val())
	}
	for _, cmd := range busy {
		if cmd.Val() > 0 {
			info.Working++
		}
	}

	return info, nil
}

// Close closes the Redis connection
func (p *Probe) Close() error {
	return p.client.Close()
}

func readStat(cmd *redis.StringCmd) (uint64, error) {
	v, err := cmd.Uint64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", cmd.Args()[1], err)
	}
	return v, nil
}

// Backend opens one short-lived Redis client per poll
type Backend struct {
	timeouts  internalredis.Timeouts
	namespace string
}

// BackendOption configures a Backend
type BackendOption func(*Backend)

// WithNamespace sets the namespace used for targets that do not carry one
func WithNamespace(ns string) BackendOption {
	return func(b *Backend) {
		b.namespace = ns
	}
}

// NewBackend creates a backend whose connections are bounded by timeout
func NewBackend(timeout time.Duration, opts ...BackendOption) *Backend {
	b := &Backend{
		timeouts:  internalredis.TimeoutsFor(timeout),
		namespace: DefaultNamespace,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Connect opens a probe for target. No I/O happens until GetInfo.
func (b *Backend) Connect(target types.AgentTarget) (probes.QueueProbe, error) {
	client, err := internalredis.NewClientLazy(target.Redis, b.timeouts)
	if err != nil {
		return nil, err
	}

	ns := target.Namespace
	if ns == "" {
		ns = b.namespace
	}
	return NewProbe(client, ns), nil
}

var (
	_ probes.QueueProbe   = (*Probe)(nil)
	_ probes.QueueBackend = (*Backend)(nil)
)
