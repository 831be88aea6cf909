package report

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/gravito-framework/quasar-resque/pkg/probes"
	"github.com/redis/go-redis/v9"
)

// KeyPrefix namespaces the payloads written by RedisPublisher
const KeyPrefix = "gravito:quasar:resque:"

// RedisPublisher writes every batch as JSON to the transport Redis. Each
// agent owns one key that expires when the agent stops reporting.
type RedisPublisher struct {
	client *redis.Client
	ttl    time.Duration
	system probes.SystemProbe
	logger *slog.Logger
}

// RedisOption configures a RedisPublisher
type RedisOption func(*RedisPublisher)

// WithSystemProbe embeds collector metrics in every payload
func WithSystemProbe(probe probes.SystemProbe) RedisOption {
	return func(p *RedisPublisher) {
		p.system = probe
	}
}

// WithRedisLogger sets a custom logger
func WithRedisLogger(logger *slog.Logger) RedisOption {
	return func(p *RedisPublisher) {
		p.logger = logger
	}
}

// NewRedisPublisher creates a publisher over client
func NewRedisPublisher(client *redis.Client, ttl time.Duration, opts ...RedisOption) *RedisPublisher {
	p := &RedisPublisher{
		client: client,
		ttl:    ttl,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Key returns the Redis key holding agent's latest payload
func Key(agent string) string {
	return KeyPrefix + agent
}

// Publish implements Publisher
func (p *RedisPublisher) Publish(ctx context.Context, b *Batch) error {
	payload := b.Payload(nil)
	if p.system != nil {
		if info, err := p.system.GetMetrics(); err == nil {
			payload.Collector = info
		} else {
			p.logger.Warn("System probe failed", "error", err)
		}
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	key := Key(b.Agent)
	if err := p.client.Set(ctx, key, data, p.ttl).Err(); err != nil {
		return fmt.Errorf("failed to publish report: %w", err)
	}

	p.logger.Debug("Report published", "key", key, "metrics", len(payload.Metrics))
	return nil
}

// Close closes the transport connection
func (p *RedisPublisher) Close() error {
	return p.client.Close()
}

var _ Publisher = (*RedisPublisher)(nil)
