// Package redis provides Redis client utilities for Quasar.
package redis

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultPort is used when a connection string carries no port
const DefaultPort = "6379"

// Timeouts bounds every network operation on a client
type Timeouts struct {
	Dial  time.Duration
	Read  time.Duration
	Write time.Duration
}

// TimeoutsFor derives dial/read/write timeouts from a single poll budget.
func TimeoutsFor(d time.Duration) Timeouts {
	return Timeouts{Dial: d, Read: d, Write: d}
}

// ParseConnString parses either a redis:// (or rediss://) URL or a bare
// "host[:port]" connection string and returns client options.
func ParseConnString(conn string, t Timeouts) (*redis.Options, error) {
	conn = strings.TrimSpace(conn)
	if conn == "" {
		return nil, fmt.Errorf("empty Redis connection string")
	}

	var opts *redis.Options
	if strings.Contains(conn, "://") {
		parsed, err := redis.ParseURL(conn)
		if err != nil {
			return nil, fmt.Errorf("invalid Redis URL: %w", err)
		}
		opts = parsed
	} else {
		host, port, err := net.SplitHostPort(conn)
		if err != nil {
			// No port given
			host, port = conn, DefaultPort
		}
		if host == "" {
			return nil, fmt.Errorf("invalid Redis address %q: missing host", conn)
		}
		if n, err := strconv.ParseUint(port, 10, 16); err != nil || n == 0 {
			return nil, fmt.Errorf("invalid Redis address %q: bad port %q", conn, port)
		}
		opts = &redis.Options{Addr: net.JoinHostPort(host, port)}
	}

	if t.Dial > 0 {
		opts.DialTimeout = t.Dial
	}
	if t.Read > 0 {
		opts.ReadTimeout = t.Read
	}
	if t.Write > 0 {
		opts.WriteTimeout = t.Write
	}
	// A failed poll waits for the next tick instead of retrying in place.
	opts.MaxRetries = -1
	opts.DialerRetries = 1
	opts.DisableIdentity = true

	return opts, nil
}

// NewClient creates a new Redis client and verifies it answers PING
func NewClient(ctx context.Context, conn string, t Timeouts) (*redis.Client, error) {
	client, err := NewClientLazy(conn, t)
	if err != nil {
		return nil, err
	}

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return client, nil
}

// NewClientLazy creates a client without testing connection
func NewClientLazy(conn string, t Timeouts) (*redis.Client, error) {
	opts, err := ParseConnString(conn, t)
	if err != nil {
		return nil, err
	}
	return redis.NewClient(opts), nil
}
