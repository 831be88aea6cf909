package redis

import (
	"bytes"
	"context"
	"log/slog"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseConnString(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		addr     string
		password string
		db       int
		wantErr  bool
	}{
		{name: "host and port", input: "redis1.example.com:6380", addr: "redis1.example.com:6380"},
		{name: "host only", input: "redis1.example.com", addr: "redis1.example.com:6379"},
		{name: "url", input: "redis://:secret@localhost:6381/2", addr: "localhost:6381", password: "secret", db: 2},
		{name: "surrounding spaces", input: "  10.0.0.1:6379 ", addr: "10.0.0.1:6379"},
		{name: "empty", input: "", wantErr: true},
		{name: "missing host", input: ":6379", wantErr: true},
		{name: "bad url", input: "redis://localhost:6379/notadb", wantErr: true},
		{name: "non numeric port", input: "localhost:abc", wantErr: true},
		{name: "port out of range", input: "localhost:70000", wantErr: true},
		{name: "port zero", input: "localhost:0", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts, err := ParseConnString(tt.input, TimeoutsFor(2*time.Second))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.addr, opts.Addr)
			assert.Equal(t, tt.password, opts.Password)
			assert.Equal(t, tt.db, opts.DB)
			assert.Equal(t, 2*time.Second, opts.DialTimeout)
			assert.Equal(t, 2*time.Second, opts.ReadTimeout)
			assert.Equal(t, -1, opts.MaxRetries)
			assert.Equal(t, 1, opts.DialerRetries)
		})
	}
}

func TestNewClient(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := NewClient(context.Background(), mr.Addr(), TimeoutsFor(time.Second))
	require.NoError(t, err)
	defer client.Close()

	assert.NoError(t, client.Set(context.Background(), "k", "v", 0).Err())
	got, err := mr.Get("k")
	require.NoError(t, err)
	assert.Equal(t, "v", got)
}

func TestNewClientUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := NewClient(context.Background(), addr, TimeoutsFor(200*time.Millisecond))
	assert.Error(t, err)
}

func TestSingleDialPerCommand(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	opts, err := ParseConnString(addr, TimeoutsFor(200*time.Millisecond))
	require.NoError(t, err)

	var dials atomic.Int32
	d := &net.Dialer{Timeout: opts.DialTimeout}
	opts.Dialer = func(ctx context.Context, network, addr string) (net.Conn, error) {
		dials.Add(1)
		return d.DialContext(ctx, network, addr)
	}

	client := goredis.NewClient(opts)
	defer client.Close()

	err = client.SMembers(context.Background(), "resque:queues").Err()
	assert.Error(t, err)
	assert.Equal(t, int32(1), dials.Load())
}

func TestRouteLogs(t *testing.T) {
	var buf bytes.Buffer
	l := slogLogger{logger: slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))}

	l.Printf(context.Background(), "redis: connection pool: failed to dial after %d attempts: %v", 1, "refused")

	assert.Contains(t, buf.String(), "level=DEBUG")
	assert.Contains(t, buf.String(), "failed to dial after 1 attempts: refused")
	assert.Contains(t, buf.String(), "component=go-redis")
}
