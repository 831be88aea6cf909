package redis

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// slogLogger adapts go-redis's internal logging to slog
type slogLogger struct {
	logger *slog.Logger
}

func (l slogLogger) Printf(ctx context.Context, format string, v ...interface{}) {
	l.logger.DebugContext(ctx, fmt.Sprintf(format, v...), "component", "go-redis")
}

// RouteLogs sends go-redis's internal log lines to logger at debug level
func RouteLogs(logger *slog.Logger) {
	redis.SetLogger(slogLogger{logger: logger})
}
