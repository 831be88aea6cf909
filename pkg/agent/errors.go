package agent

import (
	"context"
	"errors"
	"io"
	"net"
	"syscall"

	"github.com/redis/go-redis/v9"
)

// IsTransient reports whether err means the backend is temporarily out of
// reach: a timeout, a refused or reset connection, or a connection dropped
// mid-command. Everything else is a defect the caller should surface.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	for _, target := range []error{
		syscall.ECONNREFUSED,
		syscall.ECONNRESET,
		syscall.ECONNABORTED,
		syscall.EPIPE,
		io.EOF,
		io.ErrUnexpectedEOF,
		net.ErrClosed,
		redis.ErrClosed,
	} {
		if errors.Is(err, target) {
			return true
		}
	}

	// Any other failure on the socket itself (dial, read, write)
	var opErr *net.OpError
	return errors.As(err, &opErr)
}
