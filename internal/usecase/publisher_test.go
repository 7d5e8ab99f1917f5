package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"
	"testing"

	"github.com/go-redis/redis/v8"
)

type serverReply string

func (e serverReply) Error() string { return string(e) }
func (serverReply) RedisError()     {}

func TestRetryablePublishError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"deadline", context.DeadlineExceeded, true},
		{"canceled", context.Canceled, false},
		{"connection dropped", io.EOF, true},
		{"short read", fmt.Errorf("read reply: %w", io.ErrUnexpectedEOF), true},
		{"reset", &net.OpError{Op: "read", Net: "tcp", Err: syscall.ECONNRESET}, true},
		{"refused", &net.OpError{Op: "dial", Net: "tcp", Err: syscall.ECONNREFUSED}, true},
		{"broken pipe", &net.OpError{Op: "write", Net: "tcp", Err: syscall.EPIPE}, true},
		{"net timeout", transientRedisError{}, true},
		{"client closed", redis.ErrClosed, false},
		{"nil reply", redis.Nil, false},
		{"server loading", serverReply("LOADING Redis is loading the dataset in memory"), true},
		{"permission", serverReply("NOPERM this user has no permissions to run the 'publish' command"), false},
		{"plain", errors.New("boom"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := retryablePublishError(tc.err); got != tc.want {
				t.Fatalf("retryablePublishError(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}
