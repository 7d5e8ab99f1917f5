package usecase

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"syscall"

	"github.com/go-redis/redis/v8"
)

// Publisher abstracts the pub/sub operation used to fan feedback out to consumers.
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) error
}

// RedisPublisher is a concrete implementation backed by go-redis.
type RedisPublisher struct {
	client *redis.Client
}

// NewRedisPublisher constructs a new Redis-backed publisher.
func NewRedisPublisher(client *redis.Client) *RedisPublisher {
	return &RedisPublisher{client: client}
}

// Publish sends message on channel. Redis does not retain it for late subscribers.
func (p *RedisPublisher) Publish(ctx context.Context, channel string, message interface{}) error {
	return p.client.Publish(ctx, channel, message).Err()
}

// retryablePublishError reports whether a failed publish may succeed on another
// attempt: timeouts, dropped or refused connections, and a server still loading its dataset.
// Cancellation, closed clients and server-side command errors are final.
func retryablePublishError(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, context.Canceled), errors.Is(err, redis.ErrClosed), errors.Is(err, redis.Nil):
		return false
	case errors.Is(err, context.DeadlineExceeded):
		return true
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, syscall.ECONNRESET), errors.Is(err, syscall.ECONNREFUSED), errors.Is(err, syscall.EPIPE):
		return true
	}

	var redisErr redis.Error
	if errors.As(err, &redisErr) {
		msg := redisErr.Error()
		return strings.HasPrefix(msg, "LOADING ") || strings.HasPrefix(msg, "TRYAGAIN ")
	}

	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
