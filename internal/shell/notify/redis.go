package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/artpar/charges/internal/core/domain"
)

// =============================================================================
// Redis Stream Notifier
// =============================================================================

const DefaultReceiptStream = "charges:receipts"

// streamAdder is the part of the Redis client the notifier needs.
type streamAdder interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
}

// RedisStreamNotifier appends receipts to a Redis stream. Downstream
// consumers read the stream with a consumer group, so entry order matches
// send order.
type RedisStreamNotifier struct {
	client streamAdder
	stream string
	maxLen int64
}

// RedisConfig holds configuration for the Redis stream notifier.
type RedisConfig struct {
	Addr   string
	Stream string
	// MaxLen trims the stream approximately. Zero keeps every entry.
	MaxLen int64
}

// NewRedisStreamNotifier connects to Redis and verifies the connection.
func NewRedisStreamNotifier(ctx context.Context, cfg RedisConfig) (*RedisStreamNotifier, *redis.Client, error) {
	if cfg.Addr == "" {
		return nil, nil, fmt.Errorf("missing redis address")
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, nil, fmt.Errorf("redis ping: %w", err)
	}

	return newRedisStreamNotifier(rdb, cfg), rdb, nil
}

func newRedisStreamNotifier(client streamAdder, cfg RedisConfig) *RedisStreamNotifier {
	if cfg.Stream == "" {
		cfg.Stream = DefaultReceiptStream
	}
	return &RedisStreamNotifier{client: client, stream: cfg.Stream, maxLen: cfg.MaxLen}
}

func (n *RedisStreamNotifier) Send(ctx context.Context, receipt domain.Receipt) error {
	args, err := n.streamArgs(receipt)
	if err != nil {
		return err
	}
	if err := n.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("xadd receipt %s: %w", receipt.ID, err)
	}
	return nil
}

func (n *RedisStreamNotifier) streamArgs(receipt domain.Receipt) (*redis.XAddArgs, error) {
	raw, err := json.Marshal(receipt)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal receipt: %w", err)
	}

	args := &redis.XAddArgs{
		Stream: n.stream,
		Values: map[string]any{
			"receipt_id":   receipt.ID,
			"status":       string(receipt.Status),
			"kind":         string(receipt.Kind),
			"recipient_id": receipt.Recipient.ID,
			"payload":      string(raw),
		},
	}
	if n.maxLen > 0 {
		args.MaxLen = n.maxLen
		args.Approx = true
	}
	return args, nil
}
