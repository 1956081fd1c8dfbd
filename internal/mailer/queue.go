package mailer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const DefaultQueueKey = "atlas:mail:queue"

// RedisQueue enqueues messages on a Redis list for a Worker to deliver, so
// request handlers return as soon as the message is durably queued.
type RedisQueue struct {
	client redis.Cmdable
	key    string
}

func NewRedisQueue(client redis.Cmdable, key string) *RedisQueue {
	if key == "" {
		key = DefaultQueueKey
	}
	return &RedisQueue{client: client, key: key}
}

func (q *RedisQueue) Send(ctx context.Context, msg Message) error {
	if err := validate(msg); err != nil {
		return err
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode mail message: %w", err)
	}

	if err := q.client.LPush(ctx, q.key, payload).Err(); err != nil {
		return fmt.Errorf("enqueue mail message: %w", err)
	}
	return nil
}

// Worker drains a RedisQueue and hands each message to a delivering Mailer.
type Worker struct {
	client  redis.Cmdable
	key     string
	sender  Mailer
	logger  *slog.Logger
	block   time.Duration
	timeout time.Duration
}

func NewWorker(client redis.Cmdable, key string, sender Mailer, logger *slog.Logger) *Worker {
	if key == "" {
		key = DefaultQueueKey
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		client:  client,
		key:     key,
		sender:  sender,
		logger:  logger,
		block:   5 * time.Second,
		timeout: 30 * time.Second,
	}
}

// Run processes messages until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	w.logger.Info("mail worker started", "queue", w.key)
	defer w.logger.Info("mail worker stopped", "queue", w.key)

	for {
		if ctx.Err() != nil {
			return
		}

		if _, err := w.ProcessOne(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Error("mail worker iteration failed", "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
		}
	}
}

// ProcessOne waits up to the block interval for one message and delivers it.
// It reports whether a message was taken off the queue. Delivery failures are
// logged and the message is dropped.
func (w *Worker) ProcessOne(ctx context.Context) (bool, error) {
	res, err := w.client.BRPop(ctx, w.block, w.key).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("dequeue mail message: %w", err)
	}
	if len(res) != 2 {
		return false, fmt.Errorf("unexpected BRPOP reply of %d elements", len(res))
	}

	var msg Message
	if err := json.Unmarshal([]byte(res[1]), &msg); err != nil {
		w.logger.Error("discarding malformed mail message", "error", err)
		return true, nil
	}

	sendCtx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	if err := w.sender.Send(sendCtx, msg); err != nil {
		w.logger.Error("mail delivery failed", "recipient", msg.Recipient, "template", msg.Template, "error", err)
		return true, nil
	}

	w.logger.Info("mail delivered", "recipient", msg.Recipient, "template", msg.Template)
	return true, nil
}
