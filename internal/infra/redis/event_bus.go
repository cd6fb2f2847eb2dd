package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"live-quiz-service/internal/domain"
)

const channelPrefix = "quiz:events:"

// EventBus fans session events out over Redis pub/sub so dashboards and other
// instances can follow a session without polling.
type EventBus struct {
	client *redis.Client
	logger *zap.Logger
}

func NewEventBus(client *redis.Client, logger *zap.Logger) *EventBus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventBus{client: client, logger: logger}
}

// Publish implements app.EventPublisher.
func (b *EventBus) Publish(ctx context.Context, evt domain.SessionEvent) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, channelPrefix+evt.SessionID, body).Err()
}

// Subscribe calls handler for every event of sessionID (or of all sessions
// when sessionID is "*") until cancel is called.
func (b *EventBus) Subscribe(ctx context.Context, sessionID string, handler func(domain.SessionEvent)) (cancel func(), err error) {
	ctx, cancelCtx := context.WithCancel(ctx)
	pubsub := b.client.PSubscribe(ctx, channelPrefix+sessionID)
	if _, err := pubsub.Receive(ctx); err != nil {
		cancelCtx()
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe: %w", err)
	}
	ch := pubsub.Channel()
	go func() {
		defer pubsub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var evt domain.SessionEvent
				if err := json.Unmarshal([]byte(msg.Payload), &evt); err != nil {
					b.logger.Warn("drop malformed session event", zap.String("channel", msg.Channel), zap.Error(err))
					continue
				}
				handler(evt)
			}
		}
	}()
	return cancelCtx, nil
}
