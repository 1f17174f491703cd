// Package changefeed broadcasts project mutations over Redis pub/sub so every list
// view showing the affected projects can reload.
package changefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DefaultChannel is used when no channel is configured.
const DefaultChannel = "prism:projects:changes"

type Kind string

const (
	KindCreated       Kind = "created"
	KindUpdated       Kind = "updated"
	KindDeleted       Kind = "deleted"
	KindRiskRefreshed Kind = "risk_refreshed"
)

// Change describes one mutation of the project store.
type Change struct {
	UserID    string    `json:"user_id,omitempty"`
	ProjectID int64     `json:"project_id,omitempty"`
	Kind      Kind      `json:"kind"`
	At        time.Time `json:"at"`
}

// Affects reports whether a list view scoped to userID must reload for c.
// Unscoped views and unscoped changes match everything.
func (c Change) Affects(userID string) bool {
	return userID == "" || c.UserID == "" || c.UserID == userID
}

// Publisher sends changes to the feed.
type Publisher struct {
	client  *redis.Client
	channel string
}

func NewPublisher(client *redis.Client, channel string) *Publisher {
	if channel == "" {
		channel = DefaultChannel
	}
	return &Publisher{client: client, channel: channel}
}

// Publish stamps c with the current time when unset and sends it.
func (p *Publisher) Publish(ctx context.Context, c Change) error {
	if c.At.IsZero() {
		c.At = time.Now().UTC()
	}
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal change: %w", err)
	}
	if err := p.client.Publish(ctx, p.channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish change: %w", err)
	}
	return nil
}

// Subscriber opens subscriptions to the feed.
type Subscriber struct {
	client  *redis.Client
	channel string
	logger  *zap.Logger
}

func NewSubscriber(client *redis.Client, channel string, logger *zap.Logger) *Subscriber {
	if channel == "" {
		channel = DefaultChannel
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Subscriber{client: client, channel: channel, logger: logger}
}

// Subscribe returns once Redis has confirmed the subscription, so changes published
// after it returns are never missed.
func (s *Subscriber) Subscribe(ctx context.Context) (*Subscription, error) {
	ps := s.client.Subscribe(ctx, s.channel)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", s.channel, err)
	}
	return &Subscription{ps: ps, logger: s.logger}, nil
}

// Subscription delivers decoded changes.
type Subscription struct {
	ps     *redis.PubSub
	logger *zap.Logger
}

// Run calls handle for every change until ctx ends or the subscription is closed.
// Undecodable messages are logged and skipped. Run closes the subscription on return.
func (s *Subscription) Run(ctx context.Context, handle func(Change)) error {
	defer s.ps.Close()

	ch := s.ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var c Change
			if err := json.Unmarshal([]byte(msg.Payload), &c); err != nil {
				s.logger.Warn("undecodable change", zap.String("channel", msg.Channel), zap.Error(err))
				continue
			}
			handle(c)
		}
	}
}

func (s *Subscription) Close() error {
	return s.ps.Close()
}
