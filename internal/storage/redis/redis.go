// Package redis fans encounter envelopes out across server instances over
// Redis pub/sub.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/cory-johannsen/classquest/internal/config"
	"github.com/cory-johannsen/classquest/internal/game/arena"
)

// NewClient connects to Redis and verifies the connection.
//
// Postcondition: Returns a client that answered PING, or an error.
func NewClient(ctx context.Context, cfg config.RedisConfig) (*goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("pinging redis at %s: %w", cfg.Addr, err)
	}
	return client, nil
}

// Publisher implements arena.Publisher by publishing each envelope as JSON on
// the encounter's channel.
type Publisher struct {
	client goredis.Cmdable
	prefix string
}

var _ arena.Publisher = (*Publisher)(nil)

// NewPublisher creates a Publisher writing to channels named prefix + encounter id.
func NewPublisher(client goredis.Cmdable, prefix string) *Publisher {
	return &Publisher{client: client, prefix: prefix}
}

// Channel returns the channel carrying encounterID's envelopes.
func (p *Publisher) Channel(encounterID string) string {
	return p.prefix + encounterID
}

// Publish implements arena.Publisher.
func (p *Publisher) Publish(ctx context.Context, encounterID string, env arena.Envelope) error {
	if env.EncounterID == "" {
		env.EncounterID = encounterID
	}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encoding envelope: %w", err)
	}
	if err := p.client.Publish(ctx, p.Channel(encounterID), string(data)).Err(); err != nil {
		return fmt.Errorf("publishing to %s: %w", p.Channel(encounterID), err)
	}
	return nil
}

// Dispatcher delivers envelopes to the sockets connected to this instance.
type Dispatcher interface {
	Dispatch(env arena.Envelope)
}

// Subscriber relays every encounter channel to a local Dispatcher.
type Subscriber struct {
	client   goredis.UniversalClient
	prefix   string
	dispatch Dispatcher
	logger   *zap.Logger
}

// NewSubscriber creates a Subscriber for channels starting with prefix.
//
// Precondition: client, dispatch and logger must be non-nil.
func NewSubscriber(client goredis.UniversalClient, prefix string, dispatch Dispatcher, logger *zap.Logger) *Subscriber {
	return &Subscriber{client: client, prefix: prefix, dispatch: dispatch, logger: logger}
}

// Run subscribes and relays messages until ctx is cancelled.
//
// Postcondition: Returns nil on cancellation, or the subscription error.
func (s *Subscriber) Run(ctx context.Context) error {
	ps := s.client.PSubscribe(ctx, s.prefix+"*")
	defer ps.Close()
	if _, err := ps.Receive(ctx); err != nil {
		return fmt.Errorf("subscribing to %s*: %w", s.prefix, err)
	}
	s.logger.Info("relaying encounter channels", zap.String("pattern", s.prefix+"*"))

	ch := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			s.handle(msg)
		}
	}
}

func (s *Subscriber) handle(msg *goredis.Message) {
	var env arena.Envelope
	if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
		s.logger.Warn("dropping malformed envelope", zap.String("channel", msg.Channel), zap.Error(err))
		return
	}
	if env.EncounterID == "" {
		env.EncounterID = strings.TrimPrefix(msg.Channel, s.prefix)
	}
	s.dispatch.Dispatch(env)
}
