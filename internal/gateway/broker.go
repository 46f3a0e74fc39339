// Package gateway exposes the arena over REST and websockets and drives the
// phase deadlines and automatic advances around it.
package gateway

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/cory-johannsen/classquest/internal/game/arena"
)

// subscriptionBuffer bounds how far a socket may fall behind before envelopes
// are dropped for it.
const subscriptionBuffer = 32

// Subscription receives the envelopes of one encounter.
type Subscription struct {
	C           <-chan arena.Envelope
	ch          chan arena.Envelope
	encounterID string
	broker      *LocalBroker
	once        sync.Once
}

// Close unsubscribes. Safe to call multiple times.
func (s *Subscription) Close() {
	s.once.Do(func() { s.broker.remove(s) })
}

// LocalBroker fans envelopes out to the subscriptions of this process. It is
// the arena.Publisher in standalone mode and the Redis relay's target in
// cluster mode. It is safe for concurrent use.
type LocalBroker struct {
	mu     sync.RWMutex
	subs   map[string]map[*Subscription]struct{}
	logger *zap.Logger
}

var _ arena.Publisher = (*LocalBroker)(nil)

// NewLocalBroker creates an empty LocalBroker.
func NewLocalBroker(logger *zap.Logger) *LocalBroker {
	return &LocalBroker{subs: make(map[string]map[*Subscription]struct{}), logger: logger}
}

// Subscribe registers interest in encounterID.
//
// Postcondition: The caller must Close the subscription.
func (b *LocalBroker) Subscribe(encounterID string) *Subscription {
	ch := make(chan arena.Envelope, subscriptionBuffer)
	sub := &Subscription{C: ch, ch: ch, encounterID: encounterID, broker: b}
	b.mu.Lock()
	set, ok := b.subs[encounterID]
	if !ok {
		set = make(map[*Subscription]struct{})
		b.subs[encounterID] = set
	}
	set[sub] = struct{}{}
	b.mu.Unlock()
	return sub
}

func (b *LocalBroker) remove(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	set := b.subs[sub.encounterID]
	if _, ok := set[sub]; !ok {
		return
	}
	delete(set, sub)
	if len(set) == 0 {
		delete(b.subs, sub.encounterID)
	}
	close(sub.ch)
}

// Publish implements arena.Publisher.
func (b *LocalBroker) Publish(_ context.Context, encounterID string, env arena.Envelope) error {
	if env.EncounterID == "" {
		env.EncounterID = encounterID
	}
	b.Dispatch(env)
	return nil
}

// Dispatch delivers env to every subscription of its encounter without
// blocking; a full subscription misses the envelope.
func (b *LocalBroker) Dispatch(env arena.Envelope) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for sub := range b.subs[env.EncounterID] {
		select {
		case sub.ch <- env:
		default:
			b.logger.Warn("dropping envelope for slow subscriber",
				zap.String("encounter_id", env.EncounterID),
				zap.String("type", env.Type),
			)
		}
	}
}

// Subscribers returns how many subscriptions encounterID has.
func (b *LocalBroker) Subscribers(encounterID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[encounterID])
}
