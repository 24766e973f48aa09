package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tabremote/relay-server/internal/config"
	redisclient "github.com/tabremote/relay-server/internal/redis"
)

type EventType string

const (
	EventHostRegistered   EventType = "host_registered"
	EventPairCodeIssued   EventType = "pair_code_issued"
	EventRemoteJoined     EventType = "remote_joined"
	EventRemoteLeft       EventType = "remote_left"
	EventPairFailed       EventType = "pair_failed"
	EventSessionInvalid   EventType = "session_invalid"
	EventHostDisconnected EventType = "host_disconnected"
	EventConnectionReaped EventType = "connection_reaped"
)

// Event is a relay lifecycle notification. It never carries pair codes or
// trust tokens.
type Event struct {
	Type      EventType `json:"type"`
	SessionID string    `json:"sessionId,omitempty"`
	RemoteID  string    `json:"remoteId,omitempty"`
	DeviceID  string    `json:"deviceId,omitempty"`
	ConnID    string    `json:"connId,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	At        time.Time `json:"at"`
}

type Subscriber struct {
	Events chan Event
	Done   chan struct{}
}

type Broker struct {
	redis       *redisclient.Client
	channel     string
	subscribers map[*Subscriber]bool
	mu          sync.RWMutex
	sink        chan Event
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
}

// NewBroker fans events out to in-process subscribers and, when redisClient
// is non-nil, to a Redis pub/sub channel.
func NewBroker(redisClient *redisclient.Client, channel string) *Broker {
	ctx, cancel := context.WithCancel(context.Background())
	b := &Broker{
		redis:       redisClient,
		channel:     channel,
		subscribers: make(map[*Subscriber]bool),
		ctx:         ctx,
		cancel:      cancel,
	}

	if redisClient != nil {
		b.sink = make(chan Event, config.EventSinkBuffer)
		b.wg.Add(1)
		go b.forwardToRedis()
	}

	return b
}

func (b *Broker) Subscribe() *Subscriber {
	sub := &Subscriber{
		Events: make(chan Event, config.EventSubscriberBuffer),
		Done:   make(chan struct{}),
	}

	b.mu.Lock()
	b.subscribers[sub] = true
	count := len(b.subscribers)
	b.mu.Unlock()

	log.Info().Int("subscriberCount", count).Msg("event subscriber added")
	return sub
}

func (b *Broker) Unsubscribe(sub *Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subscribers[sub]; ok {
		delete(b.subscribers, sub)
		close(sub.Done)

		log.Info().Int("subscriberCount", len(b.subscribers)).Msg("event subscriber removed")
	}
}

// Publish never blocks: slow subscribers and a backed-up Redis sink lose events.
func (b *Broker) Publish(event Event) {
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}

	b.mu.RLock()
	for sub := range b.subscribers {
		select {
		case sub.Events <- event:
		default:
			log.Warn().Str("eventType", string(event.Type)).Msg("subscriber buffer full, dropping event")
		}
	}
	b.mu.RUnlock()

	if b.sink == nil {
		return
	}
	select {
	case <-b.ctx.Done():
	case b.sink <- event:
	default:
		log.Warn().Str("eventType", string(event.Type)).Msg("redis event sink full, dropping event")
	}
}

func (b *Broker) forwardToRedis() {
	defer b.wg.Done()

	for {
		select {
		case <-b.ctx.Done():
			return
		case event := <-b.sink:
			b.publishToRedis(event)
		}
	}
}

func (b *Broker) publishToRedis(event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal event")
		return
	}

	ctx, cancel := context.WithTimeout(b.ctx, 2*time.Second)
	defer cancel()

	pipe := b.redis.Pipeline()
	pipe.Publish(ctx, b.channel, data)
	if event.SessionID != "" {
		pipe.Publish(ctx, redisclient.SessionChannel(b.channel, event.SessionID), data)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		log.Warn().Err(err).Str("eventType", string(event.Type)).Msg("redis publish failed")
	}
}

func (b *Broker) Close() {
	b.cancel()
	b.wg.Wait()

	b.mu.Lock()
	defer b.mu.Unlock()

	for sub := range b.subscribers {
		close(sub.Done)
	}
	b.subscribers = make(map[*Subscriber]bool)
}

func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
