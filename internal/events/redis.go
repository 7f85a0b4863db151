package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/erazemk/sledljivost/internal/ledger"
	"github.com/erazemk/sledljivost/internal/model"
)

// RedisConfig holds the connection settings for the Redis publisher.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Channel  string
}

// NewRedisClient connects to Redis and checks the connection.
func NewRedisClient(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	return client, nil
}

// publishFunc delivers one payload to a channel.
type publishFunc func(ctx context.Context, channel string, payload []byte) error

// RedisPublisher implements ledger.Notifier by publishing JSON events to a
// Redis channel. Notifications are queued and sent by Run; a full queue drops
// the notification.
type RedisPublisher struct {
	publish publishFunc
	channel string
	queue   chan []byte
}

var _ ledger.Notifier = (*RedisPublisher)(nil)

// NewRedisPublisher creates a publisher that queues up to buffer events.
func NewRedisPublisher(client redis.UniversalClient, channel string, buffer int) *RedisPublisher {
	return newRedisPublisher(func(ctx context.Context, channel string, payload []byte) error {
		return client.Publish(ctx, channel, payload).Err()
	}, channel, buffer)
}

func newRedisPublisher(publish publishFunc, channel string, buffer int) *RedisPublisher {
	return &RedisPublisher{
		publish: publish,
		channel: channel,
		queue:   make(chan []byte, buffer),
	}
}

// Run publishes queued events until ctx is cancelled. Events still queued at
// that point are flushed with a short timeout.
func (p *RedisPublisher) Run(ctx context.Context) {
	log.Info().Str("channel", p.channel).Msg("starting redis event publisher")

	for {
		select {
		case payload := <-p.queue:
			p.send(ctx, payload)
		case <-ctx.Done():
			p.flush()
			log.Info().Msg("redis event publisher stopped")
			return
		}
	}
}

func (p *RedisPublisher) flush() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	for {
		select {
		case payload := <-p.queue:
			p.send(ctx, payload)
		default:
			return
		}
	}
}

func (p *RedisPublisher) send(ctx context.Context, payload []byte) {
	if err := p.publish(ctx, p.channel, payload); err != nil {
		log.Error().Err(err).Str("channel", p.channel).Msg("failed to publish event")
	}
}

func (p *RedisPublisher) enqueue(event EventType, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("event", string(event)).Msg("failed to marshal event")
		return
	}
	select {
	case p.queue <- payload:
	default:
		log.Warn().Str("event", string(event)).Msg("redis publish queue full, dropping event")
	}
}

func (p *RedisPublisher) NotifyProductRegistered(ev model.ProductRegistered) {
	p.enqueue(EventProductRegistered, productRegisteredEvent(ev))
}

func (p *RedisPublisher) NotifyCustodyTransferred(ev model.CustodyTransferred) {
	p.enqueue(EventCustodyTransferred, custodyTransferredEvent(ev))
}

func (p *RedisPublisher) NotifyManufacturerAuthorized(ev model.ManufacturerAuthorized) {
	p.enqueue(EventManufacturerAuthorized, manufacturerAuthorizedEvent(ev))
}
