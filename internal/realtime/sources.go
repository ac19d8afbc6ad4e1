package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"pulsethread/internal/domain"
)

func decodeEvent(payload []byte) (domain.ChangeEvent, error) {
	var ev domain.ChangeEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return ev, fmt.Errorf("decode change event: %w", err)
	}
	if ev.Table == "" || ev.ID == "" {
		return ev, fmt.Errorf("change event missing table or id: %s", payload)
	}
	return ev, nil
}

func send(ctx context.Context, out chan<- domain.ChangeEvent, ev domain.ChangeEvent) bool {
	select {
	case out <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// PGSource listens on a PostgreSQL NOTIFY channel fed by table triggers.
type PGSource struct {
	DSN     string
	Channel string
	Logger  zerolog.Logger
}

func (s *PGSource) Run(ctx context.Context, out chan<- domain.ChangeEvent) error {
	listener := pq.NewListener(s.DSN, 2*time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		switch ev {
		case pq.ListenerEventConnectionAttemptFailed, pq.ListenerEventDisconnected:
			s.Logger.Warn().Err(err).Msg("pg listener connection lost")
		case pq.ListenerEventReconnected:
			s.Logger.Info().Msg("pg listener reconnected")
		}
	})
	defer listener.Close()

	if err := listener.Listen(s.Channel); err != nil {
		return fmt.Errorf("listen %s: %w", s.Channel, err)
	}
	s.Logger.Info().Str("channel", s.Channel).Msg("listening for changes")

	keepalive := time.NewTicker(90 * time.Second)
	defer keepalive.Stop()
	return relayNotifications(ctx, listener.Notify, keepalive.C, listener.Ping, out, s.Logger)
}

// relayNotifications turns pq notifications into change events until ctx ends or notes
// closes. A nil notification means the listener reconnected and may have missed some, so
// subscribers are told to resync.
func relayNotifications(ctx context.Context, notes <-chan *pq.Notification, keepalive <-chan time.Time,
	ping func() error, out chan<- domain.ChangeEvent, logger zerolog.Logger) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case n, ok := <-notes:
			if !ok {
				return errors.New("pg listener closed")
			}
			if n == nil {
				if !send(ctx, out, domain.ChangeEvent{Op: OpResync}) {
					return nil
				}
				continue
			}
			ev, err := decodeEvent([]byte(n.Extra))
			if err != nil {
				logger.Warn().Err(err).Msg("ignoring malformed notification")
				continue
			}
			if !send(ctx, out, ev) {
				return nil
			}
		case <-keepalive:
			if err := ping(); err != nil {
				logger.Warn().Err(err).Msg("pg listener ping failed")
			}
		}
	}
}

// NewRedisClient connects and pings a Redis server.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return rdb, nil
}

// RedisSource subscribes to a Redis pub/sub channel so every API instance sees changes
// made by the others.
type RedisSource struct {
	Client  *redis.Client
	Channel string
	Logger  zerolog.Logger
}

func (s *RedisSource) Run(ctx context.Context, out chan<- domain.ChangeEvent) error {
	sub := s.Client.Subscribe(ctx, s.Channel)
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("subscribe %s: %w", s.Channel, err)
	}
	s.Logger.Info().Str("channel", s.Channel).Msg("subscribed to redis changes")

	msgs := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return errors.New("redis subscription closed")
			}
			ev, err := decodeEvent([]byte(msg.Payload))
			if err != nil {
				s.Logger.Warn().Err(err).Msg("ignoring malformed redis message")
				continue
			}
			if !send(ctx, out, ev) {
				return nil
			}
		}
	}
}

// RedisPublisher announces changes on a Redis channel.
type RedisPublisher struct {
	Client  *redis.Client
	Channel string
}

func (p *RedisPublisher) Publish(ctx context.Context, ev domain.ChangeEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return p.Client.Publish(ctx, p.Channel, payload).Err()
}

// MemoryFeed is an in-process publisher and source for single-instance runs.
type MemoryFeed struct {
	ch chan domain.ChangeEvent
}

func NewMemoryFeed(buffer int) *MemoryFeed {
	if buffer <= 0 {
		buffer = 256
	}
	return &MemoryFeed{ch: make(chan domain.ChangeEvent, buffer)}
}

// Publish never blocks. When the buffer is full the event is dropped; pollers cover the gap.
func (f *MemoryFeed) Publish(_ context.Context, ev domain.ChangeEvent) error {
	select {
	case f.ch <- ev:
		return nil
	default:
		return errors.New("memory feed full")
	}
}

func (f *MemoryFeed) Run(ctx context.Context, out chan<- domain.ChangeEvent) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-f.ch:
			if !send(ctx, out, ev) {
				return nil
			}
		}
	}
}

var (
	_ Source                 = (*PGSource)(nil)
	_ Source                 = (*RedisSource)(nil)
	_ Source                 = (*MemoryFeed)(nil)
	_ domain.ChangePublisher = (*RedisPublisher)(nil)
	_ domain.ChangePublisher = (*MemoryFeed)(nil)
)
