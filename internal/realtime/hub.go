// Package realtime fans entity-changed notifications out to live viewers.
package realtime

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"pulsethread/internal/domain"
	"pulsethread/internal/metrics"
)

// OpResync tells every subscriber to re-read: the feed may have dropped notifications.
const OpResync = "RESYNC"

// Topic names one stream of interest.
func RequestTopic(id string) string   { return "request:" + id }
func DonationTopic(id string) string  { return "donation:" + id }
func DonorTopic(id string) string     { return "donor:" + id }
func RequesterTopic(id string) string { return "requester:" + id }

// topicsFor lists every topic an event touches.
func topicsFor(ev domain.ChangeEvent) []string {
	var out []string
	if ev.RequestID != "" {
		out = append(out, RequestTopic(ev.RequestID))
	}
	if ev.Table == domain.TableDonations && ev.ID != "" {
		out = append(out, DonationTopic(ev.ID))
	}
	if ev.DonorID != "" {
		out = append(out, DonorTopic(ev.DonorID))
	}
	if ev.RequesterID != "" {
		out = append(out, RequesterTopic(ev.RequesterID))
	}
	return out
}

// Source produces change events until ctx ends or the feed fails.
type Source interface {
	Run(ctx context.Context, out chan<- domain.ChangeEvent) error
}

// Subscription receives events for its topics. C has room for one pending event: a
// subscriber that is behind already knows it must re-read, so extra events are dropped.
type Subscription struct {
	C      <-chan domain.ChangeEvent
	ch     chan domain.ChangeEvent
	topics []string
	hub    *Hub
	once   sync.Once
}

// Close detaches the subscription. Safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() { s.hub.remove(s) })
}

// Hub routes events from a Source to subscribers by topic.
type Hub struct {
	mu     sync.Mutex
	topics map[string]map[*Subscription]struct{}
	closed bool

	logger  zerolog.Logger
	metrics *metrics.Metrics
	backoff time.Duration
}

func NewHub(logger zerolog.Logger, m *metrics.Metrics) *Hub {
	return &Hub{
		topics:  map[string]map[*Subscription]struct{}{},
		logger:  logger.With().Str("component", "realtime").Logger(),
		metrics: m,
		backoff: 2 * time.Second,
	}
}

// Subscribe registers interest in topics. On a stopped hub the returned channel is
// already closed and callers fall back to polling.
func (h *Hub) Subscribe(topics ...string) *Subscription {
	ch := make(chan domain.ChangeEvent, 1)
	sub := &Subscription{C: ch, ch: ch, topics: topics, hub: h}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(ch)
		return sub
	}
	for _, t := range topics {
		set, ok := h.topics[t]
		if !ok {
			set = map[*Subscription]struct{}{}
			h.topics[t] = set
		}
		set[sub] = struct{}{}
	}
	h.metrics.SubscriberDelta(1)
	return sub
}

func (h *Hub) remove(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	for _, t := range sub.topics {
		if set, ok := h.topics[t]; ok {
			delete(set, sub)
			if len(set) == 0 {
				delete(h.topics, t)
			}
		}
	}
	close(sub.ch)
	h.metrics.SubscriberDelta(-1)
}

// Dispatch delivers ev to every matching subscriber without blocking.
func (h *Hub) Dispatch(ev domain.ChangeEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}

	targets := map[*Subscription]struct{}{}
	if ev.Op == OpResync {
		for _, set := range h.topics {
			for sub := range set {
				targets[sub] = struct{}{}
			}
		}
	} else {
		for _, t := range topicsFor(ev) {
			for sub := range h.topics[t] {
				targets[sub] = struct{}{}
			}
		}
	}
	for sub := range targets {
		select {
		case sub.ch <- ev:
		default:
		}
	}
}

// Run pumps events from src until ctx ends. A failing source is restarted after a pause;
// subscribers get a resync event each time the feed comes back. When Run returns, every
// subscription is closed.
func (h *Hub) Run(ctx context.Context, src Source) {
	defer h.shutdown()
	events := make(chan domain.ChangeEvent, 64)
	for {
		done := make(chan error, 1)
		go func() { done <- src.Run(ctx, events) }()

	pump:
		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-events:
				h.Dispatch(ev)
			case err := <-done:
				if ctx.Err() != nil {
					return
				}
				h.logger.Warn().Err(err).Dur("retry_in", h.backoff).Msg("change feed stopped")
				break pump
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(h.backoff):
		}
		h.Dispatch(domain.ChangeEvent{Op: OpResync})
	}
}

func (h *Hub) shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	n := 0
	seen := map[*Subscription]struct{}{}
	for _, set := range h.topics {
		for sub := range set {
			if _, ok := seen[sub]; ok {
				continue
			}
			seen[sub] = struct{}{}
			close(sub.ch)
			n++
		}
	}
	h.topics = map[string]map[*Subscription]struct{}{}
	h.metrics.SubscriberDelta(-n)
}
