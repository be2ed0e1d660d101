package quizforge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Progress checkpoints, in the order a subscriber sees them
const (
	MsgWarmingUp           = "Warming up"
	MsgExtractingKnowledge = "Extracting knowledge"
	MsgGeneratingQuiz      = "Generating quiz"
	MsgGenerationComplete  = "Quiz generation complete"
)

// Notifier receives pipeline checkpoints
type Notifier interface {
	Notify(ctx context.Context, correlationID, message string) error
}

// ProgressStore persists progress events
type ProgressStore interface {
	AppendProgress(ctx context.Context, ev ProgressEvent) error
	ListProgress(ctx context.Context, correlationID string) ([]ProgressEvent, error)
}

// ProgressHub fans out live progress events to subscribers of a correlation id
type ProgressHub interface {
	Publish(ctx context.Context, ev ProgressEvent) error
	Subscribe(ctx context.Context, correlationID string) (<-chan ProgressEvent, func(), error)
	Close() error
}

// ProgressPublisher records each event and then broadcasts it
type ProgressPublisher struct {
	store ProgressStore
	hub   ProgressHub
}

// NewProgressPublisher creates a publisher. hub may be nil.
func NewProgressPublisher(store ProgressStore, hub ProgressHub) *ProgressPublisher {
	return &ProgressPublisher{store: store, hub: hub}
}

// Notify appends a new event and publishes it to live subscribers
func (p *ProgressPublisher) Notify(ctx context.Context, correlationID, message string) error {
	ev := ProgressEvent{
		ID:            uuid.NewString(),
		CorrelationID: correlationID,
		Message:       message,
		CreatedAt:     time.Now().UTC(),
	}
	if err := p.store.AppendProgress(ctx, ev); err != nil {
		return fmt.Errorf("failed to store progress event: %w", err)
	}
	if p.hub != nil {
		if err := p.hub.Publish(ctx, ev); err != nil {
			return fmt.Errorf("failed to broadcast progress event: %w", err)
		}
	}
	return nil
}

// Stream calls fn with every stored event for correlationID in creation order,
// then with live events until the completion message, ctx cancellation, or an
// error from fn.
func (p *ProgressPublisher) Stream(ctx context.Context, correlationID string, fn func(ProgressEvent) error) error {
	var live <-chan ProgressEvent
	if p.hub != nil {
		ch, cancel, err := p.hub.Subscribe(ctx, correlationID)
		if err != nil {
			return fmt.Errorf("failed to subscribe: %w", err)
		}
		defer cancel()
		live = ch
	}

	stored, err := p.store.ListProgress(ctx, correlationID)
	if err != nil {
		return fmt.Errorf("failed to list progress: %w", err)
	}

	seen := make(map[string]bool, len(stored))
	for _, ev := range stored {
		seen[ev.ID] = true
		if err := fn(ev); err != nil {
			return err
		}
		if ev.Message == MsgGenerationComplete {
			return nil
		}
	}

	if live == nil {
		return nil
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-live:
			if !ok {
				return nil
			}
			if seen[ev.ID] {
				continue
			}
			seen[ev.ID] = true
			if err := fn(ev); err != nil {
				return err
			}
			if ev.Message == MsgGenerationComplete {
				return nil
			}
		}
	}
}

const subscriberBuffer = 32

// MemoryHub is an in-process ProgressHub
type MemoryHub struct {
	mu     sync.Mutex
	subs   map[string]map[chan ProgressEvent]struct{}
	closed bool
}

// NewMemoryHub creates an empty hub
func NewMemoryHub() *MemoryHub {
	return &MemoryHub{subs: make(map[string]map[chan ProgressEvent]struct{})}
}

// Publish delivers ev to current subscribers. Slow subscribers drop events.
func (h *MemoryHub) Publish(_ context.Context, ev ProgressEvent) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return errors.New("hub closed")
	}
	for ch := range h.subs[ev.CorrelationID] {
		select {
		case ch <- ev:
		default:
			logger.Warnw("dropping progress event for slow subscriber", "correlation_id", ev.CorrelationID, "message", ev.Message)
		}
	}
	return nil
}

// Subscribe registers a subscriber. The returned func unsubscribes and closes the channel.
func (h *MemoryHub) Subscribe(ctx context.Context, correlationID string) (<-chan ProgressEvent, func(), error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, nil, errors.New("hub closed")
	}

	ch := make(chan ProgressEvent, subscriberBuffer)
	if h.subs[correlationID] == nil {
		h.subs[correlationID] = make(map[chan ProgressEvent]struct{})
	}
	h.subs[correlationID][ch] = struct{}{}

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if _, ok := h.subs[correlationID][ch]; ok {
				delete(h.subs[correlationID], ch)
				if len(h.subs[correlationID]) == 0 {
					delete(h.subs, correlationID)
				}
				close(ch)
			}
		})
	}
	return ch, cancel, nil
}

// Close drops all subscribers
func (h *MemoryHub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, set := range h.subs {
		for ch := range set {
			close(ch)
		}
		delete(h.subs, id)
	}
	h.closed = true
	return nil
}

// RedisHub fans progress events out over Redis pub/sub, one channel per correlation id
type RedisHub struct {
	rdb    *redis.Client
	prefix string
}

// NewRedisHub connects to addr and verifies the connection
func NewRedisHub(ctx context.Context, addr, prefix string) (*RedisHub, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, fmt.Errorf("missing redis address")
	}
	if prefix == "" {
		prefix = "quiz-progress"
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisHub{rdb: rdb, prefix: prefix}, nil
}

func (h *RedisHub) channel(correlationID string) string {
	return h.prefix + ":" + correlationID
}

// Publish sends ev on the correlation id's channel
func (h *RedisHub) Publish(ctx context.Context, ev ProgressEvent) error {
	raw, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return h.rdb.Publish(ctx, h.channel(ev.CorrelationID), raw).Err()
}

// Subscribe listens on the correlation id's channel until ctx ends or the returned func is called
func (h *RedisHub) Subscribe(ctx context.Context, correlationID string) (<-chan ProgressEvent, func(), error) {
	sub := h.rdb.Subscribe(ctx, h.channel(correlationID))

	// ensures subscription actually started
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, nil, fmt.Errorf("redis subscribe: %w", err)
	}

	out := make(chan ProgressEvent, subscriberBuffer)
	done := make(chan struct{})
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(done)
			_ = sub.Close()
		})
	}

	go func() {
		defer close(out)
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				cancel()
				return
			case <-done:
				return
			case m, ok := <-ch:
				if !ok || m == nil {
					return
				}
				var ev ProgressEvent
				if err := json.Unmarshal([]byte(m.Payload), &ev); err != nil {
					logger.Warnw("bad redis progress payload", "channel", m.Channel, "error", err)
					continue
				}
				select {
				case out <- ev:
				case <-done:
					return
				case <-ctx.Done():
					cancel()
					return
				}
			}
		}
	}()

	return out, cancel, nil
}

// Close releases the redis client
func (h *RedisHub) Close() error {
	return h.rdb.Close()
}
