// Package notify is an in-process fan-out service: callbacks are registered
// under a subscriber key and invoked together when that key is notified.
// Subscriptions are ephemeral and held only in memory; sharing subscribers
// across instances is a broker concern, not solved here.
package notify

import (
	"context"
	"log/slog"
	"sync"
)

// Callback is invoked when the key it is registered under is notified.
type Callback func(ctx context.Context) error

// Hub maps subscriber keys to their registered callbacks. A key may carry
// several callbacks at once, e.g. several live connections for one buyer.
type Hub struct {
	mu   sync.Mutex
	subs map[string]map[*Subscription]Callback
}

// Subscription is the disposal handle returned by Subscribe.
type Subscription struct {
	hub *Hub
	key string
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[*Subscription]Callback)}
}

// Subscribe registers a callback under key and returns its disposal handle.
func (h *Hub) Subscribe(key string, callback Callback) *Subscription {
	sub := &Subscription{hub: h, key: key}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subs[key] == nil {
		h.subs[key] = make(map[*Subscription]Callback)
	}
	h.subs[key][sub] = callback
	return sub
}

// Close removes the subscription from the hub. The key disappears entirely
// once its last callback is gone, bounding memory to currently-interested
// subscribers. Close is safe to call more than once.
func (s *Subscription) Close() {
	h := s.hub

	h.mu.Lock()
	defer h.mu.Unlock()
	callbacks, ok := h.subs[s.key]
	if !ok {
		return
	}
	delete(callbacks, s)
	if len(callbacks) == 0 {
		delete(h.subs, s.key)
	}
}

// Notify invokes every callback currently registered under key, concurrently,
// and returns once all of them have completed or faulted. The subscription
// map is only locked while snapshotting the callback set, so a slow callback
// never blocks Subscribe or Close on other keys. Notifying an unknown key is
// a no-op.
func (h *Hub) Notify(ctx context.Context, key string) {
	h.mu.Lock()
	snapshot := make([]Callback, 0, len(h.subs[key]))
	for _, callback := range h.subs[key] {
		snapshot = append(snapshot, callback)
	}
	h.mu.Unlock()

	if len(snapshot) == 0 {
		return
	}

	var wg sync.WaitGroup
	for _, callback := range snapshot {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := callback(ctx); err != nil {
				slog.WarnContext(ctx, "Notification callback failed", "error", err, "subscriberKey", key)
			}
		}()
	}
	wg.Wait()
}
