package notify

import (
	"context"
	"sync"
	"time"

	"sessions-portal/logger"
	"sessions-portal/model"
)

// StatusEvent 资产状态变更事件
type StatusEvent struct {
	AssetID uint              `json:"asset_id"`
	Status  model.VideoStatus `json:"status"`
	Error   string            `json:"error,omitempty"`
	At      time.Time         `json:"at"`
}

// Publisher receives terminal status transitions from the ingestion task.
type Publisher interface {
	Publish(ctx context.Context, ev StatusEvent) error
}

const subscriberBuffer = 8

// Hub fans status events out to in-process subscribers keyed by asset id.
type Hub struct {
	mu     sync.RWMutex
	subs   map[uint]map[int]chan StatusEvent
	nextID int
}

func NewHub() *Hub {
	return &Hub{subs: make(map[uint]map[int]chan StatusEvent)}
}

// Subscribe returns a channel of events for assetID and a cancel func that
// must be called when the subscriber goes away.
func (h *Hub) Subscribe(assetID uint) (<-chan StatusEvent, func()) {
	ch := make(chan StatusEvent, subscriberBuffer)

	h.mu.Lock()
	h.nextID++
	id := h.nextID
	if h.subs[assetID] == nil {
		h.subs[assetID] = make(map[int]chan StatusEvent)
	}
	h.subs[assetID][id] = ch
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() { h.unsubscribe(assetID, id) })
	}
}

func (h *Hub) unsubscribe(assetID uint, id int) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if subs, ok := h.subs[assetID]; ok {
		if ch, ok := subs[id]; ok {
			close(ch)
			delete(subs, id)
		}
		if len(subs) == 0 {
			delete(h.subs, assetID)
		}
	}
}

// Publish never blocks: a subscriber whose buffer is full misses the event.
func (h *Hub) Publish(_ context.Context, ev StatusEvent) error {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, ch := range h.subs[ev.AssetID] {
		select {
		case ch <- ev:
		default:
			logger.Warn("status subscriber is slow, dropping event",
				logger.Uint("assetId", ev.AssetID),
				logger.String("status", ev.Status.String()))
		}
	}
	return nil
}

// Subscribers returns the number of live subscribers for assetID.
func (h *Hub) Subscribers(assetID uint) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[assetID])
}
