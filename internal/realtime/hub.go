package realtime

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// PingInterval and PongWait are used for heartbeat, in seconds.
	PingInterval = 30
	PongWait     = 60
)

// Feed events pushed to door dashboards.
const (
	EventCheckedIn = "registration_checked_in"
	EventConfirmed = "registration_confirmed"
	EventCancelled = "registration_cancelled"
	EventViewers   = "viewer_count"
)

// Publisher publishes slot events to other server instances.
type Publisher interface {
	PublishSlotEvent(slotID uuid.UUID, event string, payload []byte) error
}

// Subscriber subscribes to slot events published by any instance.
type Subscriber interface {
	SubscribeSlot(slotID uuid.UUID, handler func(event string, payload []byte)) (cancel func(), err error)
}

// Hub maintains slot_id -> set of connections and broadcasts feed messages.
// With a Redis publisher, events go through Redis so every instance delivers them once.
type Hub struct {
	slots  map[uuid.UUID]map[string]*Client
	subs   map[uuid.UUID]func()
	mu     sync.RWMutex
	logger *zap.Logger
	pub    Publisher
	sub    Subscriber
}

// NewHub creates a new WebSocket hub. pub and sub may be nil for a single-instance hub.
func NewHub(logger *zap.Logger, pub Publisher, sub Subscriber) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		slots:  make(map[uuid.UUID]map[string]*Client),
		subs:   make(map[uuid.UUID]func()),
		logger: logger,
		pub:    pub,
		sub:    sub,
	}
}

// Register adds a client to a slot feed and subscribes the slot on the bus when
// it has no live subscription yet. The subscribe round trip runs outside the lock.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	if h.slots[c.SlotID] == nil {
		h.slots[c.SlotID] = make(map[string]*Client)
	}
	h.slots[c.SlotID][c.ID] = c
	_, subscribed := h.subs[c.SlotID]
	h.mu.Unlock()

	if h.sub != nil && !subscribed {
		h.subscribe(c.SlotID)
	}
	h.logger.Debug("client joined slot feed", zap.String("client_id", c.ID), zap.String("slot_id", c.SlotID.String()))
}

func (h *Hub) subscribe(slotID uuid.UUID) {
	cancel, err := h.sub.SubscribeSlot(slotID, func(event string, payload []byte) {
		h.Broadcast(slotID, event, json.RawMessage(payload))
	})
	if err != nil {
		h.logger.Warn("slot subscription failed", zap.String("slot_id", slotID.String()), zap.Error(err))
		return
	}

	h.mu.Lock()
	_, dup := h.subs[slotID]
	keep := !dup && len(h.slots[slotID]) > 0
	if keep {
		h.subs[slotID] = cancel
	}
	h.mu.Unlock()
	if !keep {
		// another Register won the race, or every client already left
		cancel()
	}
}

// Unregister removes a client from a slot feed. Cancels the bus subscription when the last client leaves.
func (h *Hub) Unregister(c *Client) {
	var cancel func()
	h.mu.Lock()
	if m, ok := h.slots[c.SlotID]; ok {
		if _, ok := m[c.ID]; ok {
			delete(m, c.ID)
			close(c.send)
		}
		if len(m) == 0 {
			delete(h.slots, c.SlotID)
			cancel = h.subs[c.SlotID]
			delete(h.subs, c.SlotID)
		}
	}
	h.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	h.logger.Debug("client left slot feed", zap.String("client_id", c.ID), zap.String("slot_id", c.SlotID.String()))
}

// Broadcast sends a message to all local clients of a slot.
func (h *Hub) Broadcast(slotID uuid.UUID, event string, payload interface{}) {
	var data []byte
	switch v := payload.(type) {
	case []byte:
		data = v
	case json.RawMessage:
		data = v
	default:
		data, _ = json.Marshal(payload)
	}
	msg := WSMessage{Event: event, Data: data}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.slots[slotID] {
		select {
		case c.send <- msg:
		default:
			// buffer full, skip
		}
	}
}

// Publish delivers an event to every instance's clients of the slot.
// Without a publisher, or while the slot has no bus subscription, it broadcasts locally.
func (h *Hub) Publish(slotID uuid.UUID, event string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if h.pub == nil {
		h.Broadcast(slotID, event, json.RawMessage(data))
		return nil
	}
	err = h.pub.PublishSlotEvent(slotID, event, data)
	if h.sub != nil && !h.subscribed(slotID) {
		// local viewers are not fed by the bus until a subscription succeeds
		h.Broadcast(slotID, event, json.RawMessage(data))
	}
	return err
}

func (h *Hub) subscribed(slotID uuid.UUID) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.subs[slotID]
	return ok
}

// ViewerCount returns the number of local clients watching a slot feed.
func (h *Hub) ViewerCount(slotID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.slots[slotID])
}
