package realtime

import (
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(h *Hub, slotID uuid.UUID) *Client {
	return &Client{
		ID:     uuid.NewString(),
		SlotID: slotID,
		hub:    h,
		send:   make(chan WSMessage, 8),
	}
}

type fakeBus struct {
	mu        sync.Mutex
	published []string
	handlers  map[uuid.UUID]func(event string, payload []byte)
	cancelled []uuid.UUID

	failSubscribes int
	subscribeCalls int
}

func newFakeBus() *fakeBus {
	return &fakeBus{handlers: make(map[uuid.UUID]func(string, []byte))}
}

func (b *fakeBus) PublishSlotEvent(slotID uuid.UUID, event string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = append(b.published, event)
	if h, ok := b.handlers[slotID]; ok {
		h(event, payload)
	}
	return nil
}

func (b *fakeBus) SubscribeSlot(slotID uuid.UUID, handler func(event string, payload []byte)) (func(), error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribeCalls++
	if b.failSubscribes > 0 {
		b.failSubscribes--
		return nil, errors.New("redis: connection refused")
	}
	b.handlers[slotID] = handler
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.handlers, slotID)
		b.cancelled = append(b.cancelled, slotID)
	}, nil
}

func TestHub_LocalPublish(t *testing.T) {
	t.Parallel()
	h := NewHub(nil, nil, nil)
	slot, other := uuid.New(), uuid.New()
	a, b, c := newTestClient(h, slot), newTestClient(h, slot), newTestClient(h, other)
	h.Register(a)
	h.Register(b)
	h.Register(c)

	assert.Equal(t, 2, h.ViewerCount(slot))
	assert.Equal(t, 1, h.ViewerCount(other))

	require.NoError(t, h.Publish(slot, EventCheckedIn, map[string]string{"id": "r1"}))

	for _, cl := range []*Client{a, b} {
		select {
		case msg := <-cl.send:
			assert.Equal(t, EventCheckedIn, msg.Event)
			assert.JSONEq(t, `{"id":"r1"}`, string(msg.Data))
		default:
			t.Fatal("expected a message")
		}
	}
	assert.Empty(t, c.send)
}

func TestHub_UnregisterClosesSend(t *testing.T) {
	t.Parallel()
	h := NewHub(nil, nil, nil)
	slot := uuid.New()
	cl := newTestClient(h, slot)
	h.Register(cl)
	h.Unregister(cl)

	_, ok := <-cl.send
	assert.False(t, ok)
	assert.Zero(t, h.ViewerCount(slot))

	// a second unregister must not close the channel twice
	assert.NotPanics(t, func() { h.Unregister(cl) })
}

func TestHub_PublishThroughBus(t *testing.T) {
	t.Parallel()
	bus := newFakeBus()
	h := NewHub(nil, bus, bus)
	slot := uuid.New()
	cl := newTestClient(h, slot)
	h.Register(cl)

	require.NoError(t, h.Publish(slot, EventConfirmed, map[string]int{"n": 1}))

	assert.Equal(t, []string{EventConfirmed}, bus.published)
	msg := <-cl.send
	assert.Equal(t, EventConfirmed, msg.Event)

	h.Unregister(cl)
	assert.Equal(t, []uuid.UUID{slot}, bus.cancelled)
}

func TestHub_FailedSubscribeIsRetried(t *testing.T) {
	t.Parallel()
	bus := newFakeBus()
	bus.failSubscribes = 1
	h := NewHub(nil, bus, bus)
	slot := uuid.New()

	first := newTestClient(h, slot)
	h.Register(first)
	assert.False(t, h.subscribed(slot))

	// with no subscription the event still reaches local viewers, once
	require.NoError(t, h.Publish(slot, EventCheckedIn, map[string]string{"id": "r1"}))
	require.Len(t, first.send, 1)
	<-first.send

	second := newTestClient(h, slot)
	h.Register(second)
	assert.Equal(t, 2, bus.subscribeCalls)
	assert.True(t, h.subscribed(slot))

	require.NoError(t, h.Publish(slot, EventCheckedIn, map[string]string{"id": "r2"}))
	for _, cl := range []*Client{first, second} {
		require.Len(t, cl.send, 1)
		msg := <-cl.send
		assert.JSONEq(t, `{"id":"r2"}`, string(msg.Data))
	}

	third := newTestClient(h, slot)
	h.Register(third)
	assert.Equal(t, 2, bus.subscribeCalls, "a live subscription is not repeated")
}

type slowBus struct {
	entered chan struct{}
	release chan struct{}
}

func (b *slowBus) SubscribeSlot(uuid.UUID, func(string, []byte)) (func(), error) {
	close(b.entered)
	<-b.release
	return func() {}, nil
}

func TestHub_SubscribeDoesNotBlockOtherSlots(t *testing.T) {
	t.Parallel()
	bus := &slowBus{entered: make(chan struct{}), release: make(chan struct{})}
	h := NewHub(nil, nil, bus)
	slow, other := uuid.New(), uuid.New()

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.Register(newTestClient(h, slow))
	}()
	<-bus.entered

	free := make(chan int, 1)
	go func() {
		cl := newTestClient(h, other)
		h.mu.Lock()
		h.slots[other] = map[string]*Client{cl.ID: cl}
		h.subs[other] = func() {}
		h.mu.Unlock()
		h.Broadcast(other, EventCheckedIn, []byte(`{}`))
		free <- h.ViewerCount(slow) + h.ViewerCount(other)
	}()

	select {
	case n := <-free:
		assert.Equal(t, 2, n)
	case <-time.After(2 * time.Second):
		t.Fatal("hub locked while a slot subscription was pending")
	}

	close(bus.release)
	<-done
	assert.True(t, h.subscribed(slow))
}

func TestHub_BroadcastSkipsFullBuffers(t *testing.T) {
	t.Parallel()
	h := NewHub(nil, nil, nil)
	slot := uuid.New()
	cl := &Client{ID: "slow", SlotID: slot, hub: h, send: make(chan WSMessage, 1)}
	h.Register(cl)

	h.Broadcast(slot, EventCheckedIn, []byte(`{}`))
	h.Broadcast(slot, EventCheckedIn, []byte(`{}`))

	assert.Len(t, cl.send, 1)
}

func TestServeWs(t *testing.T) {
	t.Parallel()
	gin.SetMode(gin.TestMode)
	h := NewHub(nil, nil, nil)
	staff := uuid.New()
	validate := func(token string) (uuid.UUID, error) {
		if token != "good" {
			return uuid.Nil, errors.New("bad token")
		}
		return staff, nil
	}
	r := gin.New()
	r.GET("/ws", ServeWs(h, nil, validate))
	srv := httptest.NewServer(r)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	slot := uuid.New()

	_, resp, err := websocket.DefaultDialer.Dial(wsURL+"?slot_id="+slot.String()+"&token=bad", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, 401, resp.StatusCode)

	_, resp, err = websocket.DefaultDialer.Dial(wsURL+"?token=good", nil)
	require.Error(t, err)
	assert.Equal(t, 400, resp.StatusCode)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL+"?slot_id="+slot.String()+"&token=good", nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return h.ViewerCount(slot) == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.WriteJSON(WSMessage{Event: "ping"}))
	var msg WSMessage
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "pong", msg.Event)

	require.NoError(t, h.Publish(slot, EventCheckedIn, map[string]string{"registration_id": "r1"}))
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, EventCheckedIn, msg.Event)
	var data map[string]string
	require.NoError(t, json.Unmarshal(msg.Data, &data))
	assert.Equal(t, "r1", data["registration_id"])

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return h.ViewerCount(slot) == 0 }, 2*time.Second, 10*time.Millisecond)
}
