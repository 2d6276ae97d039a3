package hub

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/framegrab/internal/log"
)

// fakeConn records writes and blocks reads until closed.
type fakeConn struct {
	mu     sync.Mutex
	writes []Message
	types  []int
	closed chan struct{}
	once   sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{closed: make(chan struct{})}
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	<-c.closed
	return 0, nil, errors.New("closed")
}

func (c *fakeConn) WriteMessage(mt int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.types = append(c.types, mt)
	if mt == websocket.TextMessage || mt == websocket.BinaryMessage {
		typ := JSONMessage
		if mt == websocket.BinaryMessage {
			typ = BinaryMessage
		}
		c.writes = append(c.writes, Message{Type: typ, Data: data})
	}
	return nil
}

func (c *fakeConn) SetReadLimit(int64)                {}
func (c *fakeConn) SetReadDeadline(time.Time) error   { return nil }
func (c *fakeConn) SetWriteDeadline(time.Time) error  { return nil }
func (c *fakeConn) SetPongHandler(func(string) error) {}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) messages() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Message, len(c.writes))
	copy(out, c.writes)
	return out
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func startHub(t *testing.T) (*Hub, context.CancelFunc) {
	t.Helper()
	h := New("test")
	h.SetLogger(log.Discard())
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)
	waitFor(t, h.IsRunning)
	return h, cancel
}

func TestNewHub(t *testing.T) {
	h := New("status")
	if h.ClientCount() != 0 {
		t.Error("ClientCount should be 0 initially")
	}
	if h.IsRunning() {
		t.Error("hub should not be running before Run")
	}
}

func TestBroadcastReachesClients(t *testing.T) {
	h, cancel := startHub(t)
	defer cancel()

	conns := []*fakeConn{newFakeConn(), newFakeConn()}
	for _, c := range conns {
		client := NewClient(h, c)
		go client.Run()
	}
	waitFor(t, func() bool { return h.ClientCount() == 2 })

	if err := h.BroadcastJSON(map[string]int{"delivered": 3}); err != nil {
		t.Fatalf("BroadcastJSON: %v", err)
	}
	h.BroadcastBinary([]byte{0xff, 0xd8})

	for i, c := range conns {
		waitFor(t, func() bool { return len(c.messages()) == 2 })
		msgs := c.messages()
		if msgs[0].Type != JSONMessage || string(msgs[0].Data) != `{"delivered":3}` {
			t.Errorf("conn %d: first message = %v %q", i, msgs[0].Type, msgs[0].Data)
		}
		if msgs[1].Type != BinaryMessage || len(msgs[1].Data) != 2 {
			t.Errorf("conn %d: second message = %v %v", i, msgs[1].Type, msgs[1].Data)
		}
	}
}

func TestClientDisconnect(t *testing.T) {
	h, cancel := startHub(t)
	defer cancel()

	c := newFakeConn()
	client := NewClient(h, c)
	go client.Run()
	waitFor(t, func() bool { return h.ClientCount() == 1 })

	c.Close()
	waitFor(t, func() bool { return h.ClientCount() == 0 })
}

func TestRunStopsOnCancel(t *testing.T) {
	h, cancel := startHub(t)

	c := newFakeConn()
	client := NewClient(h, c)
	go client.Run()
	waitFor(t, func() bool { return h.ClientCount() == 1 })

	cancel()
	select {
	case <-h.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("hub did not stop")
	}
	if h.IsRunning() {
		t.Error("IsRunning should be false after stop")
	}
	if h.ClientCount() != 0 {
		t.Error("clients should be dropped on stop")
	}

	// Registering after stop must not block.
	if NewClient(h, newFakeConn()) != nil {
		t.Error("NewClient should return nil on a stopped hub")
	}
}

func TestBroadcastDropsWhenFull(t *testing.T) {
	h := New("idle")
	h.SetLogger(log.Discard())

	// Nothing drains the channel.
	for i := 0; i < cap(h.broadcast)+5; i++ {
		h.BroadcastBinary([]byte{1})
	}
	if h.Dropped() != 5 {
		t.Errorf("Dropped = %d, want 5", h.Dropped())
	}
}

func TestBroadcastJSONError(t *testing.T) {
	h := New("bad")
	if err := h.BroadcastJSON(make(chan int)); err == nil {
		t.Error("expected marshal error")
	}
}
