package hub

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-proctor/pkg/activity"
)

type fakeConn struct {
	closeOnce sync.Once
	closed    chan struct{}
	writes    chan []byte
	types     chan int
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		closed: make(chan struct{}),
		writes: make(chan []byte, 64),
		types:  make(chan int, 64),
	}
}

func (f *fakeConn) SetReadLimit(int64)                {}
func (f *fakeConn) SetReadDeadline(time.Time) error   { return nil }
func (f *fakeConn) SetWriteDeadline(time.Time) error  { return nil }
func (f *fakeConn) SetPongHandler(func(string) error) {}

func (f *fakeConn) ReadMessage() (int, []byte, error) {
	<-f.closed
	return 0, nil, errors.New("closed")
}

func (f *fakeConn) WriteMessage(mt int, data []byte) error {
	select {
	case <-f.closed:
		return errors.New("closed")
	default:
	}
	f.types <- mt
	f.writes <- data
	return nil
}

func (f *fakeConn) Close() error {
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeConn) next(t *testing.T) []byte {
	t.Helper()
	select {
	case data := <-f.writes:
		<-f.types
		return data
	case <-time.After(2 * time.Second):
		t.Fatal("no message written")
		return nil
	}
}

func startHub(t *testing.T) (*Hub, context.CancelFunc) {
	t.Helper()
	h := New("test", nil)
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)
	t.Cleanup(cancel)
	deadline := time.Now().Add(time.Second)
	for !h.IsRunning() && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	return h, cancel
}

func connect(t *testing.T, h *Hub, opts ...ClientOption) *fakeConn {
	t.Helper()
	conn := newFakeConn()
	c := NewClient(h, conn, opts...)
	go c.Run()
	t.Cleanup(func() { conn.Close() })
	deadline := time.Now().Add(time.Second)
	for h.ClientCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	return conn
}

func TestHub_WriteBroadcastsActivity(t *testing.T) {
	h, _ := startHub(t)
	conn := connect(t, h)

	a := activity.New(activity.MultipleFaces, activity.High, "visual", "2 faces")
	if err := h.Write(a); err != nil {
		t.Fatalf("Write: %v", err)
	}

	var env Envelope
	if err := json.Unmarshal(conn.next(t), &env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if env.Type != KindActivity {
		t.Errorf("type = %q", env.Type)
	}
	var got activity.Activity
	if err := json.Unmarshal(env.Data, &got); err != nil {
		t.Fatal(err)
	}
	if got.ID != a.ID || got.Type != activity.MultipleFaces {
		t.Errorf("activity = %+v", got)
	}
}

func TestHub_SubscribeFiltersKinds(t *testing.T) {
	h, _ := startHub(t)
	hello, _ := Encode(KindHello, nil)
	conn := connect(t, h, Subscribe(KindState), Initial(hello))

	h.Write(activity.New(activity.TabSwitch, activity.High, "lockdown", "Tab switched"))
	h.Broadcast(NewJSONMessage([]byte(`{"raw":true}`)))
	h.BroadcastEvent(KindState, map[string]int{"violationCount": 1})

	var env Envelope
	json.Unmarshal(conn.next(t), &env)
	if env.Type != KindHello {
		t.Fatalf("first frame = %q, want hello despite the filter", env.Type)
	}
	if got := string(conn.next(t)); got != `{"raw":true}` {
		t.Errorf("frame without kind = %s", got)
	}
	json.Unmarshal(conn.next(t), &env)
	if env.Type != KindState {
		t.Errorf("got %q, want the activity filtered out", env.Type)
	}
}

func TestHub_InitialMessagesFirst(t *testing.T) {
	h, _ := startHub(t)
	hello, _ := Encode(KindHello, map[string]int{"count": 3})
	conn := connect(t, h, Initial(hello))
	h.BroadcastEvent(KindState, map[string]bool{"isMonitoring": true})

	var first, second Envelope
	json.Unmarshal(conn.next(t), &first)
	json.Unmarshal(conn.next(t), &second)
	if first.Type != KindHello || second.Type != KindState {
		t.Errorf("order = %s, %s", first.Type, second.Type)
	}
}

func TestHub_DisconnectUnregisters(t *testing.T) {
	h, _ := startHub(t)
	conn := connect(t, h)
	if h.ClientCount() != 1 {
		t.Fatalf("ClientCount() = %d", h.ClientCount())
	}
	conn.Close()

	deadline := time.Now().Add(time.Second)
	for h.ClientCount() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("client not unregistered")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestHub_StopClosesClients(t *testing.T) {
	h, cancel := startHub(t)
	conn := connect(t, h)
	cancel()

	// The write pump sends a close frame when its channel is closed.
	select {
	case mt := <-conn.types:
		if mt != websocket.CloseMessage {
			t.Errorf("message type = %d, want close", mt)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("client not closed after hub stop")
	}

	// Registering after stop must not block.
	done := make(chan struct{})
	go func() {
		NewClient(h, newFakeConn())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("NewClient blocked on a stopped hub")
	}
}

func TestHub_BroadcastNeverBlocks(t *testing.T) {
	h := New("idle", nil)
	for i := 0; i < 300; i++ {
		h.Broadcast(NewJSONMessage([]byte("{}")))
	}
	if h.Dropped() != 300-256 {
		t.Errorf("Dropped() = %d, want %d", h.Dropped(), 300-256)
	}
}
