package transport

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teamchess/server/internal/session"
	"github.com/teamchess/server/log"
)

type recordedCall struct {
	kind    string
	pid     session.PID
	event   string
	payload json.RawMessage
	name    string
}

type fakeDispatcher struct {
	mu      sync.Mutex
	calls   []recordedCall
	unknown map[session.PID]bool // pids this dispatcher should report as NOT known
}

func (f *fakeDispatcher) Connect(pid session.PID, name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, recordedCall{kind: "connect", pid: pid, name: name})
}

func (f *fakeDispatcher) Disconnect(pid session.PID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, recordedCall{kind: "disconnect", pid: pid})
}

func (f *fakeDispatcher) Handle(pid session.PID, event string, payload json.RawMessage) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, recordedCall{kind: "handle", pid: pid, event: event, payload: payload})
}

// IsKnownPID defaults to "known" so existing tests that dial with a
// caller-chosen pid keep using it as the connection key; tests exercising
// the unknown-pid path populate unknown explicitly.
func (f *fakeDispatcher) IsKnownPID(pid session.PID) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.unknown[pid]
}

func (f *fakeDispatcher) snapshot() []recordedCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]recordedCall, len(f.calls))
	copy(out, f.calls)
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
	t.Fatal("condition never became true")
}

func newTestGateway(t *testing.T) (*Gateway, *fakeDispatcher, *httptest.Server) {
	t.Helper()
	jobs := make(chan func(), 64)
	post := func(fn func()) { jobs <- fn }
	go func() {
		for fn := range jobs {
			fn()
		}
	}()

	gw := New(log.DefaultLogger(), post)
	disp := &fakeDispatcher{}
	gw.SetDispatcher(disp)

	srv := httptest.NewServer(gw)
	t.Cleanup(srv.Close)
	return gw, disp, srv
}

func dial(t *testing.T, srv *httptest.Server, pid, name string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?pid=" + pid + "&name=" + name
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dialing test gateway: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestConnectDispatches(t *testing.T) {
	_, disp, srv := newTestGateway(t)
	dial(t, srv, "p1", "Alice")

	waitFor(t, func() bool { return len(disp.snapshot()) >= 1 })
	calls := disp.snapshot()
	if calls[0].kind != "connect" || calls[0].pid != "p1" || calls[0].name != "Alice" {
		t.Fatalf("expected a connect call for p1/Alice, got %+v", calls[0])
	}
}

func TestInboundMessageDispatchesHandle(t *testing.T) {
	_, disp, srv := newTestGateway(t)
	conn := dial(t, srv, "p1", "Alice")

	waitFor(t, func() bool { return len(disp.snapshot()) >= 1 })

	msg := Inbound{Event: "chat_message", Payload: json.RawMessage(`{"message":"hi"}`)}
	if err := conn.WriteJSON(msg); err != nil {
		t.Fatalf("writing inbound message: %v", err)
	}

	waitFor(t, func() bool { return len(disp.snapshot()) >= 2 })
	calls := disp.snapshot()
	if calls[1].kind != "handle" || calls[1].event != "chat_message" {
		t.Fatalf("expected a handle call for chat_message, got %+v", calls[1])
	}
}

func TestDisconnectOnClose(t *testing.T) {
	_, disp, srv := newTestGateway(t)
	conn := dial(t, srv, "p1", "Alice")
	waitFor(t, func() bool { return len(disp.snapshot()) >= 1 })

	_ = conn.Close()

	waitFor(t, func() bool { return len(disp.snapshot()) >= 2 })
	calls := disp.snapshot()
	if calls[len(calls)-1].kind != "disconnect" {
		t.Fatalf("expected a trailing disconnect call, got %+v", calls)
	}
}

func TestUnknownPIDGetsFreshIdentifier(t *testing.T) {
	jobs := make(chan func(), 64)
	post := func(fn func()) { jobs <- fn }
	go func() {
		for fn := range jobs {
			fn()
		}
	}()

	gw := New(log.DefaultLogger(), post)
	disp := &fakeDispatcher{unknown: map[session.PID]bool{"ghost": true}}
	gw.SetDispatcher(disp)

	srv := httptest.NewServer(gw)
	t.Cleanup(srv.Close)

	dial(t, srv, "ghost", "Casper")

	waitFor(t, func() bool { return len(disp.snapshot()) >= 1 })
	calls := disp.snapshot()
	if calls[0].kind != "connect" {
		t.Fatalf("expected a connect call, got %+v", calls[0])
	}
	if calls[0].pid == "ghost" {
		t.Fatalf("expected an unknown client-supplied pid to be replaced with a fresh one, got %q", calls[0].pid)
	}
}

func TestUnicastDeliversOnlyToTarget(t *testing.T) {
	gw, _, srv := newTestGateway(t)
	connA := dial(t, srv, "a", "Alice")
	_ = dial(t, srv, "b", "Bob")
	time.Sleep(20 * time.Millisecond)

	gw.Unicast("a", "test_event", map[string]string{"hello": "a"})

	_ = connA.SetReadDeadline(time.Now().Add(time.Second))
	var out Outbound
	if err := connA.ReadJSON(&out); err != nil {
		t.Fatalf("expected a's connection to receive the unicast: %v", err)
	}
	if out.Event != "test_event" {
		t.Fatalf("expected test_event, got %q", out.Event)
	}
}

func TestBroadcastReachesEveryConnection(t *testing.T) {
	gw, _, srv := newTestGateway(t)
	connA := dial(t, srv, "a", "Alice")
	connB := dial(t, srv, "b", "Bob")
	time.Sleep(20 * time.Millisecond)

	gw.Broadcast("announce", map[string]string{"hello": "everyone"})

	for _, c := range []*websocket.Conn{connA, connB} {
		_ = c.SetReadDeadline(time.Now().Add(time.Second))
		var out Outbound
		if err := c.ReadJSON(&out); err != nil {
			t.Fatalf("expected broadcast delivery: %v", err)
		}
		if out.Event != "announce" {
			t.Fatalf("expected announce, got %q", out.Event)
		}
	}
}
