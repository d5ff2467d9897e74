package broker

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"annosync/internal/stomp"

	"github.com/go-playground/assert/v2"
	"github.com/go-stomp/stomp/v3/frame"
	"github.com/gorilla/websocket"
)

type appCall struct {
	sessionID   string
	destination string
	body        string
}

type recordingJournal struct {
	mu    sync.Mutex
	calls []appCall
}

func (j *recordingJournal) StoreFrame(ctx context.Context, sessionID, destination string, body []byte) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.calls = append(j.calls, appCall{sessionID, destination, string(body)})
	return nil
}

func (j *recordingJournal) count() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.calls)
}

type recordingRelay struct {
	mu           sync.Mutex
	destinations []string
}

func (r *recordingRelay) Publish(ctx context.Context, destination string, body []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.destinations = append(r.destinations, destination)
	return nil
}

func newTestBroker(t *testing.T) (*Broker, *httptest.Server) {
	t.Helper()
	b := New(nil)
	b.Start()

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", b.HandleConnection)
	ts := httptest.NewServer(mux)

	t.Cleanup(func() {
		b.Shutdown()
		ts.Close()
	})
	return b, ts
}

func wsURL(httpURL string) string {
	return "ws" + strings.TrimPrefix(httpURL, "http") + "/ws"
}

func dial(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts.URL), nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func writeFrame(t *testing.T, conn *websocket.Conn, f *frame.Frame) {
	t.Helper()
	data, err := stomp.EncodeFrame(f)
	if err != nil {
		t.Fatal(err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		t.Fatalf("write failed: %v", err)
	}
}

func readFrame(t *testing.T, conn *websocket.Conn) *frame.Frame {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	f, err := stomp.DecodeFrame(data)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	return f
}

// connect performs the handshake and returns the announced identity
func connect(t *testing.T, conn *websocket.Conn) string {
	t.Helper()
	writeFrame(t, conn, frame.New(frame.CONNECT, frame.AcceptVersion, "1.2", frame.Host, "localhost"))
	f := readFrame(t, conn)
	if f.Command != frame.CONNECTED {
		t.Fatalf("expected CONNECTED, got %s", f.Command)
	}
	return f.Header.Get(stomp.HeaderUserName)
}

func subscribe(t *testing.T, conn *websocket.Conn, id, destination string) {
	t.Helper()
	writeFrame(t, conn, frame.New(frame.SUBSCRIBE,
		frame.Id, id,
		frame.Destination, destination,
		frame.Receipt, "sub-"+id,
	))
	f := readFrame(t, conn)
	assert.Equal(t, frame.RECEIPT, f.Command)
	assert.Equal(t, "sub-"+id, f.Header.Get(frame.ReceiptId))
}

func TestConnectAnnouncesIdentity(t *testing.T) {
	b, ts := newTestBroker(t)
	conn := dial(t, ts)

	identity := connect(t, conn)
	assert.NotEqual(t, "", identity)

	sessions := b.Sessions()
	assert.Equal(t, 1, len(sessions))
	assert.Equal(t, identity, sessions[0].ID)
	assert.Equal(t, true, sessions[0].Connected)
}

func TestFramesBeforeConnectAreRejected(t *testing.T) {
	_, ts := newTestBroker(t)
	conn := dial(t, ts)

	writeFrame(t, conn, frame.New(frame.SUBSCRIBE, frame.Id, "a", frame.Destination, "/topic/x"))
	f := readFrame(t, conn)
	assert.Equal(t, frame.ERROR, f.Command)
	assert.Equal(t, "not connected", f.Header.Get(frame.Message))
}

func TestTopicFanOut(t *testing.T) {
	b, ts := newTestBroker(t)
	relay := &recordingRelay{}
	b.SetRelay(relay)

	subscriber := dial(t, ts)
	connect(t, subscriber)
	subscribe(t, subscriber, "update_3", "/topic/update_for_clients/1/2/3")

	publisher := dial(t, ts)
	connect(t, publisher)

	send := stomp.NewSendFrame("/topic/update_for_clients/1/2/3", []byte(`{"spanAddress":5}`))
	writeFrame(t, publisher, send)

	f := readFrame(t, subscriber)
	assert.Equal(t, frame.MESSAGE, f.Command)
	assert.Equal(t, "update_3", f.Header.Get(frame.Subscription))
	assert.Equal(t, "/topic/update_for_clients/1/2/3", f.Header.Get(frame.Destination))
	assert.NotEqual(t, "", f.Header.Get(frame.MessageId))
	assert.Equal(t, `{"spanAddress":5}`, string(f.Body))

	relay.mu.Lock()
	assert.Equal(t, []string{"/topic/update_for_clients/1/2/3"}, relay.destinations)
	relay.mu.Unlock()
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b, ts := newTestBroker(t)
	conn := dial(t, ts)
	connect(t, conn)

	subscribe(t, conn, "a", "/topic/a")
	subscribe(t, conn, "b", "/topic/b")

	writeFrame(t, conn, frame.New(frame.UNSUBSCRIBE, frame.Id, "a", frame.Receipt, "unsub-a"))
	assert.Equal(t, frame.RECEIPT, readFrame(t, conn).Command)

	b.DeliverLocal("/topic/a", []byte(`"dropped"`))
	b.DeliverLocal("/topic/b", []byte(`"kept"`))

	f := readFrame(t, conn)
	assert.Equal(t, "b", f.Header.Get(frame.Subscription))
	assert.Equal(t, `"kept"`, string(f.Body))
}

func TestApplicationRequestsReachHandler(t *testing.T) {
	b, ts := newTestBroker(t)
	journal := &recordingJournal{}
	b.SetJournal(journal)

	calls := make(chan appCall, 1)
	b.SetAppHandler(func(ctx context.Context, sessionID, destination string, body []byte) {
		calls <- appCall{sessionID, destination, string(body)}
		b.Deliver(ctx, "/queue/error_for_client/"+sessionID, []byte(`{"errorMessage":"nope"}`))
	})

	conn := dial(t, ts)
	identity := connect(t, conn)
	subscribe(t, conn, "error_message", "/queue/error_for_client/"+identity)

	writeFrame(t, conn, stomp.NewSendFrame("/app/select_annotation_from_client", []byte(`{"spanAddress":1}`)))

	select {
	case call := <-calls:
		assert.Equal(t, identity, call.sessionID)
		assert.Equal(t, "/app/select_annotation_from_client", call.destination)
		assert.Equal(t, `{"spanAddress":1}`, call.body)
	case <-time.After(2 * time.Second):
		t.Fatal("application handler not called")
	}

	f := readFrame(t, conn)
	assert.Equal(t, frame.MESSAGE, f.Command)
	assert.Equal(t, "error_message", f.Header.Get(frame.Subscription))
	assert.Equal(t, 1, journal.count())
}

func TestUnknownDestinationIsAnError(t *testing.T) {
	_, ts := newTestBroker(t)
	conn := dial(t, ts)
	connect(t, conn)

	writeFrame(t, conn, stomp.NewSendFrame("/elsewhere", []byte(`{}`)))
	f := readFrame(t, conn)
	assert.Equal(t, frame.ERROR, f.Command)
	assert.Equal(t, "/elsewhere", string(f.Body))
}

func TestDisconnectEndsSession(t *testing.T) {
	b, ts := newTestBroker(t)
	conn := dial(t, ts)
	connect(t, conn)

	writeFrame(t, conn, frame.New(frame.DISCONNECT, frame.Receipt, "bye"))
	f := readFrame(t, conn)
	assert.Equal(t, frame.RECEIPT, f.Command)

	deadline := time.Now().Add(2 * time.Second)
	for len(b.Sessions()) > 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	assert.Equal(t, 0, len(b.Sessions()))
}

func TestCleanupRemovesIdleSessions(t *testing.T) {
	settings := DefaultSettings()
	settings.IdleTimeout = 50 * time.Millisecond
	settings.CleanupInterval = 20 * time.Millisecond
	b := New(settings)
	b.Start()
	ts := httptest.NewServer(http.HandlerFunc(b.HandleConnection))
	defer ts.Close()
	defer b.Shutdown()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()
	connect(t, conn)

	deadline := time.Now().Add(2 * time.Second)
	for len(b.Sessions()) > 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	assert.Equal(t, 0, len(b.Sessions()))
}
