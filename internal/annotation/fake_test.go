package annotation

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"testing"

	"annosync/internal/protocol"
)

type published struct {
	destination string
	body        []byte
}

// fakeConn is an in-memory Connector. Tests push messages with deliver,
// which runs the subscribed handler on the calling goroutine.
type fakeConn struct {
	identity   string
	connectErr error

	mu           sync.Mutex
	connected    bool
	handlers     map[string]func([]byte)
	ids          map[string]string
	published    []published
	subscribes   int
	unsubscribes int
	disconnects  int
}

func newFakeConn(identity string) *fakeConn {
	return &fakeConn{
		identity: identity,
		handlers: make(map[string]func([]byte)),
		ids:      make(map[string]string),
	}
}

func (f *fakeConn) Connect(ctx context.Context) (string, error) {
	if f.connectErr != nil {
		return "", f.connectErr
	}
	f.mu.Lock()
	f.connected = true
	f.mu.Unlock()
	return f.identity, nil
}

func (f *fakeConn) Disconnect() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
	f.handlers = make(map[string]func([]byte))
	f.ids = make(map[string]string)
	f.disconnects++
	return nil
}

func (f *fakeConn) Publish(destination string, body []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, published{destination, body})
	return nil
}

func (f *fakeConn) Subscribe(channel, id string, handler func(body []byte)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.handlers[channel]; ok {
		return errDuplicate
	}
	f.handlers[channel] = handler
	f.ids[channel] = id
	f.subscribes++
	return nil
}

func (f *fakeConn) Unsubscribe(channel string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.handlers[channel]; ok {
		delete(f.handlers, channel)
		delete(f.ids, channel)
		f.unsubscribes++
	}
	return nil
}

func (f *fakeConn) deliver(t *testing.T, channel string, message any) {
	t.Helper()
	body, err := json.Marshal(message)
	if err != nil {
		t.Fatal(err)
	}
	f.deliverRaw(t, channel, body)
}

func (f *fakeConn) deliverRaw(t *testing.T, channel string, body []byte) {
	t.Helper()
	f.mu.Lock()
	handler, ok := f.handlers[channel]
	f.mu.Unlock()
	if !ok {
		t.Fatalf("no subscription on %s", channel)
	}
	handler(body)
}

func (f *fakeConn) channels() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	channels := make([]string, 0, len(f.handlers))
	for channel := range f.handlers {
		channels = append(channels, channel)
	}
	sort.Strings(channels)
	return channels
}

func (f *fakeConn) lastPublished(t *testing.T) published {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.published) == 0 {
		t.Fatal("nothing published")
	}
	return f.published[len(f.published)-1]
}

type errString string

func (e errString) Error() string { return string(e) }

const errDuplicate = errString("already subscribed")

// lineChannels lists the per-line topics the fake currently holds, sorted
func (f *fakeConn) lineChannels() []string {
	var lines []string
	for _, channel := range f.channels() {
		if protocol.IsLineUpdateChannel(channel) {
			lines = append(lines, channel)
		}
	}
	return lines
}

// drop loses every subscription the way a dead socket does, without a Disconnect call
func (f *fakeConn) drop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
	f.handlers = make(map[string]func([]byte))
	f.ids = make(map[string]string)
}
