package annotation

import (
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"

	"annosync/internal/protocol"
)

/*
LEARNING: SUBSCRIPTION TOPOLOGY

A client listens on two kinds of channels:

1. Five fixed queues addressed to its identity (document, viewport, selections,
   errors). They are subscribed once after the handshake.
2. One topic per visible line: /topic/update_for_clients/{project}/{document}/{line}.
   Edits other clients make on a visible line are pushed there.

When the viewport changes, Reconcile diffs the old and new line sets:
lines that scrolled away are unsubscribed, newly visible lines are subscribed,
lines visible in both are left alone. Switching document drops every line.
*/

// Route binds a channel to the handler for its messages
type Route struct {
	Channel        string
	SubscriptionID string
	Handler        func(body []byte)
}

// Topology tracks which channels are live on a transport
type Topology struct {
	transport Transport

	mu         sync.Mutex // protects the fields below
	fixed      []string
	lines      map[int]string // line index -> channel
	projectID  int64
	documentID int64
}

func NewTopology(transport Transport) *Topology {
	return &Topology{
		transport: transport,
		lines:     make(map[int]string),
	}
}

// SubscribeFixed subscribes the per-client queues
func (t *Topology) SubscribeFixed(routes []Route) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, route := range routes {
		if err := t.transport.Subscribe(route.Channel, route.SubscriptionID, route.Handler); err != nil {
			return fmt.Errorf("failed to subscribe %s: %w", route.Channel, err)
		}
		t.fixed = append(t.fixed, route.Channel)
	}
	return nil
}

// Reconcile makes the live line topics match the viewport of a document
func (t *Topology) Reconcile(projectID, documentID int64, viewport protocol.Viewport, handler func(line int, body []byte)) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	var errs []error

	if projectID != t.projectID || documentID != t.documentID {
		for line, channel := range t.lines {
			if err := t.transport.Unsubscribe(channel); err != nil {
				errs = append(errs, fmt.Errorf("failed to unsubscribe %s: %w", channel, err))
			}
			delete(t.lines, line)
		}
		t.projectID, t.documentID = projectID, documentID
	}

	wanted := make(map[int]bool, viewport.LineCount())
	for _, line := range viewport.Lines() {
		wanted[line] = true
	}

	removed := 0
	for line, channel := range t.lines {
		if wanted[line] {
			continue
		}
		if err := t.transport.Unsubscribe(channel); err != nil {
			errs = append(errs, fmt.Errorf("failed to unsubscribe %s: %w", channel, err))
		}
		delete(t.lines, line)
		removed++
	}

	added := 0
	for _, line := range viewport.Lines() {
		if _, live := t.lines[line]; live {
			continue
		}
		channel := protocol.LineUpdateChannel(projectID, documentID, line)
		line := line
		err := t.transport.Subscribe(channel, protocol.LineSubscriptionID(line), func(body []byte) {
			handler(line, body)
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to subscribe %s: %w", channel, err))
			continue
		}
		t.lines[line] = channel
		added++
	}

	log.Printf("Topology for document %d/%d: +%d -%d lines (live: %d)",
		projectID, documentID, added, removed, len(t.lines))
	return errors.Join(errs...)
}

// LiveLines returns the subscribed line indices in ascending order
func (t *Topology) LiveLines() []int {
	t.mu.Lock()
	defer t.mu.Unlock()

	lines := make([]int, 0, len(t.lines))
	for line := range t.lines {
		lines = append(lines, line)
	}
	sort.Ints(lines)
	return lines
}

// FixedChannels returns the per-client queues subscribed at handshake
func (t *Topology) FixedChannels() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.fixed...)
}

// Reset forgets every live channel without talking to the transport.
// Used once the transport has dropped its subscriptions itself.
func (t *Topology) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.fixed = nil
	t.lines = make(map[int]string)
	t.projectID, t.documentID = 0, 0
}
