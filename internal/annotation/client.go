package annotation

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
)

// ErrNotReady is returned by requests issued before the handshake established an identity
var ErrNotReady = errors.New("client not ready: no client identity")

// Transport is what the engine needs from a messaging session.
// Learning: the interface lives with its consumer; stomp.Client satisfies it.
type Transport interface {
	Publish(destination string, body []byte) error
	Subscribe(channel, id string, handler func(body []byte)) error
	Unsubscribe(channel string) error
}

// Connector is a Transport that owns its connection lifecycle
type Connector interface {
	Transport
	Connect(ctx context.Context) (string, error)
	Disconnect() error
}

// Session is the identity triple a client works under
type Session struct {
	ClientIdentity string
	UserName       string
	ProjectID      int64
	DocumentID     int64
}

// ChangeKind tells an observer which part of the mirror a response touched
type ChangeKind string

const (
	ChangeDocument  ChangeKind = "document"
	ChangeViewport  ChangeKind = "viewport"
	ChangeSelection ChangeKind = "selection"
	ChangeSpans     ChangeKind = "spans"
	ChangeRelations ChangeKind = "relations"
)

// Options configures a Client
type Options struct {
	UserName           string
	ProjectID          int64
	DocumentID         int64
	ViewportType       string
	RecommenderEnabled bool

	// OnChange runs after a response has been applied to the mirror
	OnChange func(kind ChangeKind)
	// OnError receives server errors (*protocol.ServerError) and undecodable responses
	OnError func(err error)
}

// Client keeps a Mirror in sync with the annotation server over a Connector
type Client struct {
	conn     Connector
	opts     Options
	mirror   *Mirror
	topology *Topology

	mu      sync.RWMutex
	session *Session
}

// NewClient wires a mirror and topology to a connector. Nothing is sent until Connect.
func NewClient(conn Connector, opts Options) *Client {
	return &Client{
		conn:     conn,
		opts:     opts,
		mirror:   NewMirror(),
		topology: NewTopology(conn),
	}
}

// Connect performs the handshake and subscribes the per-client queues
func (c *Client) Connect(ctx context.Context) error {
	identity, err := c.conn.Connect(ctx)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	if identity == "" {
		c.conn.Disconnect()
		return ErrNotReady
	}

	// Learning: a fresh transport session holds no subscriptions, so whatever
	// the topology remembers from a dropped connection is stale
	c.topology.Reset()

	c.mu.Lock()
	c.session = &Session{
		ClientIdentity: identity,
		UserName:       c.opts.UserName,
		ProjectID:      c.opts.ProjectID,
		DocumentID:     c.opts.DocumentID,
	}
	c.mu.Unlock()

	if err := c.topology.SubscribeFixed(c.fixedRoutes(identity)); err != nil {
		return err
	}

	log.Printf("✓ Annotation client %s ready (user: %s)", identity, c.opts.UserName)
	return nil
}

// Disconnect closes the transport. The mirror keeps its last state.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	c.session = nil
	c.mu.Unlock()

	err := c.conn.Disconnect()
	c.topology.Reset()
	return err
}

// Session returns the current session, false before Connect
func (c *Client) Session() (Session, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.session == nil {
		return Session{}, false
	}
	return *c.session, true
}

// State returns a copy of the mirror
func (c *Client) State() State {
	return c.mirror.Snapshot()
}

// LiveLines returns the line indices with a live update subscription
func (c *Client) LiveLines() []int {
	return c.topology.LiveLines()
}

func (c *Client) setDocument(projectID, documentID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session != nil {
		c.session.ProjectID = projectID
		c.session.DocumentID = documentID
	}
}

func (c *Client) notify(kind ChangeKind) {
	if c.opts.OnChange != nil {
		c.opts.OnChange(kind)
	}
}

func (c *Client) fail(err error) {
	log.Printf("⚠️  %v", err)
	if c.opts.OnError != nil {
		c.opts.OnError(err)
	}
}
