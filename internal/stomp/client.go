package stomp

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"sync"
	"time"

	"annosync/internal/middleware"

	"github.com/go-stomp/stomp/v3/frame"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/attribute"
)

/*
LEARNING: STOMP OVER WEBSOCKET

The annotation server speaks STOMP 1.2, one frame per websocket text message.

  client                          broker
    | -- CONNECT --------------------> |
    | <------------ CONNECTED -------- |  user-name:<client identity>
    | -- SUBSCRIBE (id, destination) > |
    | -- SEND (destination, json) ---> |
    | <----- MESSAGE (subscription) -- |

Goroutines per connection:
1. readPump: decodes frames and queues MESSAGE frames in arrival order
2. dispatch: runs subscription handlers one at a time (single consumer)
3. writePump: the only writer on the socket, plus keep-alive pings
*/

var (
	ErrNotReady              = errors.New("transport not ready: client identity not established")
	ErrNoIdentity            = errors.New("handshake did not carry a client identity")
	ErrAlreadyConnected      = errors.New("transport already connected")
	ErrAlreadySubscribed     = errors.New("channel already subscribed")
	ErrDuplicateSubscription = errors.New("subscription id already in use")
)

// Handler receives the body of each message delivered on a subscription
type Handler func(body []byte)

// ErrorHandler receives transport-level errors: broker ERROR frames,
// undecodable frames and connection failures
type ErrorHandler func(message, detail string)

// Settings controls timeouts and buffering of a Client
type Settings struct {
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	PingInterval     time.Duration
	SendBufferSize   int
	InboundQueueSize int
}

func DefaultSettings() *Settings {
	return &Settings{
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     10 * time.Second,
		PingInterval:     30 * time.Second,
		SendBufferSize:   256,
		InboundQueueSize: 256,
	}
}

type subscription struct {
	id      string
	channel string
	handler Handler
}

// Client is one STOMP session over a websocket connection
type Client struct {
	url      string
	settings *Settings
	onError  ErrorHandler

	mu       sync.Mutex // protects the fields below
	state    State
	identity string
	conn     *websocket.Conn
	send     chan []byte
	inbound  chan *frame.Frame
	done     chan struct{}
	stopOnce *sync.Once
	channels map[string]*subscription // channel -> subscription
	ids      map[string]*subscription // subscription id -> subscription

	pumps sync.WaitGroup
}

// NewClient creates a disconnected client for a ws:// or wss:// endpoint
func NewClient(endpoint string, settings *Settings, onError ErrorHandler) *Client {
	if settings == nil {
		settings = DefaultSettings()
	}
	return &Client{
		url:      endpoint,
		settings: settings,
		onError:  onError,
		state:    StateDisconnected,
	}
}

// State reports where the client is in its connection lifecycle
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Identity returns the server-assigned client identity, empty until identified
func (c *Client) Identity() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.identity
}

// Connect dials the endpoint and performs the STOMP handshake.
// It returns the client identity announced in the CONNECTED frame.
func (c *Client) Connect(ctx context.Context) (string, error) {
	c.mu.Lock()
	if c.state != StateDisconnected {
		c.mu.Unlock()
		return "", ErrAlreadyConnected
	}
	c.state = StateConnecting
	c.mu.Unlock()

	ctx, span := middleware.StartSpan(ctx, "STOMP.Connect", attribute.String("stomp.url", c.url))
	defer span.End()

	conn, identity, err := c.handshake(ctx)
	if err != nil {
		c.setState(StateDisconnected)
		middleware.AddSpanError(ctx, err)
		return "", err
	}

	c.mu.Lock()
	c.conn = conn
	c.identity = identity
	c.state = StateConnectedIdentified
	c.send = make(chan []byte, c.settings.SendBufferSize)
	c.inbound = make(chan *frame.Frame, c.settings.InboundQueueSize)
	c.done = make(chan struct{})
	c.stopOnce = &sync.Once{}
	c.channels = make(map[string]*subscription)
	c.ids = make(map[string]*subscription)
	send, inbound, done := c.send, c.inbound, c.done
	c.mu.Unlock()

	c.pumps.Add(2)
	go c.writePump(conn, send, done)
	go c.readPump(conn, inbound, done)
	go c.dispatch(ctx, inbound, done)

	log.Printf("✓ STOMP session established with %s (client: %s)", c.url, identity)
	return identity, nil
}

func (c *Client) handshake(ctx context.Context) (*websocket.Conn, string, error) {
	dialer := websocket.Dialer{HandshakeTimeout: c.settings.HandshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to dial %s: %w", c.url, err)
	}
	c.setState(StateConnectedUnidentified)

	success := false
	defer func() {
		if !success {
			conn.Close()
		}
	}()

	host := "localhost"
	if u, err := url.Parse(c.url); err == nil && u.Hostname() != "" {
		host = u.Hostname()
	}
	connect, err := EncodeFrame(frame.New(frame.CONNECT,
		frame.AcceptVersion, ProtocolVersion,
		frame.Host, host,
		frame.HeartBeat, "0,0",
	))
	if err != nil {
		return nil, "", err
	}

	deadline := time.Now().Add(c.settings.HandshakeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	conn.SetWriteDeadline(deadline)
	if err := conn.WriteMessage(websocket.TextMessage, connect); err != nil {
		return nil, "", fmt.Errorf("failed to send CONNECT: %w", err)
	}

	conn.SetReadDeadline(deadline)
	_, message, err := conn.ReadMessage()
	if err != nil {
		return nil, "", fmt.Errorf("failed to read CONNECTED: %w", err)
	}
	f, err := DecodeFrame(message)
	if err != nil {
		return nil, "", err
	}

	switch f.Command {
	case frame.CONNECTED:
	case frame.ERROR:
		return nil, "", fmt.Errorf("broker rejected connection: %s", f.Header.Get(frame.Message))
	default:
		return nil, "", fmt.Errorf("unexpected %s frame during handshake", f.Command)
	}

	// Learning: the identity is a named header, never "whatever header comes first"
	identity := f.Header.Get(HeaderUserName)
	if identity == "" {
		return nil, "", ErrNoIdentity
	}

	conn.SetReadDeadline(time.Time{})
	conn.SetWriteDeadline(time.Time{})
	success = true
	return conn, identity, nil
}

// Publish sends a JSON body to a destination. No acknowledgement is awaited.
func (c *Client) Publish(destination string, body []byte) error {
	data, err := EncodeFrame(NewSendFrame(destination, body))
	if err != nil {
		return err
	}
	return c.enqueue(data)
}

// Subscribe registers a handler for a channel under a unique subscription id
func (c *Client) Subscribe(channel, id string, handler func(body []byte)) error {
	c.mu.Lock()
	if c.state != StateConnectedIdentified {
		c.mu.Unlock()
		return ErrNotReady
	}
	if _, ok := c.channels[channel]; ok {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrAlreadySubscribed, channel)
	}
	if _, ok := c.ids[id]; ok {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrDuplicateSubscription, id)
	}
	sub := &subscription{id: id, channel: channel, handler: handler}
	c.channels[channel] = sub
	c.ids[id] = sub
	c.mu.Unlock()

	data, err := EncodeFrame(frame.New(frame.SUBSCRIBE,
		frame.Id, id,
		frame.Destination, channel,
		frame.Ack, "auto",
	))
	if err != nil {
		return err
	}
	return c.enqueue(data)
}

// Unsubscribe stops delivery on a channel. Unknown channels are ignored.
func (c *Client) Unsubscribe(channel string) error {
	c.mu.Lock()
	sub, ok := c.channels[channel]
	if !ok {
		c.mu.Unlock()
		return nil
	}
	delete(c.channels, channel)
	delete(c.ids, sub.id)
	c.mu.Unlock()

	data, err := EncodeFrame(frame.New(frame.UNSUBSCRIBE, frame.Id, sub.id))
	if err != nil {
		return err
	}
	return c.enqueue(data)
}

// Subscriptions returns the live channels
func (c *Client) Subscriptions() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	channels := make([]string, 0, len(c.channels))
	for channel := range c.channels {
		channels = append(channels, channel)
	}
	return channels
}

// Disconnect sends DISCONNECT and closes the socket. Every subscription is dropped.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	if c.state == StateDisconnected {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	c.stop()
	c.pumps.Wait()
	return nil
}

func (c *Client) enqueue(data []byte) error {
	c.mu.Lock()
	if c.state != StateConnectedIdentified {
		c.mu.Unlock()
		return ErrNotReady
	}
	send, done := c.send, c.done
	c.mu.Unlock()

	select {
	case send <- data:
		return nil
	case <-done:
		return ErrNotReady
	}
}

// stop tears the session down once, from whichever goroutine notices first
func (c *Client) stop() {
	c.mu.Lock()
	once, done := c.stopOnce, c.done
	c.mu.Unlock()
	if once == nil {
		return
	}

	once.Do(func() {
		c.mu.Lock()
		c.state = StateDisconnected
		c.identity = ""
		c.channels = make(map[string]*subscription)
		c.ids = make(map[string]*subscription)
		c.mu.Unlock()
		close(done)
	})
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *Client) reportError(message, detail string) {
	log.Printf("⚠️  STOMP error: %s: %s", message, detail)
	if c.onError != nil {
		c.onError(message, detail)
	}
}

func (c *Client) handlerFor(f *frame.Frame) Handler {
	c.mu.Lock()
	defer c.mu.Unlock()

	if id := f.Header.Get(frame.Subscription); id != "" {
		if sub, ok := c.ids[id]; ok {
			return sub.handler
		}
	}
	if sub, ok := c.channels[f.Header.Get(frame.Destination)]; ok {
		return sub.handler
	}
	return nil
}

// readPump reads frames from the websocket until the connection ends
func (c *Client) readPump(conn *websocket.Conn, inbound chan<- *frame.Frame, done <-chan struct{}) {
	defer c.pumps.Done()
	defer c.stop()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-done:
			default:
				c.reportError("connection lost", err.Error())
			}
			return
		}

		f, err := DecodeFrame(message)
		if errors.Is(err, ErrHeartbeat) {
			continue
		}
		if err != nil {
			c.reportError("undecodable frame", err.Error())
			continue
		}

		switch f.Command {
		case frame.MESSAGE:
			select {
			case inbound <- f:
			case <-done:
				return
			}
		case frame.ERROR:
			c.reportError(f.Header.Get(frame.Message), string(f.Body))
		case frame.RECEIPT:
		default:
			log.Printf("STOMP: ignoring %s frame", f.Command)
		}
	}
}

// dispatch runs handlers one message at a time, in arrival order
func (c *Client) dispatch(ctx context.Context, inbound <-chan *frame.Frame, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case f := <-inbound:
			handler := c.handlerFor(f)
			if handler == nil {
				log.Printf("STOMP: dropping message for %s (not subscribed)", f.Header.Get(frame.Destination))
				continue
			}

			_, span := middleware.StartSpan(ctx, "STOMP.Deliver",
				attribute.String("stomp.destination", f.Header.Get(frame.Destination)),
				attribute.Int("message.size", len(f.Body)),
			)
			handler(f.Body)
			span.End()
		}
	}
}

// writePump is the only goroutine writing to the websocket
func (c *Client) writePump(conn *websocket.Conn, send <-chan []byte, done <-chan struct{}) {
	ticker := time.NewTicker(c.settings.PingInterval)
	defer func() {
		ticker.Stop()
		conn.Close()
		c.pumps.Done()
	}()

	for {
		select {
		case message := <-send:
			conn.SetWriteDeadline(time.Now().Add(c.settings.WriteTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.reportError("write failed", err.Error())
				c.stop()
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(c.settings.WriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.stop()
				return
			}

		case <-done:
			// Flush what is already queued, then say goodbye
			for {
				select {
				case message := <-send:
					conn.SetWriteDeadline(time.Now().Add(c.settings.WriteTimeout))
					if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
						return
					}
					continue
				default:
				}
				break
			}
			if data, err := EncodeFrame(frame.New(frame.DISCONNECT)); err == nil {
				conn.SetWriteDeadline(time.Now().Add(c.settings.WriteTimeout))
				conn.WriteMessage(websocket.TextMessage, data)
			}
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
