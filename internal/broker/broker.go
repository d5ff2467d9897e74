package broker

import (
	"context"
	"log"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"annosync/internal/models"
	"annosync/internal/protocol"
	"annosync/internal/stomp"

	"github.com/go-stomp/stomp/v3/frame"
	"github.com/google/uuid"
)

/*
LEARNING: STOMP BROKER EVENT LOOP

A single goroutine owns the session table and every write into a session's
Send channel:

  register   - a websocket was upgraded
  unregister - a session ended (read error, DISCONNECT, slow consumer, idle)
  route      - a message for /topic/... or /queue/... fans out to subscribers
  reply      - a frame addressed to one session (CONNECTED, RECEIPT, ERROR)

Because routing is serialized, subscribers of a destination see its messages
in the order they were published.
*/

// AppHandler receives SEND frames addressed to /app/... destinations.
// It may answer through Broker.Deliver.
type AppHandler func(ctx context.Context, sessionID, destination string, body []byte)

// Journal persists application requests
type Journal interface {
	StoreFrame(ctx context.Context, sessionID, destination string, body []byte) error
}

// Relay forwards topic messages to other broker instances
type Relay interface {
	Publish(ctx context.Context, destination string, body []byte) error
}

// Settings controls timeouts and buffering of the broker
type Settings struct {
	PingInterval    time.Duration
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	CleanupInterval time.Duration
	SendBufferSize  int
}

func DefaultSettings() *Settings {
	return &Settings{
		PingInterval:    54 * time.Second,
		ReadTimeout:     60 * time.Second,
		WriteTimeout:    10 * time.Second,
		IdleTimeout:     5 * time.Minute,
		CleanupInterval: 30 * time.Second,
		SendBufferSize:  256,
	}
}

type routedMessage struct {
	destination string
	body        []byte
}

type directMessage struct {
	session    *Session
	data       []byte
	closeAfter bool
}

// Broker is a small STOMP 1.2 broker over websocket
type Broker struct {
	settings *Settings
	app      AppHandler
	journal  Journal
	relay    Relay

	mu       sync.RWMutex
	sessions map[*Session]bool

	register   chan *Session
	unregister chan *Session
	route      chan *routedMessage
	reply      chan *directMessage

	started  atomic.Bool
	done     chan struct{}
	loopDone chan struct{}
	stopOnce sync.Once
}

func New(settings *Settings) *Broker {
	if settings == nil {
		settings = DefaultSettings()
	}
	return &Broker{
		settings:   settings,
		sessions:   make(map[*Session]bool),
		register:   make(chan *Session),
		unregister: make(chan *Session),
		route:      make(chan *routedMessage, 256),
		reply:      make(chan *directMessage, 256),
		done:       make(chan struct{}),
		loopDone:   make(chan struct{}),
	}
}

// SetAppHandler sets the receiver of /app/... requests
func (b *Broker) SetAppHandler(app AppHandler) {
	b.app = app
}

// SetJournal sets the store for /app/... requests
func (b *Broker) SetJournal(journal Journal) {
	b.journal = journal
}

// SetRelay sets where /topic/... messages are mirrored for other instances
func (b *Broker) SetRelay(relay Relay) {
	b.relay = relay
}

// Start begins the broker event loop
func (b *Broker) Start() {
	log.Println("🔄 Starting STOMP broker...")
	b.started.Store(true)

	go func() {
		defer close(b.loopDone)
		for {
			select {
			case <-b.done:
				return

			case session := <-b.register:
				b.handleRegister(session)

			case session := <-b.unregister:
				b.handleUnregister(session)

			case msg := <-b.route:
				b.handleRoute(msg)

			case msg := <-b.reply:
				b.handleReply(msg)
			}
		}
	}()

	go b.cleanupLoop()

	log.Println("✓ STOMP broker started")
}

func (b *Broker) handleRegister(session *Session) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.sessions[session] = true
	log.Printf("  Session %s opened from %s (total: %d)", session.ID, session.RemoteAddr, len(b.sessions))
}

func (b *Broker) handleUnregister(session *Session) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.sessions[session]; !ok {
		return
	}
	delete(b.sessions, session)
	close(session.Send)

	log.Printf("  Session %s closed (remaining: %d)", session.ID, len(b.sessions))
}

func (b *Broker) handleRoute(msg *routedMessage) {
	b.mu.RLock()
	sessions := make([]*Session, 0, len(b.sessions))
	for session := range b.sessions {
		sessions = append(sessions, session)
	}
	b.mu.RUnlock()

	delivered := 0
next:
	for _, session := range sessions {
		for _, id := range session.subscriptionsFor(msg.destination) {
			data, err := stomp.EncodeFrame(messageFrame(id, msg.destination, msg.body))
			if err != nil {
				log.Printf("Failed to encode MESSAGE for %s: %v", msg.destination, err)
				return
			}

			select {
			case session.Send <- data:
				delivered++
			default:
				// Buffer full - connection is slow/dead
				log.Printf("⚠️  Session %s buffer full, closing connection", session.ID)
				b.handleUnregister(session)
				continue next
			}
		}
	}

	if delivered == 0 {
		log.Printf("  No subscribers for %s", msg.destination)
	}
}

func (b *Broker) handleReply(msg *directMessage) {
	b.mu.RLock()
	_, live := b.sessions[msg.session]
	b.mu.RUnlock()
	if !live {
		return
	}

	if msg.data != nil {
		select {
		case msg.session.Send <- msg.data:
		default:
			log.Printf("⚠️  Session %s buffer full, closing connection", msg.session.ID)
			b.handleUnregister(msg.session)
			return
		}
	}
	if msg.closeAfter {
		b.handleUnregister(msg.session)
	}
}

func messageFrame(subscriptionID, destination string, body []byte) *frame.Frame {
	f := frame.New(frame.MESSAGE,
		frame.Subscription, subscriptionID,
		frame.MessageId, uuid.NewString(),
		frame.Destination, destination,
		frame.ContentType, stomp.ContentTypeJSON,
	)
	f.Body = body
	return f
}

// Deliver sends a message to every subscriber of a /topic/ or /queue/ destination.
// Topic messages are also handed to the relay when one is set.
func (b *Broker) Deliver(ctx context.Context, destination string, body []byte) {
	if b.relay != nil && strings.HasPrefix(destination, protocol.TopicPrefix) {
		if err := b.relay.Publish(ctx, destination, body); err != nil {
			log.Printf("⚠️  Failed to relay %s: %v", destination, err)
		}
	}
	b.DeliverLocal(destination, body)
}

// DeliverLocal sends a message to this instance's subscribers only
func (b *Broker) DeliverLocal(destination string, body []byte) {
	select {
	case b.route <- &routedMessage{destination: destination, body: body}:
	case <-b.done:
	}
}

func (b *Broker) send(session *Session, f *frame.Frame) {
	data, err := stomp.EncodeFrame(f)
	if err != nil {
		log.Printf("Failed to encode %s for session %s: %v", f.Command, session.ID, err)
		return
	}
	b.enqueueReply(&directMessage{session: session, data: data})
}

// sendAndClose queues a last frame (may be nil) and then ends the session
func (b *Broker) sendAndClose(session *Session, f *frame.Frame) {
	msg := &directMessage{session: session, closeAfter: true}
	if f != nil {
		data, err := stomp.EncodeFrame(f)
		if err != nil {
			log.Printf("Failed to encode %s for session %s: %v", f.Command, session.ID, err)
		} else {
			msg.data = data
		}
	}
	b.enqueueReply(msg)
}

func (b *Broker) enqueueReply(msg *directMessage) {
	select {
	case b.reply <- msg:
	case <-b.done:
	}
}

func (b *Broker) leave(session *Session) {
	select {
	case b.unregister <- session:
	case <-b.done:
	}
}

// Sessions returns a snapshot of every live session, oldest first
func (b *Broker) Sessions() []*models.BrokerSession {
	b.mu.RLock()
	defer b.mu.RUnlock()

	result := make([]*models.BrokerSession, 0, len(b.sessions))
	for session := range b.sessions {
		result = append(result, session.Info())
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].ConnectedAt.Before(result[j].ConnectedAt)
	})
	return result
}

// cleanupLoop periodically removes inactive sessions
func (b *Broker) cleanupLoop() {
	ticker := time.NewTicker(b.settings.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.done:
			return
		case <-ticker.C:
			b.cleanup()
		}
	}
}

// cleanup removes stale sessions. Unregistering happens outside the lock
// because the event loop takes it too.
func (b *Broker) cleanup() {
	now := time.Now()

	b.mu.RLock()
	var stale []*Session
	for session := range b.sessions {
		if now.Sub(session.lastActive()) > b.settings.IdleTimeout {
			stale = append(stale, session)
		}
	}
	b.mu.RUnlock()

	for _, session := range stale {
		log.Printf("  Cleaning up inactive session %s", session.ID)
		b.leave(session)
	}
}

// Shutdown stops the event loop and closes every connection
func (b *Broker) Shutdown() {
	b.stopOnce.Do(func() {
		log.Println("🛑 Shutting down STOMP broker...")

		close(b.done)
		if b.started.Load() {
			<-b.loopDone
		}

		b.mu.Lock()
		defer b.mu.Unlock()

		for session := range b.sessions {
			close(session.Send)
			session.Conn.Close()
		}
		b.sessions = make(map[*Session]bool)

		log.Println("✓ STOMP broker shutdown complete")
	})
}
