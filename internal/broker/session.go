package broker

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"time"

	"annosync/internal/middleware"
	"annosync/internal/models"
	"annosync/internal/protocol"
	"annosync/internal/stomp"

	"github.com/go-stomp/stomp/v3/frame"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/attribute"
)

// Session is one websocket connection speaking STOMP to the broker
type Session struct {
	ID         string
	RemoteAddr string
	Conn       *websocket.Conn
	Send       chan []byte // Buffered channel for outbound frames
	broker     *Broker

	mu            sync.Mutex // protects the fields below
	connected     bool
	connectedAt   time.Time
	lastActiveAt  time.Time
	subscriptions map[string]string // subscription id -> destination
}

func newSession(b *Broker, conn *websocket.Conn, info *models.BrokerSession) *Session {
	return &Session{
		ID:            info.ID,
		RemoteAddr:    info.RemoteAddr,
		Conn:          conn,
		Send:          make(chan []byte, b.settings.SendBufferSize),
		broker:        b,
		connectedAt:   info.ConnectedAt,
		lastActiveAt:  info.LastActiveAt,
		subscriptions: make(map[string]string),
	}
}

// Info returns a snapshot of the session
func (s *Session) Info() *models.BrokerSession {
	s.mu.Lock()
	defer s.mu.Unlock()

	subs := make(map[string]string, len(s.subscriptions))
	for id, destination := range s.subscriptions {
		subs[id] = destination
	}
	return &models.BrokerSession{
		ID:            s.ID,
		RemoteAddr:    s.RemoteAddr,
		Connected:     s.connected,
		ConnectedAt:   s.connectedAt,
		LastActiveAt:  s.lastActiveAt,
		Subscriptions: subs,
	}
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastActiveAt = time.Now()
	s.mu.Unlock()
}

func (s *Session) lastActive() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActiveAt
}

// subscriptionsFor returns the ids subscribed to a destination
func (s *Session) subscriptionsFor(destination string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ids []string
	for id, dest := range s.subscriptions {
		if dest == destination {
			ids = append(ids, id)
		}
	}
	return ids
}

// ReadPump reads frames from the websocket connection
// Learning: Each session has its own goroutine reading from the WebSocket
func (s *Session) ReadPump(ctx context.Context) {
	defer func() {
		s.broker.leave(s)
		s.Conn.Close()
	}()

	settings := s.broker.settings
	s.Conn.SetReadDeadline(time.Now().Add(settings.ReadTimeout))
	s.Conn.SetPongHandler(func(string) error {
		s.Conn.SetReadDeadline(time.Now().Add(settings.ReadTimeout))
		s.touch()
		return nil
	})
	s.Conn.SetPingHandler(func(data string) error {
		s.Conn.SetReadDeadline(time.Now().Add(settings.ReadTimeout))
		s.touch()
		return s.Conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(settings.WriteTimeout))
	})

	for {
		_, message, err := s.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			return
		}

		s.Conn.SetReadDeadline(time.Now().Add(settings.ReadTimeout))
		s.touch()

		f, err := stomp.DecodeFrame(message)
		if errors.Is(err, stomp.ErrHeartbeat) {
			continue
		}
		if err != nil {
			s.broker.send(s, stomp.NewErrorFrame("malformed frame", err.Error()))
			continue
		}

		msgCtx, span := middleware.StartSpan(ctx, "Broker.ProcessFrame",
			attribute.String("session.id", s.ID),
			attribute.String("stomp.command", f.Command),
			attribute.Int("message.size", len(f.Body)),
		)
		s.handleFrame(msgCtx, f)
		span.End()
	}
}

func (s *Session) handleFrame(ctx context.Context, f *frame.Frame) {
	if f.Command != frame.CONNECT && f.Command != frame.STOMP && !s.isConnected() {
		s.broker.send(s, stomp.NewErrorFrame("not connected", "send CONNECT first"))
		return
	}

	switch f.Command {
	case frame.CONNECT, frame.STOMP:
		s.handleConnect(f)

	case frame.SUBSCRIBE:
		id, destination := f.Header.Get(frame.Id), f.Header.Get(frame.Destination)
		if id == "" || destination == "" {
			s.broker.send(s, stomp.NewErrorFrame("invalid subscription", "id and destination are required"))
			return
		}
		s.mu.Lock()
		s.subscriptions[id] = destination
		s.mu.Unlock()

	case frame.UNSUBSCRIBE:
		s.mu.Lock()
		delete(s.subscriptions, f.Header.Get(frame.Id))
		s.mu.Unlock()

	case frame.SEND:
		s.handleSend(ctx, f)

	case frame.DISCONNECT:
		// The receipt is flushed before the write pump closes the socket
		var receipt *frame.Frame
		if id := f.Header.Get(frame.Receipt); id != "" {
			receipt = frame.New(frame.RECEIPT, frame.ReceiptId, id)
		}
		s.broker.sendAndClose(s, receipt)
		return

	default:
		s.broker.send(s, stomp.NewErrorFrame("unsupported command", f.Command))
		return
	}

	s.sendReceipt(f)
}

func (s *Session) isConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

func (s *Session) handleConnect(f *frame.Frame) {
	s.mu.Lock()
	already := s.connected
	s.connected = true
	s.mu.Unlock()

	if already {
		s.broker.send(s, stomp.NewErrorFrame("already connected", s.ID))
		return
	}

	// Learning: the client identity travels in the named user-name header
	s.broker.send(s, frame.New(frame.CONNECTED,
		frame.Version, stomp.ProtocolVersion,
		frame.Server, "annobroker",
		frame.HeartBeat, "0,0",
		stomp.HeaderUserName, s.ID,
	))
	log.Printf("  Session %s connected", s.ID)
}

func (s *Session) handleSend(ctx context.Context, f *frame.Frame) {
	destination := f.Header.Get(frame.Destination)
	broker := s.broker

	switch {
	case strings.HasPrefix(destination, protocol.ApplicationPrefix):
		middleware.AddSpanEvent(ctx, "app.request", attribute.String("stomp.destination", destination))
		if broker.journal != nil {
			if err := broker.journal.StoreFrame(ctx, s.ID, destination, f.Body); err != nil {
				log.Printf("Failed to journal frame: %v", err)
				middleware.AddSpanError(ctx, err)
			}
		}
		if broker.app != nil {
			broker.app(ctx, s.ID, destination, f.Body)
		}

	case strings.HasPrefix(destination, protocol.TopicPrefix),
		strings.HasPrefix(destination, protocol.QueuePrefix):
		broker.Deliver(ctx, destination, f.Body)

	default:
		broker.send(s, stomp.NewErrorFrame("unknown destination", destination))
	}
}

func (s *Session) sendReceipt(f *frame.Frame) {
	if receipt := f.Header.Get(frame.Receipt); receipt != "" {
		s.broker.send(s, frame.New(frame.RECEIPT, frame.ReceiptId, receipt))
	}
}

// WritePump writes frames to the WebSocket connection, one frame per text message
func (s *Session) WritePump() {
	settings := s.broker.settings
	ticker := time.NewTicker(settings.PingInterval)
	defer func() {
		ticker.Stop()
		s.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-s.Send:
			s.Conn.SetWriteDeadline(time.Now().Add(settings.WriteTimeout))
			if !ok {
				// Channel closed
				s.Conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := s.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			s.Conn.SetWriteDeadline(time.Now().Add(settings.WriteTimeout))
			if err := s.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
