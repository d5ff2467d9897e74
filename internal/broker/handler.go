package broker

import (
	"context"
	"log"
	"net/http"

	"annosync/internal/middleware"
	"annosync/internal/models"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/attribute"
)

/*
LEARNING: WEBSOCKET UPGRADER

Clients negotiate the STOMP subprotocol names during the upgrade; the broker
accepts them but does not require one.
*/

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	Subprotocols:    []string{"v12.stomp", "v11.stomp", "v10.stomp"},
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// HandleConnection upgrades a request and runs a STOMP session on it
func (b *Broker) HandleConnection(w http.ResponseWriter, r *http.Request) {
	ctx, span := middleware.StartSpan(r.Context(), "Broker.Connect",
		attribute.String("remote.addr", r.RemoteAddr),
	)
	defer span.End()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("Failed to upgrade WebSocket: %v", err)
		middleware.AddSpanError(ctx, err)
		return
	}

	session := newSession(b, conn, models.NewBrokerSession(r.RemoteAddr))

	select {
	case b.register <- session:
	case <-b.done:
		conn.Close()
		return
	}

	// The request context ends when the handler returns; the session outlives it
	go session.WritePump()
	go session.ReadPump(context.Background())

	log.Printf("✓ WebSocket connection established (session: %s)", session.ID)
}
