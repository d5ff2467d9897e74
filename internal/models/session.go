package models

import (
	"time"

	"github.com/segmentio/ksuid"
)

// BrokerSession describes one STOMP client connected to the broker.
// The ID doubles as the client identity announced in CONNECTED.
type BrokerSession struct {
	ID            string            `json:"id"`
	RemoteAddr    string            `json:"remote_addr"`
	Connected     bool              `json:"connected"`
	ConnectedAt   time.Time         `json:"connected_at"`
	LastActiveAt  time.Time         `json:"last_active_at"`
	Subscriptions map[string]string `json:"subscriptions"` // subscription id -> destination
}

func NewBrokerSession(remoteAddr string) *BrokerSession {
	now := time.Now()
	return &BrokerSession{
		ID:            ksuid.New().String(),
		RemoteAddr:    remoteAddr,
		ConnectedAt:   now,
		LastActiveAt:  now,
		Subscriptions: make(map[string]string),
	}
}
