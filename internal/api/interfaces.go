package api

import (
	"context"
	"net/http"

	"annosync/internal/models"
)

/*
LEARNING: CONSUMER-DRIVEN INTERFACES (Go Idiom)

This package is the CONSUMER of the broker and the journal, so the interfaces
live HERE and list only the methods the handlers call. The broker and the
journal repository satisfy them without importing this package.
*/

// BrokerService is what handlers need from the STOMP broker
type BrokerService interface {
	HandleConnection(w http.ResponseWriter, r *http.Request)
	Sessions() []*models.BrokerSession
}

// FrameStore is what handlers need from the frame journal
type FrameStore interface {
	ListFrames(ctx context.Context, destination string, limit int) ([]*models.FrameRecord, error)
	LatestFrame(ctx context.Context, destination string) (*models.FrameRecord, error)
}
