package stomp

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/go-stomp/stomp/v3/frame"
)

// Headers not covered by the frame package constants
const (
	HeaderUserName  = "user-name"
	ContentTypeJSON = "application/json"
	ProtocolVersion = "1.2"
)

// ErrHeartbeat is returned when a websocket message carries only a heart-beat
var ErrHeartbeat = errors.New("heart-beat")

// EncodeFrame serializes a frame for a single websocket message
func EncodeFrame(f *frame.Frame) ([]byte, error) {
	var buf bytes.Buffer
	if err := frame.NewWriter(&buf).Write(f); err != nil {
		return nil, fmt.Errorf("failed to encode %s frame: %w", f.Command, err)
	}
	return buf.Bytes(), nil
}

// DecodeFrame parses one frame from a websocket message
func DecodeFrame(data []byte) (*frame.Frame, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, ErrHeartbeat
	}

	f, err := frame.NewReader(bytes.NewReader(data)).Read()
	if err != nil {
		return nil, fmt.Errorf("failed to decode frame: %w", err)
	}
	if f == nil {
		return nil, ErrHeartbeat
	}
	return f, nil
}

// NewSendFrame builds a SEND frame with a JSON body
func NewSendFrame(destination string, body []byte) *frame.Frame {
	f := frame.New(frame.SEND,
		frame.Destination, destination,
		frame.ContentType, ContentTypeJSON,
	)
	f.Body = body
	return f
}

// NewErrorFrame builds an ERROR frame with a short message and a detail body
func NewErrorFrame(message, detail string) *frame.Frame {
	f := frame.New(frame.ERROR, frame.Message, message)
	f.Body = []byte(detail)
	return f
}
