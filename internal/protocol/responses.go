package protocol

import (
	"encoding/json"
	"fmt"
)

// NewDocumentResponse carries the full view of a freshly opened document
type NewDocumentResponse struct {
	DocumentID   int64      `json:"documentId"`
	ViewportText []string   `json:"viewportText"`
	Spans        []Span     `json:"spans"`
	Relations    []Relation `json:"relations"`
	Viewport     Viewport   `json:"viewport,omitempty"`
}

// NewViewportResponse carries the full view of a new viewport
type NewViewportResponse struct {
	ViewportText []string   `json:"viewportText"`
	Spans        []Span     `json:"spans"`
	Relations    []Relation `json:"relations"`
	Viewport     Viewport   `json:"viewport,omitempty"`
}

type SelectSpanResponse struct {
	SpanAddress Address `json:"spanAddress"`
	Type        string  `json:"type"`
	Feature     string  `json:"feature,omitempty"`
}

type SelectRelationResponse struct {
	RelationAddress Address `json:"relationAddress"`
	GovernorID      Address `json:"governorId"`
	DependentID     Address `json:"dependentId"`
	Type            string  `json:"type"`
	Flavor          string  `json:"flavor,omitempty"`
}

// UpdateType discriminates the payloads sent on per-line update topics
type UpdateType string

const (
	UpdateSpanCreated     UpdateType = "span_created"
	UpdateSpanUpdated     UpdateType = "span_updated"
	UpdateSpanDeleted     UpdateType = "span_deleted"
	UpdateRelationCreated UpdateType = "relation_created"
	UpdateRelationUpdated UpdateType = "relation_updated"
	UpdateRelationDeleted UpdateType = "relation_deleted"
)

type CreateSpanResponse struct {
	UpdateType  UpdateType `json:"updateType,omitempty"`
	SpanAddress Address    `json:"spanAddress"`
	CoveredText string     `json:"coveredText,omitempty"`
	Begin       int        `json:"begin"`
	End         int        `json:"end"`
	Type        string     `json:"type"`
	Feature     string     `json:"feature,omitempty"`
	Color       string     `json:"color,omitempty"`
}

// Span converts the response into the span it announces
func (r *CreateSpanResponse) Span() Span {
	return Span{
		ID:          r.SpanAddress,
		CoveredText: r.CoveredText,
		Begin:       Offset(r.Begin),
		End:         Offset(r.End),
		Type:        r.Type,
		Feature:     r.Feature,
		Color:       r.Color,
	}
}

// UpdateSpanResponse is a partial span; absent fields are left unchanged
type UpdateSpanResponse struct {
	UpdateType  UpdateType `json:"updateType,omitempty"`
	SpanAddress Address    `json:"spanAddress"`
	Type        string     `json:"type,omitempty"`
	Feature     *string    `json:"feature,omitempty"`
	CoveredText *string    `json:"coveredText,omitempty"`
	Begin       *int       `json:"begin,omitempty"`
	End         *int       `json:"end,omitempty"`
	Color       *string    `json:"color,omitempty"`
}

type DeleteSpanResponse struct {
	UpdateType  UpdateType `json:"updateType,omitempty"`
	SpanAddress Address    `json:"spanAddress"`
}

type CreateRelationResponse struct {
	UpdateType      UpdateType `json:"updateType,omitempty"`
	RelationAddress Address    `json:"relationAddress"`
	GovernorID      Address    `json:"governorId"`
	DependentID     Address    `json:"dependentId"`
	Type            string     `json:"type"`
	Flavor          string     `json:"flavor,omitempty"`
}

// Relation converts the response into the relation it announces
func (r *CreateRelationResponse) Relation() Relation {
	return Relation{
		ID:          r.RelationAddress,
		GovernorID:  r.GovernorID,
		DependentID: r.DependentID,
		Type:        r.Type,
		Flavor:      r.Flavor,
	}
}

type UpdateRelationResponse struct {
	UpdateType      UpdateType `json:"updateType,omitempty"`
	RelationAddress Address    `json:"relationAddress"`
	Type            string     `json:"type,omitempty"`
	Flavor          string     `json:"flavor,omitempty"`
}

type DeleteRelationResponse struct {
	UpdateType      UpdateType `json:"updateType,omitempty"`
	RelationAddress Address    `json:"relationAddress"`
}

// ErrorMessage is the body of the per-client error queue
type ErrorMessage struct {
	ErrorMessage string `json:"errorMessage"`
}

// ServerError is an application error reported by the annotation server
type ServerError struct {
	Message string
}

func (e *ServerError) Error() string {
	return "server error: " + e.Message
}

// For detecting the update type before decoding the full payload
type updateProbe struct {
	UpdateType UpdateType `json:"updateType"`
}

// DecodeUpdate decodes a per-line update into its typed response.
// Payloads without an updateType are span updates.
func DecodeUpdate(body []byte) (any, error) {
	var probe updateProbe
	if err := json.Unmarshal(body, &probe); err != nil {
		return nil, fmt.Errorf("failed to decode update: %w", err)
	}

	var msg any
	switch probe.UpdateType {
	case UpdateSpanCreated:
		msg = &CreateSpanResponse{}
	case UpdateSpanUpdated, "":
		msg = &UpdateSpanResponse{}
	case UpdateSpanDeleted:
		msg = &DeleteSpanResponse{}
	case UpdateRelationCreated:
		msg = &CreateRelationResponse{}
	case UpdateRelationUpdated:
		msg = &UpdateRelationResponse{}
	case UpdateRelationDeleted:
		msg = &DeleteRelationResponse{}
	default:
		return nil, fmt.Errorf("unknown update type: %s", probe.UpdateType)
	}

	if err := json.Unmarshal(body, msg); err != nil {
		return nil, fmt.Errorf("failed to decode %s update: %w", probe.UpdateType, err)
	}
	return msg, nil
}
