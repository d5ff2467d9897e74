package annotation

import (
	"encoding/json"
	"fmt"
	"log"

	"annosync/internal/protocol"
)

func (c *Client) fixedRoutes(identity string) []Route {
	return []Route{
		{protocol.NewDocumentChannel.For(identity), protocol.NewDocumentChannel.SubscriptionID, c.onNewDocument},
		{protocol.NewViewportChannel.For(identity), protocol.NewViewportChannel.SubscriptionID, c.onNewViewport},
		{protocol.SelectedSpanChannel.For(identity), protocol.SelectedSpanChannel.SubscriptionID, c.onSpanSelected},
		{protocol.SelectedRelationChannel.For(identity), protocol.SelectedRelationChannel.SubscriptionID, c.onRelationSelected},
		{protocol.ErrorChannel.For(identity), protocol.ErrorChannel.SubscriptionID, c.onError},
	}
}

func (c *Client) decode(kind string, body []byte, v any) bool {
	if err := json.Unmarshal(body, v); err != nil {
		c.fail(fmt.Errorf("failed to decode %s response: %w", kind, err))
		return false
	}
	return true
}

func (c *Client) onNewDocument(body []byte) {
	var msg protocol.NewDocumentResponse
	if !c.decode("new document", body, &msg) {
		return
	}
	log.Printf("Received document %d (%d lines, %d spans, %d relations)",
		msg.DocumentID, len(msg.ViewportText), len(msg.Spans), len(msg.Relations))

	session, ok := c.Session()
	if !ok {
		return
	}
	if msg.DocumentID != 0 {
		c.setDocument(session.ProjectID, msg.DocumentID)
	}
	c.replaceView(msg.ViewportText, msg.Spans, msg.Relations, msg.Viewport)
	c.notify(ChangeDocument)
}

func (c *Client) onNewViewport(body []byte) {
	var msg protocol.NewViewportResponse
	if !c.decode("new viewport", body, &msg) {
		return
	}
	log.Printf("Received viewport (%d lines, %d spans, %d relations)",
		len(msg.ViewportText), len(msg.Spans), len(msg.Relations))

	c.replaceView(msg.ViewportText, msg.Spans, msg.Relations, msg.Viewport)
	c.notify(ChangeViewport)
}

// replaceView overwrites the mirror and moves the line subscriptions to the viewport
func (c *Client) replaceView(text []string, spans []protocol.Span, relations []protocol.Relation, viewport protocol.Viewport) {
	c.mirror.ReplaceView(text, spans, relations)

	if len(viewport) > 0 {
		if err := viewport.Validate(); err != nil {
			c.fail(fmt.Errorf("server sent an invalid viewport: %w", err))
		} else {
			c.mirror.SetViewport(viewport)
		}
	}

	session, ok := c.Session()
	if !ok {
		return
	}
	err := c.topology.Reconcile(session.ProjectID, session.DocumentID, c.mirror.Viewport(), c.onLineUpdate)
	if err != nil {
		c.fail(fmt.Errorf("failed to update line subscriptions: %w", err))
	}
}

func (c *Client) onSpanSelected(body []byte) {
	var msg protocol.SelectSpanResponse
	if !c.decode("selected span", body, &msg) {
		return
	}

	// Selections carry no text or offsets
	c.mirror.SelectSpan(protocol.Span{
		ID:      msg.SpanAddress,
		Type:    msg.Type,
		Feature: msg.Feature,
	})
	c.notify(ChangeSelection)
}

func (c *Client) onRelationSelected(body []byte) {
	var msg protocol.SelectRelationResponse
	if !c.decode("selected relation", body, &msg) {
		return
	}

	c.mirror.SelectRelation(protocol.Relation{
		ID:          msg.RelationAddress,
		GovernorID:  msg.GovernorID,
		DependentID: msg.DependentID,
		Type:        msg.Type,
		Flavor:      msg.Flavor,
	})
	c.notify(ChangeSelection)
}

func (c *Client) onError(body []byte) {
	var msg protocol.ErrorMessage
	if !c.decode("error", body, &msg) {
		return
	}
	c.fail(&protocol.ServerError{Message: msg.ErrorMessage})
}

// onLineUpdate applies an edit pushed on a visible line's topic
func (c *Client) onLineUpdate(line int, body []byte) {
	msg, err := protocol.DecodeUpdate(body)
	if err != nil {
		c.fail(fmt.Errorf("line %d: %w", line, err))
		return
	}

	switch m := msg.(type) {
	case *protocol.CreateSpanResponse:
		c.mirror.AddSpan(m.Span())
		c.notify(ChangeSpans)

	case *protocol.UpdateSpanResponse:
		if c.mirror.PatchSpan(m) == 0 {
			log.Printf("Line %d: update for unknown span %s", line, m.SpanAddress)
			return
		}
		c.notify(ChangeSpans)

	case *protocol.DeleteSpanResponse:
		if c.mirror.RemoveSpans(m.SpanAddress) == 0 {
			log.Printf("Line %d: delete for unknown span %s", line, m.SpanAddress)
			return
		}
		c.notify(ChangeSpans)

	case *protocol.CreateRelationResponse:
		c.mirror.AddRelation(m.Relation())
		c.notify(ChangeRelations)

	case *protocol.UpdateRelationResponse:
		if c.mirror.PatchRelation(m) == 0 {
			log.Printf("Line %d: update for unknown relation %s", line, m.RelationAddress)
			return
		}
		c.notify(ChangeRelations)

	case *protocol.DeleteRelationResponse:
		if c.mirror.RemoveRelations(m.RelationAddress) == 0 {
			log.Printf("Line %d: delete for unknown relation %s", line, m.RelationAddress)
			return
		}
		c.notify(ChangeRelations)
	}
}
