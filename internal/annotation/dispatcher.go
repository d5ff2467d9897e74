package annotation

import (
	"context"
	"encoding/json"
	"fmt"

	"annosync/internal/middleware"
	"annosync/internal/protocol"

	"go.opentelemetry.io/otel/attribute"
)

// Requests only publish. Apart from the viewport, the mirror changes when
// the server answers, never ahead of it.

func (c *Client) header() (protocol.RequestHeader, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.session == nil {
		return protocol.RequestHeader{}, ErrNotReady
	}
	return protocol.RequestHeader{
		ClientName: c.session.ClientIdentity,
		UserName:   c.session.UserName,
		ProjectID:  c.session.ProjectID,
		DocumentID: c.session.DocumentID,
	}, nil
}

func (c *Client) publish(destination string, request any) error {
	_, span := middleware.StartSpan(context.Background(), "Annotation.Publish",
		attribute.String("stomp.destination", destination),
	)
	defer span.End()

	body, err := json.Marshal(request)
	if err != nil {
		return fmt.Errorf("failed to encode request for %s: %w", destination, err)
	}
	if err := c.conn.Publish(destination, body); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to publish to %s: %w", destination, err)
	}
	return nil
}

// OpenDocument switches to a document and asks for the text and annotations of a viewport
func (c *Client) OpenDocument(projectID, documentID int64, viewport protocol.Viewport) error {
	if err := viewport.Validate(); err != nil {
		return err
	}
	if _, err := c.header(); err != nil {
		return err
	}

	c.setDocument(projectID, documentID)
	c.mirror.SetViewport(viewport)

	header, err := c.header()
	if err != nil {
		return err
	}
	return c.publish(protocol.DestNewDocument, protocol.NewDocumentRequest{
		RequestHeader:      header,
		ViewportType:       c.opts.ViewportType,
		Viewport:           viewport,
		RecommenderEnabled: c.opts.RecommenderEnabled,
	})
}

// ChangeViewport asks for a different set of lines of the open document
func (c *Client) ChangeViewport(viewport protocol.Viewport) error {
	if err := viewport.Validate(); err != nil {
		return err
	}
	header, err := c.header()
	if err != nil {
		return err
	}

	c.mirror.SetViewport(viewport)
	return c.publish(protocol.DestNewViewport, protocol.NewViewportRequest{
		RequestHeader:      header,
		ViewportType:       c.opts.ViewportType,
		Viewport:           viewport,
		RecommenderEnabled: c.opts.RecommenderEnabled,
	})
}

func (c *Client) SelectSpan(span protocol.Address) error {
	header, err := c.header()
	if err != nil {
		return err
	}
	return c.publish(protocol.DestSelectSpan, protocol.SelectSpanRequest{
		RequestHeader: header,
		SpanAddress:   span,
	})
}

func (c *Client) UpdateSpan(span protocol.Address, newType, newFeature string) error {
	header, err := c.header()
	if err != nil {
		return err
	}
	return c.publish(protocol.DestUpdateSpan, protocol.UpdateSpanRequest{
		RequestHeader: header,
		SpanAddress:   span,
		NewType:       newType,
		NewFeature:    newFeature,
	})
}

func (c *Client) CreateSpan(begin, end int, spanType, feature string) error {
	if begin < 0 || end < begin {
		return fmt.Errorf("invalid span offsets [%d,%d]", begin, end)
	}
	header, err := c.header()
	if err != nil {
		return err
	}
	return c.publish(protocol.DestCreateSpan, protocol.CreateSpanRequest{
		RequestHeader: header,
		Begin:         begin,
		End:           end,
		Type:          spanType,
		Feature:       feature,
	})
}

func (c *Client) DeleteSpan(span protocol.Address) error {
	header, err := c.header()
	if err != nil {
		return err
	}
	return c.publish(protocol.DestDeleteSpan, protocol.DeleteSpanRequest{
		RequestHeader: header,
		SpanAddress:   span,
	})
}

func (c *Client) SelectRelation(relation protocol.Address) error {
	header, err := c.header()
	if err != nil {
		return err
	}
	return c.publish(protocol.DestSelectRelation, protocol.SelectRelationRequest{
		RequestHeader:   header,
		RelationAddress: relation,
	})
}

func (c *Client) UpdateRelation(relation protocol.Address, newFlavor, newType string) error {
	header, err := c.header()
	if err != nil {
		return err
	}
	return c.publish(protocol.DestUpdateRelation, protocol.UpdateRelationRequest{
		RequestHeader:   header,
		RelationAddress: relation,
		NewFlavor:       newFlavor,
		NewRelation:     newType,
	})
}

func (c *Client) CreateRelation(governor, dependent protocol.Address, relationType, flavor string) error {
	header, err := c.header()
	if err != nil {
		return err
	}
	return c.publish(protocol.DestCreateRelation, protocol.CreateRelationRequest{
		RequestHeader:  header,
		GovernorID:     governor,
		DependentID:    dependent,
		DependencyType: relationType,
		Flavor:         flavor,
	})
}

func (c *Client) DeleteRelation(relation protocol.Address) error {
	header, err := c.header()
	if err != nil {
		return err
	}
	return c.publish(protocol.DestDeleteRelation, protocol.DeleteRelationRequest{
		RequestHeader:   header,
		RelationAddress: relation,
	})
}

// SaveWordAlignment stores the alignments of one sentence pair
func (c *Client) SaveWordAlignment(sentence int, alignments string) error {
	header, err := c.header()
	if err != nil {
		return err
	}
	return c.publish(protocol.DestSaveAlignment, protocol.SaveWordAlignmentRequest{
		RequestHeader: header,
		Sentence:      sentence,
		Alignments:    alignments,
	})
}
