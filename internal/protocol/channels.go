package protocol

import (
	"fmt"
	"strings"
)

// Outbound destinations handled by the annotation server
const (
	DestNewDocument     = "/app/new_document_from_client"
	DestNewViewport     = "/app/new_viewport_from_client"
	DestSelectSpan      = "/app/select_annotation_from_client"
	DestUpdateSpan      = "/app/update_annotation_from_client"
	DestCreateSpan      = "/app/new_annotation_from_client"
	DestDeleteSpan      = "/app/delete_annotation_from_client"
	DestSelectRelation  = "/app/select_relation_from_client"
	DestUpdateRelation  = "/app/update_relation_from_client"
	DestCreateRelation  = "/app/new_relation_from_client"
	DestDeleteRelation  = "/app/delete_relation_from_client"
	DestSaveAlignment   = "/app/update_word_alignment_from_client"
	ApplicationPrefix   = "/app/"
	QueuePrefix         = "/queue/"
	TopicPrefix         = "/topic/"
	lineUpdatePrefix    = "/topic/update_for_clients/"
	lineSubscriptionTag = "update_"
)

// FixedChannel is one of the five per-client inbound queues
type FixedChannel struct {
	Prefix         string
	SubscriptionID string
}

var (
	NewDocumentChannel      = FixedChannel{"/queue/new_document_for_client/", "new_document"}
	NewViewportChannel      = FixedChannel{"/queue/new_viewport_for_client/", "new_viewport"}
	SelectedSpanChannel     = FixedChannel{"/queue/selected_annotation_for_client/", "selected_annotation"}
	SelectedRelationChannel = FixedChannel{"/queue/selected_relation_for_client/", "selected_relation"}
	ErrorChannel            = FixedChannel{"/queue/error_for_client/", "error_message"}
)

// FixedChannels lists the per-client queues in subscription order
func FixedChannels() []FixedChannel {
	return []FixedChannel{
		NewDocumentChannel,
		NewViewportChannel,
		SelectedSpanChannel,
		SelectedRelationChannel,
		ErrorChannel,
	}
}

// For returns the channel name addressed to one client
func (c FixedChannel) For(clientIdentity string) string {
	return c.Prefix + clientIdentity
}

// LineUpdateChannel names the topic carrying edits for one document line
func LineUpdateChannel(projectID, documentID int64, line int) string {
	return fmt.Sprintf("%s%d/%d/%d", lineUpdatePrefix, projectID, documentID, line)
}

// LineSubscriptionID is the subscription id used for a line topic
func LineSubscriptionID(line int) string {
	return fmt.Sprintf("%s%d", lineSubscriptionTag, line)
}

// IsLineUpdateChannel reports whether a destination is a per-line update topic
func IsLineUpdateChannel(destination string) bool {
	return strings.HasPrefix(destination, lineUpdatePrefix)
}
