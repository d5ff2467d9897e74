package annotation

import (
	"sync"

	"annosync/internal/protocol"
)

// State is a point-in-time copy of the mirror, safe to hand to a renderer
type State struct {
	Text             []string
	Spans            []protocol.Span
	Relations        []protocol.Relation
	SelectedSpan     *protocol.Span
	SelectedRelation *protocol.Relation
	Viewport         protocol.Viewport
}

// Mirror holds this client's copy of the visible document: text lines, spans,
// relations, the current selections and the viewport.
//
// Only response handlers change text, spans, relations and selections.
// The viewport is also replaced by the dispatcher before a document or
// viewport request is published.
type Mirror struct {
	mu               sync.RWMutex
	text             []string
	spans            []protocol.Span
	relations        []protocol.Relation
	selectedSpan     *protocol.Span
	selectedRelation *protocol.Relation
	viewport         protocol.Viewport
}

func NewMirror() *Mirror {
	return &Mirror{}
}

// Snapshot returns a deep copy of the current state
func (m *Mirror) Snapshot() State {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := State{
		Text:      append([]string(nil), m.text...),
		Spans:     make([]protocol.Span, len(m.spans)),
		Relations: append([]protocol.Relation(nil), m.relations...),
		Viewport:  m.viewport.Clone(),
	}
	for i, span := range m.spans {
		s.Spans[i] = span.Clone()
	}
	if m.selectedSpan != nil {
		selected := m.selectedSpan.Clone()
		s.SelectedSpan = &selected
	}
	if m.selectedRelation != nil {
		selected := *m.selectedRelation
		s.SelectedRelation = &selected
	}
	return s
}

// Viewport returns a copy of the current viewport
func (m *Mirror) Viewport() protocol.Viewport {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.viewport.Clone()
}

// SetViewport replaces the viewport wholesale
func (m *Mirror) SetViewport(v protocol.Viewport) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.viewport = v.Clone()
}

// ReplaceView overwrites text, spans and relations. Nothing from the previous view survives.
func (m *Mirror) ReplaceView(text []string, spans []protocol.Span, relations []protocol.Relation) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.text = append([]string(nil), text...)
	m.spans = make([]protocol.Span, len(spans))
	for i, span := range spans {
		m.spans[i] = span.Clone()
	}
	m.relations = append([]protocol.Relation(nil), relations...)
}

// SelectSpan replaces the selected span
func (m *Mirror) SelectSpan(span protocol.Span) {
	m.mu.Lock()
	defer m.mu.Unlock()
	selected := span.Clone()
	m.selectedSpan = &selected
}

// AddSpan appends a span after the existing ones
func (m *Mirror) AddSpan(span protocol.Span) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.spans = append(m.spans, span.Clone())
}

// PatchSpan applies a partial update to every span with the given id.
// It returns the number of spans changed.
func (m *Mirror) PatchSpan(update *protocol.UpdateSpanResponse) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	patched := 0
	for i := range m.spans {
		span := &m.spans[i]
		if !span.ID.Matches(update.SpanAddress) {
			continue
		}
		if update.Type != "" {
			span.Type = update.Type
		}
		if update.Feature != nil {
			span.Feature = *update.Feature
		}
		if update.CoveredText != nil {
			span.CoveredText = *update.CoveredText
		}
		if update.Begin != nil {
			span.Begin = protocol.Offset(*update.Begin)
		}
		if update.End != nil {
			span.End = protocol.Offset(*update.End)
		}
		if update.Color != nil {
			span.Color = *update.Color
		}
		patched++
	}
	return patched
}

// RemoveSpans drops every span whose id matches and returns how many were removed
func (m *Mirror) RemoveSpans(id protocol.Address) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.spans[:0]
	for _, span := range m.spans {
		if !span.ID.Matches(id) {
			kept = append(kept, span)
		}
	}
	removed := len(m.spans) - len(kept)
	m.spans = kept
	return removed
}

// SelectRelation replaces the selected relation
func (m *Mirror) SelectRelation(relation protocol.Relation) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.selectedRelation = &relation
}

// AddRelation appends a relation after the existing ones
func (m *Mirror) AddRelation(relation protocol.Relation) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.relations = append(m.relations, relation)
}

// PatchRelation updates type and flavor of every relation with the given id
func (m *Mirror) PatchRelation(update *protocol.UpdateRelationResponse) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	patched := 0
	for i := range m.relations {
		relation := &m.relations[i]
		if !relation.ID.Matches(update.RelationAddress) {
			continue
		}
		if update.Type != "" {
			relation.Type = update.Type
		}
		if update.Flavor != "" {
			relation.Flavor = update.Flavor
		}
		patched++
	}
	return patched
}

// RemoveRelations drops every relation whose id matches
func (m *Mirror) RemoveRelations(id protocol.Address) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.relations[:0]
	for _, relation := range m.relations {
		if !relation.ID.Matches(id) {
			kept = append(kept, relation)
		}
	}
	removed := len(m.relations) - len(kept)
	m.relations = kept
	return removed
}
