package annotation

import (
	"testing"

	"annosync/internal/protocol"

	"github.com/go-playground/assert/v2"
)

func spansOf(ids ...string) []protocol.Span {
	spans := make([]protocol.Span, 0, len(ids))
	for _, id := range ids {
		spans = append(spans, protocol.Span{ID: protocol.Address(id), Type: "NN"})
	}
	return spans
}

func TestMirrorRemoveSpansMatchesEveryCopy(t *testing.T) {
	m := NewMirror()
	m.ReplaceView(nil, spansOf("1", "2", "1", "3"), nil)

	assert.Equal(t, 2, m.RemoveSpans("1"))

	state := m.Snapshot()
	assert.Equal(t, 2, len(state.Spans))
	assert.Equal(t, protocol.Address("2"), state.Spans[0].ID)
	assert.Equal(t, protocol.Address("3"), state.Spans[1].ID)

	assert.Equal(t, 0, m.RemoveSpans("9"))
	assert.Equal(t, 2, len(m.Snapshot().Spans))
}

func TestMirrorAddSpanKeepsOrder(t *testing.T) {
	m := NewMirror()
	m.ReplaceView(nil, spansOf("1", "2"), nil)
	m.AddSpan(protocol.Span{ID: "7", Type: "NP", Begin: protocol.Offset(3), End: protocol.Offset(9)})

	state := m.Snapshot()
	assert.Equal(t, 3, len(state.Spans))
	assert.Equal(t, protocol.Address("1"), state.Spans[0].ID)
	assert.Equal(t, protocol.Address("2"), state.Spans[1].ID)
	assert.Equal(t, protocol.Address("7"), state.Spans[2].ID)
	assert.Equal(t, 3, *state.Spans[2].Begin)
}

func TestMirrorReplaceViewOverwrites(t *testing.T) {
	m := NewMirror()
	m.ReplaceView([]string{"old"}, spansOf("1"), []protocol.Relation{{ID: "r1"}})
	m.ReplaceView([]string{"a", "b"}, spansOf("2"), nil)

	state := m.Snapshot()
	assert.Equal(t, []string{"a", "b"}, state.Text)
	assert.Equal(t, 1, len(state.Spans))
	assert.Equal(t, protocol.Address("2"), state.Spans[0].ID)
	assert.Equal(t, 0, len(state.Relations))
}

func TestMirrorPatchSpan(t *testing.T) {
	m := NewMirror()
	m.ReplaceView(nil, []protocol.Span{
		{ID: "4", Type: "NN", Feature: "sg", CoveredText: "dog"},
		{ID: "5", Type: "VB"},
	}, nil)

	feature := "pl"
	n := m.PatchSpan(&protocol.UpdateSpanResponse{SpanAddress: "4", Type: "NNS", Feature: &feature})
	assert.Equal(t, 1, n)

	state := m.Snapshot()
	assert.Equal(t, "NNS", state.Spans[0].Type)
	assert.Equal(t, "pl", state.Spans[0].Feature)
	// absent fields stay untouched
	assert.Equal(t, "dog", state.Spans[0].CoveredText)
	assert.Equal(t, "VB", state.Spans[1].Type)

	assert.Equal(t, 0, m.PatchSpan(&protocol.UpdateSpanResponse{SpanAddress: "99", Type: "X"}))
}

func TestMirrorRelations(t *testing.T) {
	m := NewMirror()
	m.AddRelation(protocol.Relation{ID: "r1", GovernorID: "1", DependentID: "2", Type: "dep", Flavor: "a"})
	m.AddRelation(protocol.Relation{ID: "r2", GovernorID: "2", DependentID: "3", Type: "dep"})

	assert.Equal(t, 1, m.PatchRelation(&protocol.UpdateRelationResponse{RelationAddress: "r1", Flavor: "b"}))
	state := m.Snapshot()
	assert.Equal(t, "b", state.Relations[0].Flavor)
	assert.Equal(t, "dep", state.Relations[0].Type)

	assert.Equal(t, 1, m.RemoveRelations("r2"))
	assert.Equal(t, 1, len(m.Snapshot().Relations))
}

func TestMirrorSnapshotIsACopy(t *testing.T) {
	m := NewMirror()
	m.ReplaceView([]string{"a"}, []protocol.Span{{ID: "1", Begin: protocol.Offset(0)}}, nil)
	m.SetViewport(protocol.Viewport{{Begin: 0, End: 0}})

	state := m.Snapshot()
	state.Text[0] = "changed"
	*state.Spans[0].Begin = 42
	state.Viewport[0].End = 9

	again := m.Snapshot()
	assert.Equal(t, "a", again.Text[0])
	assert.Equal(t, 0, *again.Spans[0].Begin)
	assert.Equal(t, 0, again.Viewport[0].End)
}
