package annotation

import (
	"sort"
	"testing"

	"annosync/internal/protocol"

	"github.com/go-playground/assert/v2"
)

func noopLine(int, []byte) {}

func lineTopics(projectID, documentID int64, lines ...int) []string {
	channels := make([]string, 0, len(lines))
	for _, line := range lines {
		channels = append(channels, protocol.LineUpdateChannel(projectID, documentID, line))
	}
	sort.Strings(channels)
	return channels
}

func TestReconcileSubscribesEveryVisibleLine(t *testing.T) {
	conn := newFakeConn("c1")
	topology := NewTopology(conn)

	err := topology.Reconcile(1, 2, protocol.Viewport{{Begin: 0, End: 2}}, noopLine)
	assert.Equal(t, nil, err)
	assert.Equal(t, []int{0, 1, 2}, topology.LiveLines())
	assert.Equal(t, lineTopics(1, 2, 0, 1, 2), conn.lineChannels())
	assert.Equal(t, "update_1", conn.ids[protocol.LineUpdateChannel(1, 2, 1)])
}

func TestReconcileDiffsAcrossViewportChanges(t *testing.T) {
	conn := newFakeConn("c1")
	topology := NewTopology(conn)

	topology.Reconcile(1, 2, protocol.Viewport{{Begin: 0, End: 4}}, noopLine)
	assert.Equal(t, 5, conn.subscribes)

	err := topology.Reconcile(1, 2, protocol.Viewport{{Begin: 3, End: 6}}, noopLine)
	assert.Equal(t, nil, err)
	assert.Equal(t, []int{3, 4, 5, 6}, topology.LiveLines())
	assert.Equal(t, lineTopics(1, 2, 3, 4, 5, 6), conn.lineChannels())
	// lines 3 and 4 stayed live, only 5 and 6 were new
	assert.Equal(t, 7, conn.subscribes)
	assert.Equal(t, 3, conn.unsubscribes)

	// same viewport again is a no-op
	topology.Reconcile(1, 2, protocol.Viewport{{Begin: 3, End: 6}}, noopLine)
	assert.Equal(t, 7, conn.subscribes)
	assert.Equal(t, 3, conn.unsubscribes)
}

func TestReconcileDisjointRanges(t *testing.T) {
	conn := newFakeConn("c1")
	topology := NewTopology(conn)

	viewports := []protocol.Viewport{
		{{Begin: 0, End: 2}, {Begin: 10, End: 12}},
		{{Begin: 11, End: 11}, {Begin: 1, End: 3}},
		{{Begin: 5, End: 5}},
		{},
		{{Begin: 0, End: 0}, {Begin: 2, End: 2}, {Begin: 4, End: 4}},
	}
	for _, viewport := range viewports {
		assert.Equal(t, nil, topology.Reconcile(7, 8, viewport, noopLine))

		want := viewport.Lines()
		sort.Ints(want)
		if len(want) == 0 {
			want = []int{}
		}
		assert.Equal(t, want, topology.LiveLines())
		assert.Equal(t, len(want), len(conn.lineChannels()))
	}
}

func TestReconcileDropsLinesOfPreviousDocument(t *testing.T) {
	conn := newFakeConn("c1")
	topology := NewTopology(conn)

	topology.Reconcile(1, 2, protocol.Viewport{{Begin: 0, End: 1}}, noopLine)
	topology.Reconcile(1, 3, protocol.Viewport{{Begin: 0, End: 1}}, noopLine)

	assert.Equal(t, lineTopics(1, 3, 0, 1), conn.lineChannels())
	assert.Equal(t, 2, conn.unsubscribes)
}

func TestReconcileRoutesLineIndex(t *testing.T) {
	conn := newFakeConn("c1")
	topology := NewTopology(conn)

	var got []int
	topology.Reconcile(1, 2, protocol.Viewport{{Begin: 4, End: 5}}, func(line int, body []byte) {
		got = append(got, line)
	})

	conn.deliverRaw(t, protocol.LineUpdateChannel(1, 2, 5), []byte(`{}`))
	conn.deliverRaw(t, protocol.LineUpdateChannel(1, 2, 4), []byte(`{}`))
	assert.Equal(t, []int{5, 4}, got)
}

func TestSubscribeFixed(t *testing.T) {
	conn := newFakeConn("c1")
	topology := NewTopology(conn)

	err := topology.SubscribeFixed([]Route{
		{Channel: "/queue/a/c1", SubscriptionID: "a", Handler: func([]byte) {}},
		{Channel: "/queue/b/c1", SubscriptionID: "b", Handler: func([]byte) {}},
	})
	assert.Equal(t, nil, err)
	assert.Equal(t, []string{"/queue/a/c1", "/queue/b/c1"}, topology.FixedChannels())

	topology.Reset()
	assert.Equal(t, 0, len(topology.FixedChannels()))
	assert.Equal(t, 0, len(topology.LiveLines()))
}
