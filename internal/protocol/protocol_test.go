package protocol

import (
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/go-playground/assert/v2"
)

func TestViewportValidate(t *testing.T) {
	assert.Equal(t, nil, Viewport{}.Validate())
	assert.Equal(t, nil, Viewport{{0, 34}, {36, 74}}.Validate())
	// order is free as long as ranges stay disjoint
	assert.Equal(t, nil, Viewport{{10, 12}, {0, 2}}.Validate())

	err := Viewport{{0, 5}, {5, 8}}.Validate()
	assert.Equal(t, true, errors.Is(err, ErrOverlappingRanges))

	err = Viewport{{10, 20}, {0, 12}}.Validate()
	assert.Equal(t, true, errors.Is(err, ErrOverlappingRanges))

	err = Viewport{{3, 1}}.Validate()
	assert.Equal(t, true, errors.Is(err, ErrInvalidRange))

	err = Viewport{{-1, 1}}.Validate()
	assert.Equal(t, true, errors.Is(err, ErrInvalidRange))
}

func TestViewportSizeLimit(t *testing.T) {
	assert.Equal(t, nil, Viewport{{0, MaxViewportLines - 1}}.Validate())
	assert.Equal(t, nil, Viewport{{0, 4}, {10, MaxViewportLines + 4}}.Validate())

	err := Viewport{{0, MaxViewportLines}}.Validate()
	assert.Equal(t, true, errors.Is(err, ErrViewportTooLarge))

	err = Viewport{{0, 4}, {10, MaxViewportLines + 5}}.Validate()
	assert.Equal(t, true, errors.Is(err, ErrViewportTooLarge))

	// the length of this range does not fit in an int
	err = Viewport{{0, math.MaxInt}}.Validate()
	assert.Equal(t, true, errors.Is(err, ErrViewportTooLarge))

	err = Viewport{{math.MaxInt, math.MaxInt}, {0, math.MaxInt - 1}}.Validate()
	assert.Equal(t, true, errors.Is(err, ErrViewportTooLarge))

	var decoded Viewport
	assert.Equal(t, nil, json.Unmarshal([]byte(`[[0,9223372036854775807]]`), &decoded))
	assert.Equal(t, true, errors.Is(decoded.Validate(), ErrViewportTooLarge))

	_, err = ParseViewport("0-9223372036854775807")
	assert.Equal(t, true, errors.Is(err, ErrViewportTooLarge))
}

func TestViewportLines(t *testing.T) {
	assert.Equal(t, []int{0, 1, 2}, Viewport{{0, 2}}.Lines())
	assert.Equal(t, []int{10, 11, 0}, Viewport{{10, 11}, {0, 0}}.Lines())
	assert.Equal(t, 0, len(Viewport{}.Lines()))
	assert.Equal(t, 5, Viewport{{0, 2}, {7, 8}}.LineCount())
}

func TestViewportJSON(t *testing.T) {
	v := Viewport{{0, 34}, {36, 74}}
	data, err := json.Marshal(v)
	assert.Equal(t, nil, err)
	assert.Equal(t, "[[0,34],[36,74]]", string(data))

	var decoded Viewport
	assert.Equal(t, nil, json.Unmarshal(data, &decoded))
	assert.Equal(t, v, decoded)

	err = json.Unmarshal([]byte("[[1,2,3]]"), &decoded)
	assert.Equal(t, true, errors.Is(err, ErrInvalidRange))
}

func TestParseViewport(t *testing.T) {
	v, err := ParseViewport("0-2, 10-12,20")
	assert.Equal(t, nil, err)
	assert.Equal(t, Viewport{{0, 2}, {10, 12}, {20, 20}}, v)
	assert.Equal(t, "0-2,10-12,20-20", v.String())

	v, err = ParseViewport("")
	assert.Equal(t, nil, err)
	assert.Equal(t, 0, len(v))

	_, err = ParseViewport("0-4,3-6")
	assert.Equal(t, true, errors.Is(err, ErrOverlappingRanges))

	_, err = ParseViewport("a-b")
	assert.Equal(t, true, errors.Is(err, ErrInvalidRange))
}

func TestAddressJSON(t *testing.T) {
	var s Span
	assert.Equal(t, nil, json.Unmarshal([]byte(`{"id":5,"type":"NN"}`), &s))
	assert.Equal(t, Address("5"), s.ID)
	assert.Equal(t, false, s.HasOffsets())

	assert.Equal(t, nil, json.Unmarshal([]byte(`{"id":"5","type":"NN"}`), &s))
	assert.Equal(t, true, s.ID.Matches(AddressOf(5)))

	data, err := json.Marshal(DeleteSpanRequest{SpanAddress: AddressOf(7)})
	assert.Equal(t, nil, err)
	assert.MatchRegex(t, string(data), `"spanAddress":7`)

	data, err = json.Marshal(DeleteSpanRequest{SpanAddress: Address("3-12")})
	assert.Equal(t, nil, err)
	assert.MatchRegex(t, string(data), `"spanAddress":"3-12"`)
}

func TestAddressEncoding(t *testing.T) {
	cases := []struct {
		address Address
		want    string
	}{
		{"7", `7`},
		{"-3", `-3`},
		{"0", `0`},
		{"007", `"007"`},
		{"+5", `"+5"`},
		{"5.0", `"5.0"`},
		{"r1", `"r1"`},
	}
	for _, c := range cases {
		data, err := json.Marshal(c.address)
		assert.Equal(t, nil, err)
		assert.Equal(t, c.want, string(data))

		var back Address
		assert.Equal(t, nil, json.Unmarshal(data, &back))
		assert.Equal(t, c.address, back)
	}
}

func TestAddressDecodingNormalizesNumbers(t *testing.T) {
	cases := []struct {
		raw  string
		want Address
	}{
		{`5`, "5"},
		{`5.0`, "5"},
		{`5e0`, "5"},
		{`-2.00`, "-2"},
		{`5.5`, "5.5"},
		{`"5.0"`, "5.0"},
	}
	for _, c := range cases {
		var a Address
		assert.Equal(t, nil, json.Unmarshal([]byte(c.raw), &a))
		assert.Equal(t, c.want, a)
	}

	var a Address
	json.Unmarshal([]byte(`5.0`), &a)
	assert.Equal(t, true, a.Matches(AddressOf(5)))
}

func TestRequestHeaderFlattened(t *testing.T) {
	req := CreateSpanRequest{
		RequestHeader: RequestHeader{ClientName: "c1", UserName: "admin", ProjectID: 20, DocumentID: 41721},
		Begin:         3,
		End:           9,
		Type:          "NP",
	}
	data, err := json.Marshal(req)
	assert.Equal(t, nil, err)

	var fields map[string]any
	assert.Equal(t, nil, json.Unmarshal(data, &fields))
	assert.Equal(t, "c1", fields["clientName"])
	assert.Equal(t, "admin", fields["userName"])
	assert.Equal(t, float64(20), fields["projectId"])
	assert.Equal(t, float64(41721), fields["documentId"])
	assert.Equal(t, "NP", fields["type"])
}

func TestChannelNames(t *testing.T) {
	assert.Equal(t, "/queue/new_document_for_client/abc", NewDocumentChannel.For("abc"))
	assert.Equal(t, "/queue/error_for_client/abc", ErrorChannel.For("abc"))
	assert.Equal(t, "/topic/update_for_clients/20/41721/3", LineUpdateChannel(20, 41721, 3))
	assert.Equal(t, "update_3", LineSubscriptionID(3))
	assert.Equal(t, true, IsLineUpdateChannel(LineUpdateChannel(1, 2, 3)))
	assert.Equal(t, false, IsLineUpdateChannel(NewViewportChannel.For("abc")))
	assert.Equal(t, 5, len(FixedChannels()))
}

func TestDecodeUpdate(t *testing.T) {
	msg, err := DecodeUpdate([]byte(`{"updateType":"span_created","spanAddress":7,"begin":3,"end":9,"type":"NP"}`))
	assert.Equal(t, nil, err)
	created, ok := msg.(*CreateSpanResponse)
	assert.Equal(t, true, ok)
	span := created.Span()
	assert.Equal(t, Address("7"), span.ID)
	assert.Equal(t, 3, *span.Begin)
	assert.Equal(t, 9, *span.End)

	msg, err = DecodeUpdate([]byte(`{"spanAddress":7,"type":"VP"}`))
	assert.Equal(t, nil, err)
	_, ok = msg.(*UpdateSpanResponse)
	assert.Equal(t, true, ok)

	msg, err = DecodeUpdate([]byte(`{"updateType":"relation_deleted","relationAddress":"r1"}`))
	assert.Equal(t, nil, err)
	deleted, ok := msg.(*DeleteRelationResponse)
	assert.Equal(t, true, ok)
	assert.Equal(t, Address("r1"), deleted.RelationAddress)

	_, err = DecodeUpdate([]byte(`{"updateType":"bogus"}`))
	assert.NotEqual(t, nil, err)

	_, err = DecodeUpdate([]byte(`not json`))
	assert.NotEqual(t, nil, err)
}
