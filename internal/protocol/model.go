package protocol

// Span is an annotated region of document text.
// Begin/End and CoveredText are absent on partial projections such as a selection.
type Span struct {
	ID          Address `json:"id"`
	CoveredText string  `json:"coveredText,omitempty"`
	Begin       *int    `json:"begin,omitempty"`
	End         *int    `json:"end,omitempty"`
	Type        string  `json:"type"`
	Feature     string  `json:"feature,omitempty"`
	Color       string  `json:"color,omitempty"`
}

// HasOffsets reports whether the span carries both offsets
func (s Span) HasOffsets() bool {
	return s.Begin != nil && s.End != nil
}

// Clone returns a copy that shares no pointers with s
func (s Span) Clone() Span {
	out := s
	if s.Begin != nil {
		b := *s.Begin
		out.Begin = &b
	}
	if s.End != nil {
		e := *s.End
		out.End = &e
	}
	return out
}

// Relation is a typed link from a governor span to a dependent span
type Relation struct {
	ID          Address `json:"id"`
	GovernorID  Address `json:"governorId"`
	DependentID Address `json:"dependentId"`
	Type        string  `json:"type"`
	Flavor      string  `json:"flavor,omitempty"`
}

// Offset is a small helper for building spans with offsets
func Offset(n int) *int {
	return &n
}
