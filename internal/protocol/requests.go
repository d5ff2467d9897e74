package protocol

/*
REQUESTS

Every request repeats the sender's identity (client name, user, project,
document) even though the reply channels are already scoped to the client.
The server checks these fields against the session before acting on a request.
*/

// RequestHeader holds the correlation fields shared by all requests
type RequestHeader struct {
	ClientName string `json:"clientName"`
	UserName   string `json:"userName"`
	ProjectID  int64  `json:"projectId"`
	DocumentID int64  `json:"documentId"`
}

// NewDocumentRequest asks for a document's text and annotations in a viewport
type NewDocumentRequest struct {
	RequestHeader
	ViewportType       string   `json:"viewportType,omitempty"`
	Viewport           Viewport `json:"viewport"`
	RecommenderEnabled bool     `json:"recommenderEnabled"`
}

// NewViewportRequest asks for a different viewport of the open document
type NewViewportRequest struct {
	RequestHeader
	ViewportType       string   `json:"viewportType,omitempty"`
	Viewport           Viewport `json:"viewport"`
	RecommenderEnabled bool     `json:"recommenderEnabled"`
}

type SelectSpanRequest struct {
	RequestHeader
	SpanAddress Address `json:"spanAddress"`
}

type UpdateSpanRequest struct {
	RequestHeader
	SpanAddress Address `json:"spanAddress"`
	NewType     string  `json:"newType"`
	NewFeature  string  `json:"newFeature,omitempty"`
}

type CreateSpanRequest struct {
	RequestHeader
	Begin   int    `json:"begin"`
	End     int    `json:"end"`
	Type    string `json:"type"`
	Feature string `json:"feature,omitempty"`
}

type DeleteSpanRequest struct {
	RequestHeader
	SpanAddress Address `json:"spanAddress"`
}

type SelectRelationRequest struct {
	RequestHeader
	RelationAddress Address `json:"relationAddress"`
}

type UpdateRelationRequest struct {
	RequestHeader
	RelationAddress Address `json:"relationAddress"`
	NewFlavor       string  `json:"newFlavor,omitempty"`
	NewRelation     string  `json:"newRelation,omitempty"`
}

type CreateRelationRequest struct {
	RequestHeader
	GovernorID     Address `json:"governorId"`
	DependentID    Address `json:"dependentId"`
	DependencyType string  `json:"dependencyType"`
	Flavor         string  `json:"flavor,omitempty"`
}

type DeleteRelationRequest struct {
	RequestHeader
	RelationAddress Address `json:"relationAddress"`
}

// SaveWordAlignmentRequest stores the alignment of one sentence pair
type SaveWordAlignmentRequest struct {
	RequestHeader
	Sentence   int    `json:"sentence"`
	Alignments string `json:"alignments"`
}
