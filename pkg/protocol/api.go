// Package protocol defines the wire types shared by the panel and the script host.
package protocol

// EvaluateRequest is the body for POST /api/v1/evaluate.
type EvaluateRequest struct {
	Expression string `json:"expression"`
}

// EvaluateResponse is returned by POST /api/v1/evaluate. Result holds the
// raw string the expression produced; decoding it is the caller's business.
type EvaluateResponse struct {
	Result string `json:"result"`
	Error  string `json:"error,omitempty"`
}

// ErrorResponse is returned on API errors.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Details string `json:"details,omitempty"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status string `json:"status"`
	Root   string `json:"root,omitempty"`
}

// Event types pushed over GET /api/v1/events.
const (
	EventLibraryChanged = "library_changed"
	EventHeartbeat      = "heartbeat"
)

// Event represents a server-sent event about the script library.
type Event struct {
	Type      string `json:"type"`
	Path      string `json:"path,omitempty"`
	Op        string `json:"op,omitempty"`
	Timestamp int64  `json:"timestamp"`
}
