package control

import "time"

// SpoolItem is one entry in GET /api/v1/spool.
type SpoolItem struct {
	Name       string    `json:"name"`
	SourceID   string    `json:"source_id"`
	CapturedAt time.Time `json:"captured_at"`
	Size       int64     `json:"size"`
	Parsed     bool      `json:"parsed"`
}

// SpoolResponse is the payload for GET /api/v1/spool.
type SpoolResponse struct {
	Count int         `json:"count"`
	Max   int         `json:"max"`
	Bytes int64       `json:"bytes"`
	Items []SpoolItem `json:"items"`
}

// ClearResponse is the payload for DELETE /api/v1/spool.
type ClearResponse struct {
	Removed int `json:"removed"`
}

// CommandResponse acknowledges a queued pipeline command.
type CommandResponse struct {
	Command string `json:"command"`
	Status  string `json:"status"` // "accepted"
}

type errorResponse struct {
	Error string `json:"error"`
}
