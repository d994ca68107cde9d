package client

import "time"

// Scan types accepted by StartRequest.
const (
	ScanSimple = "simple"
	ScanManual = "manual"
)

// StartRequest represents a request to start a scan. A simple scan needs
// Target and Flag; a manual scan needs Command.
type StartRequest struct {
	ScanType string `json:"scan_type"`
	Target   string `json:"target,omitempty"`
	Flag     string `json:"flag,omitempty"`
	Command  string `json:"command,omitempty"`
}

// StartResponse is returned for an admitted scan.
type StartResponse struct {
	Message  string `json:"message"`
	BasePath string `json:"basePath"`
	ID       string `json:"id"`
}

type messageResponse struct {
	Message string `json:"message"`
}

// ExitStatus describes how a scan process ended.
type ExitStatus struct {
	State  string `json:"state"`
	Code   int    `json:"code"`
	Signal string `json:"signal,omitempty"`
}

// ScanStatus represents the state of the scan slot.
type ScanStatus struct {
	State      string      `json:"state"`
	ID         string      `json:"id,omitempty"`
	Target     string      `json:"target,omitempty"`
	OutputPath string      `json:"output_path,omitempty"`
	PID        int         `json:"pid,omitempty"`
	PGID       int         `json:"pgid,omitempty"`
	Args       []string    `json:"args,omitempty"`
	StartedAt  time.Time   `json:"started_at,omitzero"`
	Exit       *ExitStatus `json:"exit,omitempty"`
}

// Event is a file change notification.
type Event struct {
	Action string `json:"action"`
	Path   string `json:"path,omitempty"`
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error string `json:"error"`
}
