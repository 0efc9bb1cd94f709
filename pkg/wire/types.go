// Package wire defines the envelope schema spoken between the broker and
// its websocket peers. Inbound envelopes are flat objects carrying a "type"
// discriminator next to the payload fields; outbound envelopes nest the
// payload under "data". The only exception is pong, which is flat in both
// directions.
package wire

import (
	"encoding/json"
	"time"
)

// Envelope is an outbound message: a type discriminator plus a
// type-specific payload.
type Envelope struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// RequestID is a caller-supplied correlation token. The broker never
// interprets it; it is echoed byte-for-byte into the paired response.
type RequestID = json.RawMessage

// RegisterRequest announces a new session. Role defaults to agent when
// absent or unrecognized.
type RegisterRequest struct {
	Hostname string `json:"hostname"`
	Role     string `json:"role,omitempty"`
}

// Registered confirms a registration back to the caller.
type Registered struct {
	ID       string `json:"id"`
	Hostname string `json:"hostname"`
}

// ChatRequest carries one chat line. Username falls back to the caller's
// hostname when empty.
type ChatRequest struct {
	Username string `json:"username,omitempty"`
	Message  string `json:"message"`
}

// ChatEvent is one chat history entry. Immutable once created; ordering is
// the broker's arrival order.
type ChatEvent struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// HostEntry describes one connected agent in a directory update.
type HostEntry struct {
	ID          string    `json:"id"`
	Hostname    string    `json:"hostname"`
	ConnectedAt time.Time `json:"connectedAt"`
}

// ExecuteCommandRequest asks the broker to forward a command to a target
// agent.
type ExecuteCommandRequest struct {
	TargetID    string    `json:"targetId"`
	Command     string    `json:"command"`
	CommandType string    `json:"commandType,omitempty"`
	RequestID   RequestID `json:"requestId,omitempty"`
}

// CommandDispatch is the envelope payload unicast to the target agent.
type CommandDispatch struct {
	Command     string    `json:"command"`
	CommandType string    `json:"commandType"`
	RequestID   RequestID `json:"requestId,omitempty"`
}

// CommandError is returned to the caller when the target session is not
// available.
type CommandError struct {
	RequestID RequestID `json:"requestId,omitempty"`
	Error     string    `json:"error"`
}

// CommandResultRequest reports the outcome of a dispatched command.
type CommandResultRequest struct {
	RequestID   RequestID `json:"requestId,omitempty"`
	Result      string    `json:"result"`
	Success     bool      `json:"success"`
	CommandType string    `json:"commandType,omitempty"`
}

// CommandResult is fanned out to controllers, attributed to the reporting
// agent.
type CommandResult struct {
	ClientID    string    `json:"clientId"`
	Hostname    string    `json:"hostname"`
	RequestID   RequestID `json:"requestId,omitempty"`
	Result      string    `json:"result"`
	Success     bool      `json:"success"`
	CommandType string    `json:"commandType"`
}

// ScreenshotRequest asks the broker to request a snapshot from a target
// agent. Username is only set for the chat variant, for attribution.
type ScreenshotRequest struct {
	TargetID  string    `json:"targetId"`
	RequestID RequestID `json:"requestId,omitempty"`
	Username  string    `json:"username,omitempty"`
}

// ScreenshotDispatch is the snapshot request unicast to the target agent.
type ScreenshotDispatch struct {
	RequestID RequestID `json:"requestId,omitempty"`
	Username  string    `json:"username,omitempty"`
}

// ScreenshotDataRequest carries a captured snapshot from an agent.
type ScreenshotDataRequest struct {
	RequestID RequestID `json:"requestId,omitempty"`
	ImageData string    `json:"imageData"`
}

// ScreenshotData is fanned out with the capturing session's identity.
type ScreenshotData struct {
	ClientID  string    `json:"clientId"`
	Hostname  string    `json:"hostname"`
	RequestID RequestID `json:"requestId,omitempty"`
	ImageData string    `json:"imageData"`
}

// DownloadFileRequest asks the broker to forward a file download order to a
// target agent.
type DownloadFileRequest struct {
	TargetID  string    `json:"targetId"`
	URL       string    `json:"url"`
	RequestID RequestID `json:"requestId,omitempty"`
}

// DownloadDispatch is the download order unicast to the target agent.
type DownloadDispatch struct {
	URL       string    `json:"url"`
	RequestID RequestID `json:"requestId,omitempty"`
}

// DownloadResultRequest reports the outcome of a download on an agent.
type DownloadResultRequest struct {
	Success  bool   `json:"success"`
	Message  string `json:"message,omitempty"`
	FilePath string `json:"filePath,omitempty"`
}

// DownloadResult is fanned out to controllers. It is also unicast directly
// to the caller, with Success=false, when the target session is gone.
type DownloadResult struct {
	ClientID string `json:"clientId,omitempty"`
	Hostname string `json:"hostname,omitempty"`
	Success  bool   `json:"success"`
	Message  string `json:"message,omitempty"`
	FilePath string `json:"filePath,omitempty"`
}

// ClientDisconnected notifies remaining sessions that a peer went away.
type ClientDisconnected struct {
	ID       string `json:"id"`
	Hostname string `json:"hostname"`
}

// Pong answers a ping. Flat on the wire, with a unix-millisecond server
// timestamp.
type Pong struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
}

// NewPong builds a pong for the given server time.
func NewPong(now time.Time) Pong {
	return Pong{Type: TypePong, Timestamp: now.UnixMilli()}
}
