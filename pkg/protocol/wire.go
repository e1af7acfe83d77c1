package protocol

import "encoding/json"

// Realtime channel message types. Messages are JSON objects tagged with a
// "type" field; each direction has its own closed set of types.

// Client-to-server message types on /ws.
const (
	MsgAuth      = "auth"
	MsgCommand   = "command"
	MsgFileRead  = "file_read"
	MsgVcsStatus = "vcs_status"
)

// Server-to-client message types on /ws.
const (
	MsgAuthSuccess   = "auth_success"
	MsgAuthFailure   = "auth_failure"
	MsgCommandOutput = "command_output"
	MsgFileContent   = "file_content"
	MsgVcsStatusRes  = "vcs_status_result"
	MsgError         = "error"
)

// ClientMessage is a message received from a client on the realtime channel.
// The first message on a connection must be MsgAuth.
type ClientMessage struct {
	Type        string `json:"type"`
	Token       string `json:"token,omitempty"`
	AncillaryID string `json:"ancillary_id,omitempty"`
	Segment     string `json:"segment,omitempty"`
	Request     string `json:"request,omitempty"`
	Path        string `json:"path,omitempty"`
}

// ServerMessage is a message sent to a client on the realtime channel.
type ServerMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id,omitempty"`
	Reason    string `json:"reason,omitempty"`
	Output    string `json:"output,omitempty"`
	Content   string `json:"content,omitempty"`
	Status    string `json:"status,omitempty"`
	Message   string `json:"message,omitempty"`
}

// Per-ancillary event channel message types on /ws/ancillaries/{id}.
const (
	StreamEvent          = "event"
	StreamReplayComplete = "replay_complete"
	StreamStatus         = "status"
	StreamError          = "error"
	StreamMessage        = "message"
	StreamInterrupt      = "interrupt"
)

// StreamFrame is a server-to-client frame on the per-ancillary event channel.
// Subscription semantics: every retained event with seq >= from_seq, in
// order, then one replay_complete carrying the highest seq sent, then live
// events as they are appended.
type StreamFrame struct {
	Type       string     `json:"type"`
	Event      *WorkEvent `json:"event,omitempty"`
	CurrentSeq uint64     `json:"current_seq,omitempty"`
	Status     string     `json:"status,omitempty"`
	Message    string     `json:"message,omitempty"`
}

// StreamInput is a client-to-server frame on the per-ancillary event channel.
type StreamInput struct {
	Type    string `json:"type"`
	Content string `json:"content,omitempty"`
}

// PairRequest is the body of POST /pair.
type PairRequest struct {
	PairingToken string `json:"pairing_token"`
}

// PairResponse is the success body of POST /pair.
type PairResponse struct {
	SessionToken string `json:"session_token"`
	SessionID    string `json:"session_id"`
}

// AssignRequest is the body of POST /api/assignments. Exactly one of BeadID
// or Prompt must be set.
type AssignRequest struct {
	BeadID  string `json:"bead_id,omitempty"`
	Prompt  string `json:"prompt,omitempty"`
	Segment string `json:"segment"`
}

// CompleteOptions adjusts assignment completion behavior.
type CompleteOptions struct {
	KeepOpen bool   `json:"keep_open,omitempty"`
	Summary  string `json:"summary,omitempty"`
}

// ErrorResponse is the uniform REST error body.
type ErrorResponse struct {
	Error string `json:"error"`
}

// DecodeClientMessage parses a realtime-channel frame from a client.
func DecodeClientMessage(data []byte) (ClientMessage, error) {
	var m ClientMessage
	err := json.Unmarshal(data, &m)
	return m, err
}

// DecodeStreamInput parses an event-channel frame from a client.
func DecodeStreamInput(data []byte) (StreamInput, error) {
	var in StreamInput
	err := json.Unmarshal(data, &in)
	return in, err
}
