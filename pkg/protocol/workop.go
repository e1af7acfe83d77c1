package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// WorkEvent is one entry in an ancillary's append-only work log. Seq is
// strictly increasing and gap-free within a single assignment's log, starting
// at 0. Events are serialized as JSONL, one event per line.
type WorkEvent struct {
	Seq         uint64    `json:"seq"`
	Timestamp   time.Time `json:"timestamp"`
	AncillaryID string    `json:"ancillary_id"`
	BeadID      string    `json:"bead_id"`
	Op          WorkOp    `json:"op"`
}

// WorkOp identifiers. The op field in the serialized form carries exactly one
// of these in its "type" key.
const (
	OpAssistantMessage    = "assistant_message"
	OpUserMessage         = "user_message"
	OpThinkingStart       = "thinking_start"
	OpThinkingEnd         = "thinking_end"
	OpToolCall            = "tool_call"
	OpToolResult          = "tool_result"
	OpFileRead            = "file_read"
	OpFileWrite           = "file_write"
	OpCommandStart        = "command_start"
	OpCommandOutput       = "command_output"
	OpCommandExit         = "command_exit"
	OpAssignmentStarted   = "assignment_started"
	OpAssignmentCompleted = "assignment_completed"
	OpAssignmentFailed    = "assignment_failed"
	OpStatusChange        = "status_change"
	OpClientConnected     = "client_connected"
	OpClientDisconnected  = "client_disconnected"
)

// WorkOp is the payload of a WorkEvent. Exactly one variant field is set,
// matching Type. The JSON form is internally tagged:
// {"type":"tool_call","id":"t1","name":"bash","input":{...}}.
type WorkOp struct {
	Type string

	AssistantMessage *AssistantMessageOp
	UserMessage      *UserMessageOp
	ToolCall         *ToolCallOp
	ToolResult       *ToolResultOp
	FileRead         *FileOp
	FileWrite        *FileOp
	CommandStart     *CommandStartOp
	CommandOutput    *CommandOutputOp
	CommandExit      *CommandExitOp
	Assignment       *AssignmentOp
	StatusChange     *StatusChangeOp
	Client           *ClientOp
}

// AssistantMessageOp carries text produced by the agent.
type AssistantMessageOp struct {
	Content string `json:"content"`
}

// UserMessageOp carries text injected by a connected client.
type UserMessageOp struct {
	Content  string `json:"content"`
	ClientID string `json:"client_id"`
}

// ToolCallOp records the agent invoking a tool.
type ToolCallOp struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

// ToolResultOp records the outcome of a tool call.
type ToolResultOp struct {
	ID      string `json:"id"`
	Output  string `json:"output"`
	IsError bool   `json:"is_error"`
}

// FileOp records a file touched by the agent.
type FileOp struct {
	Path string `json:"path"`
}

// CommandStartOp records a shell command the agent launched.
type CommandStartOp struct {
	Command string   `json:"command"`
	Args    []string `json:"args"`
}

// CommandOutputOp carries incremental command output.
type CommandOutputOp struct {
	Stdout string `json:"stdout,omitempty"`
	Stderr string `json:"stderr,omitempty"`
}

// CommandExitOp records a command finishing.
type CommandExitOp struct {
	Code int `json:"code"`
}

// AssignmentOp carries assignment lifecycle details. BeadID is set for
// assignment_started; Error for assignment_failed.
type AssignmentOp struct {
	BeadID string `json:"bead_id,omitempty"`
	Error  string `json:"error,omitempty"`
}

// StatusChangeOp records an ancillary status transition.
type StatusChangeOp struct {
	Status string `json:"status"`
}

// ClientOp records a client attaching to or detaching from the session.
type ClientOp struct {
	ClientID string `json:"client_id"`
}

// Op constructors. These keep call sites terse and guarantee Type and the
// variant field stay in sync.

func AssistantMessage(content string) WorkOp {
	return WorkOp{Type: OpAssistantMessage, AssistantMessage: &AssistantMessageOp{Content: content}}
}

func UserMessage(content, clientID string) WorkOp {
	return WorkOp{Type: OpUserMessage, UserMessage: &UserMessageOp{Content: content, ClientID: clientID}}
}

func ThinkingStart() WorkOp { return WorkOp{Type: OpThinkingStart} }
func ThinkingEnd() WorkOp   { return WorkOp{Type: OpThinkingEnd} }

func ToolCall(id, name string, input json.RawMessage) WorkOp {
	return WorkOp{Type: OpToolCall, ToolCall: &ToolCallOp{ID: id, Name: name, Input: input}}
}

func ToolResult(id, output string, isError bool) WorkOp {
	return WorkOp{Type: OpToolResult, ToolResult: &ToolResultOp{ID: id, Output: output, IsError: isError}}
}

func FileRead(path string) WorkOp {
	return WorkOp{Type: OpFileRead, FileRead: &FileOp{Path: path}}
}

func FileWrite(path string) WorkOp {
	return WorkOp{Type: OpFileWrite, FileWrite: &FileOp{Path: path}}
}

func CommandStart(command string, args []string) WorkOp {
	return WorkOp{Type: OpCommandStart, CommandStart: &CommandStartOp{Command: command, Args: args}}
}

func CommandOutput(stdout, stderr string) WorkOp {
	return WorkOp{Type: OpCommandOutput, CommandOutput: &CommandOutputOp{Stdout: stdout, Stderr: stderr}}
}

func CommandExit(code int) WorkOp {
	return WorkOp{Type: OpCommandExit, CommandExit: &CommandExitOp{Code: code}}
}

func AssignmentStarted(beadID string) WorkOp {
	return WorkOp{Type: OpAssignmentStarted, Assignment: &AssignmentOp{BeadID: beadID}}
}

func AssignmentCompleted() WorkOp {
	return WorkOp{Type: OpAssignmentCompleted, Assignment: &AssignmentOp{}}
}

func AssignmentFailed(errMsg string) WorkOp {
	return WorkOp{Type: OpAssignmentFailed, Assignment: &AssignmentOp{Error: errMsg}}
}

func StatusChange(status string) WorkOp {
	return WorkOp{Type: OpStatusChange, StatusChange: &StatusChangeOp{Status: status}}
}

func ClientConnected(clientID string) WorkOp {
	return WorkOp{Type: OpClientConnected, Client: &ClientOp{ClientID: clientID}}
}

func ClientDisconnected(clientID string) WorkOp {
	return WorkOp{Type: OpClientDisconnected, Client: &ClientOp{ClientID: clientID}}
}

// MarshalJSON emits the internally tagged form.
func (op WorkOp) MarshalJSON() ([]byte, error) {
	payload := op.variant()
	if payload == nil {
		return json.Marshal(struct {
			Type string `json:"type"`
		}{op.Type})
	}
	inner, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	if string(inner) == "{}" || string(inner) == "null" {
		return json.Marshal(struct {
			Type string `json:"type"`
		}{op.Type})
	}
	// Splice "type" into the variant's object.
	out := make([]byte, 0, len(inner)+len(op.Type)+12)
	out = append(out, `{"type":"`...)
	out = append(out, op.Type...)
	out = append(out, `",`...)
	out = append(out, inner[1:]...)
	return out, nil
}

// UnmarshalJSON reads the internally tagged form. Unknown op types are
// rejected so a gap in the union is caught at the boundary.
func (op *WorkOp) UnmarshalJSON(data []byte) error {
	var tag struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &tag); err != nil {
		return fmt.Errorf("work op tag: %w", err)
	}
	op.Type = tag.Type
	var dst any
	switch tag.Type {
	case OpAssistantMessage:
		op.AssistantMessage = &AssistantMessageOp{}
		dst = op.AssistantMessage
	case OpUserMessage:
		op.UserMessage = &UserMessageOp{}
		dst = op.UserMessage
	case OpThinkingStart, OpThinkingEnd:
		return nil
	case OpToolCall:
		op.ToolCall = &ToolCallOp{}
		dst = op.ToolCall
	case OpToolResult:
		op.ToolResult = &ToolResultOp{}
		dst = op.ToolResult
	case OpFileRead:
		op.FileRead = &FileOp{}
		dst = op.FileRead
	case OpFileWrite:
		op.FileWrite = &FileOp{}
		dst = op.FileWrite
	case OpCommandStart:
		op.CommandStart = &CommandStartOp{}
		dst = op.CommandStart
	case OpCommandOutput:
		op.CommandOutput = &CommandOutputOp{}
		dst = op.CommandOutput
	case OpCommandExit:
		op.CommandExit = &CommandExitOp{}
		dst = op.CommandExit
	case OpAssignmentStarted, OpAssignmentCompleted, OpAssignmentFailed:
		op.Assignment = &AssignmentOp{}
		dst = op.Assignment
	case OpStatusChange:
		op.StatusChange = &StatusChangeOp{}
		dst = op.StatusChange
	case OpClientConnected, OpClientDisconnected:
		op.Client = &ClientOp{}
		dst = op.Client
	default:
		return fmt.Errorf("unknown work op type %q", tag.Type)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("work op %s payload: %w", tag.Type, err)
	}
	return nil
}

func (op WorkOp) variant() any {
	switch op.Type {
	case OpAssistantMessage:
		return op.AssistantMessage
	case OpUserMessage:
		return op.UserMessage
	case OpToolCall:
		return op.ToolCall
	case OpToolResult:
		return op.ToolResult
	case OpFileRead:
		return op.FileRead
	case OpFileWrite:
		return op.FileWrite
	case OpCommandStart:
		return op.CommandStart
	case OpCommandOutput:
		return op.CommandOutput
	case OpCommandExit:
		return op.CommandExit
	case OpAssignmentStarted, OpAssignmentCompleted, OpAssignmentFailed:
		return op.Assignment
	case OpStatusChange:
		return op.StatusChange
	case OpClientConnected, OpClientDisconnected:
		return op.Client
	}
	return nil
}
