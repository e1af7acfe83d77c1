package executor

import (
	"encoding/json"
	"fmt"
	"strings"

	"loom/pkg/protocol"
)

// Parser converts the agent's stream-JSON stdout into work ops. It is
// stateful: thinking blocks open and close thinking spans, and tool calls
// are remembered so their results can be classified.
type Parser struct {
	thinking  bool
	toolKinds map[string]string // tool_use id -> tool name
}

// NewParser returns a fresh Parser for one agent run.
func NewParser() *Parser {
	return &Parser{toolKinds: make(map[string]string)}
}

// Result is the agent's terminal stream message.
type Result struct {
	IsError bool
	Text    string
}

// streamLine is the subset of the agent's stream-JSON envelope we consume.
type streamLine struct {
	Type    string `json:"type"`
	Subtype string `json:"subtype"`
	Result  string `json:"result"`
	IsError bool   `json:"is_error"`
	Message struct {
		Content []contentBlock `json:"content"`
	} `json:"message"`
}

type contentBlock struct {
	Type      string          `json:"type"`
	Text      string          `json:"text"`
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Input     json.RawMessage `json:"input"`
	ToolUseID string          `json:"tool_use_id"`
	Content   json.RawMessage `json:"content"`
	IsError   bool            `json:"is_error"`
}

// ParseLine translates one stdout line. Unparseable lines are surfaced as
// raw assistant output rather than dropped. A non-nil Result means the
// agent finished.
func (p *Parser) ParseLine(line string) ([]protocol.WorkOp, *Result, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil, nil, nil
	}
	var msg streamLine
	if err := json.Unmarshal([]byte(line), &msg); err != nil {
		return []protocol.WorkOp{protocol.AssistantMessage(line)}, nil, nil
	}

	switch msg.Type {
	case "system":
		return nil, nil, nil
	case "assistant":
		return p.assistantOps(msg.Message.Content), nil, nil
	case "user":
		return p.toolResultOps(msg.Message.Content), nil, nil
	case "result":
		var ops []protocol.WorkOp
		if p.thinking {
			p.thinking = false
			ops = append(ops, protocol.ThinkingEnd())
		}
		isErr := msg.IsError || (msg.Subtype != "" && msg.Subtype != "success")
		return ops, &Result{IsError: isErr, Text: msg.Result}, nil
	default:
		return nil, nil, fmt.Errorf("unknown stream message type %q", msg.Type)
	}
}

func (p *Parser) assistantOps(blocks []contentBlock) []protocol.WorkOp {
	var ops []protocol.WorkOp
	for _, b := range blocks {
		if b.Type == "thinking" {
			if !p.thinking {
				p.thinking = true
				ops = append(ops, protocol.ThinkingStart())
			}
			continue
		}
		if p.thinking {
			p.thinking = false
			ops = append(ops, protocol.ThinkingEnd())
		}
		switch b.Type {
		case "text":
			if b.Text != "" {
				ops = append(ops, protocol.AssistantMessage(b.Text))
			}
		case "tool_use":
			p.toolKinds[b.ID] = b.Name
			ops = append(ops, protocol.ToolCall(b.ID, b.Name, b.Input))
			ops = append(ops, toolSideEffects(b)...)
		}
	}
	return ops
}

// toolSideEffects derives file and command ops from well-known tools so the
// work log reflects what the agent touched, not just that a tool ran.
func toolSideEffects(b contentBlock) []protocol.WorkOp {
	var input struct {
		FilePath string `json:"file_path"`
		Command  string `json:"command"`
	}
	_ = json.Unmarshal(b.Input, &input)

	switch b.Name {
	case "Read":
		if input.FilePath != "" {
			return []protocol.WorkOp{protocol.FileRead(input.FilePath)}
		}
	case "Write", "Edit":
		if input.FilePath != "" {
			return []protocol.WorkOp{protocol.FileWrite(input.FilePath)}
		}
	case "Bash":
		if input.Command != "" {
			return []protocol.WorkOp{protocol.CommandStart(input.Command, nil)}
		}
	}
	return nil
}

func (p *Parser) toolResultOps(blocks []contentBlock) []protocol.WorkOp {
	var ops []protocol.WorkOp
	for _, b := range blocks {
		if b.Type != "tool_result" {
			continue
		}
		output := rawToString(b.Content)
		ops = append(ops, protocol.ToolResult(b.ToolUseID, output, b.IsError))

		if p.toolKinds[b.ToolUseID] == "Bash" {
			code := 0
			if b.IsError {
				code = 1
			}
			ops = append(ops,
				protocol.CommandOutput(output, ""),
				protocol.CommandExit(code),
			)
		}
		delete(p.toolKinds, b.ToolUseID)
	}
	return ops
}

// rawToString flattens a tool_result content value, which may be a plain
// string or a list of text blocks.
func rawToString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var blocks []contentBlock
	if err := json.Unmarshal(raw, &blocks); err == nil {
		var parts []string
		for _, b := range blocks {
			if b.Text != "" {
				parts = append(parts, b.Text)
			}
		}
		return strings.Join(parts, "\n")
	}
	return string(raw)
}
