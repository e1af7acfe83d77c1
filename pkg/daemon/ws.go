package daemon

import (
	"errors"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gorilla/websocket"

	"loom/pkg/protocol"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// The daemon binds to loopback; browser-origin checks do not apply.
	CheckOrigin: func(*http.Request) bool { return true },
}

// handleRealtime serves the authenticated realtime channel. The first frame
// must be Auth; protocol errors are answered on the offending connection
// only.
func (s *Server) handleRealtime(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("daemon: ws upgrade: %v", err)
		return
	}
	defer func() { _ = ws.Close() }()

	// Auth handshake.
	_, data, err := ws.ReadMessage()
	if err != nil {
		return
	}
	msg, err := protocol.DecodeClientMessage(data)
	if err != nil || msg.Type != protocol.MsgAuth {
		_ = ws.WriteJSON(protocol.ServerMessage{Type: protocol.MsgAuthFailure, Reason: "first message must be auth"})
		return
	}
	sessionID, ok := s.sec.Validate(msg.Token)
	if !ok {
		_ = ws.WriteJSON(protocol.ServerMessage{Type: protocol.MsgAuthFailure, Reason: "invalid session token"})
		return
	}
	if err := ws.WriteJSON(protocol.ServerMessage{Type: protocol.MsgAuthSuccess, SessionID: sessionID}); err != nil {
		return
	}

	scope := s.resolveScope(msg.AncillaryID, msg.Segment)
	s.metrics.ConnectedClients.Inc()
	defer s.metrics.ConnectedClients.Dec()

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return
		}
		req, err := protocol.DecodeClientMessage(data)
		if err != nil {
			_ = ws.WriteJSON(protocol.ServerMessage{Type: protocol.MsgError, Message: "malformed message"})
			continue
		}
		s.handleRealtimeRequest(r, ws, scope, req)
	}
}

// resolveScope picks the directory client file and command requests operate
// in: the ancillary's workspace when one is named, else the segment root.
func (s *Server) resolveScope(ancillaryID, segment string) string {
	if ancillaryID != "" {
		if a, ok, err := s.manager.Store().GetByAncillary(ancillaryID); err == nil && ok {
			return a.WorkspacePath
		}
	}
	if segment != "" {
		if seg, err := s.segments.Get(segment); err == nil {
			return seg.Path
		}
	}
	return ""
}

func (s *Server) handleRealtimeRequest(r *http.Request, ws *websocket.Conn, scope string, req protocol.ClientMessage) {
	fail := func(msg string) {
		_ = ws.WriteJSON(protocol.ServerMessage{Type: protocol.MsgError, Message: msg})
	}
	if scope == "" {
		fail("no ancillary or segment scope on this connection")
		return
	}

	switch req.Type {
	case protocol.MsgCommand:
		out, err := s.runner.Run(r.Context(), scope, "sh", "-c", req.Request)
		if err != nil {
			fail(err.Error())
			return
		}
		_ = ws.WriteJSON(protocol.ServerMessage{Type: protocol.MsgCommandOutput, Output: string(out)})

	case protocol.MsgFileRead:
		path, err := confinePath(scope, req.Path)
		if err != nil {
			fail(err.Error())
			return
		}
		data, err := os.ReadFile(path) //nolint:gosec // confined to the connection's scope above
		if err != nil {
			fail(err.Error())
			return
		}
		_ = ws.WriteJSON(protocol.ServerMessage{Type: protocol.MsgFileContent, Content: string(data)})

	case protocol.MsgVcsStatus:
		out, err := s.runner.Run(r.Context(), scope, "git", "status", "--porcelain")
		if err != nil {
			fail(err.Error())
			return
		}
		_ = ws.WriteJSON(protocol.ServerMessage{Type: protocol.MsgVcsStatusRes, Status: string(out)})

	default:
		fail("unknown message type " + req.Type)
	}
}

// confinePath resolves rel inside base and rejects escapes.
func confinePath(base, rel string) (string, error) {
	if rel == "" {
		return "", errors.New("path is required")
	}
	joined := filepath.Join(base, rel)
	if joined != base && !strings.HasPrefix(joined, base+string(filepath.Separator)) {
		return "", errors.New("path escapes the workspace")
	}
	return joined, nil
}
