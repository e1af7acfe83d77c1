package daemon

import (
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"loom/pkg/protocol"
	"loom/pkg/worklog"
)

var errUnauthorized = errors.New("invalid session token")

// handleAncillaryStream serves the replay-then-tail event channel for one
// ancillary's active assignment. Auth rides on a token query parameter
// because websocket clients cannot set headers from every runtime. A
// from_seq parameter resumes a dropped stream without omissions.
func (s *Server) handleAncillaryStream(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, ok := s.sec.Validate(r.URL.Query().Get("token")); !ok {
		writeError(w, http.StatusUnauthorized, errUnauthorized)
		return
	}

	var fromSeq uint64
	if raw := r.URL.Query().Get("from_seq"); raw != "" {
		n, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		fromSeq = n
	}

	wl, err := s.manager.Log(id)
	if err != nil {
		writeError(w, errStatus(err), err)
		return
	}

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("daemon: stream upgrade for %s: %v", id, err)
		return
	}
	defer func() { _ = ws.Close() }()

	clientID := uuid.NewString()
	if _, err := wl.Append(protocol.ClientConnected(clientID)); err != nil {
		log.Printf("daemon: recording client connect for %s: %v", id, err)
		return
	}

	sub, err := wl.Subscribe(fromSeq)
	if err != nil {
		log.Printf("daemon: subscribing to %s: %v", id, err)
		return
	}
	defer sub.Cancel()

	s.metrics.ConnectedClients.Inc()
	defer s.metrics.ConnectedClients.Dec()
	defer func() {
		if _, err := wl.Append(protocol.ClientDisconnected(clientID)); err != nil {
			log.Printf("daemon: recording client disconnect for %s: %v", id, err)
		}
	}()

	// Single writer goroutine; the read loop below never writes to the
	// socket.
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for frame := range sub.Frames {
			if err := ws.WriteJSON(frame); err != nil {
				return
			}
		}
		_ = ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "log closed"),
			time.Now().Add(time.Second))
	}()

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			break
		}
		in, err := protocol.DecodeStreamInput(data)
		if err != nil {
			log.Printf("daemon: malformed stream input for %s: %v", id, err)
			continue
		}
		s.handleStreamInput(id, clientID, wl, in)
	}

	// Detach the subscription so the writer drains and exits before the
	// deferred close tears down the socket.
	sub.Cancel()
	<-writerDone
}

// handleStreamInput routes a client frame to the running agent, or straight
// into the log when no agent process is up.
func (s *Server) handleStreamInput(ancillaryID, clientID string, wl *worklog.Log, in protocol.StreamInput) {
	switch in.Type {
	case protocol.StreamMessage:
		if work, ok := s.manager.Executors().GetWork(ancillaryID); ok {
			if err := work.Message(in.Content, clientID); err != nil {
				log.Printf("daemon: forwarding message to %s: %v", ancillaryID, err)
			}
			return
		}
		// No agent running; record the message so a later resume sees it.
		if _, err := wl.Append(protocol.UserMessage(in.Content, clientID)); err != nil {
			log.Printf("daemon: recording message for %s: %v", ancillaryID, err)
		}
	case protocol.StreamInterrupt:
		if work, ok := s.manager.Executors().GetWork(ancillaryID); ok {
			if err := work.Interrupt(); err != nil {
				log.Printf("daemon: interrupting %s: %v", ancillaryID, err)
			}
		}
	default:
		log.Printf("daemon: unknown stream input %q from client %s", in.Type, clientID)
	}
}
