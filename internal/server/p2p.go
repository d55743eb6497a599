package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/abhayk2/localDrop/internal/relay"
	"github.com/abhayk2/localDrop/internal/signaling"
)

// p2pRequest is the body of POST /api/p2p. Subscribes carry only roomId
// and type; sends carry data too.
type p2pRequest struct {
	RoomID string          `json:"roomId"`
	Type   string          `json:"type"`
	Data   json.RawMessage `json:"data"`
}

type sendResponse struct {
	Success   bool `json:"success"`
	Delivered bool `json:"delivered"`
}

func isEventStream(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "text/event-stream")
}

// handleP2P serves both halves of the browser protocol: a request that
// accepts text/event-stream subscribes, a plain POST sends.
func (s *Server) handleP2P(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet {
		if !isEventStream(r) {
			writeError(w, http.StatusBadRequest, "Accept: text/event-stream required")
			return
		}
		q := r.URL.Query()
		s.serveEvents(w, r, q.Get("roomId"), q.Get("type"))
		return
	}

	var req p2pRequest
	body := http.MaxBytesReader(w, r.Body, maxMessageSize)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	// reading to EOF lets the server notice when a subscriber hangs up
	_, _ = io.Copy(io.Discard, body)

	if isEventStream(r) {
		s.serveEvents(w, r, req.RoomID, req.Type)
		return
	}
	s.send(w, req)
}

func (s *Server) send(w http.ResponseWriter, req p2pRequest) {
	role, err := signaling.ParseRole(req.Type)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Missing roomId or type")
		return
	}

	payload := bytes.TrimSpace(req.Data)
	if len(payload) == 0 || bytes.Equal(payload, []byte("null")) {
		writeError(w, http.StatusBadRequest, "Missing data")
		return
	}
	compact := new(bytes.Buffer)
	if err := json.Compact(compact, payload); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid data")
		return
	}

	delivery, err := s.hub.Send(req.RoomID, role, compact.Bytes())
	switch {
	case errors.Is(err, relay.ErrInvalidRoomID), errors.Is(err, relay.ErrInvalidRole):
		writeError(w, http.StatusBadRequest, "Missing roomId or type")
		return
	case errors.Is(err, relay.ErrQueueFull):
		writeError(w, http.StatusServiceUnavailable, "Room queue is full")
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, sendResponse{Success: true, Delivered: delivery == relay.Delivered})
}

// serveEvents attaches an event stream to the room slot and writes frames
// until the request ends, the slot is taken over, or the stream stalls.
func (s *Server) serveEvents(w http.ResponseWriter, r *http.Request, roomID, roleName string) {
	id, err := relay.NormalizeRoomID(roomID)
	role, roleErr := signaling.ParseRole(roleName)
	if err != nil || roleErr != nil {
		writeError(w, http.StatusBadRequest, "Missing roomId or type")
		return
	}

	rc := http.NewResponseController(w)
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		s.logger.Error("event stream cannot flush", zap.Error(err))
		return
	}

	log := s.logger.With(zap.String("room", id), zap.Stringer("role", role), zap.String("transport", "sse"))
	client := relay.NewClient(id, role, s.cfg.OutboxSize)
	defer client.Close()

	if _, err := s.hub.Attach(id, role, client); err != nil {
		log.Warn("attach failed", zap.Error(err))
		return
	}
	defer s.hub.Detach(id, role, client)

	ticker := time.NewTicker(s.cfg.Heartbeat)
	defer ticker.Stop()

	write := func(chunks ...[]byte) error {
		_ = rc.SetWriteDeadline(time.Now().Add(writeWait))
		for _, c := range chunks {
			if _, err := w.Write(c); err != nil {
				return err
			}
		}
		return rc.Flush()
	}

	for {
		select {
		case <-r.Context().Done():
			return

		case <-client.Done():
			log.Debug("stream closed by relay")
			return

		case frame := <-client.Outbox():
			if err := write([]byte("data: "), frame, []byte("\n\n")); err != nil {
				log.Debug("event write failed", zap.Error(err))
				return
			}

		case <-ticker.C:
			if err := write([]byte(": ping\n\n")); err != nil {
				log.Debug("heartbeat failed", zap.Error(err))
				return
			}
		}
	}
}
