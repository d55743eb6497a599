package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/abhayk2/localDrop/internal/relay"
	"github.com/abhayk2/localDrop/internal/signaling"
)

const (
	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  maxMessageSize,
	WriteBufferSize: maxMessageSize,

	// Participants are anonymous and browser peers may be served from any
	// origin, so the relay does not restrict it.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleWS attaches a websocket to the room slot named in the query. Text
// frames read from the socket are sent to the opposite slot.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	id, err := relay.NormalizeRoomID(q.Get("roomId"))
	role, roleErr := signaling.ParseRole(q.Get("type"))
	if err != nil || roleErr != nil {
		writeError(w, http.StatusBadRequest, "Missing roomId or type")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("failed to upgrade connection", zap.Error(err))
		return
	}

	log := s.logger.With(zap.String("room", id), zap.Stringer("role", role), zap.String("transport", "ws"))
	client := relay.NewClient(id, role, s.cfg.OutboxSize)

	if _, err := s.hub.Attach(id, role, client); err != nil {
		log.Warn("attach failed", zap.Error(err))
		client.Close()
		conn.Close()
		return
	}

	go s.writePump(conn, client, log)
	s.readPump(conn, client, log)
}

// readPump forwards inbound frames until the socket fails, then detaches.
func (s *Server) readPump(conn *websocket.Conn, client *relay.Client, log *zap.Logger) {
	defer func() {
		s.hub.Detach(client.RoomID, client.Role, client)
		client.Close()
		conn.Close()
	}()

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug("websocket read failed", zap.Error(err))
			}
			return
		}
		if kind != websocket.TextMessage {
			continue
		}

		compact := new(bytes.Buffer)
		if err := json.Compact(compact, data); err != nil || compact.Len() == 0 {
			log.Warn("ignoring malformed frame")
			continue
		}
		if _, err := s.hub.Send(client.RoomID, client.Role, compact.Bytes()); err != nil {
			log.Warn("send failed", zap.Error(err))
		}
	}
}

// writePump drains the client outbox onto the socket and keeps it alive.
func (s *Server) writePump(conn *websocket.Conn, client *relay.Client, log *zap.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case frame := <-client.Outbox():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				log.Debug("websocket write failed", zap.Error(err))
				return
			}

		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-client.Done():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
