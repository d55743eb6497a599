package server

import (
	"net/http"

	"github.com/abhayk2/localDrop/internal/relay"
)

// RoomsResponse is the body of GET /api/rooms.
type RoomsResponse struct {
	Stats relay.Stats      `json:"stats" msgpack:"stats"`
	Rooms []relay.RoomInfo `json:"rooms" msgpack:"rooms"`
}

func (s *Server) handleRooms(w http.ResponseWriter, r *http.Request) {
	writeNegotiated(w, r, RoomsResponse{
		Stats: s.hub.Stats(),
		Rooms: s.hub.Snapshot(),
	})
}
