package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/vmihailenco/msgpack/v5"
)

// MsgpackContentType is served when the client asks for it in Accept.
const MsgpackContentType = "application/x-msgpack"

type errorResponse struct {
	Error string `json:"error" msgpack:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func wantsMsgpack(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), MsgpackContentType)
}

// writeNegotiated encodes v as msgpack or JSON depending on Accept.
func writeNegotiated(w http.ResponseWriter, r *http.Request, v any) {
	if !wantsMsgpack(r) {
		writeJSON(w, http.StatusOK, v)
		return
	}
	data, err := msgpack.Marshal(v)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "encode response")
		return
	}
	w.Header().Set("Content-Type", MsgpackContentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
