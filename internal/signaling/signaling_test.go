package signaling

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRole(t *testing.T) {
	r, err := ParseRole(" Sender ")
	require.NoError(t, err)
	assert.Equal(t, RoleSender, r)
	assert.Equal(t, RoleReceiver, r.Opposite())
	assert.Equal(t, RoleSender, RoleReceiver.Opposite())

	_, err = ParseRole("spectator")
	assert.Error(t, err)
}

func TestMessageWireFormat(t *testing.T) {
	offer := NewOffer(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0"})
	data, err := offer.Encode()
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"offer","sdp":{"type":"offer","sdp":"v=0"}}`, string(data))

	mid := "0"
	cand := NewCandidate(webrtc.ICECandidateInit{Candidate: "candidate:1 1 udp 1 192.0.2.1 5000 typ host", SDPMid: &mid})
	data, err = cand.Encode()
	require.NoError(t, err)

	back, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, TypeICECandidate, back.Type)
	assert.Equal(t, cand.Candidate.Candidate, back.Candidate.Candidate)

	_, err = Decode([]byte(`{"sdp":{}}`))
	assert.Error(t, err)
	_, err = Decode([]byte(`not json`))
	assert.Error(t, err)
}

func TestSSEClient(t *testing.T) {
	posted := make(chan sendRequest, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			assert.Equal(t, "text/event-stream", r.Header.Get("Accept"))
			assert.Equal(t, "ROOM42", r.URL.Query().Get("roomId"))
			assert.Equal(t, "receiver", r.URL.Query().Get("type"))

			w.Header().Set("Content-Type", "text/event-stream")
			fmt.Fprint(w, ": ping\n\n")
			fmt.Fprint(w, "data: {\"type\":\"peer-connected\"}\n\n")
			fmt.Fprint(w, "data: garbage\n\n")
			fmt.Fprint(w, "data: {\"type\":\"offer\",\"sdp\":{\"type\":\"offer\",\"sdp\":\"v=0\"}}\n\n")
			w.(http.Flusher).Flush()

		case http.MethodPost:
			var req sendRequest
			body, _ := io.ReadAll(r.Body)
			require.NoError(t, json.Unmarshal(body, &req))
			posted <- req
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{"success":true,"delivered":false}`)
		}
	}))
	defer srv.Close()

	c := NewSSEClient(Endpoint{BaseURL: srv.URL + "/", RoomID: "ROOM42", Role: RoleReceiver}, srv.Client(), nil)
	require.NoError(t, c.Connect(context.Background()))
	defer c.Close()

	first := <-c.Incoming()
	assert.Equal(t, TypePeerConnected, first.Type)
	second := <-c.Incoming()
	assert.Equal(t, TypeOffer, second.Type)
	assert.Equal(t, "v=0", second.SDP.SDP)

	_, open := <-c.Incoming()
	assert.False(t, open, "stream ends with the response")
	assert.ErrorIs(t, c.Err(), ErrStreamEnded)

	require.NoError(t, c.Send(context.Background(), NewAnswer(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "v=0"})))
	req := <-posted
	assert.Equal(t, "ROOM42", req.RoomID)
	assert.Equal(t, RoleReceiver, req.Type)
	assert.Equal(t, TypeAnswer, req.Data.Type)
}

func TestSSEClientRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":"Missing roomId or type"}`)
	}))
	defer srv.Close()

	c := NewSSEClient(Endpoint{BaseURL: srv.URL, RoomID: "", Role: RoleSender}, srv.Client(), nil)
	err := c.Connect(context.Background())
	assert.ErrorContains(t, err, "Missing roomId or type")
}

func TestWSClientRoundTrip(t *testing.T) {
	upgrader := websocket.Upgrader{}
	got := make(chan *Message, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/ws", r.URL.Path)
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()

		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"peer-connected"}`)))

		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		msg, err := Decode(data)
		require.NoError(t, err)
		got <- msg
		// wait for the client close frame
		_, _, _ = conn.ReadMessage()
	}))
	defer srv.Close()

	c := NewWSClient(Endpoint{BaseURL: srv.URL, RoomID: "ABC", Role: RoleSender}, nil, nil)
	require.NoError(t, c.Connect(context.Background()))

	h := NewHandler(c, nil)
	go h.Start()

	select {
	case <-h.PeerConnected:
	case <-time.After(2 * time.Second):
		t.Fatal("no peer-connected")
	}

	require.NoError(t, c.Send(context.Background(), NewOffer(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0"})))
	select {
	case msg := <-got:
		assert.Equal(t, TypeOffer, msg.Type)
	case <-time.After(2 * time.Second):
		t.Fatal("relay never saw the offer")
	}

	require.NoError(t, c.Close())
	assert.NoError(t, c.Err())
	assert.ErrorIs(t, c.Send(context.Background(), &Message{Type: TypeAnswer}), ErrClosed)
}

type fakeTransport struct {
	in  chan *Message
	err error
}

func (f *fakeTransport) Connect(context.Context) error { return nil }
func (f *fakeTransport) Send(context.Context, *Message) error { return nil }
func (f *fakeTransport) Incoming() <-chan *Message { return f.in }
func (f *fakeTransport) Err() error { return f.err }
func (f *fakeTransport) Close() error { return nil }

func TestHandlerRouting(t *testing.T) {
	ft := &fakeTransport{in: make(chan *Message, 8), err: ErrStreamEnded}
	ft.in <- &Message{Type: TypePeerConnected}
	ft.in <- &Message{Type: TypeOffer} // no sdp, dropped
	ft.in <- &Message{Type: "hello"}
	ft.in <- &Message{Type: TypeAnswer, SDP: &webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "v=0"}}
	ft.in <- &Message{Type: TypePeerDisconnected}
	close(ft.in)

	h := NewHandler(ft, nil)
	h.Start()

	assert.Len(t, h.PeerConnected, 1)
	assert.Len(t, h.PeerDisconnected, 1)
	require.Len(t, h.Signal, 1)
	assert.Equal(t, TypeAnswer, (<-h.Signal).Type)
	assert.ErrorIs(t, <-h.Lost, ErrStreamEnded)
}
