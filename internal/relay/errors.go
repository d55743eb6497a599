package relay

import "errors"

var (
	ErrInvalidRoomID = errors.New("missing or invalid room id")
	ErrInvalidRole   = errors.New("missing or invalid role")
	ErrEmptyPayload  = errors.New("empty payload")
	ErrQueueFull     = errors.New("room queue is full")
	ErrStreamClosed  = errors.New("stream closed")
	ErrSlowConsumer  = errors.New("stream outbox full")
)
