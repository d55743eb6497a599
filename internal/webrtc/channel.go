// Package webrtc runs one side of a transfer: it joins the room through the
// relay, negotiates the peer connection and moves the file over the data
// channel.
package webrtc

import (
	"sync"

	pion "github.com/pion/webrtc/v4"
)

// channelEvents turns data channel callbacks into channels the session
// loops can select on.
type channelEvents struct {
	opened chan struct{}
	closed chan struct{}

	openOnce  sync.Once
	closeOnce sync.Once
}

func watchChannel(dc *pion.DataChannel, onMessage func(pion.DataChannelMessage)) *channelEvents {
	ev := &channelEvents{
		opened: make(chan struct{}),
		closed: make(chan struct{}),
	}
	dc.OnOpen(func() {
		ev.openOnce.Do(func() { close(ev.opened) })
	})
	dc.OnClose(func() {
		ev.closeOnce.Do(func() { close(ev.closed) })
	})
	dc.OnError(func(error) {
		ev.closeOnce.Do(func() { close(ev.closed) })
	})
	if onMessage != nil {
		dc.OnMessage(onMessage)
	}
	return ev
}

// firstError keeps the first error reported from a callback goroutine.
type firstError struct {
	ch chan error
}

func newFirstError() *firstError {
	return &firstError{ch: make(chan error, 1)}
}

func (f *firstError) report(err error) {
	select {
	case f.ch <- err:
	default:
	}
}
