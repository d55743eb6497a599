package peer

import (
	"github.com/pion/webrtc/v4"
)

const maxPendingCandidates = 128

// candidateBuffer holds remote candidates that arrive before the remote
// description. Past its limit new candidates are dropped.
type candidateBuffer struct {
	limit   int
	items   []webrtc.ICECandidateInit
	dropped int
}

func newCandidateBuffer(limit int) *candidateBuffer {
	return &candidateBuffer{limit: limit}
}

func (b *candidateBuffer) push(c webrtc.ICECandidateInit) bool {
	if len(b.items) >= b.limit {
		b.dropped++
		return false
	}
	b.items = append(b.items, c)
	return true
}

// drain returns the buffered candidates in arrival order and empties the
// buffer.
func (b *candidateBuffer) drain() []webrtc.ICECandidateInit {
	out := b.items
	b.items = nil
	return out
}

func (b *candidateBuffer) len() int { return len(b.items) }
