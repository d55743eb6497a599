// Package peer owns the WebRTC connection of one participant: offer/answer
// negotiation, candidate trickling and connection health.
package peer

import (
	"context"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"
	"go.uber.org/zap"

	"github.com/abhayk2/localDrop/internal/config"
	"github.com/abhayk2/localDrop/internal/signaling"
	"github.com/abhayk2/localDrop/internal/transfer"
)

// ChannelLabel names the single data channel a transfer uses.
const ChannelLabel = "file-transfer"

// Signaler delivers messages to the other participant.
type Signaler interface {
	Send(ctx context.Context, msg *signaling.Message) error
}

// Controller wraps one *webrtc.PeerConnection. Only the sender creates the
// data channel and the offer; the receiver answers exactly once.
type Controller struct {
	ctx      context.Context
	pc       *webrtc.PeerConnection
	role     signaling.Role
	signaler Signaler
	logger   *zap.Logger

	mu        sync.Mutex
	neg       *Negotiation
	remoteSet bool
	pending   *candidateBuffer
	health    HealthState
	failed    bool
	onChannel func(*webrtc.DataChannel)
	onFailure func(error)
	onHealth  func(HealthState)
}

// New creates the peer connection. Local candidates are trickled through
// sig for as long as ctx lives.
func New(ctx context.Context, cfg *config.Config, role signaling.Role, sig Signaler, logger *zap.Logger) (*Controller, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	pc, err := webrtc.NewPeerConnection(ICEConfiguration(cfg))
	if err != nil {
		return nil, transfer.NewError("create peer connection", err)
	}

	c := &Controller{
		ctx:      ctx,
		pc:       pc,
		role:     role,
		signaler: sig,
		logger:   logger.With(zap.Stringer("role", role)),
		neg:      NewNegotiation(role),
		pending:  newCandidateBuffer(maxPendingCandidates),
	}

	pc.OnICECandidate(c.handleLocalCandidate)
	pc.OnConnectionStateChange(c.handleStateChange)
	pc.OnDataChannel(c.handleDataChannel)
	return c, nil
}

// OnDataChannel registers f for the receiver's incoming file channel.
func (c *Controller) OnDataChannel(f func(*webrtc.DataChannel)) {
	c.mu.Lock()
	c.onChannel = f
	c.mu.Unlock()
}

// OnFailure registers f, called at most once when the connection fails or
// drops.
func (c *Controller) OnFailure(f func(error)) {
	c.mu.Lock()
	c.onFailure = f
	c.mu.Unlock()
}

func (c *Controller) OnHealth(f func(HealthState)) {
	c.mu.Lock()
	c.onHealth = f
	c.mu.Unlock()
}

func (c *Controller) Health() HealthState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.health
}

func (c *Controller) NegotiationState() NegotiationState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.neg.State()
}

// PendingCandidates is the number of remote candidates waiting for the
// remote description.
func (c *Controller) PendingCandidates() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending.len()
}

// CreateChannel opens the ordered, reliable file channel. Sender only.
func (c *Controller) CreateChannel() (*webrtc.DataChannel, error) {
	if c.role != signaling.RoleSender {
		return nil, fmt.Errorf("%w: only the sender creates the data channel", ErrInvalidNegotiation)
	}
	ordered := true
	dc, err := c.pc.CreateDataChannel(ChannelLabel, &webrtc.DataChannelInit{Ordered: &ordered})
	if err != nil {
		return nil, transfer.NewError("create data channel", err)
	}
	return dc, nil
}

// Offer creates the local offer and sends it. Sender only, once.
func (c *Controller) Offer(ctx context.Context) error {
	c.mu.Lock()
	to, err := c.neg.next(stepLocalOffer)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	offer, err := c.pc.CreateOffer(nil)
	if err != nil {
		c.mu.Unlock()
		return transfer.NewError("create offer", err)
	}
	if err := c.pc.SetLocalDescription(offer); err != nil {
		c.mu.Unlock()
		return transfer.NewError("set local description", err)
	}
	c.neg.state = to
	local := *c.pc.LocalDescription()
	c.mu.Unlock()

	c.logger.Debug("sending offer")
	if err := c.signaler.Send(ctx, signaling.NewOffer(local)); err != nil {
		return transfer.WrapError("send offer", transfer.ErrSignalingError, err.Error())
	}
	return nil
}

// HandleSignal applies an offer, answer or candidate from the other side.
func (c *Controller) HandleSignal(ctx context.Context, msg *signaling.Message) error {
	switch msg.Type {
	case signaling.TypeOffer:
		if msg.SDP == nil {
			return fmt.Errorf("%w: offer without sdp", ErrInvalidNegotiation)
		}
		return c.acceptOffer(ctx, *msg.SDP)
	case signaling.TypeAnswer:
		if msg.SDP == nil {
			return fmt.Errorf("%w: answer without sdp", ErrInvalidNegotiation)
		}
		return c.acceptAnswer(*msg.SDP)
	case signaling.TypeICECandidate:
		if msg.Candidate != nil {
			c.addCandidate(*msg.Candidate)
		}
		return nil
	default:
		c.logger.Debug("ignoring signal", zap.String("type", msg.Type))
		return nil
	}
}

func (c *Controller) acceptOffer(ctx context.Context, offer webrtc.SessionDescription) error {
	c.mu.Lock()
	to, err := c.neg.next(stepRemoteOffer)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	if err := c.pc.SetRemoteDescription(offer); err != nil {
		c.mu.Unlock()
		return transfer.NewError("set remote description", err)
	}
	answer, err := c.pc.CreateAnswer(nil)
	if err != nil {
		c.mu.Unlock()
		return transfer.NewError("create answer", err)
	}
	if err := c.pc.SetLocalDescription(answer); err != nil {
		c.mu.Unlock()
		return transfer.NewError("set local description", err)
	}
	c.neg.state = to
	local := *c.pc.LocalDescription()
	c.remoteSet = true
	c.flushPendingLocked()
	c.mu.Unlock()

	c.logger.Debug("sending answer")
	if err := c.signaler.Send(ctx, signaling.NewAnswer(local)); err != nil {
		return transfer.WrapError("send answer", transfer.ErrSignalingError, err.Error())
	}
	return nil
}

func (c *Controller) acceptAnswer(answer webrtc.SessionDescription) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	to, err := c.neg.next(stepRemoteAnswer)
	if err != nil {
		return err
	}
	if err := c.pc.SetRemoteDescription(answer); err != nil {
		return transfer.NewError("set remote description", err)
	}
	c.neg.state = to
	c.remoteSet = true
	c.flushPendingLocked()
	return nil
}

func (c *Controller) addCandidate(cand webrtc.ICECandidateInit) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.remoteSet {
		if !c.pending.push(cand) {
			c.logger.Warn("dropping early candidate, buffer full")
		}
		return
	}
	if err := c.pc.AddICECandidate(cand); err != nil {
		c.logger.Warn("failed to add candidate", zap.Error(err))
	}
}

func (c *Controller) flushPendingLocked() {
	for _, cand := range c.pending.drain() {
		if err := c.pc.AddICECandidate(cand); err != nil {
			c.logger.Warn("failed to add buffered candidate", zap.Error(err))
		}
	}
}

func (c *Controller) handleLocalCandidate(cand *webrtc.ICECandidate) {
	if cand == nil {
		c.logger.Debug("candidate gathering complete")
		return
	}
	if err := c.signaler.Send(c.ctx, signaling.NewCandidate(cand.ToJSON())); err != nil {
		c.logger.Debug("failed to trickle candidate", zap.Error(err))
	}
}

func (c *Controller) handleDataChannel(dc *webrtc.DataChannel) {
	if dc.Label() != ChannelLabel {
		c.logger.Warn("ignoring unexpected data channel", zap.String("label", dc.Label()))
		return
	}
	c.mu.Lock()
	f := c.onChannel
	c.mu.Unlock()
	if f != nil {
		f(dc)
	}
}

func (c *Controller) handleStateChange(s webrtc.PeerConnectionState) {
	c.setHealth(healthFrom(s))
}

func (c *Controller) setHealth(h HealthState) {
	c.mu.Lock()
	c.health = h
	onHealth := c.onHealth
	var onFailure func(error)
	if h.Failure() && !c.failed {
		c.failed = true
		onFailure = c.onFailure
	}
	c.mu.Unlock()

	c.logger.Debug("connection state", zap.Stringer("state", h))
	if onHealth != nil {
		onHealth(h)
	}
	if onFailure != nil {
		onFailure(transfer.WrapError("peer connection", transfer.ErrConnectionFailed, h.String()))
	}
}

// Close tears the connection down.
func (c *Controller) Close() error {
	return c.pc.Close()
}
