package peer

import (
	"errors"
	"fmt"

	"github.com/abhayk2/localDrop/internal/signaling"
)

// NegotiationState follows the offer/answer exchange of one connection.
type NegotiationState int

const (
	NegotiationNew NegotiationState = iota
	NegotiationHaveLocalOffer
	NegotiationStable
)

func (s NegotiationState) String() string {
	switch s {
	case NegotiationNew:
		return "new"
	case NegotiationHaveLocalOffer:
		return "have-local-offer"
	case NegotiationStable:
		return "stable"
	default:
		return fmt.Sprintf("NegotiationState(%d)", int(s))
	}
}

var ErrInvalidNegotiation = errors.New("invalid negotiation step")

// Negotiation allows exactly one exchange per connection. The sender offers
// and applies the answer; the receiver applies the offer and answers once.
type Negotiation struct {
	role  signaling.Role
	state NegotiationState
}

func NewNegotiation(role signaling.Role) *Negotiation {
	return &Negotiation{role: role}
}

func (n *Negotiation) State() NegotiationState { return n.state }

type negotiationStep int

const (
	stepLocalOffer negotiationStep = iota
	stepRemoteAnswer
	stepRemoteOffer
)

func (s negotiationStep) String() string {
	switch s {
	case stepLocalOffer:
		return "local offer"
	case stepRemoteAnswer:
		return "remote answer"
	default:
		return "remote offer"
	}
}

// next reports where step leads without moving n. Callers commit the
// returned state once the matching description has been applied.
func (n *Negotiation) next(step negotiationStep) (NegotiationState, error) {
	var role signaling.Role
	var from, to NegotiationState
	switch step {
	case stepLocalOffer:
		role, from, to = signaling.RoleSender, NegotiationNew, NegotiationHaveLocalOffer
	case stepRemoteAnswer:
		role, from, to = signaling.RoleSender, NegotiationHaveLocalOffer, NegotiationStable
	default:
		role, from, to = signaling.RoleReceiver, NegotiationNew, NegotiationStable
	}
	if n.role != role || n.state != from {
		return n.state, n.invalid(step.String())
	}
	return to, nil
}

func (n *Negotiation) apply(step negotiationStep) error {
	to, err := n.next(step)
	if err != nil {
		return err
	}
	n.state = to
	return nil
}

// LocalOffer moves the offerer from new to have-local-offer.
func (n *Negotiation) LocalOffer() error { return n.apply(stepLocalOffer) }

// RemoteAnswer completes the offerer's exchange.
func (n *Negotiation) RemoteAnswer() error { return n.apply(stepRemoteAnswer) }

// RemoteOffer completes the answerer's exchange. A second offer is rejected.
func (n *Negotiation) RemoteOffer() error { return n.apply(stepRemoteOffer) }

func (n *Negotiation) invalid(step string) error {
	return fmt.Errorf("%w: %s as %s in state %s", ErrInvalidNegotiation, step, n.role, n.state)
}
