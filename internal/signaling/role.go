package signaling

import (
	"fmt"
	"strings"
)

// Role identifies which slot of a room a participant occupies.
type Role string

const (
	RoleSender   Role = "sender"
	RoleReceiver Role = "receiver"
)

// ParseRole accepts "sender" or "receiver" in any case.
func ParseRole(s string) (Role, error) {
	switch r := Role(strings.ToLower(strings.TrimSpace(s))); r {
	case RoleSender, RoleReceiver:
		return r, nil
	default:
		return "", fmt.Errorf("unknown role %q", s)
	}
}

// Opposite returns the role on the other side of the room.
func (r Role) Opposite() Role {
	if r == RoleSender {
		return RoleReceiver
	}
	return RoleSender
}

func (r Role) String() string { return string(r) }
