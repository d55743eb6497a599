package peer

import (
	"github.com/pion/webrtc/v4"

	"github.com/abhayk2/localDrop/internal/config"
	"github.com/abhayk2/localDrop/internal/utils"
)

// relayHeuristic is swapped out by tests.
var relayHeuristic = utils.ShouldForceRelay

// ICEConfiguration builds the pion configuration from cfg: STUN, optional
// TURN, and a relay-only policy when forced or when the host looks like it
// sits behind a VPN or CGNAT. Without TURN servers relay-only would never
// connect, so the policy then stays "all".
func ICEConfiguration(cfg *config.Config) webrtc.Configuration {
	var servers []webrtc.ICEServer
	if stun := cfg.GetSTUNServers(); stun != nil {
		servers = append(servers, webrtc.ICEServer{URLs: stun})
	}

	turnServers := cfg.GetTURNServers()
	if turnServers != nil {
		username, password := cfg.GetTURNCredentials()
		servers = append(servers, webrtc.ICEServer{
			URLs:       turnServers,
			Username:   username,
			Credential: password,
		})
	}

	policy := webrtc.ICETransportPolicyAll
	if turnServers != nil && (cfg.ForceRelay || relayHeuristic()) {
		policy = webrtc.ICETransportPolicyRelay
	}

	return webrtc.Configuration{
		ICEServers:         servers,
		ICETransportPolicy: policy,
	}
}
