package utils

import (
	"net"
	"strings"
)

// cgnatBlock is the carrier-grade NAT range (100.64.0.0/10). Cloudflare WARP,
// Tailscale and mobile carriers hand out addresses from it.
var cgnatBlock = &net.IPNet{IP: net.IPv4(100, 64, 0, 0), Mask: net.CIDRMask(10, 32)}

// tunnelNames are interface name fragments used by VPN software.
var tunnelNames = []string{"tun", "tap", "wg", "ppp", "warp"}

// NetInterface is the part of a network interface the relay heuristic
// inspects.
type NetInterface struct {
	Name  string
	Flags net.Flags
	Addrs []net.Addr
}

// ShouldForceRelay checks if the system is likely behind a restrictive VPN or CGNAT
// and returns true if we should force TURN usage.
func ShouldForceRelay() bool {
	ifaces, err := net.Interfaces()
	if err != nil {
		return false
	}

	list := make([]NetInterface, 0, len(ifaces))
	for _, iface := range ifaces {
		addrs, _ := iface.Addrs()
		list = append(list, NetInterface{Name: iface.Name, Flags: iface.Flags, Addrs: addrs})
	}
	return LooksTunnelled(list)
}

// LooksTunnelled reports whether any live, non-loopback interface is named
// like a tunnel or carries a CGNAT address.
func LooksTunnelled(ifaces []NetInterface) bool {
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}

		name := strings.ToLower(iface.Name)
		for _, frag := range tunnelNames {
			if strings.Contains(name, frag) {
				return true
			}
		}

		for _, addr := range iface.Addrs {
			var ip net.IP
			switch v := addr.(type) {
			case *net.IPNet:
				ip = v.IP
			case *net.IPAddr:
				ip = v.IP
			}
			if ip != nil && cgnatBlock.Contains(ip) {
				return true
			}
		}
	}
	return false
}
