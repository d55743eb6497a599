package utils

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
)

func ipNet(s string) net.Addr {
	ip, n, _ := net.ParseCIDR(s)
	n.IP = ip
	return n
}

func TestLooksTunnelled(t *testing.T) {
	up := net.FlagUp
	tests := []struct {
		name   string
		ifaces []NetInterface
		want   bool
	}{
		{"plain lan", []NetInterface{{Name: "eth0", Flags: up, Addrs: []net.Addr{ipNet("192.168.1.20/24")}}}, false},
		{"wireguard", []NetInterface{{Name: "wg0", Flags: up}}, true},
		{"openvpn", []NetInterface{{Name: "TUN1", Flags: up}}, true},
		{"cgnat address", []NetInterface{{Name: "eth0", Flags: up, Addrs: []net.Addr{ipNet("100.100.1.2/10")}}}, true},
		{"just outside cgnat", []NetInterface{{Name: "eth0", Flags: up, Addrs: []net.Addr{ipNet("100.128.0.1/16")}}}, false},
		{"down tunnel", []NetInterface{{Name: "wg0"}}, false},
		{"loopback", []NetInterface{{Name: "tun-lo", Flags: up | net.FlagLoopback}}, false},
		{"ip addr", []NetInterface{{Name: "en0", Flags: up, Addrs: []net.Addr{&net.IPAddr{IP: net.ParseIP("100.64.0.1")}}}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, LooksTunnelled(tt.ifaces))
		})
	}
}
