package discovery

import (
	"net"
	"testing"

	"github.com/grandcat/zeroconf"
)

func TestFromEntry(t *testing.T) {
	tests := []struct {
		name     string
		entry    *zeroconf.ServiceEntry
		wantHost string
		wantOK   bool
	}{
		{
			name:     "ipv4 preferred",
			entry:    entry("mosquitto", "pi.local.", 1883, []net.IP{net.ParseIP("192.168.1.126")}, []net.IP{net.ParseIP("fe80::1")}),
			wantHost: "192.168.1.126",
			wantOK:   true,
		},
		{
			name:     "ipv6 only",
			entry:    entry("mosquitto", "pi.local.", 1883, nil, []net.IP{net.ParseIP("fe80::1")}),
			wantHost: "fe80::1",
			wantOK:   true,
		},
		{
			name:     "hostname fallback",
			entry:    entry("mosquitto", "pi.local.", 1883, nil, nil),
			wantHost: "pi.local",
			wantOK:   true,
		},
		{name: "no port", entry: entry("x", "pi.local.", 0, nil, nil)},
		{name: "no address", entry: entry("x", "", 1883, nil, nil)},
		{name: "nil"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, ok := fromEntry(tt.entry)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && (b.Host != tt.wantHost || b.Port != 1883) {
				t.Fatalf("broker = %+v, want host %s port 1883", b, tt.wantHost)
			}
		})
	}
}

func entry(instance, host string, port int, v4, v6 []net.IP) *zeroconf.ServiceEntry {
	e := zeroconf.NewServiceEntry(instance, Service, Domain)
	e.HostName = host
	e.Port = port
	e.AddrIPv4 = v4
	e.AddrIPv6 = v6
	return e
}
