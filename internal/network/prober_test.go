package network_test

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"yatrisync/internal/network"
)

func fakeInterfaces(ifaces map[string][]string, flags map[string]net.Flags) network.InterfaceProberOption {
	return network.WithInterfaceSource(
		func() ([]net.Interface, error) {
			var out []net.Interface
			for name := range ifaces {
				out = append(out, net.Interface{Name: name, Flags: flags[name]})
			}
			return out, nil
		},
		func(i net.Interface) ([]net.Addr, error) {
			var out []net.Addr
			for _, cidr := range ifaces[i.Name] {
				ip, ipnet, err := net.ParseCIDR(cidr)
				if err != nil {
					return nil, err
				}
				ipnet.IP = ip
				out = append(out, ipnet)
			}
			return out, nil
		},
	)
}

const up = net.FlagUp | net.FlagRunning

func TestInterfaceProber(t *testing.T) {
	tests := []struct {
		name      string
		ifaces    map[string][]string
		flags     map[string]net.Flags
		ignore    []string
		connected bool
		transport network.Transport
	}{
		{
			name:      "loopback only",
			ifaces:    map[string][]string{"lo": {"127.0.0.1/8"}},
			flags:     map[string]net.Flags{"lo": up | net.FlagLoopback},
			transport: network.TransportNone,
		},
		{
			name:      "wifi with address",
			ifaces:    map[string][]string{"wlan0": {"192.168.1.20/24"}},
			flags:     map[string]net.Flags{"wlan0": up},
			connected: true,
			transport: network.TransportWiFi,
		},
		{
			name:      "link-local only",
			ifaces:    map[string][]string{"eth0": {"fe80::1/64"}},
			flags:     map[string]net.Flags{"eth0": up},
			transport: network.TransportNone,
		},
		{
			name:      "interface down",
			ifaces:    map[string][]string{"eth0": {"10.0.0.2/24"}},
			flags:     map[string]net.Flags{"eth0": 0},
			transport: network.TransportNone,
		},
		{
			name:      "ethernet preferred over vpn",
			ifaces:    map[string][]string{"tun0": {"10.8.0.2/24"}, "enp3s0": {"10.0.0.2/24"}},
			flags:     map[string]net.Flags{"tun0": up, "enp3s0": up},
			connected: true,
			transport: network.TransportEthernet,
		},
		{
			name:      "ignored interface",
			ifaces:    map[string][]string{"docker0": {"172.17.0.1/16"}},
			flags:     map[string]net.Flags{"docker0": up},
			ignore:    []string{"docker0"},
			transport: network.TransportNone,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := network.NewInterfaceProber(fakeInterfaces(tt.ifaces, tt.flags), network.WithIgnoredInterfaces(tt.ignore...))
			state, err := p.Probe(context.Background())
			if err != nil {
				t.Fatalf("Probe: %v", err)
			}
			if state.Connected != tt.connected || state.Transport != tt.transport {
				t.Fatalf("got connected=%v transport=%s, want %v %s", state.Connected, state.Transport, tt.connected, tt.transport)
			}
		})
	}
}

func TestInterfaceProberReachability(t *testing.T) {
	healthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodHead {
			t.Errorf("expected HEAD, got %s", r.Method)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer healthy.Close()
	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer broken.Close()

	ifaces := fakeInterfaces(map[string][]string{"eth0": {"10.0.0.2/24"}}, map[string]net.Flags{"eth0": up})

	ok := network.NewInterfaceProber(ifaces, network.WithReachabilityProbe(healthy.URL, time.Second))
	if state, err := ok.Probe(context.Background()); err != nil || !state.Connected {
		t.Fatalf("expected reachable, got %+v err=%v", state, err)
	}

	bad := network.NewInterfaceProber(ifaces, network.WithReachabilityProbe(broken.URL, time.Second))
	if state, err := bad.Probe(context.Background()); err == nil || state.Connected {
		t.Fatalf("expected unreachable, got %+v err=%v", state, err)
	}
}

func TestClassifyInterface(t *testing.T) {
	cases := map[string]network.Transport{
		"wlp2s0": network.TransportWiFi,
		"eth0":   network.TransportEthernet,
		"enp3s0": network.TransportEthernet,
		"wwan0":  network.TransportCellular,
		"rmnet0": network.TransportCellular,
		"wg0":    network.TransportVPN,
		"br0":    network.TransportOther,
	}
	for name, want := range cases {
		if got := network.ClassifyInterface(name); got != want {
			t.Errorf("ClassifyInterface(%q) = %s, want %s", name, got, want)
		}
	}
}
