package network

import (
	"slices"
	"strings"
	"time"
)

// Transport classifies the interface carrying connectivity.
type Transport string

const (
	TransportNone     Transport = "none"
	TransportWiFi     Transport = "wifi"
	TransportEthernet Transport = "ethernet"
	TransportCellular Transport = "cellular"
	TransportVPN      Transport = "vpn"
	TransportOther    Transport = "other"
	TransportUnknown  Transport = "unknown"
)

// State is a connectivity snapshot.
type State struct {
	Connected bool      `json:"connected"`
	Transport Transport `json:"transport"`
	// Interfaces lists the usable interfaces found by the last probe.
	Interfaces []string  `json:"interfaces,omitempty"`
	CheckedAt  time.Time `json:"checked_at"`
}

// Changed reports whether next differs from s in a way subscribers care about.
func (s State) Changed(next State) bool {
	return s.Connected != next.Connected || s.Transport != next.Transport
}

func (s State) clone() State {
	s.Interfaces = slices.Clone(s.Interfaces)
	return s
}

// ClassifyInterface guesses the transport from a Linux interface name.
func ClassifyInterface(name string) Transport {
	n := strings.ToLower(name)
	switch {
	case strings.HasPrefix(n, "wl"), strings.HasPrefix(n, "wifi"), strings.HasPrefix(n, "ath"):
		return TransportWiFi
	case strings.HasPrefix(n, "en"), strings.HasPrefix(n, "eth"):
		return TransportEthernet
	case strings.HasPrefix(n, "ww"), strings.HasPrefix(n, "rmnet"), strings.HasPrefix(n, "ccmni"), strings.HasPrefix(n, "usb"):
		return TransportCellular
	case strings.HasPrefix(n, "tun"), strings.HasPrefix(n, "tap"), strings.HasPrefix(n, "wg"), strings.HasPrefix(n, "ppp"):
		return TransportVPN
	default:
		return TransportOther
	}
}

// preferredTransport picks the transport that best describes a set of
// interfaces. A physical link beats a tunnel riding on top of it.
func preferredTransport(names []string) Transport {
	if len(names) == 0 {
		return TransportNone
	}
	rank := map[Transport]int{
		TransportEthernet: 0,
		TransportWiFi:     1,
		TransportCellular: 2,
		TransportVPN:      3,
		TransportOther:    4,
	}
	best := TransportOther
	for _, name := range names {
		if t := ClassifyInterface(name); rank[t] < rank[best] {
			best = t
		}
	}
	return best
}
