package network

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"slices"
	"sort"
	"time"
)

// Prober reports current connectivity.
type Prober interface {
	Probe(ctx context.Context) (State, error)
}

// ProberFunc adapts a function to Prober.
type ProberFunc func(ctx context.Context) (State, error)

func (f ProberFunc) Probe(ctx context.Context) (State, error) { return f(ctx) }

// InterfaceProber treats the host as connected when a non-loopback interface
// is up with a global unicast address and, if a probe URL is set, that URL
// answers an HTTP HEAD.
type InterfaceProber struct {
	ignore   []string
	probeURL string
	client   *http.Client

	interfaces func() ([]net.Interface, error)
	addrs      func(net.Interface) ([]net.Addr, error)
}

// InterfaceProberOption configures an InterfaceProber.
type InterfaceProberOption func(*InterfaceProber)

// WithIgnoredInterfaces skips interfaces by exact name.
func WithIgnoredInterfaces(names ...string) InterfaceProberOption {
	return func(p *InterfaceProber) { p.ignore = append(p.ignore, names...) }
}

// WithReachabilityProbe requires url to answer before reporting connected.
func WithReachabilityProbe(url string, timeout time.Duration) InterfaceProberOption {
	return func(p *InterfaceProber) {
		p.probeURL = url
		if timeout <= 0 {
			timeout = 5 * time.Second
		}
		p.client = &http.Client{Timeout: timeout}
	}
}

// WithInterfaceSource replaces interface enumeration. Intended for tests.
func WithInterfaceSource(list func() ([]net.Interface, error), addrs func(net.Interface) ([]net.Addr, error)) InterfaceProberOption {
	return func(p *InterfaceProber) {
		p.interfaces = list
		p.addrs = addrs
	}
}

// NewInterfaceProber builds the default prober.
func NewInterfaceProber(opts ...InterfaceProberOption) *InterfaceProber {
	p := &InterfaceProber{
		interfaces: net.Interfaces,
		addrs:      func(i net.Interface) ([]net.Addr, error) { return i.Addrs() },
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Probe implements Prober.
func (p *InterfaceProber) Probe(ctx context.Context) (State, error) {
	state := State{Transport: TransportNone, CheckedAt: time.Now()}

	ifaces, err := p.interfaces()
	if err != nil {
		return state, fmt.Errorf("list interfaces: %w", err)
	}
	for _, iface := range ifaces {
		if !p.usable(iface) {
			continue
		}
		state.Interfaces = append(state.Interfaces, iface.Name)
	}
	sort.Strings(state.Interfaces)
	if len(state.Interfaces) == 0 {
		return state, nil
	}
	state.Transport = preferredTransport(state.Interfaces)

	if p.probeURL != "" {
		if err := p.reachable(ctx); err != nil {
			return state, err
		}
	}
	state.Connected = true
	return state, nil
}

func (p *InterfaceProber) usable(iface net.Interface) bool {
	if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
		return false
	}
	if iface.Flags&net.FlagRunning == 0 {
		return false
	}
	if slices.Contains(p.ignore, iface.Name) {
		return false
	}
	addrs, err := p.addrs(iface)
	if err != nil {
		return false
	}
	for _, addr := range addrs {
		var ip net.IP
		switch v := addr.(type) {
		case *net.IPNet:
			ip = v.IP
		case *net.IPAddr:
			ip = v.IP
		}
		if ip != nil && ip.IsGlobalUnicast() {
			return true
		}
	}
	return false
}

func (p *InterfaceProber) reachable(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.probeURL, nil)
	if err != nil {
		return fmt.Errorf("build reachability probe: %w", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("reachability probe: %w", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode >= 500 {
		return fmt.Errorf("reachability probe: status %s", resp.Status)
	}
	return nil
}
