package domain

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/dkeye/Relay/internal/addr"
)

// EndpointOptions fill in what a bare address literal leaves out.
type EndpointOptions struct {
	Scheme         string
	Port           int
	Path           string
	AllowHostnames bool
}

func DefaultEndpointOptions() EndpointOptions {
	return EndpointOptions{Scheme: "ws", Port: 8080, Path: "/ws"}
}

// Endpoint is an immutable, validated connection target. The zero value is
// not valid and is never produced by NewEndpoint.
type Endpoint struct {
	raw            string
	host           string
	url            string
	allowHostnames bool
}

// NewEndpoint accepts either a bare address literal or a ws/wss URI whose
// host is one. Anything else fails with ErrInvalidAddress.
func NewEndpoint(raw string, opts EndpointOptions) (Endpoint, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Endpoint{}, fmt.Errorf("%w: empty", ErrInvalidAddress)
	}
	check := addr.IsValid
	if opts.AllowHostnames {
		check = addr.IsValidHost
	}

	if strings.Contains(raw, "://") {
		u, err := url.Parse(raw)
		if err != nil {
			return Endpoint{}, fmt.Errorf("%w: %q: %v", ErrInvalidAddress, raw, err)
		}
		if u.Scheme != "ws" && u.Scheme != "wss" {
			return Endpoint{}, fmt.Errorf("%w: %q: scheme must be ws or wss", ErrInvalidAddress, raw)
		}
		host := u.Hostname()
		if !check(host) {
			return Endpoint{}, fmt.Errorf("%w: %q", ErrInvalidAddress, raw)
		}
		if p := u.Port(); p != "" {
			if n, err := strconv.Atoi(p); err != nil || n < 1 || n > 65535 {
				return Endpoint{}, fmt.Errorf("%w: %q: bad port", ErrInvalidAddress, raw)
			}
		}
		return Endpoint{raw: raw, host: host, url: u.String(), allowHostnames: opts.AllowHostnames}, nil
	}

	if !check(raw) {
		return Endpoint{}, fmt.Errorf("%w: %q", ErrInvalidAddress, raw)
	}
	if opts.Scheme == "" {
		opts.Scheme = "ws"
	}
	u := url.URL{
		Scheme: opts.Scheme,
		Host:   net.JoinHostPort(raw, strconv.Itoa(opts.Port)),
		Path:   opts.Path,
	}
	return Endpoint{raw: raw, host: raw, url: u.String(), allowHostnames: opts.AllowHostnames}, nil
}

func (e Endpoint) Raw() string  { return e.raw }
func (e Endpoint) Host() string { return e.host }
func (e Endpoint) URL() string  { return e.url }

// Valid re-runs address validation on the stored host.
func (e Endpoint) Valid() bool {
	if e.url == "" {
		return false
	}
	if e.allowHostnames {
		return addr.IsValidHost(e.host)
	}
	return addr.IsValid(e.host)
}

func (e Endpoint) String() string { return e.url }
