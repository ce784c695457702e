// Package devurl derives the canonical URL of a running dev server from the address of its listening socket and the
// dev server settings that may override parts of it.
package devurl

import (
	"net"
	"strconv"
	"strings"
)

// A URL is a dev server origin of the form scheme://host:port.  It is derived once the listening socket is ready and
// never changes afterward.
type URL string

func (u URL) String() string { return string(u) }

// Family identifies the address family of a listening socket.
type Family int

const (
	IPv4 Family = iota
	IPv6
)

// ParseFamily converts the family tags reported by socket APIs into a Family.  The string "IPv6" and the legacy
// numeric tag 6 are the same family; anything else is treated as IPv4.
func ParseFamily(tag any) Family {
	switch v := tag.(type) {
	case Family:
		return v
	case string:
		if v == `IPv6` || v == `6` {
			return IPv6
		}
	case int:
		if v == 6 {
			return IPv6
		}
	case int64:
		if v == 6 {
			return IPv6
		}
	case float64:
		if v == 6 {
			return IPv6
		}
	}
	return IPv4
}

// An Address describes where a dev server is actually listening.
type Address struct {
	Host   string
	Port   int
	Family Family
}

// AddressOf extracts an Address from a listener address, such as the result of net.Listener.Addr.
func AddressOf(addr net.Addr) Address {
	switch a := addr.(type) {
	case *net.TCPAddr:
		return addressOfIP(a.IP, a.Port)
	case *net.UDPAddr:
		return addressOfIP(a.IP, a.Port)
	}
	host, port, err := net.SplitHostPort(addr.String())
	if err != nil {
		return Address{Host: addr.String()}
	}
	n, _ := strconv.Atoi(port)
	ret := Address{Host: host, Port: n}
	if strings.Contains(host, `:`) {
		ret.Family = IPv6
	}
	return ret
}

func addressOfIP(ip net.IP, port int) Address {
	if ip == nil || ip.IsUnspecified() {
		// a wildcard listener is reachable through the loopback interface.
		if ip != nil && ip.To4() == nil {
			return Address{Host: `::1`, Port: port, Family: IPv6}
		}
		return Address{Host: `localhost`, Port: port}
	}
	if ip.To4() != nil {
		return Address{Host: ip.String(), Port: port}
	}
	return Address{Host: ip.String(), Port: port, Family: IPv6}
}

// HMR describes overrides for the address that browsers use to reach the HMR transport, which may differ from the
// listening socket when the dev server sits behind a proxy.
type HMR struct {
	Protocol string `yaml:"protocol" json:"protocol"` // "ws" or "wss"
	Host     string `yaml:"host" json:"host"`
	Port     int    `yaml:"port" json:"port"` // the port browsers connect to
}

// ServerConfig is the resolved dev server configuration that influences the dev server URL.
type ServerConfig struct {
	HMR   *HMR   // nil when there are no HMR overrides
	HTTPS bool   // true when the dev server terminates TLS itself
	Host  string // explicit bind host, empty if the server was not given one
}

// Resolve returns the URL for a dev server listening at addr.  Each of the scheme, host and port is resolved on its
// own: an HMR override wins, then the general server setting, then what the socket reports.
func Resolve(addr Address, cfg ServerConfig) URL {
	return URL(scheme(cfg) + `://` + host(addr, cfg) + `:` + strconv.Itoa(port(addr, cfg)))
}

func scheme(cfg ServerConfig) string {
	if cfg.HMR != nil && cfg.HMR.Protocol != `` {
		if cfg.HMR.Protocol == `wss` {
			return `https`
		}
		return `http`
	}
	if cfg.HTTPS {
		return `https`
	}
	return `http`
}

func host(addr Address, cfg ServerConfig) string {
	switch {
	case cfg.HMR != nil && cfg.HMR.Host != ``:
		return cfg.HMR.Host
	case cfg.Host != ``:
		return cfg.Host
	case addr.Family == IPv6:
		return `[` + addr.Host + `]`
	default:
		return addr.Host
	}
}

func port(addr Address, cfg ServerConfig) int {
	if cfg.HMR != nil && cfg.HMR.Port != 0 {
		return cfg.HMR.Port
	}
	return addr.Port
}
