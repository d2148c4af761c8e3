package discovery

import (
	"context"
	"net"
)

const (
	// DefaultServiceType is the mDNS service type the courier announces.
	DefaultServiceType = "_udp-courier._udp"
	DefaultDomain      = "local"
)

// ServiceInfo describes one announced courier endpoint.
type ServiceInfo struct {
	Name   string // instance name
	Type   string // service type, e.g. "_udp-courier._udp"
	Domain string // domain, e.g. "local"
	Addr   net.IP
	Port   int
}

// Adapter announces a courier endpoint on the LAN and finds announced ones.
type Adapter interface {
	Announce(ctx context.Context, service ServiceInfo) error
	Discover(ctx context.Context, serviceType string) ([]ServiceInfo, error)
}
