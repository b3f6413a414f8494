// Package route manages IPv4/IPv6 routing table entries: reading the
// system's default routes, resolving an interface index by name, and
// adding/deleting routes through a native API with a CLI fallback.
package route

import (
	"net"

	"eptun-session/internal/cidr"
)

// DefaultRouteV4 is the host's current IPv4 default route.
type DefaultRouteV4 struct {
	Gateway      net.IP
	IfaceAddress net.IP
	Metric       uint32
}

// DefaultRouteV6 is the host's current IPv6 default route.
type DefaultRouteV6 struct {
	Gateway    net.IP
	IfaceIndex uint32
	Metric     uint32
}

// ManagedRoute records one route this process successfully installed, so it
// can be drained in LIFO order on shutdown.
type ManagedRoute struct {
	Route      cidr.Route
	Gateway    net.IP
	IfaceIndex uint32
	HasIface   bool
}
