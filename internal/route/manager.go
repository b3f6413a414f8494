//go:build windows

package route

import (
	"fmt"
	"net"
	"sync"

	"eptun-session/internal/cidr"
	"eptun-session/internal/core"
)

// Manager installs and removes routes for one session, preferring the
// native route-table API for IPv4 and falling back to the platform CLI for
// IPv4 (once native is disabled) and always for IPv6.
type Manager struct {
	log *core.SinkLogger

	native *nativeBackend

	mu      sync.Mutex
	managed []ManagedRoute

	suppressPerRoute bool
	installedCount   int
}

// NewManager creates a route manager. log may be nil to discard all
// per-route messages.
func NewManager(log *core.SinkLogger, suppressPerRoute bool) *Manager {
	return &Manager{
		log:              log,
		native:           newNativeBackend(),
		suppressPerRoute: suppressPerRoute,
	}
}

func (m *Manager) logInstalled(r cidr.Route) {
	if m.log == nil {
		return
	}
	if !m.suppressPerRoute {
		m.log.Infof("Route", "installed %s", r.String())
		return
	}
	if m.installedCount%500 == 0 && m.installedCount > 0 {
		m.log.Infof("Route", "installed %d routes so far", m.installedCount)
	}
}

// AddRoute installs one route. For v4, it tries the native API (resolving
// the best interface for gateway if ifIndex is not supplied) and falls back
// to the CLI if native is unavailable or fails for a non-exists reason. For
// v6, it always uses the CLI. On success the route is appended to the
// session's managed list.
func (m *Manager) AddRoute(r cidr.Route, gateway net.IP, metric uint32, ifIndex uint32, hasIfIndex bool, replaceIfExists bool) error {
	if r.Family == cidr.FamilyV4 {
		if gateway == nil {
			return &core.RouteAddFailed{CIDR: r.String(), Cause: "ipv4 route requires a gateway"}
		}
		if err := m.addV4(r, gateway, metric, ifIndex, hasIfIndex, replaceIfExists); err != nil {
			return &core.RouteAddFailed{CIDR: r.String(), Cause: err.Error()}
		}
	} else {
		if err := m.addV6(r, gateway, metric, ifIndex, hasIfIndex, replaceIfExists); err != nil {
			return &core.RouteAddFailed{CIDR: r.String(), Cause: err.Error()}
		}
	}

	m.mu.Lock()
	m.managed = append(m.managed, ManagedRoute{Route: r, Gateway: gateway, IfaceIndex: ifIndex, HasIface: hasIfIndex})
	m.installedCount++
	m.mu.Unlock()

	m.logInstalled(r)
	return nil
}

func (m *Manager) addV4(r cidr.Route, gateway net.IP, metric uint32, ifIndex uint32, hasIfIndex bool, replaceIfExists bool) error {
	network := net.ParseIP(r.Network)

	if m.native.available() {
		idx := ifIndex
		if !hasIfIndex {
			resolved, err := m.native.bestInterfaceFor(gateway)
			if err == nil {
				idx = resolved
			}
		}
		err := m.native.addV4(network, r.PrefixLen, gateway, metric, idx, replaceIfExists)
		if err == nil {
			return nil
		}
		if !m.native.available() {
			// native permanently disabled itself; fall through to CLI below.
		} else {
			return err
		}
	}

	return cliAddV4(r.String(), gateway, metric, replaceIfExists)
}

func (m *Manager) addV6(r cidr.Route, gateway net.IP, metric uint32, ifIndex uint32, hasIfIndex bool, replaceIfExists bool) error {
	if !hasIfIndex && gateway == nil {
		return fmt.Errorf("route: ipv6 route requires an interface when no gateway is given")
	}
	return cliAddV6(cliRouteArgs{
		Prefix:     r.String(),
		IfaceIndex: ifIndex,
		HasIface:   hasIfIndex,
		Gateway:    gateway,
		Metric:     metric,
	}, replaceIfExists)
}

// Cleanup drains the managed-route list in LIFO order, deleting each route.
// Failures are logged as warnings and never abort the remaining cleanup —
// cleanup is best-effort.
func (m *Manager) Cleanup() {
	m.mu.Lock()
	routes := m.managed
	m.managed = nil
	m.mu.Unlock()

	for i := len(routes) - 1; i >= 0; i-- {
		mr := routes[i]
		if err := m.deleteRoute(mr); err != nil {
			if m.log != nil {
				m.log.Warnf("Route", "%v", &core.RouteDeleteFailed{CIDR: mr.Route.String(), Cause: err.Error()})
			}
		} else if m.log != nil && !m.suppressPerRoute {
			m.log.Infof("Route", "removed %s", mr.Route.String())
		}
	}
}

func (m *Manager) deleteRoute(mr ManagedRoute) error {
	if mr.Route.Family == cidr.FamilyV4 {
		network := net.ParseIP(mr.Route.Network)
		if m.native.available() {
			idx := mr.IfaceIndex
			if !mr.HasIface {
				resolved, err := m.native.bestInterfaceFor(mr.Gateway)
				if err == nil {
					idx = resolved
				}
			}
			if err := m.native.deleteV4(network, mr.Route.PrefixLen, mr.Gateway, idx); err == nil {
				return nil
			}
		}
		return cliDeleteV4(mr.Route.String(), mr.Gateway)
	}
	return cliDeleteV6(cliRouteArgs{
		Prefix:     mr.Route.String(),
		IfaceIndex: mr.IfaceIndex,
		HasIface:   mr.HasIface,
		Gateway:    mr.Gateway,
	})
}

// ManagedCount returns the number of routes currently tracked for cleanup.
func (m *Manager) ManagedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.managed)
}
