//go:build windows

package engine

import (
	"net"

	"eptun-session/internal/cidr"
	"eptun-session/internal/core"
	"eptun-session/internal/route"
)

// installRoutes implements step 10: proxy-host bypass, exclude/include
// computation with v6-exclude dropping, and the hard excludes-before-includes
// ordering invariant.
func installRoutes(
	mgr *route.Manager,
	cfg *core.SessionConfig,
	v4Default route.DefaultRouteV4,
	v6Default route.DefaultRouteV6,
	haveV6Default bool,
	proxyIPs []net.IP,
	dynamicExcludes, cnExcludes []string,
	tunIfIndex uint32,
	log *core.SinkLogger,
) error {
	excludeM := excludeMetric(cfg.Vpn.RouteMetric)

	// Proxy-host bypass: a /32 or /128 toward the physical gateway for every
	// non-loopback proxy IP, when configured.
	if cfg.Vpn.AddBypassRouteForProxyHost {
		for _, ip := range proxyIPs {
			if ip.IsLoopback() {
				continue
			}
			if v4 := ip.To4(); v4 != nil {
				r := cidr.FromV4Mask(ipToUint32(v4), 32)
				if err := mgr.AddRoute(r, v4Default.Gateway, uint32(cfg.Vpn.RouteMetric), 0, false, true); err != nil {
					return err
				}
			} else if haveV6Default {
				r, err := cidr.Parse(ip.String() + "/128")
				if err == nil {
					if err := mgr.AddRoute(r, v6Default.Gateway, uint32(cfg.Vpn.RouteMetric), v6Default.IfaceIndex, true, true); err != nil {
						return err
					}
				}
			}
		}
	}

	includes, excludes, v6Dropped := computeRouteSets(cfg.Vpn.IncludeCidrs, cfg.Vpn.ExcludeCidrs, dynamicExcludes, cnExcludes)
	if v6Dropped > 0 && log != nil {
		log.Infof("Engine", "dropped %d IPv6 exclude(s): no IPv6 include CIDRs present", v6Dropped)
	}

	// Excludes first.
	for _, r := range excludes {
		if r.Family == cidr.FamilyV4 {
			if err := mgr.AddRoute(r, v4Default.Gateway, excludeM, 0, false, true); err != nil {
				return err
			}
		} else if haveV6Default {
			if err := mgr.AddRoute(r, v6Default.Gateway, excludeM, v6Default.IfaceIndex, true, true); err != nil {
				return err
			}
		}
	}

	// Then includes.
	for _, r := range includes {
		if r.Family == cidr.FamilyV4 {
			tunGateway := net.ParseIP(cfg.Vpn.TunGateway)
			if err := mgr.AddRoute(r, tunGateway, uint32(cfg.Vpn.RouteMetric), tunIfIndex, true, true); err != nil {
				return err
			}
		} else {
			if err := mgr.AddRoute(r, nil, uint32(cfg.Vpn.RouteMetric), tunIfIndex, true, true); err != nil {
				return err
			}
		}
	}

	return nil
}

func ipToUint32(ip4 net.IP) uint32 {
	return uint32(ip4[0])<<24 | uint32(ip4[1])<<16 | uint32(ip4[2])<<8 | uint32(ip4[3])
}
