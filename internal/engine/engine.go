//go:build windows

// Package engine composes the CIDR, GeoIP, v2rayA, route, and helper
// packages into one session bring-up/teardown sequence.
package engine

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"eptun-session/internal/core"
	"eptun-session/internal/geoip"
	"eptun-session/internal/helper"
	"eptun-session/internal/route"
	"eptun-session/internal/v2raya"
)

// Deps carries the engine's external collaborators, allowing tests to
// substitute v2rayA's store without touching process-global state.
type Deps struct {
	Log         *core.SinkLogger
	V2rayaStore *v2raya.SessionStateStore
	ConfigDir   string
}

// Run executes one full session bring-up, waits for cancellation or helper
// exit, and always runs cleanup before returning.
func Run(ctx context.Context, cfg *core.SessionConfig, deps Deps) error {
	log := deps.Log
	routeMgr := route.NewManager(log, routeLoggingSuppressed(cfg))

	supervisor := helper.NewSupervisor(log)

	cleanup := func() {
		routeMgr.Cleanup()
		supervisor.Terminate()
	}
	defer cleanup()

	// 1. Default routes.
	v4Default, err := readDefaultV4(cfg)
	if err != nil {
		return err
	}
	v6Default, haveV6Default := readDefaultV6()
	if !haveV6Default {
		log.Warnf("Engine", "no IPv6 default route found; IPv6 bypass routes disabled")
	}

	// 2. Proxy URI.
	proxyURI := fmt.Sprintf("%s://%s:%d", cfg.Proxy.Scheme, cfg.Proxy.Host, cfg.Proxy.Port)
	var v2Client *v2raya.Client
	if cfg.V2rayA.Enabled {
		v2Client = v2raya.NewClient(deps.V2rayaStore, log)
		if cfg.V2rayA.AutoDetectProxyPort {
			resolved, err := v2Client.ResolveProxyURI(ctx, toV2rayaConfig(cfg.V2rayA), cfg.Proxy.Scheme, cfg.Proxy.Host, cfg.Proxy.Port)
			if err != nil {
				log.Warnf("Engine", "proxy URI auto-detection failed: %v", err)
			} else {
				proxyURI = resolved
			}
		}
	}

	// 3. Reachability probe.
	if err := probeReachable(proxyURI, 2*time.Second); err != nil {
		return &core.ProxyUnreachable{URI: proxyURI}
	}

	// 4. Proxy host set.
	proxyHost := hostFromURI(proxyURI)
	proxyIPs := resolveProxyHosts(proxyHost)

	// 5. Dynamic excludes.
	var dynamicExcludes []string
	if cfg.V2rayA.Enabled {
		excludes, err := v2Client.ResolveExcludeCIDRs(ctx, toV2rayaConfig(cfg.V2rayA))
		if err != nil {
			log.Warnf("Engine", "dynamic exclude resolution failed: %v", err)
		} else {
			dynamicExcludes = excludes
		}
	}

	// 6. CN excludes.
	var cnExcludes []string
	if cfg.Vpn.BypassCn && cfg.Vpn.CnDatPath != "" {
		routes, err := geoip.CIDRsForCountry(cfg.Vpn.CnDatPath, "CN")
		if err != nil {
			log.Warnf("Engine", "CN GeoIP lookup failed: %v", err)
		} else {
			for _, r := range routes {
				cnExcludes = append(cnExcludes, r.String())
			}
		}
	}

	// 7. Start helper.
	executablePath, err := helper.ResolveExecutable(cfg.TunToSocks.ExecutablePath, deps.ConfigDir)
	if err != nil {
		return err
	}
	if cfg.TunToSocks.WintunDllPath != "" {
		libPath, err := helper.ResolveCompanionLibrary(cfg.TunToSocks.WintunDllPath, deps.ConfigDir)
		if err != nil {
			return err
		}
		if err := helper.EnsureCompanionLibrary(executablePath, libPath); err != nil {
			return err
		}
	}

	argsLine := helper.ExpandTemplate(cfg.TunToSocks.ArgumentsTemplate, helper.Args{
		ProxyURI:      proxyURI,
		InterfaceName: cfg.Vpn.InterfaceName,
		TunAddress:    cfg.Vpn.TunAddress,
		TunGateway:    cfg.Vpn.TunGateway,
		TunMask:       cfg.Vpn.TunMask,
		DnsServers:    cfg.Vpn.DnsServers,
	})
	workDir := helperWorkDir(executablePath)
	if err := supervisor.Start(executablePath, workDir, strings.Fields(argsLine)); err != nil {
		return fmt.Errorf("engine: start helper: %w", err)
	}

	if cfg.Vpn.StartupDelayMs > 0 {
		select {
		case <-time.After(time.Duration(cfg.Vpn.StartupDelayMs) * time.Millisecond):
		case <-ctx.Done():
		}
	}
	if supervisor.HasExited() {
		return &core.HelperExitedEarly{Code: exitCode(supervisor.ExitErr())}
	}

	// 8. Configure TUN.
	if err := configureTun(cfg.Vpn.InterfaceName, cfg.Vpn.TunAddress, cfg.Vpn.TunMask, cfg.Vpn.DnsServers); err != nil {
		return &core.TunConfigureFailed{Cause: err.Error()}
	}

	// 9. Get TUN interface index.
	tunIfIndex, err := route.InterfaceIndexByName(cfg.Vpn.InterfaceName)
	if err != nil {
		return &core.TunConfigureFailed{Cause: err.Error()}
	}

	// 10. Install routes.
	if err := installRoutes(routeMgr, cfg, v4Default, v6Default, haveV6Default, proxyIPs, dynamicExcludes, cnExcludes, tunIfIndex, log); err != nil {
		return err
	}

	// 11. Wait.
	select {
	case <-supervisor.Exited():
		if ctx.Err() == nil {
			return &core.HelperFailed{Code: exitCode(supervisor.ExitErr())}
		}
		return nil
	case <-ctx.Done():
		return nil
	}
}

func readDefaultV4(cfg *core.SessionConfig) (route.DefaultRouteV4, error) {
	if cfg.Vpn.DefaultGatewayOverride != "" {
		gw := net.ParseIP(cfg.Vpn.DefaultGatewayOverride)
		return route.DefaultRouteV4{Gateway: gw, IfaceAddress: net.ParseIP("0.0.0.0"), Metric: 0}, nil
	}
	v4, err := route.ReadDefaultRouteV4()
	if err != nil {
		return route.DefaultRouteV4{}, &core.InvalidConfig{Field: "defaultRoute", Reason: err.Error()}
	}
	return v4, nil
}

func readDefaultV6() (route.DefaultRouteV6, bool) {
	v6, err := route.ReadDefaultRouteV6()
	if err != nil {
		return route.DefaultRouteV6{}, false
	}
	return v6, true
}

func probeReachable(uri string, timeout time.Duration) error {
	idx := strings.LastIndex(uri, "://")
	if idx < 0 {
		return fmt.Errorf("engine: malformed proxy uri %q", uri)
	}
	addr := uri[idx+3:]
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return err
	}
	conn.Close()
	return nil
}

// resolveProxyHosts returns the IP set for the proxy host: itself if it's
// already a literal, else its DNS-resolved v4/v6 addresses.
func resolveProxyHosts(host string) []net.IP {
	if ip := net.ParseIP(host); ip != nil {
		return []net.IP{ip}
	}
	ips, err := net.LookupIP(host)
	if err != nil {
		return nil
	}
	return ips
}

