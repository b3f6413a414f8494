package engine

import (
	"net"
	"strings"
	"time"

	"eptun-session/internal/core"
	"eptun-session/internal/v2raya"
)

// routeLoggingSuppressed ties per-route log suppression to the configured
// window level: once it's set above info, per-route lines would never be
// shown anyway, so the engine aggregates instead of emitting them one by one.
func routeLoggingSuppressed(cfg *core.SessionConfig) bool {
	switch strings.ToUpper(strings.TrimSpace(cfg.Logging.WindowLevel)) {
	case "WARN", "ERROR", "OFF", "NONE":
		return true
	default:
		return false
	}
}

func toV2rayaConfig(c core.V2rayaConfig) v2raya.Config {
	return v2raya.Config{
		BaseURL:           c.BaseUrl,
		Authorization:     c.Authorization,
		Username:          c.Username,
		Password:          c.Password,
		RequestID:         c.RequestId,
		Timeout:           time.Duration(c.TimeoutMs) * time.Millisecond,
		ResolveHostnames:  c.ResolveHostnames,
		AutoDetectPort:    c.AutoDetectProxyPort,
		PreferPacPort:     c.PreferPacPort,
		ProxyHostOverride: c.ProxyHostOverride,
	}
}

func hostFromURI(uri string) string {
	idx := strings.LastIndex(uri, "://")
	if idx < 0 {
		return uri
	}
	rest := uri[idx+3:]
	host, _, err := net.SplitHostPort(rest)
	if err != nil {
		return rest
	}
	return host
}

func helperWorkDir(executablePath string) string {
	idx := strings.LastIndexAny(executablePath, `/\`)
	if idx < 0 {
		return ""
	}
	return executablePath[:idx]
}

func exitCode(err error) int {
	type exitCoder interface{ ExitCode() int }
	if ec, ok := err.(exitCoder); ok {
		return ec.ExitCode()
	}
	return -1
}
