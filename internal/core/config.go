package core

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/url"
	"os"
	"strings"

	"github.com/DisposaBoy/JsonConfigReader"
)

// ProxyConfig is the fallback upstream proxy endpoint.
type ProxyConfig struct {
	Scheme string `json:"scheme"`
	Host   string `json:"host"`
	Port   int    `json:"port"`
}

// TunSocksConfig describes how to launch the tun2Socks helper.
type TunSocksConfig struct {
	ExecutablePath    string `json:"executablePath"`
	WintunDllPath     string `json:"wintunDllPath"`
	ArgumentsTemplate string `json:"argumentsTemplate"`
}

// VpnConfig describes the TUN adapter, its routes, and the GeoIP bypass set.
type VpnConfig struct {
	InterfaceName              string   `json:"interfaceName"`
	TunAddress                 string   `json:"tunAddress"`
	TunGateway                 string   `json:"tunGateway"`
	TunMask                    string   `json:"tunMask"`
	DnsServers                 []string `json:"dnsServers"`
	IncludeCidrs               []string `json:"includeCidrs"`
	ExcludeCidrs               []string `json:"excludeCidrs"`
	CnDatPath                  string   `json:"cnDatPath"`
	BypassCn                   bool     `json:"bypassCn"`
	RouteMetric                int      `json:"routeMetric"`
	StartupDelayMs             int      `json:"startupDelayMs"`
	DefaultGatewayOverride     string   `json:"defaultGatewayOverride"`
	AddBypassRouteForProxyHost bool     `json:"addBypassRouteForProxyHost"`
}

// V2rayaConfig configures the optional v2rayA REST client.
type V2rayaConfig struct {
	Enabled             bool   `json:"enabled"`
	BaseUrl             string `json:"baseUrl"`
	Authorization       string `json:"authorization"`
	Username            string `json:"username"`
	Password            string `json:"password"`
	RequestId           string `json:"requestId"`
	TimeoutMs           int    `json:"timeoutMs"`
	ResolveHostnames    bool   `json:"resolveHostnames"`
	AutoDetectProxyPort bool   `json:"autoDetectProxyPort"`
	PreferPacPort       bool   `json:"preferPacPort"`
	ProxyHostOverride   string `json:"proxyHostOverride"`
}

// LoggingConfig selects the per-sink filtering level.
type LoggingConfig struct {
	WindowLevel string `json:"windowLevel"`
	FileLevel   string `json:"fileLevel"`
}

// SessionConfig is the validated top-level configuration consumed by the
// session engine.
type SessionConfig struct {
	Proxy      ProxyConfig    `json:"proxy"`
	TunToSocks TunSocksConfig `json:"tun2Socks"`
	Vpn        VpnConfig      `json:"vpn"`
	V2rayA     V2rayaConfig   `json:"v2rayA"`
	Logging    LoggingConfig  `json:"logging"`
}

// LoadConfig reads a JSON document tolerant of `//` and `/* */` comments and
// trailing commas, and returns the validated configuration.
func LoadConfig(path string) (*SessionConfig, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("core: open config %s: %w", path, err)
	}
	defer f.Close()

	stripped, err := io.ReadAll(JsonConfigReader.New(f))
	if err != nil {
		return nil, fmt.Errorf("core: strip comments from %s: %w", path, err)
	}
	cleaned := stripTrailingCommas(stripped)

	cfg := defaultSessionConfig()
	if err := json.Unmarshal(cleaned, &cfg); err != nil {
		return nil, fmt.Errorf("core: parse config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func defaultSessionConfig() SessionConfig {
	return SessionConfig{
		Vpn: VpnConfig{
			RouteMetric: 1,
		},
		V2rayA: V2rayaConfig{
			TimeoutMs: 5000,
		},
	}
}

// stripTrailingCommas removes a comma that precedes (ignoring intervening
// whitespace) a closing '}' or ']', leaving string contents untouched. The
// JsonConfigReader pass has already removed comments by the time this runs,
// so the only structure left to respect is quoted strings.
func stripTrailingCommas(data []byte) []byte {
	var out bytes.Buffer
	inString := false
	escaped := false

	for i := 0; i < len(data); i++ {
		c := data[i]
		out.WriteByte(c)

		if inString {
			if escaped {
				escaped = false
			} else if c == '\\' {
				escaped = true
			} else if c == '"' {
				inString = false
			}
			continue
		}

		if c == '"' {
			inString = true
			continue
		}

		if c == ',' {
			j := i + 1
			for j < len(data) && isJSONSpace(data[j]) {
				j++
			}
			if j < len(data) && (data[j] == '}' || data[j] == ']') {
				out.Truncate(out.Len() - 1)
			}
		}
	}
	return out.Bytes()
}

func isJSONSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\r' || b == '\n'
}

// isIPv4Literal reports whether s parses as an IPv4 dotted-quad, rejecting
// IPv6 literals that net.ParseIP alone would accept.
func isIPv4Literal(s string) bool {
	ip := net.ParseIP(s)
	return ip != nil && ip.To4() != nil && !strings.Contains(s, ":")
}

// Validate checks the value-level invariants from the configuration
// surface. It does not touch the filesystem or network.
func (c *SessionConfig) Validate() error {
	switch strings.ToLower(c.Proxy.Scheme) {
	case "socks5", "http":
	default:
		return &InvalidConfig{Field: "proxy.scheme", Reason: fmt.Sprintf("must be socks5 or http, got %q", c.Proxy.Scheme)}
	}
	if c.Proxy.Port < 1 || c.Proxy.Port > 65535 {
		return &InvalidConfig{Field: "proxy.port", Reason: "must be in [1, 65535]"}
	}

	if c.Vpn.InterfaceName == "" {
		return &InvalidConfig{Field: "vpn.interfaceName", Reason: "must not be empty"}
	}
	if !isIPv4Literal(c.Vpn.TunAddress) {
		return &InvalidConfig{Field: "vpn.tunAddress", Reason: "not a valid IPv4 literal"}
	}
	if !isIPv4Literal(c.Vpn.TunGateway) {
		return &InvalidConfig{Field: "vpn.tunGateway", Reason: "not a valid IPv4 literal"}
	}
	if !isIPv4Literal(c.Vpn.TunMask) {
		return &InvalidConfig{Field: "vpn.tunMask", Reason: "not a valid IPv4 literal"}
	}
	for _, d := range c.Vpn.DnsServers {
		if !isIPv4Literal(d) {
			return &InvalidConfig{Field: "vpn.dnsServers", Reason: fmt.Sprintf("%q is not a valid IPv4 literal", d)}
		}
	}
	for _, s := range c.Vpn.IncludeCidrs {
		if _, _, err := net.ParseCIDR(strings.TrimSpace(s)); err != nil {
			return &InvalidConfig{Field: "vpn.includeCidrs", Reason: fmt.Sprintf("%q is not a parseable CIDR", s)}
		}
	}
	for _, s := range c.Vpn.ExcludeCidrs {
		if _, _, err := net.ParseCIDR(strings.TrimSpace(s)); err != nil {
			return &InvalidConfig{Field: "vpn.excludeCidrs", Reason: fmt.Sprintf("%q is not a parseable CIDR", s)}
		}
	}
	if c.Vpn.RouteMetric < 1 {
		return &InvalidConfig{Field: "vpn.routeMetric", Reason: "must be >= 1"}
	}
	if c.Vpn.StartupDelayMs < 0 {
		return &InvalidConfig{Field: "vpn.startupDelayMs", Reason: "must be >= 0"}
	}
	if c.Vpn.DefaultGatewayOverride != "" && !isIPv4Literal(c.Vpn.DefaultGatewayOverride) {
		return &InvalidConfig{Field: "vpn.defaultGatewayOverride", Reason: "not a valid IPv4 literal"}
	}

	if c.TunToSocks.ExecutablePath == "" {
		return &InvalidConfig{Field: "tun2Socks.executablePath", Reason: "must not be empty"}
	}

	if c.V2rayA.Enabled {
		if c.V2rayA.BaseUrl == "" {
			return &InvalidConfig{Field: "v2rayA.baseUrl", Reason: "must not be empty when enabled"}
		}
		u, err := url.Parse(c.V2rayA.BaseUrl)
		if err != nil || !u.IsAbs() || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return &InvalidConfig{Field: "v2rayA.baseUrl", Reason: "must be an absolute http/https URL"}
		}
		if !strings.HasSuffix(c.V2rayA.BaseUrl, "/") {
			c.V2rayA.BaseUrl += "/"
		}
		if c.V2rayA.Authorization == "" && (c.V2rayA.Username == "" || c.V2rayA.Password == "") {
			return &InvalidConfig{Field: "v2rayA", Reason: "either authorization or both username and password must be set"}
		}
		if c.V2rayA.TimeoutMs < 100 || c.V2rayA.TimeoutMs > 120000 {
			return &InvalidConfig{Field: "v2rayA.timeoutMs", Reason: "must be in [100, 120000]"}
		}
	}

	for _, lvl := range []string{c.Logging.WindowLevel, c.Logging.FileLevel} {
		if lvl == "" {
			continue
		}
		switch strings.ToUpper(lvl) {
		case "INFO", "WARN", "ERROR", "OFF", "NONE":
		default:
			return &InvalidConfig{Field: "logging", Reason: fmt.Sprintf("unrecognized level %q", lvl)}
		}
	}

	return nil
}
