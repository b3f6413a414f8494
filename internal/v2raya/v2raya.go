// Package v2raya talks to a local v2rayA instance: authenticating, caching
// sessions, discovering the live proxy port, and resolving connected-node
// addresses into bypass CIDRs.
package v2raya

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/net/publicsuffix"

	"eptun-session/internal/core"
)

// Config carries the v2rayA section of SessionConfig needed by the client.
type Config struct {
	BaseURL           string
	Authorization     string
	Username          string
	Password          string
	RequestID         string
	Timeout           time.Duration
	ResolveHostnames  bool
	AutoDetectPort    bool
	PreferPacPort     bool
	ProxyHostOverride string
}

// sessionKey identifies one cached session, scoped to avoid cross-tenant
// credential reuse within a process holding multiple configurations.
type sessionKey struct {
	baseURL       string
	authorization string
	username      string
	password      string
}

func keyFor(cfg Config) sessionKey {
	return sessionKey{
		baseURL:       normalizeBaseURL(cfg.BaseURL),
		authorization: normalizeAuthorization(cfg.Authorization),
		username:      cfg.Username,
		password:      cfg.Password,
	}
}

func normalizeBaseURL(s string) string {
	if s == "" {
		return s
	}
	if !strings.HasSuffix(s, "/") {
		return s + "/"
	}
	return s
}

func normalizeAuthorization(s string) string {
	return strings.TrimSpace(s)
}

// sessionState is one cached session entry: cookie jar, optional bearer
// authorization, and the 10-minute cookie-reuse window.
type sessionState struct {
	mu sync.Mutex

	jar                 *cookiejar.Jar
	bearerAuthorization string
	cookieSessionReady  bool
	lastLoginUTC        time.Time
}

// SessionStateStore holds one sessionState per distinct
// (base_url, normalized_authorization, username, password) tuple, created
// lazily. A single process retains one store; tests may construct their own.
type SessionStateStore struct {
	mu       sync.Mutex
	sessions map[sessionKey]*sessionState
}

// NewSessionStateStore creates an empty session-state store.
func NewSessionStateStore() *SessionStateStore {
	return &SessionStateStore{sessions: make(map[sessionKey]*sessionState)}
}

func (s *SessionStateStore) get(key sessionKey) *sessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.sessions[key]; ok {
		return st
	}
	jar, _ := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	st := &sessionState{jar: jar}
	s.sessions[key] = st
	return st
}

const cookieReuseWindow = 10 * time.Minute

// Client is a v2rayA REST client bound to one session-state store and HTTP
// transport.
type Client struct {
	store      *SessionStateStore
	httpClient *http.Client
	log        *core.SinkLogger
}

// NewClient creates a v2rayA client. log may be nil to discard warnings.
func NewClient(store *SessionStateStore, log *core.SinkLogger) *Client {
	return &Client{
		store:      store,
		httpClient: &http.Client{},
		log:        log,
	}
}

func (c *Client) warnf(format string, args ...any) {
	if c.log != nil {
		c.log.Warnf("V2rayA", format, args...)
	}
}

// PortsResponse is the shape of GET /api/ports.
type PortsResponse struct {
	Socks5        int `json:"socks5"`
	Socks5WithPac int `json:"socks5WithPac"`
	HTTP          int `json:"http"`
	HTTPWithPac   int `json:"httpWithPac"`
}

func (p PortsResponse) portFor(key string) int {
	switch key {
	case "socks5":
		return p.Socks5
	case "socks5WithPac":
		return p.Socks5WithPac
	case "http":
		return p.HTTP
	case "httpWithPac":
		return p.HTTPWithPac
	default:
		return 0
	}
}

// candidateKeys returns the ordered pair of /api/ports field names to try
// for a (scheme, preferPac) combination.
func candidateKeys(scheme string, preferPac bool) []string {
	var primary, secondary string
	switch scheme {
	case "http":
		primary, secondary = "http", "httpWithPac"
	default:
		primary, secondary = "socks5", "socks5WithPac"
	}
	if preferPac {
		return []string{secondary, primary}
	}
	return []string{primary, secondary}
}

// ResolveProxyURI implements the "Resolve proxy URI" operation: discover
// candidate ports via /api/ports, probe each for reachability, and return
// the first reachable one. If none is reachable it returns the primary
// candidate with a warning; if the call fails or yields no usable port it
// returns the configured fallback host and port with a warning.
func (c *Client) ResolveProxyURI(ctx context.Context, cfg Config, scheme, fallbackHost string, fallbackPort int) (string, error) {
	timeout := effectiveTimeout(cfg.Timeout)
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ports, err := c.fetchPorts(ctx, cfg)
	if err != nil {
		c.warnf("port discovery failed, falling back to configured port: %v", err)
		return fmt.Sprintf("%s://%s:%d", scheme, fallbackHost, fallbackPort), nil
	}

	host := fallbackHost
	if cfg.ProxyHostOverride != "" {
		host = cfg.ProxyHostOverride
	} else if host == "" {
		host = hostOf(cfg.BaseURL)
	}

	keys := candidateKeys(scheme, cfg.PreferPacPort)
	var candidates []string
	for _, key := range keys {
		port := ports.portFor(key)
		if port <= 0 {
			continue
		}
		candidates = append(candidates, fmt.Sprintf("%s://%s:%d", scheme, host, port))
	}
	if len(candidates) == 0 {
		c.warnf("no usable port candidates from /api/ports, falling back")
		return fmt.Sprintf("%s://%s:%d", scheme, fallbackHost, fallbackPort), nil
	}

	probeTimeout := clampDuration(timeout/2, 300*time.Millisecond, 3*time.Second)
	for _, uri := range candidates {
		if probeReachable(uri, probeTimeout) {
			return uri, nil
		}
	}

	c.warnf("no candidate proxy port reachable, selecting primary candidate")
	return candidates[0], nil
}

func hostOf(baseURL string) string {
	trimmed := strings.TrimPrefix(strings.TrimPrefix(baseURL, "https://"), "http://")
	if idx := strings.IndexAny(trimmed, "/:"); idx >= 0 {
		return trimmed[:idx]
	}
	return trimmed
}

func probeReachable(uri string, timeout time.Duration) bool {
	idx := strings.LastIndex(uri, "://")
	if idx < 0 {
		return false
	}
	addr := uri[idx+3:]
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

func clampDuration(d, min, max time.Duration) time.Duration {
	if d < min {
		return min
	}
	if d > max {
		return max
	}
	return d
}

func effectiveTimeout(d time.Duration) time.Duration {
	if d <= 0 {
		return 5 * time.Second
	}
	return d
}

func (c *Client) fetchPorts(ctx context.Context, cfg Config) (PortsResponse, error) {
	var ports PortsResponse
	body, _, err := c.do(ctx, cfg, http.MethodGet, "/api/ports", nil)
	if err != nil {
		return ports, err
	}
	var envelope struct {
		Data PortsResponse `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && (envelope.Data.Socks5 != 0 || envelope.Data.Socks5WithPac != 0 || envelope.Data.HTTP != 0 || envelope.Data.HTTPWithPac != 0) {
		return envelope.Data, nil
	}
	if err := json.Unmarshal(body, &ports); err != nil {
		return ports, &core.V2rayaShapeError{Path: "/api/ports"}
	}
	return ports, nil
}

// touchResponse is the shape of GET /api/touch.
type touchResponse struct {
	Data struct {
		Touch struct {
			ConnectedServer []struct {
				ID  string `json:"id"`
				Sub string `json:"sub"`
			} `json:"connectedServer"`
		} `json:"touch"`
		Subscriptions map[string]struct {
			Servers map[string]struct {
				Address string `json:"address"`
			} `json:"servers"`
		} `json:"subscriptions"`
		Servers map[string]struct {
			Address string `json:"address"`
		} `json:"servers"`
	} `json:"data"`
}

// ResolveExcludeCIDRs implements the "Resolve exclude CIDRs" operation.
func (c *Client) ResolveExcludeCIDRs(ctx context.Context, cfg Config) ([]string, error) {
	timeout := effectiveTimeout(cfg.Timeout)
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	body, _, err := c.do(ctx, cfg, http.MethodGet, "/api/touch", nil)
	if err != nil {
		return nil, err
	}

	var resp touchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &core.V2rayaShapeError{Path: "/api/touch"}
	}

	var cidrs []string
	for _, cs := range resp.Data.Touch.ConnectedServer {
		address := lookupServerAddress(resp, cs.ID, cs.Sub)
		if address == "" {
			continue
		}
		host := hostFromAddress(address)
		if host == "" {
			continue
		}
		cidr := cidrForHost(host, cfg.ResolveHostnames)
		if cidr != "" {
			cidrs = append(cidrs, cidr)
		}
	}
	return cidrs, nil
}

// lookupServerAddress follows the documented 3-tier lookup: the named
// subscription's servers, then every subscription's servers, then the
// top-level servers map.
func lookupServerAddress(resp touchResponse, id, sub string) string {
	if subServers, ok := resp.Data.Subscriptions[sub]; ok {
		if srv, ok := subServers.Servers[id]; ok {
			return srv.Address
		}
	}
	for _, subServers := range resp.Data.Subscriptions {
		if srv, ok := subServers.Servers[id]; ok {
			return srv.Address
		}
	}
	if srv, ok := resp.Data.Servers[id]; ok {
		return srv.Address
	}
	return ""
}

// hostFromAddress extracts a bare host from an address that may be an IP
// literal, "host:port", or a URI.
func hostFromAddress(address string) string {
	if idx := strings.Index(address, "://"); idx >= 0 {
		address = address[idx+3:]
		if idx := strings.IndexAny(address, "/?"); idx >= 0 {
			address = address[:idx]
		}
	}
	if host, _, err := net.SplitHostPort(address); err == nil {
		return host
	}
	return address
}

func cidrForHost(host string, resolveHostnames bool) string {
	ip := net.ParseIP(host)
	if ip == nil {
		if !resolveHostnames {
			return ""
		}
		ips, err := net.LookupIP(host)
		if err != nil || len(ips) == 0 {
			return ""
		}
		ip = ips[0]
	}
	if v4 := ip.To4(); v4 != nil {
		return fmt.Sprintf("%s/32", v4.String())
	}
	return fmt.Sprintf("%s/128", ip.String())
}

// TestConnection composes ResolveProxyURI and ResolveExcludeCIDRs without
// mutating any engine state, for external diagnostic tooling.
func (c *Client) TestConnection(ctx context.Context, cfg Config, scheme, fallbackHost string, fallbackPort int) (string, []string, error) {
	uri, err := c.ResolveProxyURI(ctx, cfg, scheme, fallbackHost, fallbackPort)
	if err != nil {
		return "", nil, err
	}
	cidrs, err := c.ResolveExcludeCIDRs(ctx, cfg)
	if err != nil {
		return uri, nil, err
	}
	return uri, cidrs, nil
}

// do performs one authenticated request against the v2rayA API, logging in
// first if necessary.
func (c *Client) do(ctx context.Context, cfg Config, method, path string, body io.Reader) ([]byte, http.Header, error) {
	state := c.store.get(keyFor(cfg))

	if err := c.ensureAuthenticated(ctx, cfg, state); err != nil {
		return nil, nil, err
	}

	respBody, header, status, err := c.request(ctx, cfg, state, method, path, body)
	if err != nil {
		return nil, nil, err
	}
	if status < 200 || status >= 300 {
		preview := string(respBody)
		if len(preview) > 200 {
			preview = preview[:200]
		}
		return nil, nil, &core.V2rayaHttpError{Status: status, BodyPreview: preview}
	}
	return respBody, header, nil
}

func (c *Client) ensureAuthenticated(ctx context.Context, cfg Config, state *sessionState) error {
	state.mu.Lock()
	defer state.mu.Unlock()

	if cfg.Authorization != "" && cfg.Username == "" && cfg.Password == "" {
		state.bearerAuthorization = cfg.Authorization
		return nil
	}

	if cfg.Username == "" && cfg.Password == "" {
		return nil
	}

	if state.cookieSessionReady && time.Since(state.lastLoginUTC) < cookieReuseWindow {
		return nil
	}
	if state.bearerAuthorization != "" && time.Since(state.lastLoginUTC) < cookieReuseWindow {
		return nil
	}

	loginBody, err := json.Marshal(map[string]string{
		"username": cfg.Username,
		"password": cfg.Password,
	})
	if err != nil {
		return fmt.Errorf("v2raya: marshal login body: %w", err)
	}

	respBody, header, status, err := c.requestLocked(ctx, cfg, state, http.MethodPost, "/api/login", strings.NewReader(string(loginBody)))
	if err != nil {
		return err
	}
	if status < 200 || status >= 300 {
		preview := string(respBody)
		if len(preview) > 200 {
			preview = preview[:200]
		}
		return &core.V2rayaHttpError{Status: status, BodyPreview: preview}
	}

	var decoded map[string]any
	_ = json.Unmarshal(respBody, &decoded)
	if code, ok := decoded["code"]; ok {
		if codeStr, ok := code.(string); ok && codeStr != "SUCCESS" {
			msg, _ := decoded["message"].(string)
			return &core.V2rayaLoginFailed{Code: codeStr, Message: msg}
		}
	}

	if auth := header.Get("Authorization"); auth != "" {
		state.bearerAuthorization = auth
		state.lastLoginUTC = now()
		return nil
	}
	if token := findAuthField(decoded); token != "" {
		state.bearerAuthorization = token
		state.lastLoginUTC = now()
		return nil
	}

	state.cookieSessionReady = true
	state.lastLoginUTC = now()
	return nil
}

var authFieldNames = []string{"authorization", "token", "accesstoken", "access_token", "auth"}

func findAuthField(decoded map[string]any) string {
	if v := scanAuthFields(decoded); v != "" {
		return v
	}
	if data, ok := decoded["data"].(map[string]any); ok {
		return scanAuthFields(data)
	}
	return ""
}

func scanAuthFields(m map[string]any) string {
	for key, val := range m {
		for _, name := range authFieldNames {
			if strings.EqualFold(key, name) {
				if s, ok := val.(string); ok && s != "" {
					return s
				}
			}
		}
	}
	return ""
}

func (c *Client) request(ctx context.Context, cfg Config, state *sessionState, method, path string, body io.Reader) ([]byte, http.Header, int, error) {
	state.mu.Lock()
	defer state.mu.Unlock()
	return c.requestLocked(ctx, cfg, state, method, path, body)
}

func (c *Client) requestLocked(ctx context.Context, cfg Config, state *sessionState, method, path string, body io.Reader) ([]byte, http.Header, int, error) {
	base := normalizeBaseURL(cfg.BaseURL)
	url := strings.TrimSuffix(base, "/") + path

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("v2raya: build request: %w", err)
	}

	req.Header.Set("Accept", "application/json, text/plain, */*")
	req.Header.Set("Accept-Language", "zh-CN,zh;q=0.9,en;q=0.8,ja;q=0.7")
	req.Header.Set("Origin", strings.TrimSuffix(base, "/"))
	req.Header.Set("Referer", base)
	req.Header.Set("User-Agent", "Mozilla/5.0 EpTUN")
	req.Header.Set("X-V2raya-Request-Id", requestID(cfg.RequestID))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if state.bearerAuthorization != "" {
		req.Header.Set("Authorization", state.bearerAuthorization)
	}

	client := &http.Client{Timeout: effectiveTimeout(cfg.Timeout), Jar: state.jar}
	resp, err := client.Do(req)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("v2raya: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("v2raya: read response body: %w", err)
	}

	return respBody, resp.Header, resp.StatusCode, nil
}

func requestID(configured string) string {
	if configured != "" {
		return configured
	}
	id, err := uuid.NewRandom()
	if err == nil {
		return id.String()
	}
	buf := make([]byte, 16)
	_, _ = rand.Read(buf)
	return base64.RawURLEncoding.EncodeToString(buf)
}

func now() time.Time { return time.Now() }
