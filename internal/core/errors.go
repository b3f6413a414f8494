package core

import "fmt"

// InvalidConfig reports a configuration value that failed validation.
// Fatal before the session starts.
type InvalidConfig struct {
	Field  string
	Reason string
}

func (e *InvalidConfig) Error() string {
	return fmt.Sprintf("invalid config: %s: %s", e.Field, e.Reason)
}

// ProxyUnreachable reports that no candidate proxy endpoint answered during
// bring-up. Fatal.
type ProxyUnreachable struct {
	URI string
}

func (e *ProxyUnreachable) Error() string {
	return fmt.Sprintf("proxy unreachable: %s", e.URI)
}

// HelperNotFound reports a missing tun2Socks executable. Fatal.
type HelperNotFound struct {
	Path string
}

func (e *HelperNotFound) Error() string {
	return fmt.Sprintf("helper executable not found: %s", e.Path)
}

// CompanionLibraryMissing reports a missing companion library (e.g. a
// wintun DLL) required by the helper. Fatal.
type CompanionLibraryMissing struct {
	Path string
}

func (e *CompanionLibraryMissing) Error() string {
	return fmt.Sprintf("companion library missing: %s", e.Path)
}

// HelperExitedEarly reports that the helper process exited before bring-up
// completed. Fatal.
type HelperExitedEarly struct {
	Code int
}

func (e *HelperExitedEarly) Error() string {
	return fmt.Sprintf("helper exited early with code %d", e.Code)
}

// HelperFailed reports that the helper process exited during normal
// operation, before the session was canceled, whatever its exit code. Fatal.
type HelperFailed struct {
	Code int
}

func (e *HelperFailed) Error() string {
	return fmt.Sprintf("helper exited with code %d", e.Code)
}

// TunConfigureFailed reports that the TUN adapter could not be configured
// after exhausting retries. Fatal.
type TunConfigureFailed struct {
	Cause string
}

func (e *TunConfigureFailed) Error() string {
	return fmt.Sprintf("tun configure failed: %s", e.Cause)
}

// RouteAddFailed reports a route-install failure during the install phase.
// Fatal.
type RouteAddFailed struct {
	CIDR  string
	Cause string
}

func (e *RouteAddFailed) Error() string {
	return fmt.Sprintf("route add failed for %s: %s", e.CIDR, e.Cause)
}

// RouteDeleteFailed reports a route-removal failure during cleanup. Never
// fatal; cleanup is best-effort.
type RouteDeleteFailed struct {
	CIDR  string
	Cause string
}

func (e *RouteDeleteFailed) Error() string {
	return fmt.Sprintf("route delete failed for %s: %s", e.CIDR, e.Cause)
}

// V2rayaHttpError reports a non-2xx response from the v2rayA REST API.
// Surfaced as a warning; triggers fallback behavior.
type V2rayaHttpError struct {
	Status      int
	BodyPreview string
}

func (e *V2rayaHttpError) Error() string {
	return fmt.Sprintf("v2rayA http error: status=%d body=%q", e.Status, e.BodyPreview)
}

// V2rayaLoginFailed reports a login response whose code field was present
// and not "SUCCESS".
type V2rayaLoginFailed struct {
	Code    string
	Message string
}

func (e *V2rayaLoginFailed) Error() string {
	return fmt.Sprintf("v2rayA login failed: code=%s message=%s", e.Code, e.Message)
}

// V2rayaShapeError reports a response whose JSON shape didn't match what
// was expected at the given path.
type V2rayaShapeError struct {
	Path string
}

func (e *V2rayaShapeError) Error() string {
	return fmt.Sprintf("v2rayA response shape error at %s", e.Path)
}

// GeoIpParseError reports a malformed GeoIP catalogue. A warning that
// reduces the bypass set.
type GeoIpParseError struct {
	Reason string
}

func (e *GeoIpParseError) Error() string {
	return fmt.Sprintf("geoip parse error: %s", e.Reason)
}

// ApnicParseError reports a malformed APNIC delegation line. A warning
// that reduces the bypass set.
type ApnicParseError struct {
	Reason string
}

func (e *ApnicParseError) Error() string {
	return fmt.Sprintf("apnic parse error: %s", e.Reason)
}

// Canceled marks an orderly shutdown. It never surfaces past the engine
// boundary.
type Canceled struct{}

func (e *Canceled) Error() string { return "session canceled" }
