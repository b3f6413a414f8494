// Package cidr implements the session engine's CIDR model: parsing,
// normalization, and the range-to-CIDR expansion used by the APNIC reader.
package cidr

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// Family identifies the IP address family of a Route.
type Family int

const (
	FamilyV4 Family = iota
	FamilyV6
)

func (f Family) String() string {
	if f == FamilyV6 {
		return "v6"
	}
	return "v4"
}

// Route is an immutable CIDR value: a family, a canonical (host-bits-zeroed)
// network address, an optional dotted-quad mask (v4 only), and a prefix
// length. Two Routes are equal iff all four fields match.
type Route struct {
	Family    Family
	Network   string // canonical textual form, host bits zeroed
	Mask      string // dotted-quad for v4; empty for v6
	PrefixLen int    // 0..32 for v4, 0..128 for v6
}

// InvalidCidrError reports a CIDR string that failed to parse.
type InvalidCidrError struct {
	Input  string
	Reason string
}

func (e *InvalidCidrError) Error() string {
	return fmt.Sprintf("invalid cidr %q: %s", e.Input, e.Reason)
}

// Parse accepts "address/prefix", trimming surrounding whitespace.
func Parse(s string) (Route, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return Route{}, &InvalidCidrError{Input: s, Reason: "empty"}
	}

	parts := strings.Split(trimmed, "/")
	if len(parts) != 2 {
		return Route{}, &InvalidCidrError{Input: s, Reason: "expected exactly one '/'"}
	}

	addrPart := strings.TrimSpace(parts[0])
	prefixPart := strings.TrimSpace(parts[1])

	ip := net.ParseIP(addrPart)
	if ip == nil {
		return Route{}, &InvalidCidrError{Input: s, Reason: "address unparseable"}
	}

	prefix, err := strconv.Atoi(prefixPart)
	if err != nil {
		return Route{}, &InvalidCidrError{Input: s, Reason: "prefix not numeric"}
	}

	if ip4 := ip.To4(); ip4 != nil && !strings.Contains(addrPart, ":") {
		if prefix < 0 || prefix > 32 {
			return Route{}, &InvalidCidrError{Input: s, Reason: "prefix out of range for IPv4"}
		}
		return fromV4(ip4, prefix), nil
	}

	ip16 := ip.To16()
	if ip16 == nil {
		return Route{}, &InvalidCidrError{Input: s, Reason: "family unsupported"}
	}
	if prefix < 0 || prefix > 128 {
		return Route{}, &InvalidCidrError{Input: s, Reason: "prefix out of range for IPv6"}
	}
	return fromV6(ip16, prefix), nil
}

// FromV4Mask builds a Route from a 32-bit address and prefix length,
// masking host bits and deriving the dotted-quad mask.
func FromV4Mask(addr uint32, prefix int) Route {
	var ip4 [4]byte
	putUint32(ip4[:], addr)
	return fromV4(ip4[:], prefix)
}

func fromV4(ip4 []byte, prefix int) Route {
	mask := v4Mask(prefix)
	var network [4]byte
	for i := 0; i < 4; i++ {
		network[i] = ip4[i] & mask[i]
	}
	return Route{
		Family:    FamilyV4,
		Network:   net.IP(network[:]).String(),
		Mask:      net.IP(mask[:]).String(),
		PrefixLen: prefix,
	}
}

func fromV6(ip16 []byte, prefix int) Route {
	var network [16]byte
	copy(network[:], ip16)
	clearV6HostBits(network[:], prefix)
	return Route{
		Family:    FamilyV6,
		Network:   net.IP(network[:]).String(),
		Mask:      "",
		PrefixLen: prefix,
	}
}

// v4Mask returns the 4-byte mask for prefix p, computed as the 32-bit
// integer mask (0 | (0xFFFFFFFF << (32 - p))) per spec.
func v4Mask(p int) [4]byte {
	if p <= 0 {
		return [4]byte{}
	}
	if p >= 32 {
		return [4]byte{0xFF, 0xFF, 0xFF, 0xFF}
	}
	var m uint32 = 0xFFFFFFFF << uint(32-p)
	var out [4]byte
	putUint32(out[:], m)
	return out
}

// clearV6HostBits zeroes the host bits of a 16-byte v6 address in place,
// applying the partial-byte mask (0xFF << (8 - p%8)) to the boundary byte.
func clearV6HostBits(b []byte, prefix int) {
	fullBytes := prefix / 8
	rem := prefix % 8
	for i := fullBytes + 1; i < 16; i++ {
		b[i] = 0
	}
	if fullBytes < 16 && rem > 0 {
		b[fullBytes] &= byte(0xFF << uint(8-rem))
	} else if fullBytes < 16 && rem == 0 {
		b[fullBytes] = 0
	}
}

func putUint32(b []byte, v uint32) {
	b[0] = byte(v >> 24)
	b[1] = byte(v >> 16)
	b[2] = byte(v >> 8)
	b[3] = byte(v)
}

// String renders the canonical "network/prefix" textual form.
func (r Route) String() string {
	return fmt.Sprintf("%s/%d", r.Network, r.PrefixLen)
}

// HostMaskZero reports whether the route's network has all host bits
// cleared under its own mask — the round-trip invariant from spec.md §8.
func (r Route) HostMaskZero() bool {
	again, err := Parse(r.String())
	if err != nil {
		return false
	}
	return again == r
}

// Less implements the canonical ordering: family_v4 before family_v6,
// network lexicographic, prefix ascending.
func Less(a, b Route) bool {
	if a.Family != b.Family {
		return a.Family == FamilyV4
	}
	if a.Network != b.Network {
		return a.Network < b.Network
	}
	return a.PrefixLen < b.PrefixLen
}
