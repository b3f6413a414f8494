// Package geoip reads a cn.dat-style length-delimited binary catalogue
// (the v2fly/v2rayA GeoIP database format) and extracts CIDRs for a named
// country category. The wire shape is:
//
//	GeoIPList: repeated GeoIP entries (field 1, LEN)
//	GeoIP:     string country_code (field 1, LEN); repeated CIDR (field 2, LEN)
//	CIDR:      bytes ip (field 1, LEN); int32 prefix (field 2, VARINT)
//
// Unlike the teacher's hand-rolled tag/varint/skip helpers
// (gateway/proto_helpers.go), this reader decodes the wire format with
// google.golang.org/protobuf/encoding/protowire directly against the raw
// byte stream — there is no generated message type because cn.dat is
// consumed as an untyped length-delimited catalogue, per spec.
package geoip

import (
	"fmt"
	"net"
	"os"
	"strings"

	"google.golang.org/protobuf/encoding/protowire"

	"eptun-session/internal/cidr"
)

// ParseError reports a malformed cn.dat catalogue.
type ParseError struct {
	Reason string
}

func (e *ParseError) Error() string { return fmt.Sprintf("geoip: parse error: %s", e.Reason) }

// Entry is one GeoIP message: a country code and its CIDR list.
type Entry struct {
	code  string
	cidrs []cidr.Route
}

// LoadFile reads a cn.dat-style file from disk and returns its parsed
// catalogue entries (one per country code).
func LoadFile(path string) ([]Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("geoip: read %s: %w", path, err)
	}
	return parseCatalogue(data)
}

// CIDRsForCountry loads path and returns the CIDR set for the requested
// (case-insensitive) country code. Returns an empty, non-nil slice if the
// code isn't present.
func CIDRsForCountry(path, countryCode string) ([]cidr.Route, error) {
	entries, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	want := strings.ToUpper(strings.TrimSpace(countryCode))
	out := []cidr.Route{}
	for _, e := range entries {
		if strings.ToUpper(e.code) == want {
			out = append(out, e.cidrs...)
		}
	}
	return out, nil
}

// Categories returns every country code present in the catalogue at path.
func Categories(path string) ([]string, error) {
	entries, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	codes := make([]string, 0, len(entries))
	for _, e := range entries {
		codes = append(codes, e.code)
	}
	return codes, nil
}

func parseCatalogue(data []byte) ([]Entry, error) {
	var out []Entry
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, &ParseError{Reason: "malformed field tag"}
		}
		data = data[n:]

		if num == 1 && typ == protowire.BytesType {
			msg, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return nil, &ParseError{Reason: "malformed length prefix for GeoIP entry"}
			}
			data = data[n:]

			entry, err := parseGeoIPEntry(msg)
			if err != nil {
				return nil, err
			}
			if entry.code != "" {
				out = append(out, entry)
			}
			continue
		}

		n = protowire.ConsumeFieldValue(num, typ, data)
		if n < 0 {
			return nil, &ParseError{Reason: "wire-type violation while skipping field"}
		}
		data = data[n:]
	}
	return out, nil
}

func parseGeoIPEntry(data []byte) (Entry, error) {
	var entry Entry
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return entry, &ParseError{Reason: "malformed field tag in GeoIP entry"}
		}
		data = data[n:]

		switch {
		case num == 1 && typ == protowire.BytesType:
			b, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return entry, &ParseError{Reason: "malformed country_code"}
			}
			entry.code = string(b)
			data = data[n:]

		case num == 2 && typ == protowire.BytesType:
			b, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return entry, &ParseError{Reason: "malformed CIDR entry"}
			}
			data = data[n:]

			route, err := parseCIDREntry(b)
			if err != nil {
				return entry, err
			}
			entry.cidrs = append(entry.cidrs, route)

		default:
			n = protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return entry, &ParseError{Reason: "wire-type violation while skipping GeoIP field"}
			}
			data = data[n:]
		}
	}
	return entry, nil
}

func parseCIDREntry(data []byte) (cidr.Route, error) {
	var addr []byte
	prefix := -1

	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return cidr.Route{}, &ParseError{Reason: "malformed field tag in CIDR entry"}
		}
		data = data[n:]

		switch {
		case num == 1 && typ == protowire.BytesType:
			b, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return cidr.Route{}, &ParseError{Reason: "malformed address bytes"}
			}
			addr = append([]byte(nil), b...)
			data = data[n:]

		case num == 2 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return cidr.Route{}, &ParseError{Reason: "malformed prefix varint"}
			}
			prefix = int(v)
			data = data[n:]

		default:
			n = protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return cidr.Route{}, &ParseError{Reason: "wire-type violation while skipping CIDR field"}
			}
			data = data[n:]
		}
	}

	switch len(addr) {
	case 4:
		if prefix < 0 || prefix > 32 {
			return cidr.Route{}, &ParseError{Reason: "ipv4 prefix out of range"}
		}
		var a uint32
		for _, b := range addr {
			a = a<<8 | uint32(b)
		}
		return cidr.FromV4Mask(a, prefix), nil
	case 16:
		if prefix < 0 || prefix > 128 {
			return cidr.Route{}, &ParseError{Reason: "ipv6 prefix out of range"}
		}
		r, err := cidr.Parse(fmt.Sprintf("%s/%d", net.IP(addr).String(), prefix))
		if err != nil {
			return cidr.Route{}, &ParseError{Reason: "ipv6 address unparseable"}
		}
		return r, nil
	default:
		return cidr.Route{}, &ParseError{Reason: fmt.Sprintf("address length %d not in {4, 16}", len(addr))}
	}
}
