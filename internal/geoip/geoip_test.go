package geoip

import (
	"os"
	"path/filepath"
	"testing"

	"google.golang.org/protobuf/encoding/protowire"
)

// buildCIDR encodes one CIDR message: bytes ip (field 1), int32 prefix (field 2).
func buildCIDR(addr []byte, prefix uint64) []byte {
	var b []byte
	b = protowire.AppendTag(b, 1, protowire.BytesType)
	b = protowire.AppendBytes(b, addr)
	b = protowire.AppendTag(b, 2, protowire.VarintType)
	b = protowire.AppendVarint(b, prefix)
	return b
}

// buildGeoIP encodes one GeoIP message: string country_code (field 1),
// repeated CIDR (field 2).
func buildGeoIP(code string, cidrs ...[]byte) []byte {
	var b []byte
	b = protowire.AppendTag(b, 1, protowire.BytesType)
	b = protowire.AppendString(b, code)
	for _, c := range cidrs {
		b = protowire.AppendTag(b, 2, protowire.BytesType)
		b = protowire.AppendBytes(b, c)
	}
	return b
}

// buildCatalogue encodes a GeoIPList: repeated GeoIP (field 1).
func buildCatalogue(entries ...[]byte) []byte {
	var b []byte
	for _, e := range entries {
		b = protowire.AppendTag(b, 1, protowire.BytesType)
		b = protowire.AppendBytes(b, e)
	}
	return b
}

func TestLoadFile(t *testing.T) {
	cnCidr := buildCIDR([]byte{1, 0, 1, 0}, 24)
	cnCidr2 := buildCIDR([]byte{1, 0, 2, 0}, 24)
	jpCidr := buildCIDR([]byte{0x20, 0x01, 0x0d, 0xb8, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0}, 32)

	data := buildCatalogue(
		buildGeoIP("CN", cnCidr, cnCidr2),
		buildGeoIP("JP", jpCidr),
	)

	path := filepath.Join(t.TempDir(), "cn.dat")
	if err := os.WriteFile(path, data, 0600); err != nil {
		t.Fatal(err)
	}

	cnRoutes, err := CIDRsForCountry(path, "cn")
	if err != nil {
		t.Fatal(err)
	}
	if len(cnRoutes) != 2 {
		t.Fatalf("got %d CN routes, want 2: %+v", len(cnRoutes), cnRoutes)
	}
	if cnRoutes[0].String() != "1.0.1.0/24" {
		t.Fatalf("got %s, want 1.0.1.0/24", cnRoutes[0])
	}

	jpRoutes, err := CIDRsForCountry(path, "JP")
	if err != nil {
		t.Fatal(err)
	}
	if len(jpRoutes) != 1 || jpRoutes[0].Family.String() != "v6" {
		t.Fatalf("got %+v, want one v6 route", jpRoutes)
	}

	missing, err := CIDRsForCountry(path, "ZZ")
	if err != nil {
		t.Fatal(err)
	}
	if len(missing) != 0 {
		t.Fatalf("got %d routes for missing country, want 0", len(missing))
	}
}

func TestCategories(t *testing.T) {
	data := buildCatalogue(
		buildGeoIP("CN", buildCIDR([]byte{1, 0, 0, 0}, 8)),
		buildGeoIP("US", buildCIDR([]byte{2, 0, 0, 0}, 8)),
	)
	path := filepath.Join(t.TempDir(), "cn.dat")
	if err := os.WriteFile(path, data, 0600); err != nil {
		t.Fatal(err)
	}

	codes, err := Categories(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(codes) != 2 || codes[0] != "CN" || codes[1] != "US" {
		t.Fatalf("got %v, want [CN US]", codes)
	}
}

func TestLoadFileSkipsUnknownFields(t *testing.T) {
	// Prepend an unknown top-level varint field that must be skipped.
	var b []byte
	b = protowire.AppendTag(b, 9, protowire.VarintType)
	b = protowire.AppendVarint(b, 42)
	b = append(b, buildCatalogue(buildGeoIP("CN", buildCIDR([]byte{1, 2, 3, 0}, 24)))...)

	path := filepath.Join(t.TempDir(), "cn.dat")
	if err := os.WriteFile(path, b, 0600); err != nil {
		t.Fatal(err)
	}

	routes, err := CIDRsForCountry(path, "CN")
	if err != nil {
		t.Fatal(err)
	}
	if len(routes) != 1 || routes[0].String() != "1.2.3.0/24" {
		t.Fatalf("got %+v, want [1.2.3.0/24]", routes)
	}
}

func TestLoadFileRejectsBadAddressLength(t *testing.T) {
	bad := buildCIDR([]byte{1, 2, 3}, 24) // 3 bytes: neither v4 nor v6
	data := buildCatalogue(buildGeoIP("CN", bad))

	path := filepath.Join(t.TempDir(), "cn.dat")
	if err := os.WriteFile(path, data, 0600); err != nil {
		t.Fatal(err)
	}

	if _, err := LoadFile(path); err == nil {
		t.Fatal("expected ParseError for bad address length")
	}
}
