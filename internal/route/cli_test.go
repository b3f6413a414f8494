//go:build windows

package route

import (
	"net"
	"strings"
	"testing"
)

func TestContainsAlreadyExists(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{"The object already exists.", true},
		{"对象已存在。", true},
		{"The route addition failed: 87", false},
		{"", false},
	}
	for _, c := range cases {
		if got := containsAlreadyExists(c.in); got != c.want {
			t.Errorf("containsAlreadyExists(%q) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestMaskFor(t *testing.T) {
	cases := []struct {
		prefix string
		want   string
	}{
		{"192.168.1.0/24", "255.255.255.0"},
		{"10.0.0.0/8", "255.0.0.0"},
		{"0.0.0.0/0", "0.0.0.0"},
		{"10.0.0.1/32", "255.255.255.255"},
	}
	for _, c := range cases {
		if got := maskFor(c.prefix); got != c.want {
			t.Errorf("maskFor(%q) = %s, want %s", c.prefix, got, c.want)
		}
	}
}

func TestV6AddArgs(t *testing.T) {
	gw := net.ParseIP("fe80::1")
	args := v6AddArgs(cliRouteArgs{
		Prefix:     "2001:db8::/32",
		IfaceIndex: 12,
		HasIface:   true,
		Gateway:    gw,
		Metric:     10,
	})
	joined := strings.Join(args, " ")
	for _, want := range []string{"prefix=2001:db8::/32", "interface=12", "nexthop=fe80::1", "metric=10", "store=active"} {
		if !strings.Contains(joined, want) {
			t.Errorf("args %q missing %q", joined, want)
		}
	}
}

func TestV6AddArgsWithoutGateway(t *testing.T) {
	args := v6AddArgs(cliRouteArgs{
		Prefix:     "2001:db8::/32",
		IfaceIndex: 12,
		HasIface:   true,
	})
	joined := strings.Join(args, " ")
	if strings.Contains(joined, "nexthop=") {
		t.Errorf("args %q should not contain nexthop when gateway is nil", joined)
	}
}

func TestV6DeleteArgs(t *testing.T) {
	args := v6DeleteArgs(cliRouteArgs{Prefix: "2001:db8::/32", IfaceIndex: 12, HasIface: true})
	joined := strings.Join(args, " ")
	if !strings.Contains(joined, "delete") || !strings.Contains(joined, "prefix=2001:db8::/32") {
		t.Errorf("unexpected delete args: %q", joined)
	}
}

const sampleRoutePrintV4 = `===========================================================================
Interface List
 15...00 ff 1c 2b 3a 4d ......Realtek PCIe GbE Family Controller
===========================================================================

IPv4 Route Table
===========================================================================
Active Routes:
Network Destination        Netmask          Gateway       Interface  Metric
          0.0.0.0          0.0.0.0      192.168.1.1    192.168.1.50     25
          0.0.0.0          0.0.0.0      192.168.1.1    192.168.1.50     35
        127.0.0.0        255.0.0.0         On-link         127.0.0.1    331
===========================================================================
`

func TestParseDefaultRouteV4PicksSmallestMetric(t *testing.T) {
	got, err := parseDefaultRouteV4(sampleRoutePrintV4)
	if err != nil {
		t.Fatal(err)
	}
	if got.Metric != 25 || got.Gateway.String() != "192.168.1.1" {
		t.Fatalf("got %+v", got)
	}
}

func TestParseDefaultRouteV4Missing(t *testing.T) {
	if _, err := parseDefaultRouteV4("no default route here\n"); err == nil {
		t.Fatal("expected error when no default route is present")
	}
}

const sampleRoutePrintV6 = `
Interface List
 15...00 ff 1c 2b 3a 4d ......Realtek PCIe GbE Family Controller

IPv6 Route Table
===========================================================================
Active Routes:
 If Metric Network Destination      Gateway
 15     25 ::/0                     fe80::1
 15    331 ::1/128                  on-link
 15    331 fe80::/64                on-link
===========================================================================
`

func TestParseDefaultRouteV6(t *testing.T) {
	got, err := parseDefaultRouteV6(sampleRoutePrintV6)
	if err != nil {
		t.Fatal(err)
	}
	if got.IfaceIndex != 15 || got.Metric != 25 || got.Gateway.String() != "fe80::1" {
		t.Fatalf("got %+v", got)
	}
}

func TestParseDefaultRouteV6SkipsOnLink(t *testing.T) {
	text := " If Metric Network Destination      Gateway\n 15    331 ::/0                     on-link\n"
	if _, err := parseDefaultRouteV6(text); err == nil {
		t.Fatal("expected error: only route present is on-link")
	}
}

const sampleShowInterfaces = `
Idx     Met         MTU          State                Name
---  ----------  ----------  ------------  ---------------------------
  1          50  4294967295  connected     Loopback Pseudo-Interface 1
 15          25        1500  connected     Ethernet
 22           5        1500  connected     EpTUN
`

func TestParseInterfaceIndexByName(t *testing.T) {
	idx, err := parseInterfaceIndexByName(sampleShowInterfaces, "eptun")
	if err != nil {
		t.Fatal(err)
	}
	if idx != 22 {
		t.Fatalf("idx = %d, want 22", idx)
	}
}

func TestParseInterfaceIndexByNameMissing(t *testing.T) {
	if _, err := parseInterfaceIndexByName(sampleShowInterfaces, "nonexistent"); err == nil {
		t.Fatal("expected error for missing interface name")
	}
}
