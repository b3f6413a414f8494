package cidr

import "testing"

func TestParse(t *testing.T) {
	cases := []struct {
		name    string
		input   string
		wantErr bool
		network string
		prefix  int
		family  Family
	}{
		{"v4 exact", "192.168.1.0/24", false, "192.168.1.0", 24, FamilyV4},
		{"v4 masks host bits", "192.168.1.5/24", false, "192.168.1.0", 24, FamilyV4},
		{"v4 slash32", "10.0.0.1/32", false, "10.0.0.1", 32, FamilyV4},
		{"v4 slash0", "10.0.0.1/0", false, "0.0.0.0", 0, FamilyV4},
		{"v6 exact", "2001:db8::/32", false, "2001:db8::", 32, FamilyV6},
		{"v6 masks host bits", "2001:db8::1/32", false, "2001:db8::", 32, FamilyV6},
		{"empty", "", true, "", 0, FamilyV4},
		{"no slash", "10.0.0.1", true, "", 0, FamilyV4},
		{"two slashes", "10.0.0.1/24/1", true, "", 0, FamilyV4},
		{"bad address", "not-an-ip/24", true, "", 0, FamilyV4},
		{"prefix not numeric", "10.0.0.1/abc", true, "", 0, FamilyV4},
		{"v4 prefix too large", "10.0.0.1/33", true, "", 0, FamilyV4},
		{"v6 prefix too large", "2001:db8::1/129", true, "", 0, FamilyV6},
		{"whitespace trimmed", "  10.0.0.0/24  ", false, "10.0.0.0", 24, FamilyV4},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, err := Parse(c.input)
			if c.wantErr {
				if err == nil {
					t.Fatalf("Parse(%q): expected error, got %+v", c.input, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse(%q): unexpected error: %v", c.input, err)
			}
			if got.Network != c.network || got.PrefixLen != c.prefix || got.Family != c.family {
				t.Fatalf("Parse(%q) = %+v, want network=%s prefix=%d family=%v", c.input, got, c.network, c.prefix, c.family)
			}
			if !got.HostMaskZero() {
				t.Fatalf("Parse(%q): HostMaskZero() = false for %+v", c.input, got)
			}
		})
	}
}

func TestFromV4Mask(t *testing.T) {
	r := FromV4Mask(0xC0A80105, 24) // 192.168.1.5/24
	if r.Network != "192.168.1.0" {
		t.Fatalf("network = %s, want 192.168.1.0", r.Network)
	}
	if r.Mask != "255.255.255.0" {
		t.Fatalf("mask = %s, want 255.255.255.0", r.Mask)
	}
}

func TestLess(t *testing.T) {
	v4a, _ := Parse("10.0.0.0/24")
	v4b, _ := Parse("10.0.1.0/24")
	v4c, _ := Parse("10.0.0.0/16")
	v6, _ := Parse("2001:db8::/32")

	if !Less(v4a, v6) {
		t.Fatal("v4 should sort before v6")
	}
	if Less(v6, v4a) {
		t.Fatal("v6 should not sort before v4")
	}
	if !Less(v4a, v4b) {
		t.Fatal("lexicographically smaller network should sort first")
	}
	if !Less(v4c, v4a) {
		t.Fatal("same network, smaller prefix should sort first")
	}
}

func TestRouteString(t *testing.T) {
	r, err := Parse("172.16.0.0/12")
	if err != nil {
		t.Fatal(err)
	}
	if got := r.String(); got != "172.16.0.0/12" {
		t.Fatalf("String() = %s, want 172.16.0.0/12", got)
	}
}
