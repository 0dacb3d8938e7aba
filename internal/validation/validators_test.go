package validation

import (
	"strings"
	"testing"
)

func TestValidateIdentifier(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"uuid", "3f2b8c1e-5b0a-4c7e-9d1f-0a1b2c3d4e5f", false},
		{"underscore", "rule_1", false},

		{"empty", "", true},
		{"space", "my rule", true},
		{"slash", "a/b", true},
		{"semicolon", "rule;drop", true},
		{"long", strings.Repeat("a", 256), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateIdentifier(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateIdentifier(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestValidatePath(t *testing.T) {
	allowedDirs := []string{"/etc/pfw", "/var/lib/pfw"}

	tests := []struct {
		name    string
		path    string
		allowed []string
		wantErr bool
	}{
		{"allowed absolute", "/var/lib/pfw/rules.json", allowedDirs, false},
		{"relative", "logs/rules.json", allowedDirs, false},
		{"no allowlist", "/tmp/rules.db", nil, false},

		{"outside allowlist", "/tmp/rules.json", allowedDirs, true},
		{"traversal", "logs/../../etc/passwd", allowedDirs, true},
		{"null byte", "rules\x00.json", allowedDirs, true},
		{"empty", "", allowedDirs, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePath(tt.path, tt.allowed)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidatePath(%q) error = %v, wantErr %v", tt.path, err, tt.wantErr)
			}
		})
	}
}

func TestValidateIPOrCIDR(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"ipv4", "192.168.1.1", false},
		{"ipv6", "2001:db8::1", false},
		{"cidr v4", "10.0.0.0/8", false},
		{"cidr v6", "fd00::/64", false},

		{"empty", "", true},
		{"garbage", "not-an-ip", true},
		{"bad cidr", "10.0.0.0/33", true},
		{"octet overflow", "256.1.1.1", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateIPOrCIDR(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateIPOrCIDR(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestValidateSourceAddress(t *testing.T) {
	for _, ok := range []string{"", "any", "ANY", "1.2.3.4", "10.0.0.0/24"} {
		if err := ValidateSourceAddress(ok); err != nil {
			t.Errorf("ValidateSourceAddress(%q) unexpected error: %v", ok, err)
		}
	}
	if err := ValidateSourceAddress("somewhere"); err == nil {
		t.Error("ValidateSourceAddress should reject non-address text")
	}
}

func TestValidatePortNumber(t *testing.T) {
	tests := []struct {
		name    string
		port    int
		wantErr bool
	}{
		{"min valid", 1, false},
		{"http", 80, false},
		{"max valid", 65535, false},

		{"zero", 0, true},
		{"negative", -1, true},
		{"too high", 65536, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePortNumber(tt.port)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidatePortNumber(%d) error = %v, wantErr %v", tt.port, err, tt.wantErr)
			}
		})
	}
}

func TestValidatePortSpec(t *testing.T) {
	tests := []struct {
		spec    string
		wantErr bool
	}{
		{"", false},
		{"any", false},
		{"22", false},
		{" 443 ", false},
		{"1000-2000", false},
		{"80-80", false},

		{"http", true},
		{"0", true},
		{"70000", true},
		{"2000-1000", true},
		{"10-", true},
		{"-10", true},
	}

	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			err := ValidatePortSpec(tt.spec)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidatePortSpec(%q) error = %v, wantErr %v", tt.spec, err, tt.wantErr)
			}
		})
	}
}

func TestValidateProtocol(t *testing.T) {
	tests := []struct {
		proto   string
		wantErr bool
	}{
		{"tcp", false},
		{"UDP", false},
		{"icmp", false},
		{"http", false},
		{"dns", false},
		{"any", false},
		{"", false},

		{"gre", true},
		{"xyz", true},
	}

	for _, tt := range tests {
		t.Run(tt.proto, func(t *testing.T) {
			err := ValidateProtocol(tt.proto)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateProtocol(%q) error = %v, wantErr %v", tt.proto, err, tt.wantErr)
			}
		})
	}
}

func TestValidateAction(t *testing.T) {
	for _, a := range []string{"allow", "DENY", "block", "drop", "reject", "accept"} {
		if err := ValidateAction(a); err != nil {
			t.Errorf("ValidateAction(%q) unexpected error: %v", a, err)
		}
	}
	for _, a := range []string{"", "permit", "maybe"} {
		if err := ValidateAction(a); err == nil {
			t.Errorf("ValidateAction(%q) should fail", a)
		}
	}
}

func TestValidateClockTime(t *testing.T) {
	tests := []struct {
		in      string
		wantErr bool
	}{
		{"", false},
		{"00:00", false},
		{"09:30", false},
		{"23:59", false},

		{"24:00", true},
		{"9:30", true},
		{"12:60", true},
		{"noon", true},
	}

	for _, tt := range tests {
		err := ValidateClockTime(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidateClockTime(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
	}
}
