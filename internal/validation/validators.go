package validation

import (
	"fmt"
	"net"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

var (
	// Valid identifier: alphanumeric, dash, underscore. Rule ids are UUIDs.
	identifierRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

	// HH:MM, 24h clock
	clockTimeRegex = regexp.MustCompile(`^([01][0-9]|2[0-3]):[0-5][0-9]$`)
)

// Actions accepted in strict mode.
var Actions = []string{"allow", "accept", "deny", "drop", "block", "reject"}

// Protocols accepted in strict mode. Empty means "any".
var Protocols = []string{"tcp", "udp", "icmp", "http", "dns", "any", ""}

// ValidateIdentifier validates a rule id or other opaque identifier.
func ValidateIdentifier(id string) error {
	if id == "" {
		return fmt.Errorf("identifier cannot be empty")
	}

	if len(id) > 255 {
		return fmt.Errorf("identifier too long (max 255 characters)")
	}

	if !identifierRegex.MatchString(id) {
		return fmt.Errorf("invalid identifier: %s (must be alphanumeric with -_)", id)
	}

	return nil
}

// ValidatePath validates a file path against an allowlist of permitted directories.
// An empty allowlist permits any directory.
func ValidatePath(path string, allowedDirs []string) error {
	if path == "" {
		return fmt.Errorf("path cannot be empty")
	}

	if strings.Contains(path, "\x00") {
		return fmt.Errorf("null byte in path")
	}

	if strings.Contains(path, "..") {
		return fmt.Errorf("path traversal not allowed: %s", path)
	}

	cleanPath := filepath.Clean(path)
	if filepath.IsAbs(cleanPath) && len(allowedDirs) > 0 {
		for _, dir := range allowedDirs {
			if strings.HasPrefix(cleanPath, filepath.Clean(dir)) {
				return nil
			}
		}
		return fmt.Errorf("path not in allowed directories: %s", cleanPath)
	}

	return nil
}

// ValidateIPOrCIDR validates an IP address or CIDR range
func ValidateIPOrCIDR(s string) error {
	if s == "" {
		return fmt.Errorf("IP/CIDR cannot be empty")
	}

	if strings.Contains(s, "/") {
		_, _, err := net.ParseCIDR(s)
		if err != nil {
			return fmt.Errorf("invalid CIDR: %w", err)
		}
		return nil
	}

	if net.ParseIP(s) == nil {
		return fmt.Errorf("invalid IP address: %s", s)
	}

	return nil
}

// ValidateSourceAddress accepts empty, "any", an IP or a CIDR.
func ValidateSourceAddress(s string) error {
	if s == "" || strings.EqualFold(s, "any") {
		return nil
	}
	return ValidateIPOrCIDR(s)
}

// ValidateAllowlist checks if a value is in an allowed list (case-insensitive).
func ValidateAllowlist(value string, allowed []string) error {
	for _, a := range allowed {
		if strings.EqualFold(value, a) {
			return nil
		}
	}
	return fmt.Errorf("value not in allowlist: %s", value)
}

// ValidatePortNumber validates a port number
func ValidatePortNumber(port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("invalid port number: %d (must be 1-65535)", port)
	}
	return nil
}

// ValidatePortSpec validates the textual port field of a rule:
// empty, "any", a single port, or an inclusive range "lo-hi".
func ValidatePortSpec(spec string) error {
	spec = strings.TrimSpace(spec)
	if spec == "" || strings.EqualFold(spec, "any") {
		return nil
	}

	lo, hi, isRange := strings.Cut(spec, "-")
	start, err := strconv.Atoi(lo)
	if err != nil {
		return fmt.Errorf("invalid port: %s", spec)
	}
	if err := ValidatePortNumber(start); err != nil {
		return err
	}
	if !isRange {
		return nil
	}

	end, err := strconv.Atoi(hi)
	if err != nil {
		return fmt.Errorf("invalid port range: %s", spec)
	}
	if err := ValidatePortNumber(end); err != nil {
		return err
	}
	if start > end {
		return fmt.Errorf("invalid port range: %s (start > end)", spec)
	}
	return nil
}

// ValidateProtocol validates a protocol name
func ValidateProtocol(proto string) error {
	proto = strings.ToLower(proto)
	for _, valid := range Protocols {
		if proto == valid {
			return nil
		}
	}
	return fmt.Errorf("invalid protocol: %s (must be one of: %s)", proto, strings.Join(Protocols[:len(Protocols)-1], ", "))
}

// ValidateAction validates a rule action.
func ValidateAction(action string) error {
	if err := ValidateAllowlist(action, Actions); err != nil {
		return fmt.Errorf("invalid action: %s (must be one of: %s)", action, strings.Join(Actions, ", "))
	}
	return nil
}

// ValidateClockTime validates an optional "HH:MM" time of day.
func ValidateClockTime(s string) error {
	if s == "" {
		return nil
	}
	if !clockTimeRegex.MatchString(s) {
		return fmt.Errorf("invalid time of day: %s (expected HH:MM)", s)
	}
	return nil
}
