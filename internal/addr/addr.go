// Package addr validates remote address literals before anything touches the
// network.
package addr

import (
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// IsValid reports whether address is a bare IPv4 or IPv6 literal.
// Ports, schemes, brackets and zones are rejected; callers strip them first.
func IsValid(address string) bool {
	if address == "" || strings.ContainsAny(address, "[]%/ ") {
		return false
	}
	return validate.Var(address, "required,ip") == nil
}

// IsValidHost is IsValid extended with RFC 1123 host names.
func IsValidHost(host string) bool {
	if IsValid(host) {
		return true
	}
	if host == "" || strings.ContainsAny(host, "[]%/: ") {
		return false
	}
	// a dotted all-numeric name is a malformed IPv4 literal, not a host name
	if isNumericDotted(host) {
		return false
	}
	return validate.Var(host, "required,hostname_rfc1123") == nil
}

func isNumericDotted(s string) bool {
	for _, r := range s {
		if r != '.' && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}
