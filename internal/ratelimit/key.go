package ratelimit

import "strings"

// KeyBy selects which caller attribute keys the rate limit windows.
type KeyBy string

const (
	// KeyByCaller keys windows by caller identity.
	KeyByCaller KeyBy = "caller"

	// KeyByIP keys windows by originating IP address.
	KeyByIP KeyBy = "ip"

	// KeyByService keys windows by target service identifier.
	KeyByService KeyBy = "service"
)

// Key builds a rate limit key for the given caller attributes. Empty
// components fall back to "unknown" so anonymous callers share one
// window rather than bypassing the limit.
func Key(by KeyBy, callerID, ip, serviceID string) string {
	var parts []string
	switch by {
	case KeyByIP:
		parts = []string{"ip", orUnknown(ip)}
	case KeyByService:
		parts = []string{"service", orUnknown(serviceID)}
	default:
		parts = []string{"caller", orUnknown(callerID)}
	}
	return strings.Join(parts, ":")
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
