// Package inputval holds small validators for values arriving from HTTP
// requests and configuration.
package inputval

import (
	"net/mail"
	"net/url"
	"strings"
)

// IsValidEmail reports whether s is a bare address ("user@example.org").
// Display-name forms are rejected. Single-label domains are accepted.
func IsValidEmail(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" || strings.ContainsAny(s, " \t\r\n<>") {
		return false
	}
	at := strings.LastIndex(s, "@")
	if at <= 0 || at == len(s)-1 {
		return false
	}
	if !dotAtom(s[:at]) || !dotAtom(s[at+1:]) {
		return false
	}
	addr, err := mail.ParseAddress(s)
	return err == nil && addr.Name == "" && addr.Address == s
}

func dotAtom(s string) bool {
	return !strings.HasPrefix(s, ".") && !strings.HasSuffix(s, ".") && !strings.Contains(s, "..")
}

// IsValidHTTPURL reports whether s is an absolute http or https URL with a host.
func IsValidHTTPURL(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
