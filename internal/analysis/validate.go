package analysis

import (
	"fmt"
	"net/url"
	"strings"
)

// ValidateDomain checks that raw is a well-formed absolute http(s) URL and
// returns it with surrounding whitespace removed.
func ValidateDomain(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", fmt.Errorf("%w: domain is required", ErrValidation)
	}
	u, err := url.ParseRequestURI(trimmed)
	if err != nil {
		return "", fmt.Errorf("%w: %q is not a valid URL", ErrValidation, trimmed)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("%w: %q must use http or https", ErrValidation, trimmed)
	}
	if u.Hostname() == "" {
		return "", fmt.Errorf("%w: %q has no host", ErrValidation, trimmed)
	}
	return trimmed, nil
}
