// Package security checks backend endpoints before chatdesk sends chat
// history to them.
package security

import (
	"net/netip"
	"net/url"
	"strings"

	"github.com/go-go-golems/chatdesk/pkg/errs"
)

// BaseURLOptions relaxes ValidateBaseURL for self-hosted backends.
type BaseURLOptions struct {
	// AllowInsecure permits plain http and loopback, private or link-local
	// targets, as used by local OpenAI-compatible servers.
	AllowInsecure bool
}

// ValidateBaseURL rejects backend base URLs that would send chat history in
// clear text or to the local network, unless opts allows it. IP literals are
// checked without DNS lookups. Errors match errs.ErrInvalidInput.
func ValidateBaseURL(rawURL string, opts BaseURLOptions) error {
	invalid := func(reason string) error {
		return &errs.ValidationError{Field: "base-url", Reason: reason}
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return invalid(err.Error())
	}

	switch parsed.Scheme {
	case "https":
	case "http":
		if !opts.AllowInsecure {
			return invalid("http is only allowed for insecure base URLs")
		}
	default:
		return invalid("unsupported scheme \"" + parsed.Scheme + "\"")
	}

	host := strings.ToLower(parsed.Hostname())
	if host == "" {
		return invalid("missing host")
	}

	if !opts.AllowInsecure {
		if host == "localhost" || strings.HasSuffix(host, ".localhost") || strings.HasSuffix(host, ".local") {
			return invalid("local host " + host + " is not allowed")
		}
	}

	addr, err := netip.ParseAddr(host)
	if err != nil {
		// not an IP literal
		return nil
	}
	if addr.Zone() != "" && !opts.AllowInsecure {
		return invalid("zoned address " + host + " is not allowed")
	}
	addr = addr.Unmap()
	if addr.IsUnspecified() || addr.IsMulticast() {
		return invalid("address " + host + " is not routable")
	}
	if !opts.AllowInsecure && (addr.IsLoopback() || addr.IsPrivate() || addr.IsLinkLocalUnicast() || addr.IsLinkLocalMulticast()) {
		return invalid("local network address " + host + " is not allowed")
	}

	return nil
}
