// Package auth resolves caller identity and checks the shared API key.
package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
)

// UnknownClient is the identity used when no forwarding header is present.
const UnknownClient = "unknown"

// Forwarded-address headers in priority order.
var identityHeaders = []string{"X-Forwarded-For", "X-Real-Ip"}

// Accepted API key header spellings. Lookup is case-insensitive, so the list
// only matters for the canonical forms proxies are known to emit.
var keyHeaders = []string{"X-Api-Key", "X-API-Key", "x-api-key"}

// ClientIdentity returns the rate-limit key for a request: the first entry of
// the first forwarding header present, or UnknownClient.
func ClientIdentity(h http.Header) string {
	for _, name := range identityHeaders {
		value, ok := lookup(h, name)
		if !ok {
			continue
		}
		first, _, _ := strings.Cut(value, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	return UnknownClient
}

// Guard validates the client-supplied API key against the configured secret.
type Guard struct {
	required bool
	digest   [sha256.Size]byte
	hasKey   bool
	log      zerolog.Logger
}

// NewGuard builds a guard. When required is true and secret is empty every
// request is rejected.
func NewGuard(required bool, secret string, log zerolog.Logger) *Guard {
	g := &Guard{required: required, log: log}
	if secret != "" {
		g.digest = sha256.Sum256([]byte(secret))
		g.hasKey = true
	}
	if required && !g.hasKey {
		log.Warn().Msg("REQUIRE_AUTH is enabled but API_KEY is empty, all requests will be rejected")
	}
	return g
}

// Authorize reports whether the request headers carry a valid key.
func (g *Guard) Authorize(h http.Header) bool {
	if !g.required {
		return true
	}
	if !g.hasKey {
		return false
	}
	var supplied string
	for _, name := range keyHeaders {
		if v, ok := lookup(h, name); ok {
			supplied = v
			break
		}
	}
	if supplied == "" {
		return false
	}
	got := sha256.Sum256([]byte(supplied))
	return subtle.ConstantTimeCompare(got[:], g.digest[:]) == 1
}

// lookup finds a header regardless of how the transport cased its name.
// Lambda events deliver lowercased names that bypass http.Header
// canonicalization.
func lookup(h http.Header, name string) (string, bool) {
	if values := h.Values(name); len(values) > 0 {
		return values[0], true
	}
	for k, values := range h {
		if strings.EqualFold(k, name) && len(values) > 0 {
			return values[0], true
		}
	}
	return "", false
}
