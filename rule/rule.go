// Package rule defines the JWT trust-policy configuration consumed by the
// verification engine. A JWTRule describes one trusted issuer: where to find
// its signing keys, where tokens appear on a request, and which verified
// claims get projected into upstream headers.
//
// Rules are immutable after load. Validate once when the policy version is
// installed; request-time evaluation only reads.
package rule

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// ErrConfiguration marks a malformed rule detected at load time.
// Per-request code never returns it.
var ErrConfiguration = errors.New("jwtgate: invalid rule configuration")

// JWTHeader names one header-based token extraction site.
// Prefix is matched literally, including any trailing space
// (e.g. "Bearer "); a value lacking the exact prefix is not a candidate.
type JWTHeader struct {
	Name   string `json:"name"`
	Prefix string `json:"prefix,omitempty"`
}

// ClaimToHeader copies one verified claim into an upstream header.
// Claim may use dotted-path notation to address nested fields
// (e.g. "nested.key.group"). Only scalar claim values are projected.
type ClaimToHeader struct {
	Header string `json:"header"`
	Claim  string `json:"claim"`
}

// JWTRule is one configured trust policy for one issuer.
type JWTRule struct {
	// Issuer must equal the token's iss claim exactly.
	Issuer string `json:"issuer"`

	// Audiences accepted for this rule. Empty means any audience passes.
	Audiences []string `json:"audiences,omitempty"`

	// JWKSURI is a remote key-set location. Mutually exclusive with JWKS.
	JWKSURI string `json:"jwks_uri,omitempty"`

	// JWKS is an inline key set: a JWKS JSON document or a PEM public key
	// block. Mutually exclusive with JWKSURI.
	JWKS string `json:"jwks,omitempty"`

	// FromHeaders lists explicit header extraction sites, tried in order.
	FromHeaders []JWTHeader `json:"from_headers,omitempty"`

	// FromParams lists query parameters to read the token from, in order.
	FromParams []string `json:"from_params,omitempty"`

	// OutputPayloadToHeader, when set, receives the base64-encoded JSON of
	// the full verified claim set.
	OutputPayloadToHeader string `json:"output_payload_to_header,omitempty"`

	// ForwardOriginalToken keeps the token on the forwarded request.
	// When false the token is stripped from its original location after
	// successful verification.
	ForwardOriginalToken bool `json:"forward_original_token,omitempty"`

	// OutputClaimToHeaders projects individual claims, in listed order.
	// Header names must be unique within the rule.
	OutputClaimToHeaders []ClaimToHeader `json:"output_claim_to_headers,omitempty"`
}

// Validate checks load-time invariants. A rule that fails Validate must not
// reach the evaluator.
func (r *JWTRule) Validate() error {
	if strings.TrimSpace(r.Issuer) == "" {
		return fmt.Errorf("%w: issuer is required", ErrConfiguration)
	}
	if r.JWKS != "" && r.JWKSURI != "" {
		return fmt.Errorf("%w: issuer %q sets both jwks and jwks_uri", ErrConfiguration, r.Issuer)
	}
	for i, h := range r.FromHeaders {
		if strings.TrimSpace(h.Name) == "" {
			return fmt.Errorf("%w: from_headers[%d] has empty name", ErrConfiguration, i)
		}
	}
	for i, p := range r.FromParams {
		if strings.TrimSpace(p) == "" {
			return fmt.Errorf("%w: from_params[%d] is empty", ErrConfiguration, i)
		}
	}
	seen := make(map[string]struct{}, len(r.OutputClaimToHeaders))
	for i, ch := range r.OutputClaimToHeaders {
		if strings.TrimSpace(ch.Header) == "" || strings.TrimSpace(ch.Claim) == "" {
			return fmt.Errorf("%w: output_claim_to_headers[%d] needs both header and claim", ErrConfiguration, i)
		}
		key := strings.ToLower(ch.Header)
		if _, dup := seen[key]; dup {
			return fmt.Errorf("%w: duplicate output header %q", ErrConfiguration, ch.Header)
		}
		seen[key] = struct{}{}
	}
	return nil
}

// SourceKind discriminates the key-source union.
type SourceKind int

const (
	// LocalKeys: inline JWKS or PEM material, no network I/O.
	LocalKeys SourceKind = iota
	// RemoteKeys: fetch from an explicit jwks_uri.
	RemoteKeys
	// DiscoveredKeys: derive the key endpoint from the issuer
	// (OpenID discovery, then service-account heuristic).
	DiscoveredKeys
)

// KeySource is the resolved tagged union over jwks/jwks_uri. Constructing it
// through JWTRule.KeySource after Validate eliminates the both-set and
// ambiguous states at the type level.
type KeySource struct {
	Kind SourceKind

	// Inline holds the literal key material for LocalKeys.
	Inline string
	// URI holds the fetch location for RemoteKeys.
	URI string
	// Issuer seeds discovery for DiscoveredKeys.
	Issuer string
}

// KeySource returns the authoritative key source for a validated rule.
func (r *JWTRule) KeySource() KeySource {
	switch {
	case r.JWKS != "":
		return KeySource{Kind: LocalKeys, Inline: r.JWKS, Issuer: r.Issuer}
	case r.JWKSURI != "":
		return KeySource{Kind: RemoteKeys, URI: r.JWKSURI, Issuer: r.Issuer}
	default:
		return KeySource{Kind: DiscoveredKeys, Issuer: r.Issuer}
	}
}

// CacheKey identifies the key source for cache sharing across requests.
// Local sources are keyed by a digest of the inline material, not just the
// issuer: two rules for one issuer may stage different key sets during a
// rotation and must not share cached keys.
func (s KeySource) CacheKey() string {
	switch s.Kind {
	case LocalKeys:
		sum := sha256.Sum256([]byte(s.Inline))
		return "local:" + s.Issuer + ":" + hex.EncodeToString(sum[:8])
	case RemoteKeys:
		return "remote:" + s.URI
	default:
		return "discovered:" + s.Issuer
	}
}
