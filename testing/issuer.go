// Package testing provides a mock token issuer for testing the verification
// engine without a real identity provider. The issuer runs an HTTP server
// exposing both a JWKS endpoint and OpenID discovery metadata, and signs
// tokens that validate against the served key set.
//
// Example usage:
//
//	issuer := NewTestIssuer()
//	defer issuer.Close()
//
//	r := rule.JWTRule{Issuer: issuer.URL(), JWKSURI: issuer.JWKSURL()}
//	tok := issuer.SignClaims(map[string]any{"sub": "user-123"})
package testing

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

// TestIssuer is a complete mock issuer: key pair, JWKS endpoint, and OpenID
// discovery document. Call Close when done.
type TestIssuer struct {
	server   *httptest.Server
	signer   *RSASigner
	audience string
}

// NewTestIssuer creates a mock issuer with audience "test-app".
func NewTestIssuer() *TestIssuer {
	return NewTestIssuerWithAudience("test-app")
}

// NewTestIssuerWithAudience creates a mock issuer minting tokens with the
// given default audience.
func NewTestIssuerWithAudience(audience string) *TestIssuer {
	signer, err := NewRSASigner(2048, "test-key-1")
	if err != nil {
		panic("failed to create RSA signer: " + err.Error())
	}

	ti := &TestIssuer{signer: signer, audience: audience}

	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/jwks.json", ti.handleJWKS)
	mux.HandleFunc("/.well-known/openid-configuration", ti.handleDiscovery)

	ti.server = httptest.NewServer(mux)
	return ti
}

// URL returns the issuer URL. Tokens are minted with iss set to this unless
// overridden per call.
func (ti *TestIssuer) URL() string { return ti.server.URL }

// JWKSURL returns the key-set endpoint for jwks_uri-based rules.
func (ti *TestIssuer) JWKSURL() string { return ti.server.URL + "/.well-known/jwks.json" }

// Audience returns the default audience for minted tokens.
func (ti *TestIssuer) Audience() string { return ti.audience }

// Close shuts down the test server.
func (ti *TestIssuer) Close() {
	if ti.server != nil {
		ti.server.Close()
	}
}

// InlineJWKS returns the issuer's key set as a JWKS JSON string, suitable for
// a rule's inline jwks field.
func (ti *TestIssuer) InlineJWKS() string {
	b, err := marshalJWKS(ti.signer)
	if err != nil {
		panic("failed to marshal JWKS: " + err.Error())
	}
	return string(b)
}

func (ti *TestIssuer) handleJWKS(w http.ResponseWriter, _ *http.Request) {
	b, err := marshalJWKS(ti.signer)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(b)
}

func (ti *TestIssuer) handleDiscovery(w http.ResponseWriter, _ *http.Request) {
	doc := map[string]string{
		"issuer":                 ti.server.URL,
		"authorization_endpoint": ti.server.URL + "/authorize",
		"token_endpoint":         ti.server.URL + "/token",
		"jwks_uri":               ti.JWKSURL(),
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(doc)
}

// SignClaims mints a signed token. Standard claims (iss, aud, exp, iat) are
// filled with issuer defaults and may be overridden through the map.
func (ti *TestIssuer) SignClaims(extra map[string]any) string {
	now := time.Now()
	claims := jwt.MapClaims{
		"iss": ti.URL(),
		"aud": ti.audience,
		"exp": now.Add(time.Hour).Unix(),
		"iat": now.Unix(),
	}
	for k, v := range extra {
		claims[k] = v
	}
	tok, err := ti.signer.Sign(context.Background(), claims)
	if err != nil {
		panic("failed to sign token: " + err.Error())
	}
	return tok
}

// CreateToken mints a token for the given subject with issuer defaults.
func (ti *TestIssuer) CreateToken(userID string) string {
	return ti.SignClaims(map[string]any{"sub": userID})
}

// CreateExpiredToken mints a token whose exp is already in the past.
func (ti *TestIssuer) CreateExpiredToken(userID string) string {
	return ti.SignClaims(map[string]any{
		"sub": userID,
		"iat": time.Now().Add(-2 * time.Hour).Unix(),
		"exp": time.Now().Add(-time.Hour).Unix(),
	})
}
