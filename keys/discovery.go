package keys

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

type discoveryDoc struct {
	Issuer  string `json:"issuer"`
	JWKSURI string `json:"jwks_uri"`
}

// discoverJWKSURL resolves the issuer's key endpoint through OpenID discovery
// at {issuer}/.well-known/openid-configuration.
func discoverJWKSURL(ctx context.Context, client *http.Client, issuer string) (string, error) {
	trimmed := strings.TrimRight(issuer, "/")
	if trimmed == "" {
		return "", errors.New("issuer is empty")
	}
	discoveryURL := trimmed + "/.well-known/openid-configuration"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, discoveryURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("discovery failed: %s", resp.Status)
	}
	var doc discoveryDoc
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return "", err
	}
	discoveredIssuer := strings.TrimRight(doc.Issuer, "/")
	if discoveredIssuer != "" && discoveredIssuer != trimmed {
		return "", fmt.Errorf("discovery issuer mismatch: %s", doc.Issuer)
	}
	if doc.JWKSURI == "" {
		return "", errors.New("discovery document has no jwks_uri")
	}
	return doc.JWKSURI, nil
}

// serviceAccountJWKSURL derives a conventional key endpoint for email-like
// issuers (service accounts). It is the last resort when discovery fails.
func serviceAccountJWKSURL(issuer string) (string, bool) {
	at := strings.Index(issuer, "@")
	if at <= 0 || at == len(issuer)-1 {
		return "", false
	}
	return "https://www.googleapis.com/service_accounts/v1/jwk/" + issuer, true
}
