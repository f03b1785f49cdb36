package testing

import (
	"encoding/json"

	"github.com/lestrrat-go/jwx/v2/jwk"
)

// marshalJWKS renders the signer's public key as a one-key JWKS document,
// the same shape the resolver parses back with jwk.Parse.
func marshalJWKS(s *RSASigner) ([]byte, error) {
	key, err := jwk.FromRaw(s.PublicKey())
	if err != nil {
		return nil, err
	}
	if err := key.Set(jwk.KeyIDKey, s.KID()); err != nil {
		return nil, err
	}
	if err := key.Set(jwk.AlgorithmKey, s.Algorithm()); err != nil {
		return nil, err
	}
	if err := key.Set(jwk.KeyUsageKey, "sig"); err != nil {
		return nil, err
	}
	set := jwk.NewSet()
	if err := set.AddKey(key); err != nil {
		return nil, err
	}
	return json.Marshal(set)
}
