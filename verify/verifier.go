// Package verify validates a candidate token against a resolved key set and
// the rule's issuer/audience constraints. All failures are terminal for the
// rule+request pair and distinguishable via errors.Is.
package verify

import (
	"context"
	"errors"
	"fmt"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jws"
	jwxt "github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/open-rails/jwtgate/claims"
)

// Rejection reasons. Each maps to one observable failure class.
var (
	// ErrMalformedToken: the candidate is not a structurally valid JWT.
	ErrMalformedToken = errors.New("jwtgate: malformed token")
	// ErrSignature: no key in the resolved set validates the signature.
	ErrSignature = errors.New("jwtgate: signature verification failed")
	// ErrIssuerMismatch: iss does not equal the configured issuer.
	ErrIssuerMismatch = errors.New("jwtgate: issuer mismatch")
	// ErrAudienceMismatch: aud does not intersect the configured audiences.
	ErrAudienceMismatch = errors.New("jwtgate: audience mismatch")
	// ErrExpired: exp is in the past.
	ErrExpired = errors.New("jwtgate: token expired")
	// ErrNotYetValid: nbf (or iat) is in the future.
	ErrNotYetValid = errors.New("jwtgate: token not yet valid")
)

// Verify checks signature, issuer, time claims and audience, in that order,
// returning the decoded claim set on success. Audiences is the rule's allow
// list; empty means any audience passes.
func Verify(ctx context.Context, raw string, keys jwk.Set, issuer string, audiences []string) (claims.Set, error) {
	// Structural parse first, so garbage is reported as malformed rather
	// than as a signature failure.
	if _, err := jwxt.ParseString(raw, jwxt.WithVerify(false), jwxt.WithValidate(false)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}

	tok, err := jwxt.ParseString(
		raw,
		jwxt.WithKeySet(keys, jws.WithInferAlgorithmFromKey(true), jws.WithRequireKid(false)),
		jwxt.WithValidate(false),
		jwxt.WithContext(ctx),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSignature, err)
	}

	if tok.Issuer() != issuer {
		return nil, fmt.Errorf("%w: token iss %q, rule issuer %q", ErrIssuerMismatch, tok.Issuer(), issuer)
	}

	if err := jwxt.Validate(tok); err != nil {
		switch {
		case errors.Is(err, jwxt.ErrTokenExpired()):
			return nil, fmt.Errorf("%w: %v", ErrExpired, err)
		case errors.Is(err, jwxt.ErrTokenNotYetValid()), errors.Is(err, jwxt.ErrInvalidIssuedAt()):
			return nil, fmt.Errorf("%w: %v", ErrNotYetValid, err)
		default:
			return nil, fmt.Errorf("%w: %v", ErrMalformedToken, err)
		}
	}

	if len(audiences) > 0 && !intersects(tok.Audience(), audiences) {
		return nil, fmt.Errorf("%w: token aud %v, rule audiences %v", ErrAudienceMismatch, tok.Audience(), audiences)
	}

	set, err := claims.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}
	return set, nil
}

func intersects(tokenAud, ruleAud []string) bool {
	for _, ta := range tokenAud {
		for _, ra := range ruleAud {
			if ta == ra {
				return true
			}
		}
	}
	return false
}
