package claims

import (
	"net/http"

	"github.com/open-rails/jwtgate/rule"
	"github.com/open-rails/jwtgate/token"
)

// Projector applies a rule's output policy to the forwarded request after
// verification succeeded: full-payload header, per-claim headers, and token
// stripping. Apply is idempotent for a given claim set.
type Projector struct {
	payloadHeader string
	mappings      []rule.ClaimToHeader
	forwardToken  bool
}

// NewProjector builds a projector for a validated rule.
func NewProjector(r *rule.JWTRule) *Projector {
	return &Projector{
		payloadHeader: r.OutputPayloadToHeader,
		mappings:      r.OutputClaimToHeaders,
		forwardToken:  r.ForwardOriginalToken,
	}
}

// Apply mutates the outgoing request headers in order: payload header first,
// then each claim mapping, then the original-token strip. Missing or
// non-scalar claims are skipped silently. The only returned error is a
// payload marshal failure, which leaves the request untouched.
func (p *Projector) Apply(req *http.Request, set Set, loc token.Location) error {
	if p.payloadHeader != "" {
		payload, err := set.Payload()
		if err != nil {
			return err
		}
		req.Header.Set(p.payloadHeader, payload)
	}
	for _, m := range p.mappings {
		v, ok := set.Lookup(m.Claim)
		if !ok {
			continue
		}
		s, ok := FormatScalar(v)
		if !ok {
			continue
		}
		req.Header.Set(m.Header, s)
	}
	if !p.forwardToken {
		token.Strip(req, loc)
	}
	return nil
}
