// Package engine evaluates one JWT trust rule against one inbound request:
// locate the token, resolve the issuer's keys, verify, then project claims
// onto the forwarded request. Evaluations are independent and share only the
// immutable rule and the resolver's key cache, so any number may run
// concurrently.
package engine

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/open-rails/jwtgate/claims"
	"github.com/open-rails/jwtgate/keys"
	"github.com/open-rails/jwtgate/rule"
	"github.com/open-rails/jwtgate/token"
	"github.com/open-rails/jwtgate/verify"
)

// Status is the terminal state of a rule evaluation.
type Status int

const (
	// StatusNoToken: no candidate token in any configured location. The
	// rule simply does not authenticate this request; not an error.
	StatusNoToken Status = iota
	// StatusVerified: token verified, claims projected onto the request.
	StatusVerified
	// StatusRejected: a token was found but failed verification.
	StatusRejected
)

// ErrProjection marks a verified token whose claim projection could not be
// applied to the request. Distinct from token-validation failures so
// observability does not blame the client.
var ErrProjection = errors.New("jwtgate: claim projection failed")

func (s Status) String() string {
	switch s {
	case StatusVerified:
		return "verified"
	case StatusRejected:
		return "rejected"
	default:
		return "no_token"
	}
}

// Result reports the evaluation outcome. Reason is set only for
// StatusRejected and wraps one of the typed rejection errors.
type Result struct {
	Status Status
	Claims claims.Set
	Reason error
}

// ReasonKind names the rejection class for callers and metrics. Empty when
// the evaluation was not rejected.
func (r Result) ReasonKind() string {
	switch {
	case r.Reason == nil:
		return ""
	case errors.Is(r.Reason, keys.ErrKeyResolution):
		return "key_resolution"
	case errors.Is(r.Reason, verify.ErrMalformedToken):
		return "malformed_token"
	case errors.Is(r.Reason, verify.ErrSignature):
		return "signature"
	case errors.Is(r.Reason, verify.ErrIssuerMismatch):
		return "issuer_mismatch"
	case errors.Is(r.Reason, verify.ErrAudienceMismatch):
		return "audience_mismatch"
	case errors.Is(r.Reason, verify.ErrExpired):
		return "expired"
	case errors.Is(r.Reason, verify.ErrNotYetValid):
		return "not_yet_valid"
	case errors.Is(r.Reason, ErrProjection):
		return "projection"
	default:
		return "other"
	}
}

// Evaluator binds one validated rule to the shared key resolver.
type Evaluator struct {
	rule      *rule.JWTRule
	locator   *token.Locator
	projector *claims.Projector
	resolver  *keys.Resolver
	log       logrus.FieldLogger
}

// EvalOption configures an Evaluator.
type EvalOption func(*Evaluator)

// WithLogger overrides the evaluator's logger.
func WithLogger(l logrus.FieldLogger) EvalOption {
	return func(e *Evaluator) { e.log = l }
}

// NewEvaluator builds an evaluator for a rule. The rule must already have
// passed Validate; a broken rule is a programming error here.
func NewEvaluator(r *rule.JWTRule, resolver *keys.Resolver, opts ...EvalOption) (*Evaluator, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	e := &Evaluator{
		rule:      r,
		locator:   token.NewLocator(r),
		projector: claims.NewProjector(r),
		resolver:  resolver,
		log:       logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Rule returns the evaluator's rule.
func (e *Evaluator) Rule() *rule.JWTRule { return e.rule }

// Evaluate runs the rule against one request, short-circuiting on the first
// failure. On StatusVerified the request has been mutated per the rule's
// output policy; on any other status it is untouched.
func (e *Evaluator) Evaluate(ctx context.Context, req *http.Request) Result {
	log := e.log.WithFields(logrus.Fields{
		"issuer":  e.rule.Issuer,
		"eval_id": uuid.NewString(),
	})

	cand, ok := e.locator.Extract(req)
	if !ok {
		return Result{Status: StatusNoToken}
	}
	if cand.Ambiguous {
		// Multiple configured locations held a token. First-found wins;
		// the condition is surfaced because it usually means a client bug.
		log.Warn("token present in multiple locations, using first match")
	}

	keySet, err := e.resolver.Resolve(ctx, e.rule)
	if err != nil {
		log.WithError(err).Warn("key resolution failed")
		return Result{Status: StatusRejected, Reason: err}
	}

	set, err := verify.Verify(ctx, cand.Token, keySet, e.rule.Issuer, e.rule.Audiences)
	if err != nil {
		log.WithError(err).Debug("token rejected")
		return Result{Status: StatusRejected, Reason: err}
	}

	if err := e.projector.Apply(req, set, cand.Location); err != nil {
		log.WithError(err).Warn("claim projection failed")
		return Result{
			Status: StatusRejected,
			Reason: fmt.Errorf("%w: %v", ErrProjection, err),
		}
	}
	return Result{Status: StatusVerified, Claims: set}
}
