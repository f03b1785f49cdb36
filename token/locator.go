// Package token locates bearer tokens on inbound requests according to a
// rule's extraction policy, and can strip a located token before the request
// is forwarded upstream.
package token

import (
	"net/http"
	"strings"

	"github.com/open-rails/jwtgate/rule"
)

// LocationKind says where a candidate token was found.
type LocationKind int

const (
	// InHeader: the token came from a request header.
	InHeader LocationKind = iota
	// InQuery: the token came from a URL query parameter.
	InQuery
)

// Location records where the token was extracted from, so projection can
// strip it later when forward_original_token is false.
type Location struct {
	Kind   LocationKind
	Name   string
	Prefix string
}

// Candidate is one extracted token. Ambiguous is set when more than one
// configured location held a token; the first match still wins, callers
// should log the condition.
type Candidate struct {
	Token     string
	Location  Location
	Ambiguous bool
}

const (
	defaultHeader = "Authorization"
	defaultPrefix = "Bearer "
	defaultParam  = "access_token"
)

// Locator extracts tokens per one rule's from_headers/from_params policy.
// When both lists are empty it falls back to the Authorization bearer header
// and then the access_token query parameter.
type Locator struct {
	headers []rule.JWTHeader
	params  []string
}

// NewLocator builds a locator for a validated rule.
func NewLocator(r *rule.JWTRule) *Locator {
	l := &Locator{headers: r.FromHeaders, params: r.FromParams}
	if len(l.headers) == 0 && len(l.params) == 0 {
		l.headers = []rule.JWTHeader{{Name: defaultHeader, Prefix: defaultPrefix}}
		l.params = []string{defaultParam}
	}
	return l
}

// Extract returns at most one candidate token. Locations are tried in listed
// order, headers before params; the first match wins. Absent token is not an
// error: ok is simply false.
func (l *Locator) Extract(req *http.Request) (Candidate, bool) {
	var found []Candidate
	for _, h := range l.headers {
		raw := req.Header.Get(h.Name)
		if raw == "" {
			continue
		}
		// Prefix must match literally, trailing space included.
		if h.Prefix != "" && !strings.HasPrefix(raw, h.Prefix) {
			continue
		}
		tok := strings.TrimPrefix(raw, h.Prefix)
		if tok == "" {
			continue
		}
		found = append(found, Candidate{
			Token:    tok,
			Location: Location{Kind: InHeader, Name: h.Name, Prefix: h.Prefix},
		})
	}
	q := req.URL.Query()
	for _, p := range l.params {
		if tok := q.Get(p); tok != "" {
			found = append(found, Candidate{
				Token:    tok,
				Location: Location{Kind: InQuery, Name: p},
			})
		}
	}
	if len(found) == 0 {
		return Candidate{}, false
	}
	c := found[0]
	c.Ambiguous = len(found) > 1
	return c, true
}

// Strip removes the token from its original location on the outgoing request.
// Stripping an already-stripped location is a no-op.
func Strip(req *http.Request, loc Location) {
	switch loc.Kind {
	case InHeader:
		req.Header.Del(loc.Name)
	case InQuery:
		q := req.URL.Query()
		q.Del(loc.Name)
		req.URL.RawQuery = q.Encode()
	}
}
