package claims

import (
	"encoding/base64"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/open-rails/jwtgate/rule"
	"github.com/open-rails/jwtgate/token"
)

func TestDecode(t *testing.T) {
	payload := base64.RawURLEncoding.EncodeToString([]byte(`{"sub":"u1","nested":{"key":{"group":"admin"}}}`))
	raw := "eyJhbGciOiJSUzI1NiJ9." + payload + ".sig"

	set, err := Decode(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if set["sub"] != "u1" {
		t.Fatalf("sub = %v", set["sub"])
	}
}

func TestDecodeRejectsNonCompact(t *testing.T) {
	if _, err := Decode("not-a-jwt"); err == nil {
		t.Fatal("expected error for non-compact input")
	}
}

func TestLookupDottedPath(t *testing.T) {
	set := Set{"nested": map[string]any{"key": map[string]any{"group": "admin"}}}

	v, ok := set.Lookup("nested.key.group")
	if !ok || v != "admin" {
		t.Fatalf("got %v ok=%v", v, ok)
	}

	if _, ok := set.Lookup("nested.missing.group"); ok {
		t.Fatal("missing segment must not resolve")
	}
	if _, ok := set.Lookup("nested.key.group.deeper"); ok {
		t.Fatal("descending through a scalar must not resolve")
	}
}

func TestFormatScalar(t *testing.T) {
	cases := []struct {
		in   any
		want string
		ok   bool
	}{
		{"admin", "admin", true},
		{true, "true", true},
		{float64(3), "3", true},
		{float64(3.5), "3.5", true},
		{float64(-42), "-42", true},
		// Integral values past 2^53 must not round-trip through int64.
		{float64(1e20), "100000000000000000000", true},
		{float64(-1e20), "-100000000000000000000", true},
		{math.Inf(1), "", false},
		{json.Number("42"), "42", true},
		{map[string]any{"a": 1}, "", false},
		{[]any{"a"}, "", false},
		{nil, "", false},
	}
	for _, tc := range cases {
		got, ok := FormatScalar(tc.in)
		if ok != tc.ok || got != tc.want {
			t.Errorf("FormatScalar(%v) = %q,%v want %q,%v", tc.in, got, ok, tc.want, tc.ok)
		}
	}
}

func TestProjectNestedClaim(t *testing.T) {
	p := NewProjector(&rule.JWTRule{
		Issuer: "https://example.com",
		OutputClaimToHeaders: []rule.ClaimToHeader{
			{Header: "x-jwt-claim-group", Claim: "nested.key.group"},
		},
		ForwardOriginalToken: true,
	})
	set := Set{"nested": map[string]any{"key": map[string]any{"group": "admin"}}}

	req := httptest.NewRequest("GET", "/svc", nil)
	if err := p.Apply(req, set, token.Location{}); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if got := req.Header.Get("x-jwt-claim-group"); got != "admin" {
		t.Fatalf("header = %q, want admin", got)
	}
}

func TestProjectSkipsNonScalarAndMissing(t *testing.T) {
	p := NewProjector(&rule.JWTRule{
		Issuer: "https://example.com",
		OutputClaimToHeaders: []rule.ClaimToHeader{
			{Header: "x-jwt-nested", Claim: "nested"},
			{Header: "x-jwt-missing", Claim: "nope"},
		},
		ForwardOriginalToken: true,
	})
	set := Set{"nested": map[string]any{"key": "v"}}

	req := httptest.NewRequest("GET", "/svc", nil)
	if err := p.Apply(req, set, token.Location{}); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if _, ok := req.Header["X-Jwt-Nested"]; ok {
		t.Fatal("non-scalar claim must not be written")
	}
	if _, ok := req.Header["X-Jwt-Missing"]; ok {
		t.Fatal("missing claim must not be written")
	}
}

func TestProjectPayloadHeader(t *testing.T) {
	p := NewProjector(&rule.JWTRule{
		Issuer:                "https://example.com",
		OutputPayloadToHeader: "x-jwt-payload",
		ForwardOriginalToken:  true,
	})
	set := Set{"sub": "u1"}

	req := httptest.NewRequest("GET", "/svc", nil)
	req.Header.Set("x-jwt-payload", "stale")
	if err := p.Apply(req, set, token.Location{}); err != nil {
		t.Fatalf("apply: %v", err)
	}

	raw, err := base64.StdEncoding.DecodeString(req.Header.Get("x-jwt-payload"))
	if err != nil {
		t.Fatalf("payload header is not base64: %v", err)
	}
	var round map[string]any
	if err := json.Unmarshal(raw, &round); err != nil {
		t.Fatalf("payload header is not JSON: %v", err)
	}
	if round["sub"] != "u1" {
		t.Fatalf("payload = %v", round)
	}
}

func TestProjectStripsOriginalToken(t *testing.T) {
	p := NewProjector(&rule.JWTRule{Issuer: "https://example.com"})
	req := httptest.NewRequest("GET", "/svc", nil)
	req.Header.Set("Authorization", "Bearer a.b.c")

	loc := token.Location{Kind: token.InHeader, Name: "Authorization", Prefix: "Bearer "}
	if err := p.Apply(req, Set{"sub": "u1"}, loc); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if req.Header.Get("Authorization") != "" {
		t.Fatal("original token must be stripped when forward_original_token is false")
	}
}

func TestProjectIdempotent(t *testing.T) {
	p := NewProjector(&rule.JWTRule{
		Issuer:                "https://example.com",
		OutputPayloadToHeader: "x-jwt-payload",
		OutputClaimToHeaders: []rule.ClaimToHeader{
			{Header: "x-jwt-sub", Claim: "sub"},
		},
	})
	set := Set{"sub": "u1"}
	loc := token.Location{Kind: token.InQuery, Name: "access_token"}

	req := httptest.NewRequest("GET", "/svc?access_token=a.b.c", nil)
	if err := p.Apply(req, set, loc); err != nil {
		t.Fatalf("first apply: %v", err)
	}
	first := cloneHeader(req.Header)
	firstQuery := req.URL.RawQuery

	if err := p.Apply(req, set, loc); err != nil {
		t.Fatalf("second apply: %v", err)
	}
	if !reflect.DeepEqual(first, req.Header) {
		t.Fatalf("headers changed across reapply:\n%v\n%v", first, req.Header)
	}
	if req.URL.RawQuery != firstQuery {
		t.Fatalf("query changed across reapply: %q vs %q", firstQuery, req.URL.RawQuery)
	}
}

func cloneHeader(h http.Header) http.Header {
	out := make(http.Header, len(h))
	for k, v := range h {
		out[k] = append([]string(nil), v...)
	}
	return out
}
