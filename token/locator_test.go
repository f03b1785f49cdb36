package token

import (
	"net/http/httptest"
	"testing"

	"github.com/open-rails/jwtgate/rule"
)

func TestExtractWithPrefix(t *testing.T) {
	loc := NewLocator(&rule.JWTRule{
		Issuer:      "https://example.com",
		FromHeaders: []rule.JWTHeader{{Name: "x-jwt-assertion", Prefix: "Bearer "}},
	})

	req := httptest.NewRequest("GET", "/svc", nil)
	req.Header.Set("x-jwt-assertion", "Bearer abc.def.ghi")

	c, ok := loc.Extract(req)
	if !ok {
		t.Fatal("expected a candidate")
	}
	if c.Token != "abc.def.ghi" {
		t.Fatalf("token = %q", c.Token)
	}
	if c.Location.Kind != InHeader || c.Location.Name != "x-jwt-assertion" {
		t.Fatalf("unexpected location: %+v", c.Location)
	}
}

func TestExtractPrefixMismatch(t *testing.T) {
	loc := NewLocator(&rule.JWTRule{
		Issuer:      "https://example.com",
		FromHeaders: []rule.JWTHeader{{Name: "x-jwt-assertion", Prefix: "Bearer "}},
	})

	req := httptest.NewRequest("GET", "/svc", nil)
	req.Header.Set("x-jwt-assertion", "Token abc.def.ghi")

	if _, ok := loc.Extract(req); ok {
		t.Fatal("prefix mismatch must not yield a candidate")
	}
}

func TestExtractExplicitLocationsOnly(t *testing.T) {
	// With from_params configured, the default Authorization header is ignored.
	loc := NewLocator(&rule.JWTRule{
		Issuer:     "https://example.com",
		FromParams: []string{"jwt"},
	})

	req := httptest.NewRequest("GET", "/svc?jwt=p.q.r", nil)
	req.Header.Set("Authorization", "Bearer h.h.h")

	c, ok := loc.Extract(req)
	if !ok || c.Token != "p.q.r" {
		t.Fatalf("got %+v ok=%v, want query token", c, ok)
	}
	if c.Location.Kind != InQuery || c.Location.Name != "jwt" {
		t.Fatalf("unexpected location: %+v", c.Location)
	}
}

func TestExtractDefaultFallback(t *testing.T) {
	loc := NewLocator(&rule.JWTRule{Issuer: "https://example.com"})

	req := httptest.NewRequest("GET", "/svc", nil)
	req.Header.Set("Authorization", "Bearer a.b.c")
	if c, ok := loc.Extract(req); !ok || c.Token != "a.b.c" {
		t.Fatalf("bearer fallback failed: %+v ok=%v", c, ok)
	}

	req = httptest.NewRequest("GET", "/svc?access_token=x.y.z", nil)
	if c, ok := loc.Extract(req); !ok || c.Token != "x.y.z" {
		t.Fatalf("access_token fallback failed: %+v ok=%v", c, ok)
	}
}

func TestExtractAbsent(t *testing.T) {
	loc := NewLocator(&rule.JWTRule{Issuer: "https://example.com"})
	req := httptest.NewRequest("GET", "/svc", nil)
	if _, ok := loc.Extract(req); ok {
		t.Fatal("no token present, expected ok=false")
	}
}

func TestExtractAmbiguousFirstWins(t *testing.T) {
	loc := NewLocator(&rule.JWTRule{
		Issuer: "https://example.com",
		FromHeaders: []rule.JWTHeader{
			{Name: "x-first", Prefix: ""},
			{Name: "x-second", Prefix: ""},
		},
	})

	req := httptest.NewRequest("GET", "/svc", nil)
	req.Header.Set("x-first", "a.a.a")
	req.Header.Set("x-second", "b.b.b")

	c, ok := loc.Extract(req)
	if !ok || c.Token != "a.a.a" {
		t.Fatalf("first listed location must win, got %+v", c)
	}
	if !c.Ambiguous {
		t.Fatal("expected ambiguity flag when two locations hold tokens")
	}
}

func TestStrip(t *testing.T) {
	req := httptest.NewRequest("GET", "/svc?access_token=x.y.z&keep=1", nil)
	req.Header.Set("Authorization", "Bearer a.b.c")

	Strip(req, Location{Kind: InHeader, Name: "Authorization"})
	if req.Header.Get("Authorization") != "" {
		t.Fatal("header not stripped")
	}

	Strip(req, Location{Kind: InQuery, Name: "access_token"})
	q := req.URL.Query()
	if q.Get("access_token") != "" {
		t.Fatal("query param not stripped")
	}
	if q.Get("keep") != "1" {
		t.Fatal("unrelated query param lost")
	}

	// Stripping again is a no-op.
	Strip(req, Location{Kind: InQuery, Name: "access_token"})
}
