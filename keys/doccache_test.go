package keys

import (
	"context"
	"sync"
	"testing"

	"github.com/open-rails/jwtgate/rule"
	authtest "github.com/open-rails/jwtgate/testing"
)

type memDocCache struct {
	mu   sync.Mutex
	docs map[string][]byte
	gets int
	puts int
}

func newMemDocCache() *memDocCache {
	return &memDocCache{docs: make(map[string][]byte)}
}

func (m *memDocCache) Get(_ context.Context, url string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gets++
	doc, ok := m.docs[url]
	return doc, ok, nil
}

func (m *memDocCache) Put(_ context.Context, url string, doc []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.puts++
	m.docs[url] = doc
	return nil
}

func TestResolverPopulatesDocCache(t *testing.T) {
	ti := authtest.NewTestIssuer()
	defer ti.Close()

	docs := newMemDocCache()
	r := NewResolver(testConfig(), WithDocCache(docs))

	_, err := r.Resolve(context.Background(), &rule.JWTRule{
		Issuer:  ti.URL(),
		JWKSURI: ti.JWKSURL(),
	})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if docs.puts != 1 {
		t.Fatalf("doc cache puts = %d, want 1", docs.puts)
	}
}

func TestResolverServesFromDocCache(t *testing.T) {
	ti := authtest.NewTestIssuer()
	url := ti.JWKSURL()
	inline := ti.InlineJWKS()
	ti.Close()

	// Seed the shared cache as another instance would have.
	docs := newMemDocCache()
	docs.docs[url] = []byte(inline)

	r := NewResolver(testConfig(), WithDocCache(docs))
	set, err := r.Resolve(context.Background(), &rule.JWTRule{
		Issuer:  "https://example.com",
		JWKSURI: url,
	})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if set.Len() != 1 {
		t.Fatalf("set has %d keys, want 1", set.Len())
	}
}
