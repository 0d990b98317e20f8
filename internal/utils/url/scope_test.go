package urlutil

import "testing"

func TestSameScopeDomain(t *testing.T) {
	if !SameScope("domain", "https://example.com/a", "https://example.com/b") {
		t.Error("expected same-domain URLs to be in scope")
	}
	if SameScope("domain", "https://example.com", "https://other.com") {
		t.Error("expected different domains to be out of scope")
	}
}

func TestSameScopeSubdomain(t *testing.T) {
	if !SameScope("subdomain", "https://example.com", "https://blog.example.com/post") {
		t.Error("expected subdomain to be in scope")
	}
}

func TestSameScopeSubdomainMultiLabelTLD(t *testing.T) {
	if !SameScope("subdomain", "https://example.co.uk", "https://shop.example.co.uk/item") {
		t.Error("expected subdomain under a multi-label TLD to be in scope")
	}
	if SameScope("subdomain", "https://example.co.uk", "https://other.co.uk") {
		t.Error("expected a sibling registrable domain under the same multi-label TLD to be out of scope")
	}
}

func TestSameScopePath(t *testing.T) {
	if !SameScope("path", "https://example.com/docs", "https://example.com/docs/intro") {
		t.Error("expected nested path to be in scope")
	}
	if SameScope("path", "https://example.com/docs", "https://example.com/blog") {
		t.Error("expected sibling path to be out of scope")
	}
}

func TestCanonicalKeyStripsFragmentAndTrailingSlash(t *testing.T) {
	a := CanonicalKey("https://example.com/page/#section")
	b := CanonicalKey("https://example.com/page")
	if a != b {
		t.Errorf("expected canonical keys to match, got %q vs %q", a, b)
	}
}
