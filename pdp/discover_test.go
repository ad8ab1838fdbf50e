package pdp

import (
	"fmt"
	"strings"
	"testing"

	"github.com/storelens/storelens/policy"
)

func testPatterns() []string {
	rules, _ := policy.NewRegistry().Resolve("")
	return rules.PDPPathPatterns
}

func TestDiscover_ProductContainersFirst(t *testing.T) {
	html := `<html><body>
		<a href="/products/late-pattern-match">Pattern only</a>
		<div class="product-card"><a href="/products/container-first">Card</a></div>
	</body></html>`

	got := Discover(html, "https://shop.example/", testPatterns(), 20)
	if len(got) != 2 {
		t.Fatalf("expected 2 candidates, got %v", got)
	}
	if !strings.HasSuffix(got[0], "/products/container-first") {
		t.Errorf("container links must rank first: %v", got)
	}
}

func TestDiscover_ScopedTiersRankBeforeBodyLinks(t *testing.T) {
	html := `<html><body>
		<a href="/products/body-link">plain body link</a>
		<section class="featured-products"><a href="/products/featured-link">featured</a></section>
		<nav><a href="/products/nav-link">category nav</a></nav>
	</body></html>`

	got := Discover(html, "https://shop.example/", testPatterns(), 20)
	if len(got) != 3 {
		t.Fatalf("expected 3 candidates, got %v", got)
	}
	want := []string{"featured-link", "nav-link", "body-link"}
	for i, suffix := range want {
		if !strings.HasSuffix(got[i], "/products/"+suffix) {
			t.Errorf("position %d: want %s, got %v", i, suffix, got)
		}
	}
}

func TestDiscover_PatternGating(t *testing.T) {
	html := `<html><body>
		<a href="/products/tent">tent</a>
		<a href="/p/12345">short form</a>
		<a href="/items/pack">item</a>
		<a href="/collections/sale/products/stove">shopify</a>
		<a href="/blog/posts/camping">blog</a>
		<a href="/pages/shipping">info page</a>
	</body></html>`

	got := Discover(html, "https://shop.example/", testPatterns(), 20)
	if len(got) != 4 {
		t.Fatalf("expected 4 candidates, got %v", got)
	}
	for _, u := range got {
		if strings.Contains(u, "/blog/") || strings.Contains(u, "/pages/") {
			t.Errorf("non-product link leaked: %s", u)
		}
	}
}

func TestDiscover_ExcludedSegments(t *testing.T) {
	html := `<html><body>
		<a href="/products/tent">good</a>
		<a href="/account/products/saved">account</a>
		<a href="/cart/products/pending">cart</a>
		<a href="/checkout/products/step">checkout</a>
		<a href="/login/products/x">login</a>
	</body></html>`

	got := Discover(html, "https://shop.example/", testPatterns(), 20)
	if len(got) != 1 || !strings.HasSuffix(got[0], "/products/tent") {
		t.Errorf("excluded segments must drop candidates: %v", got)
	}
}

func TestDiscover_SameHostOnly(t *testing.T) {
	html := `<html><body>
		<a href="https://other.example/products/offsite">offsite</a>
		<a href="https://www.shop.example/products/www-variant">www</a>
		<a href="/products/relative">relative</a>
		<a href="mailto:sales@shop.example">mail</a>
		<a href="javascript:void(0)">js</a>
	</body></html>`

	got := Discover(html, "https://shop.example/", testPatterns(), 20)
	if len(got) != 2 {
		t.Fatalf("expected 2 same-host candidates, got %v", got)
	}
}

func TestDiscover_DedupeAndCap(t *testing.T) {
	var b strings.Builder
	b.WriteString("<html><body>")
	for i := 0; i < 30; i++ {
		fmt.Fprintf(&b, `<a href="/products/item-%d">item</a>`, i)
		fmt.Fprintf(&b, `<a href="/products/item-%d#reviews">dup with fragment</a>`, i)
	}
	b.WriteString("</body></html>")

	got := Discover(b.String(), "https://shop.example/", testPatterns(), 20)
	if len(got) != 20 {
		t.Fatalf("expected cap at 20, got %d", len(got))
	}
	seen := make(map[string]bool)
	for _, u := range got {
		if seen[u] {
			t.Errorf("duplicate candidate: %s", u)
		}
		seen[u] = true
	}
}

func TestDiscover_Deterministic(t *testing.T) {
	html := `<html><body>
		<div class="product-grid">
			<a href="/products/a">a</a><a href="/products/b">b</a>
		</div>
		<a href="/p/1">one</a><a href="/items/z">z</a>
	</body></html>`

	first := Discover(html, "https://shop.example/", testPatterns(), 20)
	for i := 0; i < 5; i++ {
		again := Discover(html, "https://shop.example/", testPatterns(), 20)
		if len(again) != len(first) {
			t.Fatalf("length changed between runs: %v vs %v", first, again)
		}
		for j := range first {
			if first[j] != again[j] {
				t.Fatalf("order changed between runs: %v vs %v", first, again)
			}
		}
	}
}

func TestDiscover_EmptyInputs(t *testing.T) {
	if got := Discover("", "https://shop.example/", testPatterns(), 20); len(got) != 0 {
		t.Errorf("empty html should yield nothing, got %v", got)
	}
	if got := Discover("<a href='/products/x'>x</a>", "://bad", testPatterns(), 20); len(got) != 0 {
		t.Errorf("bad base URL should yield nothing, got %v", got)
	}
}
