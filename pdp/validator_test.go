package pdp

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ysmood/gson"
)

// fakePage implements browser.Page; only Eval carries behavior.
type fakePage struct {
	eval      func() (gson.JSON, error)
	evalCalls int
}

func (p *fakePage) Navigate(ctx context.Context, url string) error { return nil }
func (p *fakePage) Reload(ctx context.Context) error               { return nil }
func (p *fakePage) StatusCode(ctx context.Context) int             { return 200 }
func (p *fakePage) Title(ctx context.Context) (string, error)      { return "", nil }
func (p *fakePage) BodyText(ctx context.Context) (string, error)   { return "", nil }
func (p *fakePage) HTML(ctx context.Context) (string, error)       { return "", nil }
func (p *fakePage) Screenshot(ctx context.Context) ([]byte, error) { return nil, nil }

func (p *fakePage) Eval(ctx context.Context, js string, args ...any) (gson.JSON, error) {
	p.evalCalls++
	if p.eval != nil {
		return p.eval()
	}
	return gson.New(nil), nil
}

func (p *fakePage) EvalInFrames(ctx context.Context, js string, args ...any) ([]gson.JSON, error) {
	return nil, nil
}

func (p *fakePage) Click(ctx context.Context, selector string) error                { return nil }
func (p *fakePage) WaitNetworkIdle(ctx context.Context, window time.Duration) error { return nil }
func (p *fakePage) WaitDOMStable(ctx context.Context, window time.Duration) error   { return nil }
func (p *fakePage) Close() error                                                    { return nil }

func signalsResult(price, title, image, cart, schema bool) gson.JSON {
	return gson.New(map[string]any{
		"has_price": price, "has_title": title, "has_image": image,
		"has_add_to_cart": cart, "has_product_schema": schema,
	})
}

func TestValidator_CachesVerdictPerVersion(t *testing.T) {
	v := NewValidator()
	pg := &fakePage{
		eval: func() (gson.JSON, error) { return signalsResult(true, true, true, true, false), nil },
	}
	advisory := rulesFor(t, "v1.3")
	url := "https://shop.example/products/tent"

	if _, ok := v.Cached(url, advisory); ok {
		t.Fatal("empty cache must miss")
	}
	verdict := v.Validate(context.Background(), pg, url, advisory)
	if !verdict.Valid {
		t.Fatalf("expected valid verdict, got %+v", verdict)
	}
	if pg.evalCalls != 1 {
		t.Errorf("expected 1 extraction, got %d", pg.evalCalls)
	}

	cached, ok := v.Cached(url, advisory)
	if !ok || !cached.Valid {
		t.Errorf("verdict must be cached: ok=%v %+v", ok, cached)
	}
	// Another policy version applies a different validity rule, so its
	// verdict is computed separately.
	if _, ok := v.Cached(url, rulesFor(t, "v1.2")); ok {
		t.Error("cache must not cross policy versions")
	}
}

func TestValidator_ExtractionFailureCachesInvalid(t *testing.T) {
	v := NewValidator()
	pg := &fakePage{
		eval: func() (gson.JSON, error) { return gson.New(nil), errors.New("target closed") },
	}
	rules := rulesFor(t, "v1.3")
	url := "https://shop.example/products/gone"

	if v.Validate(context.Background(), pg, url, rules).Valid {
		t.Error("extraction failure must be invalid")
	}
	cached, ok := v.Cached(url, rules)
	if !ok || cached.Valid {
		t.Errorf("invalid verdict must be cached too: ok=%v %+v", ok, cached)
	}
}
