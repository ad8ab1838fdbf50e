package pdp

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	utls "github.com/refraction-networking/utls"
)

const chromeUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

// maxProbeBody caps the HTML read per probe.
const maxProbeBody = 10 * 1024 * 1024

// rePriceText matches currency-formatted amounts in visible text or
// attribute values.
var rePriceText = regexp.MustCompile(`(?i)([$€£¥]\s?\d[\d.,]*|\d[\d.,]*\s?(?:usd|eur|gbp|cad|aud))`)

// reAddToCart matches add-to-cart control text.
var reAddToCart = regexp.MustCompile(`(?i)add\s+to\s+(?:cart|bag|basket)|buy\s+now`)

// Prefilter probes PDP candidates over plain HTTP with a Chrome TLS
// fingerprint, extracting static signals without spending a browser
// tab. Candidates whose server-rendered HTML already carries product
// markers get validated first; a probe failure only costs the ranking
// boost, never the candidate.
type Prefilter struct {
	proxy string
}

// NewPrefilter creates a Prefilter. proxy, if non-empty, is used for
// every probe (http, https, or socks5 URL).
func NewPrefilter(proxy string) *Prefilter {
	return &Prefilter{proxy: proxy}
}

// Probe fetches a candidate and extracts its static signals. SPA shells
// report NeedsBrowser; their signals are meaningless and left zero.
type Probe struct {
	Signals      Signals
	NeedsBrowser bool
}

func (f *Prefilter) Probe(ctx context.Context, candidateURL string) (Probe, error) {
	body, err := f.fetch(ctx, candidateURL)
	if err != nil {
		return Probe{}, err
	}
	if isSPAShell(body) {
		return Probe{NeedsBrowser: true}, nil
	}
	return Probe{Signals: StaticSignals(body)}, nil
}

// Rank reorders candidates so that statically-promising ones come
// first, preserving relative order within each group. Probe errors and
// SPA shells leave a candidate in the unverified group.
func (f *Prefilter) Rank(ctx context.Context, candidates []string, rulesGating bool) []string {
	var promising, rest []string
	for _, c := range candidates {
		probe, err := f.Probe(ctx, c)
		if err != nil || probe.NeedsBrowser {
			rest = append(rest, c)
			continue
		}
		s := probe.Signals
		base := s.HasPrice && s.HasTitle && s.HasImage
		if base && (!rulesGating || s.HasAddToCart || s.HasProductSchema) {
			promising = append(promising, c)
		} else {
			rest = append(rest, c)
		}
	}
	return append(promising, rest...)
}

// StaticSignals extracts product signals from server-rendered HTML.
// Pure function over the byte snapshot.
func StaticSignals(body []byte) Signals {
	var s Signals
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return s
	}

	doc.Find("[class*='price'], [itemprop='price'], [data-price]").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		if content, ok := sel.Attr("content"); ok && content != "" {
			s.HasPrice = true
			return false
		}
		if rePriceText.MatchString(sel.Text()) {
			s.HasPrice = true
			return false
		}
		return true
	})
	if !s.HasPrice {
		s.HasPrice = rePriceText.MatchString(doc.Find("body").Text())
	}

	s.HasTitle = strings.TrimSpace(doc.Find("h1").First().Text()) != ""

	doc.Find("img[src], img[data-src]").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		src, _ := sel.Attr("src")
		if src == "" {
			src, _ = sel.Attr("data-src")
		}
		if src != "" && !strings.HasPrefix(src, "data:") {
			s.HasImage = true
			return false
		}
		return true
	})

	doc.Find("button, input[type='submit'], a[class*='cart' i], [name='add']").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		text := sel.Text()
		if text == "" {
			text, _ = sel.Attr("value")
		}
		if reAddToCart.MatchString(text) {
			s.HasAddToCart = true
			return false
		}
		return true
	})

	doc.Find("script[type='application/ld+json']").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		if strings.Contains(sel.Text(), `"Product"`) {
			s.HasProductSchema = true
			return false
		}
		return true
	})
	if !s.HasProductSchema {
		s.HasProductSchema = doc.Find("[itemtype*='schema.org/Product']").Length() > 0
	}
	return s
}

// isSPAShell reports whether the HTML is a client-rendered shell whose
// static signals cannot be trusted.
func isSPAShell(body []byte) bool {
	lower := strings.ToLower(string(body))
	for _, root := range []string{`<div id="root"></div>`, `<div id="app"></div>`, `<div id="__next"></div>`} {
		if strings.Contains(lower, root) {
			return true
		}
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return false
	}
	return len(strings.TrimSpace(doc.Find("body").Text())) < 200
}

// fetch retrieves the URL with a Chrome TLS fingerprint so candidate
// probes are not trivially distinguishable from browser traffic.
func (f *Prefilter) fetch(ctx context.Context, targetURL string) ([]byte, error) {
	transport := &http.Transport{
		DialTLSContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			return f.dialTLS(ctx, network, addr)
		},
	}
	if f.proxy != "" {
		if proxyURL, err := url.Parse(f.proxy); err == nil && (proxyURL.Scheme == "http" || proxyURL.Scheme == "https") {
			transport.Proxy = http.ProxyURL(proxyURL)
		}
	}
	client := &http.Client{Transport: transport}
	defer client.CloseIdleConnections()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return nil, fmt.Errorf("pdp prefilter: build request: %w", err)
	}
	req.Header.Set("User-Agent", chromeUA)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("pdp prefilter: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("pdp prefilter: HTTP %d for %s", resp.StatusCode, targetURL)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxProbeBody))
	if err != nil {
		return nil, fmt.Errorf("pdp prefilter: read body: %w", err)
	}
	return body, nil
}

// dialTLS establishes the connection with a Chrome ClientHello via
// utls. SOCKS5 proxies are dialed directly; HTTP proxies go through
// the transport's Proxy func.
func (f *Prefilter) dialTLS(ctx context.Context, network, addr string) (net.Conn, error) {
	dialer := &net.Dialer{}
	var rawConn net.Conn
	var err error

	if f.proxy != "" {
		if proxyURL, perr := url.Parse(f.proxy); perr == nil && (proxyURL.Scheme == "socks5" || proxyURL.Scheme == "socks5h") {
			rawConn, err = dialer.DialContext(ctx, "tcp", proxyURL.Host)
			if err != nil {
				return nil, fmt.Errorf("socks5 dial: %w", err)
			}
		}
	}
	if rawConn == nil {
		rawConn, err = dialer.DialContext(ctx, network, addr)
		if err != nil {
			return nil, err
		}
	}

	host, _, _ := net.SplitHostPort(addr)
	tlsConn := utls.UClient(rawConn, &utls.Config{ServerName: host}, utls.HelloChrome_Auto)
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		rawConn.Close()
		return nil, err
	}
	return tlsConn, nil
}
