// Package collyfetcher implements catalog.Fetcher using gocolly.
package collyfetcher

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
)

const defaultTimeout = 30 * time.Second

// Cookie is the session cookie attached to every request.
type Cookie struct {
	Name    string
	Value   string
	Domain  string
	Expires string
}

// Header renders the cookie as a Cookie request header value.
func (c Cookie) Header() string {
	if c.Name == "" {
		return ""
	}
	return fmt.Sprintf("%s=%s; Domain=%s; Path=/; Expires=%s;", c.Name, c.Value, c.Domain, c.Expires)
}

// Config controls collector behavior.
type Config struct {
	UserAgent string
	Timeout   time.Duration
	Cookie    Cookie
}

// FetchError reports a failed page fetch. StatusCode is zero for transport
// failures.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: status %d: %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Fetcher performs exactly one GET per Fetch call. It never retries and
// never caches.
type Fetcher struct {
	cfg           Config
	cookieHeader  string
	baseCollector *colly.Collector
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

type fetchResult struct {
	statusCode int
	body       []byte
	err        error
}

// New builds a Fetcher.
func New(cfg Config) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	c := colly.NewCollector(colly.Async(false))
	// Failed pages are fetched again by the caller, so revisits must be allowed.
	c.AllowURLRevisit = true
	c.IgnoreRobotsTxt = true
	c.WithTransport(newHTTPTransport())
	c.SetRequestTimeout(cfg.Timeout)
	if cfg.UserAgent != "" {
		c.UserAgent = cfg.UserAgent
	}

	return &Fetcher{
		cfg:           cfg,
		cookieHeader:  cfg.Cookie.Header(),
		baseCollector: c,
	}
}

// Fetch GETs url and parses the body as HTML.
func (f *Fetcher) Fetch(ctx context.Context, url string) (*goquery.Document, error) {
	var result fetchResult
	collector := f.baseCollector.Clone()
	f.configureCollectorHooks(collector, &result)

	if err := f.runCollector(ctx, collector, url, &result); err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(result.body))
	if err != nil {
		return nil, &FetchError{URL: url, StatusCode: result.statusCode, Err: fmt.Errorf("decode body: %w", err)}
	}
	return doc, nil
}

func (f *Fetcher) configureCollectorHooks(hooks collectorHooks, result *fetchResult) {
	hooks.OnRequest(func(r *colly.Request) {
		if f.cookieHeader != "" {
			r.Headers.Set("Cookie", f.cookieHeader)
		}
	})

	hooks.OnResponse(func(r *colly.Response) {
		result.statusCode = r.StatusCode
		result.body = append([]byte(nil), r.Body...)
	})

	hooks.OnError(func(r *colly.Response, err error) {
		if r != nil {
			result.statusCode = r.StatusCode
		}
		result.err = err
	})
}

func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, url string, result *fetchResult) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return &FetchError{URL: url, Err: fmt.Errorf("colly fetch canceled: %w", ctx.Err())}
	case err := <-done:
		if result.err != nil {
			return &FetchError{URL: url, StatusCode: result.statusCode, Err: result.err}
		}
		if err != nil {
			return &FetchError{URL: url, StatusCode: result.statusCode, Err: fmt.Errorf("colly visit failed: %w", err)}
		}
		if result.statusCode < 200 || result.statusCode > 299 {
			return &FetchError{URL: url, StatusCode: result.statusCode, Err: fmt.Errorf("unexpected status")}
		}
		return nil
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
