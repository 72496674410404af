// Package collyfetcher implements crawler.Fetcher on top of gocolly.
package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/sitemap-frontier/internal/crawler"
)

const defaultTimeout = 15 * time.Second

// errVisitAborted marks a visit abandoned before colly returned.
var errVisitAborted = errors.New("colly visit aborted")

// Config controls collector behavior.
type Config struct {
	UserAgent string
	Timeout   time.Duration
	// MaxBodySize caps the bytes read per page. Zero keeps colly's default.
	MaxBodySize int
	Transport   http.RoundTripper
}

// Fetcher performs one GET per call. Revisits are always allowed because
// deduplication is the frontier's job.
type Fetcher struct {
	timeout time.Duration
	base    *colly.Collector
}

// New builds a Fetcher.
func New(cfg Config) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Transport == nil {
		cfg.Transport = newHTTPTransport()
	}
	opts := []colly.CollectorOption{colly.AllowURLRevisit(), colly.IgnoreRobotsTxt()}
	if cfg.UserAgent != "" {
		opts = append(opts, colly.UserAgent(cfg.UserAgent))
	}
	if cfg.MaxBodySize > 0 {
		opts = append(opts, colly.MaxBodySize(cfg.MaxBodySize))
	}
	c := colly.NewCollector(opts...)
	c.WithTransport(cfg.Transport)
	c.SetRequestTimeout(cfg.Timeout)
	return &Fetcher{timeout: cfg.Timeout, base: c}
}

// visit holds the state of one Fetch call. Callbacks and the caller never
// touch it concurrently: the caller reads it only after Visit returned.
type visit struct {
	req    crawler.FetchRequest
	start  time.Time
	resp   crawler.FetchResponse
	status int
	err    error
}

func (v *visit) onRequest(r *colly.Request) {
	for key, values := range v.req.Headers {
		for _, value := range values {
			r.Headers.Add(key, value)
		}
	}
}

func (v *visit) onResponse(r *colly.Response) {
	v.status = r.StatusCode
	v.resp = crawler.FetchResponse{
		URL:        r.Request.URL.String(),
		StatusCode: r.StatusCode,
		Headers:    r.Headers.Clone(),
		Body:       append([]byte(nil), r.Body...),
		Duration:   time.Since(v.start),
	}
}

func (v *visit) onError(r *colly.Response, err error) {
	if r != nil {
		v.status = r.StatusCode
	}
	v.err = err
}

// Fetch executes a single HTTP GET. Every failure, including a non-2xx
// status and a request outliving the timeout, is a *crawler.FetchError.
func (f *Fetcher) Fetch(ctx context.Context, request crawler.FetchRequest) (crawler.FetchResponse, error) {
	v := &visit{req: request, start: time.Now()}
	c := f.base.Clone()
	c.OnRequest(v.onRequest)
	c.OnResponse(v.onResponse)
	c.OnError(v.onError)

	if err := f.run(ctx, c, request.URL, v); err != nil {
		fe := &crawler.FetchError{URL: request.URL, Reason: err.Error(), Err: err}
		if !errors.Is(err, errVisitAborted) {
			fe.StatusCode = v.status
		}
		return crawler.FetchResponse{}, fe
	}
	return v.resp, nil
}

func (f *Fetcher) run(ctx context.Context, c *colly.Collector, url string, v *visit) error {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- c.Visit(url) }()

	select {
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%w: timed out after %s: %w", errVisitAborted, f.timeout, ctx.Err())
		}
		return fmt.Errorf("%w: canceled: %w", errVisitAborted, ctx.Err())
	case err := <-done:
		switch {
		case v.err != nil:
			return fmt.Errorf("colly response failed: %w", v.err)
		case err != nil:
			return fmt.Errorf("colly visit failed: %w", err)
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
		ExpectContinueTimeout: time.Second,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   16,
		IdleConnTimeout:       90 * time.Second,
	}
}
