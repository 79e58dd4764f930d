// Package probe retrieves product pages with plain HTTP requests via Colly.
// It trades the headless browser's challenge handling for speed, which is
// enough for diagnostics and for storefront endpoints that do not gate on
// JavaScript.
package probe

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"

	"oliveyoung-crawler/internal/crawl"
	"oliveyoung-crawler/internal/fetcher"
)

// Config controls collector behavior.
type Config struct {
	UserAgents []string
	Timeout    time.Duration
}

// Fetcher implements crawl.Fetcher using the Colly collector.
type Fetcher struct {
	cfg           Config
	baseCollector *colly.Collector
}

// New builds a Fetcher.
func New(cfg Config) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	c := colly.NewCollector(colly.Async(false))
	c.IgnoreRobotsTxt = true
	c.WithTransport(newHTTPTransport())
	return &Fetcher{cfg: cfg, baseCollector: c}
}

// Fetch executes a single HTTP GET. Non-2xx responses are returned as
// results, not errors, so the caller can classify them.
func (f *Fetcher) Fetch(ctx context.Context, url string) (crawl.FetchResult, error) {
	collector := f.baseCollector.Clone()
	collector.UserAgent = fetcher.PickUserAgent(f.cfg.UserAgents)
	collector.IgnoreRobotsTxt = true
	collector.SetRequestTimeout(f.cfg.Timeout)

	var (
		result   crawl.FetchResult
		fetchErr error
	)
	start := time.Now()

	collector.OnRequest(func(r *colly.Request) {
		for key, values := range fetcher.SessionHeaders() {
			for _, v := range values {
				r.Headers.Add(key, v)
			}
		}
	})
	collector.OnResponse(func(r *colly.Response) {
		result = crawl.FetchResult{
			StatusCode: r.StatusCode,
			Body:       append([]byte(nil), r.Body...),
			Elapsed:    time.Since(start),
		}
	})
	collector.OnError(func(r *colly.Response, err error) {
		// Colly routes HTTP error statuses here; keep the body so the
		// classifier still sees the page.
		if r != nil && r.StatusCode > 0 {
			result = crawl.FetchResult{
				StatusCode: r.StatusCode,
				Body:       append([]byte(nil), r.Body...),
				Elapsed:    time.Since(start),
			}
			return
		}
		fetchErr = err
	})

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return crawl.FetchResult{}, fmt.Errorf("probe fetch canceled: %w", ctx.Err())
	case err := <-done:
		if fetchErr != nil {
			return crawl.FetchResult{}, fmt.Errorf("probe request failed: %w", fetchErr)
		}
		if err != nil && result.StatusCode == 0 {
			return crawl.FetchResult{}, fmt.Errorf("probe visit failed: %w", err)
		}
		return result, nil
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
