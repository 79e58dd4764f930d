// Package headless retrieves product pages with a hardened Chrome session.
package headless

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"oliveyoung-crawler/internal/crawl"
	"oliveyoung-crawler/internal/fetcher"
)

// maskScript runs before every document loads and hides the usual automation
// tells that anti-bot checks inspect.
const maskScript = `
Object.defineProperty(navigator, 'webdriver', {get: () => undefined});
Object.defineProperty(navigator, 'languages', {get: () => ['ko-KR', 'ko', 'en-US', 'en']});
Object.defineProperty(navigator, 'plugins', {get: () => [1, 2, 3, 4, 5]});
window.chrome = window.chrome || {runtime: {}};
`

// challengeMarkers appear in interstitial challenge pages served in place of
// the product document.
var challengeMarkers = []string{
	"just a moment",
	"checking your browser",
	"잠시만 기다리",
}

// Config controls the behavior of the headless fetcher.
type Config struct {
	UserAgents        []string
	NavigationTimeout time.Duration
	ChallengeTimeout  time.Duration
}

// Fetcher implements crawl.Fetcher using chromedp and headless Chrome. A
// fresh browser tab with a freshly rotated identity serves each request.
type Fetcher struct {
	cfg         Config
	allocator   context.Context
	allocCancel context.CancelFunc
}

// New creates a headless fetcher backed by chromedp.
func New(cfg Config) (*Fetcher, error) {
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = 15 * time.Second
	}
	if cfg.ChallengeTimeout <= 0 {
		cfg.ChallengeTimeout = 20 * time.Second
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &Fetcher{
		cfg:         cfg,
		allocator:   allocCtx,
		allocCancel: allocCancel,
	}, nil
}

// Close cancels the allocator context, shutting down the browser.
func (f *Fetcher) Close() {
	f.allocCancel()
}

// Fetch navigates to url in a new tab and returns the rendered document. An
// unresolved anti-bot challenge is reported as a transport error so the
// caller records it rather than misclassifying the interstitial page.
func (f *Fetcher) Fetch(ctx context.Context, url string) (crawl.FetchResult, error) {
	taskCtx, taskCancel := chromedp.NewContext(f.allocator)
	defer taskCancel()

	taskCtx, cancel := context.WithTimeout(taskCtx, f.cfg.NavigationTimeout+f.cfg.ChallengeTimeout)
	defer cancel()

	// Tie the tab lifetime to the caller's context.
	go func() {
		select {
		case <-ctx.Done():
			taskCancel()
		case <-taskCtx.Done():
		}
	}()

	meta := newResponseMeta()
	chromedp.ListenTarget(taskCtx, meta.captureEvent)

	start := time.Now()
	var html string
	actions := []chromedp.Action{
		f.sessionSetupAction(),
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(500 * time.Millisecond),
	}
	if err := chromedp.Run(taskCtx, actions...); err != nil {
		return crawl.FetchResult{}, fmt.Errorf("chromedp navigate: %w", err)
	}
	if err := f.awaitChallenge(taskCtx); err != nil {
		return crawl.FetchResult{}, err
	}
	if err := chromedp.Run(taskCtx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return crawl.FetchResult{}, fmt.Errorf("chromedp capture dom: %w", err)
	}

	status := meta.status()
	if status == 0 {
		status = http.StatusOK
	}
	return crawl.FetchResult{
		StatusCode: status,
		Body:       []byte(html),
		Elapsed:    time.Since(start),
	}, nil
}

// sessionSetupAction rotates the browser identity and installs the
// automation mask before navigation.
func (f *Fetcher) sessionSetupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		ua := fetcher.PickUserAgent(f.cfg.UserAgents)
		if err := emulation.SetUserAgentOverride(ua).Do(ctx); err != nil {
			return fmt.Errorf("set user-agent: %w", err)
		}
		if err := emulation.SetDeviceMetricsOverride(1920, 1080, 1.0, false).Do(ctx); err != nil {
			return fmt.Errorf("set viewport: %w", err)
		}
		if err := network.SetExtraHTTPHeaders(toNetworkHeaders(fetcher.SessionHeaders())).Do(ctx); err != nil {
			return fmt.Errorf("set extra headers: %w", err)
		}
		if _, err := page.AddScriptToEvaluateOnNewDocument(maskScript).Do(ctx); err != nil {
			return fmt.Errorf("install automation mask: %w", err)
		}
		return nil
	})
}

// awaitChallenge polls the document title until the challenge interstitial
// resolves or the budget expires.
func (f *Fetcher) awaitChallenge(ctx context.Context) error {
	deadline := time.Now().Add(f.cfg.ChallengeTimeout)
	for {
		var title string
		if err := chromedp.Run(ctx, chromedp.Title(&title)); err != nil {
			return fmt.Errorf("read page title: %w", err)
		}
		if !isChallengeTitle(title) {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("challenge page did not resolve within %s", f.cfg.ChallengeTimeout)
		}
		if err := chromedp.Run(ctx, chromedp.Sleep(time.Second)); err != nil {
			return fmt.Errorf("challenge wait: %w", err)
		}
	}
}

func isChallengeTitle(title string) bool {
	lower := strings.ToLower(title)
	for _, marker := range challengeMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

type responseMeta struct {
	mu         sync.RWMutex
	statusCode int
}

func newResponseMeta() *responseMeta {
	return &responseMeta{}
}

func (m *responseMeta) captureEvent(ev any) {
	resp, ok := ev.(*network.EventResponseReceived)
	if !ok || resp.Type != network.ResourceTypeDocument || resp.Response == nil {
		return
	}
	m.mu.Lock()
	m.statusCode = int(resp.Response.Status)
	m.mu.Unlock()
}

func (m *responseMeta) status() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.statusCode
}

func toNetworkHeaders(h http.Header) network.Headers {
	headers := network.Headers{}
	for key, values := range h {
		if len(values) == 0 {
			continue
		}
		if len(values) == 1 {
			headers[key] = values[0]
		} else {
			headers[key] = append([]string(nil), values...)
		}
	}
	return headers
}
