package scraper

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

type ChromeFetcherOptions struct {
	UserAgent   string
	Timeout     time.Duration
	SettleDelay time.Duration
	Headless    bool
}

// ChromeFetcher renders pages in a shared headless Chrome, one tab per fetch.
type ChromeFetcher struct {
	opts   ChromeFetcherOptions
	logger *log.Logger

	mu            sync.Mutex
	browserCtx    context.Context
	cancelAlloc   context.CancelFunc
	cancelBrowser context.CancelFunc
}

func NewChromeFetcher(opts ChromeFetcherOptions, logger *log.Logger) *ChromeFetcher {
	if logger == nil {
		logger = log.Default()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36"
	}
	return &ChromeFetcher{opts: opts, logger: logger}
}

func (f *ChromeFetcher) browser() (context.Context, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.browserCtx != nil && f.browserCtx.Err() == nil {
		return f.browserCtx, nil
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(),
		append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", f.opts.Headless),
			chromedp.Flag("disable-gpu", true),
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-dev-shm-usage", true),
			chromedp.Flag("lang", "de-DE"),
			chromedp.WindowSize(1920, 1080),
			chromedp.UserAgent(f.opts.UserAgent),
		)...,
	)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	// Start the browser now so launch failures surface here.
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, err
	}

	f.browserCtx = browserCtx
	f.cancelAlloc = allocCancel
	f.cancelBrowser = browserCancel
	return browserCtx, nil
}

func (f *ChromeFetcher) Close() error {
	if f == nil {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cancelBrowser != nil {
		f.cancelBrowser()
	}
	if f.cancelAlloc != nil {
		f.cancelAlloc()
	}
	f.browserCtx = nil
	return nil
}

func (f *ChromeFetcher) Fetch(ctx context.Context, url string) (string, error) {
	if f == nil {
		return "", &FetchError{Kind: KindNetworkError, URL: url, Err: fmt.Errorf("nil fetcher")}
	}
	if err := ctx.Err(); err != nil {
		return "", &FetchError{Kind: KindNetworkError, URL: url, Err: err}
	}

	browserCtx, err := f.browser()
	if err != nil {
		return "", &FetchError{Kind: KindNetworkError, URL: url, Err: fmt.Errorf("start browser: %w", err)}
	}

	tabCtx, tabCancel := chromedp.NewContext(browserCtx)
	defer tabCancel()

	// The tab lives under the browser context; stop it when the caller gives up.
	stop := context.AfterFunc(ctx, tabCancel)
	defer stop()

	reqCtx, reqCancel := context.WithTimeout(tabCtx, f.opts.Timeout)
	defer reqCancel()

	doc := newDocumentWatch()
	chromedp.ListenTarget(reqCtx, doc.listen)

	var html string
	err = chromedp.Run(reqCtx,
		network.Enable(),
		network.SetExtraHTTPHeaders(network.Headers{"Accept-Language": "de-DE,de;q=0.9,en;q=0.8"}),
		chromedp.ActionFunc(func(ctx context.Context) error {
			res := &page.NavigateReturns{}
			if err := cdp.Execute(ctx, page.CommandNavigate, page.Navigate(url), res); err != nil {
				return err
			}
			if res.ErrorText != "" {
				return fmt.Errorf("navigate: %s", res.ErrorText)
			}
			return doc.waitDOMReady(ctx)
		}),
		chromedp.Sleep(settleFor(f.opts.SettleDelay)),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		if ctx.Err() != nil {
			return "", &FetchError{Kind: KindNetworkError, URL: url, Err: ctx.Err()}
		}
		if reqCtx.Err() != nil {
			return "", &FetchError{Kind: KindTimeout, URL: url, Err: fmt.Errorf("navigation exceeded %s: %w", f.opts.Timeout, reqCtx.Err())}
		}
		if fe := fetchErrorFromStatus(url, doc.status()); fe != nil {
			return "", fe
		}
		return "", classifyTransportError(ctx, url, err)
	}

	if fe := fetchErrorFromStatus(url, doc.status()); fe != nil {
		return "", fe
	}
	return html, nil
}

// documentWatch records the main document response and DOMContentLoaded.
type documentWatch struct {
	mu         sync.Mutex
	requestID  network.RequestID
	httpStatus int
	failed     string
	ready      chan struct{}
	readyOnce  sync.Once
}

func newDocumentWatch() *documentWatch {
	return &documentWatch{ready: make(chan struct{})}
}

func (d *documentWatch) listen(ev any) {
	switch e := ev.(type) {
	case *network.EventResponseReceived:
		if e.Type != network.ResourceTypeDocument {
			return
		}
		d.mu.Lock()
		if d.requestID == "" {
			d.requestID = e.RequestID
			d.httpStatus = int(e.Response.Status)
		}
		d.mu.Unlock()
	case *network.EventLoadingFailed:
		if e.Type != network.ResourceTypeDocument {
			return
		}
		d.mu.Lock()
		d.failed = e.ErrorText
		d.mu.Unlock()
		d.readyOnce.Do(func() { close(d.ready) })
	case *page.EventDomContentEventFired:
		d.readyOnce.Do(func() { close(d.ready) })
	}
}

func (d *documentWatch) waitDOMReady(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-d.ready:
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failed != "" {
		return fmt.Errorf("document load failed: %s", d.failed)
	}
	return nil
}

func (d *documentWatch) status() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.httpStatus
}
