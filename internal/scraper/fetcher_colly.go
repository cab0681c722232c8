package scraper

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"time"

	"github.com/gocolly/colly/v2"
)

type CollyFetcherOptions struct {
	UserAgent string
	Timeout   time.Duration
}

// CollyFetcher fetches pages over plain HTTP without rendering. It serves
// markup that does not depend on client-side scripts and local runs without
// Chrome.
type CollyFetcher struct {
	opts   CollyFetcherOptions
	logger *log.Logger
}

func NewCollyFetcher(opts CollyFetcherOptions, logger *log.Logger) *CollyFetcher {
	if logger == nil {
		logger = log.Default()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	return &CollyFetcher{opts: opts, logger: logger}
}

func (f *CollyFetcher) Fetch(ctx context.Context, pageURL string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", &FetchError{Kind: KindNetworkError, URL: pageURL, Err: err}
	}
	u, err := url.Parse(pageURL)
	if err != nil || u.Host == "" {
		return "", &FetchError{Kind: KindClientError, URL: pageURL, Err: fmt.Errorf("invalid url: %v", err)}
	}

	c := colly.NewCollector(
		colly.AllowedDomains(u.Hostname()),
		colly.AllowURLRevisit(),
	)
	c.SetRequestTimeout(f.opts.Timeout)

	c.OnRequest(func(r *colly.Request) {
		for k, v := range requestHeaders(f.opts.UserAgent) {
			if v != "" {
				r.Headers.Set(k, v)
			}
		}
	})

	var body []byte
	var status int
	c.OnResponse(func(r *colly.Response) {
		status = r.StatusCode
		body = r.Body
	})

	var reqErr error
	c.OnError(func(r *colly.Response, err error) {
		if r != nil {
			status = r.StatusCode
		}
		reqErr = err
	})

	visitErr := c.Visit(pageURL)
	c.Wait()

	if fe := fetchErrorFromStatus(pageURL, status); fe != nil {
		fe.Err = reqErr
		return "", fe
	}
	if reqErr == nil {
		reqErr = visitErr
	}
	if reqErr != nil {
		return "", classifyTransportError(ctx, pageURL, reqErr)
	}
	return string(body), nil
}
