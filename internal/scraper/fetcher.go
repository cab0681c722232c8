package scraper

import (
	"context"
	"math/rand"
	"time"
)

// PageFetcher loads one search results page and returns its HTML. Every
// failure is a *FetchError.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

type PageFetcherFunc func(ctx context.Context, url string) (string, error)

func (f PageFetcherFunc) Fetch(ctx context.Context, url string) (string, error) {
	return f(ctx, url)
}

func requestHeaders(userAgent string) map[string]string {
	return map[string]string{
		"User-Agent":      userAgent,
		"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
		"Accept-Language": "de-DE,de;q=0.9,en;q=0.8",
	}
}

// settleFor adds up to 100% jitter to the base settle delay.
func settleFor(base time.Duration) time.Duration {
	if base <= 0 {
		return 0
	}
	return base + time.Duration(rand.Int63n(int64(base)+1))
}
