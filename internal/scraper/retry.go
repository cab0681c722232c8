package scraper

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"net/url"
	"time"
)

var errBlockedPage = errors.New("page looks like an access block")

const maxBackoff = 2 * time.Minute

type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
	// RateLimitFloor is the minimum wait after a rate-limited attempt.
	RateLimitFloor time.Duration
	JitterFrac     float64
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:     3,
		BaseDelay:      2 * time.Second,
		RateLimitFloor: 10 * time.Second,
		JitterFrac:     0.2,
	}
}

// Backoff returns the wait after the given failed attempt (1-based).
func (p RetryPolicy) Backoff(attempt int, kind FetchErrorKind) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	base := p.BaseDelay
	if base <= 0 {
		base = time.Second
	}
	d := base
	for i := 1; i < attempt && d < maxBackoff; i++ {
		d *= 2
	}
	if kind == KindRateLimited {
		d *= 2
		if d < p.RateLimitFloor {
			d = p.RateLimitFloor
		}
	}
	if d > maxBackoff {
		d = maxBackoff
	}
	if p.JitterFrac > 0 {
		j := 1 + (rand.Float64()*2-1)*p.JitterFrac
		d = time.Duration(float64(d) * j)
	}
	return d
}

// Pacer blocks until a request to host may be sent.
type Pacer interface {
	AwaitSlot(ctx context.Context, host string) error
}

type PageResult struct {
	URL        string
	Extraction Extraction
	Attempts   int
}

// PageLoader runs fetch and extract for one page as a single unit of work,
// retrying transient failures within the policy's attempt cap.
type PageLoader struct {
	fetcher   PageFetcher
	extractor *Extractor
	pacer     Pacer
	policy    RetryPolicy
	logger    *log.Logger
	sleep     func(ctx context.Context, d time.Duration) error
}

func NewPageLoader(fetcher PageFetcher, extractor *Extractor, pacer Pacer, policy RetryPolicy, logger *log.Logger) *PageLoader {
	if logger == nil {
		logger = log.Default()
	}
	if extractor == nil {
		extractor = NewExtractor()
	}
	if policy.MaxRetries < 0 {
		policy.MaxRetries = 0
	}
	return &PageLoader{
		fetcher:   fetcher,
		extractor: extractor,
		pacer:     pacer,
		policy:    policy,
		logger:    logger,
		sleep:     sleepCtx,
	}
}

// Load fetches and extracts pageURL. expectResults marks an empty page as
// suspicious, which earns it one extra attempt before it is accepted as the
// end of pagination.
func (l *PageLoader) Load(ctx context.Context, pageURL string, expectResults bool) (PageResult, error) {
	res := PageResult{URL: pageURL}
	host := ""
	if u, err := url.Parse(pageURL); err == nil {
		host = u.Host
	}

	emptyRetried := false
	for {
		res.Attempts++
		if l.pacer != nil {
			if err := l.pacer.AwaitSlot(ctx, host); err != nil {
				return res, err
			}
		}

		html, err := l.fetcher.Fetch(ctx, pageURL)
		if err == nil {
			ex, perr := l.extractor.Extract(html, pageURL)
			switch {
			case perr != nil:
				return res, perr
			case ex.Blocked:
				err = &FetchError{Kind: KindRateLimited, URL: pageURL, Err: errBlockedPage}
			case ex.Cards == 0 && expectResults && !emptyRetried && res.Attempts <= l.policy.MaxRetries:
				emptyRetried = true
				l.logger.Printf("page_loader url=%s attempt=%d status=retry reason=suspicious_empty", pageURL, res.Attempts)
				if err := l.sleep(ctx, l.policy.Backoff(1, "")); err != nil {
					return res, err
				}
				continue
			default:
				res.Extraction = ex
				return res, nil
			}
		}

		if ctx.Err() != nil {
			return res, ctx.Err()
		}

		var fe *FetchError
		if !errors.As(err, &fe) {
			fe = &FetchError{Kind: KindNetworkError, URL: pageURL, Err: err}
		}
		if !fe.Retryable() || res.Attempts > l.policy.MaxRetries {
			l.logger.Printf("page_loader url=%s attempt=%d status=failed kind=%s err=%v", pageURL, res.Attempts, fe.Kind, err)
			return res, fe
		}

		wait := l.policy.Backoff(res.Attempts, fe.Kind)
		l.logger.Printf("page_loader url=%s attempt=%d status=retry kind=%s backoff=%s", pageURL, res.Attempts, fe.Kind, wait)
		if err := l.sleep(ctx, wait); err != nil {
			return res, err
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (r PageResult) String() string {
	return fmt.Sprintf("url=%s attempts=%d cards=%d listings=%d", r.URL, r.Attempts, r.Extraction.Cards, len(r.Extraction.Listings))
}
