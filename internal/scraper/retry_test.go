package scraper

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"testing"
	"time"
)

type scriptedFetcher struct {
	mu    sync.Mutex
	calls int
	steps []func(url string) (string, error)
}

func (f *scriptedFetcher) Fetch(_ context.Context, url string) (string, error) {
	f.mu.Lock()
	i := f.calls
	f.calls++
	f.mu.Unlock()
	if i >= len(f.steps) {
		i = len(f.steps) - 1
	}
	return f.steps[i](url)
}

func (f *scriptedFetcher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func failWith(status int) func(string) (string, error) {
	return func(url string) (string, error) { return "", fetchErrorFromStatus(url, status) }
}

func serve(html string) func(string) (string, error) {
	return func(string) (string, error) { return html, nil }
}

type countingPacer struct {
	mu    sync.Mutex
	slots int
}

func (p *countingPacer) AwaitSlot(context.Context, string) error {
	p.mu.Lock()
	p.slots++
	p.mu.Unlock()
	return nil
}

func quietLogger() *log.Logger { return log.New(io.Discard, "", 0) }

func newTestLoader(f PageFetcher, pacer Pacer, maxRetries int) (*PageLoader, *[]time.Duration) {
	policy := DefaultRetryPolicy()
	policy.MaxRetries = maxRetries
	policy.JitterFrac = 0
	l := NewPageLoader(f, NewExtractor(), pacer, policy, quietLogger())
	var waits []time.Duration
	l.sleep = func(_ context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}
	return l, &waits
}

func TestPageLoader_RetriesServerErrorsUpToCap(t *testing.T) {
	f := &scriptedFetcher{steps: []func(string) (string, error){failWith(503)}}
	pacer := &countingPacer{}
	l, waits := newTestLoader(f, pacer, 3)

	res, err := l.Load(context.Background(), "https://x.test/s-notebooks/c278", false)
	var fe *FetchError
	if !errors.As(err, &fe) || fe.Kind != KindServerError {
		t.Fatalf("expected server error, got %v", err)
	}
	if res.Attempts != 4 || f.count() != 4 {
		t.Fatalf("expected 4 attempts, got %d (fetches %d)", res.Attempts, f.count())
	}
	if pacer.slots != 4 {
		t.Fatalf("every attempt must be paced, got %d slots", pacer.slots)
	}
	want := []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second}
	if len(*waits) != len(want) {
		t.Fatalf("expected %d backoffs, got %v", len(want), *waits)
	}
	for i := range want {
		if (*waits)[i] != want[i] {
			t.Fatalf("backoff %d: expected %s, got %s", i, want[i], (*waits)[i])
		}
	}
}

func TestPageLoader_ClientErrorNotRetried(t *testing.T) {
	f := &scriptedFetcher{steps: []func(string) (string, error){failWith(404)}}
	l, waits := newTestLoader(f, nil, 3)

	res, err := l.Load(context.Background(), "https://x.test/a", false)
	var fe *FetchError
	if !errors.As(err, &fe) || fe.Kind != KindClientError || fe.Status != 404 {
		t.Fatalf("expected client error 404, got %v", err)
	}
	if res.Attempts != 1 || len(*waits) != 0 {
		t.Fatalf("expected single attempt without backoff, got %d attempts %v", res.Attempts, *waits)
	}
}

func TestPageLoader_RateLimitedThenSuccess(t *testing.T) {
	page := `<html><body><article class="aditem" data-adid="1234567"><a class="ellipsis" href="/s-anzeige/x/1234567">X</a></article></body></html>`
	f := &scriptedFetcher{steps: []func(string) (string, error){failWith(429), serve(page)}}
	l, waits := newTestLoader(f, nil, 3)

	res, err := l.Load(context.Background(), "https://x.test/a", false)
	if err != nil {
		t.Fatalf("expected nil err, got %v", err)
	}
	if res.Attempts != 2 || len(res.Extraction.Listings) != 1 {
		t.Fatalf("unexpected result %s", res)
	}
	if len(*waits) != 1 || (*waits)[0] < 10*time.Second {
		t.Fatalf("rate limit backoff must respect the floor, got %v", *waits)
	}
}

func TestPageLoader_BlockedPageTreatedAsRateLimited(t *testing.T) {
	blocked := `<html><body>Bitte löse das Captcha</body></html>`
	f := &scriptedFetcher{steps: []func(string) (string, error){serve(blocked)}}
	l, _ := newTestLoader(f, nil, 1)

	res, err := l.Load(context.Background(), "https://x.test/a", false)
	var fe *FetchError
	if !errors.As(err, &fe) || fe.Kind != KindRateLimited || !errors.Is(err, errBlockedPage) {
		t.Fatalf("expected rate limited block, got %v", err)
	}
	if res.Attempts != 2 {
		t.Fatalf("expected 2 attempts, got %d", res.Attempts)
	}
}

func TestPageLoader_SuspiciousEmptyPageRetriedOnce(t *testing.T) {
	empty := `<html><body><p>Keine Ergebnisse</p></body></html>`
	f := &scriptedFetcher{steps: []func(string) (string, error){serve(empty)}}
	l, waits := newTestLoader(f, nil, 3)

	res, err := l.Load(context.Background(), "https://x.test/a", true)
	if err != nil {
		t.Fatalf("expected nil err, got %v", err)
	}
	if res.Attempts != 2 || len(*waits) != 1 || res.Extraction.Cards != 0 {
		t.Fatalf("expected one retry then accept empty, got attempts=%d waits=%v", res.Attempts, *waits)
	}

	f2 := &scriptedFetcher{steps: []func(string) (string, error){serve(empty)}}
	l2, waits2 := newTestLoader(f2, nil, 3)
	res, err = l2.Load(context.Background(), "https://x.test/a", false)
	if err != nil || res.Attempts != 1 || len(*waits2) != 0 {
		t.Fatalf("first page empty must be accepted at once, got attempts=%d err=%v", res.Attempts, err)
	}
}

func TestPageLoader_CancelledContext(t *testing.T) {
	f := &scriptedFetcher{steps: []func(string) (string, error){failWith(500)}}
	l, _ := newTestLoader(f, nil, 3)
	ctx, cancel := context.WithCancel(context.Background())
	l.sleep = func(context.Context, time.Duration) error {
		cancel()
		return context.Canceled
	}

	_, err := l.Load(ctx, "https://x.test/a", false)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if f.count() != 1 {
		t.Fatalf("expected no further attempts after cancel, got %d", f.count())
	}
}

func TestRetryPolicy_BackoffCapped(t *testing.T) {
	p := RetryPolicy{BaseDelay: time.Second}
	if got := p.Backoff(20, KindServerError); got != maxBackoff {
		t.Fatalf("expected cap %s, got %s", maxBackoff, got)
	}
	if got := p.Backoff(1, KindTimeout); got != time.Second {
		t.Fatalf("expected 1s, got %s", got)
	}
}

func TestPageLoader_TimeoutExhaustsRetries(t *testing.T) {
	timeout := func(url string) (string, error) {
		return "", &FetchError{Kind: KindTimeout, URL: url, Err: context.DeadlineExceeded}
	}
	f := &scriptedFetcher{steps: []func(string) (string, error){timeout}}
	l, waits := newTestLoader(f, nil, 2)

	res, err := l.Load(context.Background(), "https://x.test/a", false)
	var fe *FetchError
	if !errors.As(err, &fe) || fe.Kind != KindTimeout {
		t.Fatalf("expected timeout error, got %v", err)
	}
	if res.Attempts != 3 || f.count() != 3 {
		t.Fatalf("expected MaxRetries+1=3 attempts, got %d (fetches %d)", res.Attempts, f.count())
	}
	want := []time.Duration{2 * time.Second, 4 * time.Second}
	if len(*waits) != len(want) || (*waits)[0] != want[0] || (*waits)[1] != want[1] {
		t.Fatalf("expected backoffs %v, got %v", want, *waits)
	}
}
