package scraper

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"
)

type stubRobots struct {
	mu     sync.Mutex
	calls  int
	status int
	body   string
	err    error
}

func (s *stubRobots) FetchRobots(context.Context, string) (int, []byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.status, []byte(s.body), s.err
}

func TestPolitenessGate_RobotsRules(t *testing.T) {
	robots := &stubRobots{status: 200, body: "User-agent: *\nDisallow: /s-anzeige/private\n"}
	g := NewPolitenessGate(robots, GateOptions{UserAgent: "notebook-scout", Delay: 2 * time.Second}, quietLogger())
	ctx := context.Background()

	if !g.IsAllowed(ctx, "www.kleinanzeigen.de", "/s-notebooks/c278?keywords=x") {
		t.Fatalf("expected search path allowed")
	}
	if g.IsAllowed(ctx, "www.kleinanzeigen.de", "/s-anzeige/private/123") {
		t.Fatalf("expected disallowed path")
	}
	if robots.calls != 1 {
		t.Fatalf("robots.txt must be cached, fetched %d times", robots.calls)
	}
	if g.Degraded("www.kleinanzeigen.de") {
		t.Fatalf("host with robots.txt must not be degraded")
	}
}

func TestPolitenessGate_FailOpen(t *testing.T) {
	robots := &stubRobots{err: errors.New("dial tcp: connection refused")}
	g := NewPolitenessGate(robots, GateOptions{Delay: 2 * time.Second, FailOpenDelay: 5 * time.Second}, quietLogger())

	if !g.IsAllowed(context.Background(), "x.test", "/anything") {
		t.Fatalf("unreachable robots.txt must fail open")
	}
	if !g.Degraded("x.test") {
		t.Fatalf("expected degraded host")
	}
	if got := g.state("x.test").limiter.Limit(); got > 1.0/5 {
		t.Fatalf("expected fail open rate at most 0.2/s, got %v", got)
	}

	robots.status, robots.err = 503, nil
	g2 := NewPolitenessGate(robots, GateOptions{Delay: 2 * time.Second}, quietLogger())
	if !g2.IsAllowed(context.Background(), "y.test", "/") || !g2.Degraded("y.test") {
		t.Fatalf("5xx robots.txt must fail open")
	}
}

func TestPolitenessGate_CrawlDelayRaisesInterval(t *testing.T) {
	robots := &stubRobots{status: 200, body: "User-agent: *\nCrawl-delay: 10\n"}
	g := NewPolitenessGate(robots, GateOptions{Delay: 2 * time.Second}, quietLogger())
	g.IsAllowed(context.Background(), "x.test", "/")
	if got := g.state("x.test").limiter.Limit(); got > 0.1 {
		t.Fatalf("expected crawl delay of 10s, got rate %v", got)
	}
}

func TestPolitenessGate_SpacesRequestsPerHost(t *testing.T) {
	g := NewPolitenessGate(nil, GateOptions{Delay: 2 * time.Second}, quietLogger())
	ctx := context.Background()

	var mu sync.Mutex
	var stamps []time.Time
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := g.AwaitSlot(ctx, "www.kleinanzeigen.de"); err != nil {
				t.Errorf("await slot: %v", err)
				return
			}
			mu.Lock()
			stamps = append(stamps, time.Now())
			mu.Unlock()
		}()
	}
	wg.Wait()

	if len(stamps) != 2 {
		t.Fatalf("expected 2 slots, got %d", len(stamps))
	}
	gap := stamps[1].Sub(stamps[0])
	if gap < 0 {
		gap = -gap
	}
	if gap < 1900*time.Millisecond {
		t.Fatalf("expected at least 1.9s between requests, got %s", gap)
	}

	start := time.Now()
	if err := g.AwaitSlot(ctx, "other.test"); err != nil {
		t.Fatalf("await slot: %v", err)
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Fatalf("hosts must be paced independently")
	}
}

func TestPolitenessGate_AwaitSlotCancelled(t *testing.T) {
	g := NewPolitenessGate(nil, GateOptions{Delay: time.Minute}, quietLogger())
	ctx, cancel := context.WithCancel(context.Background())
	if err := g.AwaitSlot(ctx, "x.test"); err != nil {
		t.Fatalf("first slot must be immediate, got %v", err)
	}
	cancel()
	if err := g.AwaitSlot(ctx, "x.test"); err == nil {
		t.Fatalf("expected error on cancelled context")
	}
}

func TestHTTPRobotsSource(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/robots.txt" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if got := r.Header.Get("User-Agent"); got != "notebook-scout" {
			t.Errorf("unexpected user agent %q", got)
		}
		_, _ = w.Write([]byte("User-agent: *\nDisallow:\n"))
	}))
	defer srv.Close()

	u, _ := url.Parse(srv.URL)
	src := HTTPRobotsSource{Client: srv.Client(), Scheme: "http", UserAgent: "notebook-scout"}
	status, body, err := src.FetchRobots(context.Background(), u.Host)
	if err != nil {
		t.Fatalf("expected nil err, got %v", err)
	}
	if status != http.StatusOK || len(body) == 0 {
		t.Fatalf("unexpected response %d %q", status, body)
	}
}
