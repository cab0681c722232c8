package scraper

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
	"golang.org/x/time/rate"
)

const maxRobotsBytes = 512 * 1024

// RobotsSource fetches the raw robots.txt of a host.
type RobotsSource interface {
	FetchRobots(ctx context.Context, host string) (status int, body []byte, err error)
}

type HTTPRobotsSource struct {
	Client    *http.Client
	Scheme    string
	UserAgent string
}

func (s HTTPRobotsSource) FetchRobots(ctx context.Context, host string) (int, []byte, error) {
	client := s.Client
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	scheme := s.Scheme
	if scheme == "" {
		scheme = "https"
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s://%s/robots.txt", scheme, host), nil)
	if err != nil {
		return 0, nil, err
	}
	if s.UserAgent != "" {
		req.Header.Set("User-Agent", s.UserAgent)
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	b, err := readAllLimit(resp.Body, maxRobotsBytes)
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, b, nil
}

type GateOptions struct {
	UserAgent string
	// Delay is the minimum interval between two requests to the same host.
	Delay time.Duration
	// FailOpenDelay replaces Delay for hosts whose robots.txt could not be fetched.
	FailOpenDelay time.Duration
	RobotsTTL     time.Duration
}

// PolitenessGate caches robots rules per host and paces requests so that no
// two requests to one host leave this process closer together than the
// configured delay.
type PolitenessGate struct {
	robots RobotsSource
	opts   GateOptions
	logger *log.Logger
	now    func() time.Time

	mu    sync.Mutex
	hosts map[string]*hostState
}

type hostState struct {
	limiter *rate.Limiter

	// robotsMu serializes robots.txt refreshes for the host.
	robotsMu sync.Mutex
	group    *robotstxt.Group
	expires  time.Time
	degraded bool
}

func NewPolitenessGate(robots RobotsSource, opts GateOptions, logger *log.Logger) *PolitenessGate {
	if logger == nil {
		logger = log.Default()
	}
	if opts.Delay <= 0 {
		opts.Delay = 3 * time.Second
	}
	if opts.FailOpenDelay < opts.Delay {
		opts.FailOpenDelay = opts.Delay
	}
	if opts.RobotsTTL <= 0 {
		opts.RobotsTTL = time.Hour
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "*"
	}
	return &PolitenessGate{
		robots: robots,
		opts:   opts,
		logger: logger,
		now:    time.Now,
		hosts:  map[string]*hostState{},
	}
}

func (g *PolitenessGate) state(host string) *hostState {
	host = strings.ToLower(strings.TrimSpace(host))
	g.mu.Lock()
	defer g.mu.Unlock()
	st, ok := g.hosts[host]
	if !ok {
		st = &hostState{limiter: rate.NewLimiter(rate.Every(g.opts.Delay), 1)}
		g.hosts[host] = st
	}
	return st
}

// IsAllowed reports whether robots.txt permits fetching path on host. A host
// whose robots.txt cannot be fetched is allowed with the fail-open delay.
func (g *PolitenessGate) IsAllowed(ctx context.Context, host, path string) bool {
	if g == nil {
		return true
	}
	st := g.state(host)
	st.robotsMu.Lock()
	defer st.robotsMu.Unlock()

	if g.now().After(st.expires) {
		g.refreshRobots(ctx, host, st)
	}
	if st.group == nil {
		return true
	}
	if path == "" {
		path = "/"
	}
	allowed := st.group.Test(path)
	if !allowed {
		g.logger.Printf("politeness host=%s path=%s status=disallowed", host, path)
	}
	return allowed
}

func (g *PolitenessGate) refreshRobots(ctx context.Context, host string, st *hostState) {
	ttl := g.opts.RobotsTTL
	var status int
	var body []byte
	err := fmt.Errorf("no robots source")
	if g.robots != nil {
		status, body, err = g.robots.FetchRobots(ctx, host)
	}
	if err == nil && status >= 500 {
		err = fmt.Errorf("robots.txt status %d", status)
	}

	var data *robotstxt.RobotsData
	if err == nil {
		data, err = robotstxt.FromStatusAndBytes(status, body)
	}
	if err != nil {
		st.group = nil
		st.degraded = true
		// Retry the fetch sooner than a healthy entry would expire.
		if ttl > 5*time.Minute {
			ttl = 5 * time.Minute
		}
		st.expires = g.now().Add(ttl)
		st.limiter.SetLimit(rate.Every(g.opts.FailOpenDelay))
		g.logger.Printf("politeness host=%s status=degraded mode=fail_open delay=%s err=%v", host, g.opts.FailOpenDelay, err)
		return
	}

	st.group = data.FindGroup(g.opts.UserAgent)
	st.degraded = false
	st.expires = g.now().Add(ttl)

	delay := g.opts.Delay
	if st.group != nil && st.group.CrawlDelay > delay {
		delay = st.group.CrawlDelay
	}
	st.limiter.SetLimit(rate.Every(delay))
	g.logger.Printf("politeness host=%s status=robots_loaded http_status=%d delay=%s", host, status, delay)
}

// AwaitSlot blocks until the caller may send the next request to host.
// Reservation is atomic: concurrent callers receive distinct slots.
func (g *PolitenessGate) AwaitSlot(ctx context.Context, host string) error {
	if g == nil {
		return nil
	}
	return g.state(host).limiter.Wait(ctx)
}

// Degraded reports whether host is running in fail-open mode.
func (g *PolitenessGate) Degraded(host string) bool {
	if g == nil {
		return false
	}
	st := g.state(host)
	st.robotsMu.Lock()
	defer st.robotsMu.Unlock()
	return st.degraded
}

func readAllLimit(r io.Reader, max int64) ([]byte, error) {
	lr := &io.LimitedReader{R: r, N: max + 1}
	b, err := io.ReadAll(lr)
	if err != nil {
		return nil, err
	}
	if int64(len(b)) > max {
		return nil, fmt.Errorf("response too large")
	}
	return b, nil
}
