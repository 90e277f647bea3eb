package fetch

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Network timeouts for every outgoing request.
const (
	HTTPClientRequestTimeout        = 60 * time.Second
	HTTPClientDialerTimeout         = 15 * time.Second
	HTTPClientKeepAlive             = 30 * time.Second
	HTTPClientTLSHandshakeTimeout   = 10 * time.Second
	HTTPClientResponseHeaderTimeout = 15 * time.Second
)

// UserAgentTransport wraps an http.RoundTripper and adds a User-Agent header.
type UserAgentTransport struct {
	http.RoundTripper
	UserAgent string
}

// RoundTrip executes a single HTTP transaction, adding the User-Agent header.
func (t *UserAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	clonedReq := req.Clone(req.Context())
	clonedReq.Header.Set("User-Agent", t.UserAgent)
	return t.RoundTripper.RoundTrip(clonedReq)
}

// HostLimiter throttles requests with one token bucket per host.
type HostLimiter struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	limiters map[string]*rate.Limiter
}

// NewHostLimiter allows perSecond requests per host with the given burst.
// A non-positive perSecond disables throttling.
func NewHostLimiter(perSecond float64, burst int) *HostLimiter {
	limit := rate.Limit(perSecond)
	if perSecond <= 0 {
		limit = rate.Inf
	}
	if burst < 1 {
		burst = 1
	}
	return &HostLimiter{limit: limit, burst: burst, limiters: make(map[string]*rate.Limiter)}
}

func (h *HostLimiter) forHost(host string) *rate.Limiter {
	h.mu.Lock()
	defer h.mu.Unlock()
	l, ok := h.limiters[host]
	if !ok {
		l = rate.NewLimiter(h.limit, h.burst)
		h.limiters[host] = l
	}
	return l
}

// RateLimitTransport waits for the host's token before each request.
type RateLimitTransport struct {
	http.RoundTripper
	Limiter *HostLimiter
}

// RoundTrip blocks until the request may proceed or its context ends.
func (t *RateLimitTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := t.Limiter.forHost(req.URL.Host).Wait(req.Context()); err != nil {
		return nil, err
	}
	return t.RoundTripper.RoundTrip(req)
}

// ClientOptions configures NewHTTPClient.
type ClientOptions struct {
	UserAgent      string
	RequestTimeout time.Duration
	HostRate       float64
}

// NewHTTPClient returns a client with bounded timeouts, per-host throttling and
// a fixed User-Agent.
func NewHTTPClient(opts ClientOptions) *http.Client {
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = HTTPClientRequestTimeout
	}
	var rt http.RoundTripper = &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   HTTPClientDialerTimeout,
			KeepAlive: HTTPClientKeepAlive,
		}).DialContext,
		ResponseHeaderTimeout: HTTPClientResponseHeaderTimeout,
		TLSHandshakeTimeout:   HTTPClientTLSHandshakeTimeout,
	}
	rt = &RateLimitTransport{RoundTripper: rt, Limiter: NewHostLimiter(opts.HostRate, 2)}
	if opts.UserAgent != "" {
		rt = &UserAgentTransport{RoundTripper: rt, UserAgent: opts.UserAgent}
	}
	return &http.Client{Timeout: timeout, Transport: rt}
}
