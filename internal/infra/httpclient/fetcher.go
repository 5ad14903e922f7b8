package httpclient

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"pulsefeed/internal/domain/entity"
	"pulsefeed/internal/resilience/circuitbreaker"
	"pulsefeed/internal/resilience/retry"
)

// Options configures a single fetch call.
type Options struct {
	Method      string
	Headers     map[string]string
	Body        []byte
	Timeout     time.Duration
	MaxRetries  int
	AcceptGzip  bool
}

// Response is the result of a successful fetch.
type Response struct {
	Status  int
	Headers http.Header
	Body    []byte
}

// Fetcher owns the shared *http.Client, concurrency gates, and circuit
// breaker for every outbound request the pipeline makes.
type Fetcher struct {
	cfg      Config
	client   *http.Client
	cb       *circuitbreaker.CircuitBreaker
	global   *semaphore.Weighted
	hostMu   sync.Mutex
	hostSems map[string]*semaphore.Weighted
	retryCfg retry.Config
}

// New builds a Fetcher from cfg, wiring connection pooling, redirect
// validation (SSRF), and a circuit breaker scoped to web scraping.
func New(cfg Config) *Fetcher {
	f := &Fetcher{
		cfg:      cfg,
		cb:       circuitbreaker.New(circuitbreaker.WebScraperConfig()),
		global:   semaphore.NewWeighted(cfg.GlobalConcurrency),
		hostSems: make(map[string]*semaphore.Weighted),
		retryCfg: retry.FeedFetchConfig(),
	}
	f.client = &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
			TLSClientConfig:     &tls.Config{MinVersion: tls.VersionTLS12},
		},
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= cfg.MaxRedirects {
				return fmt.Errorf("%w: %d redirects", ErrTransient, len(via))
			}
			if cfg.DenyPrivateIPs {
				if err := entity.ValidateURL(req.URL.String()); err != nil {
					return fmt.Errorf("redirect target rejected: %w", err)
				}
			}
			return nil
		},
	}
	return f
}

func (f *Fetcher) hostSem(host string) *semaphore.Weighted {
	f.hostMu.Lock()
	defer f.hostMu.Unlock()
	s, ok := f.hostSems[host]
	if !ok {
		s = semaphore.NewWeighted(f.cfg.PerHostConcurrency)
		f.hostSems[host] = s
	}
	return s
}

// Fetch executes one HTTP request, retrying Transient failures with
// exponential backoff, bounded by global and per-host concurrency gates.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string, opts Options) (*Response, error) {
	if f.cfg.DenyPrivateIPs {
		if err := entity.ValidateURL(rawURL); err != nil {
			return nil, &PermanentError{Status: 0, URL: rawURL}
		}
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCancelled, err)
	}

	if err := f.global.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCancelled, err)
	}
	defer f.global.Release(1)

	hs := f.hostSem(u.Host)
	if err := hs.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCancelled, err)
	}
	defer hs.Release(1)

	cfg := f.retryCfg
	if opts.MaxRetries > 0 {
		cfg.MaxAttempts = opts.MaxRetries
	}

	var resp *Response
	err = retry.WithBackoff(ctx, cfg, func() error {
		r, attemptErr := f.attempt(ctx, rawURL, opts)
		if attemptErr != nil {
			return attemptErr
		}
		resp = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (f *Fetcher) attempt(ctx context.Context, rawURL string, opts Options) (*Response, error) {
	result, err := f.cb.Execute(func() (interface{}, error) {
		return f.doRequest(ctx, rawURL, opts)
	})
	if err != nil {
		return nil, err
	}
	return result.(*Response), nil
}

func (f *Fetcher) doRequest(ctx context.Context, rawURL string, opts Options) (*Response, error) {
	timeout := f.cfg.Timeout
	if opts.Timeout > 0 {
		timeout = opts.Timeout
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	method := opts.Method
	if method == "" {
		method = http.MethodGet
	}

	var bodyReader io.Reader
	if len(opts.Body) > 0 {
		bodyReader = bytes.NewReader(opts.Body)
	}

	req, err := http.NewRequestWithContext(reqCtx, method, rawURL, bodyReader)
	if err != nil {
		return nil, &PermanentError{Status: 0, URL: rawURL}
	}
	req.Header.Set("User-Agent", f.cfg.UserAgent)
	if opts.AcceptGzip {
		req.Header.Set("Accept-Encoding", "gzip")
	}
	for k, v := range opts.Headers {
		req.Header.Set(k, v)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		if reqCtx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("%w: request exceeded %v", ErrTransient, timeout)
		}
		// Wrap the raw transport error too so retry.IsRetryable can see
		// through to net.Error/syscall errors nested inside url.Error.
		return nil, fmt.Errorf("%w: %w", ErrTransient, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusRequestTimeout {
		return nil, fmt.Errorf("%w: %w", ErrTransient, &retry.HTTPError{StatusCode: resp.StatusCode, Message: resp.Status})
	}
	if resp.StatusCode >= 400 {
		return nil, &PermanentError{Status: resp.StatusCode, URL: rawURL}
	}

	limited := io.LimitReader(resp.Body, f.cfg.MaxBodySize+1)
	data, err := io.ReadAll(limited)
	if err != nil {
		return nil, fmt.Errorf("%w: reading body: %w", ErrTransient, err)
	}
	if int64(len(data)) > f.cfg.MaxBodySize {
		return nil, &PermanentError{Status: resp.StatusCode, URL: rawURL}
	}

	return &Response{Status: resp.StatusCode, Headers: resp.Header, Body: data}, nil
}
