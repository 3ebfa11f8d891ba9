// Package reachability checks whether a submitted domain answers HTTP requests.
package reachability

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"
)

// DefaultTimeout bounds a single HEAD probe, redirects included.
const DefaultTimeout = 5 * time.Second

// MaxRedirects is the number of hops followed before the last response is
// judged as-is.
const MaxRedirects = 5

// Config controls Prober behavior.
type Config struct {
	Timeout   time.Duration
	UserAgent string
}

// Prober issues HEAD requests and reports the status of the final hop.
type Prober struct {
	cfg    Config
	client *http.Client
}

// New builds a Prober with its own pooled transport.
func New(cfg Config) *Prober {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return NewWithClient(cfg, &http.Client{
		Transport: newHTTPTransport(),
		CheckRedirect: func(_ *http.Request, via []*http.Request) error {
			if len(via) > MaxRedirects {
				return http.ErrUseLastResponse
			}
			return nil
		},
	})
}

// NewWithClient builds a Prober around an existing client.
func NewWithClient(cfg Config, client *http.Client) *Prober {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Prober{cfg: cfg, client: client}
}

// Probe returns the status code of a HEAD request to url. Any status is
// returned without error; only transport failures and timeouts are errors.
func (p *Prober) Probe(ctx context.Context, url string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return 0, fmt.Errorf("build head request: %w", err)
	}
	if p.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", p.cfg.UserAgent)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("head %s: %w", url, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	return resp.StatusCode, nil
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
