package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultProbeTimeout bounds a single /json/version request.
const DefaultProbeTimeout = 800 * time.Millisecond

// ErrNotAlive is returned by a Prober when an endpoint answers but is not a
// usable browser.
var ErrNotAlive = errors.New("endpoint is not a live browser")

// VersionInfo is the subset of /json/version used to identify a browser.
type VersionInfo struct {
	Browser              string `json:"Browser"`
	ProtocolVersion      string `json:"Protocol-Version"`
	UserAgent            string `json:"User-Agent"`
	WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
}

// Prober checks whether a DevTools endpoint is alive.
type Prober interface {
	Alive(ctx context.Context, baseURL string) (*VersionInfo, error)
}

// HTTPProber probes endpoints over HTTP.
type HTTPProber struct {
	Client  *http.Client
	Timeout time.Duration
}

// NewHTTPProber returns a prober with the default timeout.
func NewHTTPProber() *HTTPProber {
	return &HTTPProber{Client: &http.Client{}, Timeout: DefaultProbeTimeout}
}

// Alive GETs <baseURL>/json/version and reports the browser as alive when
// the Browser field is non-empty.
func (p *HTTPProber) Alive(ctx context.Context, baseURL string) (*VersionInfo, error) {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(baseURL, "/")+"/json/version", nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrNotAlive, resp.StatusCode)
	}

	var info VersionInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotAlive, err)
	}
	if info.Browser == "" {
		return nil, ErrNotAlive
	}
	return &info, nil
}

// NormalizeEndpoint turns a bare port, host:port, http(s):// or ws(s)://
// address into an http(s) base URL without a trailing slash or path.
func NormalizeEndpoint(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", errors.New("empty endpoint")
	}

	if port, err := strconv.Atoi(s); err == nil {
		if port <= 0 || port > 65535 {
			return "", fmt.Errorf("invalid port %d", port)
		}
		return "http://127.0.0.1:" + strconv.Itoa(port), nil
	}

	if !strings.Contains(s, "://") {
		s = "http://" + s
	}
	u, err := url.Parse(s)
	if err != nil {
		return "", fmt.Errorf("invalid endpoint %q: %w", raw, err)
	}

	switch u.Scheme {
	case "http", "https":
	case "ws":
		u.Scheme = "http"
	case "wss":
		u.Scheme = "https"
	default:
		return "", fmt.Errorf("unsupported endpoint scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("endpoint %q has no host", raw)
	}
	return u.Scheme + "://" + u.Host, nil
}

// Candidates lists the endpoints to probe in preference order: the explicit
// URL, then 127.0.0.1 and localhost on port. Duplicates and unparsable
// entries are dropped.
func Candidates(cdpURL string, port int) []string {
	var raw []string
	if strings.TrimSpace(cdpURL) != "" {
		raw = append(raw, cdpURL)
	}
	if port > 0 {
		raw = append(raw,
			fmt.Sprintf("http://127.0.0.1:%d", port),
			fmt.Sprintf("http://localhost:%d", port),
		)
	}

	seen := make(map[string]bool, len(raw))
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		u, err := NormalizeEndpoint(r)
		if err != nil || seen[u] {
			continue
		}
		seen[u] = true
		out = append(out, u)
	}
	return out
}

// Endpoint is a probed, live DevTools endpoint.
type Endpoint struct {
	URL  string
	Info *VersionInfo
}

// FindEndpoint probes every candidate concurrently and returns the first
// live one in preference order. The returned error joins every probe
// failure when none is alive.
func FindEndpoint(ctx context.Context, p Prober, candidates []string) (*Endpoint, error) {
	if len(candidates) == 0 {
		return nil, errors.New("no endpoints to probe")
	}

	infos := make([]*VersionInfo, len(candidates))
	errs := make([]error, len(candidates))

	g, gctx := errgroup.WithContext(ctx)
	for i, candidate := range candidates {
		g.Go(func() error {
			info, err := p.Alive(gctx, candidate)
			if err != nil {
				errs[i] = fmt.Errorf("%s: %w", candidate, err)
				return nil
			}
			infos[i] = info
			return nil
		})
	}
	_ = g.Wait()

	for i, info := range infos {
		if info != nil {
			return &Endpoint{URL: candidates[i], Info: info}, nil
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return nil, errors.Join(errs...)
}
