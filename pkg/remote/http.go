package remote

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultTimeout   = 60 * time.Second
	defaultUserAgent = "gitkit/1.0"
	// maxResponseBytes bounds a single file; packs can be large.
	maxResponseBytes = 4 << 30
)

// HTTPOptions configures an HTTPTransport. Zero fields receive defaults.
type HTTPOptions struct {
	Timeout   time.Duration // per request (default 60s)
	UserAgent string
	Token     string // sent as a Bearer token when set
	Client    *http.Client
}

// HTTPTransport reads a dumb-HTTP repository with net/http. Bodies sent
// with Content-Encoding: zstd are decoded before they are returned.
type HTTPTransport struct {
	base      *url.URL
	client    *http.Client
	userAgent string
	token     string
	user      string
	pass      string
}

// NewHTTPTransport parses rawURL, which must be http or https. Credentials
// in the URL are moved to Basic auth.
func NewHTTPTransport(rawURL string, opts HTTPOptions) (*HTTPTransport, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return nil, fmt.Errorf("remote URL is required")
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse remote URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("remote URL %q: scheme must be http or https", rawURL)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("remote URL %q: host is required", rawURL)
	}

	t := &HTTPTransport{
		client:    opts.Client,
		userAgent: opts.UserAgent,
		token:     strings.TrimSpace(opts.Token),
	}
	if u.User != nil {
		t.user = u.User.Username()
		t.pass, _ = u.User.Password()
		u.User = nil
	}
	u.Path = strings.TrimRight(u.Path, "/")
	u.RawPath = ""
	u.RawQuery = ""
	u.Fragment = ""
	t.base = u

	if t.client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		t.client = &http.Client{Timeout: timeout}
	}
	if t.userAgent == "" {
		t.userAgent = defaultUserAgent
	}
	return t, nil
}

// URL returns the repository URL without credentials.
func (t *HTTPTransport) URL() string {
	return t.base.String()
}

// Get implements Transport.
func (t *HTTPTransport) Get(ctx context.Context, p string) (*Response, error) {
	target := t.base.String() + "/" + strings.TrimLeft(p, "/")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", t.userAgent)
	req.Header.Set("Accept-Encoding", "zstd, identity")
	t.applyAuth(req)

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", p, err)
	}

	out := &Response{StatusCode: resp.StatusCode, Header: resp.Header.Clone(), Body: body}
	if resp.StatusCode == http.StatusOK && isZstdEncoded(resp.Header.Get("Content-Encoding")) {
		if _, err := Fetch(ctx, staticResponse{out}, p); err != nil {
			return nil, err
		}
		decoded, err := decompressZstd(body)
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", p, err)
		}
		out.Body = decoded
		out.Header.Del("Content-Encoding")
		out.Header.Set("Content-Length", fmt.Sprint(len(decoded)))
	}
	return out, nil
}

func (t *HTTPTransport) applyAuth(req *http.Request) {
	if t.token != "" {
		req.Header.Set("Authorization", "Bearer "+t.token)
		return
	}
	if strings.TrimSpace(t.user) != "" {
		req.SetBasicAuth(t.user, t.pass)
	}
}

// staticResponse replays one response; it lets Get validate the encoded
// length with the same rules Fetch applies.
type staticResponse struct {
	resp *Response
}

func (s staticResponse) Get(context.Context, string) (*Response, error) {
	return s.resp, nil
}
