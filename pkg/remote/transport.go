package remote

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
)

// ErrHTTP matches every *HTTPError.
var ErrHTTP = errors.New("http fetch failed")

// Response is a fully buffered reply to a GET.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Transport fetches files relative to a remote repository's git directory,
// e.g. "info/refs" or "objects/pack/pack-<id>.idx". Implementations return
// an error only when no response was obtained; HTTP status handling is left
// to Fetch.
type Transport interface {
	Get(ctx context.Context, path string) (*Response, error)
}

// HTTPError describes a reply the clone cannot use.
type HTTPError struct {
	Path       string
	StatusCode int
	Reason     string
}

func (e *HTTPError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("fetch %s: %s", e.Path, e.Reason)
	}
	return fmt.Sprintf("fetch %s: status %d %s", e.Path, e.StatusCode, http.StatusText(e.StatusCode))
}

// Is makes errors.Is(err, ErrHTTP) true for any HTTPError.
func (e *HTTPError) Is(target error) bool {
	return target == ErrHTTP
}

// Fetch GETs path and returns its body. A status other than 200, or a
// Content-Length header that disagrees with the body received, is an
// *HTTPError.
func Fetch(ctx context.Context, t Transport, path string) ([]byte, error) {
	resp, err := t.Get(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", path, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &HTTPError{Path: path, StatusCode: resp.StatusCode}
	}
	if cl := resp.Header.Get("Content-Length"); cl != "" {
		n, err := strconv.ParseInt(cl, 10, 64)
		if err != nil || n != int64(len(resp.Body)) {
			return nil, &HTTPError{
				Path:       path,
				StatusCode: resp.StatusCode,
				Reason:     fmt.Sprintf("content length %q does not match %d body bytes", cl, len(resp.Body)),
			}
		}
	}
	return resp.Body, nil
}
