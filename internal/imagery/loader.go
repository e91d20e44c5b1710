// Package imagery downloads the remote images overlaid on POI markers.
package imagery

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
	httpTimeout = 10 * time.Second

	// MaxBytes caps a single image download.
	MaxBytes = 2 << 20
)

// Loader fetches images by reference. Relative references resolve against
// baseURL.
type Loader struct {
	baseURL *url.URL
	client  *http.Client
}

// NewLoader constructs a Loader. baseURL may be empty when every reference
// is absolute.
func NewLoader(baseURL string) (*Loader, error) {
	var base *url.URL
	if baseURL != "" {
		u, err := url.Parse(baseURL)
		if err != nil {
			return nil, fmt.Errorf("parsing image base URL: %w", err)
		}
		base = u
	}
	return &Loader{baseURL: base, client: &http.Client{Timeout: httpTimeout}}, nil
}

func (l *Loader) resolve(ref string) (string, error) {
	u, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("parsing image ref %q: %w", ref, err)
	}
	if u.IsAbs() {
		return u.String(), nil
	}
	if l.baseURL == nil {
		return "", fmt.Errorf("relative image ref %q without base URL", ref)
	}
	return l.baseURL.ResolveReference(u).String(), nil
}

// Load downloads the image at ref. Non-200 responses, non-image content
// types, and bodies over MaxBytes are errors.
func (l *Loader) Load(ctx context.Context, ref string) ([]byte, error) {
	rawURL, err := l.resolve(ref)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request for %s: %w", rawURL, err)
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GET %s returned status %d", rawURL, resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "image/") {
		return nil, fmt.Errorf("GET %s returned content type %q", rawURL, ct)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", rawURL, err)
	}
	if len(body) > MaxBytes {
		return nil, fmt.Errorf("image %s exceeds %d bytes", rawURL, MaxBytes)
	}
	return body, nil
}
