package gateway

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/micro-ha/att-presence/addon/internal/model"
)

const (
	defaultTimeout = 30 * time.Second
	maxPageBytes   = 4 << 20
	userAgent      = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"
)

// RawPage is the device list markup returned by the router.
type RawPage struct {
	URL       string
	Body      []byte
	FetchedAt time.Time
}

type Client struct {
	plain  *http.Client
	secure *http.Client
	now    func() time.Time
}

func NewClient(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return NewClientWithHTTPClient(&http.Client{Timeout: timeout})
}

// NewClientWithHTTPClient derives the plain and https clients from httpClient once,
// so both keep their idle connection pools across polls.
func NewClientWithHTTPClient(httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	plain := *httpClient
	if plain.Timeout == 0 {
		plain.Timeout = defaultTimeout
	}
	plain.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}

	secure := plain
	secure.Transport = insecureTransport(plain.Transport)
	return &Client{plain: &plain, secure: &secure, now: time.Now}
}

func insecureTransport(base http.RoundTripper) *http.Transport {
	var transport *http.Transport
	if existing, ok := base.(*http.Transport); ok {
		transport = existing.Clone()
	} else if defaultTransport, ok := http.DefaultTransport.(*http.Transport); ok {
		transport = defaultTransport.Clone()
	} else {
		transport = &http.Transport{}
	}
	// Residential gateways ship self-signed certificates.
	transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
	return transport
}

// Fetch issues one authenticated request for the device list page. It never retries;
// the poller re-polls on its own interval.
func (c *Client) Fetch(ctx context.Context, cfg model.RouterConfig) (RawPage, error) {
	token := strings.TrimSpace(cfg.SessionID)
	if token == "" {
		return RawPage{}, fmt.Errorf("%w: no session id configured", model.ErrAuthExpired)
	}

	endpoint := cfg.DeviceListURL()
	client := c.plain
	if strings.HasPrefix(endpoint, "https://") {
		client = c.secure
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return RawPage{}, fmt.Errorf("%w: build request: %v", model.ErrMalformedResponse, err)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Pragma", "no-cache")
	req.Header.Set("Referer", cfg.HomeURL())
	req.Header.Set("User-Agent", userAgent)
	req.AddCookie(&http.Cookie{Name: "SessionID", Value: token})

	resp, err := client.Do(req)
	if err != nil {
		return RawPage{}, fmt.Errorf("%w: %v", model.ErrUnreachable, err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return RawPage{}, err
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return RawPage{}, fmt.Errorf("%w: read body: %v", model.ErrUnreachable, err)
	}
	if err := checkBody(resp, body); err != nil {
		return RawPage{}, err
	}
	return RawPage{URL: endpoint, Body: body, FetchedAt: c.now().UTC()}, nil
}

func checkStatus(resp *http.Response) error {
	switch {
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: status %d", model.ErrAuthExpired, resp.StatusCode)
	case resp.StatusCode >= 300 && resp.StatusCode < 400:
		location := resp.Header.Get("Location")
		if isLoginLocation(location) || !strings.Contains(strings.ToLower(location), "devices.ha") {
			return fmt.Errorf("%w: redirected to %q", model.ErrAuthExpired, location)
		}
		return fmt.Errorf("%w: unexpected redirect to %q", model.ErrMalformedResponse, location)
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: status %d", model.ErrUnreachable, resp.StatusCode)
	case resp.StatusCode >= 400:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("%w: status %d: %s", model.ErrMalformedResponse, resp.StatusCode, strings.TrimSpace(string(body)))
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("%w: status %d", model.ErrMalformedResponse, resp.StatusCode)
	}
	return nil
}

func checkBody(resp *http.Response, body []byte) error {
	if len(bytes.TrimSpace(body)) == 0 {
		return fmt.Errorf("%w: empty body", model.ErrMalformedResponse)
	}
	if contentType := resp.Header.Get("Content-Type"); contentType != "" {
		mediaType, _, err := mime.ParseMediaType(contentType)
		if err == nil && mediaType != "text/html" && mediaType != "application/xhtml+xml" {
			return fmt.Errorf("%w: content type %q", model.ErrMalformedResponse, mediaType)
		}
	}
	lower := bytes.ToLower(body)
	if isLoginPage(lower) {
		return fmt.Errorf("%w: login page returned", model.ErrAuthExpired)
	}
	if !bytes.Contains(lower, []byte("mac address")) && !bytes.Contains(lower, []byte("device list")) {
		return fmt.Errorf("%w: device list markers not found", model.ErrMalformedResponse)
	}
	return nil
}

func isLoginPage(lower []byte) bool {
	if bytes.Contains(lower, []byte("mac address")) {
		return false
	}
	return bytes.Contains(lower, []byte(`type="password"`)) ||
		bytes.Contains(lower, []byte(`type=password`)) ||
		bytes.Contains(lower, []byte("login.ha"))
}

func isLoginLocation(location string) bool {
	if location == "" {
		return false
	}
	if u, err := url.Parse(location); err == nil {
		location = u.Path
	}
	return strings.Contains(strings.ToLower(location), "login")
}

// IsAuthExpired is a convenience for callers that only branch on the terminal failure.
func IsAuthExpired(err error) bool {
	return errors.Is(err, model.ErrAuthExpired)
}
