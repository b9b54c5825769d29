// Package client fetches tile payloads over HTTP.
package client

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/http2"

	"github.com/geoyee/globetile/internal/logger"
)

const (
	MaxIdleConns        = 200
	MaxIdleConnsPerHost = 50
	MaxConnsPerHost     = 50
	IdleConnTimeout     = 30 * time.Second
)

// ErrTooLarge is returned when a payload exceeds the configured maximum.
var ErrTooLarge = errors.New("payload exceeds size limit")

// Fetcher retrieves the payload at a URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// StatusError is a non-200 HTTP response.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d", e.StatusCode)
}

// Config configures an HTTPClient. Timeout is in seconds.
type Config struct {
	Timeout     int
	ProxyURL    string
	UseHTTP2    bool
	KeepAlive   bool
	UserAgent   string
	Referer     string
	MaxFileSize int64
	BufferSize  int
	// Retries is the number of extra attempts after a transient network
	// error. Client errors are never retried.
	Retries int
}

// HTTPClient is a Fetcher backed by a tuned http.Client.
type HTTPClient struct {
	client *http.Client
	config *Config
	log    *slog.Logger
}

// NewHTTPClient creates a client configured from config.
func NewHTTPClient(config *Config) *HTTPClient {
	log := logger.Component("client")
	return &HTTPClient{
		config: config,
		client: createHTTPClient(config, log),
		log:    log,
	}
}

func createHTTPClient(config *Config, log *slog.Logger) *http.Client {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     config.UseHTTP2,
		MaxIdleConns:          MaxIdleConns,
		MaxIdleConnsPerHost:   MaxIdleConnsPerHost,
		MaxConnsPerHost:       MaxConnsPerHost,
		IdleConnTimeout:       IdleConnTimeout,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 5 * time.Second,
		DisableCompression:    true,
		DisableKeepAlives:     !config.KeepAlive,
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
	}

	if config.ProxyURL != "" {
		proxyURL, err := url.Parse(config.ProxyURL)
		if err != nil {
			log.Warn("invalid proxy url, using environment", "op", "configure", "proxy", config.ProxyURL, "error", err)
		} else {
			transport.Proxy = http.ProxyURL(proxyURL)
			log.Info("proxy configured", "op", "configure", "host", proxyURL.Host)
		}
	}

	if config.UseHTTP2 {
		if err := http2.ConfigureTransport(transport); err != nil {
			log.Warn("http2 not configured", "op", "configure", "error", err)
		}
	}

	return &http.Client{
		Transport: transport,
		Timeout:   time.Duration(config.Timeout) * time.Second,
	}
}

// Fetch GETs url and returns the body, retrying transient network errors.
func (c *HTTPClient) Fetch(ctx context.Context, url string) ([]byte, error) {
	var lastErr error
	for attempt := range c.config.Retries + 1 {
		if attempt > 0 {
			delay := min(time.Duration(1<<uint(attempt-1))*500*time.Millisecond, 30*time.Second)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		data, err := c.fetchOnce(ctx, url)
		if err == nil {
			return data, nil
		}
		lastErr = err
		if !IsTransient(err) {
			break
		}
		c.log.Debug("transient fetch error", "op", "fetch", "url", url, "attempt", attempt+1, "error", err)
	}
	return nil, lastErr
}

func (c *HTTPClient) fetchOnce(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if c.config.UserAgent != "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}
	req.Header.Set("Accept", "image/webp,image/apng,image/*,application/bil16,*/*;q=0.8")
	if c.config.Referer != "" {
		req.Header.Set("Referer", c.config.Referer)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer SafeCloseResponse(resp)
	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{StatusCode: resp.StatusCode}
	}

	body := io.Reader(resp.Body)
	if c.config.MaxFileSize > 0 {
		body = io.LimitReader(resp.Body, c.config.MaxFileSize+1)
	}
	data, err := readAll(body, c.config.BufferSize)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if c.config.MaxFileSize > 0 && int64(len(data)) > c.config.MaxFileSize {
		return nil, fmt.Errorf("%w: %d > %d", ErrTooLarge, len(data), c.config.MaxFileSize)
	}
	return data, nil
}

func readAll(r io.Reader, bufferSize int) ([]byte, error) {
	if bufferSize <= 0 {
		return io.ReadAll(r)
	}
	buf := make([]byte, bufferSize)
	var data []byte
	for {
		n, err := r.Read(buf)
		data = append(data, buf[:n]...)
		if err == io.EOF {
			return data, nil
		}
		if err != nil {
			return nil, err
		}
	}
}

// IsTransient reports whether err looks like a network hiccup worth retrying.
func IsTransient(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode >= 500 || se.StatusCode == http.StatusTooManyRequests
	}
	if errors.Is(err, ErrTooLarge) || errors.Is(err, context.Canceled) {
		return false
	}
	lower := strings.ToLower(err.Error())
	return strings.Contains(lower, "timeout") ||
		strings.Contains(lower, "deadline") ||
		strings.Contains(lower, "connection") ||
		strings.Contains(lower, "network")
}

// CloseIdleConnections releases pooled connections.
func (c *HTTPClient) CloseIdleConnections() {
	c.client.CloseIdleConnections()
}

// GetClient returns the underlying http.Client.
func (c *HTTPClient) GetClient() *http.Client {
	return c.client
}

// SafeCloseResponse drains and closes a response body.
func SafeCloseResponse(resp *http.Response) {
	if resp != nil && resp.Body != nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}
}
