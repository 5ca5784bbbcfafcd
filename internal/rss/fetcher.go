// Package rss implements the feed ingestion and synchronization engine:
// safe fetching, format-agnostic parsing, idempotent reconciliation,
// request-rate governance and the staleness sweep.
package rss

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	userAgent    = "greader/1.0"
	acceptHeader = "application/rss+xml, application/atom+xml, application/xml, text/xml"

	maxRedirects = 10

	reasonPrivateTarget = "private network access denied"
)

// blockedHosts are literal hostnames never fetched.
var blockedHosts = map[string]bool{
	"localhost": true,
	"127.0.0.1": true,
	"0.0.0.0":   true,
	"::1":       true,
}

// blockedPrefixes cover private and link-local ranges by hostname prefix.
var blockedPrefixes = []string{"127.", "10.", "172.16.", "192.168.", "169.254."}

// ValidateFeedURL checks scheme and host before any network call is made.
// This is the SSRF guard: private-network targets are rejected here, not at
// connect time.
func ValidateFeedURL(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, &ValidationError{Reason: "invalid URL"}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, &ValidationError{Reason: "only http and https URLs are allowed"}
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return nil, &ValidationError{Reason: "URL has no host"}
	}
	if blockedHosts[host] {
		return nil, &ValidationError{Reason: reasonPrivateTarget}
	}
	for _, prefix := range blockedPrefixes {
		if strings.HasPrefix(host, prefix) {
			return nil, &ValidationError{Reason: reasonPrivateTarget}
		}
	}
	return u, nil
}

func isLoopbackHost(host string) bool {
	host = strings.ToLower(host)
	return host == "localhost" || host == "::1" || strings.HasPrefix(host, "127.")
}

// FetchResult is a fetched document plus the post-redirect URL, which becomes
// the canonicalization key for feed identity.
type FetchResult struct {
	Body     []byte
	FinalURL string
}

// Fetcher retrieves remote documents under a hard timeout and size ceiling.
type Fetcher struct {
	client        *http.Client
	maxBytes      int64
	allowLoopback bool
}

// SetTestingMode permits loopback targets so tests can fetch from httptest
// servers. Private non-loopback ranges stay blocked; never enable this in
// production wiring.
func (f *Fetcher) SetTestingMode(enabled bool) {
	f.allowLoopback = enabled
}

// NewFetcher builds a fetcher. The timeout covers the whole request including
// body read, and every redirect hop is re-validated against the private
// network guard before it is followed.
func NewFetcher(timeout time.Duration, maxBytes int64) *Fetcher {
	f := &Fetcher{maxBytes: maxBytes}
	f.client = &http.Client{
		Timeout: timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return errors.New("too many redirects")
			}
			_, err := f.checkTarget(req.URL.String())
			return err
		},
	}
	return f
}

// checkTarget applies the URL guard, letting loopback targets through in
// testing mode only.
func (f *Fetcher) checkTarget(raw string) (*url.URL, error) {
	u, err := ValidateFeedURL(raw)
	if err == nil {
		return u, nil
	}
	var ve *ValidationError
	if f.allowLoopback && errors.As(err, &ve) && ve.Reason == reasonPrivateTarget {
		if parsed, perr := url.Parse(raw); perr == nil && isLoopbackHost(parsed.Hostname()) {
			return parsed, nil
		}
	}
	return nil, err
}

// Fetch retrieves rawURL. It validates the URL first, fails fast on an
// advertised Content-Length above the ceiling, and detects oversize bodies
// while streaming for servers that lie about or omit the header. No state is
// written on any failure path.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*FetchResult, error) {
	u, err := f.checkTarget(rawURL)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, &FetchError{URL: rawURL, Reason: "build request", Err: err}
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", acceptHeader)

	resp, err := f.client.Do(req)
	if err != nil {
		// A redirect hop the guard refused surfaces as a ValidationError,
		// not a network failure.
		var ve *ValidationError
		if errors.As(err, &ve) {
			return nil, ve
		}
		return nil, &FetchError{URL: rawURL, Reason: "request failed", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &FetchError{URL: rawURL, Reason: "unexpected status " + resp.Status}
	}
	if resp.ContentLength > f.maxBytes {
		return nil, &FetchError{URL: rawURL, Reason: "response exceeds size ceiling"}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, &FetchError{URL: rawURL, Reason: "read body", Err: err}
	}
	if int64(len(body)) > f.maxBytes {
		return nil, &FetchError{URL: rawURL, Reason: "response exceeds size ceiling"}
	}

	return &FetchResult{
		Body:     body,
		FinalURL: resp.Request.URL.String(),
	}, nil
}
