package rss

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateFeedURL(t *testing.T) {
	valid := []string{
		"http://example.com/feed.xml",
		"https://blog.example.org/rss",
	}
	for _, u := range valid {
		_, err := ValidateFeedURL(u)
		assert.NoError(t, err, u)
	}

	invalid := []string{
		"ftp://example.com/feed.xml",
		"file:///etc/passwd",
		"http://localhost/feed",
		"http://127.0.0.1/feed",
		"http://127.0.0.1:8080/feed",
		"http://127.8.8.8/feed",
		"http://0.0.0.0:9000/feed",
		"http://[::1]/feed",
		"http://169.254.169.254/",
		"http://10.0.0.5/feed",
		"http://172.16.1.1/feed",
		"http://192.168.1.10/feed",
		"not a url at all ://",
		"",
	}
	for _, u := range invalid {
		_, err := ValidateFeedURL(u)
		var ve *ValidationError
		assert.ErrorAs(t, err, &ve, u)
	}
}

func TestFetchRejectsPrivateTargetsWithoutNetworkCall(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	// The httptest server lives on 127.0.0.1, so the guard must refuse its
	// own URL before any request is issued.
	f := NewFetcher(time.Second, 1<<20)
	_, err := f.Fetch(context.Background(), srv.URL)
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, int32(0), hits.Load())
}

func TestFetchRejectsRedirectToPrivateTarget(t *testing.T) {
	var hits atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/feed", func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Redirect(w, r, "http://10.9.9.9/latest/meta-data", http.StatusFound)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	// Testing mode permits the loopback origin only; the private redirect
	// target must still be refused at the hop, before it is dialed.
	f := NewFetcher(time.Second, 1<<20)
	f.SetTestingMode(true)
	_, err := f.Fetch(context.Background(), srv.URL+"/feed")
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve.Reason, "private network")
	assert.Equal(t, int32(1), hits.Load())
}

func TestFetchFollowsRedirects(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/old", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/new", http.StatusMovedPermanently)
	})
	mux.HandleFunc("/new", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<rss><channel></channel></rss>")
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	f := NewFetcher(time.Second, 1<<20)
	f.SetTestingMode(true)
	res, err := f.Fetch(context.Background(), srv.URL+"/old")
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/new", res.FinalURL)
	assert.Contains(t, string(res.Body), "<rss>")
}

func TestFetchRejectsAdvertisedOversize(t *testing.T) {
	body := strings.Repeat("x", 256)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", fmt.Sprint(len(body)))
		fmt.Fprint(w, body)
	}))
	defer srv.Close()

	f := NewFetcher(time.Second, 64)
	f.SetTestingMode(true)
	_, err := f.Fetch(context.Background(), srv.URL)
	var fe *FetchError
	require.ErrorAs(t, err, &fe)
	assert.Contains(t, fe.Reason, "size ceiling")
}

func TestFetchDetectsOversizeWhileStreaming(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Flush first so the response goes out chunked, without a
		// trustworthy Content-Length header.
		fl := w.(http.Flusher)
		fmt.Fprint(w, strings.Repeat("a", 32))
		fl.Flush()
		fmt.Fprint(w, strings.Repeat("b", 64))
	}))
	defer srv.Close()

	f := NewFetcher(time.Second, 64)
	f.SetTestingMode(true)
	_, err := f.Fetch(context.Background(), srv.URL)
	var fe *FetchError
	require.ErrorAs(t, err, &fe)
	assert.Contains(t, fe.Reason, "size ceiling")
}

func TestFetchRejectsNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	f := NewFetcher(time.Second, 1<<20)
	f.SetTestingMode(true)
	_, err := f.Fetch(context.Background(), srv.URL)
	var fe *FetchError
	assert.ErrorAs(t, err, &fe)
}

func TestFetchTimesOut(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
	}))
	defer srv.Close()

	f := NewFetcher(50*time.Millisecond, 1<<20)
	f.SetTestingMode(true)
	_, err := f.Fetch(context.Background(), srv.URL)
	var fe *FetchError
	assert.ErrorAs(t, err, &fe)
}
