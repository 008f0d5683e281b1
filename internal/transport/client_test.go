package transport

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"regexp"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jswain/newsharvest/internal/harvest"
)

func testPolicy(maxAttempts int) *RetryPolicy {
	return NewRetryPolicy(maxAttempts, time.Millisecond, 5*time.Millisecond,
		[]int{http.StatusInternalServerError, http.StatusBadGateway, http.StatusGatewayTimeout})
}

func TestGet_RetriesTransientStatusThenSucceeds(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte("<html>article</html>"))
	}))
	defer srv.Close()

	client := New(Config{Source: "lorient", Retry: testPolicy(5)}, zap.NewNop())
	page, err := client.Get(context.Background(), srv.URL+"/article/1")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, page.StatusCode)
	require.Contains(t, string(page.Body), "article")
	require.Equal(t, int32(3), hits.Load())
}

func TestGet_ExhaustsRetries(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := New(Config{Source: "lorient", Retry: testPolicy(2)}, zap.NewNop())
	_, err := client.Get(context.Background(), srv.URL+"/article/1")
	require.Error(t, err)
	require.False(t, errors.Is(err, ErrNotFound))
	require.Equal(t, int32(3), hits.Load())
}

func TestGet_NotFoundIsDefinitive(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	client := New(Config{Source: "lorient", Retry: testPolicy(5)}, zap.NewNop())
	_, err := client.Get(context.Background(), srv.URL+"/article/404")
	require.ErrorIs(t, err, ErrNotFound)
	require.Equal(t, int32(1), hits.Load())
}

func TestGet_OffDomainRedirect(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/category/news" {
			w.Write([]byte("<html>category</html>"))
			return
		}
		http.Redirect(w, r, "/category/news", http.StatusFound)
	}))
	defer srv.Close()

	client := New(Config{
		Source:         "lorient",
		ArticlePattern: regexp.MustCompile(`/article/`),
		Retry:          testPolicy(2),
	}, zap.NewNop())
	_, err := client.Get(context.Background(), srv.URL+"/article/999")
	require.ErrorIs(t, err, ErrOffDomain)
}

func TestGet_PatternAcceptsArticleRedirect(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/article/1/slug.html" {
			w.Write([]byte("<html>article</html>"))
			return
		}
		http.Redirect(w, r, "/article/1/slug.html", http.StatusMovedPermanently)
	}))
	defer srv.Close()

	client := New(Config{
		Source:         "lorient",
		ArticlePattern: regexp.MustCompile(`/article/`),
		Retry:          testPolicy(2),
	}, zap.NewNop())
	page, err := client.Get(context.Background(), srv.URL+"/article/1")
	require.NoError(t, err)
	require.Contains(t, page.FinalURL, "/article/1/slug.html")
}

func TestProbe(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodHead, r.Method)
		if r.URL.Path == "/article/1" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	client := New(Config{Source: "lorient", Retry: testPolicy(2)}, zap.NewNop())

	res, err := client.Probe(context.Background(), srv.URL+"/article/1")
	require.NoError(t, err)
	require.Equal(t, harvest.ProbeFound, res)

	res, err = client.Probe(context.Background(), srv.URL+"/article/2")
	require.NoError(t, err)
	require.Equal(t, harvest.ProbeGone, res)
}

func TestGet_ContextCanceled(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := New(Config{Source: "lorient", Retry: testPolicy(5)}, zap.NewNop())
	_, err := client.Get(ctx, srv.URL+"/article/1")
	require.ErrorIs(t, err, context.Canceled)
}

func TestRetryPolicy_ShouldRetry(t *testing.T) {
	t.Parallel()

	p := testPolicy(3)

	require.True(t, p.ShouldRetry(http.StatusBadGateway, errors.New("bad gateway"), 0))
	require.False(t, p.ShouldRetry(http.StatusForbidden, errors.New("forbidden"), 0))
	require.False(t, p.ShouldRetry(http.StatusBadGateway, errors.New("bad gateway"), 3))
	require.False(t, p.ShouldRetry(0, context.Canceled, 0))
	require.True(t, p.ShouldRetry(0, errors.New("connection refused"), 0))
}

func TestRetryPolicy_BackoffBounds(t *testing.T) {
	t.Parallel()

	p := NewRetryPolicy(5, 100*time.Millisecond, time.Second, nil)
	for attempt := 0; attempt < 8; attempt++ {
		d := p.Backoff(attempt)
		require.GreaterOrEqual(t, d, time.Duration(0))
		require.LessOrEqual(t, d, time.Second)
	}
}
