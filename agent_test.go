package httpagent

import (
	"compress/gzip"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAgentSendBasicGET(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("hello"))
	}))
	defer srv.Close()

	a := New()
	defer a.Close()

	resp, err := a.Send(context.Background(), &Request{Method: "GET", URL: srv.URL})
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, 200, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(body))
}

func TestAgentSendWithRequestBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(b)
	}))
	defer srv.Close()

	a := New()
	defer a.Close()

	resp, err := a.Send(context.Background(), &Request{
		Method: "POST",
		URL:    srv.URL,
		Body:   StringBody("form=data"),
	})
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "form=data", string(body))
}

func TestAgentFollowsRedirect(t *testing.T) {
	var mux http.ServeMux
	mux.HandleFunc("/start", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/target", http.StatusFound)
	})
	mux.HandleFunc("/target", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("arrived"))
	})
	srv := httptest.NewServer(&mux)
	defer srv.Close()

	a := New()
	defer a.Close()

	resp, err := a.Send(context.Background(), &Request{Method: "GET", URL: srv.URL + "/start"})
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, srv.URL+"/target", resp.Origin)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "arrived", string(body))
}

func TestAgentRedirectCapZeroReturnsRedirectUnfollowed(t *testing.T) {
	var mux http.ServeMux
	var targetHits atomic.Int32
	mux.HandleFunc("/start", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/target", http.StatusFound)
	})
	mux.HandleFunc("/target", func(w http.ResponseWriter, r *http.Request) {
		targetHits.Add(1)
		w.WriteHeader(http.StatusOK)
	})
	srv := httptest.NewServer(&mux)
	defer srv.Close()

	a := New(WithRedirectCap(0))
	defer a.Close()

	resp, err := a.Send(context.Background(), &Request{Method: "GET", URL: srv.URL + "/start"})
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/target", resp.Header.Get("Location"))
	assert.Equal(t, int32(0), targetHits.Load())
}

func TestAgentPersistsCookiesAcrossRequests(t *testing.T) {
	var mux http.ServeMux
	var sawCookie atomic.Bool
	mux.HandleFunc("/set", func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "sid", Value: "abc123", Path: "/"})
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/check", func(w http.ResponseWriter, r *http.Request) {
		if c, err := r.Cookie("sid"); err == nil && c.Value == "abc123" {
			sawCookie.Store(true)
		}
		w.WriteHeader(http.StatusOK)
	})
	srv := httptest.NewServer(&mux)
	defer srv.Close()

	a := New()
	defer a.Close()

	resp1, err := a.Send(context.Background(), &Request{Method: "GET", URL: srv.URL + "/set"})
	require.NoError(t, err)
	resp1.Body.Close()

	resp2, err := a.Send(context.Background(), &Request{Method: "GET", URL: srv.URL + "/check"})
	require.NoError(t, err)
	resp2.Body.Close()

	assert.True(t, sawCookie.Load())
}

func TestAgentDecodesGzipResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Encoding", "gzip")
		w.WriteHeader(http.StatusOK)
		zw := gzip.NewWriter(w)
		_, _ = zw.Write([]byte("compressed response"))
		_ = zw.Close()
	}))
	defer srv.Close()

	a := New()
	defer a.Close()

	resp, err := a.Send(context.Background(), &Request{Method: "GET", URL: srv.URL})
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "compressed response", string(body))
}

func TestAgentCallConfigOverridesRedirectCap(t *testing.T) {
	var mux http.ServeMux
	var targetHits atomic.Int32
	mux.HandleFunc("/start", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/target", http.StatusFound)
	})
	mux.HandleFunc("/target", func(w http.ResponseWriter, r *http.Request) {
		targetHits.Add(1)
		w.WriteHeader(http.StatusOK)
	})
	srv := httptest.NewServer(&mux)
	defer srv.Close()

	a := New() // default redirect cap follows redirects
	defer a.Close()

	zero := 0
	resp, err := a.Send(context.Background(), &Request{
		Method: "GET",
		URL:    srv.URL + "/start",
		Config: &CallConfig{RedirectCap: &zero},
	})
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, int32(0), targetHits.Load())
}

func TestAgentCloseIsIdempotent(t *testing.T) {
	a := New()
	a.Close()
	a.Close() // must not panic
}

func TestSendHelperBuildsAndClosesItsOwnAgent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("one-shot"))
	}))
	defer srv.Close()

	resp, err := Send(context.Background(), &Request{Method: "GET", URL: srv.URL})
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "one-shot", string(body))
}
