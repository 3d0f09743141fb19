package services

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestPexelsFetchImage(t *testing.T) {
	var srvURL string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/search":
			assert.Equal(t, "pexels-key", r.Header.Get("Authorization"))
			assert.Equal(t, "portrait", r.URL.Query().Get("orientation"))
			assert.Equal(t, "AI chips", r.URL.Query().Get("query"))
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprintf(w, `{"photos":[{"id":7,"src":{"portrait":"%s/photos/7.jpg"}}]}`, srvURL)
		case "/photos/7.jpg":
			w.Write([]byte("jpeg-bytes"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()
	srvURL = srv.URL

	p := NewPexelsService("pexels-key", 5*time.Second, zap.NewNop()).WithBaseURL(srv.URL)
	data, err := p.FetchImage(context.Background(), "AI chips")
	require.NoError(t, err)
	assert.Equal(t, []byte("jpeg-bytes"), data)
	assert.Equal(t, "pexels", p.Name())
}

func TestPexelsNoResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"photos":[]}`))
	}))
	defer srv.Close()

	p := NewPexelsService("k", time.Second, zap.NewNop()).WithBaseURL(srv.URL)
	_, err := p.FetchImage(context.Background(), "nothing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no photos")
}

func TestPollinationsFetchImage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasPrefix(r.URL.Path, "/prompt/"))
		assert.Contains(t, r.URL.Path, "Quantum computing")
		assert.Equal(t, "1080", r.URL.Query().Get("width"))
		assert.Equal(t, "1920", r.URL.Query().Get("height"))
		w.Write([]byte("png-bytes"))
	}))
	defer srv.Close()

	p := NewPollinationsService(1080, 1920, time.Second).WithBaseURL(srv.URL)
	data, err := p.FetchImage(context.Background(), "Quantum computing")
	require.NoError(t, err)
	assert.Equal(t, []byte("png-bytes"), data)
}

func TestPollinationsErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	p := NewPollinationsService(1080, 1920, time.Second).WithBaseURL(srv.URL)
	_, err := p.FetchImage(context.Background(), "x")
	assert.Error(t, err)
}

func TestComposeBackdropPrompt(t *testing.T) {
	prompt := composeBackdropPrompt("5G rollout")
	assert.Contains(t, prompt, "SUBJECT: 5G rollout")
	assert.Contains(t, prompt, "9:16")
	assert.Contains(t, prompt, "Do NOT render any text")
}
