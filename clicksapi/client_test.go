package clicksapi

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientEndpoints(t *testing.T) {
	testcases := []struct {
		desc   string
		call   func(*Client) (*Clicks, error)
		method string
		path   string
	}{
		{"get", (*Client).getBackground, http.MethodGet, "/clicks"},
		{"click", (*Client).clickBackground, http.MethodPost, "/click"},
		{"reset", (*Client).resetBackground, http.MethodPost, "/reset"},
	}

	for _, tc := range testcases {
		t.Run(tc.desc, func(t *testing.T) {
			var gotMethod, gotPath string
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotMethod, gotPath = r.Method, r.URL.Path
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(`{"clicks": 7}`))
			}))
			defer srv.Close()

			got, err := tc.call(New(srv.URL))
			require.NoError(t, err)
			assert.Equal(t, 7, got.Clicks)
			assert.Equal(t, tc.method, gotMethod)
			assert.Equal(t, tc.path, gotPath)
		})
	}
}

func TestClientRequestFailed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("server error"))
	}))
	defer srv.Close()

	_, err := New(srv.URL).Get(context.Background())
	require.Error(t, err)

	var rf *RequestFailedError
	require.True(t, errors.As(err, &rf))
	assert.Equal(t, http.StatusInternalServerError, rf.StatusCode)
	assert.Equal(t, "server error", err.Error())
}

func TestClientTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := New(url).Click(context.Background())
	require.Error(t, err)

	var te *TransportError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, http.MethodPost, te.Method)
	assert.Equal(t, "/click", te.Path)
	assert.NotNil(t, errors.Unwrap(err))
}

func TestClientBadJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not json"))
	}))
	defer srv.Close()

	_, err := New(srv.URL).Get(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode GET /clicks")
}

func TestClientMissingFieldDecodesToZero(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	got, err := New(srv.URL).Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, got.Clicks)
}

func TestClientHeaders(t *testing.T) {
	var got http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		_, _ = w.Write([]byte(`{"clicks": 1}`))
	}))
	defer srv.Close()

	c := New(srv.URL+"/", WithHeader("X-Client-ID", "default"), WithHeader("X-Trace", "t1"))
	assert.Equal(t, srv.URL, c.BaseURL())

	_, err := c.Do(context.Background(), "", PathClicks, http.Header{"X-Client-Id": {"override"}})
	require.NoError(t, err)
	assert.Equal(t, "override", got.Get("X-Client-ID"))
	assert.Equal(t, "t1", got.Get("X-Trace"))
	assert.Equal(t, "application/json", got.Get("Accept"))
}

func TestNewDefaultsBaseURL(t *testing.T) {
	assert.Equal(t, DefaultBaseURL, New("").BaseURL())
}

func (c *Client) getBackground() (*Clicks, error)   { return c.Get(context.Background()) }
func (c *Client) clickBackground() (*Clicks, error) { return c.Click(context.Background()) }
func (c *Client) resetBackground() (*Clicks, error) { return c.Reset(context.Background()) }
