package widget

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ryanhamamura/clicker/clicksapi"
	"github.com/ryanhamamura/clicker/clickserver"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newClickService(t *testing.T) *httptest.Server {
	t.Helper()
	s, err := clickserver.New(clickserver.NewMemoryStore())
	require.NoError(t, err)
	srv := httptest.NewServer(s)
	t.Cleanup(srv.Close)
	return srv
}

func TestWidgetAgainstClickService(t *testing.T) {
	srv := newClickService(t)
	client := clicksapi.New(srv.URL)

	alice := New(client, WithHeader(http.Header{"X-Client-ID": {"alice"}}))
	bob := New(client, WithHeader(http.Header{"X-Client-ID": {"bob"}}))

	alice.Mount()
	bob.Mount()
	alice.Wait()
	bob.Wait()
	assert.Equal(t, "Click Me!", alice.State().PrimaryLabel())

	alice.Click()
	alice.Wait()
	alice.Click()
	alice.Wait()
	bob.Click()
	bob.Wait()

	assert.Equal(t, "Clicks: 2", alice.State().PrimaryLabel())
	assert.Equal(t, "Clicks: 1", bob.State().PrimaryLabel())

	alice.Reset()
	alice.Wait()
	assert.True(t, alice.State().ResetDisabled())
	assert.Nil(t, alice.State().Err)

	// a fresh mount for bob sees the stored count
	again := New(client, WithHeader(http.Header{"X-Client-ID": {"bob"}}))
	again.Mount()
	again.Wait()
	assert.Equal(t, 1, again.State().Clicks())
}

func TestWidgetForwardedAddressSelectsCounter(t *testing.T) {
	srv := newClickService(t)
	client := clicksapi.New(srv.URL)

	w := New(client, WithHeader(http.Header{"X-Forwarded-For": {"198.51.100.4"}}))
	w.Mount()
	w.Wait()
	w.Click()
	w.Wait()

	other := New(client, WithHeader(http.Header{"X-Forwarded-For": {"198.51.100.5"}}))
	other.Mount()
	other.Wait()

	assert.Equal(t, 1, w.State().Clicks())
	assert.Equal(t, 0, other.State().Clicks())
}
