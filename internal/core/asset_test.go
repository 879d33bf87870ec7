package core

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAsset_ArchiveURL(t *testing.T) {
	a := Asset{OriginalURL: "http://example.com/a b?x=1", Timestamp: "20150101000000"}

	rendered := a.ArchiveURL(DefaultRoot, "")
	raw := a.ArchiveURL(DefaultRoot, RawFlag)

	assert.Equal(t, "https://web.archive.org/web/20150101000000/http://example.com/a b?x=1", rendered)
	assert.Equal(t, "https://web.archive.org/web/20150101000000id_/http://example.com/a b?x=1", raw)

	// The two differ only in the flag segment.
	assert.Equal(t, rendered, strings.Replace(raw, "20150101000000"+RawFlag, "20150101000000", 1))

	assert.Equal(t, rendered, a.ArchiveURL(DefaultRoot+"/", ""), "trailing slash on root is ignored")
}

func TestFlag(t *testing.T) {
	assert.Equal(t, RawFlag, Flag(true))
	assert.Equal(t, "", Flag(false))
}

func TestAsset_Fetch(t *testing.T) {
	a := Asset{OriginalURL: "example.com", Timestamp: "20150101000000"}

	t.Run("content", func(t *testing.T) {
		var gotPath string
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotPath = r.URL.Path
			w.Write([]byte("<html>hi</html>"))
		}))
		defer ts.Close()

		res, err := a.Fetch(context.Background(), newTestSession(0), true, ts.URL)
		require.NoError(t, err)
		assert.False(t, res.Unavailable)
		assert.Equal(t, "<html>hi</html>", string(res.Content))
		assert.Equal(t, "/web/20150101000000id_/example.com", gotPath)
	})

	t.Run("excluded capture is unavailable", func(t *testing.T) {
		for _, status := range []int{http.StatusForbidden, http.StatusUnavailableForLegalReasons} {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "nope", status)
			}))

			res, err := a.Fetch(context.Background(), newTestSession(1), false, ts.URL)
			ts.Close()
			require.NoError(t, err, "status %d", status)
			assert.True(t, res.Unavailable, "status %d", status)
			assert.Nil(t, res.Content)
		}
	})

	t.Run("exclusion notice in body is unavailable", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("<p>Sorry. This URL has been excluded from the Wayback Machine.</p>"))
		}))
		defer ts.Close()

		res, err := a.Fetch(context.Background(), newTestSession(0), false, ts.URL)
		require.NoError(t, err)
		assert.True(t, res.Unavailable)
	})

	t.Run("raw capture quoting a notice is content", func(t *testing.T) {
		body := "<p>Our old page said: Blocked Site Error</p>"
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(body))
		}))
		defer ts.Close()

		res, err := a.Fetch(context.Background(), newTestSession(0), true, ts.URL)
		require.NoError(t, err)
		assert.False(t, res.Unavailable)
		assert.Equal(t, body, string(res.Content))
	})

	t.Run("server failure propagates", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		}))
		defer ts.Close()

		_, err := a.Fetch(context.Background(), newTestSession(2), false, ts.URL)
		assert.ErrorIs(t, err, ErrFetchFailed)
	})
}
