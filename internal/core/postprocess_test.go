package core

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInjectBaseTag(t *testing.T) {
	t.Run("adds base to head", func(t *testing.T) {
		out, changed, err := InjectBaseTag([]byte(`<html><head><title>t</title></head><body><img src="/a.png"></body></html>`), "https://web.archive.org/")
		require.NoError(t, err)
		assert.True(t, changed)
		assert.Contains(t, string(out), `<head><base href="https://web.archive.org/"/><title>t</title>`)
	})

	t.Run("existing base is kept", func(t *testing.T) {
		in := []byte(`<html><head><base href="/x/"></head><body></body></html>`)
		out, changed, err := InjectBaseTag(in, "https://web.archive.org/")
		require.NoError(t, err)
		assert.False(t, changed)
		assert.Equal(t, in, out)
	})

	t.Run("href is escaped", func(t *testing.T) {
		out, _, err := InjectBaseTag([]byte(`<html><head></head></html>`), `https://a.example/?q="x"&y`)
		require.NoError(t, err)
		assert.Contains(t, string(out), `href="https://a.example/?q=&#34;x&#34;&amp;y"`)
	})
}

func TestBaseTagHook(t *testing.T) {
	dir := t.TempDir()
	hook := BaseTagHook{Href: "https://web.archive.org/"}

	page := filepath.Join(dir, "20150101000000.html")
	require.NoError(t, os.WriteFile(page, []byte(`<html><head></head><body>x</body></html>`), 0o644))
	require.NoError(t, hook.AfterWrite(context.Background(), Asset{}, page))
	content, _ := os.ReadFile(page)
	assert.Contains(t, string(content), `<base href="https://web.archive.org/"/>`)

	// Running twice leaves a single tag.
	require.NoError(t, hook.AfterWrite(context.Background(), Asset{}, page))
	content, _ = os.ReadFile(page)
	assert.Equal(t, 1, strings.Count(string(content), "<base"))

	img := filepath.Join(dir, "logo.png")
	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\x00")
	require.NoError(t, os.WriteFile(img, png, 0o644))
	require.NoError(t, hook.AfterWrite(context.Background(), Asset{}, img))
	content, _ = os.ReadFile(img)
	assert.Equal(t, png, content, "non-HTML files are untouched")

	var fsErr *FilesystemError
	assert.ErrorAs(t, hook.AfterWrite(context.Background(), Asset{}, filepath.Join(dir, "missing.html")), &fsErr)
}

func TestResolveURL(t *testing.T) {
	base, _ := url.Parse("https://web.archive.org/web/20150101000000/http://example.com/blog/post.html")

	assert.Equal(t, "https://web.archive.org/web/20150101000000/http://example.com/blog/style.css", resolveURL(base, "style.css"))
	assert.Equal(t, "https://web.archive.org/static/a.js", resolveURL(base, "/static/a.js"))
	assert.Equal(t, "https://cdn.example.com/x.png", resolveURL(base, "https://cdn.example.com/x.png"))
	assert.Equal(t, "", resolveURL(base, ""))
	assert.Equal(t, "", resolveURL(base, "data:image/png;base64,AAAA"))
	assert.Equal(t, "", resolveURL(base, "javascript:void(0)"))
}

func resourceServer(t *testing.T) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/style.css":
			w.Header().Set("Content-Type", "text/css")
			w.Write([]byte(`body { background: url("bg.png"); }`))
		case "/bg.png", "/logo.png":
			w.Header().Set("Content-Type", "image/png; charset=binary")
			w.Write([]byte("PNGDATA"))
		case "/app.js":
			w.Header().Set("Content-Type", "application/javascript")
			w.Write([]byte(`console.log("hi")`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(ts.Close)
	return ts
}

func TestInlineResources(t *testing.T) {
	ts := resourceServer(t)
	pngURI := "data:image/png;base64," + base64.StdEncoding.EncodeToString([]byte("PNGDATA"))

	html := `<html><head>
		<link rel="stylesheet" href="style.css">
		<script src="app.js"></script>
	</head><body>
		<img src="logo.png" srcset="logo-2x.png 2x">
		<img src="missing.png">
		<div style="background: url('bg.png')"></div>
	</body></html>`

	out, err := InlineResources(context.Background(), newTestSession(0), []byte(html), DefaultInlineOptions(ts.URL+"/index.html"))
	require.NoError(t, err)
	s := string(out)

	assert.NotContains(t, s, `<link rel="stylesheet"`)
	assert.Contains(t, s, "<style>body { background: url("+pngURI+"); }</style>")
	assert.Contains(t, s, `console.log("hi")`)
	assert.NotContains(t, s, `src="app.js"`)
	assert.Contains(t, s, `src="`+pngURI+`"`)
	assert.NotContains(t, s, "srcset")
	assert.Contains(t, s, `src="missing.png"`, "unfetchable resources keep their reference")
	assert.Contains(t, s, "background: url("+pngURI+")")
}

func TestInlineResources_SizeLimit(t *testing.T) {
	ts := resourceServer(t)
	opts := DefaultInlineOptions(ts.URL + "/")
	opts.MaxResourceSize = 3

	out, err := InlineResources(context.Background(), newTestSession(0), []byte(`<html><body><img src="logo.png"></body></html>`), opts)
	require.NoError(t, err)
	assert.Contains(t, string(out), `src="logo.png"`)
}

func TestInlineHook(t *testing.T) {
	var paths []string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		w.Header().Set("Content-Type", "image/png")
		w.Write([]byte("PNGDATA"))
	}))
	defer ts.Close()

	page := filepath.Join(t.TempDir(), "20150101000000.html")
	require.NoError(t, os.WriteFile(page, []byte(`<html><body><img src="logo.png"></body></html>`), 0o644))

	hook := InlineHook{Session: newTestSession(0), Root: ts.URL}
	asset := Asset{OriginalURL: "http://example.com/blog/", Timestamp: "20150101000000"}
	require.NoError(t, hook.AfterWrite(context.Background(), asset, page))

	require.Len(t, paths, 1)
	assert.Equal(t, "/web/20150101000000/http://example.com/blog/logo.png", paths[0], "resolved against the archive copy")

	content, _ := os.ReadFile(page)
	assert.Contains(t, string(content), "data:image/png;base64,")
}

func TestInlineHook_Options(t *testing.T) {
	asset := Asset{OriginalURL: "example.com", Timestamp: "20150101000000"}

	opts, err := InlineHook{Root: DefaultRoot}.options(asset)
	require.NoError(t, err)
	assert.Equal(t, "https://web.archive.org/web/20150101000000/http://example.com/", opts.BaseURL)
	assert.Empty(t, opts.ArchivePrefix)

	opts, err = InlineHook{Root: DefaultRoot, Raw: true}.options(asset)
	require.NoError(t, err)
	assert.Equal(t, "http://example.com/", opts.BaseURL)
	assert.Equal(t, "https://web.archive.org/web/20150101000000id_/", opts.ArchivePrefix)
}

func TestInlineHook_HostOnlyTargets(t *testing.T) {
	tests := []struct {
		name   string
		target string
		raw    bool
		want   []string
	}{
		{
			name:   "raw bare host",
			target: "example.com",
			raw:    true,
			want: []string{
				"/web/20150101000000id_/http://example.com/style.css",
				"/web/20150101000000id_/http://example.com/img/bg.png",
				"/web/20150101000000id_/http://example.com/img/logo.png",
			},
		},
		{
			name:   "raw host with scheme",
			target: "http://example.com",
			raw:    true,
			want: []string{
				"/web/20150101000000id_/http://example.com/style.css",
				"/web/20150101000000id_/http://example.com/img/bg.png",
				"/web/20150101000000id_/http://example.com/img/logo.png",
			},
		},
		{
			name:   "rendered bare host",
			target: "example.com",
			want: []string{
				"/web/20150101000000/http://example.com/style.css",
				"/web/20150101000000/http://example.com/img/bg.png",
				"/img/logo.png",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var paths []string
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				paths = append(paths, r.URL.Path)
				if strings.HasSuffix(r.URL.Path, ".css") {
					w.Header().Set("Content-Type", "text/css")
					w.Write([]byte(`body { background: url(img/bg.png); }`))
					return
				}
				w.Header().Set("Content-Type", "image/png")
				w.Write([]byte("PNGDATA"))
			}))
			defer ts.Close()

			page := filepath.Join(t.TempDir(), "20150101000000.html")
			html := `<html><head><link rel="stylesheet" href="style.css"></head><body><img src="/img/logo.png"></body></html>`
			require.NoError(t, os.WriteFile(page, []byte(html), 0o644))

			hook := InlineHook{Session: newTestSession(0), Root: ts.URL, Raw: tt.raw}
			require.NoError(t, hook.AfterWrite(context.Background(), Asset{OriginalURL: tt.target, Timestamp: "20150101000000"}, page))

			assert.Equal(t, tt.want, paths)
			content, _ := os.ReadFile(page)
			assert.NotContains(t, string(content), `href="style.css"`)
			assert.NotContains(t, string(content), `src="/img/logo.png"`)
		})
	}
}
