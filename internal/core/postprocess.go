package core

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// FileHook runs on a capture after its bytes were written to path.
type FileHook interface {
	AfterWrite(ctx context.Context, asset Asset, path string) error
}

// isHTML reports whether a written capture should be treated as an HTML page.
func isHTML(path string, content []byte) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".html", ".htm", ".xhtml":
		return true
	}
	return strings.HasPrefix(http.DetectContentType(content), "text/html")
}

// InjectBaseTag prepends <base href="href"> to <head> unless the document
// already has a <base>. The boolean reports whether the document changed.
func InjectBaseTag(html []byte, href string) ([]byte, bool, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, false, fmt.Errorf("failed to parse HTML: %w", err)
	}
	if doc.Find("base").Length() > 0 {
		return html, false, nil
	}
	head := doc.Find("head")
	if head.Length() == 0 {
		return html, false, nil
	}
	head.First().PrependHtml(fmt.Sprintf(`<base href="%s">`, escapeAttr(href)))

	out, err := doc.Html()
	if err != nil {
		return nil, false, fmt.Errorf("failed to serialize HTML: %w", err)
	}
	return []byte(out), true, nil
}

func escapeAttr(s string) string {
	return strings.NewReplacer(`&`, "&amp;", `"`, "&quot;", `<`, "&lt;", `>`, "&gt;").Replace(s)
}

// BaseTagHook points relative links of saved pages back at the archive so
// images and stylesheets still resolve when the file is opened locally.
type BaseTagHook struct {
	Href string
}

func (h BaseTagHook) AfterWrite(_ context.Context, _ Asset, path string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return &FilesystemError{Op: "read", Path: path, Err: err}
	}
	if !isHTML(path, content) {
		return nil
	}
	out, changed, err := InjectBaseTag(content, h.Href)
	if err != nil || !changed {
		return err
	}
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return &FilesystemError{Op: "write", Path: path, Err: err}
	}
	return nil
}

// InlineOptions controls how resources are inlined into a saved page.
type InlineOptions struct {
	// BaseURL is used to resolve relative URLs in the HTML.
	BaseURL string
	// ArchivePrefix, when set, means BaseURL is the page's original location:
	// references resolve against it and are fetched from ArchivePrefix+url.
	ArchivePrefix string
	// MaxResourceSize is the maximum size of a single resource to inline (bytes).
	// Resources larger than this are skipped. 0 means no limit.
	MaxResourceSize int64
	InlineImages    bool
	InlineCSS       bool
	InlineJS        bool
	Logger          *slog.Logger
}

// DefaultInlineOptions returns sensible defaults for inlining.
func DefaultInlineOptions(baseURL string) InlineOptions {
	return InlineOptions{
		BaseURL:         baseURL,
		MaxResourceSize: MaxResourceSize,
		InlineImages:    true,
		InlineCSS:       true,
		InlineJS:        true,
	}
}

// InlineResources fetches the stylesheets, scripts and images a page refers
// to through session and embeds them, so the page renders without the
// archive. Resources that cannot be fetched keep their original reference.
func InlineResources(ctx context.Context, session *Session, html []byte, opts InlineOptions) ([]byte, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	baseURL, err := url.Parse(opts.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	in := &inliner{ctx: ctx, session: session, prefix: opts.ArchivePrefix, maxSize: opts.MaxResourceSize, logger: logger}

	if opts.InlineCSS {
		doc.Find("link[rel='stylesheet']").Each(func(i int, s *goquery.Selection) {
			href, _ := s.Attr("href")
			cssURL, fetchURL := in.locate(baseURL, href)
			if cssURL == "" {
				return
			}
			css, _, err := in.fetch(fetchURL)
			if err != nil {
				return
			}
			s.ReplaceWithHtml(fmt.Sprintf("<style>%s</style>", in.inlineCSSURLs(string(css), cssURL)))
		})
	}

	if opts.InlineJS {
		doc.Find("script[src]").Each(func(i int, s *goquery.Selection) {
			src, _ := s.Attr("src")
			jsURL, fetchURL := in.locate(baseURL, src)
			if jsURL == "" {
				return
			}
			js, _, err := in.fetch(fetchURL)
			if err != nil {
				return
			}
			s.RemoveAttr("src")
			s.SetText(string(js))
		})
	}

	if opts.InlineImages {
		doc.Find("img[src]").Each(func(i int, s *goquery.Selection) {
			src, _ := s.Attr("src")
			imgURL, fetchURL := in.locate(baseURL, src)
			if imgURL == "" {
				return
			}
			dataURI, err := in.dataURI(fetchURL)
			if err != nil {
				return
			}
			s.SetAttr("src", dataURI)
		})

		// srcset lists several candidates; drop it so the inlined src wins.
		doc.Find("img[srcset], source[srcset]").RemoveAttr("srcset")
	}

	doc.Find("[style]").Each(func(i int, s *goquery.Selection) {
		style, _ := s.Attr("style")
		if strings.Contains(style, "url(") {
			s.SetAttr("style", in.inlineCSSURLs(style, baseURL.String()))
		}
	})

	out, err := doc.Html()
	if err != nil {
		return nil, fmt.Errorf("failed to serialize HTML: %w", err)
	}
	return []byte(out), nil
}

// resolveURL resolves a potentially relative URL against a base URL.
// data: and javascript: references resolve to "".
func resolveURL(base *url.URL, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" || strings.HasPrefix(ref, "data:") || strings.HasPrefix(ref, "javascript:") {
		return ""
	}
	refURL, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	return base.ResolveReference(refURL).String()
}

type inliner struct {
	ctx     context.Context
	session *Session
	prefix  string
	maxSize int64
	logger  *slog.Logger
}

// locate resolves ref against base and returns the resolved URL along with
// the URL to fetch it from.
func (in *inliner) locate(base *url.URL, ref string) (resolved, fetchURL string) {
	resolved = resolveURL(base, ref)
	if resolved == "" || in.prefix == "" || strings.HasPrefix(resolved, in.prefix) {
		return resolved, resolved
	}
	if u, err := url.Parse(resolved); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return resolved, resolved
	}
	return resolved, in.prefix + resolved
}

func (in *inliner) fetch(resourceURL string) ([]byte, string, error) {
	resp, err := in.session.Get(in.ctx, resourceURL, nil)
	if err != nil {
		in.logger.Info("failed to fetch resource", "url", resourceURL, "error", err)
		return nil, "", err
	}
	if in.maxSize > 0 && int64(len(resp.Body)) > in.maxSize {
		in.logger.Info("resource too large to inline", "url", resourceURL, "size", len(resp.Body))
		return nil, "", fmt.Errorf("resource exceeds %d bytes", in.maxSize)
	}
	return resp.Body, resp.Header.Get("Content-Type"), nil
}

func (in *inliner) dataURI(resourceURL string) (string, error) {
	data, contentType, err := in.fetch(resourceURL)
	if err != nil {
		return "", err
	}
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	if idx := strings.Index(contentType, ";"); idx > 0 {
		contentType = strings.TrimSpace(contentType[:idx])
	}
	return fmt.Sprintf("data:%s;base64,%s", contentType, base64.StdEncoding.EncodeToString(data)), nil
}

// inlineCSSURLs replaces url(...) references in css with data URIs.
func (in *inliner) inlineCSSURLs(css, baseURLStr string) string {
	baseURL, err := url.Parse(baseURLStr)
	if err != nil {
		return css
	}

	var result strings.Builder
	remaining := css
	for {
		start := strings.Index(remaining, "url(")
		if start == -1 {
			result.WriteString(remaining)
			break
		}
		result.WriteString(remaining[:start])

		after := remaining[start+4:]
		end := strings.Index(after, ")")
		if end == -1 {
			result.WriteString(remaining[start:])
			break
		}
		original := remaining[start : start+4+end+1]
		remaining = after[end+1:]

		ref := strings.Trim(strings.TrimSpace(after[:end]), `"'`)
		resolved, fetchURL := in.locate(baseURL, ref)
		if resolved == "" {
			result.WriteString(original)
			continue
		}
		dataURI, err := in.dataURI(fetchURL)
		if err != nil {
			result.WriteString(original)
			continue
		}
		result.WriteString(fmt.Sprintf("url(%s)", dataURI))
	}
	return result.String()
}

// options derives where a page's references resolve. Rendered captures link
// into the archive, so they resolve against the capture's archive URL. Raw
// captures keep the site's own links, which resolve against the original URL
// and are then fetched from the same raw snapshot.
func (h InlineHook) options(asset Asset) (InlineOptions, error) {
	target, err := ParseTarget(asset.OriginalURL)
	if err != nil {
		return InlineOptions{}, fmt.Errorf("invalid url %q: %w", asset.OriginalURL, err)
	}
	if target.Path == "" {
		target.Path = "/"
	}
	page := Asset{OriginalURL: target.String(), Timestamp: asset.Timestamp}

	if !h.Raw {
		return DefaultInlineOptions(page.ArchiveURL(h.Root, "")), nil
	}
	opts := DefaultInlineOptions(page.OriginalURL)
	opts.ArchivePrefix = strings.TrimRight(h.Root, "/") + "/web/" + asset.Timestamp + RawFlag + "/"
	return opts, nil
}

// InlineHook inlines the resources of each saved HTML page, fetching them
// from the archive copy the page was downloaded from.
type InlineHook struct {
	Session *Session
	Root    string
	Raw     bool
	Logger  *slog.Logger
}

func (h InlineHook) AfterWrite(ctx context.Context, asset Asset, path string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return &FilesystemError{Op: "read", Path: path, Err: err}
	}
	if !isHTML(path, content) {
		return nil
	}

	opts, err := h.options(asset)
	if err != nil {
		return err
	}
	opts.Logger = h.Logger
	out, err := InlineResources(ctx, h.Session, content, opts)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return &FilesystemError{Op: "write", Path: path, Err: err}
	}
	return nil
}
