package core

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// exclusionNotices are phrases the archive serves instead of a capture that
// has been excluded or blocked.
var exclusionNotices = [][]byte{
	[]byte("This URL has been excluded from the Wayback Machine"),
	[]byte("Blocked Site Error"),
}

// Asset is one (original URL, timestamp) pair of a pack.
type Asset struct {
	OriginalURL string
	Timestamp   string
}

// ArchiveURL builds {root}/web/{timestamp}{flag}/{original_url}. flag is ""
// for the archive's rendered copy or RawFlag for the captured bytes.
func (a Asset) ArchiveURL(root, flag string) string {
	return fmt.Sprintf("%s/web/%s%s/%s", strings.TrimRight(root, "/"), a.Timestamp, flag, a.OriginalURL)
}

// FetchResult is either the content of a capture or a note that the archive
// can no longer serve it.
type FetchResult struct {
	Content     []byte
	Unavailable bool
	// Reason explains an unavailable capture.
	Reason string
}

// Content wraps fetched bytes.
func Content(b []byte) FetchResult { return FetchResult{Content: b} }

// Unavailable marks a capture the archive refuses to serve.
func Unavailable(reason string) FetchResult { return FetchResult{Unavailable: true, Reason: reason} }

// Flag returns the archive URL flag for raw or rendered retrieval.
func Flag(raw bool) string {
	if raw {
		return RawFlag
	}
	return ""
}

// Fetch retrieves the capture through session. An excluded or blocked capture
// is reported as Unavailable with a nil error; any other failure that
// survived the session's retries is returned as an error.
func (a Asset) Fetch(ctx context.Context, session *Session, raw bool, root string) (FetchResult, error) {
	archiveURL := a.ArchiveURL(root, Flag(raw))

	resp, err := session.Get(ctx, archiveURL, nil)
	if err != nil {
		var fe *FetchError
		if errors.As(err, &fe) && isExcluded(fe.StatusCode, resp) {
			return Unavailable(fmt.Sprintf("HTTP %d", fe.StatusCode)), nil
		}
		return FetchResult{}, err
	}

	// Raw responses are the captured bytes, which may quote a notice
	// verbatim; only the archive's own rendered pages carry it as an error.
	if !raw {
		for _, notice := range exclusionNotices {
			if bytes.Contains(resp.Body, notice) {
				return Unavailable(string(notice)), nil
			}
		}
	}
	return Content(resp.Body), nil
}

func isExcluded(status int, resp *Response) bool {
	switch status {
	case http.StatusForbidden, http.StatusUnavailableForLegalReasons:
		return true
	}
	if resp == nil {
		return false
	}
	for _, notice := range exclusionNotices {
		if bytes.Contains(resp.Body, notice) {
			return true
		}
	}
	return false
}
