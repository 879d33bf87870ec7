package core

import (
	"errors"
	"fmt"
)

// ErrFetchFailed is matched (via errors.Is) by every *FetchError.
var ErrFetchFailed = errors.New("fetch failed")

// FetchError reports a request that still failed after the session's retry
// budget was spent. StatusCode is 0 when the last attempt failed at the
// transport level, in which case Err holds the transport error.
type FetchError struct {
	URL        string
	StatusCode int
	Attempts   int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: HTTP %d after %d attempt(s)", e.URL, e.StatusCode, e.Attempts)
	}
	return fmt.Sprintf("fetch %s: %v after %d attempt(s)", e.URL, e.Err, e.Attempts)
}

func (e *FetchError) Unwrap() error { return e.Err }

func (e *FetchError) Is(target error) bool { return target == ErrFetchFailed }

// ParseError reports input from upstream (a capture timestamp or an index
// row) that does not match the expected format. It is never retried.
type ParseError struct {
	Input string
	What  string
	Err   error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid %s %q: %v", e.What, e.Input, e.Err)
	}
	return fmt.Sprintf("invalid %s %q", e.What, e.Input)
}

func (e *ParseError) Unwrap() error { return e.Err }

// FilesystemError wraps a failure to create a directory or write a file.
// These are fatal regardless of the ignore-errors policy.
type FilesystemError struct {
	Op   string
	Path string
	Err  error
}

func (e *FilesystemError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *FilesystemError) Unwrap() error { return e.Err }

// errorKind names the concrete type of err for log output, e.g. "*core.FetchError".
func errorKind(err error) string {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fmt.Sprintf("%T", fe)
	}
	return fmt.Sprintf("%T", err)
}
