package core

import (
	"net/url"
	"path"
	"path/filepath"
	"strings"
)

// InvalidCharsForOS returns the characters that cannot appear in a file name
// on goos (a runtime.GOOS value).
func InvalidCharsForOS(goos string) string {
	switch goos {
	case "windows":
		return `<>:"\|?*`
	case "darwin":
		return ":"
	default:
		return ""
	}
}

// Sanitizer rewrites path segments so they are legal on the target
// filesystem. The zero value changes nothing.
type Sanitizer struct {
	// Invalid lists the characters to replace.
	Invalid string
	// Fallback replaces each invalid character. Zero means DefaultFallbackChar.
	Fallback rune
}

// Replace substitutes every invalid character in p. It is deterministic:
// the same input always yields the same output.
func (s Sanitizer) Replace(p string) string {
	if s.Invalid == "" {
		return p
	}
	fallback := s.Fallback
	if fallback == 0 {
		fallback = DefaultFallbackChar
	}
	return strings.Map(func(r rune) rune {
		if strings.ContainsRune(s.Invalid, r) {
			return fallback
		}
		return r
	}, p)
}

// ParseTarget parses a user-supplied URL, assuming http:// when the scheme is
// missing.
func ParseTarget(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err == nil && u.Scheme != "" && u.Host != "" {
		return u, nil
	}
	return url.Parse("http://" + raw)
}

// Destination returns the directory and file path a capture of target taken
// at timestamp is written to:
//
//	directory/host/url-path-dirs/(url-path-tail or "{timestamp}.html")
func Destination(directory string, target *url.URL, timestamp string, s Sanitizer) (dir, file string) {
	head, tail := path.Split(target.Path)
	if tail == "" {
		tail = timestamp + ".html"
	}

	dir = filepath.Join(
		directory,
		s.Replace(target.Host),
		filepath.FromSlash(s.Replace(strings.TrimLeft(head, "/"))),
	)
	return dir, filepath.Join(dir, s.Replace(tail))
}
