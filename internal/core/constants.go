package core

import "time"

// Archive service defaults
const (
	DefaultRoot        = "https://web.archive.org"
	DefaultCDXEndpoint = "https://web.archive.org/cdx/search/cdx"
)

// RawFlag is appended to the timestamp segment of an archive URL to request
// the captured bytes without the archive's rewriting or banner.
const RawFlag = "id_"

// HTTP client configuration
const (
	DefaultUserAgent  = "waybackpack"
	DefaultMaxRetries = 3
	DefaultTimeout    = 60 * time.Second
)

// Backoff defaults between retry attempts
const (
	DefaultBackoffBase = 1 * time.Second
	DefaultBackoffMax  = 30 * time.Second
)

// TimestampLayout is the 14-digit capture timestamp format (YYYYMMDDhhmmss).
const TimestampLayout = "20060102150405"

// DefaultFallbackChar replaces filesystem-unsafe characters in destination paths.
const DefaultFallbackChar = '_'

// Resource limits for inlining
const (
	MaxResourceSize = 5 * 1024 * 1024 // 5MB
)
