package core

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
)

// Snapshot is one capture index record for a URL at a specific timestamp.
type Snapshot struct {
	// Timestamp is the capture time as YYYYMMDDhhmmss.
	Timestamp   string
	OriginalURL string
	// StatusCode is nil when the index reports "-" (e.g. revisit records).
	StatusCode *int
	Digest     string
	MimeType   string
	Length     *int64
	// DupeCount is how many earlier captures share this digest. Only set
	// when the index was asked for it.
	DupeCount *int
}

// SearchOptions narrows a capture index query. Date bounds and collapse
// values are passed to the index verbatim; partial timestamps such as
// "2015" or "201604" are widened by the server.
type SearchOptions struct {
	From        string
	To          string
	UniquesOnly bool
	Collapse    []string
	// PageSize, if > 0, fetches the index in pages of this many rows,
	// following resume keys until the server stops returning one.
	PageSize int
	// Endpoint overrides DefaultCDXEndpoint.
	Endpoint string
	Logger   *slog.Logger
}

// Search queries the capture index for target and returns its snapshots in
// the order the server returned them (ascending by timestamp). A URL with no
// captures yields an empty slice and no error.
func Search(ctx context.Context, session *Session, target string, opts SearchOptions) ([]Snapshot, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	endpoint := opts.Endpoint
	if endpoint == "" {
		endpoint = DefaultCDXEndpoint
	}

	var (
		snapshots []Snapshot
		resumeKey string
	)
	for {
		queryURL, err := buildSearchURL(endpoint, target, opts, resumeKey)
		if err != nil {
			return nil, err
		}
		logger.Info("querying capture index", "url", target, "from", opts.From, "to", opts.To)

		resp, err := session.Get(ctx, queryURL, nil)
		if err != nil {
			return nil, fmt.Errorf("capture index query: %w", err)
		}

		page, next, err := parseCDX(resp.Body)
		if err != nil {
			return nil, err
		}
		snapshots = append(snapshots, page...)

		if opts.PageSize <= 0 || next == "" || next == resumeKey {
			break
		}
		resumeKey = next
	}

	if opts.UniquesOnly {
		snapshots = uniqueSnapshots(snapshots, logger)
	}
	return snapshots, nil
}

func buildSearchURL(endpoint, target string, opts SearchOptions, resumeKey string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid index endpoint: %w", err)
	}
	q := u.Query()
	q.Set("url", target)
	q.Set("output", "json")
	q.Set("showDupeCount", "true")
	if opts.From != "" {
		q.Set("from", opts.From)
	}
	if opts.To != "" {
		q.Set("to", opts.To)
	}
	for _, c := range opts.Collapse {
		q.Add("collapse", c)
	}
	if opts.PageSize > 0 {
		q.Set("limit", strconv.Itoa(opts.PageSize))
		q.Set("showResumeKey", "true")
	}
	if resumeKey != "" {
		q.Set("resumeKey", resumeKey)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// parseCDX decodes the index's JSON output: a header row followed by one
// row per capture, optionally terminated by an empty row and a resume key.
func parseCDX(body []byte) ([]Snapshot, string, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, "", nil
	}

	var rows [][]string
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, "", &ParseError{Input: truncate(string(body), 80), What: "capture index response", Err: err}
	}
	if len(rows) < 2 {
		return nil, "", nil
	}

	header := rows[0]
	var (
		out       []Snapshot
		resumeKey string
	)
	for i := 1; i < len(rows); i++ {
		row := rows[i]
		if len(row) == 0 {
			if i+1 < len(rows) && len(rows[i+1]) > 0 {
				resumeKey = rows[i+1][0]
			}
			break
		}
		if len(row) != len(header) {
			return nil, "", &ParseError{
				Input: fmt.Sprint(row),
				What:  "capture index row",
				Err:   fmt.Errorf("got %d fields, header has %d", len(row), len(header)),
			}
		}
		fields := make(map[string]string, len(header))
		for j, name := range header {
			fields[name] = row[j]
		}
		snap, err := snapshotFromFields(fields)
		if err != nil {
			return nil, "", err
		}
		out = append(out, snap)
	}
	return out, resumeKey, nil
}

func snapshotFromFields(f map[string]string) (Snapshot, error) {
	s := Snapshot{
		Timestamp:   f["timestamp"],
		OriginalURL: f["original"],
		Digest:      f["digest"],
		MimeType:    f["mimetype"],
	}
	if !isDigits(s.Timestamp) {
		return Snapshot{}, &ParseError{Input: s.Timestamp, What: "timestamp"}
	}

	var err error
	if s.StatusCode, err = optionalInt(f, "statuscode"); err != nil {
		return Snapshot{}, err
	}
	if s.DupeCount, err = optionalInt(f, "dupecount"); err != nil {
		return Snapshot{}, err
	}
	if v, ok := f["length"]; ok && v != "" && v != "-" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return Snapshot{}, &ParseError{Input: v, What: "length", Err: err}
		}
		s.Length = &n
	}
	return s, nil
}

func optionalInt(f map[string]string, key string) (*int, error) {
	v, ok := f[key]
	if !ok || v == "" || v == "-" {
		return nil, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return nil, &ParseError{Input: v, What: key, Err: err}
	}
	return &n, nil
}

// uniqueSnapshots keeps the first capture of each digest, relying on the
// index's dupecount column.
func uniqueSnapshots(snaps []Snapshot, logger *slog.Logger) []Snapshot {
	if len(snaps) > 0 && snaps[0].DupeCount == nil {
		logger.Warn("capture index did not report duplicate counts; returning all snapshots")
		return snaps
	}
	out := snaps[:0:0]
	for _, s := range snaps {
		if s.DupeCount != nil && *s.DupeCount == 0 {
			out = append(out, s)
		}
	}
	return out
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
