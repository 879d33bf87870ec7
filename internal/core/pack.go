package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
)

// Pack is the ordered set of captures of one URL selected for a run.
// Assets[i] corresponds to Timestamps[i].
type Pack struct {
	URL        string
	Timestamps []string
	Assets     []Asset
	Session    *Session

	target *url.URL
}

// NewPack builds one Asset per timestamp, preserving order. A URL without a
// scheme is treated as http://.
func NewPack(rawURL string, timestamps []string, session *Session) (*Pack, error) {
	target, err := ParseTarget(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid url %q: %w", rawURL, err)
	}
	if session == nil {
		session = NewSession(DefaultSessionConfig())
	}

	assets := make([]Asset, len(timestamps))
	for i, ts := range timestamps {
		assets[i] = Asset{OriginalURL: rawURL, Timestamp: ts}
	}
	return &Pack{
		URL:        rawURL,
		Timestamps: timestamps,
		Assets:     assets,
		Session:    session,
		target:     target,
	}, nil
}

// ListURLs returns the archive URL of every asset, in order. It does no I/O
// and can be called any number of times.
func (p *Pack) ListURLs(raw bool, root string) []string {
	flag := Flag(raw)
	out := make([]string, len(p.Assets))
	for i, a := range p.Assets {
		out[i] = a.ArchiveURL(root, flag)
	}
	return out
}

// OutcomeStatus is what happened to one asset during DownloadTo.
type OutcomeStatus string

const (
	OutcomeWritten     OutcomeStatus = "written"
	OutcomeSkipped     OutcomeStatus = "skipped"
	OutcomeUnavailable OutcomeStatus = "unavailable"
	OutcomeFailed      OutcomeStatus = "failed"
)

// Outcome reports the result for one asset.
type Outcome struct {
	Asset  Asset
	Status OutcomeStatus
	Path   string
	Err    error
}

// ProgressFunc is called after each asset is processed.
type ProgressFunc func(done, total int)

// DownloadOptions controls DownloadTo.
type DownloadOptions struct {
	Directory string
	// Raw fetches the captured bytes instead of the archive's rendered copy.
	Raw  bool
	Root string
	// IgnoreErrors logs fetch failures and moves on instead of aborting.
	IgnoreErrors bool
	// NoClobber skips assets whose destination already has content.
	NoClobber bool
	Sanitizer Sanitizer
	// Hooks run in order on every written file.
	Hooks    []FileHook
	Progress ProgressFunc
	// OnOutcome observes every asset's result.
	OnOutcome func(Outcome)
	Logger    *slog.Logger
}

// DownloadResult counts asset outcomes.
type DownloadResult struct {
	Written     int
	Skipped     int
	Unavailable int
	Failed      int
}

// DownloadTo fetches every asset in order and writes it under
// opts.Directory. Assets are processed one at a time. A fetch failure
// aborts the run unless IgnoreErrors is set; filesystem failures always
// abort. Files written before an abort stay on disk.
func (p *Pack) DownloadTo(ctx context.Context, opts DownloadOptions) (DownloadResult, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	root := opts.Root
	if root == "" {
		root = DefaultRoot
	}

	var res DownloadResult
	report := func(o Outcome) {
		switch o.Status {
		case OutcomeWritten:
			res.Written++
		case OutcomeSkipped:
			res.Skipped++
		case OutcomeUnavailable:
			res.Unavailable++
		case OutcomeFailed:
			res.Failed++
		}
		if opts.OnOutcome != nil {
			opts.OnOutcome(o)
		}
	}

	total := len(p.Assets)
	for i, asset := range p.Assets {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		if err := p.downloadOne(ctx, asset, root, opts, logger, report); err != nil {
			return res, err
		}
		if opts.Progress != nil {
			opts.Progress(i+1, total)
		}
	}
	return res, nil
}

func (p *Pack) downloadOne(ctx context.Context, asset Asset, root string, opts DownloadOptions, logger *slog.Logger, report func(Outcome)) error {
	dir, path := Destination(opts.Directory, p.target, asset.Timestamp, opts.Sanitizer)

	if opts.NoClobber {
		if info, err := os.Stat(path); err == nil && info.Size() > 0 {
			logger.Info("already downloaded, skipping", "url", asset.OriginalURL, "timestamp", asset.Timestamp, "path", path)
			report(Outcome{Asset: asset, Status: OutcomeSkipped, Path: path})
			return nil
		}
	}

	logger.Info("fetching", "url", asset.OriginalURL, "timestamp", asset.Timestamp)
	result, err := asset.Fetch(ctx, p.Session, opts.Raw, root)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		report(Outcome{Asset: asset, Status: OutcomeFailed, Path: path, Err: err})
		if opts.IgnoreErrors {
			logger.Warn("error fetching snapshot",
				"url", asset.OriginalURL,
				"timestamp", asset.Timestamp,
				"kind", errorKind(err),
				"error", err,
			)
			return nil
		}
		return fmt.Errorf("%s @ %s: %w", asset.OriginalURL, asset.Timestamp, err)
	}
	if result.Unavailable {
		logger.Warn("snapshot unavailable, skipping", "url", asset.OriginalURL, "timestamp", asset.Timestamp, "reason", result.Reason)
		report(Outcome{Asset: asset, Status: OutcomeUnavailable, Path: path})
		return nil
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &FilesystemError{Op: "mkdir", Path: dir, Err: err}
	}
	logger.Info("writing", "path", path)
	if err := os.WriteFile(path, result.Content, 0o644); err != nil {
		return &FilesystemError{Op: "write", Path: path, Err: err}
	}

	for _, hook := range opts.Hooks {
		if err := hook.AfterWrite(ctx, asset, path); err != nil {
			var fsErr *FilesystemError
			if errors.As(err, &fsErr) {
				return err
			}
			logger.Warn("post-processing failed", "path", path, "error", err)
		}
	}

	report(Outcome{Asset: asset, Status: OutcomeWritten, Path: path})
	return nil
}
