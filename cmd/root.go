/*
Copyright © 2025 Katie Mulliken <katie@mulliken.net>
*/
package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strings"

	"github.com/schollz/progressbar/v3"
	"github.com/seckatie/waybackpack/internal/core"
	"github.com/seckatie/waybackpack/internal/core/db"
	"github.com/spf13/cobra"
)

// version is overridden at build time with -ldflags "-X ...cmd.version=...".
var version = "0.6.4"

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "waybackpack <url>",
	Short: "Download the entire Wayback Machine archive for a given URL",
	Long: `waybackpack asks the Wayback Machine's capture index for every snapshot
of a URL, keeps at most one snapshot per --frequency days, and either prints
the archive URLs (--list) or downloads them into a directory tree that mirrors
the original site (--dir).

Examples:

  waybackpack example.com --list
  waybackpack example.com -d out --from-date 2015 --to-date 201604 --frequency 7
  waybackpack example.com/page.html -d out --raw --no-clobber --progress`,
	Args:          cobra.ExactArgs(1),
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		opts, err := loadOptions(cmd)
		if err != nil {
			return err
		}
		logger := newLogger(cmd.ErrOrStderr(), opts)
		return run(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr(), args[0], opts, logger)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(rootCmd.ErrOrStderr(), "Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Config file (YAML, TOML or JSON) with keys named after the flags")
	addRunFlags(rootCmd)
}

// addRunFlags defines the flags of a download run on c.
func addRunFlags(c *cobra.Command) {
	f := c.Flags()
	f.StringP("dir", "d", "", "Directory to save the files. Will create this directory if it doesn't already exist.")
	f.Bool("list", false, "Instead of downloading the files, only print the list of snapshots.")
	f.Bool("raw", false, "Fetch file in its original state, without any processing by the Wayback Machine or waybackpack.")
	f.String("root", core.DefaultRoot, "The root URL from which to serve snapshotted resources.")
	f.String("cdx-endpoint", core.DefaultCDXEndpoint, "The capture index to query for snapshots.")
	f.String("from-date", "", "Earliest snapshot to download, as YYYYMMDDhhmmss. Trailing digits may be omitted, e.g. '201501'.")
	f.String("to-date", "", "Latest snapshot to download, as YYYYMMDDhhmmss. Trailing digits may be omitted, e.g. '201604'.")
	f.Float64("frequency", 1, "The minimum number of days between two consecutive snapshots.")
	f.String("user-agent", core.DefaultUserAgent, "The User-Agent header to send. Please include 'waybackpack' and your email address.")
	f.Bool("follow-redirects", true, "Follow redirects.")
	f.Bool("uniques-only", false, "Download only the first version of duplicate files.")
	f.StringSlice("collapse", nil, "An archive.org `collapse` parameter. Repeatable.")
	f.Int("page-size", 0, "Fetch the capture index in pages of this many rows (0 = one request).")
	f.Bool("ignore-errors", false, "Log fetch errors and continue instead of stopping.")
	f.Int("max-retries", core.DefaultMaxRetries, "How many times to retry a request with a 4XX or 5XX status code before giving up.")
	f.Bool("no-clobber", false, "If a file is already present (and >0 filesize), don't download it again.")
	f.Bool("quiet", false, "Don't log progress to stderr.")
	f.Bool("progress", false, "Print a progress bar. Mutes the default logging.")
	f.String("fallback-char", string(core.DefaultFallbackChar), "Replacement for characters the filesystem does not allow.")
	f.String("invalid-chars", core.InvalidCharsForOS(runtime.GOOS), "Characters to replace in file and directory names.")
	f.Bool("inline", false, "Inline stylesheets, scripts and images of saved pages, fetched from the archive.")
	f.Bool("image", false, "Save a PNG rendering of each saved page next to it (requires Chrome/Chromium).")
	f.String("chrome-path", "", "Path to Chrome/Chromium executable used by --image")
	f.String("ledger", "", "Record this run in a SQLite ledger at this path")

	c.MarkFlagsMutuallyExclusive("dir", "list")
}

// newLogger logs at INFO, or WARN when --quiet or --progress asks for silence.
func newLogger(w io.Writer, opts Options) *slog.Logger {
	level := slog.LevelInfo
	if opts.Quiet || opts.Progress {
		level = slog.LevelWarn
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// run searches the index, filters by frequency and lists or downloads the
// result.
func run(ctx context.Context, stdout, stderr io.Writer, target string, opts Options, logger *slog.Logger) error {
	session := core.NewSession(core.SessionConfig{
		UserAgent:       opts.UserAgent,
		FollowRedirects: opts.FollowRedirects,
		MaxRetries:      opts.MaxRetries,
		Backoff:         core.DefaultBackoff(),
		Timeout:         core.DefaultTimeout,
		Logger:          logger,
	})

	snapshots, err := core.Search(ctx, session, target, core.SearchOptions{
		From:        opts.FromDate,
		To:          opts.ToDate,
		UniquesOnly: opts.UniquesOnly,
		Collapse:    opts.Collapse,
		PageSize:    opts.PageSize,
		Endpoint:    opts.CDXEndpoint,
		Logger:      logger,
	})
	if err != nil {
		return fmt.Errorf("failed to search snapshots: %w", err)
	}

	timestamps := make([]string, len(snapshots))
	for i, s := range snapshots {
		timestamps[i] = s.Timestamp
	}
	timestamps, err = core.FilterByFrequency(timestamps, opts.Frequency)
	if err != nil {
		return err
	}
	logger.Info("snapshots selected", "url", target, "found", len(snapshots), "kept", len(timestamps))

	pack, err := core.NewPack(target, timestamps, session)
	if err != nil {
		return err
	}

	if opts.List {
		for _, u := range pack.ListURLs(opts.Raw, opts.Root) {
			fmt.Fprintln(stdout, u)
		}
		return nil
	}

	dl := core.DownloadOptions{
		Directory:    opts.Dir,
		Raw:          opts.Raw,
		Root:         opts.Root,
		IgnoreErrors: opts.IgnoreErrors,
		NoClobber:    opts.NoClobber,
		Sanitizer:    core.Sanitizer{Invalid: opts.InvalidChars, Fallback: opts.fallback()},
		Hooks:        buildHooks(opts, logger),
		Logger:       logger,
	}

	if opts.Progress {
		bar := progressbar.NewOptions(len(pack.Assets),
			progressbar.OptionSetWriter(stderr),
			progressbar.OptionSetDescription("downloading"),
			progressbar.OptionShowCount(),
			progressbar.OptionClearOnFinish(),
		)
		dl.Progress = func(done, total int) { _ = bar.Set(done) }
		defer bar.Finish()
	}

	if opts.Ledger == "" {
		_, err := pack.DownloadTo(ctx, dl)
		return err
	}
	return downloadWithLedger(ctx, pack, dl, opts, logger)
}

// buildHooks assembles post-processing in the order it must run: inlining
// needs the untouched page, and rendering should see the final one.
func buildHooks(opts Options, logger *slog.Logger) []core.FileHook {
	var hooks []core.FileHook
	if opts.Inline {
		// Missing resources are common; don't spend the backoff schedule on them.
		resources := core.NewSession(core.SessionConfig{
			UserAgent:       opts.UserAgent,
			FollowRedirects: true,
			MaxRetries:      0,
			Timeout:         core.DefaultTimeout,
			Logger:          logger,
		})
		hooks = append(hooks, core.InlineHook{Session: resources, Root: opts.Root, Raw: opts.Raw, Logger: logger})
	}
	if !opts.Raw {
		hooks = append(hooks, core.BaseTagHook{Href: strings.TrimRight(opts.Root, "/") + "/"})
	}
	if opts.Image {
		hooks = append(hooks, core.NewRenderHook(core.RenderOptions{
			ChromePath: opts.ChromePath,
			Headless:   true,
		}, logger))
	}
	return hooks
}

func openLedger(path string) (*db.DB, error) {
	database, err := db.NewSQLiteDB(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}
	if err := database.Migrate(); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to migrate ledger: %w", err)
	}
	return database, nil
}

// downloadWithLedger runs the download and records the run and every
// snapshot outcome in the ledger.
func downloadWithLedger(ctx context.Context, pack *core.Pack, dl core.DownloadOptions, opts Options, logger *slog.Logger) error {
	database, err := openLedger(opts.Ledger)
	if err != nil {
		return err
	}
	defer func() {
		if err := database.Close(); err != nil {
			logger.Warn("failed to close ledger", "error", err)
		}
	}()

	database.RegisterEventListener(db.OnRunFinishedEvent, func(event db.Event) error {
		ev := event.(db.RunFinishedEvent)
		logger.Info("run finished",
			"run", ev.RunID,
			"status", ev.Status,
			"written", ev.Counts[string(core.OutcomeWritten)],
			"skipped", ev.Counts[string(core.OutcomeSkipped)],
			"unavailable", ev.Counts[string(core.OutcomeUnavailable)],
			"failed", ev.Counts[string(core.OutcomeFailed)],
		)
		return nil
	})

	r, err := database.StartRun(pack.URL, opts.Dir, opts.Raw)
	if err != nil {
		return err
	}
	logger.Info("recording run", "run", r.ID, "ledger", opts.Ledger)

	dl.OnOutcome = func(o core.Outcome) {
		res := db.SnapshotResult{
			RunID:     r.ID,
			URL:       o.Asset.OriginalURL,
			Timestamp: o.Asset.Timestamp,
			Status:    string(o.Status),
			Path:      o.Path,
		}
		if o.Err != nil {
			res.Error = o.Err.Error()
		}
		if _, err := database.RecordSnapshotResult(res); err != nil {
			logger.Warn("failed to record snapshot result", "timestamp", o.Asset.Timestamp, "error", err)
		}
	}

	_, runErr := pack.DownloadTo(ctx, dl)

	status, msg := db.RunStatusOK, ""
	switch {
	case runErr != nil && ctx.Err() != nil:
		status, msg = db.RunStatusCanceled, runErr.Error()
	case runErr != nil:
		status, msg = db.RunStatusFailed, runErr.Error()
	}
	if err := database.FinishRun(r.ID, status, msg); err != nil {
		logger.Warn("failed to finish run", "run", r.ID, "error", err)
	}
	return runErr
}
