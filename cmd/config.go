/*
Copyright © 2025 Katie Mulliken <katie@mulliken.net>
*/
package cmd

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const envPrefix = "WAYBACKPACK"

// Options holds the settings of one run. Keys match the flag names; every
// key can also come from a WAYBACKPACK_* environment variable or the file
// given with --config.
type Options struct {
	Dir             string   `mapstructure:"dir"`
	List            bool     `mapstructure:"list"`
	Raw             bool     `mapstructure:"raw"`
	Root            string   `mapstructure:"root"`
	CDXEndpoint     string   `mapstructure:"cdx-endpoint"`
	FromDate        string   `mapstructure:"from-date"`
	ToDate          string   `mapstructure:"to-date"`
	Frequency       float64  `mapstructure:"frequency"`
	UserAgent       string   `mapstructure:"user-agent"`
	FollowRedirects bool     `mapstructure:"follow-redirects"`
	UniquesOnly     bool     `mapstructure:"uniques-only"`
	Collapse        []string `mapstructure:"collapse"`
	PageSize        int      `mapstructure:"page-size"`
	IgnoreErrors    bool     `mapstructure:"ignore-errors"`
	MaxRetries      int      `mapstructure:"max-retries"`
	NoClobber       bool     `mapstructure:"no-clobber"`
	Quiet           bool     `mapstructure:"quiet"`
	Progress        bool     `mapstructure:"progress"`
	FallbackChar    string   `mapstructure:"fallback-char"`
	InvalidChars    string   `mapstructure:"invalid-chars"`
	Inline          bool     `mapstructure:"inline"`
	Image           bool     `mapstructure:"image"`
	ChromePath      string   `mapstructure:"chrome-path"`
	Ledger          string   `mapstructure:"ledger"`
}

// newViper binds cmd's flags, the environment and an optional config file.
func newViper(cmd *cobra.Command) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return nil, fmt.Errorf("failed to bind flags: %w", err)
	}

	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, fmt.Errorf("failed to read --config: %w", err)
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}
	return v, nil
}

// loadOptions resolves the run's Options from flags, environment and config.
func loadOptions(cmd *cobra.Command) (Options, error) {
	v, err := newViper(cmd)
	if err != nil {
		return Options{}, err
	}

	var opts Options
	if err := v.Unmarshal(&opts); err != nil {
		return Options{}, fmt.Errorf("failed to decode options: %w", err)
	}
	if err := opts.Validate(); err != nil {
		return Options{}, err
	}
	return opts, nil
}

// Validate checks option combinations flags alone cannot express.
func (o Options) Validate() error {
	if (o.Dir == "") == !o.List {
		return errors.New("exactly one of --dir or --list is required")
	}
	if o.Frequency < 0 {
		return fmt.Errorf("--frequency must be >= 0, got %v", o.Frequency)
	}
	if o.MaxRetries < 0 {
		return fmt.Errorf("--max-retries must be >= 0, got %d", o.MaxRetries)
	}
	if utf8.RuneCountInString(o.FallbackChar) != 1 {
		return fmt.Errorf("--fallback-char must be a single character, got %q", o.FallbackChar)
	}
	if strings.ContainsRune(o.InvalidChars, o.fallback()) {
		return fmt.Errorf("--fallback-char %q is itself an invalid character", o.FallbackChar)
	}
	return nil
}

func (o Options) fallback() rune {
	r, _ := utf8.DecodeRuneInString(o.FallbackChar)
	return r
}
