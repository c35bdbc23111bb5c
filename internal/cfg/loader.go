package cfg

import (
	"fmt"
	"runtime"
	"time"

	"github.com/jessevdk/go-flags"
)

// rawCfg is the flag/env surface parsed by go-flags. Durations and
// byte sizes are taken as primitive types here and converted in Load
// so the public Cfg stays idiomatic (time.Duration, int64).
type rawCfg struct {
	MaxConcurrency    int    `long:"max-concurrency" env:"MAX_CONCURRENCY" description:"Number of workers (defaults to NumCPU)"`
	InboxCapacity     int    `long:"inbox-capacity" env:"INBOX_CAPACITY" default:"256" description:"Per-worker queue depth"`
	MaxRetries        int    `long:"max-retries" env:"MAX_RETRIES" default:"3" description:"Per-task network retry budget"`
	RequestTimeoutSec int    `long:"request-timeout" env:"REQUEST_TIMEOUT" default:"30" description:"Per-fetch deadline in seconds"`
	MaxBodyMB         int64  `long:"max-body-mb" env:"MAX_BODY_MB" default:"16" description:"Reject responses larger than this many MiB"`
	UserAgent         string `long:"user-agent" env:"USER_AGENT" default:"PodcastCrawler/1.0" description:"HTTP User-Agent header"`
	StrictMode        bool   `long:"strict-mode" env:"STRICT_MODE" description:"Reject feeds with any missing required field"`
	CleanHTML         bool   `long:"clean-html" env:"CLEAN_HTML" description:"Sanitize HTML in description/summary fields"`
	ValidateURLs      bool   `long:"validate-urls" env:"VALIDATE_URLS" description:"Require extracted URLs to be absolute HTTP(S)"`
	SubmitTimeoutSec  int    `long:"submit-timeout" env:"SUBMIT_TIMEOUT" default:"5" description:"Blocking-submit upper bound in seconds"`
	ShutdownTimeoutSec int   `long:"shutdown-timeout" env:"SHUTDOWN_TIMEOUT" default:"30" description:"Force-stop deadline in seconds"`
	MaxRedirects      int    `long:"max-redirects" env:"MAX_REDIRECTS" default:"5" description:"Maximum HTTP redirects to follow"`

	Port         string `long:"port" env:"PORT" default:"8080" description:"HTTP server port"`
	APIAccessKey string `long:"api-key" env:"API_ACCESS_KEY" description:"Optional bearer token required on /add_task"`
	SeedFile     string `long:"seed-file" env:"SEED_FILE" description:"Optional YAML file listing URLs to submit at startup"`
	SQLitePath   string `long:"sqlite-path" env:"SQLITE_PATH" default:"./podcastcrawler.db" description:"Path to the reference SQLite store"`
	Debug        bool   `long:"debug" env:"DEBUG" description:"Enable debug logging"`
}

// Load parses flags and environment variables into a Cfg. A nil Cfg
// with a nil error means --help was requested and the caller should
// exit cleanly.
func Load(args []string) (*Cfg, error) {
	var raw rawCfg
	// clean_html and validate_urls default true; go-flags bool flags
	// default false, so seed them before parsing. go-flags bool flags
	// take no argument (--clean-html=false is rejected), so these two
	// can only be switched off through CLEAN_HTML=false and
	// VALIDATE_URLS=false in the environment.
	raw.CleanHTML = true
	raw.ValidateURLs = true

	parser := flags.NewParser(&raw, flags.Default)
	if _, err := parser.ParseArgs(args); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	maxConcurrency := raw.MaxConcurrency
	if maxConcurrency <= 0 {
		maxConcurrency = runtime.NumCPU()
	}

	c := &Cfg{
		MaxConcurrency:  maxConcurrency,
		InboxCapacity:   raw.InboxCapacity,
		MaxRetries:      raw.MaxRetries,
		RequestTimeout:  time.Duration(raw.RequestTimeoutSec) * time.Second,
		MaxBodyBytes:    raw.MaxBodyMB * 1024 * 1024,
		UserAgent:       raw.UserAgent,
		StrictMode:      raw.StrictMode,
		CleanHTML:       raw.CleanHTML,
		ValidateURLs:    raw.ValidateURLs,
		SubmitTimeout:   time.Duration(raw.SubmitTimeoutSec) * time.Second,
		ShutdownTimeout: time.Duration(raw.ShutdownTimeoutSec) * time.Second,
		MaxRedirects:    raw.MaxRedirects,
		Port:            raw.Port,
		APIAccessKey:    raw.APIAccessKey,
		SeedFile:        raw.SeedFile,
		SQLitePath:      raw.SQLitePath,
		Debug:           raw.Debug,
	}

	return c, nil
}
