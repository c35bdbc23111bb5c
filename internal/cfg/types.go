package cfg

import "time"

// Cfg holds the tunables recognized by the core, per spec §6. Fields
// mirror the option table exactly; defaults are applied by Load.
type Cfg struct {
	MaxConcurrency   int
	InboxCapacity    int
	MaxRetries       int
	RequestTimeout   time.Duration
	MaxBodyBytes     int64
	UserAgent        string
	StrictMode       bool
	CleanHTML        bool
	ValidateURLs     bool
	SubmitTimeout    time.Duration
	ShutdownTimeout  time.Duration
	MaxRedirects     int

	Port         string
	APIAccessKey string
	SeedFile     string
	SQLitePath   string
	Debug        bool
}
