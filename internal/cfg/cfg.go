package cfg

import (
	"errors"
	"flag"
	"fmt"
	"net/url"
)

// Config holds the analysis server settings. It satisfies the
// cfg.Registerable and cfg.Validatable interfaces.
type Config struct {
	DrainSeconds          int
	ShutdownBudgetSeconds int
	APIPort               int
	APIToken              string
	ClaudeAPIKey          string
	RosterFile            string
	DatabaseURL           string
	SlackWebhookURL       string
	HistoryLimit          int
	CacheMaxBytes         int64
	CacheTTLSeconds       int
	LLMRateLimit          float64
	LLMBurst              int
}

// RegisterFlags binds Config fields to the given FlagSet with defaults inline
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.IntVar(&c.DrainSeconds, "drain-seconds", 60, "seconds to wait for in-flight requests to drain before shutdown (1..300)")
	fs.IntVar(&c.ShutdownBudgetSeconds, "shutdown-budget-seconds", 90, "total seconds for component shutdown after drain (1..300)")
	fs.IntVar(&c.APIPort, "http-port", 8000, "API listen TCP port (1..65535)")
	fs.StringVar(&c.APIToken, "api-token", "", "bearer token required on API requests (empty = no authentication)")
	fs.StringVar(&c.ClaudeAPIKey, "claude-api-key", "", "API key for accessing the Claude LLM provider")
	fs.StringVar(&c.RosterFile, "roster-file", "", "YAML council roster (empty = built-in roster)")
	fs.StringVar(&c.DatabaseURL, "database-url", "", "PostgreSQL connection URL (empty = in-memory store)")
	fs.StringVar(&c.SlackWebhookURL, "slack-webhook-url", "", "Slack webhook URL for notifications")
	fs.IntVar(&c.HistoryLimit, "history-limit", 20, "number of past analyses served on /history (1..1000)")
	fs.Int64Var(&c.CacheMaxBytes, "cache-max-bytes", 32<<20, "in-memory result cache size in bytes (0 = disabled)")
	fs.IntVar(&c.CacheTTLSeconds, "cache-ttl-seconds", 3600, "seconds a cached result stays valid (0 = until evicted)")
	fs.Float64Var(&c.LLMRateLimit, "llm-rate-limit", 0, "max LLM calls per second across the council (0 = unlimited)")
	fs.IntVar(&c.LLMBurst, "llm-burst", 5, "LLM calls allowed in a burst when rate limited")
}

// Validate checks all configuration fields for correctness.
// It returns an error if any field is invalid, or nil if all fields are valid.
func (c *Config) Validate() error {
	var errs []error

	errs = append(errs, validateShutdown(c.DrainSeconds, c.ShutdownBudgetSeconds)...)

	// API port must be valid TCP port number
	if c.APIPort <= 0 || c.APIPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP_PORT %d (must be 1..65535)", c.APIPort))
	}

	// Claude API key is required for LLM access
	if c.ClaudeAPIKey == "" {
		errs = append(errs, errors.New("CLAUDE_API_KEY is required"))
	}

	if c.DatabaseURL != "" {
		if u, err := url.Parse(c.DatabaseURL); err != nil || (u.Scheme != "postgres" && u.Scheme != "postgresql") {
			errs = append(errs, errors.New("DATABASE_URL must be a postgres:// URL"))
		}
	}

	if c.SlackWebhookURL != "" {
		if u, err := url.Parse(c.SlackWebhookURL); err != nil || u.Scheme != "https" || u.Host == "" {
			errs = append(errs, errors.New("SLACK_WEBHOOK_URL must be an https URL"))
		}
	}

	if c.HistoryLimit <= 0 || c.HistoryLimit > 1000 {
		errs = append(errs, fmt.Errorf("invalid HISTORY_LIMIT %d (must be 1..1000)", c.HistoryLimit))
	}
	if c.CacheMaxBytes < 0 {
		errs = append(errs, fmt.Errorf("invalid CACHE_MAX_BYTES %d (must be >= 0)", c.CacheMaxBytes))
	}
	if c.CacheTTLSeconds < 0 {
		errs = append(errs, fmt.Errorf("invalid CACHE_TTL_SECONDS %d (must be >= 0)", c.CacheTTLSeconds))
	}
	if c.LLMRateLimit < 0 {
		errs = append(errs, fmt.Errorf("invalid LLM_RATE_LIMIT %g (must be >= 0)", c.LLMRateLimit))
	}
	if c.LLMRateLimit > 0 && c.LLMBurst < 1 {
		errs = append(errs, fmt.Errorf("invalid LLM_BURST %d (must be >= 1 when rate limited)", c.LLMBurst))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// ConsoleConfig holds the decision console settings.
type ConsoleConfig struct {
	DrainSeconds           int
	ShutdownBudgetSeconds  int
	HTTPPort               int
	AnalysisURL            string
	AnalysisToken          string
	AnalysisTimeoutSeconds int
	ExportDir              string
	Clipboard              bool
}

// RegisterFlags binds ConsoleConfig fields to the given FlagSet with defaults inline
func (c *ConsoleConfig) RegisterFlags(fs *flag.FlagSet) {
	fs.IntVar(&c.DrainSeconds, "drain-seconds", 5, "seconds to wait for in-flight requests to drain before shutdown (1..300)")
	fs.IntVar(&c.ShutdownBudgetSeconds, "shutdown-budget-seconds", 30, "total seconds for component shutdown after drain (1..300)")
	fs.IntVar(&c.HTTPPort, "http-port", 3000, "console listen TCP port (1..65535)")
	fs.StringVar(&c.AnalysisURL, "analysis-url", "http://localhost:8000", "base URL of the analysis service")
	fs.StringVar(&c.AnalysisToken, "analysis-token", "", "bearer token sent to the analysis service")
	fs.IntVar(&c.AnalysisTimeoutSeconds, "analysis-timeout-seconds", 0, "seconds to wait for one analysis, 0 waits indefinitely (0..3600)")
	fs.StringVar(&c.ExportDir, "export-dir", "", "directory reports are exported to (empty = export disabled)")
	fs.BoolVar(&c.Clipboard, "clipboard", false, "copy share summaries to the system clipboard")
}

// Validate checks all configuration fields for correctness.
func (c *ConsoleConfig) Validate() error {
	var errs []error

	errs = append(errs, validateShutdown(c.DrainSeconds, c.ShutdownBudgetSeconds)...)

	if c.HTTPPort <= 0 || c.HTTPPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP_PORT %d (must be 1..65535)", c.HTTPPort))
	}

	if u, err := url.Parse(c.AnalysisURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Errorf("invalid ANALYSIS_URL %q (must be an http or https URL)", c.AnalysisURL))
	}

	if c.AnalysisTimeoutSeconds < 0 || c.AnalysisTimeoutSeconds > 3600 {
		errs = append(errs, fmt.Errorf("invalid ANALYSIS_TIMEOUT_SECONDS %d (must be 0..3600)", c.AnalysisTimeoutSeconds))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

func validateShutdown(drain, budget int) []error {
	var errs []error
	if drain <= 0 || drain > 300 {
		errs = append(errs, fmt.Errorf("invalid DRAIN_SECONDS %d (must be 1..300)", drain))
	}
	if budget <= 0 || budget > 300 {
		errs = append(errs, fmt.Errorf("invalid SHUTDOWN_BUDGET_SECONDS %d (must be 1..300)", budget))
	}
	// Shutdown budget must be greater than drain time
	if budget <= drain {
		errs = append(errs, fmt.Errorf("SHUTDOWN_BUDGET_SECONDS %d must be greater than DRAIN_SECONDS %d", budget, drain))
	}
	return errs
}
