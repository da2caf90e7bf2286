package cfg

import (
	"flag"
	"math"
	"strings"
	"testing"
)

// validBase returns a Config with all required fields set to valid values.
func validBase() Config {
	return Config{
		DrainSeconds:          60,
		ShutdownBudgetSeconds: 90,
		APIPort:               8000,
		ClaudeAPIKey:          "sk-test-key",
		HistoryLimit:          20,
		CacheMaxBytes:         1 << 20,
		CacheTTLSeconds:       60,
		LLMBurst:              5,
	}
}

func withBase(mut func(*Config)) Config {
	c := validBase()
	mut(&c)
	return c
}

func TestRegisterFlags_Defaults(t *testing.T) {
	t.Parallel()

	var c Config
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	c.RegisterFlags(fs)

	if err := fs.Parse(nil); err != nil {
		t.Fatalf("parse empty args: %v", err)
	}

	if c.DrainSeconds != 60 {
		t.Errorf("DrainSeconds = %d, want 60", c.DrainSeconds)
	}
	if c.ShutdownBudgetSeconds != 90 {
		t.Errorf("ShutdownBudgetSeconds = %d, want 90", c.ShutdownBudgetSeconds)
	}
	if c.APIPort != 8000 {
		t.Errorf("APIPort = %d, want 8000", c.APIPort)
	}
	if c.HistoryLimit != 20 {
		t.Errorf("HistoryLimit = %d, want 20", c.HistoryLimit)
	}
	if c.CacheMaxBytes != 32<<20 {
		t.Errorf("CacheMaxBytes = %d, want %d", c.CacheMaxBytes, 32<<20)
	}
	if c.LLMRateLimit != 0 {
		t.Errorf("LLMRateLimit = %g, want 0", c.LLMRateLimit)
	}

	// Defaults plus the one required secret validate.
	c.ClaudeAPIKey = "k"
	if err := c.Validate(); err != nil {
		t.Errorf("defaults with API key should validate: %v", err)
	}
}

func TestRegisterFlags_Override(t *testing.T) {
	t.Parallel()

	var c Config
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	c.RegisterFlags(fs)

	args := []string{
		"-drain-seconds", "30",
		"-shutdown-budget-seconds", "120",
		"-http-port", "9090",
		"-claude-api-key", "sk-override",
		"-roster-file", "/etc/boardroom/roster.yaml",
		"-api-token", "tok",
		"-llm-rate-limit", "2.5",
		"-cache-max-bytes", "0",
	}
	if err := fs.Parse(args); err != nil {
		t.Fatalf("parse args: %v", err)
	}

	if c.DrainSeconds != 30 {
		t.Errorf("DrainSeconds = %d, want 30", c.DrainSeconds)
	}
	if c.ShutdownBudgetSeconds != 120 {
		t.Errorf("ShutdownBudgetSeconds = %d, want 120", c.ShutdownBudgetSeconds)
	}
	if c.APIPort != 9090 {
		t.Errorf("APIPort = %d, want 9090", c.APIPort)
	}
	if c.ClaudeAPIKey != "sk-override" {
		t.Errorf("ClaudeAPIKey = %q, want %q", c.ClaudeAPIKey, "sk-override")
	}
	if c.RosterFile != "/etc/boardroom/roster.yaml" {
		t.Errorf("RosterFile = %q", c.RosterFile)
	}
	if c.APIToken != "tok" {
		t.Errorf("APIToken = %q, want tok", c.APIToken)
	}
	if c.LLMRateLimit != 2.5 {
		t.Errorf("LLMRateLimit = %g, want 2.5", c.LLMRateLimit)
	}
	if c.CacheMaxBytes != 0 {
		t.Errorf("CacheMaxBytes = %d, want 0", c.CacheMaxBytes)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		cfg       Config
		wantErr   bool
		errSubstr []string // substrings that must appear in error message
	}{
		{
			name:    "defaults are valid",
			cfg:     validBase(),
			wantErr: false,
		},
		{
			name:    "minimum valid values",
			cfg:     withBase(func(c *Config) { c.DrainSeconds, c.ShutdownBudgetSeconds, c.APIPort, c.HistoryLimit = 1, 2, 1, 1 }),
			wantErr: false,
		},
		{
			name:    "maximum valid values",
			cfg:     withBase(func(c *Config) { c.DrainSeconds, c.ShutdownBudgetSeconds, c.APIPort, c.HistoryLimit = 299, 300, 65535, 1000 }),
			wantErr: false,
		},
		{
			name:    "optional integrations set",
			cfg:     withBase(func(c *Config) { c.DatabaseURL, c.SlackWebhookURL = "postgres://u:p@db/boardroom", "https://hooks.slack.com/services/x" }),
			wantErr: false,
		},
		// DrainSeconds boundaries
		{
			name:      "drain zero",
			cfg:       withBase(func(c *Config) { c.DrainSeconds = 0 }),
			wantErr:   true,
			errSubstr: []string{"DRAIN_SECONDS"},
		},
		{
			name:      "drain above max",
			cfg:       withBase(func(c *Config) { c.DrainSeconds, c.ShutdownBudgetSeconds = 301, 302 }),
			wantErr:   true,
			errSubstr: []string{"DRAIN_SECONDS"},
		},
		{
			name:    "drain at upper bound",
			cfg:     withBase(func(c *Config) { c.DrainSeconds, c.ShutdownBudgetSeconds = 300, 300 }),
			wantErr: true, // budget must be greater than drain
		},
		// ShutdownBudgetSeconds boundaries
		{
			name:      "budget zero",
			cfg:       withBase(func(c *Config) { c.ShutdownBudgetSeconds = 0 }),
			wantErr:   true,
			errSubstr: []string{"SHUTDOWN_BUDGET_SECONDS"},
		},
		{
			name:      "budget above max",
			cfg:       withBase(func(c *Config) { c.ShutdownBudgetSeconds = 301 }),
			wantErr:   true,
			errSubstr: []string{"SHUTDOWN_BUDGET_SECONDS"},
		},
		// Cross-field: budget vs drain
		{
			name:      "budget equals drain",
			cfg:       withBase(func(c *Config) { c.ShutdownBudgetSeconds = 60 }),
			wantErr:   true,
			errSubstr: []string{"must be greater than"},
		},
		{
			name:    "budget is drain plus one",
			cfg:     withBase(func(c *Config) { c.ShutdownBudgetSeconds = 61 }),
			wantErr: false,
		},
		// APIPort boundaries
		{
			name:      "port zero",
			cfg:       withBase(func(c *Config) { c.APIPort = 0 }),
			wantErr:   true,
			errSubstr: []string{"HTTP_PORT"},
		},
		{
			name:      "port above max",
			cfg:       withBase(func(c *Config) { c.APIPort = 65536 }),
			wantErr:   true,
			errSubstr: []string{"HTTP_PORT"},
		},
		// String fields
		{
			name:      "empty claude api key",
			cfg:       withBase(func(c *Config) { c.ClaudeAPIKey = "" }),
			wantErr:   true,
			errSubstr: []string{"CLAUDE_API_KEY"},
		},
		{
			name:      "database url wrong scheme",
			cfg:       withBase(func(c *Config) { c.DatabaseURL = "mysql://db/boardroom" }),
			wantErr:   true,
			errSubstr: []string{"DATABASE_URL"},
		},
		{
			name:      "slack webhook over http",
			cfg:       withBase(func(c *Config) { c.SlackWebhookURL = "http://hooks.slack.com/x" }),
			wantErr:   true,
			errSubstr: []string{"SLACK_WEBHOOK_URL"},
		},
		// Tuning
		{
			name:      "history limit zero",
			cfg:       withBase(func(c *Config) { c.HistoryLimit = 0 }),
			wantErr:   true,
			errSubstr: []string{"HISTORY_LIMIT"},
		},
		{
			name:      "negative cache",
			cfg:       withBase(func(c *Config) { c.CacheMaxBytes, c.CacheTTLSeconds = -1, -1 }),
			wantErr:   true,
			errSubstr: []string{"CACHE_MAX_BYTES", "CACHE_TTL_SECONDS"},
		},
		{
			name:      "rate limit without burst",
			cfg:       withBase(func(c *Config) { c.LLMRateLimit, c.LLMBurst = 1, 0 }),
			wantErr:   true,
			errSubstr: []string{"LLM_BURST"},
		},
		{
			name:    "no rate limit ignores burst",
			cfg:     withBase(func(c *Config) { c.LLMBurst = 0 }),
			wantErr: false,
		},
		{
			name:      "negative rate limit",
			cfg:       withBase(func(c *Config) { c.LLMRateLimit = -1 }),
			wantErr:   true,
			errSubstr: []string{"LLM_RATE_LIMIT"},
		},
		// Error accumulation: all fields invalid
		{
			name:      "all fields invalid",
			cfg:       Config{},
			wantErr:   true,
			errSubstr: []string{"DRAIN_SECONDS", "SHUTDOWN_BUDGET_SECONDS", "HTTP_PORT", "CLAUDE_API_KEY", "HISTORY_LIMIT"},
		},
		// Extreme values
		{
			name:      "extreme negative values",
			cfg:       Config{DrainSeconds: math.MinInt32, ShutdownBudgetSeconds: math.MinInt32, APIPort: math.MinInt32},
			wantErr:   true,
			errSubstr: []string{"DRAIN_SECONDS", "SHUTDOWN_BUDGET_SECONDS", "HTTP_PORT"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				errMsg := err.Error()
				for _, sub := range tt.errSubstr {
					if !strings.Contains(errMsg, sub) {
						t.Errorf("error %q does not contain %q", errMsg, sub)
					}
				}
			}
		})
	}
}

func TestConsoleConfig(t *testing.T) {
	t.Parallel()

	var c ConsoleConfig
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	c.RegisterFlags(fs)
	if err := fs.Parse(nil); err != nil {
		t.Fatalf("parse empty args: %v", err)
	}
	if c.HTTPPort != 3000 || c.AnalysisURL != "http://localhost:8000" || c.AnalysisTimeoutSeconds != 0 {
		t.Errorf("defaults = %+v", c)
	}
	if err := c.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}

	tests := []struct {
		name   string
		mut    func(*ConsoleConfig)
		substr string
	}{
		{"relative analysis url", func(c *ConsoleConfig) { c.AnalysisURL = "/api" }, "ANALYSIS_URL"},
		{"ftp analysis url", func(c *ConsoleConfig) { c.AnalysisURL = "ftp://host" }, "ANALYSIS_URL"},
		{"timeout negative", func(c *ConsoleConfig) { c.AnalysisTimeoutSeconds = -1 }, "ANALYSIS_TIMEOUT_SECONDS"},
		{"timeout above max", func(c *ConsoleConfig) { c.AnalysisTimeoutSeconds = 3601 }, "ANALYSIS_TIMEOUT_SECONDS"},
		{"port above max", func(c *ConsoleConfig) { c.HTTPPort = 70000 }, "HTTP_PORT"},
		{"budget below drain", func(c *ConsoleConfig) { c.DrainSeconds, c.ShutdownBudgetSeconds = 10, 5 }, "must be greater than"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cc := c
			tt.mut(&cc)
			err := cc.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.substr) {
				t.Errorf("Validate() = %v, want error containing %q", err, tt.substr)
			}
		})
	}
}

func FuzzValidate(f *testing.F) {
	// Seeds: defaults, boundaries, extremes
	seeds := []struct {
		drain, budget, port, history int
		key                          string
	}{
		{60, 90, 8000, 20, "sk-test"},
		{1, 2, 1, 1, "k"},
		{299, 300, 65535, 1000, "k"},
		{0, 0, 0, 0, ""},
		{-1, -1, -1, -1, ""},
		{300, 300, 65535, 20, "k"},
		{301, 302, 65536, 1001, ""},
		{150, 100, 8080, 20, "k"},
		{math.MinInt32, math.MinInt32, math.MinInt32, math.MinInt32, ""},
		{math.MaxInt32, math.MaxInt32, math.MaxInt32, math.MaxInt32, ""},
	}
	for _, s := range seeds {
		f.Add(s.drain, s.budget, s.port, s.history, s.key)
	}

	f.Fuzz(func(t *testing.T, drain, budget, port, history int, key string) {
		c := Config{
			DrainSeconds:          drain,
			ShutdownBudgetSeconds: budget,
			APIPort:               port,
			ClaudeAPIKey:          key,
			HistoryLimit:          history,
		}
		err := c.Validate()

		drainOK := drain >= 1 && drain <= 300
		budgetOK := budget >= 1 && budget <= 300
		portOK := port >= 1 && port <= 65535
		crossOK := budget > drain
		keyOK := key != ""
		historyOK := history >= 1 && history <= 1000

		allValid := drainOK && budgetOK && portOK && crossOK && keyOK && historyOK

		if allValid && err != nil {
			t.Errorf("expected no error for valid config %+v, got: %v", c, err)
		}
		if !allValid && err == nil {
			t.Errorf("expected error for invalid config %+v, got nil", c)
		}
	})
}
