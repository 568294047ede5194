package config

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	DriverChromedp   = "chromedp"
	DriverPlaywright = "playwright"

	BackendFS     = "fs"
	BackendSQLite = "sqlite"
	BackendGCS    = "gcs"

	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"

	defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

// ControllerConfig holds configuration for the threads controller and CLI.
type ControllerConfig struct {
	BindAddr         string
	PortCandidates   []string
	PortAutoFallback bool
	LogLevel         string
	LogFile          string

	SiteURL    string
	HostFilter string
	Username   string
	Password   string

	Driver          string
	Headless        bool
	Locale          string
	UserAgent       string
	WindowSize      string
	BrowserPath     string
	LocaleTablePath string

	SessionBackend string
	SessionBucket  string
	SessionKey     string
	BlobDir        string
	SQLitePath     string
	DraftsPath     string
	JournalDir     string

	CDPAddress    string
	CDPPort       int
	EvalTimeoutMS int
	LaunchBrowser bool
	ProfileDir    string

	GenerateProvider string
	GeminiAPIKey     string
	GeminiModel      string
	OpenAIAPIKey     string
	OpenAIModel      string

	NotifyEndpoint     string
	PostRatePerMinute  int
	CORSAllowedOrigins []string
}

// LoadController reads controller configuration from environment variables
// and an optional .env file.
func LoadController() (*ControllerConfig, error) {
	loadDotEnv()

	cfg := &ControllerConfig{
		BindAddr:         getEnvOrDefault("CONTROLLER_BIND_ADDR", "127.0.0.1:8190"),
		PortCandidates:   getEnvListOrDefault("CONTROLLER_PORT_CANDIDATES", []string{"127.0.0.1:8191", "127.0.0.1:8192"}),
		PortAutoFallback: getEnvBoolOrDefault("CONTROLLER_PORT_AUTO_FALLBACK", true),
		LogLevel:         strings.ToLower(getEnvOrDefault("CONTROLLER_LOG_LEVEL", "info")),
		LogFile:          getEnvOrDefault("CONTROLLER_LOG_FILE", "logs/threads_controller.log"),

		SiteURL:    getEnvOrDefault("THREADS_SITE_URL", "https://www.threads.net/"),
		HostFilter: strings.ToLower(getEnvOrDefault("THREADS_HOST_FILTER", "threads.net")),
		Username:   getEnvOrDefault("THREADS_USERNAME", ""),
		Password:   getEnvOrDefault("THREADS_PASSWORD", ""),

		Driver:          strings.ToLower(getEnvOrDefault("AUTOMATION_DRIVER", DriverChromedp)),
		Headless:        getEnvBoolOrDefault("AUTOMATION_HEADLESS", true),
		Locale:          getEnvOrDefault("AUTOMATION_LOCALE", "ja-JP"),
		UserAgent:       getEnvOrDefault("AUTOMATION_USER_AGENT", defaultUserAgent),
		WindowSize:      getEnvOrDefault("AUTOMATION_WINDOW_SIZE", "1920,1080"),
		BrowserPath:     getEnvOrDefault("AUTOMATION_BROWSER_PATH", ""),
		LocaleTablePath: getEnvOrDefault("LOCALE_TABLE_PATH", ""),

		SessionBackend: strings.ToLower(getEnvOrDefault("SESSION_BACKEND", BackendFS)),
		SessionBucket:  getEnvOrDefault("GCS_BUCKET_NAME", "threads-shokunin-sessions"),
		SessionKey:     getEnvOrDefault("SESSION_KEY", "threads_session.json"),
		BlobDir:        getEnvOrDefault("BLOB_DIR", "./data/blobs"),
		SQLitePath:     getEnvOrDefault("SQLITE_PATH", "./data/threads_agent.db"),
		DraftsPath:     getEnvOrDefault("DRAFTS_PATH", "./data/drafts.db"),
		JournalDir:     getEnvOrDefault("JOURNAL_DIR", "./data/journal"),

		CDPAddress:    getEnvOrDefault("CHROMIUM_CDP_ADDRESS", "127.0.0.1"),
		CDPPort:       getEnvIntOrDefault("CHROMIUM_CDP_PORT", 9220),
		EvalTimeoutMS: getEnvIntOrDefault("RELAY_EVAL_TIMEOUT_MS", 5000),
		LaunchBrowser: getEnvBoolOrDefault("RELAY_LAUNCH_BROWSER", false),
		ProfileDir:    getEnvOrDefault("RELAY_PROFILE_DIR", "./data/chromium_profile"),

		GenerateProvider: strings.ToLower(getEnvOrDefault("GENERATE_PROVIDER", ProviderGemini)),
		GeminiAPIKey:     getEnvOrDefault("GEMINI_API_KEY", ""),
		GeminiModel:      getEnvOrDefault("GEMINI_MODEL", "gemini-2.0-flash"),
		OpenAIAPIKey:     getEnvOrDefault("OPENAI_API_KEY", ""),
		OpenAIModel:      getEnvOrDefault("OPENAI_MODEL", "gpt-4o-mini"),

		NotifyEndpoint:     getEnvOrDefault("NOTIFY_ENDPOINT", ""),
		PostRatePerMinute:  getEnvIntOrDefault("POST_RATE_PER_MINUTE", 2),
		CORSAllowedOrigins: getEnvListOrDefault("CORS_ALLOWED_ORIGINS", []string{"*"}),
	}

	if cfg.EvalTimeoutMS < 1000 {
		cfg.EvalTimeoutMS = 1000
	}
	if cfg.PostRatePerMinute < 1 {
		cfg.PostRatePerMinute = 1
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *ControllerConfig) validate() error {
	switch c.Driver {
	case DriverChromedp, DriverPlaywright:
	default:
		return fmt.Errorf("config: unsupported AUTOMATION_DRIVER %q", c.Driver)
	}
	switch c.SessionBackend {
	case BackendFS, BackendSQLite, BackendGCS:
	default:
		return fmt.Errorf("config: unsupported SESSION_BACKEND %q", c.SessionBackend)
	}
	switch c.GenerateProvider {
	case ProviderGemini, ProviderOpenAI:
	default:
		return fmt.Errorf("config: unsupported GENERATE_PROVIDER %q", c.GenerateProvider)
	}
	if _, err := url.Parse(c.SiteURL); err != nil {
		return fmt.Errorf("config: THREADS_SITE_URL: %w", err)
	}
	return nil
}

// ControllerCDPURL returns the CDP endpoint of the human-operated browser.
func (c *ControllerConfig) ControllerCDPURL() string {
	return "http://" + c.CDPAddress + ":" + strconv.Itoa(c.CDPPort)
}

// EvalTimeout returns the relay evaluation timeout.
func (c *ControllerConfig) EvalTimeout() time.Duration {
	return time.Duration(c.EvalTimeoutMS) * time.Millisecond
}

// HasCredentials reports whether both login fields are set.
func (c *ControllerConfig) HasCredentials() bool {
	return c.Username != "" && c.Password != ""
}

// WindowDimensions parses WindowSize ("w,h"), falling back to 1920x1080.
func (c *ControllerConfig) WindowDimensions() (int, int) {
	parts := strings.Split(c.WindowSize, ",")
	if len(parts) != 2 {
		return 1920, 1080
	}
	w, errW := strconv.Atoi(strings.TrimSpace(parts[0]))
	h, errH := strconv.Atoi(strings.TrimSpace(parts[1]))
	if errW != nil || errH != nil || w <= 0 || h <= 0 {
		return 1920, 1080
	}
	return w, h
}

// LanguageTag returns the primary language subtag of Locale ("ja-JP" -> "ja").
func (c *ControllerConfig) LanguageTag() string {
	lang, _, _ := strings.Cut(c.Locale, "-")
	return lang
}
