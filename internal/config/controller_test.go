package config

import (
	"testing"
	"time"
)

func TestLoadControllerDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	for _, key := range []string{"CONTROLLER_BIND_ADDR", "AUTOMATION_DRIVER", "SESSION_BACKEND", "GENERATE_PROVIDER", "RELAY_EVAL_TIMEOUT_MS", "THREADS_USERNAME", "THREADS_PASSWORD", "CORS_ALLOWED_ORIGINS"} {
		t.Setenv(key, "")
	}

	cfg, err := LoadController()
	if err != nil {
		t.Fatalf("LoadController() error = %v", err)
	}
	if cfg.BindAddr != "127.0.0.1:8190" {
		t.Fatalf("BindAddr = %q; want %q", cfg.BindAddr, "127.0.0.1:8190")
	}
	if cfg.Driver != DriverChromedp {
		t.Fatalf("Driver = %q; want %q", cfg.Driver, DriverChromedp)
	}
	if cfg.SessionBucket != "threads-shokunin-sessions" || cfg.SessionKey != "threads_session.json" {
		t.Fatalf("session slot = %s/%s; want threads-shokunin-sessions/threads_session.json", cfg.SessionBucket, cfg.SessionKey)
	}
	if !cfg.Headless {
		t.Fatalf("Headless = false; want true")
	}
	if cfg.HasCredentials() {
		t.Fatalf("HasCredentials() = true; want false")
	}
	if len(cfg.CORSAllowedOrigins) != 1 || cfg.CORSAllowedOrigins[0] != "*" {
		t.Fatalf("CORSAllowedOrigins = %v; want [*]", cfg.CORSAllowedOrigins)
	}
}

func TestLoadControllerClampsAndParses(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("RELAY_EVAL_TIMEOUT_MS", "10")
	t.Setenv("POST_RATE_PER_MINUTE", "0")
	t.Setenv("CONTROLLER_PORT_CANDIDATES", " 127.0.0.1:9001, ,127.0.0.1:9002 ")
	t.Setenv("AUTOMATION_DRIVER", "Playwright")
	t.Setenv("AUTOMATION_WINDOW_SIZE", "1280,720")

	cfg, err := LoadController()
	if err != nil {
		t.Fatalf("LoadController() error = %v", err)
	}
	if got := cfg.EvalTimeout(); got != time.Second {
		t.Fatalf("EvalTimeout() = %v; want %v", got, time.Second)
	}
	if cfg.PostRatePerMinute != 1 {
		t.Fatalf("PostRatePerMinute = %d; want 1", cfg.PostRatePerMinute)
	}
	if len(cfg.PortCandidates) != 2 || cfg.PortCandidates[1] != "127.0.0.1:9002" {
		t.Fatalf("PortCandidates = %v", cfg.PortCandidates)
	}
	if cfg.Driver != DriverPlaywright {
		t.Fatalf("Driver = %q; want %q", cfg.Driver, DriverPlaywright)
	}
	if w, h := cfg.WindowDimensions(); w != 1280 || h != 720 {
		t.Fatalf("WindowDimensions() = %d,%d; want 1280,720", w, h)
	}
}

func TestLoadControllerRejectsUnknownBackend(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("SESSION_BACKEND", "s3")
	if _, err := LoadController(); err == nil {
		t.Fatalf("LoadController() error = nil; want unsupported backend error")
	}
}

func TestHelpers(t *testing.T) {
	cfg := &ControllerConfig{CDPAddress: "127.0.0.1", CDPPort: 9220, Locale: "ja-JP", WindowSize: "bogus"}
	if got, want := cfg.ControllerCDPURL(), "http://127.0.0.1:9220"; got != want {
		t.Fatalf("ControllerCDPURL() = %q; want %q", got, want)
	}
	if got := cfg.LanguageTag(); got != "ja" {
		t.Fatalf("LanguageTag() = %q; want ja", got)
	}
	if w, h := cfg.WindowDimensions(); w != 1920 || h != 1080 {
		t.Fatalf("WindowDimensions() = %d,%d; want 1920,1080", w, h)
	}
}
