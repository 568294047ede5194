// Package browser starts the operator-facing browser the relay attaches to.
package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"sync"
	"syscall"
	"time"
)

const (
	defaultWindowSize   = "1280,900"
	defaultReadyTimeout = 15 * time.Second
	stopGrace           = 5 * time.Second
)

var browserCandidates = []string{"chromium-browser", "chromium", "google-chrome", "google-chrome-stable"}

// Config holds browser launch configuration.
type Config struct {
	BrowserPath string
	CDPAddress  string
	CDPPort     int
	StartURL    string
	ProfileDir  string
	WindowSize  string
	Lang        string

	// ReadyTimeout bounds the wait for the debugging endpoint.
	ReadyTimeout time.Duration
}

func (c Config) endpoint() string {
	return net.JoinHostPort(c.CDPAddress, strconv.Itoa(c.CDPPort))
}

// Version is the subset of /json/version the controller logs and checks.
type Version struct {
	Browser              string `json:"Browser"`
	WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
}

// Launcher owns the operator browser process when it started one. A browser
// that already listens on the debugging port is reused and never stopped.
type Launcher struct {
	cfg Config

	mu     sync.Mutex
	cmd    *exec.Cmd
	exited chan struct{}
}

var lookPath = exec.LookPath

// NewLauncher creates a new browser launcher with the given config.
func NewLauncher(cfg Config) *Launcher {
	if cfg.WindowSize == "" {
		cfg.WindowSize = defaultWindowSize
	}
	if cfg.ReadyTimeout <= 0 {
		cfg.ReadyTimeout = defaultReadyTimeout
	}
	return &Launcher{cfg: cfg}
}

func detectBrowser(override string) (string, error) {
	if override != "" {
		if _, err := os.Stat(override); err != nil {
			return "", fmt.Errorf("browser path %s: %w", override, err)
		}
		return override, nil
	}
	for _, name := range browserCandidates {
		if path, err := lookPath(name); err == nil {
			return path, nil
		}
	}
	if runtime.GOOS == "darwin" {
		macPath := "/Applications/Google Chrome.app/Contents/MacOS/Google Chrome"
		if _, err := os.Stat(macPath); err == nil {
			return macPath, nil
		}
	}
	return "", fmt.Errorf("no supported browser found (tried %v)", browserCandidates)
}

// args builds the command line. The profile directory keeps the operator
// signed in to Threads across restarts.
func (l *Launcher) args() []string {
	args := []string{
		"--remote-debugging-port=" + strconv.Itoa(l.cfg.CDPPort),
		"--remote-debugging-address=" + l.cfg.CDPAddress,
		"--user-data-dir=" + l.cfg.ProfileDir,
		"--no-first-run",
		"--no-default-browser-check",
		"--disable-dev-shm-usage",
		"--window-size=" + l.cfg.WindowSize,
	}
	if l.cfg.Lang != "" {
		args = append(args, "--lang="+l.cfg.Lang)
	}
	if l.cfg.StartURL != "" {
		args = append(args, l.cfg.StartURL)
	}
	return args
}

// Launch reuses a browser already serving CDP on the configured endpoint,
// otherwise starts one and waits until its endpoint answers.
func (l *Launcher) Launch(ctx context.Context) error {
	if v, err := probeVersion(ctx, l.cfg.endpoint()); err == nil {
		slog.Info("reusing operator browser", "endpoint", l.cfg.endpoint(), "browser", v.Browser)
		return nil
	}

	browserPath, err := detectBrowser(l.cfg.BrowserPath)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(l.cfg.ProfileDir, 0o755); err != nil {
		return fmt.Errorf("create profile dir: %w", err)
	}

	cmd := exec.Command(browserPath, l.args()...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start browser: %w", err)
	}
	exited := make(chan struct{})
	go func() {
		err := cmd.Wait()
		slog.Info("operator browser exited", "pid", cmd.Process.Pid, "error", err)
		close(exited)
	}()

	l.mu.Lock()
	l.cmd, l.exited = cmd, exited
	l.mu.Unlock()
	slog.Info("operator browser started", "path", browserPath, "pid", cmd.Process.Pid, "start_url", l.cfg.StartURL)

	v, err := l.waitForCDP(ctx)
	if err != nil {
		_ = l.Stop()
		return fmt.Errorf("waiting for CDP: %w", err)
	}
	slog.Info("CDP endpoint ready", "endpoint", l.cfg.endpoint(), "browser", v.Browser)
	return nil
}

func probeVersion(ctx context.Context, endpoint string) (Version, error) {
	var v Version
	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+endpoint+"/json/version", nil)
	if err != nil {
		return v, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return v, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return v, fmt.Errorf("status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		return v, fmt.Errorf("decode version: %w", err)
	}
	if v.WebSocketDebuggerURL == "" {
		return v, errors.New("version response has no webSocketDebuggerUrl")
	}
	return v, nil
}

// waitForCDP polls /json/version until the browser reports a debugger URL,
// the process exits, or ReadyTimeout elapses.
func (l *Launcher) waitForCDP(ctx context.Context) (Version, error) {
	l.mu.Lock()
	exited := l.exited
	l.mu.Unlock()

	deadline := time.NewTimer(l.cfg.ReadyTimeout)
	defer deadline.Stop()
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return Version{}, ctx.Err()
		case <-exited:
			return Version{}, errors.New("browser exited before CDP was ready")
		case <-deadline.C:
			return Version{}, fmt.Errorf("CDP did not become ready within %s at %s", l.cfg.ReadyTimeout, l.cfg.endpoint())
		case <-ticker.C:
			if v, err := probeVersion(ctx, l.cfg.endpoint()); err == nil {
				return v, nil
			}
		}
	}
}

// Running reports whether a browser this launcher started is still alive.
func (l *Launcher) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.exited == nil {
		return false
	}
	select {
	case <-l.exited:
		return false
	default:
		return true
	}
}

// Stop terminates a browser this launcher started with SIGTERM, then SIGKILL
// after a grace period. It is a no-op for a reused browser.
func (l *Launcher) Stop() error {
	l.mu.Lock()
	cmd, exited := l.cmd, l.exited
	l.cmd, l.exited = nil, nil
	l.mu.Unlock()
	if cmd == nil || cmd.Process == nil {
		return nil
	}

	select {
	case <-exited:
		return nil
	default:
	}
	slog.Info("stopping operator browser", "pid", cmd.Process.Pid)
	if err := cmd.Process.Signal(syscall.SIGTERM); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("signal browser: %w", err)
	}
	select {
	case <-exited:
		return nil
	case <-time.After(stopGrace):
		slog.Warn("operator browser ignored SIGTERM, killing", "pid", cmd.Process.Pid)
		if err := cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			return fmt.Errorf("kill browser: %w", err)
		}
		<-exited
		return nil
	}
}
