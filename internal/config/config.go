package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains state directories and the HTTP API bind address.
type Paths struct {
	StateDir string `toml:"state_dir"`
	LogDir   string `toml:"log_dir"`
	APIBind  string `toml:"api_bind"`
	APIToken string `toml:"api_token"`
}

// API contains inbound HTTP API limits.
type API struct {
	RateLimit float64 `toml:"rate_limit"`
	RateBurst int     `toml:"rate_burst"`
}

// Torrent contains qBittorrent WebAPI settings.
type Torrent struct {
	URL           string `toml:"url"`
	Username      string `toml:"username"`
	Password      string `toml:"password"`
	Category      string `toml:"category"`
	SavePath      string `toml:"save_path"`
	Timeout       int    `toml:"timeout"`
	TLSSkipVerify bool   `toml:"tls_skip_verify"`
}

// Resolution controls how a submitted torrent's hash is discovered.
type Resolution struct {
	Timeout        int     `toml:"timeout"`
	PollInterval   int     `toml:"poll_interval"`
	TitleThreshold float64 `toml:"title_threshold"`
}

// Approval contains approval prompt settings.
type Approval struct {
	Timeout               int    `toml:"timeout"`
	AutoApproveMinSeeders int    `toml:"auto_approve_min_seeders"`
	ApproverChannel       string `toml:"approver_channel"`
}

// Chat contains the outbound chat webhook used for prompts and notices.
type Chat struct {
	WebhookURL     string `toml:"webhook_url"`
	Token          string `toml:"token"`
	RequestTimeout int    `toml:"request_timeout"`
}

// Monitor contains completion polling settings.
type Monitor struct {
	PollInterval      int `toml:"poll_interval"`
	MaxConcurrentJobs int `toml:"max_concurrent_jobs"`
}

// Organizer describes how the post-processing program is invoked.
type Organizer struct {
	Target        string `toml:"target"`
	Command       string `toml:"command"`
	Program       string `toml:"program"`
	DownloadPath  string `toml:"download_path"`
	LibraryPath   string `toml:"library_path"`
	WorkDir       string `toml:"work_dir"`
	ExecTimeout   int    `toml:"exec_timeout"`
	UploadTimeout int    `toml:"upload_timeout"`
}

// Remote contains SSH settings for the organizer host.
type Remote struct {
	Host                  string `toml:"host"`
	Port                  int    `toml:"port"`
	User                  string `toml:"user"`
	Password              string `toml:"password"`
	KeyFile               string `toml:"key_file"`
	KnownHosts            string `toml:"known_hosts"`
	InsecureIgnoreHostKey bool   `toml:"insecure_ignore_host_key"`
	WorkDir               string `toml:"work_dir"`
	ConnectTimeout        int    `toml:"connect_timeout"`
}

// PathMapping pairs a torrent-host prefix with an organizer-host prefix.
type PathMapping struct {
	Torrent   string `toml:"torrent"`
	Organizer string `toml:"organizer"`
}

// Library contains Audiobookshelf scan settings.
type Library struct {
	Enabled   bool   `toml:"enabled"`
	URL       string `toml:"url"`
	APIKey    string `toml:"api_key"`
	LibraryID string `toml:"library_id"`
	Timeout   int    `toml:"timeout"`
}

// Notifications contains configuration for ntfy operator notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	Approvals      bool   `toml:"approvals"`
	Submissions    bool   `toml:"submissions"`
	Completions    bool   `toml:"completions"`
	Errors         bool   `toml:"errors"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for librarian.
//
// Configuration sections by subsystem:
//   - Paths, API: state directories and the inbound HTTP API
//   - Torrent, Resolution: qBittorrent access and hash discovery
//   - Approval, Chat: approval prompts and user-facing messages
//   - Monitor, Organizer, Remote, PathMappings: completion handling
//   - Library: Audiobookshelf scans after organization
//   - Notifications, Logging: operator-facing output
type Config struct {
	Paths         Paths         `toml:"paths"`
	API           API           `toml:"api"`
	Torrent       Torrent       `toml:"torrent"`
	Resolution    Resolution    `toml:"resolution"`
	Approval      Approval      `toml:"approval"`
	Chat          Chat          `toml:"chat"`
	Monitor       Monitor       `toml:"monitor"`
	Organizer     Organizer     `toml:"organizer"`
	Remote        Remote        `toml:"remote"`
	PathMappings  []PathMapping `toml:"path_mappings"`
	Library       Library       `toml:"library"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. Values come from
// the file first, then from environment fallbacks, then from defaults. The
// returned config has all path fields expanded.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()
	if err := cfg.applyEnv(); err != nil {
		return nil, "", false, err
	}

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		if err := toml.NewDecoder(file).Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.applyEnvMappings(); err != nil {
		return nil, "", false, err
	}
	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}
	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		if _, err := os.Stat(expanded); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}
	projectPath, err := filepath.Abs("librarian.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}
	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StateDir, c.Paths.LogDir, c.Organizer.WorkDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// DatabasePath returns the ledger database location.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.StateDir, "librarian.db")
}

// SocketPath returns the IPC socket location.
func (c *Config) SocketPath() string {
	return filepath.Join(c.Paths.StateDir, "librarian.sock")
}

// LockPath returns the daemon lock file location.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "librarian.lock")
}

// PIDPath returns the daemon pid file location.
func (c *Config) PIDPath() string {
	return filepath.Join(c.Paths.StateDir, "librarian.pid")
}

// RemoteEnabled reports whether organizer jobs run over SSH.
func (c *Config) RemoteEnabled() bool {
	return c.Organizer.Target == TargetRemote
}

// Seconds converts a seconds knob into a duration.
func Seconds(value int) time.Duration {
	return time.Duration(value) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && pathValue[1] == '/' {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	absolute, err := filepath.Abs(filepath.Clean(pathValue))
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", pathValue, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o600); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
