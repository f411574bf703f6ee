package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateTorrent(); err != nil {
		return err
	}
	if err := c.validateTimings(); err != nil {
		return err
	}
	if err := c.validateOrganizer(); err != nil {
		return err
	}
	if err := c.validateRemote(); err != nil {
		return err
	}
	if _, err := c.PathMap(); err != nil {
		return fmt.Errorf("path_mappings: %w", err)
	}
	if err := c.validateLibrary(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if c.Paths.StateDir == "" {
		return errors.New("paths.state_dir must be set")
	}
	if c.Paths.LogDir == "" {
		return errors.New("paths.log_dir must be set")
	}
	if c.API.RateLimit < 0 {
		return errors.New("api.rate_limit must not be negative")
	}
	if c.API.RateLimit > 0 && c.API.RateBurst <= 0 {
		return errors.New("api.rate_burst must be positive when api.rate_limit is set")
	}
	return nil
}

func (c *Config) validateTorrent() error {
	if c.Torrent.URL == "" {
		return errors.New("torrent.url is required. Set QBIT_URL or edit the config (create with 'librarian config init')")
	}
	if !strings.HasPrefix(c.Torrent.URL, "http://") && !strings.HasPrefix(c.Torrent.URL, "https://") {
		return errors.New("torrent.url must start with http:// or https://")
	}
	if c.Torrent.Category == "" {
		return errors.New("torrent.category must be set")
	}
	return nil
}

func (c *Config) validateTimings() error {
	if err := ensurePositiveMap(map[string]int{
		"torrent.timeout":               c.Torrent.Timeout,
		"resolution.timeout":            c.Resolution.Timeout,
		"resolution.poll_interval":      c.Resolution.PollInterval,
		"chat.request_timeout":          c.Chat.RequestTimeout,
		"monitor.poll_interval":         c.Monitor.PollInterval,
		"monitor.max_concurrent_jobs":   c.Monitor.MaxConcurrentJobs,
		"notifications.request_timeout": c.Notifications.RequestTimeout,
	}); err != nil {
		return err
	}
	if c.Resolution.PollInterval >= c.Resolution.Timeout {
		return errors.New("resolution.poll_interval must be less than resolution.timeout")
	}
	if c.Resolution.TitleThreshold < 0 || c.Resolution.TitleThreshold > 1 {
		return errors.New("resolution.title_threshold must be between 0 and 1")
	}
	if c.Approval.Timeout < 0 {
		return errors.New("approval.timeout must not be negative (0 disables expiry)")
	}
	if c.Approval.AutoApproveMinSeeders < 0 {
		return errors.New("approval.auto_approve_min_seeders must not be negative")
	}
	return nil
}

func (c *Config) validateOrganizer() error {
	switch c.Organizer.Target {
	case "", TargetLocal, TargetRemote:
	default:
		return fmt.Errorf("organizer.target must be %q or %q", TargetLocal, TargetRemote)
	}
	if c.Organizer.Program == "" {
		return errors.New("organizer.program must be set")
	}
	if err := ensurePositiveMap(map[string]int{
		"organizer.exec_timeout":   c.Organizer.ExecTimeout,
		"organizer.upload_timeout": c.Organizer.UploadTimeout,
	}); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateRemote() error {
	if c.Organizer.Target != TargetRemote {
		return nil
	}
	if c.Remote.Host == "" {
		return errors.New("remote.host must be set when organizer.target is remote")
	}
	if c.Remote.User == "" {
		return errors.New("remote.user must be set when organizer.target is remote")
	}
	if c.Remote.Port <= 0 || c.Remote.Port > 65535 {
		return errors.New("remote.port must be between 1 and 65535")
	}
	if c.Remote.Password == "" && c.Remote.KeyFile == "" {
		return errors.New("remote.password or remote.key_file must be set when organizer.target is remote")
	}
	if !strings.HasPrefix(c.Remote.WorkDir, "/") {
		return errors.New("remote.work_dir must be an absolute path when organizer.target is remote")
	}
	if !c.Remote.InsecureIgnoreHostKey && c.Remote.KnownHosts == "" {
		return errors.New("remote.known_hosts must be set unless remote.insecure_ignore_host_key is true")
	}
	if c.Remote.ConnectTimeout <= 0 {
		return errors.New("remote.connect_timeout must be positive")
	}
	return nil
}

func (c *Config) validateLibrary() error {
	if !c.Library.Enabled {
		return nil
	}
	if c.Library.URL == "" {
		return errors.New("library.url must be set when library.enabled is true")
	}
	if c.Library.APIKey == "" {
		return errors.New("library.api_key must be set when library.enabled is true")
	}
	if c.Library.LibraryID == "" {
		return errors.New("library.library_id must be set when library.enabled is true")
	}
	if c.Library.Timeout <= 0 {
		return errors.New("library.timeout must be positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return errors.New("logging.format must be console or json")
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return errors.New("logging.level must be debug, info, warn, or error")
	}
	if c.Logging.RetentionDays < 0 {
		return errors.New("logging.retention_days must not be negative")
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
