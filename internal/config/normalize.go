package config

import (
	"fmt"
	"strings"

	"librarian/internal/pathmap"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeTorrent()
	c.Approval.ApproverChannel = strings.TrimSpace(c.Approval.ApproverChannel)
	c.normalizeChat()
	if err := c.normalizeOrganizer(); err != nil {
		return err
	}
	if err := c.normalizeRemote(); err != nil {
		return err
	}
	c.normalizePathMappings()
	c.normalizeLibrary()
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	return nil
}

func (c *Config) normalizeTorrent() {
	c.Torrent.URL = strings.TrimRight(strings.TrimSpace(c.Torrent.URL), "/")
	c.Torrent.Username = strings.TrimSpace(c.Torrent.Username)
	c.Torrent.Category = strings.TrimSpace(c.Torrent.Category)
	c.Torrent.SavePath = strings.TrimSpace(c.Torrent.SavePath)
}

func (c *Config) normalizeChat() {
	c.Chat.WebhookURL = strings.TrimSpace(c.Chat.WebhookURL)
	c.Chat.Token = strings.TrimSpace(c.Chat.Token)
}

func (c *Config) normalizeOrganizer() error {
	c.Organizer.Target = strings.ToLower(strings.TrimSpace(c.Organizer.Target))
	if c.Organizer.Target == "" {
		c.Organizer.Target = TargetLocal
		if strings.TrimSpace(c.Remote.Host) != "" {
			c.Organizer.Target = TargetRemote
		}
	}
	c.Organizer.Command = strings.TrimSpace(c.Organizer.Command)
	if c.Organizer.Command == "" {
		c.Organizer.Command = defaultOrganizerCommand
	}

	var err error
	if c.Organizer.Program, err = expandPath(strings.TrimSpace(c.Organizer.Program)); err != nil {
		return fmt.Errorf("organizer.program: %w", err)
	}
	if c.Organizer.WorkDir, err = expandPath(strings.TrimSpace(c.Organizer.WorkDir)); err != nil {
		return fmt.Errorf("organizer.work_dir: %w", err)
	}
	c.Organizer.DownloadPath = strings.TrimSpace(c.Organizer.DownloadPath)
	c.Organizer.LibraryPath = strings.TrimSpace(c.Organizer.LibraryPath)
	return nil
}

func (c *Config) normalizeRemote() error {
	c.Remote.Host = strings.TrimSpace(c.Remote.Host)
	if user, host, ok := strings.Cut(c.Remote.Host, "@"); ok {
		c.Remote.Host = strings.TrimSpace(host)
		if strings.TrimSpace(c.Remote.User) == "" {
			c.Remote.User = user
		}
	}
	c.Remote.User = strings.TrimSpace(c.Remote.User)
	c.Remote.WorkDir = strings.TrimSpace(c.Remote.WorkDir)
	if c.Remote.Port == 0 {
		c.Remote.Port = defaultRemotePort
	}

	var err error
	if c.Remote.KeyFile, err = expandPath(strings.TrimSpace(c.Remote.KeyFile)); err != nil {
		return fmt.Errorf("remote.key_file: %w", err)
	}
	if c.Remote.KnownHosts, err = expandPath(strings.TrimSpace(c.Remote.KnownHosts)); err != nil {
		return fmt.Errorf("remote.known_hosts: %w", err)
	}
	return nil
}

func (c *Config) normalizePathMappings() {
	for i := range c.PathMappings {
		c.PathMappings[i].Torrent = strings.TrimSpace(c.PathMappings[i].Torrent)
		c.PathMappings[i].Organizer = strings.TrimSpace(c.PathMappings[i].Organizer)
	}
}

func (c *Config) normalizeLibrary() {
	c.Library.URL = strings.TrimRight(strings.TrimSpace(c.Library.URL), "/")
	c.Library.APIKey = strings.TrimSpace(c.Library.APIKey)
	c.Library.LibraryID = strings.TrimSpace(c.Library.LibraryID)
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

// PathMap builds a translator from the configured mapping table.
func (c *Config) PathMap() (*pathmap.Translator, error) {
	mappings := make([]pathmap.Mapping, 0, len(c.PathMappings))
	for _, m := range c.PathMappings {
		mappings = append(mappings, pathmap.Mapping{Torrent: m.Torrent, Organizer: m.Organizer})
	}
	return pathmap.New(mappings)
}
