package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"librarian/internal/pathmap"
)

// applyEnv layers environment fallbacks over the defaults. Load runs it
// before decoding the file, so a key set in the file always wins and an
// exported variable only replaces a built-in default.
func (c *Config) applyEnv() error {
	envString(&c.Paths.APIToken, "LIBRARIAN_API_TOKEN")

	envString(&c.Torrent.URL, "QBIT_URL")
	envString(&c.Torrent.Username, "QBIT_USERNAME")
	envSecret(&c.Torrent.Password, "QBIT_PASSWORD")
	envString(&c.Torrent.Category, "DOWNLOAD_CATEGORY")

	envString(&c.Approval.ApproverChannel, "ADMIN_CHANNEL_ID")
	envString(&c.Chat.WebhookURL, "CHAT_WEBHOOK_URL")
	envString(&c.Chat.Token, "CHAT_WEBHOOK_TOKEN")

	envString(&c.Organizer.DownloadPath, "QBIT_DOWNLOAD_PATH")
	envString(&c.Organizer.LibraryPath, "LIBRARY_PATH")

	envString(&c.Remote.Host, "SEEDBOX_HOST")
	envString(&c.Remote.User, "SEEDBOX_USER")
	envSecret(&c.Remote.Password, "SEEDBOX_PASSWORD")
	envString(&c.Remote.KeyFile, "SEEDBOX_KEY_FILE")
	envString(&c.Remote.WorkDir, "ORGANIZER_REMOTE_PATH")

	envString(&c.Library.URL, "AUDIOBOOKSHELF_URL")
	envString(&c.Library.APIKey, "AUDIOBOOKSHELF_API_KEY")
	envString(&c.Library.LibraryID, "AUDIOBOOKSHELF_LIBRARY_ID")

	envString(&c.Notifications.NtfyTopic, "NTFY_TOPIC")

	for _, v := range []struct {
		target *int
		key    string
	}{
		{&c.Approval.Timeout, "APPROVAL_TIMEOUT"},
		{&c.Approval.AutoApproveMinSeeders, "AUTO_APPROVE_MIN_SEEDERS"},
		{&c.Remote.Port, "SEEDBOX_SSH_PORT"},
	} {
		if err := envInt(v.target, v.key); err != nil {
			return err
		}
	}
	return nil
}

// applyEnvMappings fills the mapping table from PATH_MAPPINGS when the file
// declares none.
func (c *Config) applyEnvMappings() error {
	value := lookupTrimmed("PATH_MAPPINGS")
	if len(c.PathMappings) > 0 || value == "" {
		return nil
	}
	parsed, err := pathmap.ParseMappings(value)
	if err != nil {
		return fmt.Errorf("PATH_MAPPINGS: %w", err)
	}
	for _, m := range parsed {
		c.PathMappings = append(c.PathMappings, PathMapping{Torrent: m.Torrent, Organizer: m.Organizer})
	}
	return nil
}

func envString(target *string, key string) {
	if value := lookupTrimmed(key); value != "" {
		*target = value
	}
}

// envSecret keeps the value untrimmed; an exported empty value clears the default.
func envSecret(target *string, key string) {
	if value, ok := os.LookupEnv(key); ok {
		*target = value
	}
}

func envInt(target *int, key string) error {
	value := lookupTrimmed(key)
	if value == "" {
		return nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*target = parsed
	return nil
}

func lookupTrimmed(key string) string {
	value, ok := os.LookupEnv(key)
	if !ok {
		return ""
	}
	return strings.TrimSpace(value)
}
