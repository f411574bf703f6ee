package config

const (
	defaultConfigPath             = "~/.config/librarian/config.toml"
	defaultStateDir               = "~/.local/share/librarian"
	defaultLogDir                 = "~/.local/share/librarian/logs"
	defaultOrganizerWorkDir       = "~/.local/share/librarian/organizer"
	defaultOrganizerProgram       = "~/.config/librarian/library_organizer.py"
	defaultKnownHosts             = "~/.ssh/known_hosts"
	defaultAPIBind                = "127.0.0.1:7871"
	defaultAPIRateLimit           = 5.0
	defaultAPIRateBurst           = 20
	defaultTorrentURL             = "http://localhost:8080"
	defaultTorrentCategory        = "librarian-bot"
	defaultTorrentTimeout         = 30
	defaultResolutionTimeout      = 60
	defaultResolutionPoll         = 2
	defaultTitleThreshold         = 0.6
	defaultApprovalTimeout        = 600
	defaultChatRequestTimeout     = 10
	defaultMonitorPollInterval    = 30
	defaultMaxConcurrentJobs      = 2
	defaultOrganizerCommand       = "python3"
	defaultOrganizerExecTimeout   = 1800
	defaultOrganizerUploadTimeout = 120
	defaultRemotePort             = 22
	defaultRemoteConnectTimeout   = 30
	defaultLibraryTimeout         = 30
	defaultNotifyRequestTimeout   = 10
	defaultLogFormat              = "console"
	defaultLogLevel               = "info"
	defaultLogRetentionDays       = 30
)

// Organizer targets.
const (
	TargetLocal  = "local"
	TargetRemote = "remote"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StateDir: defaultStateDir,
			LogDir:   defaultLogDir,
			APIBind:  defaultAPIBind,
		},
		API: API{
			RateLimit: defaultAPIRateLimit,
			RateBurst: defaultAPIRateBurst,
		},
		Torrent: Torrent{
			URL:      defaultTorrentURL,
			Category: defaultTorrentCategory,
			Timeout:  defaultTorrentTimeout,
		},
		Resolution: Resolution{
			Timeout:        defaultResolutionTimeout,
			PollInterval:   defaultResolutionPoll,
			TitleThreshold: defaultTitleThreshold,
		},
		Approval: Approval{
			Timeout: defaultApprovalTimeout,
		},
		Chat: Chat{
			RequestTimeout: defaultChatRequestTimeout,
		},
		Monitor: Monitor{
			PollInterval:      defaultMonitorPollInterval,
			MaxConcurrentJobs: defaultMaxConcurrentJobs,
		},
		Organizer: Organizer{
			Command:       defaultOrganizerCommand,
			Program:       defaultOrganizerProgram,
			WorkDir:       defaultOrganizerWorkDir,
			ExecTimeout:   defaultOrganizerExecTimeout,
			UploadTimeout: defaultOrganizerUploadTimeout,
		},
		Remote: Remote{
			Port:           defaultRemotePort,
			KnownHosts:     defaultKnownHosts,
			ConnectTimeout: defaultRemoteConnectTimeout,
		},
		Library: Library{
			Timeout: defaultLibraryTimeout,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
			Approvals:      true,
			Submissions:    true,
			Completions:    true,
			Errors:         true,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
