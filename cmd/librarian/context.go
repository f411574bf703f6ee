package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"librarian/internal/config"
	"librarian/internal/ipc"
)

type commandContext struct {
	socketFlag   *string
	configFlag   *string
	logLevelFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(socketFlag, configFlag, logLevelFlag *string) *commandContext {
	return &commandContext{
		socketFlag:   socketFlag,
		configFlag:   configFlag,
		logLevelFlag: logLevelFlag,
	}
}

func (c *commandContext) configPath() string {
	if c.configFlag == nil {
		return ""
	}
	return strings.TrimSpace(*c.configFlag)
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, _, _, err := config.Load(c.configPath())
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) configValue() *config.Config {
	cfg, _ := c.ensureConfig()
	return cfg
}

func (c *commandContext) socketOverride() string {
	if c.socketFlag == nil {
		return ""
	}
	return strings.TrimSpace(*c.socketFlag)
}

func (c *commandContext) socketPath() string {
	if socket := c.socketOverride(); socket != "" {
		return socket
	}
	if cfg := c.configValue(); cfg != nil {
		return cfg.SocketPath()
	}
	return ""
}

func (c *commandContext) resolvedLogLevel(cfg *config.Config) string {
	if c.logLevelFlag != nil {
		if level := strings.TrimSpace(*c.logLevelFlag); level != "" {
			return level
		}
	}
	if cfg == nil {
		return "info"
	}
	return cfg.Logging.Level
}

func (c *commandContext) withClient(fn func(*ipc.Client) error) error {
	socket := c.socketPath()
	client, err := ipc.Dial(socket)
	if err != nil {
		return wrapDialError(err, socket)
	}
	defer client.Close()
	return fn(client)
}

func wrapDialError(err error, socket string) error {
	switch {
	case errors.Is(err, syscall.ENOENT) || os.IsNotExist(err):
		return fmt.Errorf("connect to daemon: socket %s not found; start the daemon with `librarian start`", socket)
	case errors.Is(err, syscall.ECONNREFUSED):
		return fmt.Errorf("connect to daemon: socket %s refused the connection; verify the daemon is running", socket)
	default:
		return fmt.Errorf("connect to daemon: %w", err)
	}
}

// skipConfigAnnotation marks commands that load configuration themselves.
const skipConfigAnnotation = "skipConfigLoad"

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations[skipConfigAnnotation] == "true" {
			return true
		}
	}
	return false
}
