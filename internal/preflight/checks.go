package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"librarian/internal/deps"
	"librarian/internal/executor"
)

const checkTimeout = 5 * time.Second

// VersionChecker is satisfied by the qBittorrent client.
type VersionChecker interface {
	Check(ctx context.Context) (string, error)
}

// HealthChecker is satisfied by the Audiobookshelf client.
type HealthChecker interface {
	Check(ctx context.Context) error
}

// CheckTorrentClient verifies the torrent client accepts our credentials.
func CheckTorrentClient(ctx context.Context, client VersionChecker) Result {
	const name = "qBittorrent"

	checkCtx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	version, err := client.Check(checkCtx)
	if err != nil {
		return Result{Name: name, Detail: summarize(err)}
	}
	return Result{Name: name, Passed: true, Detail: "Reachable (" + version + ")"}
}

// CheckLibrary verifies the media server API key.
func CheckLibrary(ctx context.Context, client HealthChecker) Result {
	const name = "Audiobookshelf"

	checkCtx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	if err := client.Check(checkCtx); err != nil {
		return Result{Name: name, Detail: summarize(err)}
	}
	return Result{Name: name, Passed: true, Detail: "Reachable"}
}

// CheckRemoteHost verifies the organizer host accepts an SSH session.
func CheckRemoteHost(ctx context.Context, opts executor.SSHOptions) Result {
	name := "Organizer host"
	if opts.Host == "" {
		return Result{Name: name, Detail: "remote.host is not set"}
	}
	name += " " + opts.Host

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = checkTimeout
	}
	checkCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := executor.CheckRemote(checkCtx, opts); err != nil {
		return Result{Name: name, Detail: summarize(err)}
	}
	return Result{Name: name, Passed: true, Detail: "SSH session ok"}
}

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	if strings.TrimSpace(path) == "" {
		return Result{Name: name, Detail: "not configured"}
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// FromDependency converts a dependency status into a check result. Missing
// optional dependencies pass with a note.
func FromDependency(status deps.Status) Result {
	result := Result{Name: status.Name, Passed: status.Available, Detail: status.Command}
	if !status.Available {
		result.Detail = status.Detail
		if status.Optional {
			result.Passed = true
			result.Detail += " (optional)"
		}
	}
	return result
}

func summarize(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "check timed out"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "check timed out (host unreachable)"
	}
	return err.Error()
}
