package executor

import (
	"bufio"
	"fmt"
	"strings"
	"time"

	"librarian/internal/fileutil"
	"librarian/internal/textutil"
)

// Job is the executor's view of an organizer job.
type Job struct {
	Hash      string
	RequestID string
	Name      string
	Title     string
	Target    string
	// SourcePath is the download's content path as the torrent client reports it.
	SourcePath string
}

// Result summarizes an organizer run.
type Result struct {
	OrganizedPath string
	OutputTail    string
	ExitCode      int
	Duration      time.Duration
}

// Invocation is a translated job ready to execute.
type Invocation struct {
	Job         Job
	ContentPath string
	Env         []EnvVar
}

// EnvVar is one line of the per-job configuration file.
type EnvVar struct {
	Key   string
	Value string
}

// Render produces the configuration file body. Values are single-quoted so
// the file can be sourced by a shell or read by a dotenv parser.
func (inv Invocation) Render() []byte {
	var b strings.Builder
	for _, env := range inv.Env {
		b.WriteString(env.Key)
		b.WriteByte('=')
		b.WriteString(shellQuote(env.Value))
		b.WriteByte('\n')
	}
	return []byte(b.String())
}

// Digest is the hex SHA-256 of the rendered configuration.
func (inv Invocation) Digest() string {
	return fileutil.Digest(inv.Render())
}

// FileName is the content-addressed job file name.
func (inv Invocation) FileName() string {
	return fmt.Sprintf("%s-%s.env", textutil.SanitizeToken(inv.Job.Hash), inv.Digest()[:16])
}

func shellQuote(value string) string {
	return "'" + strings.ReplaceAll(value, "'", `'\''`) + "'"
}

const (
	organizedPathPrefix = "ORGANIZED_PATH="
	outputTailLines     = 20
	outputTailLimit     = 4000
)

// parseOutput extracts the organized path and the trailing lines of output.
func parseOutput(stdout, stderr string) (organized string, tail string) {
	var lines []string
	for _, stream := range []string{stdout, stderr} {
		scanner := bufio.NewScanner(strings.NewReader(stream))
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := strings.TrimRight(scanner.Text(), "\r")
			if strings.HasPrefix(line, organizedPathPrefix) {
				organized = strings.TrimSpace(strings.TrimPrefix(line, organizedPathPrefix))
			}
			if strings.TrimSpace(line) != "" {
				lines = append(lines, line)
			}
		}
	}
	if len(lines) > outputTailLines {
		lines = lines[len(lines)-outputTailLines:]
	}
	tail = strings.Join(lines, "\n")
	if len(tail) > outputTailLimit {
		tail = tail[len(tail)-outputTailLimit:]
	}
	return organized, tail
}
