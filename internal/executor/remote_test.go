package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"librarian/internal/services"
)

type fakeFile struct {
	data []byte
	mode os.FileMode
}

type fakeFileInfo struct {
	name string
	size int64
	mode os.FileMode
}

func (i fakeFileInfo) Name() string       { return i.name }
func (i fakeFileInfo) Size() int64        { return i.size }
func (i fakeFileInfo) Mode() fs.FileMode  { return i.mode }
func (i fakeFileInfo) ModTime() time.Time { return time.Time{} }
func (i fakeFileInfo) IsDir() bool        { return false }
func (i fakeFileInfo) Sys() any           { return nil }

// fakeHost is an in-memory remote filesystem shared by successive connections.
type fakeHost struct {
	mu       sync.Mutex
	files    map[string]fakeFile
	writes   []string
	commands []string
	stdout   string
	exitCode int
	runErr   error
	block    bool
	closed   chan struct{}
}

func newFakeHost() *fakeHost {
	return &fakeHost{files: make(map[string]fakeFile)}
}

func (h *fakeHost) dial(context.Context) (remoteConn, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = make(chan struct{})
	return &fakeConn{host: h, closed: h.closed}, nil
}

type fakeConn struct {
	host   *fakeHost
	closed chan struct{}
	once   sync.Once
}

func (c *fakeConn) MkdirAll(string) error { return nil }

func (c *fakeConn) Stat(name string) (fs.FileInfo, error) {
	c.host.mu.Lock()
	defer c.host.mu.Unlock()
	f, ok := c.host.files[name]
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, fs.ErrNotExist)
	}
	return fakeFileInfo{name: filepath.Base(name), size: int64(len(f.data)), mode: f.mode}, nil
}

func (c *fakeConn) ReadFile(name string) ([]byte, error) {
	c.host.mu.Lock()
	defer c.host.mu.Unlock()
	f, ok := c.host.files[name]
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, fs.ErrNotExist)
	}
	return append([]byte(nil), f.data...), nil
}

func (c *fakeConn) WriteFile(name string, data []byte, mode os.FileMode) error {
	c.host.mu.Lock()
	block := c.host.block
	c.host.mu.Unlock()
	if block {
		<-c.closed
		return errors.New("connection closed")
	}
	c.host.mu.Lock()
	defer c.host.mu.Unlock()
	c.host.files[name] = fakeFile{data: append([]byte(nil), data...), mode: mode}
	c.host.writes = append(c.host.writes, name)
	return nil
}

func (c *fakeConn) Run(_ context.Context, command string, stdout, _ io.Writer) (int, error) {
	c.host.mu.Lock()
	defer c.host.mu.Unlock()
	c.host.commands = append(c.host.commands, command)
	if c.host.runErr != nil {
		return -1, c.host.runErr
	}
	_, _ = io.WriteString(stdout, c.host.stdout)
	return c.host.exitCode, nil
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (h *fakeHost) writeCount(name string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	count := 0
	for _, w := range h.writes {
		if w == name {
			count++
		}
	}
	return count
}

func newTestRemote(t *testing.T, host *fakeHost) *Remote {
	t.Helper()
	program := filepath.Join(t.TempDir(), "library_organizer.py")
	if err := os.WriteFile(program, []byte("print('organize')\n"), 0o644); err != nil {
		t.Fatalf("write program: %v", err)
	}
	return newRemote(RemoteOptions{
		Host:          "seedbox.example",
		Command:       "python3",
		Program:       program,
		WorkDir:       "/home/seed/organizer",
		UploadTimeout: time.Second,
		ExecTimeout:   time.Second,
	}, host.dial, nil)
}

func testInvocation(hash string) Invocation {
	return Invocation{
		Job: Job{Hash: hash, Title: "Book X"},
		Env: []EnvVar{{Key: "TORRENT_HASH", Value: hash}, {Key: "BOOK_TITLE", Value: "Book X"}},
	}
}

func TestRemoteUploadsProgramOnce(t *testing.T) {
	host := newFakeHost()
	host.stdout = "ORGANIZED_PATH=/library/Book X\n"
	remote := newTestRemote(t, host)
	inv := testInvocation("abc123")

	result, err := remote.Execute(context.Background(), inv)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if result.OrganizedPath != "/library/Book X" {
		t.Fatalf("unexpected organized path %q", result.OrganizedPath)
	}

	programPath := "/home/seed/organizer/library_organizer.py"
	jobPath := "/home/seed/organizer/jobs/" + inv.FileName()
	if host.writeCount(programPath) != 1 || host.writeCount(programPath+stampSuffix) != 1 {
		t.Fatalf("expected program and stamp uploaded once, writes=%v", host.writes)
	}
	if host.files[programPath].mode != 0o755 {
		t.Fatalf("expected executable program, got %v", host.files[programPath].mode)
	}
	if host.writeCount(jobPath) != 1 {
		t.Fatalf("expected job file written, writes=%v", host.writes)
	}
	wantCommand := "cd '/home/seed/organizer' && python3 '" + programPath + "' --config '" + jobPath + "'"
	if host.commands[0] != wantCommand {
		t.Fatalf("unexpected command:\n%s\nwant:\n%s", host.commands[0], wantCommand)
	}

	if _, err := remote.Execute(context.Background(), inv); err != nil {
		t.Fatalf("second Execute failed: %v", err)
	}
	if host.writeCount(programPath) != 1 || host.writeCount(jobPath) != 1 {
		t.Fatalf("expected no re-upload on repeat, writes=%v", host.writes)
	}

	// A fresh executor has no cached digest but trusts the remote stamp.
	fresh := newRemote(remote.opts, host.dial, nil)
	if _, err := fresh.Execute(context.Background(), testInvocation("def456")); err != nil {
		t.Fatalf("fresh Execute failed: %v", err)
	}
	if host.writeCount(programPath) != 1 {
		t.Fatalf("expected stamp to skip upload, writes=%v", host.writes)
	}
}

func TestRemoteReuploadsChangedProgram(t *testing.T) {
	host := newFakeHost()
	remote := newTestRemote(t, host)
	if _, err := remote.Execute(context.Background(), testInvocation("abc123")); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if err := os.WriteFile(remote.opts.Program, []byte("print('v2')\n"), 0o644); err != nil {
		t.Fatalf("rewrite program: %v", err)
	}
	if _, err := remote.Execute(context.Background(), testInvocation("abc123")); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	programPath := "/home/seed/organizer/library_organizer.py"
	if host.writeCount(programPath) != 2 {
		t.Fatalf("expected changed program re-uploaded, writes=%v", host.writes)
	}
	if got := string(host.files[programPath].data); got != "print('v2')\n" {
		t.Fatalf("unexpected remote program %q", got)
	}
}

func TestRemoteNonZeroExit(t *testing.T) {
	host := newFakeHost()
	host.exitCode = 2
	host.stdout = "no audio files found\n"
	remote := newTestRemote(t, host)

	result, err := remote.Execute(context.Background(), testInvocation("abc123"))
	if !errors.Is(err, ErrOrganizerFailed) {
		t.Fatalf("expected ErrOrganizerFailed, got %v", err)
	}
	if result.ExitCode != 2 || !strings.Contains(result.OutputTail, "no audio files") {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestRemoteTransportFailures(t *testing.T) {
	remote := newRemote(RemoteOptions{Host: "seedbox.example", Program: writeProgram(t)},
		func(context.Context) (remoteConn, error) { return nil, errors.New("connection refused") }, nil)
	_, err := remote.Execute(context.Background(), testInvocation("abc123"))
	if !errors.Is(err, ErrRemoteUnreachable) {
		t.Fatalf("expected ErrRemoteUnreachable on dial, got %v", err)
	}
	if services.Classify(err) != services.KindStalled {
		t.Fatalf("expected stalled classification, got %s", services.Classify(err))
	}

	host := newFakeHost()
	host.runErr = errors.New("session lost")
	_, err = newTestRemote(t, host).Execute(context.Background(), testInvocation("abc123"))
	if !errors.Is(err, ErrRemoteUnreachable) {
		t.Fatalf("expected ErrRemoteUnreachable on lost session, got %v", err)
	}
}

func TestRemoteUploadTimeoutClosesConnection(t *testing.T) {
	host := newFakeHost()
	host.block = true
	remote := newTestRemote(t, host)
	remote.opts.UploadTimeout = 100 * time.Millisecond

	_, err := remote.Execute(context.Background(), testInvocation("abc123"))
	if !errors.Is(err, ErrRemoteUnreachable) {
		t.Fatalf("expected ErrRemoteUnreachable, got %v", err)
	}
	if !errors.Is(err, services.ErrTimeout) {
		t.Fatalf("expected timeout marker, got %v", err)
	}
	if len(host.commands) != 0 {
		t.Fatalf("expected organizer not to run, got %v", host.commands)
	}
}

func writeProgram(t *testing.T) string {
	t.Helper()
	program := filepath.Join(t.TempDir(), "organizer.py")
	if err := os.WriteFile(program, []byte("pass\n"), 0o644); err != nil {
		t.Fatalf("write program: %v", err)
	}
	return program
}
