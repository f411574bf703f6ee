package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"os"
	"path"
	"strconv"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"librarian/internal/config"
)

// SSHOptions describes how to reach and authenticate to the organizer host.
type SSHOptions struct {
	Host                  string
	Port                  int
	User                  string
	Password              string
	KeyFile               string
	KnownHosts            string
	InsecureIgnoreHostKey bool
	Timeout               time.Duration
}

// SSHOptionsFromConfig maps the remote config section onto dial options.
func SSHOptionsFromConfig(remote config.Remote) SSHOptions {
	return SSHOptions{
		Host:                  remote.Host,
		Port:                  remote.Port,
		User:                  remote.User,
		Password:              remote.Password,
		KeyFile:               remote.KeyFile,
		KnownHosts:            remote.KnownHosts,
		InsecureIgnoreHostKey: remote.InsecureIgnoreHostKey,
		Timeout:               config.Seconds(remote.ConnectTimeout),
	}
}

// CheckRemote opens and closes an SSH and SFTP session to the organizer host.
func CheckRemote(ctx context.Context, opts SSHOptions) error {
	conn, err := dialSSH(ctx, opts)
	if err != nil {
		return unreachable("check", opts.Host, err)
	}
	return conn.Close()
}

type sshConn struct {
	client *ssh.Client
	files  *sftp.Client
}

func dialSSH(ctx context.Context, opts SSHOptions) (remoteConn, error) {
	clientConfig, err := clientConfig(opts)
	if err != nil {
		return nil, err
	}
	addr := net.JoinHostPort(opts.Host, strconv.Itoa(opts.Port))
	dialer := net.Dialer{Timeout: opts.Timeout}
	tcp, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = tcp.SetDeadline(deadline)
	}
	c, chans, reqs, err := ssh.NewClientConn(tcp, addr, clientConfig)
	if err != nil {
		_ = tcp.Close()
		return nil, fmt.Errorf("ssh handshake: %w", err)
	}
	_ = tcp.SetDeadline(time.Time{})
	client := ssh.NewClient(c, chans, reqs)
	files, err := sftp.NewClient(client)
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("start sftp: %w", err)
	}
	return &sshConn{client: client, files: files}, nil
}

func clientConfig(opts SSHOptions) (*ssh.ClientConfig, error) {
	var auth []ssh.AuthMethod
	if opts.KeyFile != "" {
		key, err := os.ReadFile(opts.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("read key file: %w", err)
		}
		signer, err := ssh.ParsePrivateKey(key)
		if err != nil {
			return nil, fmt.Errorf("parse key file: %w", err)
		}
		auth = append(auth, ssh.PublicKeys(signer))
	}
	if opts.Password != "" {
		password := opts.Password
		auth = append(auth,
			ssh.Password(password),
			ssh.KeyboardInteractive(func(_, _ string, questions []string, _ []bool) ([]string, error) {
				answers := make([]string, len(questions))
				for i := range answers {
					answers[i] = password
				}
				return answers, nil
			}),
		)
	}
	if len(auth) == 0 {
		return nil, errors.New("no ssh credentials configured")
	}

	hostKeys := ssh.InsecureIgnoreHostKey() //nolint:gosec
	if !opts.InsecureIgnoreHostKey {
		callback, err := knownhosts.New(opts.KnownHosts)
		if err != nil {
			return nil, fmt.Errorf("load known_hosts: %w", err)
		}
		hostKeys = callback
	}

	return &ssh.ClientConfig{
		User:            opts.User,
		Auth:            auth,
		HostKeyCallback: hostKeys,
		Timeout:         opts.Timeout,
	}, nil
}

func (c *sshConn) MkdirAll(dir string) error {
	return c.files.MkdirAll(dir)
}

func (c *sshConn) Stat(name string) (fs.FileInfo, error) {
	info, err := c.files.Stat(name)
	if err != nil && isSFTPNotExist(err) {
		return nil, fmt.Errorf("%s: %w", name, fs.ErrNotExist)
	}
	return info, err
}

func (c *sshConn) ReadFile(name string) ([]byte, error) {
	f, err := c.files.Open(name)
	if err != nil {
		if isSFTPNotExist(err) {
			return nil, fmt.Errorf("%s: %w", name, fs.ErrNotExist)
		}
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

// WriteFile writes to a sibling temp file and renames it into place.
func (c *sshConn) WriteFile(name string, data []byte, mode os.FileMode) error {
	tmp := path.Join(path.Dir(name), "."+path.Base(name)+".partial")
	f, err := c.files.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := c.files.Chmod(tmp, mode); err != nil {
		return err
	}
	return c.files.PosixRename(tmp, name)
}

func (c *sshConn) Run(ctx context.Context, command string, stdout, stderr io.Writer) (int, error) {
	session, err := c.client.NewSession()
	if err != nil {
		return -1, fmt.Errorf("open session: %w", err)
	}
	defer session.Close()
	session.Stdout = stdout
	session.Stderr = stderr

	done := make(chan error, 1)
	go func() { done <- session.Run(command) }()

	select {
	case err := <-done:
		return exitStatus(err)
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGKILL)
		_ = session.Close()
		<-done
		return -1, ctx.Err()
	}
}

func exitStatus(err error) (int, error) {
	if err == nil {
		return 0, nil
	}
	var exitErr *ssh.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitStatus(), nil
	}
	return -1, err
}

func (c *sshConn) Close() error {
	_ = c.files.Close()
	return c.client.Close()
}

func isSFTPNotExist(err error) bool {
	if errors.Is(err, fs.ErrNotExist) {
		return true
	}
	var status *sftp.StatusError
	return errors.As(err, &status) && status.FxCode() == sftp.ErrSSHFxNoSuchFile
}
