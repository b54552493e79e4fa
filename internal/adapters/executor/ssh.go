package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/kballard/go-shellquote"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/hugo-lorenzo-mato/jvmdiag/internal/core"
	"github.com/hugo-lorenzo-mato/jvmdiag/internal/logging"
)

// DefaultDialTimeout bounds TCP connect plus SSH handshake.
const DefaultDialTimeout = 10 * time.Second

// killGrace is how long Execute waits for a killed session to wind down.
const killGrace = 2 * time.Second

// SSH runs tools on remote hosts. One client connection is kept per target
// identity; commands run as independent sessions multiplexed over it.
// Dialing is serialized per target so concurrent callers share one handshake.
type SSH struct {
	logger      *logging.Logger
	dialTimeout time.Duration
	defaultKeys []string

	mu    sync.Mutex
	conns map[string]*pooledClient
}

type pooledClient struct {
	mu     sync.Mutex
	client *ssh.Client
}

// SSHOption configures an SSH executor.
type SSHOption func(*SSH)

// WithDialTimeout overrides DefaultDialTimeout.
func WithDialTimeout(d time.Duration) SSHOption {
	return func(s *SSH) { s.dialTimeout = d }
}

// WithDefaultKeys sets the key files tried when a target has no credentials.
func WithDefaultKeys(paths ...string) SSHOption {
	return func(s *SSH) { s.defaultKeys = paths }
}

// NewSSH creates an SSH executor.
func NewSSH(logger *logging.Logger, opts ...SSHOption) *SSH {
	if logger == nil {
		logger = logging.NewNop()
	}
	s := &SSH{
		logger:      logger.WithComponent("executor.ssh"),
		dialTimeout: DefaultDialTimeout,
		defaultKeys: defaultKeyFiles(),
		conns:       make(map[string]*pooledClient),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.dialTimeout <= 0 {
		s.dialTimeout = DefaultDialTimeout
	}
	return s
}

func defaultKeyFiles() []string {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil
	}
	var out []string
	for _, name := range []string{"id_ed25519", "id_ecdsa", "id_rsa"} {
		out = append(out, filepath.Join(home, ".ssh", name))
	}
	return out
}

// Execute implements core.Executor.
func (s *SSH) Execute(ctx context.Context, target core.Target, spec core.CommandSpec) core.ExecutionResult {
	if target.IsLocal() {
		return core.Failed(core.ErrValidation(core.CodeInvalidTarget,
			"ssh executor requires a remote target"), 0)
	}
	if spec.Timeout() > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, spec.Timeout())
		defer cancel()
	}
	start := time.Now()
	log := s.logger.WithTarget(target.Identity())

	session, client, derr := s.openSession(ctx, target)
	if derr != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return core.Failed(cancelled(spec.Tool()), time.Since(start))
		}
		if ctx.Err() != nil {
			// The deadline ran out before the connection was usable; that is
			// a connection failure, not a slow command.
			derr = core.ErrTransport(core.CodeConnectFailed,
				fmt.Sprintf("connecting to %s: timed out", target.Address())).WithCause(ctx.Err())
		}
		log.Warn("ssh session unavailable", "error", derr)
		return core.Failed(derr, time.Since(start))
	}
	defer session.Close()

	var stdout, stderr syncBuffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	cmdline := shellquote.Join(spec.Argv()...)
	log.Debug("executing remote command", "command", cmdline, "timeout", spec.Timeout())

	done := make(chan error, 1)
	go func() { done <- session.Run(cmdline) }()

	var runErr error
	select {
	case runErr = <-done:
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGKILL)
		_ = session.Close()
		select {
		case <-done:
		case <-time.After(killGrace):
		}
		duration := time.Since(start)
		log.Warn("remote command timeout", "tool", spec.Tool(), "duration", duration)
		return core.ExecutionResult{
			ExitCode: -1,
			Stdout:   stdout.String(),
			Stderr:   stderr.String(),
			Duration: duration,
			TimedOut: true,
			Err:      deadlineError(ctx, spec.Tool(), duration),
		}
	}

	result := core.ExecutionResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}
	if runErr == nil {
		result.Succeeded = true
		return result
	}

	var exitErr *ssh.ExitError
	if errors.As(runErr, &exitErr) {
		result.ExitCode = exitErr.ExitStatus()
		result.Err = ClassifyExit(spec.Tool(), result)
		return result
	}

	// Connection dropped mid-command: forget the client so the retry redials.
	s.drop(target.Identity(), client)
	result.ExitCode = -1
	result.Err = core.ErrTransport(core.CodeSessionFailed,
		fmt.Sprintf("running %s on %s", spec.Tool(), target.Identity())).WithCause(runErr)
	return result
}

// openSession returns a new session on the pooled client, redialing once if
// the cached client turned out to be dead.
func (s *SSH) openSession(ctx context.Context, target core.Target) (*ssh.Session, *ssh.Client, *core.DomainError) {
	client, derr := s.client(ctx, target)
	if derr != nil {
		return nil, nil, derr
	}
	session, err := client.NewSession()
	if err == nil {
		return session, client, nil
	}

	s.logger.Debug("ssh session failed, reconnecting", "target", target.Identity(), "error", err)
	s.drop(target.Identity(), client)
	if client, derr = s.client(ctx, target); derr != nil {
		return nil, nil, derr
	}
	if session, err = client.NewSession(); err != nil {
		s.drop(target.Identity(), client)
		return nil, nil, core.ErrTransport(core.CodeSessionFailed,
			fmt.Sprintf("opening session on %s", target.Identity())).WithCause(err)
	}
	return session, client, nil
}

func (s *SSH) entry(identity string) *pooledClient {
	s.mu.Lock()
	defer s.mu.Unlock()
	pc, ok := s.conns[identity]
	if !ok {
		pc = &pooledClient{}
		s.conns[identity] = pc
	}
	return pc
}

func (s *SSH) client(ctx context.Context, target core.Target) (*ssh.Client, *core.DomainError) {
	pc := s.entry(target.Identity())
	pc.mu.Lock()
	defer pc.mu.Unlock()
	if pc.client != nil {
		return pc.client, nil
	}

	cfg, derr := s.clientConfig(target)
	if derr != nil {
		return nil, derr
	}
	// Connect plus handshake share one budget: the dial timeout, or the
	// caller's remaining time when that is shorter.
	deadline := time.Now().Add(s.dialTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	dialer := net.Dialer{Deadline: deadline}
	conn, err := dialer.DialContext(ctx, "tcp", target.Address())
	if err != nil {
		return nil, connectError(ctx, target, deadline, "connecting to %s", err)
	}
	_ = conn.SetDeadline(deadline)
	c, chans, reqs, err := ssh.NewClientConn(conn, target.Address(), cfg)
	if err != nil {
		_ = conn.Close()
		return nil, connectError(ctx, target, deadline, "ssh handshake with %s", err)
	}
	_ = conn.SetDeadline(time.Time{})

	pc.client = ssh.NewClient(c, chans, reqs)
	s.logger.Info("ssh connected", "target", target.Identity())
	return pc.client, nil
}

// drop closes client if it is still the pooled one for identity.
func (s *SSH) drop(identity string, client *ssh.Client) {
	pc := s.entry(identity)
	pc.mu.Lock()
	defer pc.mu.Unlock()
	if pc.client != nil && pc.client == client {
		_ = pc.client.Close()
		pc.client = nil
	}
}

// Close closes every pooled connection.
func (s *SSH) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var errs []error
	for id, pc := range s.conns {
		pc.mu.Lock()
		if pc.client != nil {
			if err := pc.client.Close(); err != nil {
				errs = append(errs, fmt.Errorf("closing %s: %w", id, err))
			}
			pc.client = nil
		}
		pc.mu.Unlock()
	}
	return errors.Join(errs...)
}

func (s *SSH) clientConfig(target core.Target) (*ssh.ClientConfig, *core.DomainError) {
	auth, derr := s.authMethods(target)
	if derr != nil {
		return nil, derr
	}
	hostKey, derr := s.hostKeyCallback(target)
	if derr != nil {
		return nil, derr
	}
	return &ssh.ClientConfig{
		User:            target.User(),
		Auth:            auth,
		HostKeyCallback: hostKey,
		Timeout:         s.dialTimeout,
	}, nil
}

func (s *SSH) authMethods(target core.Target) ([]ssh.AuthMethod, *core.DomainError) {
	var methods []ssh.AuthMethod

	switch {
	case target.KeyPEM() != "":
		signer, err := parseKey([]byte(target.KeyPEM()), target.Passphrase())
		if err != nil {
			return nil, core.ErrValidation(core.CodeInvalidTarget, "parsing private key").WithCause(err)
		}
		methods = append(methods, ssh.PublicKeys(signer))
	case target.KeyFile() != "":
		pem, err := os.ReadFile(target.KeyFile())
		if err != nil {
			return nil, core.ErrValidation(core.CodeInvalidTarget, "reading private key").WithCause(err)
		}
		signer, err := parseKey(pem, target.Passphrase())
		if err != nil {
			return nil, core.ErrValidation(core.CodeInvalidTarget, "parsing private key").WithCause(err)
		}
		methods = append(methods, ssh.PublicKeys(signer))
	case target.Password() == "":
		// No explicit credentials: fall back to the user's default keys.
		var signers []ssh.Signer
		for _, path := range s.defaultKeys {
			pem, err := os.ReadFile(path)
			if err != nil {
				continue
			}
			signer, err := ssh.ParsePrivateKey(pem)
			if err != nil {
				s.logger.Debug("skipping default key", "path", path, "error", err)
				continue
			}
			signers = append(signers, signer)
		}
		if len(signers) > 0 {
			methods = append(methods, ssh.PublicKeys(signers...))
		}
	}

	if pw := target.Password(); pw != "" {
		methods = append(methods,
			ssh.Password(pw),
			ssh.KeyboardInteractive(func(_, _ string, questions []string, _ []bool) ([]string, error) {
				answers := make([]string, len(questions))
				for i := range answers {
					answers[i] = pw
				}
				return answers, nil
			}),
		)
	}

	if len(methods) == 0 {
		return nil, core.ErrValidation(core.CodeInvalidTarget,
			fmt.Sprintf("no ssh credentials for %s", target.Identity()))
	}
	return methods, nil
}

func parseKey(pem []byte, passphrase string) (ssh.Signer, error) {
	if passphrase != "" {
		return ssh.ParsePrivateKeyWithPassphrase(pem, []byte(passphrase))
	}
	return ssh.ParsePrivateKey(pem)
}

func (s *SSH) hostKeyCallback(target core.Target) (ssh.HostKeyCallback, *core.DomainError) {
	if path := target.KnownHostsFile(); path != "" {
		cb, err := knownhosts.New(path)
		if err != nil {
			return nil, core.ErrValidation(core.CodeInvalidTarget, "loading known_hosts").WithCause(err)
		}
		return cb, nil
	}
	s.logger.Debug("host key verification disabled", "target", target.Identity())
	// #nosec G106 -- no known_hosts configured for this target
	return ssh.InsecureIgnoreHostKey(), nil
}

// connectError reports a failed dial or handshake. Running out of time is
// reported as such so it is not mistaken for a refused connection.
func connectError(ctx context.Context, target core.Target, deadline time.Time, format string, err error) *core.DomainError {
	var nerr net.Error
	if ctx.Err() != nil || !time.Now().Before(deadline) || (errors.As(err, &nerr) && nerr.Timeout()) {
		return core.ErrTransport(core.CodeConnectFailed,
			fmt.Sprintf("connecting to %s: timed out", target.Address())).WithCause(err)
	}
	return core.ErrTransport(core.CodeConnectFailed, fmt.Sprintf(format, target.Address())).WithCause(err)
}

func deadlineError(ctx context.Context, tool string, d time.Duration) *core.DomainError {
	if errors.Is(ctx.Err(), context.Canceled) {
		return cancelled(tool)
	}
	return core.ErrTimeout(fmt.Sprintf("%s timed out after %v", tool, d.Round(time.Millisecond)))
}

// syncBuffer is a bytes.Buffer safe for the concurrent writer (session copy
// goroutine) and reader (timeout path).
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
