package core

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// DefaultSSHPort is used when a remote target does not name a port.
const DefaultSSHPort = 22

// Target identifies where a diagnostic command runs: the local host or a
// remote host reached over SSH. Targets are immutable values; they carry
// connection parameters only, never live clients or sessions.
type Target struct {
	remote     bool
	host       string
	port       int
	user       string
	password   string
	keyFile    string
	keyPEM     string
	passphrase string
	knownHosts string
}

// RemoteOptions describes an SSH target.
type RemoteOptions struct {
	// Host may be given as "user@host"; the user part is used when User is empty.
	Host           string
	Port           int
	User           string
	Password       string
	KeyFile        string
	KeyPEM         string
	Passphrase     string
	KnownHostsFile string
}

// LocalTarget returns the target for the local host.
func LocalTarget() Target {
	return Target{}
}

// NewRemoteTarget validates opts and returns an SSH target.
func NewRemoteTarget(opts RemoteOptions) (Target, error) {
	host := strings.TrimSpace(opts.Host)
	user := strings.TrimSpace(opts.User)
	if at := strings.LastIndex(host, "@"); at >= 0 {
		if user == "" {
			user = host[:at]
		}
		host = host[at+1:]
	}
	if host == "" {
		return Target{}, ErrValidation(CodeInvalidTarget, "remote target requires a host")
	}
	if user == "" {
		return Target{}, ErrValidation(CodeInvalidTarget, "remote target requires a user")
	}
	port := opts.Port
	if port == 0 {
		port = DefaultSSHPort
	}
	if port < 1 || port > 65535 {
		return Target{}, ErrValidation(CodeInvalidTarget, fmt.Sprintf("invalid ssh port %d", port))
	}
	return Target{
		remote:     true,
		host:       host,
		port:       port,
		user:       user,
		password:   opts.Password,
		keyFile:    opts.KeyFile,
		keyPEM:     opts.KeyPEM,
		passphrase: opts.Passphrase,
		knownHosts: opts.KnownHostsFile,
	}, nil
}

// IsLocal reports whether commands run on the local host.
func (t Target) IsLocal() bool { return !t.remote }

// Host returns the remote host name, empty for local targets.
func (t Target) Host() string { return t.host }

// Port returns the SSH port.
func (t Target) Port() int { return t.port }

// User returns the SSH user.
func (t Target) User() string { return t.user }

// Password returns the SSH password, if any.
func (t Target) Password() string { return t.password }

// KeyFile returns the private key path, if any.
func (t Target) KeyFile() string { return t.keyFile }

// KeyPEM returns an inline PEM private key, if any.
func (t Target) KeyPEM() string { return t.keyPEM }

// Passphrase returns the private key passphrase, if any.
func (t Target) Passphrase() string { return t.passphrase }

// KnownHostsFile returns the known_hosts path used for host key checks.
func (t Target) KnownHostsFile() string { return t.knownHosts }

// Address returns host:port for dialing.
func (t Target) Address() string {
	return net.JoinHostPort(t.host, strconv.Itoa(t.port))
}

// Identity returns a stable key for caches and connection pools.
// It never includes credentials.
func (t Target) Identity() string {
	if !t.remote {
		return "local"
	}
	return t.user + "@" + t.Address()
}

// String implements fmt.Stringer.
func (t Target) String() string {
	return t.Identity()
}
