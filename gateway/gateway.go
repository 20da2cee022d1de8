// Package gateway reaches target hosts through a shared bastion SSH
// connection, multiplexing one logical channel per host session.
package gateway

import (
	"context"
	"io"
	"net"
	"os"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/crypto/ssh"

	"github.com/vcnkl/enops/models"
)

// Session is one remote command execution handle.
type Session interface {
	// Start begins executing command and returns its output streams.
	Start(command string) (stdout, stderr io.Reader, err error)
	// Wait blocks until the command finishes and returns its exit code.
	Wait() (int, error)
	Close() error
}

// Dialer opens command sessions on target hosts. The fan-out depends on
// this interface so tests can substitute a fake gateway.
type Dialer interface {
	Open(ctx context.Context, host models.Host) (Session, error)
}

// Gateway is a live bastion connection. Safe for concurrent Open calls:
// the underlying SSH transport multiplexes channels.
type Gateway struct {
	client *ssh.Client
	keys   *KeyResolver
}

// Dial connects to the bastion. keyPaths are the operator's private
// keys for the bastion itself; target host keys are resolved per host
// through the resolver.
func Dial(ctx context.Context, addr, user string, keyPaths []string, keys *KeyResolver) (*Gateway, error) {
	signers := make([]ssh.Signer, 0, len(keyPaths))
	for _, path := range keyPaths {
		signer, err := loadSigner(path)
		if err != nil {
			return nil, err
		}
		signers = append(signers, signer)
	}

	cfg := &ssh.ClientConfig{
		User:            user,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signers...)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         15 * time.Second,
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "gateway: dial %s", addr)
	}

	cc, chans, reqs, err := ssh.NewClientConn(conn, addr, cfg)
	if err != nil {
		_ = conn.Close()
		return nil, errors.Wrapf(err, "gateway: handshake %s", addr)
	}

	return &Gateway{client: ssh.NewClient(cc, chans, reqs), keys: keys}, nil
}

// Open tunnels a fresh SSH connection to host through the bastion and
// opens one exec session on it.
func (g *Gateway) Open(ctx context.Context, host models.Host) (Session, error) {
	signer, err := g.keys.Signer(host.KeyName)
	if err != nil {
		return nil, err
	}

	addr := host.Addr
	if _, _, splitErr := net.SplitHostPort(addr); splitErr != nil {
		addr = net.JoinHostPort(addr, "22")
	}

	tunnel, err := g.client.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "gateway: tunnel to %s", host.ID)
	}

	cfg := &ssh.ClientConfig{
		User:            host.User,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         15 * time.Second,
	}
	cc, chans, reqs, err := ssh.NewClientConn(tunnel, addr, cfg)
	if err != nil {
		_ = tunnel.Close()
		return nil, errors.Wrapf(err, "gateway: handshake %s", host.ID)
	}

	client := ssh.NewClient(cc, chans, reqs)
	sess, err := client.NewSession()
	if err != nil {
		_ = client.Close()
		return nil, errors.Wrapf(err, "gateway: session %s", host.ID)
	}
	return &session{client: client, sess: sess}, nil
}

func (g *Gateway) Close() error {
	return g.client.Close()
}

type session struct {
	client *ssh.Client
	sess   *ssh.Session
}

func (s *session) Start(command string) (io.Reader, io.Reader, error) {
	stdout, err := s.sess.StdoutPipe()
	if err != nil {
		return nil, nil, errors.Wrap(err, "gateway: stdout pipe")
	}
	stderr, err := s.sess.StderrPipe()
	if err != nil {
		return nil, nil, errors.Wrap(err, "gateway: stderr pipe")
	}
	if err := s.sess.Start(command); err != nil {
		return nil, nil, errors.Wrapf(err, "gateway: start %q", command)
	}
	return stdout, stderr, nil
}

func (s *session) Wait() (int, error) {
	err := s.sess.Wait()
	if err == nil {
		return 0, nil
	}
	var ee *ssh.ExitError
	if errors.As(err, &ee) {
		return ee.ExitStatus(), nil
	}
	return -1, errors.Wrap(err, "gateway: wait")
}

func (s *session) Close() error {
	_ = s.sess.Close()
	return s.client.Close()
}

func loadSigner(path string) (ssh.Signer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "gateway: read key %s", path)
	}
	signer, err := ssh.ParsePrivateKey(data)
	if err != nil {
		return nil, errors.Wrapf(err, "gateway: parse key %s", path)
	}
	return signer, nil
}
