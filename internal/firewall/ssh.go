/**
 * Remote SSH Command Runner.
 *
 * Executes firewall commands on a remote host over SSH using
 * golang.org/x/crypto/ssh. A session-per-command model is used since
 * iptables invocations are infrequent (ban/unban/sweep), not a hot
 * path. Dialing and command execution are both wrapped in
 * github.com/avast/retry-go/v4 since a remote firewall host is reached
 * over a network link that can drop a connection transiently between
 * two bans a few seconds apart.
 *
 * Author: KleaSCM
 * Email: KleaSCM@gmail.com
 */

package firewall

import (
	"bytes"
	"fmt"
	"os"
	"time"

	retry "github.com/avast/retry-go/v4"
	"golang.org/x/crypto/ssh"
)

// sshRetryAttempts bounds how many times a dial or command is retried
// before giving up and surfacing the last error.
const sshRetryAttempts = 3

// sshRetryDelay is the fixed backoff between attempts.
const sshRetryDelay = 500 * time.Millisecond

func readKeyFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read private key %s: %w", path, err)
	}
	return data, nil
}

// SSHConfig is the remote firewall host's connection info: host/port/
// user plus either a password or a private key file.
type SSHConfig struct {
	Host       string
	Port       int
	Username   string
	Password   string // mutually exclusive with KeyFile
	KeyFile    string
	KeyPEM     []byte
	DialTimeout time.Duration
}

type sshRunner struct {
	client *ssh.Client
}

func newSSHRunner(cfg SSHConfig) (*sshRunner, error) {
	auth, err := sshAuthMethod(cfg)
	if err != nil {
		return nil, err
	}

	port := cfg.Port
	if port == 0 {
		port = 22
	}
	timeout := cfg.DialTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	addr := fmt.Sprintf("%s:%d", cfg.Host, port)
	clientCfg := &ssh.ClientConfig{
		User:            cfg.Username,
		Auth:            []ssh.AuthMethod{auth},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), // host key is not verified
		Timeout:         timeout,
	}

	client, err := retry.DoWithData(
		func() (*ssh.Client, error) { return ssh.Dial("tcp", addr, clientCfg) },
		retry.Attempts(sshRetryAttempts),
		retry.Delay(sshRetryDelay),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return nil, fmt.Errorf("dial firewall host %s: %w", cfg.Host, err)
	}
	return &sshRunner{client: client}, nil
}

func sshAuthMethod(cfg SSHConfig) (ssh.AuthMethod, error) {
	if len(cfg.KeyPEM) > 0 || cfg.KeyFile != "" {
		pem := cfg.KeyPEM
		if cfg.KeyFile != "" {
			var err error
			pem, err = readKeyFile(cfg.KeyFile)
			if err != nil {
				return nil, err
			}
		}
		signer, err := ssh.ParsePrivateKey(pem)
		if err != nil {
			return nil, fmt.Errorf("parse private key: %w", err)
		}
		return ssh.PublicKeys(signer), nil
	}
	return ssh.Password(cfg.Password), nil
}

// sessionResult is the outcome of one command execution, bundled so
// retry.DoWithData has a single value to hand back.
type sessionResult struct {
	stdout, stderr string
	exitCode       int
}

func (r *sshRunner) Run(cmd string) (stdout, stderr string, exitCode int, err error) {
	res, err := retry.DoWithData(
		func() (sessionResult, error) { return r.runOnce(cmd) },
		retry.Attempts(sshRetryAttempts),
		retry.Delay(sshRetryDelay),
		retry.LastErrorOnly(true),
		// A non-zero exit status is the remote command's own verdict,
		// not a transient channel failure, so it is returned without
		// a retry.
		retry.RetryIf(func(err error) bool { return err != nil }),
	)
	if err != nil {
		return "", "", 1, err
	}
	return res.stdout, res.stderr, res.exitCode, nil
}

func (r *sshRunner) runOnce(cmd string) (sessionResult, error) {
	session, err := r.client.NewSession()
	if err != nil {
		return sessionResult{}, fmt.Errorf("open ssh session: %w", err)
	}
	defer session.Close()

	var outBuf, errBuf bytes.Buffer
	session.Stdout = &outBuf
	session.Stderr = &errBuf

	runErr := session.Run(cmd)
	code := 0
	if exitErr, ok := runErr.(*ssh.ExitError); ok {
		code = exitErr.ExitStatus()
		runErr = nil
	} else if runErr != nil {
		return sessionResult{}, runErr
	}
	return sessionResult{stdout: outBuf.String(), stderr: errBuf.String(), exitCode: code}, nil
}
