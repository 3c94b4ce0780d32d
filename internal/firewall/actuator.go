/**
 * Quarantine Actuator.
 *
 * Bans and unbans source IPs at the firewall, with an at-most-one-ban
 * invariant and a time-bounded automatic unban sweep. Commands run
 * either as a local subprocess (os/exec) or over a remote SSH-connected
 * channel (golang.org/x/crypto/ssh), selected by configuration.
 *
 * Author: KleaSCM
 * Email: KleaSCM@gmail.com
 */

package firewall

import (
	"fmt"
	"sync"
	"time"
)

// DefaultBanTime is the default quarantine duration, 300 seconds.
const DefaultBanTime = 300 * time.Second

// Actuator bans and unbans source IPs at the network boundary.
type Actuator interface {
	Ban(ip, reason string) (bool, error)
	Unban(ip string) (bool, error)
	IsBanned(ip string) bool
	SweepExpired() []string
}

// banRecord is the bookkeeping kept per banned IP.
type banRecord struct {
	at     time.Time
	reason string
}

// commandRunner abstracts local vs. remote command execution so the
// ban/unban logic is identical for both backends.
type commandRunner interface {
	Run(cmd string) (stdout, stderr string, exitCode int, err error)
}

// IPTablesActuator implements Actuator via `iptables -A/-D INPUT -s
// <ip> -j DROP`, executed through a pluggable commandRunner.
type IPTablesActuator struct {
	mu      sync.Mutex
	banned  map[string]banRecord
	banTime time.Duration
	runner  commandRunner
}

// NewLocalActuator runs iptables commands as local subprocesses.
func NewLocalActuator(banTime time.Duration) *IPTablesActuator {
	if banTime <= 0 {
		banTime = DefaultBanTime
	}
	return &IPTablesActuator{
		banned:  make(map[string]banRecord),
		banTime: banTime,
		runner:  localRunner{},
	}
}

// NewRemoteActuator runs iptables commands over an SSH session to a
// remote firewall host.
func NewRemoteActuator(banTime time.Duration, cfg SSHConfig) (*IPTablesActuator, error) {
	if banTime <= 0 {
		banTime = DefaultBanTime
	}
	runner, err := newSSHRunner(cfg)
	if err != nil {
		return nil, err
	}
	return &IPTablesActuator{
		banned:  make(map[string]banRecord),
		banTime: banTime,
		runner:  runner,
	}, nil
}

// Ban drops all traffic from ip. Returns false without error if ip is
// already banned.
func (a *IPTablesActuator) Ban(ip, reason string) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.banned[ip]; ok {
		return false, nil
	}

	_, stderr, code, err := a.runner.Run(fmt.Sprintf("iptables -A INPUT -s %s -j DROP", ip))
	if err != nil {
		return false, err
	}
	if code != 0 {
		return false, fmt.Errorf("ban %s failed: %s", ip, stderr)
	}

	a.banned[ip] = banRecord{at: time.Now(), reason: reason}
	return true, nil
}

// Unban removes a previously installed DROP rule. Returns false without
// error if ip was not banned.
func (a *IPTablesActuator) Unban(ip string) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.unbanLocked(ip)
}

func (a *IPTablesActuator) unbanLocked(ip string) (bool, error) {
	if _, ok := a.banned[ip]; !ok {
		return false, nil
	}

	_, stderr, code, err := a.runner.Run(fmt.Sprintf("iptables -D INPUT -s %s -j DROP", ip))
	if err != nil {
		return false, err
	}
	if code != 0 {
		return false, fmt.Errorf("unban %s failed: %s", ip, stderr)
	}

	delete(a.banned, ip)
	return true, nil
}

// IsBanned reports whether ip currently has an active ban.
func (a *IPTablesActuator) IsBanned(ip string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.banned[ip]
	return ok
}

// SweepExpired unbans every IP whose ban has exceeded banTime, returning
// the list of IPs unbanned.
func (a *IPTablesActuator) SweepExpired() []string {
	a.mu.Lock()
	now := time.Now()
	var expired []string
	for ip, rec := range a.banned {
		if now.Sub(rec.at) > a.banTime {
			expired = append(expired, ip)
		}
	}
	a.mu.Unlock()

	unbanned := make([]string, 0, len(expired))
	for _, ip := range expired {
		if ok, _ := a.Unban(ip); ok {
			unbanned = append(unbanned, ip)
		}
	}
	return unbanned
}
