package services

import (
	"fmt"

	"netsentry/system"
)

// FirewallEnforcer is the side-effecting sink that applies block decisions
// to the host firewall. The core only ever depends on this interface; a
// failure here is logged by the caller and never rolls back the persisted
// block record.
type FirewallEnforcer interface {
	Block(ip string) error
	Unblock(ip string) error
	Name() string
}

// IPTablesEnforcer drops traffic with INPUT chain rules.
type IPTablesEnforcer struct {
	Executor system.CommandExecutor
}

func (e *IPTablesEnforcer) Block(ip string) error {
	out, err := e.Executor.Execute("iptables", "-I", "INPUT", "-s", ip, "-j", "DROP")
	if err != nil {
		return fmt.Errorf("iptables block failed: %w (%s)", err, out)
	}
	return nil
}

func (e *IPTablesEnforcer) Unblock(ip string) error {
	out, err := e.Executor.Execute("iptables", "-D", "INPUT", "-s", ip, "-j", "DROP")
	if err != nil {
		return fmt.Errorf("iptables unblock failed: %w (%s)", err, out)
	}
	return nil
}

func (e *IPTablesEnforcer) Name() string { return "iptables" }

// UFWEnforcer delegates to the Uncomplicated Firewall frontend.
type UFWEnforcer struct {
	Executor system.CommandExecutor
}

func (e *UFWEnforcer) Block(ip string) error {
	out, err := e.Executor.Execute("ufw", "deny", "from", ip)
	if err != nil {
		return fmt.Errorf("ufw block failed: %w (%s)", err, out)
	}
	return nil
}

func (e *UFWEnforcer) Unblock(ip string) error {
	out, err := e.Executor.Execute("ufw", "delete", "deny", "from", ip)
	if err != nil {
		return fmt.Errorf("ufw unblock failed: %w (%s)", err, out)
	}
	return nil
}

func (e *UFWEnforcer) Name() string { return "ufw" }

// NoopEnforcer records nothing and always succeeds. Used in tests and on
// hosts without firewall access.
type NoopEnforcer struct{}

func (e *NoopEnforcer) Block(ip string) error   { return nil }
func (e *NoopEnforcer) Unblock(ip string) error { return nil }
func (e *NoopEnforcer) Name() string            { return "none" }

// NewEnforcer selects an enforcement backend by name, falling back to the
// no-op variant for unknown values.
func NewEnforcer(kind string, executor system.CommandExecutor) FirewallEnforcer {
	switch kind {
	case "iptables":
		return &IPTablesEnforcer{Executor: executor}
	case "ufw":
		return &UFWEnforcer{Executor: executor}
	case "none", "":
		return &NoopEnforcer{}
	default:
		system.Warn("Unknown firewall backend %q, falling back to none", kind)
		return &NoopEnforcer{}
	}
}
