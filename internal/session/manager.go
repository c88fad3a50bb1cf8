package session

import (
	"context"
	"fmt"
	"time"

	sserr "sshmcp/internal/errors"
	"sshmcp/internal/metrics"
	"sshmcp/internal/retry"
	"sshmcp/internal/transport"
	"sshmcp/util"
)

// HistoryInit is written to every new shell so commands, and any secrets
// in them, stay out of the remote history file.
const HistoryInit = "export HISTFILE=/dev/null HISTSIZE=0 HISTCONTROL=ignorespace,ignoredups\n"

// Options configures a [Manager].
type Options struct {
	// CommandTimeout applies when a caller passes no timeout.
	CommandTimeout time.Duration
	// Breakers guards Open per host:port.  nil disables the guard.
	Breakers *retry.Breakers
	Logger   *util.Logger
	Metrics  *metrics.Collector
}

// Manager implements open, execute and close on top of a Dialer and a
// Registry.
type Manager struct {
	dialer   transport.Dialer
	registry *Registry
	opts     Options
	logger   *util.Logger
	metrics  *metrics.Collector
}

// NewManager wires a manager.  registry is shared with the reaper.
func NewManager(dialer transport.Dialer, registry *Registry, opts Options) *Manager {
	if opts.CommandTimeout <= 0 {
		opts.CommandTimeout = DefaultTimeout
	}
	return &Manager{
		dialer:   dialer,
		registry: registry,
		opts:     opts,
		logger:   opts.Logger,
		metrics:  opts.Metrics,
	}
}

// Registry returns the registry this manager operates on.
func (m *Manager) Registry() *Registry { return m.registry }

// Open connects to target, starts a shell, registers it, and returns the
// new session id.  Nothing is registered on failure.
func (m *Manager) Open(ctx context.Context, target transport.Target) (string, error) {
	if target.Port == 0 {
		target.Port = transport.DefaultPort
	}
	if target.Host == "" {
		return "", sserr.WrapSSH("dial", target.Host, target.Port, fmt.Errorf("host is required"))
	}
	if target.User == "" {
		return "", sserr.WrapSSH("auth", target.Host, target.Port, fmt.Errorf("username is required"))
	}

	var ch transport.Channel
	err := m.opts.Breakers.Execute(target.Addr(), func() error {
		var err error
		ch, err = m.dialer.Dial(ctx, target)
		return err
	})
	if err != nil {
		if sserr.Is(err, sserr.ErrCircuitOpen) {
			var se *sserr.SSHError
			if !sserr.As(err, &se) {
				err = sserr.WrapSSH("breaker", target.Host, target.Port, err)
			}
		}
		m.metrics.OpenFailed()
		m.metrics.RecordError(err.Error())
		m.logger.Warn("open %s@%s failed: %v", target.User, target.Addr(), err)
		return "", err
	}

	s := m.registry.Create(ch, Info{Host: target.Host, Port: target.Port, User: target.User})
	m.metrics.SessionOpened()
	go s.pump(m.streamEnded)

	if err := s.write(HistoryInit); err != nil {
		s.logger.Warn("history init failed: %v", err)
	}

	m.logger.Info("session %s opened to %s@%s", s.ID(), target.User, target.Addr())
	return s.ID(), nil
}

// Execute runs command on session id.  A non-positive timeout selects
// the configured default.
func (m *Manager) Execute(ctx context.Context, id, command string, timeout time.Duration) (Result, error) {
	s, ok := m.registry.Get(id)
	if !ok {
		return Result{}, sserr.NotFound(id)
	}
	if timeout <= 0 {
		timeout = m.opts.CommandTimeout
	}
	res, err := s.Execute(ctx, command, timeout)
	if err != nil {
		m.metrics.RecordError(err.Error())
	}
	return res, err
}

// Close ends session id and forgets it.  It reports false, without
// error, when id is unknown.
func (m *Manager) Close(id string) bool {
	s, ok := m.registry.Get(id)
	if !ok {
		return false
	}
	m.evict(s, "closed")
	return true
}

// CloseAll closes every session and returns how many there were.
func (m *Manager) CloseAll() int {
	sessions := m.registry.List()
	for _, s := range sessions {
		m.evict(s, "closed at shutdown")
	}
	return len(sessions)
}

// Reap closes every session whose last activity is older than idle as
// of now, and returns their ids.
func (m *Manager) Reap(now time.Time, idle time.Duration) []string {
	var reaped []string
	for _, s := range m.registry.List() {
		if now.Sub(s.LastActive()) <= idle {
			continue
		}
		if m.evict(s, "reaped after idle timeout") {
			m.metrics.SessionReaped()
			reaped = append(reaped, s.ID())
		}
	}
	return reaped
}

// List returns descriptive snapshots of every live session.
func (m *Manager) List() []Info {
	sessions := m.registry.List()
	out := make([]Info, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s.Info())
	}
	return out
}

// evict removes s from the registry, then closes it.  Removal first
// means no caller can look the id up once teardown has begun.  It
// reports whether this call did the removal.
func (m *Manager) evict(s *Session, why string) bool {
	removed := m.registry.Remove(s.ID())
	if removed {
		m.metrics.SessionClosed()
	}
	if err := s.Close(); err != nil {
		s.logger.Warn("close: %v", err)
	}
	if removed {
		m.logger.Info("session %s %s", s.ID(), why)
	}
	return removed
}

// streamEnded runs on the pump goroutine when the remote side drops.
func (m *Manager) streamEnded(s *Session) {
	if m.registry.Remove(s.ID()) {
		m.metrics.SessionClosed()
		m.logger.Info("session %s ended by remote", s.ID())
	}
	if err := s.teardown(); err != nil {
		s.logger.Debug("teardown: %v", err)
	}
}
