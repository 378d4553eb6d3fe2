// Package session turns a fire-and-forget transport into awaitable
// request/reply calls. A Manager owns named Ports; a Port owns a pool of
// Sessions sharing one id space; a Session correlates one conversation's
// sequential exchanges by stamping the configured id field onto outbound
// JSON messages and resolving the waiter when the matching reply is fed
// back in.
package session

import (
	"errors"
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/corway/sidmux/pkg"
)

// DefaultPortName is the port every Manager creates at construction.
const DefaultPortName = "default"

// Manager is a registry of Ports. Constructing one eagerly creates the
// default port, whose sweep starts running immediately.
type Manager struct {
	defaults Options

	ports pkg.SyncMap[*Port]

	logger pkg.Logger
}

// NewManager validates opts, stores them as the defaults for ports created
// later and builds the default port.
func NewManager(opts Options) (*Manager, error) {
	opts = opts.withDefaults()
	if opts.Sender == nil {
		return nil, errors.New("session: manager options require a sender")
	}

	m := &Manager{
		defaults: opts,
		logger:   opts.Logger,
	}
	if _, err := m.CreatePort(DefaultPortName, Options{}); err != nil {
		return nil, err
	}
	return m, nil
}

// CreatePort registers a new named port, layering opts over the manager
// defaults. The merged options are copied, so later manager-level changes
// never affect existing ports. A sender must be present in either layer.
func (m *Manager) CreatePort(name string, opts Options) (*Port, error) {
	if name == "" {
		return nil, errors.New("session: port name must not be empty")
	}

	merged := m.defaults.merge(opts)
	if merged.Sender == nil {
		return nil, fmt.Errorf("session: port %q requires a sender", name)
	}

	p := newPort(name, merged)
	if _, loaded := m.ports.LoadOrStore(name, p); loaded {
		p.Destroy()
		return nil, fmt.Errorf("session: port %q already exists", name)
	}
	m.logger.Debugf("session: created port %q (timeout=%v, maxLife=%v, maxSessions=%d)",
		name, merged.SessionTimeout, merged.SessionMaxLife, merged.MaxSessionCount)
	return p, nil
}

// Default returns the built-in default port.
func (m *Manager) Default() *Port {
	p, _ := m.ports.Load(DefaultPortName)
	return p
}

// Port returns the named port.
func (m *Manager) Port(name string) (*Port, bool) {
	return m.ports.Load(name)
}

// CreateSession creates a session on the named port, or on the default port
// when no name is given.
func (m *Manager) CreateSession(portName ...string) (*Session, error) {
	name := portNameOrDefault(portName)
	p, ok := m.ports.Load(name)
	if !ok {
		return nil, fmt.Errorf("session: port %q does not exist", name)
	}
	return p.Create()
}

// IsSession reports whether msg is a non-null JSON object carrying the
// configured id field with a value greater than zero. Malformed input of any
// shape classifies as false, never an error.
func (m *Manager) IsSession(msg []byte) bool {
	return SessionID(msg, m.defaults.SessionIDName) > 0
}

// GetSession resolves msg to the live session it belongs to on the named
// port (default port when no name is given). Absent when msg is not a
// session message, the port does not exist, or the session has already been
// ended or evicted — the latter is common for late replies after a timeout.
func (m *Manager) GetSession(msg []byte, portName ...string) (*Session, bool) {
	p, ok := m.ports.Load(portNameOrDefault(portName))
	if !ok {
		return nil, false
	}

	sid := SessionID(msg, p.idName())
	if sid <= 0 {
		return nil, false
	}
	return p.Get(sid)
}

// Dispatch routes an inbound message to its session's Next, implementing the
// inbound collaborator contract in one call. Reports whether the message was
// consumed; unroutable messages are simply dropped.
func (m *Manager) Dispatch(msg []byte, portName ...string) bool {
	s, ok := m.GetSession(msg, portName...)
	if !ok {
		return false
	}
	return s.Next(msg)
}

// Close destroys every registered port.
func (m *Manager) Close() {
	m.ports.Range(func(name string, p *Port) bool {
		p.Destroy()
		m.ports.Delete(name)
		return true
	})
}

func portNameOrDefault(portName []string) string {
	if len(portName) > 0 && portName[0] != "" {
		return portName[0]
	}
	return DefaultPortName
}

// SessionID extracts the correlation id from a raw JSON message. Returns 0
// for anything that is not a non-null object with a positive numeric (or
// numeric-string) value under field.
func SessionID(msg []byte, field string) int64 {
	if !gjson.ValidBytes(msg) {
		return 0
	}
	doc := gjson.ParseBytes(msg)
	if !doc.IsObject() {
		return 0
	}

	v := doc.Get(field)
	if !v.Exists() {
		return 0
	}
	switch v.Type {
	case gjson.Number, gjson.String:
		if sid := v.Int(); sid > 0 {
			return sid
		}
	}
	return 0
}
