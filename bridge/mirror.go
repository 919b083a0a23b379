package bridge

import (
	"sync"

	"github.com/google/uuid"
)

// Sections of the remote configuration object.
const (
	SectionLinked     = "linked"
	SectionPending    = "pending"
	SectionModerators = "moderators"
	SectionTimedOut   = "timedOut"
)

// RemoteConfig is an immutable snapshot of the control plane's configuration.
// Sections are JSON objects keyed by identity string, or arrays of identity
// strings. Unknown sections are carried through untouched.
type RemoteConfig struct {
	raw map[string]any
}

// NewRemoteConfig wraps a decoded config object. The map must not be modified
// by the caller afterwards.
func NewRemoteConfig(raw map[string]any) *RemoteConfig {
	if raw == nil {
		raw = map[string]any{}
	}
	return &RemoteConfig{raw: raw}
}

// Raw returns the underlying object for encoding. Treat it as read-only.
func (c *RemoteConfig) Raw() map[string]any {
	return c.raw
}

// Has reports whether id is a member of section.
func (c *RemoteConfig) Has(section string, id uuid.UUID) bool {
	_, ok := c.Lookup(section, id)
	return ok
}

// Lookup returns the value stored for id in section. Array sections yield the
// identity string itself.
func (c *RemoteConfig) Lookup(section string, id uuid.UUID) (any, bool) {
	key := id.String()
	switch s := c.raw[section].(type) {
	case map[string]any:
		v, ok := s[key]
		return v, ok
	case []any:
		for _, v := range s {
			if str, ok := v.(string); ok && str == key {
				return str, true
			}
		}
	}
	return nil, false
}

// PendingCode returns the outstanding link code for id.
func (c *RemoteConfig) PendingCode(id uuid.UUID) (string, bool) {
	v, ok := c.Lookup(SectionPending, id)
	if !ok {
		return "", false
	}
	code, ok := v.(string)
	return code, ok && code != ""
}

// WithPending returns a copy of c with pending[id] set to code.
func (c *RemoteConfig) WithPending(id uuid.UUID, code string) *RemoteConfig {
	raw := make(map[string]any, len(c.raw)+1)
	for k, v := range c.raw {
		raw[k] = v
	}

	pending := map[string]any{}
	switch s := c.raw[SectionPending].(type) {
	case map[string]any:
		for k, v := range s {
			pending[k] = v
		}
	case []any:
		// An array section carries no codes; keep the members with empty values.
		for _, v := range s {
			if str, ok := v.(string); ok {
				pending[str] = ""
			}
		}
	}
	pending[id.String()] = code
	raw[SectionPending] = pending
	return &RemoteConfig{raw: raw}
}

// Mirror is the local copy of the remote configuration. Reads see a whole
// snapshot; writes replace the snapshot by reference.
type Mirror struct {
	mu  sync.Mutex
	cfg *RemoteConfig
}

func NewMirror() *Mirror {
	return &Mirror{cfg: NewRemoteConfig(nil)}
}

// Snapshot returns the current configuration.
func (m *Mirror) Snapshot() *RemoteConfig {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cfg
}

// Replace installs a configuration received from the control plane.
func (m *Mirror) Replace(cfg *RemoteConfig) {
	m.mu.Lock()
	m.cfg = cfg
	m.mu.Unlock()
}

// Update runs fn against the current snapshot while holding the mirror lock.
// When fn returns a non-nil config and no error, it becomes the new snapshot.
// fn is expected to push the change upstream before returning it, and must
// not block.
func (m *Mirror) Update(fn func(cur *RemoteConfig) (*RemoteConfig, error)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	next, err := fn(m.cfg)
	if err != nil {
		return err
	}
	if next != nil {
		m.cfg = next
	}
	return nil
}
