package watch

import (
	"sync"

	"github.com/loykin/reconsole/internal/notify"
)

// Manager owns at most one live Session. Watching a new directory replaces and
// closes the previous session; the latest session stays open after its scan
// exits so late writes are still reported.
type Manager struct {
	out  *notify.Channel
	opts Options

	mu  sync.Mutex
	cur *Session
}

func NewManager(out *notify.Channel, opts Options) *Manager {
	return &Manager{out: out, opts: opts}
}

// Watch closes the current session, if any, and starts one over root.
func (m *Manager) Watch(root string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cur != nil {
		_ = m.cur.Close()
		m.cur = nil
	}
	s, err := Start(root, m.out, m.opts)
	if err != nil {
		return err
	}
	m.cur = s
	return nil
}

// Release closes the current session when it watches root. It undoes a Watch
// whose scan never started.
func (m *Manager) Release(root string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cur == nil || m.cur.Root() != root {
		return
	}
	_ = m.cur.Close()
	m.cur = nil
}

// Current returns the watched root, or "" when no session is open.
func (m *Manager) Current() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cur == nil {
		return ""
	}
	return m.cur.Root()
}

// Close stops the current session.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cur == nil {
		return nil
	}
	err := m.cur.Close()
	m.cur = nil
	return err
}
