// Package terminal keeps one session lifecycle per till.
package terminal

import (
	"context"
	"regexp"
	"sort"
	"sync"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/xenking/oolio-pos/internal/domain/poserr"
	"github.com/xenking/oolio-pos/internal/domain/session"
)

// ErrInvalidID is returned for terminal ids that are empty or contain
// characters outside [A-Za-z0-9_-].
var ErrInvalidID = errors.New("invalid terminal id")

var idPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// Factory builds the lifecycle of a terminal.
type Factory func(terminalID string) (*session.Lifecycle, error)

// Manager lazily creates and restores lifecycles. Each terminal has its own
// lifecycle and therefore its own lock.
type Manager struct {
	mu        sync.Mutex
	factory   Factory
	terminals map[string]*session.Lifecycle
	lg        *zap.Logger
}

// NewManager creates a Manager.
func NewManager(factory Factory, lg *zap.Logger) *Manager {
	return &Manager{
		factory:   factory,
		terminals: make(map[string]*session.Lifecycle),
		lg:        lg,
	}
}

// Get returns the lifecycle for id, creating it and restoring its snapshot
// on first use.
func (m *Manager) Get(ctx context.Context, id string) (*session.Lifecycle, error) {
	if !idPattern.MatchString(id) {
		return nil, poserr.Invalid("terminal", ErrInvalidID)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if l, ok := m.terminals[id]; ok {
		return l, nil
	}
	l, err := m.factory(id)
	if err != nil {
		return nil, errors.Wrapf(err, "create terminal %s", id)
	}
	if err := l.Restore(ctx); err != nil {
		return nil, errors.Wrapf(err, "restore terminal %s", id)
	}
	m.terminals[id] = l
	m.lg.Info("Terminal attached", zap.String("terminal_id", id), zap.String("state", string(l.State())))
	return l, nil
}

// IDs returns the attached terminal ids, sorted.
func (m *Manager) IDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.terminals))
	for id := range m.terminals {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
