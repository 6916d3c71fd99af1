// Package session tracks the currently recorded session so components that
// annotate their output (telemetry, the streaming feed, exports) agree on
// which save they belong to.
package session

import (
	"sync"

	"github.com/attachkit/linkcore/internal/model"
)

// Context holds the current session row.
type Context struct {
	mu      sync.RWMutex
	session *model.Session
}

// NewContext creates a Context with a placeholder session.
func NewContext() *Context {
	return &Context{
		session: &model.Session{SaveName: "no session loaded"},
	}
}

// Get returns the current session.
func (c *Context) Get() *model.Session {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session
}

// Set replaces the current session.
func (c *Context) Set(s *model.Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session = s
}

// Active reports whether a real session has been set.
func (c *Context) Active() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session != nil && c.session.ID != 0
}
