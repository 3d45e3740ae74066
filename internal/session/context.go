// Package session holds the state that lives for one application run: the
// change-notification bus and the record of what was already enriched.
package session

import (
	"streamflux/internal/events"

	"github.com/sirupsen/logrus"
)

// Context is created at application start and handed to every component
// that publishes, listens or enriches. Reset models a full reload.
type Context struct {
	Bus  *events.Bus
	Memo *Memo
}

func New(logger *logrus.Logger) *Context {
	return &Context{
		Bus:  events.NewBus(logger),
		Memo: NewMemo(),
	}
}

// Reset forgets every enrichment and drops all subscriptions.
func (c *Context) Reset() {
	c.Memo.Reset()
	c.Bus.Clear()
}
