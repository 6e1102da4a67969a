package authcore

import (
	"context"

	"github.com/auralis-app/authcore/journal"
)

// QueryAudit flushes buffered events and returns the newest matches
// first, at most limit of them.
func (e *Engine) QueryAudit(ctx context.Context, f journal.Filter, limit int) ([]journal.Event, error) {
	e.journal.Flush()
	return e.journal.Query(ctx, f, limit)
}

// FlushAudit forces buffered events to disk.
func (e *Engine) FlushAudit() {
	e.journal.Flush()
}
