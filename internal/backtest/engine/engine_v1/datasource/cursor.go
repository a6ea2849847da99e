package datasource

import (
	"time"

	"github.com/moznion/go-optional"

	"github.com/tradesim-lab/tradesim/pkg/errors"
)

// cursorState implements the monotonic-clock contract shared by every
// DataSource implementation. Not safe for concurrent use on its own; the
// embedding source holds its lock around calls.
type cursorState struct {
	cursor optional.Option[time.Time]
}

func (c *cursorState) set(t time.Time) error {
	if current, err := c.cursor.Take(); err == nil && t.Before(current) {
		return errors.Newf(errors.ErrCodeInvalidParameter,
			"cursor must be monotonic: %s is before current %s", t, current)
	}

	c.cursor = optional.Some(t)

	return nil
}

// guard rejects any request for data timestamped after the cursor. A request
// before the first SetCursor is also rejected: the simulation clock has not
// started, so no bar is legitimately visible yet.
func (c *cursorState) guard(t time.Time) error {
	current, err := c.cursor.Take()
	if err != nil {
		return errors.New(errors.ErrCodeLookAheadBias, "data requested before the simulation clock was set")
	}

	if t.After(current) {
		return errors.Newf(errors.ErrCodeLookAheadBias,
			"data at %s requested while the simulation clock is at %s", t, current)
	}

	return nil
}
