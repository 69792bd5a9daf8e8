package feed

// DefaultPageLimit is the page size the cursor resets to after a fallback
// page is consumed.
const DefaultPageLimit = 50

// Cursor tracks pagination state for the fallback chain-sourced feed.
// Owned solely by the Controller; never mutated concurrently.
type Cursor struct {
	Start uint64
	Limit uint64
}

// NewCursor returns a cursor at the beginning of the feed with the
// default page size.
func NewCursor() Cursor {
	return Cursor{Start: 0, Limit: DefaultPageLimit}
}

// Advance moves the cursor past the page it just consumed.
func (c *Cursor) Advance() {
	c.Start += c.Limit
}

// SetLimit changes the page size for subsequent fetches.
func (c *Cursor) SetLimit(limit uint64) {
	c.Limit = limit
}

// AdvanceAndSetLimit consumes the current page and switches to a new page
// size in one step - the fallback pagination contract: on a fallback
// response the caller advances by the old limit, then fetches with the new.
func (c *Cursor) AdvanceAndSetLimit(limit uint64) {
	c.Start += c.Limit
	c.Limit = limit
}
