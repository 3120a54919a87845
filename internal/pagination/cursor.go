package pagination

import (
	"errors"
	"fmt"

	"github.com/kalambet/curator/internal/tsid"
)

// ErrBothCursors is the usage error for supplying before and after together.
// It is detected before any store call is made.
var ErrBothCursors = errors.New("before and after cursors are mutually exclusive")

type cursorKind int

const (
	kindNone cursorKind = iota
	kindBefore
	kindAfter
)

// Cursor selects which page of a table to fetch. It is a tagged variant —
// None, Before(id), or After(id) — so the invalid "both set" state cannot be
// represented once a Cursor exists. The invalid combination is only
// expressible at the string boundary, where FromParams rejects it.
type Cursor struct {
	kind cursorKind
	id   tsid.ID
}

// None selects the most recent page.
func None() Cursor {
	return Cursor{kind: kindNone}
}

// Before selects the page immediately older than id.
func Before(id tsid.ID) Cursor {
	return Cursor{kind: kindBefore, id: id}
}

// After selects the page immediately newer than id.
func After(id tsid.ID) Cursor {
	return Cursor{kind: kindAfter, id: id}
}

// FromParams builds a Cursor from the two optional string parameters of the
// public surface. Supplying both is a usage error; no query is issued.
func FromParams(before, after string) (Cursor, error) {
	if before != "" && after != "" {
		return Cursor{}, ErrBothCursors
	}
	switch {
	case before != "":
		id, err := tsid.Parse(before)
		if err != nil {
			return Cursor{}, fmt.Errorf("invalid before cursor: %w", err)
		}
		return Before(id), nil
	case after != "":
		id, err := tsid.Parse(after)
		if err != nil {
			return Cursor{}, fmt.Errorf("invalid after cursor: %w", err)
		}
		return After(id), nil
	default:
		return None(), nil
	}
}

// IsNone reports whether the cursor selects the most recent page.
func (c Cursor) IsNone() bool {
	return c.kind == kindNone
}

// BeforeID returns the bounding id when the cursor is a Before variant.
func (c Cursor) BeforeID() (tsid.ID, bool) {
	return c.id, c.kind == kindBefore
}

// AfterID returns the bounding id when the cursor is an After variant.
func (c Cursor) AfterID() (tsid.ID, bool) {
	return c.id, c.kind == kindAfter
}

func (c Cursor) String() string {
	switch c.kind {
	case kindBefore:
		return fmt.Sprintf("before(%s)", c.id)
	case kindAfter:
		return fmt.Sprintf("after(%s)", c.id)
	default:
		return "none"
	}
}
