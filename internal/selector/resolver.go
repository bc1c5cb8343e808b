package selector

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/miracle2k/naslock/internal/keepass"
)

// NotFoundError reports a selector that matches no entry in the vault.
type NotFoundError struct {
	Selector Selector
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no KeePass entry matches %s", e.Selector)
}

// AmbiguousError reports a title selector matching more than one entry.
// It lists the conflicting UUIDs so the operator can switch to a uuid:
// selector.
type AmbiguousError struct {
	Title string
	UUIDs []uuid.UUID
}

func (e *AmbiguousError) Error() string {
	ids := make([]string, len(e.UUIDs))
	for i, id := range e.UUIDs {
		ids[i] = "uuid:" + id.String()
	}
	return fmt.Sprintf("title %q matches %d entries; use one of: %s",
		e.Title, len(e.UUIDs), strings.Join(ids, ", "))
}

// IntegrityError reports a vault that contains the same UUID more than
// once. UUIDs are unique by the KeePass format's own invariants, so this
// points at a broken vault rather than operator error.
type IntegrityError struct {
	UUID  uuid.UUID
	Count int
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("vault integrity error: UUID %s appears %d times", e.UUID, e.Count)
}

// Resolve finds the single entry matched by sel. A title matching several
// entries is always reported as ambiguous, never resolved to an arbitrary
// pick, and duplicate UUIDs are a hard error. Resolution is deterministic
// over the entry ordering.
func Resolve(entries []keepass.Entry, sel Selector) (keepass.Entry, error) {
	switch sel.Kind {
	case KindUUID:
		var matches []keepass.Entry
		for _, e := range entries {
			if e.UUID == sel.UUID {
				matches = append(matches, e)
			}
		}
		switch len(matches) {
		case 0:
			return keepass.Entry{}, &NotFoundError{Selector: sel}
		case 1:
			return matches[0], nil
		default:
			return keepass.Entry{}, &IntegrityError{UUID: sel.UUID, Count: len(matches)}
		}

	default: // KindTitle
		var matches []keepass.Entry
		for _, e := range entries {
			if e.Title == sel.Title {
				matches = append(matches, e)
			}
		}
		switch len(matches) {
		case 0:
			return keepass.Entry{}, &NotFoundError{Selector: sel}
		case 1:
			return matches[0], nil
		default:
			ids := make([]uuid.UUID, len(matches))
			for i, m := range matches {
				ids[i] = m.UUID
			}
			// Stable report regardless of vault iteration order.
			sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
			return keepass.Entry{}, &AmbiguousError{Title: sel.Title, UUIDs: ids}
		}
	}
}
