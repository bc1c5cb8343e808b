// Package selector maps a user-supplied entry selector to exactly one
// KeePass entry.
//
// A selector is either "uuid:<id>", "title:<text>", or a bare string. A
// bare string always matches on title — a value that merely looks like a
// UUID is not promoted to a UUID lookup, so titles that happen to have
// UUID shape stay unambiguous.
package selector

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Kind discriminates the two selector forms.
type Kind int

const (
	KindTitle Kind = iota
	KindUUID
)

// Selector is a parsed entry selector.
type Selector struct {
	Kind  Kind
	Title string
	UUID  uuid.UUID
}

func (s Selector) String() string {
	if s.Kind == KindUUID {
		return "uuid:" + s.UUID.String()
	}
	return "title:" + s.Title
}

// InvalidError reports a selector string that cannot be parsed.
type InvalidError struct {
	Raw    string
	Reason string
}

func (e *InvalidError) Error() string {
	return fmt.Sprintf("invalid selector %q: %s", e.Raw, e.Reason)
}

// Parse turns a raw selector string into a Selector. The uuid: and title:
// prefixes are matched case-insensitively; the token after a prefix is
// trimmed of surrounding whitespace. Parse is pure: the same input always
// yields the same result.
func Parse(raw string) (Selector, error) {
	s := strings.TrimSpace(raw)

	if rest, ok := cutPrefixFold(s, "uuid:"); ok {
		id, err := uuid.Parse(strings.TrimSpace(rest))
		if err != nil {
			return Selector{}, &InvalidError{Raw: raw, Reason: fmt.Sprintf("not a valid UUID: %v", err)}
		}
		return Selector{Kind: KindUUID, UUID: id}, nil
	}

	if rest, ok := cutPrefixFold(s, "title:"); ok {
		return Selector{Kind: KindTitle, Title: strings.TrimSpace(rest)}, nil
	}

	return Selector{Kind: KindTitle, Title: s}, nil
}

// cutPrefixFold is strings.CutPrefix with ASCII case-insensitive matching
// of the prefix.
func cutPrefixFold(s, prefix string) (string, bool) {
	if len(s) < len(prefix) || !strings.EqualFold(s[:len(prefix)], prefix) {
		return s, false
	}
	return s[len(prefix):], true
}
