package selector

import (
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/miracle2k/naslock/internal/keepass"
)

func entry(id byte, title string) keepass.Entry {
	return keepass.Entry{Title: title, UUID: uuid.UUID{id}}
}

func reversed(entries []keepass.Entry) []keepass.Entry {
	out := make([]keepass.Entry, len(entries))
	for i, e := range entries {
		out[len(entries)-1-i] = e
	}
	return out
}

func TestResolveByUUID(t *testing.T) {
	entries := []keepass.Entry{entry(1, "a"), entry(2, "b"), entry(3, "c")}

	got, err := Resolve(entries, Selector{Kind: KindUUID, UUID: uuid.UUID{2}})
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if got.Title != "b" {
		t.Errorf("resolved %q, want %q", got.Title, "b")
	}
}

func TestResolveUUIDNotFound(t *testing.T) {
	entries := []keepass.Entry{entry(1, "a")}

	_, err := Resolve(entries, Selector{Kind: KindUUID, UUID: uuid.UUID{9}})
	var notFound *NotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("error = %v (%T), want *NotFoundError", err, err)
	}
}

func TestResolveDuplicateUUIDIsIntegrityError(t *testing.T) {
	// Should not happen under the KDBX format's own invariants; if the
	// library ever hands us duplicates we refuse to pick one.
	entries := []keepass.Entry{entry(1, "a"), entry(1, "b")}

	_, err := Resolve(entries, Selector{Kind: KindUUID, UUID: uuid.UUID{1}})
	var integrity *IntegrityError
	if !errors.As(err, &integrity) {
		t.Fatalf("error = %v (%T), want *IntegrityError", err, err)
	}
	if integrity.Count != 2 {
		t.Errorf("Count = %d, want 2", integrity.Count)
	}
}

func TestResolveByTitleExactMatch(t *testing.T) {
	entries := []keepass.Entry{entry(1, "NAS admin"), entry(2, "nas admin"), entry(3, "NAS admin 2")}

	got, err := Resolve(entries, Selector{Kind: KindTitle, Title: "NAS admin"})
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if got.UUID != (uuid.UUID{1}) {
		t.Errorf("resolved UUID %v, want {1} (match is case-sensitive and exact)", got.UUID)
	}
}

func TestResolveTitleNotFound(t *testing.T) {
	// The spec scenario: a UUID-shaped string without the uuid: prefix is
	// a literal title lookup, and absent a matching title it fails.
	entries := []keepass.Entry{entry(1, "tank passphrase")}
	sel, err := Parse("3d6f0b0c-6f7a-4c72-9d1b-badbeefcafe0")
	if err != nil {
		t.Fatal(err)
	}

	_, err = Resolve(entries, sel)
	var notFound *NotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("error = %v (%T), want *NotFoundError", err, err)
	}
}

func TestResolveAmbiguousTitle(t *testing.T) {
	entries := []keepass.Entry{entry(2, "dup"), entry(1, "other"), entry(5, "dup")}

	_, err := Resolve(entries, Selector{Kind: KindTitle, Title: "dup"})
	var ambiguous *AmbiguousError
	if !errors.As(err, &ambiguous) {
		t.Fatalf("error = %v (%T), want *AmbiguousError", err, err)
	}
	if len(ambiguous.UUIDs) != 2 {
		t.Fatalf("UUIDs = %v, want both conflicting entries", ambiguous.UUIDs)
	}

	// Same failure with the entries in any order — never an arbitrary pick.
	_, err2 := Resolve(reversed(entries), Selector{Kind: KindTitle, Title: "dup"})
	var ambiguous2 *AmbiguousError
	if !errors.As(err2, &ambiguous2) {
		t.Fatalf("reversed order changed the failure kind: %v", err2)
	}
	for i := range ambiguous.UUIDs {
		if ambiguous.UUIDs[i] != ambiguous2.UUIDs[i] {
			t.Errorf("reported UUID order differs across entry orderings")
		}
	}
}

func TestResolveOrderIndependentForUniqueMatch(t *testing.T) {
	entries := []keepass.Entry{entry(1, "a"), entry(2, "b"), entry(3, "c")}

	for _, set := range [][]keepass.Entry{entries, reversed(entries)} {
		got, err := Resolve(set, Selector{Kind: KindTitle, Title: "b"})
		if err != nil {
			t.Fatalf("Resolve() error: %v", err)
		}
		if got.UUID != (uuid.UUID{2}) {
			t.Errorf("resolved UUID %v, want {2}", got.UUID)
		}
	}
}
