package selector

import (
	"errors"
	"testing"

	"github.com/google/uuid"
)

func TestParseUUIDPrefix(t *testing.T) {
	want := uuid.MustParse("3d6f0b0c-6f7a-4c72-9d1b-badbeefcafe0")

	tests := []string{
		"uuid:3d6f0b0c-6f7a-4c72-9d1b-badbeefcafe0",
		"UUID:3d6f0b0c-6f7a-4c72-9d1b-badbeefcafe0",
		"uuid: 3d6f0b0c-6f7a-4c72-9d1b-badbeefcafe0 ",
		"uuid:{3d6f0b0c-6f7a-4c72-9d1b-badbeefcafe0}",
		"uuid:3d6f0b0c6f7a4c729d1bbadbeefcafe0",
	}
	for _, raw := range tests {
		sel, err := Parse(raw)
		if err != nil {
			t.Errorf("Parse(%q) error: %v", raw, err)
			continue
		}
		if sel.Kind != KindUUID {
			t.Errorf("Parse(%q).Kind = %v, want KindUUID", raw, sel.Kind)
		}
		if sel.UUID != want {
			t.Errorf("Parse(%q).UUID = %s, want %s", raw, sel.UUID, want)
		}
	}
}

func TestParseMalformedUUID(t *testing.T) {
	_, err := Parse("uuid:not-a-uuid")
	if err == nil {
		t.Fatal("expected error for malformed UUID")
	}
	var invalid *InvalidError
	if !errors.As(err, &invalid) {
		t.Fatalf("error type = %T, want *InvalidError", err)
	}
	if invalid.Raw != "uuid:not-a-uuid" {
		t.Errorf("InvalidError.Raw = %q", invalid.Raw)
	}
}

func TestParseTitlePrefix(t *testing.T) {
	sel, err := Parse("title:3d6f0b0c-6f7a-4c72-9d1b-badbeefcafe0")
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if sel.Kind != KindTitle {
		t.Errorf("Kind = %v, want KindTitle", sel.Kind)
	}
	// title: takes the remainder literally, whatever its shape.
	if sel.Title != "3d6f0b0c-6f7a-4c72-9d1b-badbeefcafe0" {
		t.Errorf("Title = %q", sel.Title)
	}
}

func TestParseBareStringIsAlwaysTitle(t *testing.T) {
	// A bare UUID-shaped string must not be auto-detected as a UUID.
	sel, err := Parse("3d6f0b0c-6f7a-4c72-9d1b-badbeefcafe0")
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if sel.Kind != KindTitle {
		t.Errorf("Kind = %v, want KindTitle (no UUID auto-detection)", sel.Kind)
	}
	if sel.Title != "3d6f0b0c-6f7a-4c72-9d1b-badbeefcafe0" {
		t.Errorf("Title = %q", sel.Title)
	}
}

func TestParseIsPure(t *testing.T) {
	inputs := []string{"TrueNAS admin", "uuid:bogus", "uuid:3d6f0b0c-6f7a-4c72-9d1b-badbeefcafe0"}
	for _, raw := range inputs {
		a, errA := Parse(raw)
		b, errB := Parse(raw)
		if a != b || (errA == nil) != (errB == nil) {
			t.Errorf("Parse(%q) not deterministic: %v/%v vs %v/%v", raw, a, errA, b, errB)
		}
	}
}
