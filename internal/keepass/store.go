// Package keepass wraps the KeePass (KDBX) database library behind the
// narrow read-only view the rest of naslock needs: a flat, ordered list of
// entries with typed open failures.
package keepass

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/tobischo/gokeepasslib/v3"
)

var (
	// ErrWrongPassword means the database could not be decrypted with the
	// given master password / key file.
	ErrWrongPassword = errors.New("wrong master password or key file")

	// ErrCorrupt means the file is not a KeePass database this tool can read.
	ErrCorrupt = errors.New("corrupt or unsupported KeePass database")
)

// Field is one named value of an entry.
type Field struct {
	Key       string
	Value     string
	Protected bool
}

// Entry is a read-only view of a single KeePass entry.
type Entry struct {
	Title  string
	UUID   uuid.UUID
	Fields []Field
}

// Field returns the value of the named field and whether it is present.
// Lookup is exact on the KeePass field key.
func (e Entry) Field(name string) (string, bool) {
	for _, f := range e.Fields {
		if f.Key == name {
			return f.Value, true
		}
	}
	return "", false
}

// Store is an opened, decrypted KeePass database.
type Store struct {
	entries []Entry
}

// Entries returns all entries of the database in document order,
// flattened across groups.
func (s *Store) Entries() []Entry {
	return s.entries
}

// Open decrypts the database at path with the master password and an
// optional key file. Open failures are classified as ErrWrongPassword or
// ErrCorrupt so callers can tell the operator what to fix.
func Open(path, keyFile string, password []byte) (*Store, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening KeePass database: %w", err)
	}
	defer f.Close()

	db := gokeepasslib.NewDatabase()
	if keyFile != "" {
		creds, err := gokeepasslib.NewPasswordAndKeyCredentials(string(password), keyFile)
		if err != nil {
			return nil, fmt.Errorf("reading key file %s: %w", keyFile, err)
		}
		db.Credentials = creds
	} else {
		db.Credentials = gokeepasslib.NewPasswordCredentials(string(password))
	}

	if err := gokeepasslib.NewDecoder(f).Decode(db); err != nil {
		return nil, classifyOpenError(err)
	}
	if err := db.UnlockProtectedEntries(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	return &Store{entries: flatten(db)}, nil
}

// classifyOpenError separates a wrong key from a broken file.
// gokeepasslib does not export a sentinel for bad credentials; a wrong key
// surfaces as an HMAC or content-hash verification failure during decode.
func classifyOpenError(err error) error {
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "hmac") ||
		strings.Contains(msg, "credentials") ||
		strings.Contains(msg, "hash mismatch") ||
		strings.Contains(msg, "decrypt") {
		return fmt.Errorf("%w: %v", ErrWrongPassword, err)
	}
	return fmt.Errorf("%w: %v", ErrCorrupt, err)
}

// flatten walks the group tree depth-first and returns every entry as a
// read-only view, in document order.
func flatten(db *gokeepasslib.Database) []Entry {
	var entries []Entry
	if db.Content == nil || db.Content.Root == nil {
		return entries
	}
	for _, g := range db.Content.Root.Groups {
		entries = appendGroup(entries, g)
	}
	return entries
}

func appendGroup(entries []Entry, g gokeepasslib.Group) []Entry {
	for _, e := range g.Entries {
		entries = append(entries, toView(e))
	}
	for _, sub := range g.Groups {
		entries = appendGroup(entries, sub)
	}
	return entries
}

func toView(e gokeepasslib.Entry) Entry {
	view := Entry{
		Title:  e.GetTitle(),
		UUID:   uuid.UUID(e.UUID),
		Fields: make([]Field, 0, len(e.Values)),
	}
	for _, v := range e.Values {
		view.Fields = append(view.Fields, Field{
			Key:       v.Key,
			Value:     v.Value.Content,
			Protected: v.Value.Protected.Bool,
		})
	}
	return view
}
