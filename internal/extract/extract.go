// Package extract pulls typed credential and secret material out of a
// resolved KeePass entry. Field lookup runs against an explicit, ordered
// candidate list per logical field; a config override replaces the list
// with the single configured name. Values are returned as byte slices so
// callers can wipe them.
package extract

import (
	"fmt"
	"strings"

	"github.com/miracle2k/naslock/internal/keepass"
	"github.com/miracle2k/naslock/internal/secrets"
)

// Default field-name candidates, tried in order.
var (
	usernameCandidates    = []string{"UserName", "Username", "user"}
	passwordCandidates    = []string{"Password", "pass"}
	apiKeyCandidates      = []string{"ApiKey", "API Key", "api_key"}
	passphraseCandidates  = []string{"Passphrase", "Password"}
	keyMaterialCandidates = []string{"Key", "KeyMaterial", "key_data"}
)

// FieldNames carries per-NAS / per-volume overrides of the recognized
// field names. Empty fields keep the defaults.
type FieldNames struct {
	Username    string
	Password    string
	APIKey      string
	Passphrase  string
	KeyMaterial string
}

func candidates(override string, defaults []string) []string {
	if override != "" {
		return []string{override}
	}
	return defaults
}

// Shape forces one credential shape during extraction.
type Shape int

const (
	// ShapeAuto picks username/password when both are present and
	// non-empty, otherwise an API key.
	ShapeAuto Shape = iota
	ShapeBasic
	ShapeAPIKey
)

// CredentialKind discriminates extracted credential variants.
type CredentialKind int

const (
	BasicAuth CredentialKind = iota
	APIKeyAuth
)

// Credential is the NAS credential extracted from an entry. Exactly one
// variant is populated, per Kind.
type Credential struct {
	Kind     CredentialKind
	Username []byte
	Password []byte
	Key      []byte
}

// Wipe zeroes all secret material held by the credential.
func (c *Credential) Wipe() {
	secrets.Zero(c.Username)
	secrets.Zero(c.Password)
	secrets.Zero(c.Key)
}

// SecretKind discriminates extracted unlock-secret variants.
type SecretKind int

const (
	Passphrase SecretKind = iota
	KeyMaterial
)

// SecretMode selects which secret shape DatasetSecret extracts.
type SecretMode int

const (
	// SecretAuto prefers a passphrase field and falls back to key
	// material when the entry carries none.
	SecretAuto SecretMode = iota
	SecretPassphrase
	SecretKey
)

// UnlockSecret is the dataset secret extracted from an entry.
type UnlockSecret struct {
	Kind  SecretKind
	Value []byte
}

// Wipe zeroes the secret material.
func (s *UnlockSecret) Wipe() {
	secrets.Zero(s.Value)
}

// MissingFieldError reports an entry that carries none of the fields a
// credential shape needs. Attempts describes each shape that was tried.
type MissingFieldError struct {
	Entry    string
	Attempts []string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("entry %q: %s", e.Entry, strings.Join(e.Attempts, "; "))
}

// EmptyFieldError reports a field that is present but holds no value.
type EmptyFieldError struct {
	Entry string
	Field string
}

func (e *EmptyFieldError) Error() string {
	return fmt.Sprintf("entry %q: field %q is present but empty", e.Entry, e.Field)
}

// lookup returns the first candidate field present on the entry.
func lookup(e keepass.Entry, names []string) (field, value string, ok bool) {
	for _, name := range names {
		if v, found := e.Field(name); found {
			return name, v, true
		}
	}
	return "", "", false
}

// NASCredential extracts the appliance credential from an entry. With
// ShapeAuto, a complete username/password pair wins over an API key; a
// pair with an empty half falls through to the API key. The error names
// what was looked for, never a field value.
func NASCredential(e keepass.Entry, names FieldNames, shape Shape) (Credential, error) {
	userNames := candidates(names.Username, usernameCandidates)
	passNames := candidates(names.Password, passwordCandidates)
	keyNames := candidates(names.APIKey, apiKeyCandidates)

	var emptyField string

	if shape == ShapeAuto || shape == ShapeBasic {
		userField, user, userOK := lookup(e, userNames)
		passField, pass, passOK := lookup(e, passNames)
		if userOK && passOK {
			switch {
			case user != "" && pass != "":
				return Credential{
					Kind:     BasicAuth,
					Username: []byte(user),
					Password: []byte(pass),
				}, nil
			case user == "":
				emptyField = userField
			default:
				emptyField = passField
			}
		}
		if shape == ShapeBasic {
			if emptyField != "" {
				return Credential{}, &EmptyFieldError{Entry: e.Title, Field: emptyField}
			}
			return Credential{}, &MissingFieldError{
				Entry: e.Title,
				Attempts: []string{
					fmt.Sprintf("username/password needs one of %v and one of %v", userNames, passNames),
				},
			}
		}
	}

	keyField, key, keyOK := lookup(e, keyNames)
	if keyOK {
		if key != "" {
			return Credential{Kind: APIKeyAuth, Key: []byte(key)}, nil
		}
		emptyField = keyField
	}

	if emptyField != "" {
		return Credential{}, &EmptyFieldError{Entry: e.Title, Field: emptyField}
	}

	attempts := []string{
		fmt.Sprintf("api key needs one of %v", keyNames),
	}
	if shape == ShapeAuto {
		attempts = append([]string{
			fmt.Sprintf("username/password needs one of %v and one of %v", userNames, passNames),
		}, attempts...)
	}
	return Credential{}, &MissingFieldError{Entry: e.Title, Attempts: attempts}
}

// DatasetSecret extracts the unlock secret from an entry. A forced mode
// reads only that shape's fields; SecretAuto prefers a passphrase and
// falls back to key material when no passphrase field is present.
func DatasetSecret(e keepass.Entry, names FieldNames, mode SecretMode) (UnlockSecret, error) {
	passNames := candidates(names.Passphrase, passphraseCandidates)
	keyNames := candidates(names.KeyMaterial, keyMaterialCandidates)

	var emptyField string

	if mode == SecretAuto || mode == SecretPassphrase {
		field, value, ok := lookup(e, passNames)
		if ok {
			if value != "" {
				return UnlockSecret{Kind: Passphrase, Value: []byte(value)}, nil
			}
			emptyField = field
		}
		if mode == SecretPassphrase {
			if emptyField != "" {
				return UnlockSecret{}, &EmptyFieldError{Entry: e.Title, Field: emptyField}
			}
			return UnlockSecret{}, &MissingFieldError{
				Entry:    e.Title,
				Attempts: []string{fmt.Sprintf("passphrase needs one of %v", passNames)},
			}
		}
	}

	field, value, ok := lookup(e, keyNames)
	if ok {
		if value != "" {
			return UnlockSecret{Kind: KeyMaterial, Value: []byte(value)}, nil
		}
		emptyField = field
	}

	if emptyField != "" {
		return UnlockSecret{}, &EmptyFieldError{Entry: e.Title, Field: emptyField}
	}

	attempts := []string{fmt.Sprintf("key material needs one of %v", keyNames)}
	if mode == SecretAuto {
		attempts = append([]string{
			fmt.Sprintf("passphrase needs one of %v", passNames),
		}, attempts...)
	}
	return UnlockSecret{}, &MissingFieldError{Entry: e.Title, Attempts: attempts}
}
