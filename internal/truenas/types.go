package truenas

import (
	"fmt"

	"github.com/miracle2k/naslock/internal/extract"
)

// UnlockRequest describes one dataset unlock call.
type UnlockRequest struct {
	Dataset           string
	Secret            extract.UnlockSecret
	Recursive         bool
	Force             bool
	ToggleAttachments bool
}

// Outcome of a successful unlock call.
type Outcome int

const (
	Unlocked Outcome = iota
	AlreadyUnlocked
)

// Result is the classified success of an unlock call.
type Result struct {
	Outcome  Outcome
	Unlocked []string // dataset names the appliance reports as unlocked
	Message  string   // informational message from the appliance, if any
}

// Wire format of POST /api/v2.0/pool/dataset/unlock.
type unlockBody struct {
	ID            string        `json:"id"`
	UnlockOptions unlockOptions `json:"unlock_options"`
}

type unlockOptions struct {
	Recursive         bool            `json:"recursive"`
	Force             bool            `json:"force"`
	ToggleAttachments bool            `json:"toggle_attachments"`
	KeyFile           bool            `json:"key_file"`
	Datasets          []unlockDataset `json:"datasets"`
}

type unlockDataset struct {
	Name       string `json:"name"`
	Passphrase string `json:"passphrase,omitempty"`
	Key        string `json:"key,omitempty"`
}

// AuthError means the appliance rejected the NAS credential (401/403).
// Retrying with the same credential cannot succeed.
type AuthError struct {
	Status int
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("TrueNAS rejected the credentials (HTTP %d)", e.Status)
}

// SecretRejectedError means the appliance accepted the call but refused
// the passphrase/key. Retrying with the same secret cannot succeed.
type SecretRejectedError struct {
	Dataset string
	Reason  string
}

func (e *SecretRejectedError) Error() string {
	return fmt.Sprintf("TrueNAS rejected the unlock secret for %s: %s", e.Dataset, e.Reason)
}

// UnreachableError is a network-level failure (connection refused,
// timeout, TLS). It is the only retryable failure class.
type UnreachableError struct {
	Err error
}

func (e *UnreachableError) Error() string {
	return fmt.Sprintf("TrueNAS unreachable: %v", e.Err)
}

func (e *UnreachableError) Unwrap() error { return e.Err }

// UnexpectedResponseError covers everything the classifier does not
// recognize, keeping a truncated body excerpt for diagnosis.
type UnexpectedResponseError struct {
	Status  int
	Excerpt string
}

func (e *UnexpectedResponseError) Error() string {
	return fmt.Sprintf("unexpected TrueNAS response (HTTP %d): %s", e.Status, e.Excerpt)
}
