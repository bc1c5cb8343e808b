package unlock

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/miracle2k/naslock/internal/config"
	"github.com/miracle2k/naslock/internal/extract"
	"github.com/miracle2k/naslock/internal/keepass"
	"github.com/miracle2k/naslock/internal/selector"
	"github.com/miracle2k/naslock/internal/truenas"
)

type fakeVault struct {
	entries []keepass.Entry
}

func (v *fakeVault) Entries() []keepass.Entry { return v.entries }

type fakeCaller struct {
	calls   int
	results []callResult // consumed in order; last one repeats
	lastReq truenas.UnlockRequest
}

type callResult struct {
	res *truenas.Result
	err error
}

func (c *fakeCaller) Unlock(_ context.Context, req truenas.UnlockRequest) (*truenas.Result, error) {
	c.lastReq = req
	i := c.calls
	if i >= len(c.results) {
		i = len(c.results) - 1
	}
	c.calls++
	return c.results[i].res, c.results[i].err
}

func testConfig() *config.Config {
	return &config.Config{
		Keepass: config.KeepassConfig{Path: "/vault/nas.kdbx"},
		NAS: map[string]config.NASConfig{
			"home": {
				Host:      "truenas.local",
				AuthEntry: "title:TrueNAS admin",
				Retries:   3,
			},
		},
		Volumes: map[string]config.VolumeConfig{
			"tank-media": {
				NAS:         "home",
				Dataset:     "tank/media",
				UnlockEntry: "title:tank passphrase",
			},
		},
	}
}

func testEntries() []keepass.Entry {
	return []keepass.Entry{
		{
			Title: "TrueNAS admin",
			UUID:  uuid.UUID{1},
			Fields: []keepass.Field{
				{Key: "UserName", Value: "root"},
				{Key: "Password", Value: "hunter2", Protected: true},
			},
		},
		{
			Title: "tank passphrase",
			UUID:  uuid.UUID{2},
			Fields: []keepass.Field{
				{Key: "Passphrase", Value: "open sesame", Protected: true},
			},
		},
	}
}

func testRunner(caller *fakeCaller) *Runner {
	r := New(testConfig(), func() ([]byte, error) {
		return []byte("master"), nil
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	r.Backoff = time.Millisecond
	r.Open = func(path, keyFile string, password []byte) (Vault, error) {
		return &fakeVault{entries: testEntries()}, nil
	}
	r.NewCaller = func(opts truenas.Options, cred extract.Credential, log *slog.Logger) (Caller, error) {
		return caller, nil
	}
	return r
}

func TestRunHappyPath(t *testing.T) {
	caller := &fakeCaller{results: []callResult{
		{res: &truenas.Result{Outcome: truenas.Unlocked, Unlocked: []string{"tank/media"}}},
	}}

	res, err := testRunner(caller).Run(context.Background(), "tank-media")
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if res.Outcome != truenas.Unlocked {
		t.Errorf("Outcome = %v, want Unlocked", res.Outcome)
	}
	if caller.calls != 1 {
		t.Errorf("caller invoked %d times, want 1", caller.calls)
	}

	req := caller.lastReq
	if req.Dataset != "tank/media" {
		t.Errorf("Dataset = %q", req.Dataset)
	}
	if !req.Recursive || !req.ToggleAttachments || req.Force {
		t.Errorf("flags = recursive:%v attach:%v force:%v, want defaults", req.Recursive, req.ToggleAttachments, req.Force)
	}
	if req.Secret.Kind != extract.Passphrase {
		t.Errorf("Secret.Kind = %v, want Passphrase", req.Secret.Kind)
	}
}

func TestRunUnknownVolume(t *testing.T) {
	_, err := testRunner(&fakeCaller{results: []callResult{{}}}).Run(context.Background(), "nope")
	var unknown *config.UnknownRefError
	if !errors.As(err, &unknown) {
		t.Fatalf("error = %v (%T), want *config.UnknownRefError", err, err)
	}
}

func TestRunMasterPasswordWiped(t *testing.T) {
	password := []byte("master-password")
	caller := &fakeCaller{results: []callResult{
		{res: &truenas.Result{Outcome: truenas.Unlocked}},
	}}
	r := testRunner(caller)
	r.Password = func() ([]byte, error) { return password, nil }

	if _, err := r.Run(context.Background(), "tank-media"); err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	for _, b := range password {
		if b != 0 {
			t.Fatal("master password not wiped after vault open")
		}
	}
}

func TestRunVaultOpenFailureAborts(t *testing.T) {
	caller := &fakeCaller{results: []callResult{{}}}
	r := testRunner(caller)
	r.Open = func(path, keyFile string, password []byte) (Vault, error) {
		return nil, keepass.ErrWrongPassword
	}

	_, err := r.Run(context.Background(), "tank-media")
	if !errors.Is(err, keepass.ErrWrongPassword) {
		t.Fatalf("error = %v, want ErrWrongPassword", err)
	}
	if caller.calls != 0 {
		t.Error("API called despite vault open failure")
	}
}

func TestRunResolutionFailureAborts(t *testing.T) {
	caller := &fakeCaller{results: []callResult{{}}}
	r := testRunner(caller)
	r.Open = func(path, keyFile string, password []byte) (Vault, error) {
		// Vault without the credential entry.
		return &fakeVault{entries: testEntries()[1:]}, nil
	}

	_, err := r.Run(context.Background(), "tank-media")
	var notFound *selector.NotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("error = %v (%T), want *selector.NotFoundError", err, err)
	}
	if caller.calls != 0 {
		t.Error("API called despite resolution failure")
	}
}

func TestRunAuthRejectedNotRetried(t *testing.T) {
	caller := &fakeCaller{results: []callResult{
		{err: &truenas.AuthError{Status: 401}},
	}}

	_, err := testRunner(caller).Run(context.Background(), "tank-media")
	var authErr *truenas.AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("error = %v (%T), want *truenas.AuthError", err, err)
	}
	if caller.calls != 1 {
		t.Errorf("caller invoked %d times, want 1 (no retry on auth failure)", caller.calls)
	}
}

func TestRunUnreachableRetriedToBound(t *testing.T) {
	caller := &fakeCaller{results: []callResult{
		{err: &truenas.UnreachableError{Err: errors.New("connection refused")}},
	}}

	_, err := testRunner(caller).Run(context.Background(), "tank-media")
	var unreachable *truenas.UnreachableError
	if !errors.As(err, &unreachable) {
		t.Fatalf("error = %v (%T), want *truenas.UnreachableError", err, err)
	}
	if caller.calls != 3 {
		t.Errorf("caller invoked %d times, want the configured bound of 3", caller.calls)
	}
}

func TestRunUnreachableThenSuccess(t *testing.T) {
	caller := &fakeCaller{results: []callResult{
		{err: &truenas.UnreachableError{Err: errors.New("timeout")}},
		{res: &truenas.Result{Outcome: truenas.AlreadyUnlocked}},
	}}

	res, err := testRunner(caller).Run(context.Background(), "tank-media")
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if res.Outcome != truenas.AlreadyUnlocked {
		t.Errorf("Outcome = %v, want AlreadyUnlocked", res.Outcome)
	}
	if caller.calls != 2 {
		t.Errorf("caller invoked %d times, want 2", caller.calls)
	}
}

func TestRunRetryStopsOnContextCancel(t *testing.T) {
	caller := &fakeCaller{results: []callResult{
		{err: &truenas.UnreachableError{Err: errors.New("timeout")}},
	}}
	r := testRunner(caller)
	r.Backoff = time.Hour // only a cancelled context can end the wait

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := r.Run(ctx, "tank-media")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled in the chain", err)
	}
	if caller.calls != 1 {
		t.Errorf("caller invoked %d times, want 1", caller.calls)
	}
}

func TestRunUnsetModeFallsBackToKeyMaterial(t *testing.T) {
	caller := &fakeCaller{results: []callResult{
		{res: &truenas.Result{Outcome: truenas.Unlocked}},
	}}
	r := testRunner(caller)
	r.Open = func(path, keyFile string, password []byte) (Vault, error) {
		entries := testEntries()
		// The secret entry carries only key material, no passphrase.
		entries[1].Fields = []keepass.Field{
			{Key: "Key", Value: "00112233445566778899aabbccddeeff", Protected: true},
		}
		return &fakeVault{entries: entries}, nil
	}

	if _, err := r.Run(context.Background(), "tank-media"); err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if caller.lastReq.Secret.Kind != extract.KeyMaterial {
		t.Errorf("Secret.Kind = %v, want KeyMaterial", caller.lastReq.Secret.Kind)
	}
}

func TestRunKeyModeSelectsKeyMaterial(t *testing.T) {
	caller := &fakeCaller{results: []callResult{
		{res: &truenas.Result{Outcome: truenas.Unlocked}},
	}}
	r := testRunner(caller)
	vol := r.Config.Volumes["tank-media"]
	vol.UnlockMode = config.UnlockKey
	vol.UnlockField = "Passphrase" // entry stores the key in this field
	r.Config.Volumes["tank-media"] = vol

	if _, err := r.Run(context.Background(), "tank-media"); err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if caller.lastReq.Secret.Kind != extract.KeyMaterial {
		t.Errorf("Secret.Kind = %v, want KeyMaterial", caller.lastReq.Secret.Kind)
	}
}
