// Package truenas implements the single outbound call this tool makes: an
// authenticated dataset unlock against the TrueNAS v2.0 REST API, with the
// response classified into typed outcomes and failures.
package truenas

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/miracle2k/naslock/internal/extract"
)

const (
	unlockPath      = "api/v2.0/pool/dataset/unlock"
	jobsPath        = "api/v2.0/core/get_jobs"
	maxBodyBytes    = 64 << 10
	excerptLen      = 300
	defaultTimeout  = 30 * time.Second
	defaultPollTick = 2 * time.Second
)

// Options configures a Client.
type Options struct {
	Host            string // "truenas.local" or a full http(s) URL
	SkipTLSVerify   bool
	Timeout         time.Duration // per-request, default 30s
	JobPollInterval time.Duration // default 2s
}

// Client issues unlock calls against one TrueNAS appliance.
type Client struct {
	base     *url.URL
	cred     extract.Credential
	http     *http.Client
	pollTick time.Duration
	log      *slog.Logger
}

// New builds a Client for the given appliance and credential.
func New(opts Options, cred extract.Credential, log *slog.Logger) (*Client, error) {
	base, err := ParseBaseURL(opts.Host)
	if err != nil {
		return nil, err
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	pollTick := opts.JobPollInterval
	if pollTick <= 0 {
		pollTick = defaultPollTick
	}

	httpClient := &http.Client{Timeout: timeout}
	if opts.SkipTLSVerify {
		httpClient.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
	}

	return &Client{
		base:     base,
		cred:     cred,
		http:     httpClient,
		pollTick: pollTick,
		log:      log,
	}, nil
}

// ParseBaseURL normalizes a host value into a bare base URL: https is
// assumed when no scheme is given, and any path, query, or fragment is
// stripped.
func ParseBaseURL(host string) (*url.URL, error) {
	trimmed := strings.TrimSpace(host)
	if trimmed == "" {
		return nil, fmt.Errorf("NAS host is empty")
	}
	if !strings.HasPrefix(trimmed, "http://") && !strings.HasPrefix(trimmed, "https://") {
		trimmed = "https://" + trimmed
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("invalid NAS host %q: %w", host, err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid NAS host %q", host)
	}
	u.Path = ""
	u.RawQuery = ""
	u.Fragment = ""
	return u, nil
}

// encodeUnlockBody builds the wire body for an unlock request. The output
// is deterministic: the same request always produces the same bytes.
func encodeUnlockBody(req UnlockRequest) ([]byte, error) {
	ds := unlockDataset{Name: req.Dataset}
	switch req.Secret.Kind {
	case extract.KeyMaterial:
		ds.Key = string(req.Secret.Value)
	default:
		ds.Passphrase = string(req.Secret.Value)
	}

	return json.Marshal(unlockBody{
		ID: req.Dataset,
		UnlockOptions: unlockOptions{
			Recursive:         req.Recursive,
			Force:             req.Force,
			ToggleAttachments: req.ToggleAttachments,
			KeyFile:           false,
			Datasets:          []unlockDataset{ds},
		},
	})
}

// Unlock performs the unlock call and classifies the response. It does
// not retry; network-class failures come back as *UnreachableError for
// the caller to retry.
func (c *Client) Unlock(ctx context.Context, req UnlockRequest) (*Result, error) {
	body, err := encodeUnlockBody(req)
	if err != nil {
		return nil, fmt.Errorf("encoding unlock request: %w", err)
	}

	u := c.base.JoinPath(unlockPath)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building unlock request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Content-Type", "application/json")
	c.authorize(httpReq)

	c.log.Debug("unlocking dataset", "dataset", req.Dataset, "url", u.String(), "recursive", req.Recursive)

	status, respBody, err := c.do(httpReq)
	if err != nil {
		return nil, err
	}

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return nil, &AuthError{Status: status}
	case status >= 200 && status < 300:
		return c.classifySuccess(ctx, req.Dataset, status, respBody)
	default:
		return classifyErrorBody(req.Dataset, status, respBody)
	}
}

// authorize applies the credential: basic auth for username/password,
// bearer for an API key.
func (c *Client) authorize(req *http.Request) {
	switch c.cred.Kind {
	case extract.APIKeyAuth:
		req.Header.Set("Authorization", "Bearer "+string(c.cred.Key))
	default:
		req.SetBasicAuth(string(c.cred.Username), string(c.cred.Password))
	}
}

// do sends the request and reads a bounded response body. Transport
// failures are wrapped as UnreachableError.
func (c *Client) do(req *http.Request) (int, []byte, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, &UnreachableError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return 0, nil, &UnreachableError{Err: err}
	}
	return resp.StatusCode, body, nil
}

// unlockResponse is what pool/dataset/unlock returns synchronously: either
// a bare job id, or an object describing the outcome.
type unlockResponse struct {
	JobID    *int64                     `json:"job_id"`
	Unlocked []string                   `json:"unlocked"`
	Failed   map[string]json.RawMessage `json:"failed"`
	Message  string                     `json:"message"`
}

// classifySuccess interprets a 2xx unlock response. A job id (bare number
// or job_id field) means the unlock runs asynchronously and is polled to
// completion.
func (c *Client) classifySuccess(ctx context.Context, dataset string, status int, body []byte) (*Result, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return &Result{Outcome: Unlocked}, nil
	}

	if jobID, err := strconv.ParseInt(string(trimmed), 10, 64); err == nil {
		return c.waitForJob(ctx, dataset, jobID)
	}

	var resp unlockResponse
	if err := json.Unmarshal(trimmed, &resp); err != nil {
		// Non-JSON 2xx body: report it verbatim as the outcome message.
		return &Result{Outcome: Unlocked, Message: string(trimmed)}, nil
	}
	if resp.JobID != nil {
		return c.waitForJob(ctx, dataset, *resp.JobID)
	}
	return evaluateOutcome(dataset, status, resp)
}

// evaluateOutcome maps the unlocked/failed/message triple onto a Result
// or a typed failure.
func evaluateOutcome(dataset string, status int, resp unlockResponse) (*Result, error) {
	if len(resp.Failed) > 0 {
		name, reason := firstFailure(resp.Failed)
		switch {
		case isAlreadyUnlocked(reason):
			return &Result{Outcome: AlreadyUnlocked, Message: reason}, nil
		case isSecretRejected(reason):
			return nil, &SecretRejectedError{Dataset: name, Reason: reason}
		default:
			return nil, &UnexpectedResponseError{Status: status, Excerpt: excerpt(name + ": " + reason)}
		}
	}

	if len(resp.Unlocked) > 0 {
		return &Result{Outcome: Unlocked, Unlocked: resp.Unlocked, Message: resp.Message}, nil
	}

	if isAlreadyUnlocked(resp.Message) {
		return &Result{Outcome: AlreadyUnlocked, Message: resp.Message}, nil
	}
	return &Result{Outcome: Unlocked, Message: resp.Message}, nil
}

// classifyErrorBody interprets a non-2xx, non-auth response. TrueNAS
// reports validation failures as 422 with a JSON message; "already
// unlocked" among them is a success, a refused passphrase/key is not.
func classifyErrorBody(dataset string, status int, body []byte) (*Result, error) {
	msg := errorMessage(body)
	switch {
	case isAlreadyUnlocked(msg):
		return &Result{Outcome: AlreadyUnlocked, Message: msg}, nil
	case status >= 400 && status < 500 && isSecretRejected(msg):
		return nil, &SecretRejectedError{Dataset: dataset, Reason: msg}
	default:
		return nil, &UnexpectedResponseError{Status: status, Excerpt: excerpt(msg)}
	}
}

// errorMessage pulls the human message out of a TrueNAS error body, or
// falls back to the raw text.
func errorMessage(body []byte) string {
	var e struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &e); err == nil && e.Message != "" {
		return e.Message
	}
	return string(bytes.TrimSpace(body))
}

// firstFailure returns the lexically first failed dataset and its reason,
// so the reported failure is stable across map iteration order.
func firstFailure(failed map[string]json.RawMessage) (name, reason string) {
	names := make([]string, 0, len(failed))
	for n := range failed {
		names = append(names, n)
	}
	sort.Strings(names)
	name = names[0]

	raw := failed[name]
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return name, s
	}
	var obj struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil && obj.Error != "" {
		return name, obj.Error
	}
	return name, string(raw)
}

func isAlreadyUnlocked(msg string) bool {
	m := strings.ToLower(msg)
	return strings.Contains(m, "already unlocked") || strings.Contains(m, "not locked")
}

// isSecretRejected matches the phrasings TrueNAS uses for a refused
// passphrase or key, e.g. "Invalid Key" and "Provided key is invalid".
func isSecretRejected(msg string) bool {
	m := strings.ToLower(msg)
	if strings.Contains(m, "passphrase") || strings.Contains(m, "incorrect") {
		return true
	}
	return strings.Contains(m, "key") && strings.Contains(m, "invalid")
}

func excerpt(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > excerptLen {
		return s[:excerptLen] + "..."
	}
	return s
}
