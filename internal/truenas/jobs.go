package truenas

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// job is the slice of a core.get_jobs record this client cares about.
type job struct {
	ID     int64           `json:"id"`
	State  string          `json:"state"` // WAITING | RUNNING | SUCCESS | FAILED | ABORTED
	Error  string          `json:"error"`
	Result *unlockResponse `json:"result"`
}

// waitForJob polls core/get_jobs until the unlock job finishes, then
// classifies its result. The first check happens immediately; afterwards
// the poll interval applies. The context bounds the total wait.
func (c *Client) waitForJob(ctx context.Context, dataset string, jobID int64) (*Result, error) {
	c.log.Debug("waiting for unlock job", "job_id", jobID)

	ticker := time.NewTicker(c.pollTick)
	defer ticker.Stop()

	for {
		j, err := c.fetchJob(ctx, jobID)
		if err != nil {
			return nil, err
		}

		switch j.State {
		case "SUCCESS":
			if j.Result == nil {
				return &Result{Outcome: Unlocked}, nil
			}
			return evaluateOutcome(dataset, http.StatusOK, *j.Result)
		case "FAILED", "ABORTED":
			return classifyJobFailure(dataset, j)
		}

		select {
		case <-ctx.Done():
			return nil, &UnreachableError{Err: fmt.Errorf("unlock job %d still %s: %w", jobID, j.State, ctx.Err())}
		case <-ticker.C:
		}
	}
}

// fetchJob retrieves a single job record by id.
func (c *Client) fetchJob(ctx context.Context, jobID int64) (*job, error) {
	u := c.base.JoinPath(jobsPath)
	q := u.Query()
	q.Set("id", strconv.FormatInt(jobID, 10))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("building job query: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	c.authorize(req)

	status, body, err := c.do(req)
	if err != nil {
		return nil, err
	}
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		return nil, &AuthError{Status: status}
	}
	if status < 200 || status >= 300 {
		return nil, &UnexpectedResponseError{Status: status, Excerpt: excerpt(errorMessage(body))}
	}

	var jobs []job
	if err := json.Unmarshal(body, &jobs); err != nil {
		return nil, &UnexpectedResponseError{Status: status, Excerpt: excerpt(string(body))}
	}
	for i := range jobs {
		if jobs[i].ID == jobID {
			return &jobs[i], nil
		}
	}
	return nil, &UnexpectedResponseError{Status: status, Excerpt: fmt.Sprintf("job %d not found", jobID)}
}

// classifyJobFailure maps a failed unlock job onto the error taxonomy
// using its error text.
func classifyJobFailure(dataset string, j *job) (*Result, error) {
	switch {
	case isAlreadyUnlocked(j.Error):
		return &Result{Outcome: AlreadyUnlocked, Message: j.Error}, nil
	case isSecretRejected(j.Error):
		return nil, &SecretRejectedError{Dataset: dataset, Reason: j.Error}
	default:
		return nil, &UnexpectedResponseError{
			Status:  http.StatusOK,
			Excerpt: excerpt(fmt.Sprintf("unlock job %d %s: %s", j.ID, j.State, j.Error)),
		}
	}
}
