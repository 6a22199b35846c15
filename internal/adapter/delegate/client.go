// Package delegate implements the orchestration engine port over HTTP.
package delegate

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/Strob0t/MedForge/internal/adapter/restclient"
	"github.com/Strob0t/MedForge/internal/domain"
	"github.com/Strob0t/MedForge/internal/port/delegate"
	"github.com/Strob0t/MedForge/internal/resilience"
)

// Client talks to the delegate engine's task API:
// POST /tasks, GET /tasks/{id}, POST /tasks/{id}/cancel.
type Client struct {
	rest          *restclient.Client
	submitTimeout time.Duration
	statusTimeout time.Duration
}

var _ delegate.Orchestrator = (*Client)(nil)

// NewClient creates a delegate client. Submission and status queries each get
// their own deadline on top of the caller's context.
func NewClient(baseURL, apiKey string, submitTimeout, statusTimeout time.Duration) *Client {
	return &Client{
		rest:          restclient.New("delegate", baseURL, apiKey, max(submitTimeout, statusTimeout)),
		submitTimeout: submitTimeout,
		statusTimeout: statusTimeout,
	}
}

// SetBreaker attaches a circuit breaker to all outgoing calls.
func (c *Client) SetBreaker(b *resilience.Breaker) {
	c.rest.SetBreaker(b)
}

// SetKeySource makes the client read its API key from fn on every call.
func (c *Client) SetKeySource(fn func() string) {
	c.rest.SetKeySource(fn)
}

// Submit sends a task to the delegate. Every failure wraps domain.ErrDelegateUnavailable.
func (c *Client) Submit(ctx context.Context, task delegate.Task) (*delegate.Submission, error) {
	ctx, cancel := context.WithTimeout(ctx, c.submitTimeout)
	defer cancel()

	var sub delegate.Submission
	if err := c.rest.DoJSON(ctx, http.MethodPost, "/tasks", task, &sub); err != nil {
		return nil, fmt.Errorf("%w: submit task: %w", domain.ErrDelegateUnavailable, err)
	}
	if sub.TaskID == "" {
		return nil, fmt.Errorf("%w: submit task: empty task_id in response", domain.ErrDelegateUnavailable)
	}
	return &sub, nil
}

// GetStatus returns the delegate's view of a task.
func (c *Client) GetStatus(ctx context.Context, taskID string) (*delegate.TaskStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, c.statusTimeout)
	defer cancel()

	var st delegate.TaskStatus
	if err := c.rest.DoJSON(ctx, http.MethodGet, "/tasks/"+url.PathEscape(taskID), nil, &st); err != nil {
		return nil, fmt.Errorf("%w: task %s status: %w", domain.ErrDelegateUnavailable, taskID, err)
	}
	if st.TaskID == "" {
		st.TaskID = taskID
	}
	return &st, nil
}

// Cancel asks the delegate to stop a task. An unknown task is not an error.
func (c *Client) Cancel(ctx context.Context, taskID string) error {
	ctx, cancel := context.WithTimeout(ctx, c.statusTimeout)
	defer cancel()

	err := c.rest.DoJSON(ctx, http.MethodPost, "/tasks/"+url.PathEscape(taskID)+"/cancel", nil, nil)
	if err != nil && !restclient.IsStatus(err, http.StatusNotFound) {
		return fmt.Errorf("%w: cancel task %s: %w", domain.ErrDelegateUnavailable, taskID, err)
	}
	return nil
}
