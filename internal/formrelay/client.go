// Package formrelay forwards contact submissions to a hosted form endpoint such as
// Formspree, which emails them to the site owner.
package formrelay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/PortNumber53/landing-api/internal/models"
)

// ErrPermanent marks relay failures that will not succeed on retry.
var ErrPermanent = errors.New("formrelay: permanent failure")

const defaultTimeout = 15 * time.Second

// Client posts submissions to one relay endpoint.
type Client struct {
	endpoint   string
	httpClient *http.Client
}

// NewClient creates a Client for endpoint. A nil httpClient gets a default with a timeout.
func NewClient(endpoint string, httpClient *http.Client) (*Client, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil, errors.New("formrelay: endpoint is required")
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{endpoint: endpoint, httpClient: httpClient}, nil
}

type relayPayload struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Company string `json:"company,omitempty"`
	Message string `json:"message"`
	Subject string `json:"_subject,omitempty"`
	ReplyTo string `json:"_replyto,omitempty"`
}

// StatusError is returned when the relay answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("formrelay: unexpected status %d: %s", e.StatusCode, e.Body)
}

// Unwrap lets errors.Is match ErrPermanent for statuses that retrying cannot fix.
func (e *StatusError) Unwrap() error {
	if e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500 {
		return nil
	}
	return ErrPermanent
}

// Relay posts sub to the endpoint. Transport failures, 429 and 5xx responses are
// retryable; other non-2xx responses wrap ErrPermanent.
func (c *Client) Relay(ctx context.Context, sub models.ContactSubmission) error {
	payload := relayPayload{
		Name:    sub.Name,
		Email:   sub.Email,
		Message: sub.Message,
		Subject: "New contact from " + sub.Name,
		ReplyTo: sub.Email,
	}
	if sub.Company != nil {
		payload.Company = *sub.Company
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("formrelay: encode submission: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: build request: %v", ErrPermanent, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("formrelay: post submission: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(respBody))}
	}
	return nil
}
