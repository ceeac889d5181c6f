package submission

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-cleanhttp"
)

type Receipt struct {
	ID         string    `json:"id"`
	ReceivedAt time.Time `json:"receivedAt"`
}

type SubmitError struct {
	StatusCode int
	Detail     string
}

func (e *SubmitError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("submission rejected with status %d", e.StatusCode)
	}
	return fmt.Sprintf("submission rejected with status %d: %s", e.StatusCode, e.Detail)
}

// Client talks to the report server.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = cleanhttp.DefaultPooledClient()
	}
	return &Client{baseURL: strings.TrimSuffix(baseURL, "/"), http: httpClient}
}

func (c *Client) PublicKeyURL() string {
	return c.baseURL + "/public-key"
}

func (c *Client) Submit(ctx context.Context, body *Request) (*Receipt, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("could not encode submission: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/submissions", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("could not initialize request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("could not send submission: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("could not read submission response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var problem struct {
			Detail string `json:"detail"`
		}
		_ = json.Unmarshal(respBody, &problem)
		return nil, &SubmitError{StatusCode: resp.StatusCode, Detail: problem.Detail}
	}

	var receipt Receipt
	if err := json.Unmarshal(respBody, &receipt); err != nil {
		return nil, fmt.Errorf("could not parse submission response: %w", err)
	}
	return &receipt, nil
}
