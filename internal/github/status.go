package github

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// CombinedStatus is the subset of GitHub's combined commit status response
// the reaper's status-check gate needs.
type CombinedStatus struct {
	State      string `json:"state"` // "success", "pending", "failure", "error"
	TotalCount int    `json:"total_count"`
}

// StatusClient queries a commit ref's combined CI status using a GitHub
// App installation token, for the reaper's optional pre-close check on a
// completed agent's PR (spec.md §4.7 step 6 extension).
type StatusClient struct {
	Tokens     *TokenManager
	httpClient *http.Client
	baseURL    string
}

// StatusClientOption configures a StatusClient.
type StatusClientOption func(*StatusClient)

// WithStatusHTTPClient sets a custom HTTP client for the StatusClient.
func WithStatusHTTPClient(client *http.Client) StatusClientOption {
	return func(c *StatusClient) {
		c.httpClient = client
	}
}

// WithStatusBaseURL sets a custom base URL for the GitHub API (useful for testing).
func WithStatusBaseURL(url string) StatusClientOption {
	return func(c *StatusClient) {
		c.baseURL = url
	}
}

// NewStatusClient returns a StatusClient authenticating via tokens.
func NewStatusClient(tokens *TokenManager, opts ...StatusClientOption) *StatusClient {
	c := &StatusClient{
		Tokens:     tokens,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    "https://api.github.com",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CombinedStatusForRef fetches the combined status of ref (a branch name,
// tag, or SHA) in owner/repo.
func (c *StatusClient) CombinedStatusForRef(owner, repo, ref string) (*CombinedStatus, error) {
	token, err := c.Tokens.Token()
	if err != nil {
		return nil, fmt.Errorf("failed to obtain installation token: %w", err)
	}

	url := fmt.Sprintf("%s/repos/%s/%s/commits/%s/status", c.baseURL, owner, repo, ref)
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, parseAPIError(resp.StatusCode, body)
	}

	var status CombinedStatus
	if err := json.Unmarshal(body, &status); err != nil {
		return nil, fmt.Errorf("failed to parse status response: %w", err)
	}
	return &status, nil
}
