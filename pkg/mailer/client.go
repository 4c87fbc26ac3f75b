package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/angelmondragon/licensesync/pkg/config"
	pkgerrors "github.com/angelmondragon/licensesync/pkg/errors"
)

const (
	listPathFormat              = "lists/%s"
	responseBodyReadLimit int64 = 1024

	// the provider authenticates on the key alone; the username is filler
	basicAuthUser = "licensesync"
)

var (
	errBaseURLRequired = errors.New("mailer base url is required")
	errAPIKeyRequired  = errors.New("mailer api key is required")
	errListIDRequired  = errors.New("mailer list id is required")
)

// Member is one subscriber entry in a batch update.
type Member struct {
	EmailAddress string            `json:"email_address"`
	Status       string            `json:"status"`
	MergeFields  map[string]string `json:"merge_fields,omitempty"`
}

// UpsertResult summarizes a batch update on the provider side.
type UpsertResult struct {
	TotalCreated int
	TotalUpdated int
	ErrorCount   int
}

// Client pushes subscriber batches to the mailing-list provider.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	listID     string
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithBaseURL overrides the configured provider base URL.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		trimmed := strings.TrimSpace(baseURL)
		if trimmed != "" {
			c.baseURL = trimmed
		}
	}
}

// NewClient builds the mailing-list client from configuration.
func NewClient(cfg config.MailingConfig, opts ...Option) (*Client, error) {
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		return nil, errBaseURLRequired
	}
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errAPIKeyRequired
	}
	listID := strings.TrimSpace(cfg.ListID)
	if listID == "" {
		return nil, errListIDRequired
	}

	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	client := &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		apiKey:     apiKey,
		listID:     listID,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}

	if client.httpClient == nil {
		client.httpClient = &http.Client{Timeout: timeout}
	}

	return client, nil
}

// UpsertMembers sends one batch of subscribers with update-existing
// semantics, so re-pushing a member is safe.
func (c *Client) UpsertMembers(ctx context.Context, members []Member) (*UpsertResult, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "mailer client not configured")
	}
	if len(members) == 0 {
		return &UpsertResult{}, nil
	}

	payload, err := json.Marshal(struct {
		Members        []Member `json:"members"`
		UpdateExisting bool     `json:"update_existing"`
	}{Members: members, UpdateExisting: true})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "marshal member batch")
	}

	endpoint := c.buildURL(fmt.Sprintf(listPathFormat, url.PathEscape(c.listID)))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build member batch request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.SetBasicAuth(basicAuthUser, c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "execute member batch request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
		return nil, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))), "member batch rejected")
	}
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))), "member batch failed")
	}

	var apiResp struct {
		TotalCreated int `json:"total_created"`
		TotalUpdated int `json:"total_updated"`
		ErrorCount   int `json:"error_count"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode member batch response")
	}

	return &UpsertResult{
		TotalCreated: apiResp.TotalCreated,
		TotalUpdated: apiResp.TotalUpdated,
		ErrorCount:   apiResp.ErrorCount,
	}, nil
}

func (c *Client) buildURL(path string) string {
	trimmed := strings.TrimRight(c.baseURL, "/")
	path = strings.TrimLeft(path, "/")
	return fmt.Sprintf("%s/%s", trimmed, path)
}
