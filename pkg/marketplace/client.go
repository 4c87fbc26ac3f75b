package marketplace

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/angelmondragon/licensesync/pkg/config"
	pkgerrors "github.com/angelmondragon/licensesync/pkg/errors"
)

const (
	exportPathFormat            = "rest/2/vendors/%s/reporting/licenses/export"
	modifiedSinceParam          = "lastUpdated"
	responseBodyReadLimit int64 = 1024
)

var (
	errBaseURLRequired  = errors.New("marketplace base url is required")
	errVendorIDRequired = errors.New("marketplace vendor id is required")
	errCredsRequired    = errors.New("marketplace api credentials are required")
)

// Client talks to the vendor reporting API that serves license exports.
type Client struct {
	httpClient *http.Client
	baseURL    string
	vendorID   string
	username   string
	password   string
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

// WithBaseURL overrides the configured reporting base URL.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		trimmed := strings.TrimSpace(baseURL)
		if trimmed != "" {
			c.baseURL = trimmed
		}
	}
}

// NewClient builds the reporting client from configuration.
func NewClient(cfg config.MarketplaceConfig, opts ...Option) (*Client, error) {
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		return nil, errBaseURLRequired
	}
	vendorID := strings.TrimSpace(cfg.VendorID)
	if vendorID == "" {
		return nil, errVendorIDRequired
	}
	username := strings.TrimSpace(cfg.Username)
	password := strings.TrimSpace(cfg.Password)
	if username == "" || password == "" {
		return nil, errCredsRequired
	}

	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}

	client := &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		vendorID:   vendorID,
		username:   username,
		password:   password,
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

// Export downloads the license export filtered by modifiedSince and writes
// it to outputPath. The artifact lands via a temp file plus rename so the
// load stage never observes a partial write.
func (c *Client) Export(ctx context.Context, outputPath string, modifiedSince time.Time) error {
	if c == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "marketplace client not configured")
	}
	if strings.TrimSpace(outputPath) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "export output path is required")
	}

	endpoint := c.buildURL(fmt.Sprintf(exportPathFormat, url.PathEscape(c.vendorID)))
	if !modifiedSince.IsZero() {
		query := url.Values{}
		query.Set(modifiedSinceParam, modifiedSince.Format(time.DateOnly))
		endpoint = endpoint + "?" + query.Encode()
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build export request")
	}
	httpReq.SetBasicAuth(c.username, c.password)
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "execute export request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
		return pkgerrors.Wrap(pkgerrors.CodeUnauthorized, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))), "export request rejected")
	}
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
		return pkgerrors.Wrap(pkgerrors.CodeDependency, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))), "export request failed")
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read export response")
	}

	// reject truncated or non-array payloads before they reach disk
	var records []json.RawMessage
	if err := json.Unmarshal(body, &records); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "malformed export payload")
	}

	if err := writeAtomic(outputPath, body); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "write export artifact")
	}

	return nil
}

func writeAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}

func (c *Client) buildURL(path string) string {
	trimmed := strings.TrimRight(c.baseURL, "/")
	path = strings.TrimLeft(path, "/")
	return fmt.Sprintf("%s/%s", trimmed, path)
}
